package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dweinbeck/chatbot-assistant/internal/chunker"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// Postgres implements KnowledgeStore on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ KnowledgeStore = (*Postgres)(nil)

// New creates a Postgres store connected to the given database URL.
func New(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: p}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

// Ping checks database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Migrate applies the knowledge-base schema. The tsvector column is stored
// and generated so chunk inserts stay a plain INSERT, and the trigram index
// on kb_files.path backs the similarity fallback tier.
func (s *Postgres) Migrate(ctx context.Context) error {
	const q = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS repos (
  id             BIGSERIAL PRIMARY KEY,
  owner          TEXT NOT NULL,
  name           TEXT NOT NULL,
  default_branch TEXT NOT NULL DEFAULT 'main',
  updated_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS repos_owner_name_uidx
  ON repos (owner, name);

CREATE TABLE IF NOT EXISTS kb_files (
  id         BIGSERIAL PRIMARY KEY,
  repo_id    BIGINT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
  path       TEXT NOT NULL,
  commit_sha TEXT NOT NULL,
  sha256     TEXT NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS kb_files_repo_path_uidx
  ON kb_files (repo_id, path);
CREATE INDEX IF NOT EXISTS kb_files_path_trgm_gin
  ON kb_files USING GIN (path gin_trgm_ops);

CREATE TABLE IF NOT EXISTS kb_chunks (
  id          BIGSERIAL PRIMARY KEY,
  repo_id     BIGINT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
  file_id     BIGINT NOT NULL REFERENCES kb_files(id) ON DELETE CASCADE,
  path        TEXT NOT NULL,
  commit_sha  TEXT NOT NULL,
  start_line  INT NOT NULL,
  end_line    INT NOT NULL,
  content     TEXT NOT NULL,
  content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
  updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS kb_chunks_file_idx
  ON kb_chunks (file_id);
CREATE INDEX IF NOT EXISTS kb_chunks_tsv_gin
  ON kb_chunks USING GIN (content_tsv);
`
	_, err := s.pool.Exec(ctx, q)
	return err
}

func (s *Postgres) GetOrCreateRepo(ctx context.Context, owner, name, defaultBranch string) (models.Repo, error) {
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	const q = `
		INSERT INTO repos (owner, name, default_branch)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, name) DO UPDATE SET updated_at = now()
		RETURNING id, owner, name, default_branch, updated_at`
	var r models.Repo
	err := s.pool.QueryRow(ctx, q, owner, name, defaultBranch).
		Scan(&r.ID, &r.Owner, &r.Name, &r.DefaultBranch, &r.UpdatedAt)
	return r, err
}

func (s *Postgres) GetFile(ctx context.Context, repoID int64, path string) (models.File, bool, error) {
	const q = `
		SELECT id, repo_id, path, commit_sha, sha256, updated_at
		FROM kb_files
		WHERE repo_id = $1 AND path = $2`
	var f models.File
	err := s.pool.QueryRow(ctx, q, repoID, path).
		Scan(&f.ID, &f.RepoID, &f.Path, &f.CommitSHA, &f.SHA256, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.File{}, false, nil
		}
		return models.File{}, false, err
	}
	return f, true, nil
}

func (s *Postgres) TouchFileCommit(ctx context.Context, fileID int64, commitSHA string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE kb_files SET commit_sha = $1, updated_at = now() WHERE id = $2`,
		commitSHA, fileID)
	return err
}

// ReplaceFileChunks upserts the file row and replaces its chunks inside one
// transaction. Concurrent re-index of the same (repo_id, path) serializes
// on the unique file row, so stale and fresh chunks never coexist.
func (s *Postgres) ReplaceFileChunks(ctx context.Context, repoID int64, path, commitSHA, sha256 string, chunks []chunker.Chunk) (models.File, error) {
	if err := ValidateChunks(chunks); err != nil {
		return models.File{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.File{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO kb_files (repo_id, path, commit_sha, sha256)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (repo_id, path) DO UPDATE SET
			commit_sha = EXCLUDED.commit_sha,
			sha256     = EXCLUDED.sha256,
			updated_at = now()
		RETURNING id, repo_id, path, commit_sha, sha256, updated_at`
	var f models.File
	if err := tx.QueryRow(ctx, upsert, repoID, path, commitSHA, sha256).
		Scan(&f.ID, &f.RepoID, &f.Path, &f.CommitSHA, &f.SHA256, &f.UpdatedAt); err != nil {
		return models.File{}, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM kb_chunks WHERE file_id = $1`, f.ID); err != nil {
		return models.File{}, err
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO kb_chunks (repo_id, file_id, path, commit_sha, start_line, end_line, content)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			repoID, f.ID, path, commitSHA, c.StartLine, c.EndLine, c.Content)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return models.File{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.File{}, err
	}
	return f, nil
}

func (s *Postgres) DeleteFile(ctx context.Context, repoID int64, path string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM kb_files WHERE repo_id = $1 AND path = $2`, repoID, path)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SearchText runs ranked full-text search over chunk content. MatchAll uses
// websearch_to_tsquery, which safely parses user input with AND semantics.
// MatchAny rebuilds the query from parsed lexemes joined with '|', so any
// significant term may match. Both rank with ts_rank_cd (cover density),
// which rewards term proximity and coverage over raw frequency.
func (s *Postgres) SearchText(ctx context.Context, query string, limit int, mode TextSearchMode) ([]models.RetrievedChunk, error) {
	var q string
	switch mode {
	case MatchAll:
		q = `
SELECT c.id, r.owner, r.name, c.path, c.commit_sha, c.start_line, c.end_line, c.content,
       ts_rank_cd(c.content_tsv, websearch_to_tsquery('english', $1)) AS rank
FROM kb_chunks c
JOIN repos r ON c.repo_id = r.id
WHERE c.content_tsv @@ websearch_to_tsquery('english', $1)
ORDER BY rank DESC, c.id
LIMIT $2`
	case MatchAny:
		q = `
WITH parsed AS (
  SELECT lower(x) AS lx
  FROM ts_debug('english', $1) d, unnest(d.lexemes) AS x
  WHERE d.alias NOT IN ('StopWord','Space','Blank','Punct')
),
q AS (
  SELECT to_tsquery('english',
    (SELECT CASE WHEN COUNT(*) > 0
                 THEN string_agg(DISTINCT lx, ' | ')
                 ELSE NULL END
     FROM parsed)
  ) AS tq
)
SELECT c.id, r.owner, r.name, c.path, c.commit_sha, c.start_line, c.end_line, c.content,
       ts_rank_cd(c.content_tsv, (SELECT tq FROM q)) AS rank
FROM kb_chunks c
JOIN repos r ON c.repo_id = r.id
WHERE c.content_tsv @@ (SELECT tq FROM q)
ORDER BY rank DESC, c.id
LIMIT $2`
	default:
		return nil, errors.New("store: unknown text search mode")
	}

	return s.queryChunks(ctx, q, query, limit)
}

// SearchPathSimilarity computes trigram similarity on kb_files.path, which
// carries the gin_trgm_ops index; computing on kb_chunks.path would bypass
// it. The threshold is explicit rather than relying on the pg_trgm GUC.
func (s *Postgres) SearchPathSimilarity(ctx context.Context, query string, limit int, threshold float64) ([]models.RetrievedChunk, error) {
	const q = `
SELECT c.id, r.owner, r.name, c.path, c.commit_sha, c.start_line, c.end_line, c.content,
       similarity(f.path, $1) AS sim
FROM kb_chunks c
JOIN kb_files f ON c.file_id = f.id
JOIN repos r ON c.repo_id = r.id
WHERE similarity(f.path, $1) > $2
ORDER BY sim DESC, c.id
LIMIT $3`

	rows, err := s.pool.Query(ctx, q, query, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRetrieved(rows)
}

func (s *Postgres) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kb_chunks`).Scan(&n)
	return n, err
}

func (s *Postgres) ListRepositories(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT owner || '/' || name FROM repos ORDER BY owner, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func (s *Postgres) queryChunks(ctx context.Context, q, query string, limit int) ([]models.RetrievedChunk, error) {
	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRetrieved(rows)
}

func scanRetrieved(rows pgx.Rows) ([]models.RetrievedChunk, error) {
	var out []models.RetrievedChunk
	for rows.Next() {
		var c models.RetrievedChunk
		if err := rows.Scan(
			&c.ID, &c.RepoOwner, &c.RepoName, &c.Path, &c.CommitSHA,
			&c.StartLine, &c.EndLine, &c.Content, &c.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
