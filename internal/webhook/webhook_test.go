package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/dweinbeck/chatbot-assistant/internal/queue"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{"valid signature", sign("secret", body), true},
		{"wrong secret", sign("other", body), false},
		{"missing prefix", hex.EncodeToString([]byte("raw")), false},
		{"empty header", "", false},
		{"garbage", "sha256=zzzz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature("secret", tt.signature, body); got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySignatureBodyTamper(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := sign("secret", body)
	if VerifySignature("secret", sig, []byte(`{"a":2}`)) {
		t.Error("tampered body passed verification")
	}
}

func pushPayload(commits ...Commit) PushPayload {
	p := PushPayload{
		Ref:     "refs/heads/main",
		After:   "headsha",
		Commits: commits,
	}
	p.Repository.Name = "svc"
	p.Repository.Owner.Login = "acme"
	return p
}

func TestFanOutIndexesAndDeletes(t *testing.T) {
	d := queue.NewMemory()

	payload := pushPayload(Commit{
		Added:    []string{"new.go"},
		Modified: []string{"changed.go"},
		Removed:  []string{"old.go"},
	})

	n, err := FanOut(context.Background(), d, payload)
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if n != 3 {
		t.Errorf("enqueued = %d, want 3", n)
	}

	if len(d.Indexed) != 2 {
		t.Fatalf("index tasks = %d, want 2", len(d.Indexed))
	}
	for _, req := range d.Indexed {
		if req.Owner != "acme" || req.Repo != "svc" {
			t.Errorf("task repo = %s/%s, want acme/svc", req.Owner, req.Repo)
		}
		if req.CommitSHA != "headsha" {
			t.Errorf("task commit = %q, want the push head", req.CommitSHA)
		}
		if req.SizeHint != -1 {
			t.Errorf("task size hint = %d, want -1 (unknown)", req.SizeHint)
		}
	}

	if len(d.Deleted) != 1 || d.Deleted[0].Path != "old.go" {
		t.Errorf("delete tasks = %+v, want old.go", d.Deleted)
	}
}

func TestFanOutLastActionWins(t *testing.T) {
	d := queue.NewMemory()

	// One push: the file is added in the first commit and removed in the
	// second. Only the delete may survive.
	payload := pushPayload(
		Commit{Added: []string{"fleeting.go"}},
		Commit{Removed: []string{"fleeting.go"}},
	)

	n, err := FanOut(context.Background(), d, payload)
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if n != 1 {
		t.Errorf("enqueued = %d, want 1", n)
	}
	if len(d.Indexed) != 0 {
		t.Errorf("index tasks = %d, want 0", len(d.Indexed))
	}
	if len(d.Deleted) != 1 {
		t.Errorf("delete tasks = %d, want 1", len(d.Deleted))
	}
}

func TestFanOutDeleteThenReAdd(t *testing.T) {
	d := queue.NewMemory()

	payload := pushPayload(
		Commit{Removed: []string{"phoenix.go"}},
		Commit{Added: []string{"phoenix.go"}},
	)

	if _, err := FanOut(context.Background(), d, payload); err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if len(d.Indexed) != 1 || len(d.Deleted) != 0 {
		t.Errorf("got %d index / %d delete tasks, want 1 / 0", len(d.Indexed), len(d.Deleted))
	}
}

func TestFanOutDeduplicatesAcrossCommits(t *testing.T) {
	d := queue.NewMemory()

	payload := pushPayload(
		Commit{Modified: []string{"hot.go"}},
		Commit{Modified: []string{"hot.go"}},
		Commit{Modified: []string{"hot.go"}},
	)

	n, err := FanOut(context.Background(), d, payload)
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if n != 1 || len(d.Indexed) != 1 {
		t.Errorf("enqueued %d tasks for one path, want 1", len(d.Indexed))
	}
}

func TestFanOutOwnerFallsBackToName(t *testing.T) {
	d := queue.NewMemory()

	p := pushPayload(Commit{Added: []string{"a.go"}})
	p.Repository.Owner.Login = ""
	p.Repository.Owner.Name = "acme-org"

	if _, err := FanOut(context.Background(), d, p); err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if len(d.Indexed) != 1 || d.Indexed[0].Owner != "acme-org" {
		t.Errorf("owner = %q, want fallback acme-org", d.Indexed[0].Owner)
	}
}

func TestFanOutSkipsRefDeletionPush(t *testing.T) {
	d := queue.NewMemory()

	// Branch deletion: GitHub sends deleted=true; any commit list present
	// must not fan out.
	p := pushPayload(Commit{Removed: []string{"a.go"}})
	p.Deleted = true

	n, err := FanOut(context.Background(), d, p)
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if n != 0 || len(d.Indexed) != 0 || len(d.Deleted) != 0 {
		t.Errorf("ref-deletion push enqueued %d tasks, want 0", n)
	}
}

func TestFanOutEmptyPush(t *testing.T) {
	d := queue.NewMemory()
	n, err := FanOut(context.Background(), d, pushPayload())
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if n != 0 {
		t.Errorf("enqueued = %d, want 0", n)
	}
}
