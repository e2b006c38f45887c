// Package denylist decides whether a candidate file is eligible for
// indexing. The predicate is pure and total: it never errors, and the same
// path and size always produce the same verdict.
package denylist

import (
	"path"
	"strings"
)

// Directory segments that mark dependency caches, build output and
// version-control metadata. Matching is substring-based on the
// slash-normalized path.
var deniedDirs = []string{
	"node_modules/",
	"dist/",
	"build/",
	".git/",
	"vendor/",
	"__pycache__/",
	".tox/",
	".venv/",
	".mypy_cache/",
}

// Exact filenames rejected regardless of directory: lockfiles and similar
// generated manifests.
var deniedFiles = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"Cargo.lock":        {},
	"poetry.lock":       {},
	"Pipfile.lock":      {},
	"go.sum":            {},
	"composer.lock":     {},
}

// Glob patterns for extensions that should never be indexed: binaries,
// images, archives, compiled and minified artifacts.
var deniedPatterns = []string{
	"*.lock",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.svg",
	"*.ico",
	"*.pdf",
	"*.woff",
	"*.woff2",
	"*.ttf",
	"*.eot",
	"*.mp3",
	"*.mp4",
	"*.zip",
	"*.tar.gz",
	"*.exe",
	"*.dll",
	"*.so",
	"*.dylib",
	"*.min.js",
	"*.min.css",
	"*.map",
}

// MaxFileSizeBytes is the size above which files are rejected.
const MaxFileSizeBytes = 500 * 1024

// Reasons returned by IsDenied.
const (
	ReasonDirectory = "directory"
	ReasonFilename  = "filename"
	ReasonExtension = "extension"
	ReasonSize      = "size"
)

// IsDeniedDir reports whether a directory name, on its own, is denied.
// Walkers use it to prune whole subtrees before visiting their files.
func IsDeniedDir(name string) bool {
	for _, dir := range deniedDirs {
		if name+"/" == dir {
			return true
		}
	}
	return false
}

// IsDenied reports whether the file at the given relative path should be
// excluded from indexing, and why. sizeBytes < 0 means the size is unknown
// and the size rule is skipped; the orchestrator re-checks authoritatively
// after fetching.
func IsDenied(p string, sizeBytes int64) (bool, string) {
	// Leading slash makes segment matching uniform for top-level dirs.
	normalized := "/" + p

	for _, dir := range deniedDirs {
		if strings.Contains(normalized, "/"+dir) {
			return true, ReasonDirectory
		}
	}

	name := p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		name = p[i+1:]
	}

	if _, ok := deniedFiles[name]; ok {
		return true, ReasonFilename
	}

	for _, pat := range deniedPatterns {
		// path.Match cannot fail here: the pattern set is static and valid.
		if ok, _ := path.Match(pat, name); ok {
			return true, ReasonExtension
		}
	}

	if sizeBytes > MaxFileSizeBytes {
		return true, ReasonSize
	}

	return false, ""
}
