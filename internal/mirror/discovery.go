package mirror

import (
	"os"
	"path/filepath"
)

// preferredNames are tried in order when no explicit mirror path is
// configured (section 6, "Mirror discovery").
var preferredNames = []string{"issues.jsonl", "beads.jsonl"}

// neverSelected are filenames discovery must never return even if present,
// since they hold auxiliary data rather than the canonical mirror.
var neverSelected = map[string]bool{
	"deletions.jsonl":    true,
	"interactions.jsonl": true,
	"beads.base.jsonl":   true,
	"beads.left.jsonl":   true,
	"beads.right.jsonl":  true,
}

// Discover returns the path of the canonical mirror within workspaceDir,
// preferring issues.jsonl, then beads.jsonl, and otherwise defaulting to
// issues.jsonl (to be created on first export).
func Discover(workspaceDir string) string {
	for _, name := range preferredNames {
		candidate := filepath.Join(workspaceDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			if !neverSelected[name] {
				return candidate
			}
		}
	}
	return filepath.Join(workspaceDir, preferredNames[0])
}

// LockPath returns the fixed path of the cross-process advisory lock within
// workspaceDir (section 6, workspace layout).
func LockPath(workspaceDir string) string {
	return filepath.Join(workspaceDir, ".sync.lock")
}
