// Package mirror implements the textual JSONL mirror: atomic export, path
// safety, and the staleness/metadata bookkeeping that keeps it convergent
// with the relational store (sections 4.6 and 4.8).
package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// vcsDirNames are version-control directories whose contents are never a
// legitimate mirror target.
var vcsDirNames = []string{".git", ".hg", ".svn"}

// platformRoots are paths that can never be a safe write target regardless
// of workspace configuration.
var platformRoots = []string{"/", "/root", "/home", "/etc", "/usr", "/var", "/boot", "/sys", "/proc"}

// ValidatePath rejects any path that does not canonicalize into workspaceDir
// (section 4.6 "Path safety"). It must be called before any file is opened
// for writing. workspaceDir must already be an absolute, cleaned path.
func ValidatePath(workspaceDir, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path_unsafe: empty path")
	}

	absWorkspace, err := filepath.Abs(workspaceDir)
	if err != nil {
		return fmt.Errorf("path_unsafe: invalid workspace directory: %w", err)
	}
	absWorkspace = filepath.Clean(absWorkspace)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("path_unsafe: invalid path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	// Resolve symlinks where possible so a link that escapes the workspace
	// cannot be used to write outside it. A nonexistent target (the common
	// case for a fresh export) is not an error here.
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	} else if resolvedDir, err := filepath.EvalSymlinks(filepath.Dir(absPath)); err == nil {
		absPath = filepath.Join(resolvedDir, filepath.Base(absPath))
	}

	for _, root := range platformRoots {
		if absPath == root {
			return fmt.Errorf("path_unsafe: refusing to target platform root %s", root)
		}
	}

	rel, err := filepath.Rel(absWorkspace, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path_unsafe: %s canonicalizes outside workspace %s", path, absWorkspace)
	}

	segments := strings.Split(rel, string(filepath.Separator))
	for _, seg := range segments {
		if seg == ".." {
			return fmt.Errorf("path_unsafe: %s contains parent-directory traversal", path)
		}
		for _, vcs := range vcsDirNames {
			if seg == vcs {
				return fmt.Errorf("path_unsafe: %s targets a version-control directory", path)
			}
		}
	}

	return nil
}

// EnsureParentDir creates path's parent directory if it does not exist,
// refusing to do so unless the parent itself is inside workspaceDir.
func EnsureParentDir(workspaceDir, path string) error {
	dir := filepath.Dir(path)
	if err := ValidatePath(workspaceDir, dir); err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
