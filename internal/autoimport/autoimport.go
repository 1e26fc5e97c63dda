// Package autoimport wires the core's staleness check and collision
// resolver together into the "import on read" policy described in section
// 5: a caller invokes IfNewer before a read-heavy operation, and the mirror
// is reconciled into the database only when it has actually changed.
package autoimport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beads-core/beads/internal/debug"
	"github.com/beads-core/beads/internal/importer"
	"github.com/beads-core/beads/internal/mirror"
	"github.com/beads-core/beads/internal/storage"
	"github.com/beads-core/beads/internal/types"
)

// Notifier handles user-facing progress messages during auto-import.
type Notifier interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type stderrNotifier struct {
	debug bool
}

func (n *stderrNotifier) Debugf(format string, args ...interface{}) {
	if n.debug {
		fmt.Fprintf(os.Stderr, "Debug: "+format+"\n", args...)
	}
}

func (n *stderrNotifier) Infof(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func (n *stderrNotifier) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

func (n *stderrNotifier) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// NewStderrNotifier creates a notifier that writes to stderr.
func NewStderrNotifier(debug bool) Notifier {
	return &stderrNotifier{debug: debug}
}

// IfNewer discovers the mirror next to dbPath and, if it has changed since
// the last recorded import, reads it and resolves it against store via
// importer.ImportIssues. It returns a nil result (and no error) when the
// mirror is absent or unchanged, so callers can invoke it unconditionally
// before a read.
func IfNewer(ctx context.Context, store storage.Storage, dbPath string, notify Notifier, opts importer.Options) (*importer.Result, error) {
	if notify == nil {
		notify = NewStderrNotifier(debug.Enabled())
	}

	workspaceDir := filepath.Dir(dbPath)
	path := mirror.Discover(workspaceDir)

	needsImport, err := mirror.NeedsImport(ctx, store, path)
	if err != nil {
		notify.Debugf("auto-import staleness check failed (%v), skipping", err)
		return nil, nil
	}
	if !needsImport {
		notify.Debugf("auto-import skipped, %s unchanged", path)
		return nil, nil
	}

	notify.Debugf("auto-import triggered, %s changed", path)

	issues, err := mirror.ReadMirror(path)
	if err != nil {
		notify.Errorf("auto-import skipped: %v", err)
		return nil, err
	}

	// Auto-import runs silently on every read; a prefix mismatch here must
	// not block the caller's operation the way an explicit `bd import` does.
	opts.SkipPrefixValidation = true

	result, err := importer.ImportIssues(ctx, store, issues, opts)
	if err != nil {
		notify.Errorf("auto-import failed: %v", err)
		return nil, err
	}

	showRemapping(issues, result.IDMapping, notify)

	if err := mirror.RecordImport(ctx, store, path); err != nil {
		notify.Warnf("failed to record auto-import: %v", err)
	}

	return result, nil
}

// showRemapping reports phase-1b renames (cross-ID content-hash matches)
// since those are the one outcome of ImportIssues silent enough to surprise
// a caller who isn't inspecting the result.
func showRemapping(allIssues []*types.Issue, idMapping map[string]string, notify Notifier) {
	if len(idMapping) == 0 {
		return
	}

	titleByID := make(map[string]string, len(allIssues))
	for _, issue := range allIssues {
		titleByID[issue.ID] = issue.Title
	}

	oldIDs := make([]string, 0, len(idMapping))
	for oldID := range idMapping {
		oldIDs = append(oldIDs, oldID)
	}
	for i := 0; i < len(oldIDs); i++ {
		for j := i + 1; j < len(oldIDs); j++ {
			if oldIDs[i] > oldIDs[j] {
				oldIDs[i], oldIDs[j] = oldIDs[j], oldIDs[i]
			}
		}
	}

	maxShow := 10
	if len(oldIDs) < maxShow {
		maxShow = len(oldIDs)
	}

	notify.Infof("auto-import: renamed %d duplicate issue(s) to new IDs:", len(oldIDs))
	for i := 0; i < maxShow; i++ {
		oldID := oldIDs[i]
		notify.Infof("  %s -> %s (%s)", oldID, idMapping[oldID], titleByID[oldID])
	}
	if len(oldIDs) > maxShow {
		notify.Infof("  ... and %d more", len(oldIDs)-maxShow)
	}
}
