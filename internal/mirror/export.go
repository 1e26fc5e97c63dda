package mirror

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/beads-core/beads/internal/lockfile"
	"github.com/beads-core/beads/internal/storage"
	"github.com/beads-core/beads/internal/types"
)

// DefaultLockTimeout is the busy timeout applied to the advisory lock that
// guards import and full export (section 5).
const DefaultLockTimeout = 30 * time.Second

// ExportOptions configures an export run.
type ExportOptions struct {
	// Output is the destination path. Empty means "use mirror discovery".
	Output string
	// Incremental, when true, still writes the full set but only refreshes
	// export hashes for dirty issues whose content changed, and clears only
	// the dirty bits it examined. Incremental exports do not take the
	// advisory lock.
	Incremental bool
	// Force overrides the empty-store safety refusal.
	Force bool
	// SharedMode writes the file with mode 0644 instead of 0600, for
	// workspaces whose mirror is read by other local accounts.
	SharedMode bool
}

// ExportResult summarizes a completed export.
type ExportResult struct {
	Path         string
	ExportedIDs  []string
	SkippedEmpty bool
}

// Export runs the eight-step atomic export pipeline (section 4.6). It is
// safe to call concurrently with readers of the existing mirror; the
// temporary-file-then-rename sequence means readers never observe a
// partially written file.
func Export(ctx context.Context, store storage.Storage, workspaceDir string, opts ExportOptions) (*ExportResult, error) {
	workspaceDir, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace directory: %w", err)
	}

	output := opts.Output
	if output == "" {
		output = Discover(workspaceDir)
	}
	if err := ValidatePath(workspaceDir, output); err != nil {
		return nil, err
	}
	if err := EnsureParentDir(workspaceDir, output); err != nil {
		return nil, fmt.Errorf("failed to prepare output directory: %w", err)
	}

	if !opts.Incremental {
		lock, err := lockfile.Acquire(LockPath(workspaceDir), DefaultLockTimeout)
		if err != nil {
			return nil, fmt.Errorf("locked: failed to acquire mirror lock: %w", err)
		}
		defer func() { _ = lock.Release() }()
	}

	// Step 1: load the dirty snapshot (incremental) and the full issue set.
	// The mirror written below always holds the complete set regardless of
	// Incremental: narrowing the write to only the dirty issues would drop
	// every untouched record from issues.jsonl on rename (section 4.5,
	// property 7). Incremental instead narrows which issues are treated as
	// "changed" for export-hash and dirty-bit bookkeeping.
	var dirtyIDs []string
	if opts.Incremental {
		dirtyIDs, err = store.GetDirtyIssues(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get dirty issues: %w", err)
		}
		if len(dirtyIDs) == 0 {
			return &ExportResult{Path: output}, nil
		}
	}

	issues, err := store.SearchIssues(ctx, "", types.IssueFilter{IncludeTombstones: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}

	// Safety refusal: empty store over a non-empty mirror (section 4.6).
	if len(issues) == 0 && !opts.Incremental && !opts.Force {
		existingCount, err := countRecords(output)
		if err == nil && existingCount > 0 {
			return nil, fmt.Errorf("refusing to export empty store over non-empty mirror %s (%d existing issues); pass Force to override", output, existingCount)
		}
	}

	// Step 2: filter ephemerals, keep tombstones, sort by ID.
	filtered := make([]*types.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.Ephemeral {
			continue
		}
		filtered = append(filtered, issue)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })

	// Populate dependencies, labels, comments (avoids N+1: one query per kind).
	allDeps, err := store.GetAllDependencyRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependencies: %w", err)
	}
	for _, issue := range filtered {
		issue.Dependencies = allDeps[issue.ID]

		labels, err := store.GetLabels(ctx, issue.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load labels for %s: %w", issue.ID, err)
		}
		issue.Labels = labels

		comments, err := store.GetIssueComments(ctx, issue.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load comments for %s: %w", issue.ID, err)
		}
		issue.Comments = comments

		// Step 3: recompute content_hash; never trust the stored value here.
		issue.ContentHash = issue.ComputeContentHash(issue.Labels, issue.Dependencies)
	}

	// For an incremental export, determine which of the dirty issues
	// actually changed: one whose recomputed content_hash still matches the
	// hash recorded at the last export is a false-positive dirty mark (e.g.
	// a mutation that touched updated_at without changing substance). It
	// stays in the mirror (written via filtered above) but is excluded from
	// changedIDs, so its export hash isn't rewritten — only its dirty bit is
	// cleared, alongside every other dirty issue, in step 8 (section 4.5,
	// property 9).
	var changedIDs []string
	if opts.Incremental {
		dirty := make(map[string]bool, len(dirtyIDs))
		for _, id := range dirtyIDs {
			dirty[id] = true
		}
		for _, issue := range filtered {
			if !dirty[issue.ID] {
				continue
			}
			exportHash, err := store.GetExportHash(ctx, issue.ID)
			if err == nil && exportHash == issue.ContentHash {
				continue
			}
			changedIDs = append(changedIDs, issue.ID)
		}

		// Every dirty issue turned out to be a false positive: nothing to
		// rewrite, but the dirty bits still need clearing.
		if len(changedIDs) == 0 {
			if err := store.ClearDirtyIssuesByID(ctx, dirtyIDs); err != nil {
				return nil, fmt.Errorf("failed to clear dirty issues: %w", err)
			}
			return &ExportResult{Path: output}, nil
		}
	}

	// Step 4: write to a temporary sibling file.
	dir := filepath.Dir(output)
	base := filepath.Base(output)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = tmp.Close(); _ = os.Remove(tmpPath) }

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	for _, issue := range filtered {
		if err := encoder.Encode(issue); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to encode issue %s: %w", issue.ID, err)
		}
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to write temporary file: %w", err)
	}

	// Step 5: flush the user buffer, then fsync.
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to fsync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close temporary file: %w", err)
	}

	mode := os.FileMode(0600)
	if opts.SharedMode {
		mode = 0644
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to set mirror permissions: %w", err)
	}

	// Step 6: atomically rename into place.
	if err := os.Rename(tmpPath, output); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to replace mirror: %w", err)
	}

	// Step 7: update export_hashes and metadata (section 4.8). A full export
	// refreshes every issue's hash; an incremental export only needs to
	// touch the ones that actually changed, since the rest already match.
	hashTargets := filtered
	if opts.Incremental {
		changedSet := make(map[string]bool, len(changedIDs))
		for _, id := range changedIDs {
			changedSet[id] = true
		}
		hashTargets = make([]*types.Issue, 0, len(changedIDs))
		for _, issue := range filtered {
			if changedSet[issue.ID] {
				hashTargets = append(hashTargets, issue)
			}
		}
	}
	for _, issue := range hashTargets {
		if err := store.SetExportHash(ctx, issue.ID, issue.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to record export hash for %s: %w", issue.ID, err)
		}
	}
	fileHash, err := hashFile(output)
	if err != nil {
		return nil, fmt.Errorf("failed to hash exported mirror: %w", err)
	}
	if err := store.SetJSONLFileHash(ctx, fileHash); err != nil {
		return nil, fmt.Errorf("failed to update jsonl_file_hash: %w", err)
	}
	if err := store.SetMetadata(ctx, MetaJSONLContentHash, fileHash); err != nil {
		return nil, fmt.Errorf("failed to update jsonl_content_hash: %w", err)
	}
	if err := store.SetMetadata(ctx, MetaLastExportTime, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("failed to update last_export_time: %w", err)
	}

	// Step 8: clear dirty bits. A full export clears every issue written; an
	// incremental export clears every dirty issue examined above, including
	// ones skipped for already matching their export hash (property 9).
	reportedIDs := make([]string, 0, len(filtered))
	for _, issue := range filtered {
		reportedIDs = append(reportedIDs, issue.ID)
	}
	clearIDs := reportedIDs
	if opts.Incremental {
		clearIDs = dirtyIDs
		reportedIDs = changedIDs
	}
	if len(clearIDs) > 0 {
		if err := store.ClearDirtyIssuesByID(ctx, clearIDs); err != nil {
			return nil, fmt.Errorf("failed to clear dirty issues: %w", err)
		}
	}

	return &ExportResult{Path: output, ExportedIDs: reportedIDs}, nil
}

// countRecords returns the number of JSONL records in path, or an error if
// the file cannot be read (including "does not exist").
func countRecords(path string) (int, error) {
	// #nosec G304 - path has already passed ValidatePath
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	count := 0
	decoder := json.NewDecoder(bytes.NewReader(data))
	for decoder.More() {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func hashFile(path string) (string, error) {
	// #nosec G304 - path has already passed ValidatePath
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
