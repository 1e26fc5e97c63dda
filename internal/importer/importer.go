// Package importer resolves incoming textual-mirror records against the
// relational store (section 4.7, Collision Resolver).
package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beads-core/beads/internal/storage"
	"github.com/beads-core/beads/internal/types"
	"github.com/beads-core/beads/internal/utils"
)

// OrphanMode selects how a parent-child edge referencing a missing parent
// is handled (section 4.7, "Orphan handling").
type OrphanMode string

// Orphan handling modes.
const (
	OrphanStrict    OrphanMode = "strict"
	OrphanSkip      OrphanMode = "skip"
	OrphanAllow     OrphanMode = "allow"
	OrphanResurrect OrphanMode = "resurrect"
)

// Options contains import configuration.
type Options struct {
	DryRun               bool // Preview changes without applying them
	SkipUpdate           bool // Skip updating existing issues (create-only mode)
	Strict               bool // Fail on any error (dependencies, labels, comments)
	RenameOnImport       bool // Rename imported issues to match the database prefix
	SkipPrefixValidation bool // Skip prefix validation (used by auto-import)
	OrphanHandling       OrphanMode
	// KeepFirstDuplicateExternalRef, when true, keeps the first issue with a
	// given external_ref in the batch and clears the field on the rest,
	// instead of failing the import.
	KeepFirstDuplicateExternalRef bool
	// ProtectSince holds, per issue ID, the timestamp at or before which an
	// incoming record's updated_at causes it to be ignored regardless of the
	// collision table (section 4.7, "timestamp-aware local protection").
	ProtectSince map[string]time.Time
}

// Result contains statistics about the import operation.
type Result struct {
	Created             int               // New issues created
	Updated             int               // Existing issues updated
	Unchanged           int               // Existing issues that matched exactly (idempotent)
	Skipped             int               // Issues skipped (tombstoned, protected, duplicate, cross-project)
	Renamed             int               // Cross-ID content matches resolved by renaming
	IDMapping           map[string]string // old ID -> new ID, for phase 1b renames
	PrefixMismatch      bool              // Prefix mismatch detected
	ExpectedPrefix      string            // Database configured prefix
	MismatchPrefixes    map[string]int    // Map of mismatched prefixes to count
	DroppedExternalRefs []string          // Issue IDs whose duplicate external_ref was cleared
	OrphansResurrected  []string          // Parent IDs created as placeholders
	OrphansSkipped      []string          // Parent IDs whose edge was dropped
}

// ImportIssues resolves issues (already parsed from the textual mirror via
// mirror.ReadMirror) against store, applying the four-phase collision table
// of section 4.7 to each record in turn, then importing dependencies,
// labels, and comments for everything created or updated.
//
// Unlike the old sequential-ID rename/remap path this replaces, each
// create/update here is a single storage call keyed by content-addressed
// ID, so there is no retry-on-collision loop to run. The batch as a whole
// is not transactional: an error partway through can leave earlier records
// committed. Full batch atomicity would need a transaction type on the
// Storage interface; noted as a limitation rather than attempted here.
func ImportIssues(ctx context.Context, store storage.Storage, issues []*types.Issue, opts Options) (*Result, error) {
	result := &Result{
		IDMapping:        make(map[string]string),
		MismatchPrefixes: make(map[string]int),
	}

	for _, issue := range issues {
		issue.ContentHash = issue.ComputeContentHash(issue.Labels, issue.Dependencies)
	}

	if err := handlePrefixMismatch(ctx, store, issues, opts, result); err != nil {
		return result, err
	}

	issues, err := dedupeExternalRefs(issues, opts.KeepFirstDuplicateExternalRef, result)
	if err != nil {
		return result, err
	}

	if opts.DryRun {
		return previewDryRun(ctx, store, issues, result)
	}

	index, err := buildDBIndex(ctx, store)
	if err != nil {
		return result, err
	}

	var newIssues []*types.Issue
	for _, incoming := range issues {
		create, err := resolveCollision(ctx, store, index, incoming, opts, result)
		if err != nil {
			return result, err
		}
		if create {
			newIssues = append(newIssues, incoming)
		}
	}

	if len(newIssues) > 0 {
		sortByHierarchyDepth(newIssues)
		for _, issue := range newIssues {
			if err := store.CreateIssue(ctx, issue, "import"); err != nil {
				return result, fmt.Errorf("failed to create issue %s: %w", issue.ID, err)
			}
			result.Created++
		}
	}

	if err := importDependencies(ctx, store, issues, opts, result); err != nil {
		return result, err
	}
	if err := importLabels(ctx, store, issues, opts); err != nil {
		return result, err
	}
	if err := importComments(ctx, store, issues, opts); err != nil {
		return result, err
	}

	return result, nil
}

// dbIndex is a single up-front snapshot of the store, keyed the three ways
// the collision table needs to look incoming records up, avoiding an N+1
// query per incoming record.
type dbIndex struct {
	byID          map[string]*types.Issue
	byHash        map[string]*types.Issue
	byExternalRef map[string]*types.Issue
}

func buildDBIndex(ctx context.Context, store storage.Storage) (*dbIndex, error) {
	dbIssues, err := store.SearchIssues(ctx, "", types.IssueFilter{IncludeTombstones: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load existing issues: %w", err)
	}
	allDeps, err := store.GetAllDependencyRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing dependencies: %w", err)
	}

	idx := &dbIndex{
		byID:          make(map[string]*types.Issue, len(dbIssues)),
		byHash:        make(map[string]*types.Issue, len(dbIssues)),
		byExternalRef: make(map[string]*types.Issue),
	}
	for _, issue := range dbIssues {
		labels, err := store.GetLabels(ctx, issue.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load labels for %s: %w", issue.ID, err)
		}
		issue.Labels = labels
		issue.Dependencies = allDeps[issue.ID]
		issue.ContentHash = issue.ComputeContentHash(labels, issue.Dependencies)

		idx.byID[issue.ID] = issue
		idx.byHash[issue.ContentHash] = issue
		if issue.Status != types.StatusTombstone && issue.ExternalRef != nil && *issue.ExternalRef != "" {
			idx.byExternalRef[*issue.ExternalRef] = issue
		}
	}
	return idx, nil
}

// resolveCollision applies tombstone protection, timestamp protection, and
// the four-phase match table (section 4.7) to one incoming record. It
// returns true when the caller must still create the issue; creation is
// deferred so every create in the batch can be ordered by hierarchy depth.
func resolveCollision(ctx context.Context, store storage.Storage, idx *dbIndex, incoming *types.Issue, opts Options, result *Result) (bool, error) {
	existingByID := idx.byID[incoming.ID]

	if existingByID != nil && existingByID.Status == types.StatusTombstone {
		result.Skipped++
		return false, nil
	}

	if protectSince, ok := opts.ProtectSince[incoming.ID]; ok {
		if !incoming.UpdatedAt.After(protectSince) {
			result.Skipped++
			return false, nil
		}
	}

	// Phase 0: external_ref match against a non-tombstone issue.
	if incoming.ExternalRef != nil && *incoming.ExternalRef != "" {
		if existing, found := idx.byExternalRef[*incoming.ExternalRef]; found {
			if opts.SkipUpdate {
				result.Skipped++
				return false, nil
			}
			if !incoming.UpdatedAt.After(existing.UpdatedAt) {
				result.Unchanged++
				return false, nil
			}
			if err := applyFieldUpdate(ctx, store, existing, incoming); err != nil {
				return false, fmt.Errorf("error updating issue %s (matched by external_ref): %w", existing.ID, err)
			}
			result.Updated++
			return false, nil
		}
	}

	// Phase 1a: same-ID content match — idempotent no-op.
	if existingByID != nil && existingByID.ContentHash == incoming.ContentHash {
		result.Unchanged++
		return false, nil
	}

	// Phase 1b: cross-ID content match.
	if dbMatch, found := idx.byHash[incoming.ContentHash]; found && dbMatch.ID != incoming.ID {
		if utils.ExtractIssuePrefix(dbMatch.ID) == utils.ExtractIssuePrefix(incoming.ID) {
			if opts.SkipUpdate {
				result.Skipped++
				return false, nil
			}
			if err := store.UpdateIssueID(ctx, dbMatch.ID, incoming.ID, dbMatch, "import-rename"); err != nil {
				return false, fmt.Errorf("failed to rename %s -> %s: %w", dbMatch.ID, incoming.ID, err)
			}
			result.IDMapping[dbMatch.ID] = incoming.ID
			result.Renamed++
			delete(idx.byID, dbMatch.ID)
			idx.byID[incoming.ID] = dbMatch
			return false, nil
		}
		// Different prefix, same content: a cross-project duplicate, not a rename.
		result.Skipped++
		return false, nil
	}

	// Phase 2: ID matches, content differs — last-writer-wins.
	if existingByID != nil {
		if opts.SkipUpdate {
			result.Skipped++
			return false, nil
		}
		if !incoming.UpdatedAt.After(existingByID.UpdatedAt) {
			result.Unchanged++
			return false, nil
		}
		if err := applyFieldUpdate(ctx, store, existingByID, incoming); err != nil {
			return false, fmt.Errorf("error updating issue %s: %w", incoming.ID, err)
		}
		result.Updated++
		return false, nil
	}

	// Phase 3: no match anywhere — create.
	return true, nil
}

// applyFieldUpdate writes incoming's substantive fields onto existing's ID.
// An empty assignee or external_ref on incoming clears the stored value; a
// false pinned does not clear a previously-true stored value (section 4.7).
func applyFieldUpdate(ctx context.Context, store storage.Storage, existing, incoming *types.Issue) error {
	updates := map[string]interface{}{
		"title":               incoming.Title,
		"description":         incoming.Description,
		"status":              string(incoming.Status),
		"priority":            incoming.Priority,
		"issue_type":          string(incoming.IssueType),
		"design":              incoming.Design,
		"acceptance_criteria": incoming.AcceptanceCriteria,
		"notes":               incoming.Notes,
	}

	if incoming.Assignee != "" {
		updates["assignee"] = incoming.Assignee
	} else {
		updates["assignee"] = nil
	}

	if incoming.ExternalRef != nil && *incoming.ExternalRef != "" {
		updates["external_ref"] = *incoming.ExternalRef
	} else {
		updates["external_ref"] = nil
	}

	if incoming.Pinned {
		updates["pinned"] = true
	}

	if IssueDataChanged(existing, updates) {
		return store.UpdateIssue(ctx, existing.ID, updates, "import")
	}
	return nil
}

// sortByHierarchyDepth orders issues so parents are created before
// children, using only the parent-child edges present within the batch
// itself (section 4.7, phase 3).
func sortByHierarchyDepth(issues []*types.Issue) {
	depth := make(map[string]int, len(issues))
	byID := make(map[string]*types.Issue, len(issues))
	for _, issue := range issues {
		byID[issue.ID] = issue
	}

	var depthOf func(id string, visiting map[string]bool) int
	depthOf = func(id string, visiting map[string]bool) int {
		if d, ok := depth[id]; ok {
			return d
		}
		if visiting[id] {
			return 0
		}
		issue, ok := byID[id]
		if !ok {
			return 0
		}
		visiting[id] = true
		maxParentDepth := -1
		for _, dep := range issue.Dependencies {
			if dep.Type == types.DepParentChild && dep.IssueID == id {
				if pd := depthOf(dep.DependsOnID, visiting); pd > maxParentDepth {
					maxParentDepth = pd
				}
			}
		}
		delete(visiting, id)
		d := maxParentDepth + 1
		depth[id] = d
		return d
	}

	for _, issue := range issues {
		depthOf(issue.ID, map[string]bool{})
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return depth[issues[i].ID] < depth[issues[j].ID]
	})
}

// handlePrefixMismatch checks incoming issue ID prefixes against the
// store's configured prefix, applying rename-on-import if requested.
func handlePrefixMismatch(ctx context.Context, store storage.Storage, issues []*types.Issue, opts Options, result *Result) error {
	configuredPrefix, err := store.GetConfig(ctx, "issue_prefix")
	if err != nil {
		return fmt.Errorf("failed to get configured prefix: %w", err)
	}
	if configuredPrefix == "" {
		if opts.RenameOnImport {
			return fmt.Errorf("cannot rename: issue_prefix not configured in database")
		}
		return nil
	}
	result.ExpectedPrefix = configuredPrefix

	for _, issue := range issues {
		if prefix := utils.ExtractIssuePrefix(issue.ID); prefix != configuredPrefix {
			result.PrefixMismatch = true
			result.MismatchPrefixes[prefix]++
		}
	}
	if !result.PrefixMismatch {
		return nil
	}

	if opts.RenameOnImport {
		if err := RenameImportedIssuePrefixes(issues, configuredPrefix); err != nil {
			return fmt.Errorf("failed to rename prefixes: %w", err)
		}
		result.PrefixMismatch = false
		result.MismatchPrefixes = make(map[string]int)
		return nil
	}

	if !opts.DryRun && !opts.SkipPrefixValidation {
		return fmt.Errorf("prefix mismatch detected: database uses '%s-' but found issues with prefixes: %v (use --rename to automatically fix)", configuredPrefix, GetPrefixList(result.MismatchPrefixes))
	}
	return nil
}

// dedupeExternalRefs enforces "duplicate external_ref in the incoming
// batch" (section 4.7): fail by default, or keep the first occurrence and
// clear the field on the rest when opts.KeepFirstDuplicateExternalRef is set.
func dedupeExternalRefs(issues []*types.Issue, keepFirst bool, result *Result) ([]*types.Issue, error) {
	seen := make(map[string]string)
	var duplicates []string
	for _, issue := range issues {
		if issue.ExternalRef == nil || *issue.ExternalRef == "" {
			continue
		}
		ref := *issue.ExternalRef
		firstID, ok := seen[ref]
		if !ok {
			seen[ref] = issue.ID
			continue
		}
		if keepFirst {
			issue.ExternalRef = nil
			result.DroppedExternalRefs = append(result.DroppedExternalRefs, issue.ID)
			continue
		}
		duplicates = append(duplicates, fmt.Sprintf("external_ref '%s' appears in issues: %s, %s", ref, firstID, issue.ID))
	}
	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return nil, fmt.Errorf("batch import contains duplicate external_ref values:\n%s", strings.Join(duplicates, "\n"))
	}
	return issues, nil
}

// previewDryRun reports what an import would do without writing anything.
func previewDryRun(ctx context.Context, store storage.Storage, issues []*types.Issue, result *Result) (*Result, error) {
	idx, err := buildDBIndex(ctx, store)
	if err != nil {
		return result, err
	}
	for _, incoming := range issues {
		existing := idx.byID[incoming.ID]
		switch {
		case existing != nil && existing.Status == types.StatusTombstone:
			result.Skipped++
		case existing != nil && existing.ContentHash == incoming.ContentHash:
			result.Unchanged++
		case existing != nil:
			result.Updated++
		default:
			if dbMatch, found := idx.byHash[incoming.ContentHash]; found && dbMatch.ID != incoming.ID {
				result.Renamed++
			} else {
				result.Created++
			}
		}
	}
	return result, nil
}

// importDependencies imports dependency edges for every issue in the batch,
// applying orphan handling (section 4.7) to parent-child edges whose parent
// is missing from both the store and the batch.
func importDependencies(ctx context.Context, store storage.Storage, issues []*types.Issue, opts Options, result *Result) error {
	mode := opts.OrphanHandling
	if mode == "" {
		mode = OrphanAllow
	}

	batchIDs := make(map[string]bool, len(issues))
	for _, issue := range issues {
		batchIDs[issue.ID] = true
	}

	for _, issue := range issues {
		if len(issue.Dependencies) == 0 {
			continue
		}

		existingDeps, err := store.GetDependencyRecords(ctx, issue.ID)
		if err != nil {
			return fmt.Errorf("error checking dependencies for %s: %w", issue.ID, err)
		}
		existingSet := make(map[string]bool, len(existingDeps))
		for _, existing := range existingDeps {
			existingSet[fmt.Sprintf("%s|%s", existing.DependsOnID, existing.Type)] = true
		}

		for _, dep := range issue.Dependencies {
			key := fmt.Sprintf("%s|%s", dep.DependsOnID, dep.Type)
			if existingSet[key] {
				continue
			}

			if dep.Type == types.DepParentChild && !batchIDs[dep.DependsOnID] {
				parent, err := store.GetIssue(ctx, dep.DependsOnID)
				if err != nil || parent == nil {
					skip, resErr := resolveOrphan(ctx, store, mode, dep.DependsOnID, result)
					if resErr != nil {
						return resErr
					}
					if skip {
						continue
					}
					if mode == OrphanStrict {
						return fmt.Errorf("validation: missing parent %s for %s", dep.DependsOnID, issue.ID)
					}
				}
			}

			if err := store.AddDependency(ctx, dep, "import"); err != nil {
				if opts.Strict {
					return fmt.Errorf("error adding dependency %s -> %s: %w", dep.IssueID, dep.DependsOnID, err)
				}
				continue
			}
		}
	}

	return nil
}

// resolveOrphan applies one orphan-handling decision for a missing parent
// ID. It returns (skip, error); skip is true when the caller should drop
// the dependency edge entirely rather than add it (skip mode).
func resolveOrphan(ctx context.Context, store storage.Storage, mode OrphanMode, parentID string, result *Result) (bool, error) {
	switch mode {
	case OrphanSkip:
		result.OrphansSkipped = append(result.OrphansSkipped, parentID)
		return true, nil
	case OrphanResurrect:
		now := time.Now().UTC()
		placeholder := &types.Issue{
			ID:          parentID,
			Title:       fmt.Sprintf("Resurrected placeholder for %s", parentID),
			Status:      types.StatusClosed,
			Priority:    2,
			IssueType:   types.TypeTask,
			CreatedAt:   now,
			UpdatedAt:   now,
			ClosedAt:    &now,
			CloseReason: "resurrected orphan parent",
		}
		if err := store.CreateIssue(ctx, placeholder, "import-resurrect"); err != nil {
			return false, fmt.Errorf("failed to resurrect orphan parent %s: %w", parentID, err)
		}
		result.OrphansResurrected = append(result.OrphansResurrected, parentID)
		return false, nil
	case OrphanStrict, OrphanAllow:
		return false, nil
	default:
		return false, nil
	}
}

// importLabels imports labels for issues.
func importLabels(ctx context.Context, store storage.Storage, issues []*types.Issue, opts Options) error {
	for _, issue := range issues {
		if len(issue.Labels) == 0 {
			continue
		}
		current, err := store.GetLabels(ctx, issue.ID)
		if err != nil {
			return fmt.Errorf("error getting labels for %s: %w", issue.ID, err)
		}
		currentSet := make(map[string]bool, len(current))
		for _, label := range current {
			currentSet[label] = true
		}
		for _, label := range issue.Labels {
			if currentSet[label] {
				continue
			}
			if err := store.AddLabel(ctx, issue.ID, label, "import"); err != nil {
				if opts.Strict {
					return fmt.Errorf("error adding label %s to %s: %w", label, issue.ID, err)
				}
				continue
			}
		}
	}
	return nil
}

// importComments imports comments for issues, de-duplicating by author+text.
func importComments(ctx context.Context, store storage.Storage, issues []*types.Issue, opts Options) error {
	for _, issue := range issues {
		if len(issue.Comments) == 0 {
			continue
		}
		current, err := store.GetIssueComments(ctx, issue.ID)
		if err != nil {
			return fmt.Errorf("error getting comments for %s: %w", issue.ID, err)
		}
		seen := make(map[string]bool, len(current))
		for _, c := range current {
			seen[fmt.Sprintf("%s:%s", c.Author, c.Text)] = true
		}
		for _, comment := range issue.Comments {
			key := fmt.Sprintf("%s:%s", comment.Author, comment.Text)
			if seen[key] {
				continue
			}
			if _, err := store.AddIssueComment(ctx, issue.ID, comment.Author, comment.Text); err != nil {
				if opts.Strict {
					return fmt.Errorf("error adding comment to %s: %w", issue.ID, err)
				}
				continue
			}
		}
	}
	return nil
}

// GetPrefixList renders a prefix->count map as a sorted, human-readable list.
func GetPrefixList(prefixes map[string]int) []string {
	keys := make([]string, 0, len(prefixes))
	for k := range prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, prefix := range keys {
		result = append(result, fmt.Sprintf("%s- (%d issues)", prefix, prefixes[prefix]))
	}
	return result
}
