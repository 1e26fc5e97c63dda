// Package sqlite implements dependency management for the SQLite storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/beads-core/beads/internal/coreerr"
	"github.com/beads-core/beads/internal/types"
)

// blockingTypeList is the SQL IN-list literal for the blocking-family
// dependency types (section 3.2): these participate in cycle detection and
// the blocked-work cache; informational types do not.
const blockingTypeList = `'blocks', 'parent-child', 'conditional-blocks', 'waits-for'`

// AddDependency adds a dependency between issues with cycle prevention for
// blocking-family types. depends_on_id may name an external sentinel
// ("external:project:capability") that never appears as an issues row
// (section 4.4); such targets are exempt from the existence check.
func (s *SQLiteStorage) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	if !dep.Type.IsValid() {
		return coreerr.Newf(coreerr.Validation, "invalid dependency type: %s", dep.Type)
	}
	if dep.IssueID == dep.DependsOnID {
		return coreerr.New(coreerr.Validation, "issue cannot depend on itself")
	}

	issue, err := s.GetIssue(ctx, dep.IssueID)
	if err != nil {
		return fmt.Errorf("failed to check issue %s: %w", dep.IssueID, err)
	}
	if issue == nil {
		return coreerr.Newf(coreerr.NotFound, "issue %s not found", dep.IssueID)
	}

	var target *types.Issue
	if !types.IsExternalSentinel(dep.DependsOnID) {
		target, err = s.GetIssue(ctx, dep.DependsOnID)
		if err != nil {
			return fmt.Errorf("failed to check dependency %s: %w", dep.DependsOnID, err)
		}
		if target == nil {
			return coreerr.Newf(coreerr.NotFound, "dependency target %s not found", dep.DependsOnID)
		}
	}

	if dep.Type == types.DepParentChild && issue.IssueType == types.TypeEpic && target != nil && target.IssueType != types.TypeEpic {
		return coreerr.Newf(coreerr.Validation,
			"parent-child dependency must point from child to parent: %s is an epic and cannot be the child of %s", dep.IssueID, dep.DependsOnID)
	}

	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now()
	}
	if dep.CreatedBy == "" {
		dep.CreatedBy = actor
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dependencies (issue_id, depends_on_id, type, metadata, thread_id, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, dep.IssueID, dep.DependsOnID, dep.Type, dep.Metadata, dep.ThreadID, dep.CreatedAt, dep.CreatedBy)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return coreerr.Newf(coreerr.Conflict, "dependency %s -> %s already exists (at most one edge per pair, regardless of type)", dep.IssueID, dep.DependsOnID)
		}
		return fmt.Errorf("failed to add dependency: %w", err)
	}

	if dep.Type.IsBlockingFamily() {
		var cycleExists bool
		err = tx.QueryRowContext(ctx, `
			WITH RECURSIVE paths AS (
				SELECT issue_id, depends_on_id, 1 as depth
				FROM dependencies
				WHERE type IN (`+blockingTypeList+`) AND issue_id = ?

				UNION ALL

				SELECT d.issue_id, d.depends_on_id, p.depth + 1
				FROM dependencies d
				JOIN paths p ON d.issue_id = p.depends_on_id
				WHERE d.type IN (`+blockingTypeList+`) AND p.depth < 100
			)
			SELECT EXISTS(SELECT 1 FROM paths WHERE depends_on_id = ?)
		`, dep.DependsOnID, dep.IssueID).Scan(&cycleExists)
		if err != nil {
			return fmt.Errorf("failed to check for cycles: %w", err)
		}
		if cycleExists {
			return coreerr.Newf(coreerr.CycleDetected, "cannot add dependency: would create a cycle (%s -> %s -> ... -> %s)",
				dep.IssueID, dep.DependsOnID, dep.IssueID)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, comment)
		VALUES (?, ?, ?, ?)
	`, dep.IssueID, types.EventDependencyAdded, actor,
		fmt.Sprintf("Added dependency: %s %s %s", dep.IssueID, dep.Type, dep.DependsOnID))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	dirtyIDs := []string{dep.IssueID}
	if !types.IsExternalSentinel(dep.DependsOnID) {
		dirtyIDs = append(dirtyIDs, dep.DependsOnID)
	}
	if err := markIssuesDirtyTx(ctx, tx, dirtyIDs); err != nil {
		return err
	}

	if dep.Type.IsBlockingFamily() {
		if err := s.rebuildBlockedCache(ctx, tx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RemoveDependency removes every dependency edge between issueID and
// dependsOnID, regardless of type.
func (s *SQLiteStorage) RemoveDependency(ctx context.Context, issueID, dependsOnID string, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?
	`, issueID, dependsOnID)
	if err != nil {
		return fmt.Errorf("failed to remove dependency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coreerr.Newf(coreerr.NotFound, "no dependency from %s to %s", issueID, dependsOnID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, comment)
		VALUES (?, ?, ?, ?)
	`, issueID, types.EventDependencyRemoved, actor,
		fmt.Sprintf("Removed dependency on %s", dependsOnID))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if err := markIssuesDirtyTx(ctx, tx, []string{issueID, dependsOnID}); err != nil {
		return err
	}

	// The removed edge's type isn't known here without an extra lookup, and
	// a spurious rebuild is cheap next to a stale blocked cache, so always
	// refresh rather than re-querying dependencies to check IsBlockingFamily.
	if err := s.rebuildBlockedCache(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// addDependencyUnchecked inserts a dependency edge without the existence,
// self-reference, parent-child direction, or cycle checks AddDependency
// performs. Used only to replay dependency edges whose semantics were
// already validated before an ID remap (import collision resolution,
// section 4.6).
func (s *SQLiteStorage) addDependencyUnchecked(ctx context.Context, dep *types.Dependency, actor string) error {
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now()
	}
	if dep.CreatedBy == "" {
		dep.CreatedBy = actor
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dependencies (issue_id, depends_on_id, type, metadata, thread_id, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, dep.IssueID, dep.DependsOnID, dep.Type, dep.Metadata, dep.ThreadID, dep.CreatedAt, dep.CreatedBy)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return coreerr.Newf(coreerr.Conflict, "dependency %s -> %s already exists (at most one edge per pair, regardless of type)", dep.IssueID, dep.DependsOnID)
		}
		return fmt.Errorf("failed to add dependency: %w", err)
	}

	dirtyIDs := []string{dep.IssueID}
	if !types.IsExternalSentinel(dep.DependsOnID) {
		dirtyIDs = append(dirtyIDs, dep.DependsOnID)
	}
	if err := markIssuesDirtyTx(ctx, tx, dirtyIDs); err != nil {
		return err
	}

	if dep.Type.IsBlockingFamily() {
		if err := s.rebuildBlockedCache(ctx, tx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// removeDependencyIfExists removes a dependency edge if present, treating a
// missing edge as success rather than a NotFound error.
func (s *SQLiteStorage) removeDependencyIfExists(ctx context.Context, issueID, dependsOnID string, actor string) error {
	err := s.RemoveDependency(ctx, issueID, dependsOnID, actor)
	if err != nil && coreerr.Is(err, coreerr.NotFound) {
		return nil
	}
	return err
}

// GetDependencies returns issues that issueID depends on.
func (s *SQLiteStorage) GetDependencies(ctx context.Context, issueID string) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedIssueColumns("i")+`
		FROM issues i
		JOIN dependencies d ON i.id = d.depends_on_id
		WHERE d.issue_id = ?
		ORDER BY i.priority ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer rows.Close()
	return scanIssueRows(rows)
}

// GetDependents returns issues that depend on issueID.
func (s *SQLiteStorage) GetDependents(ctx context.Context, issueID string) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedIssueColumns("i")+`
		FROM issues i
		JOIN dependencies d ON i.id = d.issue_id
		WHERE d.depends_on_id = ?
		ORDER BY i.priority ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependents: %w", err)
	}
	defer rows.Close()
	return scanIssueRows(rows)
}

// GetDependenciesWithMetadata returns issues that issueID depends on, each
// annotated with the type of the edge pointing at it.
func (s *SQLiteStorage) GetDependenciesWithMetadata(ctx context.Context, issueID string) ([]*types.DependencyEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedIssueColumns("i")+`, d.type
		FROM issues i
		JOIN dependencies d ON i.id = d.depends_on_id
		WHERE d.issue_id = ?
		ORDER BY i.priority ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer rows.Close()
	return scanDependencyEdgeRows(rows)
}

// GetDependentsWithMetadata returns issues that depend on issueID, each
// annotated with the type of the edge pointing back at issueID.
func (s *SQLiteStorage) GetDependentsWithMetadata(ctx context.Context, issueID string) ([]*types.DependencyEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedIssueColumns("i")+`, d.type
		FROM issues i
		JOIN dependencies d ON i.id = d.issue_id
		WHERE d.depends_on_id = ?
		ORDER BY i.priority ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependents: %w", err)
	}
	defer rows.Close()
	return scanDependencyEdgeRows(rows)
}

// GetDependencyRecords returns raw dependency records for an issue.
func (s *SQLiteStorage) GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, metadata, thread_id, created_at, created_by
		FROM dependencies
		WHERE issue_id = ?
		ORDER BY created_at ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency records: %w", err)
	}
	defer rows.Close()
	return scanDependencyRows(rows)
}

// GetAllDependencyRecords returns all dependency records grouped by issue ID.
// Optimized for bulk export to avoid N+1 queries.
func (s *SQLiteStorage) GetAllDependencyRecords(ctx context.Context) (map[string][]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, metadata, thread_id, created_at, created_by
		FROM dependencies
		ORDER BY issue_id, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all dependency records: %w", err)
	}
	defer rows.Close()

	deps, err := scanDependencyRows(rows)
	if err != nil {
		return nil, err
	}
	depsMap := make(map[string][]*types.Dependency)
	for _, dep := range deps {
		depsMap[dep.IssueID] = append(depsMap[dep.IssueID], dep)
	}
	return depsMap, nil
}

// GetDependencyCounts returns, for each of issueIDs, how many dependencies it
// has and how many other issues depend on it, across all dependency types.
func (s *SQLiteStorage) GetDependencyCounts(ctx context.Context, issueIDs []string) (map[string]*types.DependencyCounts, error) {
	counts := make(map[string]*types.DependencyCounts, len(issueIDs))
	if len(issueIDs) == 0 {
		return counts, nil
	}
	for _, id := range issueIDs {
		counts[id] = &types.DependencyCounts{}
	}

	placeholders := make([]string, len(issueIDs))
	args := make([]interface{}, len(issueIDs))
	for i, id := range issueIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ", ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, COUNT(*)
		FROM dependencies
		WHERE issue_id IN (`+inClause+`)
		GROUP BY issue_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count dependencies: %w", err)
	}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			rows.Close()
			return nil, err
		}
		counts[id].DependencyCount = n
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT depends_on_id, COUNT(*)
		FROM dependencies
		WHERE depends_on_id IN (`+inClause+`)
		GROUP BY depends_on_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count dependents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		if c, ok := counts[id]; ok {
			c.DependentCount = n
		}
	}

	return counts, nil
}

// GetDependencyTree walks the dependency graph from issueID, following
// depends_on_id edges by default or issue_id edges (reverse=true) to walk
// dependents instead. Nodes for external sentinels that have no issues row
// are synthesized with External=true rather than dropped. Revisiting the
// same node is suppressed unless showAllPaths requests every path.
func (s *SQLiteStorage) GetDependencyTree(ctx context.Context, issueID string, maxDepth int, showAllPaths bool, reverse bool) ([]*types.TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = 50
	}

	root, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get root issue: %w", err)
	}
	if root == nil {
		return nil, coreerr.Newf(coreerr.NotFound, "issue %s not found", issueID)
	}

	rootNode := &types.TreeNode{Issue: *root, Depth: 0}
	nodes := []*types.TreeNode{rootNode}
	visited := map[string]bool{issueID: true}

	type frontierEntry struct {
		id       string
		parentID string
		depth    int
	}
	frontier := []frontierEntry{{id: issueID, depth: 0}}

	for len(frontier) > 0 && frontier[0].depth < maxDepth {
		var next []frontierEntry
		for _, f := range frontier {
			var rows *sql.Rows
			var err error
			if reverse {
				rows, err = s.db.QueryContext(ctx, `SELECT issue_id FROM dependencies WHERE depends_on_id = ?`, f.id)
			} else {
				rows, err = s.db.QueryContext(ctx, `SELECT depends_on_id FROM dependencies WHERE issue_id = ?`, f.id)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to walk dependency tree: %w", err)
			}
			var edgeIDs []string
			for rows.Next() {
				var edgeID string
				if err := rows.Scan(&edgeID); err != nil {
					rows.Close()
					return nil, err
				}
				edgeIDs = append(edgeIDs, edgeID)
			}
			rows.Close()

			for _, edgeID := range edgeIDs {
				if !showAllPaths && visited[edgeID] {
					continue
				}
				visited[edgeID] = true

				childDepth := f.depth + 1
				if types.IsExternalSentinel(edgeID) {
					nodes = append(nodes, &types.TreeNode{
						Issue:     types.Issue{ID: edgeID},
						Depth:     childDepth,
						ParentID:  f.id,
						External:  true,
						Truncated: childDepth == maxDepth,
					})
					continue
				}

				issue, err := s.GetIssue(ctx, edgeID)
				if err != nil {
					return nil, fmt.Errorf("failed to get issue %s: %w", edgeID, err)
				}
				if issue == nil {
					continue
				}
				nodes = append(nodes, &types.TreeNode{
					Issue:     *issue,
					Depth:     childDepth,
					ParentID:  f.id,
					Truncated: childDepth == maxDepth,
				})
				next = append(next, frontierEntry{id: edgeID, parentID: f.id, depth: childDepth})
			}
		}
		frontier = next
	}

	return nodes, nil
}

// DetectCycles finds circular dependencies among blocking-family edges and
// returns the actual cycle paths.
func (s *SQLiteStorage) DetectCycles(ctx context.Context) ([][]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE paths AS (
			SELECT
				issue_id,
				depends_on_id,
				issue_id as start_id,
				issue_id || '->' || depends_on_id as path,
				0 as depth
			FROM dependencies
			WHERE type IN (`+blockingTypeList+`)

			UNION ALL

			SELECT
				d.issue_id,
				d.depends_on_id,
				p.start_id,
				p.path || '->' || d.depends_on_id,
				p.depth + 1
			FROM dependencies d
			JOIN paths p ON d.issue_id = p.depends_on_id
			WHERE d.type IN (`+blockingTypeList+`)
			  AND p.depth < 100
			  AND (d.depends_on_id = p.start_id OR p.path NOT LIKE '%' || d.depends_on_id || '->%')
		)
		SELECT DISTINCT path as cycle_path
		FROM paths
		WHERE depends_on_id = start_id
		ORDER BY cycle_path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to detect cycles: %w", err)
	}
	defer rows.Close()

	var cycles [][]*types.Issue
	seen := make(map[string]bool)

	for rows.Next() {
		var pathStr string
		if err := rows.Scan(&pathStr); err != nil {
			return nil, err
		}
		if seen[pathStr] {
			continue
		}
		seen[pathStr] = true

		issueIDs := strings.Split(pathStr, "->")
		if len(issueIDs) > 1 && issueIDs[0] == issueIDs[len(issueIDs)-1] {
			issueIDs = issueIDs[:len(issueIDs)-1]
		}

		var cycleIssues []*types.Issue
		for _, issueID := range issueIDs {
			issue, err := s.GetIssue(ctx, issueID)
			if err != nil {
				return nil, fmt.Errorf("failed to get issue %s: %w", issueID, err)
			}
			if issue != nil {
				cycleIssues = append(cycleIssues, issue)
			}
		}
		if len(cycleIssues) > 0 {
			cycles = append(cycles, cycleIssues)
		}
	}

	return cycles, nil
}

// prefixedIssueColumns renders issueColumns with an explicit table alias, for
// queries that JOIN issues against another table.
func prefixedIssueColumns(alias string) string {
	cols := strings.Split(strings.ReplaceAll(strings.TrimSpace(issueColumns), "\n", " "), ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// scanIssueRows scans a result set shaped like issueColumns into Issues.
func scanIssueRows(rows *sql.Rows) ([]*types.Issue, error) {
	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// extraColScanner adapts a *sql.Rows so scanIssue can be reused when the
// query selects one trailing column beyond issueColumns.
type extraColScanner struct {
	rows  *sql.Rows
	extra interface{}
}

func (e *extraColScanner) Scan(dest ...interface{}) error {
	return e.rows.Scan(append(dest, e.extra)...)
}

// scanDependencyEdgeRows scans rows shaped like prefixedIssueColumns plus a
// trailing dependency type column into DependencyEdges.
func scanDependencyEdgeRows(rows *sql.Rows) ([]*types.DependencyEdge, error) {
	var edges []*types.DependencyEdge
	for rows.Next() {
		var depType types.DependencyType
		issue, err := scanIssue(&extraColScanner{rows: rows, extra: &depType})
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency edge: %w", err)
		}
		edges = append(edges, &types.DependencyEdge{Issue: *issue, DependencyType: depType})
	}
	return edges, rows.Err()
}

// scanDependencyRows scans rows shaped (issue_id, depends_on_id, type,
// metadata, thread_id, created_at, created_by) into Dependencies.
func scanDependencyRows(rows *sql.Rows) ([]*types.Dependency, error) {
	var deps []*types.Dependency
	for rows.Next() {
		var dep types.Dependency
		var metadata, threadID sql.NullString
		err := rows.Scan(
			&dep.IssueID,
			&dep.DependsOnID,
			&dep.Type,
			&metadata,
			&threadID,
			&dep.CreatedAt,
			&dep.CreatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if metadata.Valid {
			dep.Metadata = &metadata.String
		}
		if threadID.Valid {
			dep.ThreadID = &threadID.String
		}
		deps = append(deps, &dep)
	}
	return deps, rows.Err()
}
