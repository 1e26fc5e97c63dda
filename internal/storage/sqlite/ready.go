package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/beads-core/beads/internal/types"
)

// GetReadyWork returns issues with no open blockers
// By default, shows both 'open' and 'in_progress' issues so epics/tasks
// ready to close are visible (bd-165)
func (s *SQLiteStorage) GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	whereClauses := []string{}
	args := []interface{}{}

	// Default to open OR in_progress if not specified (bd-165)
	if filter.Status == "" {
		whereClauses = append(whereClauses, "i.status IN ('open', 'in_progress')")
	} else {
		whereClauses = append(whereClauses, "i.status = ?")
		args = append(args, filter.Status)
	}

	if filter.Priority != nil {
		whereClauses = append(whereClauses, "i.priority = ?")
		args = append(args, *filter.Priority)
	}

	if filter.Assignee != nil {
		whereClauses = append(whereClauses, "i.assignee = ?")
		args = append(args, *filter.Assignee)
	}

	// Build WHERE clause properly
	whereSQL := strings.Join(whereClauses, " AND ")

	// Build LIMIT clause using parameter
	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, filter.Limit)
	}

	// Default to hybrid sort for backwards compatibility
	sortPolicy := filter.SortPolicy
	if sortPolicy == "" {
		sortPolicy = types.SortPolicyHybrid
	}
	orderBySQL := buildOrderByClause(sortPolicy)

	// Readiness is a NOT EXISTS check against the materialized
	// blocked_issues_cache (section 4.4) rather than a live recursive CTE;
	// the cache is kept current by every mutation that can change it.
	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT `+prefixedIssueColumns("i")+`
		FROM issues i
		WHERE %s
		AND i.status != '`+string(types.StatusTombstone)+`'
		AND (i.defer_until IS NULL OR i.defer_until <= CURRENT_TIMESTAMP)
		AND i.pinned = 0
		AND i.ephemeral = 0
		AND NOT EXISTS (
			SELECT 1 FROM blocked_issues_cache WHERE issue_id = i.id
		)
		%s
		%s
	`, whereSQL, orderBySQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready work: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanIssueRows(rows)
}

// GetBlockedIssues returns issues that are blocked by dependencies
func (s *SQLiteStorage) GetBlockedIssues(ctx context.Context) ([]*types.BlockedIssue, error) {
	// Use GROUP_CONCAT to get all blocker IDs in a single query (no N+1)
	// blocked_issues_cache.blocked_by_count/blocked_by record only the direct
	// blockers for an issue; a purely inherited (parent-is-blocked) entry has
	// count 0 and an empty blocker list, same as the pre-cache query.
	rows, err := s.db.QueryContext(ctx, `
		SELECT
		    i.id, i.title, i.description, i.design, i.acceptance_criteria, i.notes,
		    i.status, i.priority, i.issue_type, i.assignee, i.estimated_minutes,
		    i.created_at, i.updated_at, i.closed_at, i.external_ref,
		    c.blocked_by_count, c.blocked_by
		FROM issues i
		JOIN blocked_issues_cache c ON c.issue_id = i.id
		WHERE i.status IN ('open', 'in_progress', 'blocked')
		ORDER BY i.priority ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocked issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var blocked []*types.BlockedIssue
	for rows.Next() {
		var issue types.BlockedIssue
		var closedAt sql.NullTime
		var estimatedMinutes sql.NullInt64
		var assignee sql.NullString
		var externalRef sql.NullString
		var blockerIDsStr string

		err := rows.Scan(
			&issue.ID, &issue.Title, &issue.Description, &issue.Design,
			&issue.AcceptanceCriteria, &issue.Notes, &issue.Status,
			&issue.Priority, &issue.IssueType, &assignee, &estimatedMinutes,
			&issue.CreatedAt, &issue.UpdatedAt, &closedAt, &externalRef, &issue.BlockedByCount,
			&blockerIDsStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocked issue: %w", err)
		}

		if closedAt.Valid {
			issue.ClosedAt = &closedAt.Time
		}
		if estimatedMinutes.Valid {
			mins := int(estimatedMinutes.Int64)
			issue.EstimatedMinutes = &mins
		}
		if assignee.Valid {
			issue.Assignee = assignee.String
		}
		if externalRef.Valid {
			issue.ExternalRef = &externalRef.String
		}

		// Parse comma-separated blocker IDs
		if blockerIDsStr != "" {
			issue.BlockedBy = strings.Split(blockerIDsStr, ",")
		}

		blocked = append(blocked, &issue)
	}

	return blocked, nil
}

// GetEpicsEligibleForClosure returns every open epic whose parent-child
// children are all closed (section 4.5): a caller can then close the epic
// without leaving behind unfinished descendants.
func (s *SQLiteStorage) GetEpicsEligibleForClosure(ctx context.Context) ([]*types.EpicStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH epic_children AS (
			SELECT d.depends_on_id AS epic_id, i.status AS child_status
			FROM dependencies d
			JOIN issues i ON i.id = d.issue_id
			WHERE d.type = 'parent-child'
		),
		epic_stats AS (
			SELECT
				epic_id,
				COUNT(*) AS total_children,
				SUM(CASE WHEN child_status = 'closed' THEN 1 ELSE 0 END) AS closed_children
			FROM epic_children
			GROUP BY epic_id
		)
		SELECT i.id, es.total_children, es.closed_children
		FROM issues i
		JOIN epic_stats es ON es.epic_id = i.id
		WHERE i.issue_type = 'epic'
		  AND i.status != 'closed'
		  AND es.total_children > 0
		  AND es.closed_children = es.total_children
		ORDER BY i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible epics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	var totals, closed []int
	for rows.Next() {
		var id string
		var total, closedCount int
		if err := rows.Scan(&id, &total, &closedCount); err != nil {
			return nil, fmt.Errorf("failed to scan epic status: %w", err)
		}
		ids = append(ids, id)
		totals = append(totals, total)
		closed = append(closed, closedCount)
	}

	var statuses []*types.EpicStatus
	for i, id := range ids {
		epic, err := s.GetIssue(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get epic %s: %w", id, err)
		}
		if epic == nil {
			continue
		}
		statuses = append(statuses, &types.EpicStatus{
			Epic:             epic,
			TotalChildren:    totals[i],
			ClosedChildren:   closed[i],
			EligibleForClose: true,
		})
	}

	return statuses, nil
}

// GetStaleIssues returns active issues that haven't been touched since
// filter.OlderThan (section 4.5).
func (s *SQLiteStorage) GetStaleIssues(ctx context.Context, filter types.StaleFilter) ([]*types.Issue, error) {
	whereClauses := []string{"i.updated_at < ?", "i.status != ?"}
	args := []interface{}{filter.OlderThan, string(types.StatusTombstone)}

	if filter.Status != nil {
		whereClauses = append(whereClauses, "i.status = ?")
		args = append(args, string(*filter.Status))
	} else {
		whereClauses = append(whereClauses, "i.status IN ('open', 'in_progress', 'blocked')")
	}

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = " LIMIT ?"
		args = append(args, filter.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM issues i
		WHERE %s
		ORDER BY i.updated_at ASC
		%s
	`, prefixedIssueColumns("i"), strings.Join(whereClauses, " AND "), limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanIssueRows(rows)
}

// buildOrderByClause generates the ORDER BY clause based on sort policy
func buildOrderByClause(policy types.SortPolicy) string {
	switch policy {
	case types.SortPolicyPriority:
		return `ORDER BY i.priority ASC, i.created_at ASC`

	case types.SortPolicyOldest:
		return `ORDER BY i.created_at ASC`

	case types.SortPolicyHybrid:
		fallthrough
	default:
		// Partition into priority tier 0-1 (urgent) vs 2-4 (routine); within a
		// tier, order by created_at ascending (section 4.4).
		return `ORDER BY
			CASE WHEN i.priority <= 1 THEN 0 ELSE 1 END ASC,
			i.created_at ASC`
	}
}
