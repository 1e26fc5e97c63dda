package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/beads-core/beads/internal/types"
)

const insertIssueSQL = `
	INSERT INTO issues (
		id, content_hash, title, description, design, acceptance_criteria, notes,
		status, priority, issue_type, assignee, owner, created_by, estimated_minutes,
		created_at, updated_at, closed_at, close_reason, closed_by_session,
		due_at, defer_until, external_ref, source_system,
		deleted_at, deleted_by, delete_reason, original_kind,
		pinned, is_template, ephemeral
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func issueArgs(issue *types.Issue) []interface{} {
	return []interface{}{
		issue.ID, issue.ContentHash, issue.Title, issue.Description, issue.Design,
		issue.AcceptanceCriteria, issue.Notes,
		issue.Status, issue.Priority, issue.IssueType, nullableString(issue.Assignee),
		nullableString(issue.Owner), nullableString(issue.CreatedBy), issue.EstimatedMinutes,
		issue.CreatedAt, issue.UpdatedAt, issue.ClosedAt, nullableString(issue.CloseReason),
		nullableString(issue.ClosedBySession),
		issue.DueAt, issue.DeferUntil, issue.ExternalRef, nullableString(issue.SourceSystem),
		issue.DeletedAt, nullableString(issue.DeletedBy), nullableString(issue.DeleteReason),
		nullableString(issue.OriginalKind),
		issue.Pinned, issue.IsTemplate, issue.Ephemeral,
	}
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// insertIssue inserts a single issue into the database.
func insertIssue(ctx context.Context, conn *sql.Conn, issue *types.Issue) error {
	if _, err := conn.ExecContext(ctx, insertIssueSQL, issueArgs(issue)...); err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	return nil
}

// insertIssues bulk inserts multiple issues using a prepared statement.
func insertIssues(ctx context.Context, conn *sql.Conn, issues []*types.Issue) error {
	stmt, err := conn.PrepareContext(ctx, insertIssueSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, issue := range issues {
		if _, err := stmt.ExecContext(ctx, issueArgs(issue)...); err != nil {
			return fmt.Errorf("failed to insert issue %s: %w", issue.ID, err)
		}
	}
	return nil
}
