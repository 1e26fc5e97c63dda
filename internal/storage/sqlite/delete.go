package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/beads-core/beads/internal/coreerr"
	"github.com/beads-core/beads/internal/types"
)

// DeleteIssue soft-deletes an issue: it moves to StatusTombstone, preserving
// original_kind so it can be restored, and is excluded from ordinary queries
// thereafter (section 4.6). Hard-deleting is reserved for never-exported
// ephemeral issues; see HardDeleteIssue.
func (s *SQLiteStorage) DeleteIssue(ctx context.Context, id, reason, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status, issueType string
	err = tx.QueryRowContext(ctx, `SELECT status, issue_type FROM issues WHERE id = ?`, id).Scan(&status, &issueType)
	if err == sql.ErrNoRows {
		return coreerr.Newf(coreerr.NotFound, "issue %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load issue: %w", err)
	}
	if status == string(types.StatusTombstone) {
		return coreerr.Newf(coreerr.Conflict, "issue %s is already a tombstone", id)
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE issues
		SET status = ?, original_kind = ?, deleted_at = ?, deleted_by = ?, delete_reason = ?, updated_at = ?
		WHERE id = ?
	`, types.StatusTombstone, issueType, now, actor, nullableString(reason), now, id)
	if err != nil {
		return fmt.Errorf("failed to tombstone issue: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, comment)
		VALUES (?, ?, ?, ?)
	`, id, types.EventDeleted, actor, reason)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if err := markIssuesDirtyTx(ctx, tx, []string{id}); err != nil {
		return fmt.Errorf("failed to mark issue dirty: %w", err)
	}

	if err := s.rebuildBlockedCache(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// RestoreIssue reverses a soft delete, returning the issue to its
// original_kind and to StatusOpen.
func (s *SQLiteStorage) RestoreIssue(ctx context.Context, id, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status, originalKind sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT status, original_kind FROM issues WHERE id = ?`, id).Scan(&status, &originalKind)
	if err == sql.ErrNoRows {
		return coreerr.Newf(coreerr.NotFound, "issue %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load issue: %w", err)
	}
	if status.String != string(types.StatusTombstone) {
		return coreerr.Newf(coreerr.Conflict, "issue %s is not a tombstone", id)
	}

	kind := originalKind.String
	if kind == "" {
		kind = string(types.TypeTask)
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE issues
		SET status = ?, issue_type = ?, original_kind = NULL,
		    deleted_at = NULL, deleted_by = NULL, delete_reason = NULL, updated_at = ?
		WHERE id = ?
	`, types.StatusOpen, kind, now, id)
	if err != nil {
		return fmt.Errorf("failed to restore issue: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor)
		VALUES (?, ?, ?)
	`, id, types.EventRestored, actor)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if err := markIssuesDirtyTx(ctx, tx, []string{id}); err != nil {
		return fmt.Errorf("failed to mark issue dirty: %w", err)
	}

	if err := s.rebuildBlockedCache(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// deleteEphemeralIfUnexported hard-deletes id only if it is ephemeral and has
// never been exported (no export_hashes row), per the ephemeral-issue
// lifecycle (section 4.6). Returns false, nil if the issue was left alone.
func (s *SQLiteStorage) deleteEphemeralIfUnexported(ctx context.Context, id string) (bool, error) {
	var ephemeral bool
	err := s.db.QueryRowContext(ctx, `SELECT ephemeral FROM issues WHERE id = ?`, id).Scan(&ephemeral)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !ephemeral {
		return false, nil
	}

	var exported int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM export_hashes WHERE issue_id = ?`, id).Scan(&exported); err != nil {
		return false, err
	}
	if exported > 0 {
		return false, nil
	}

	if err := s.HardDeleteIssue(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}
