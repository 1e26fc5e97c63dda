package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/beads-core/beads/internal/types"
)

// querier is satisfied by *sql.DB, *sql.Tx, and *sql.Conn alike.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var builtinStatuses = map[types.Status]bool{
	types.StatusOpen:       true,
	types.StatusInProgress: true,
	types.StatusBlocked:    true,
	types.StatusDeferred:   true,
	types.StatusClosed:     true,
	types.StatusTombstone:  true,
	types.StatusPinned:     true,
}

var builtinKinds = map[types.IssueType]bool{
	types.TypeTask:     true,
	types.TypeBug:      true,
	types.TypeFeature:  true,
	types.TypeEpic:     true,
	types.TypeChore:    true,
	types.TypeDocs:     true,
	types.TypeQuestion: true,
}

// customValueSet reads a comma-separated allow-list from the config table.
func customValueSet(ctx context.Context, conn querier, key string) (map[string]bool, error) {
	var raw string
	err := conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			set[v] = true
		}
	}
	return set, nil
}

// isKnownStatus reports whether status is a built-in or a workspace-declared
// custom status (config key "custom_statuses", comma-separated; section 9).
func isKnownStatus(ctx context.Context, conn querier, status types.Status) (bool, error) {
	if builtinStatuses[status] {
		return true, nil
	}
	custom, err := customValueSet(ctx, conn, "custom_statuses")
	if err != nil {
		return false, err
	}
	return custom[string(status)], nil
}

// isKnownKind reports whether kind is a built-in or a workspace-declared
// custom kind (config key "custom_kinds", comma-separated; section 9).
func isKnownKind(ctx context.Context, conn querier, kind types.IssueType) (bool, error) {
	if builtinKinds[kind] {
		return true, nil
	}
	custom, err := customValueSet(ctx, conn, "custom_kinds")
	if err != nil {
		return false, err
	}
	return custom[string(kind)], nil
}

// validatePriority validates a priority value.
func validatePriority(value interface{}) error {
	if priority, ok := value.(int); ok {
		if priority < 0 || priority > 4 {
			return fmt.Errorf("priority must be between 0 and 4 (got %d)", priority)
		}
	}
	return nil
}

// validateTitle validates a title value.
func validateTitle(value interface{}) error {
	if title, ok := value.(string); ok {
		if len(strings.TrimSpace(title)) == 0 || len(title) > 500 {
			return fmt.Errorf("title must be 1-500 characters")
		}
	}
	return nil
}

// validateEstimatedMinutes validates an estimated_minutes value.
func validateEstimatedMinutes(value interface{}) error {
	if mins, ok := value.(int); ok {
		if mins < 0 {
			return fmt.Errorf("estimated_minutes cannot be negative")
		}
	}
	return nil
}

// fieldValidators maps field names to their static (db-independent) validation
// functions. status and issue_type are validated separately, against the
// config-driven custom sets, because that check needs a connection.
var fieldValidators = map[string]func(interface{}) error{
	"priority":          validatePriority,
	"title":             validateTitle,
	"estimated_minutes": validateEstimatedMinutes,
}

// validateFieldUpdate validates a field update value.
func validateFieldUpdate(key string, value interface{}) error {
	if validator, ok := fieldValidators[key]; ok {
		return validator(value)
	}
	return nil
}

// allowedUpdateFields whitelists fields settable through UpdateIssue, to
// prevent the dynamic SET clause from admitting arbitrary column names.
var allowedUpdateFields = map[string]bool{
	"status":              true,
	"priority":            true,
	"title":               true,
	"assignee":            true,
	"owner":               true,
	"description":         true,
	"design":              true,
	"acceptance_criteria": true,
	"notes":               true,
	"issue_type":          true,
	"estimated_minutes":   true,
	"external_ref":        true,
	"source_system":       true,
	"due_at":              true,
	"defer_until":         true,
	"close_reason":        true,
	"closed_by_session":   true,
	"pinned":              true,
	"is_template":         true,
	"ephemeral":           true,
}
