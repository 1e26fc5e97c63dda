package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/beads-core/beads/internal/types"
)

// ValidateIssueIDPrefix validates that an issue ID matches the configured prefix.
// Supports both top-level (bd-a3f8e9) and hierarchical (bd-a3f8e9.1) IDs.
func ValidateIssueIDPrefix(id, prefix string) error {
	expectedPrefix := prefix + "-"
	if !strings.HasPrefix(id, expectedPrefix) {
		return fmt.Errorf("issue ID '%s' does not match configured prefix '%s'", id, prefix)
	}
	return nil
}

const maxHashLen = 8

// GenerateIssueID generates a unique base36 hash-based ID for an issue.
// Uses adaptive length based on database size and tries multiple nonces on collision.
func GenerateIssueID(ctx context.Context, conn *sql.Conn, prefix, workspaceID string, issue *types.Issue, actor string) (string, error) {
	baseLength, err := GetAdaptiveIDLength(ctx, conn, prefix)
	if err != nil {
		baseLength = 6
	}
	maxLength := maxHashLen
	if baseLength > maxLength {
		baseLength = maxLength
	}

	for length := baseLength; length <= maxLength; length++ {
		for nonce := 0; nonce < 10; nonce++ {
			candidate := generateHashID(prefix, issue.Title, issue.Description, actor, issue.CreatedAt, workspaceID, length, nonce)

			var count int
			err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, candidate).Scan(&count)
			if err != nil {
				return "", fmt.Errorf("failed to check for ID collision: %w", err)
			}
			if count == 0 {
				return candidate, nil
			}
		}
	}

	// Final fallback: a 16-char ID with nonce 0, returned without a collision check.
	candidate := generateHashID(prefix, issue.Title, issue.Description, actor, issue.CreatedAt, workspaceID, 16, 0)
	return candidate, nil
}

// GenerateBatchIssueIDs generates unique IDs for multiple issues in a single batch.
// Tracks used IDs to prevent intra-batch collisions.
func GenerateBatchIssueIDs(ctx context.Context, conn *sql.Conn, prefix, workspaceID string, issues []*types.Issue, actor string, usedIDs map[string]bool) error {
	baseLength, err := GetAdaptiveIDLength(ctx, conn, prefix)
	if err != nil {
		baseLength = 6
	}
	maxLength := maxHashLen
	if baseLength > maxLength {
		baseLength = maxLength
	}

	for i := range issues {
		if issues[i].ID != "" {
			continue
		}
		var generated bool
		for length := baseLength; length <= maxLength && !generated; length++ {
			for nonce := 0; nonce < 10; nonce++ {
				candidate := generateHashID(prefix, issues[i].Title, issues[i].Description, actor, issues[i].CreatedAt, workspaceID, length, nonce)
				if usedIDs[candidate] {
					continue
				}
				var count int
				err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, candidate).Scan(&count)
				if err != nil {
					return fmt.Errorf("failed to check for ID collision: %w", err)
				}
				if count == 0 {
					issues[i].ID = candidate
					usedIDs[candidate] = true
					generated = true
					break
				}
			}
		}
		if !generated {
			return fmt.Errorf("failed to generate unique ID for issue %d after trying lengths %d-%d with 10 nonces each", i, baseLength, maxLength)
		}
	}
	return nil
}

// EnsureIDs generates or validates IDs for issues.
// For issues with empty IDs, generates unique hash-based IDs.
// For issues with existing IDs, validates they match the prefix and parent exists (if hierarchical).
func EnsureIDs(ctx context.Context, conn *sql.Conn, prefix, workspaceID string, issues []*types.Issue, actor string) error {
	usedIDs := make(map[string]bool)

	for i := range issues {
		if issues[i].ID == "" {
			continue
		}
		if err := ValidateIssueIDPrefix(issues[i].ID, prefix); err != nil {
			return err
		}
		if strings.Contains(issues[i].ID, ".") {
			lastDot := strings.LastIndex(issues[i].ID, ".")
			parentID := issues[i].ID[:lastDot]

			var parentCount int
			err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, parentID).Scan(&parentCount)
			if err != nil {
				return fmt.Errorf("failed to check parent existence: %w", err)
			}
			if parentCount == 0 {
				return fmt.Errorf("parent issue %s does not exist", parentID)
			}
		}
		usedIDs[issues[i].ID] = true
	}

	return GenerateBatchIssueIDs(ctx, conn, prefix, workspaceID, issues, actor, usedIDs)
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// encodeBase36 renders data as a base36 string of exactly length characters,
// left-padding with the alphabet's zero symbol if the numeric value is short.
func encodeBase36(data []byte, length int) string {
	n := new(big.Int).SetBytes(data)
	base := big.NewInt(36)
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, base36Alphabet[mod.Int64()])
	}
	// out is least-significant-digit first; reverse it.
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	if len(out) >= length {
		return string(out[len(out)-length:])
	}
	pad := strings.Repeat("0", length-len(out))
	return pad + string(out)
}

const defaultHierarchyMaxDepth = 3

// hierarchyDepth returns the nesting depth of id: a top-level issue (no dot)
// is depth 0, "bd-a3f8e9.1" is depth 1, "bd-a3f8e9.1.1" is depth 2, and so on.
func hierarchyDepth(id string) int {
	return strings.Count(id, ".")
}

// getHierarchyMaxDepth reads the workspace-configured max depth (config key
// "hierarchy_max_depth"), falling back to defaultHierarchyMaxDepth.
func getHierarchyMaxDepth(ctx context.Context, conn querier) int {
	var raw string
	err := conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, "hierarchy_max_depth").Scan(&raw)
	if err != nil {
		return defaultHierarchyMaxDepth
	}
	var depth int
	if _, err := fmt.Sscanf(raw, "%d", &depth); err != nil || depth <= 0 {
		return defaultHierarchyMaxDepth
	}
	return depth
}

// GetNextChildID allocates the next sequential child ID under parentID, e.g.
// "bd-a3f8e9" -> "bd-a3f8e9.1", "bd-a3f8e9.2", ... Depth is capped at the
// workspace's hierarchy_max_depth (section 4.2); exceeding it is an error.
func (s *SQLiteStorage) GetNextChildID(ctx context.Context, parentID string) (string, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, parentID).Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to check parent existence: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("parent issue %s does not exist", parentID)
	}

	maxDepth := getHierarchyMaxDepth(ctx, s.db)
	childDepth := hierarchyDepth(parentID) + 1
	if childDepth > maxDepth {
		return "", fmt.Errorf("maximum hierarchy depth (%d) exceeded for parent %s", maxDepth, parentID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lastChild int
	err = tx.QueryRowContext(ctx, `SELECT last_child FROM child_counters WHERE parent_id = ?`, parentID).Scan(&lastChild)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to read child counter: %w", err)
	}
	next := lastChild + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO child_counters (parent_id, last_child) VALUES (?, ?)
		ON CONFLICT (parent_id) DO UPDATE SET last_child = excluded.last_child
	`, parentID, next)
	if err != nil {
		return "", fmt.Errorf("failed to update child counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit child counter update: %w", err)
	}

	return fmt.Sprintf("%s.%d", parentID, next), nil
}

// generateHashID creates a base36 hash-based ID for a top-level issue.
// Includes workspace_id so two independently-created workspaces importing
// into a shared store don't collide on identical content (section 4.1).
// The nonce parameter handles same-length collisions at a given length.
func generateHashID(prefix, title, description, creator string, timestamp time.Time, workspaceID string, length, nonce int) string {
	content := fmt.Sprintf("%s|%s|%s|%d|%d|%s", title, description, creator, timestamp.UnixNano(), nonce, workspaceID)
	hash := sha256.Sum256([]byte(content))
	shortHash := encodeBase36(hash[:], length)
	return fmt.Sprintf("%s-%s", prefix, shortHash)
}
