// Package utils provides utility functions for issue ID parsing and resolution.
package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/beads-core/beads/internal/storage"
	"github.com/beads-core/beads/internal/types"
)

// ParseIssueID ensures an issue ID has the configured prefix.
// If the input already has the prefix (e.g., "bd-a3f8e9"), returns it as-is.
// If the input lacks the prefix (e.g., "a3f8e9"), adds the configured prefix.
// Works with hierarchical IDs too: "a3f8e9.1.2" → "bd-a3f8e9.1.2"
func ParseIssueID(input string, prefix string) string {
	if prefix == "" {
		prefix = "bd-"
	}
	
	if strings.HasPrefix(input, prefix) {
		return input
	}
	
	return prefix + input
}

// ResolvePartialID resolves a potentially partial issue ID to a full ID.
// Supports:
// - Full IDs: "bd-a3f8e9" or "a3f8e9" → "bd-a3f8e9"
// - Partial IDs: "a3f8" → "bd-a3f8e9" (if unique match, requires hash IDs)
// - Hierarchical: "a3f8e9.1" → "bd-a3f8e9.1"
//
// Returns an error if:
// - No issue found matching the ID
// - Multiple issues match (ambiguous prefix)
//
// Note: Partial ID matching (shorter prefixes) requires hash-based IDs (bd-165).
// For now, this primarily handles prefix-optional input (bd-a3f8e9 vs a3f8e9).
func ResolvePartialID(ctx context.Context, store storage.Storage, input string) (string, error) {
	// Get the configured prefix
	prefix, err := store.GetConfig(ctx, "issue_prefix")
	if err != nil || prefix == "" {
		prefix = "bd-"
	}
	
	// Ensure the input has the prefix
	parsedID := ParseIssueID(input, prefix)
	
	// First try exact match
	_, err = store.GetIssue(ctx, parsedID)
	if err == nil {
		return parsedID, nil
	}
	
	// If exact match failed, try prefix search
	filter := types.IssueFilter{}
	
	issues, err := store.SearchIssues(ctx, "", filter)
	if err != nil {
		return "", fmt.Errorf("failed to search issues: %w", err)
	}
	
	var matches []string
	for _, issue := range issues {
		if strings.HasPrefix(issue.ID, parsedID) {
			matches = append(matches, issue.ID)
		}
	}
	
	if len(matches) == 0 {
		return "", fmt.Errorf("no issue found matching %q", input)
	}
	
	if len(matches) > 1 {
		return "", fmt.Errorf("ambiguous ID %q matches %d issues: %v\nUse more characters to disambiguate", input, len(matches), matches)
	}
	
	return matches[0], nil
}

// ResolveID resolves user input to a full issue ID via the ordered cascade of
// section 4.1: exact match; prefix-normalized exact match; exact match of the
// hash portion across prefixes; substring match. Tombstones are excluded from
// substring disambiguation. Multiple candidates at any scanning stage fail
// with an ambiguity error listing them.
func ResolveID(ctx context.Context, store storage.Storage, input string) (string, error) {
	if issue, err := store.GetIssue(ctx, input); err == nil && issue != nil {
		return input, nil
	}

	prefix, err := store.GetConfig(ctx, "issue_prefix")
	if err != nil || prefix == "" {
		prefix = "bd-"
	}
	parsedID := ParseIssueID(input, prefix)
	if parsedID != input {
		if issue, _ := store.GetIssue(ctx, parsedID); issue != nil {
			return parsedID, nil
		}
	}

	issues, err := store.SearchIssues(ctx, "", types.IssueFilter{})
	if err != nil {
		return "", fmt.Errorf("failed to search issues: %w", err)
	}

	hashPart := input
	if idx := strings.LastIndex(input, "-"); idx >= 0 {
		hashPart = input[idx+1:]
	}

	var hashMatches []string
	for _, issue := range issues {
		if hashSuffix(issue.ID) == hashPart {
			hashMatches = append(hashMatches, issue.ID)
		}
	}
	if len(hashMatches) == 1 {
		return hashMatches[0], nil
	}
	if len(hashMatches) > 1 {
		return "", fmt.Errorf("ambiguous ID %q matches %d issues: %v\nUse more characters to disambiguate", input, len(hashMatches), hashMatches)
	}

	var substrMatches []string
	for _, issue := range issues {
		if issue.Status == types.StatusTombstone {
			continue
		}
		if strings.Contains(issue.ID, input) {
			substrMatches = append(substrMatches, issue.ID)
		}
	}
	if len(substrMatches) == 0 {
		return "", fmt.Errorf("no issue found matching %q", input)
	}
	if len(substrMatches) > 1 {
		return "", fmt.Errorf("ambiguous ID %q matches %d issues: %v\nUse more characters to disambiguate", input, len(substrMatches), substrMatches)
	}
	return substrMatches[0], nil
}

// hashSuffix returns the portion of an issue ID after its last hyphen, the
// hash/number segment that identifies it within its prefix.
func hashSuffix(issueID string) string {
	idx := strings.LastIndex(issueID, "-")
	if idx < 0 {
		return issueID
	}
	return issueID[idx+1:]
}

// ResolvePartialIDs resolves multiple potentially partial issue IDs.
// Returns the resolved IDs and any errors encountered.
func ResolvePartialIDs(ctx context.Context, store storage.Storage, inputs []string) ([]string, error) {
	var resolved []string
	for _, input := range inputs {
		fullID, err := ResolvePartialID(ctx, store, input)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, fullID)
	}
	return resolved, nil
}
