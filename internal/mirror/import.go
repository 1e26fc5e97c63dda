package mirror

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/beads-core/beads/internal/types"
)

// mergeMarkers are the line prefixes that indicate an unresolved version-
// control merge conflict (section 4.6, "Merge-marker rejection").
var mergeMarkers = []string{"<<<<<<<", "=======", ">>>>>>>"}

// ReadMirror parses a JSONL mirror file into issues, in file order. It
// rejects the whole file (no partial read) if any line begins with a merge
// conflict marker, if any line is invalid JSON, or if the batch contains a
// duplicate ID — all three are corrupt_input failures per section 7.
func ReadMirror(path string) ([]*types.Issue, error) {
	// #nosec G304 - path has already passed ValidatePath upstream
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var issues []*types.Issue
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		for _, marker := range mergeMarkers {
			if strings.HasPrefix(line, marker) {
				return nil, fmt.Errorf("corrupt_input: merge conflict marker in %s at line %d", path, lineNum)
			}
		}

		var issue types.Issue
		dec := json.NewDecoder(bytes.NewReader([]byte(line)))
		if err := dec.Decode(&issue); err != nil {
			return nil, fmt.Errorf("corrupt_input: invalid JSON in %s at line %d: %w", path, lineNum, err)
		}

		if seen[issue.ID] {
			return nil, fmt.Errorf("corrupt_input: duplicate id %q in %s at line %d", issue.ID, path, lineNum)
		}
		seen[issue.ID] = true

		issues = append(issues, &issue)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mirror %s: %w", path, err)
	}

	return issues, nil
}

// CountRecords exposes countRecords for callers that only need a count
// (e.g. a caller deciding whether a refusal applies before calling Export).
func CountRecords(path string) (int, error) {
	return countRecords(path)
}
