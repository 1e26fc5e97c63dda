package beads_test

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// TestTwoCloneConvergence simulates two independent workspaces that each
// create issues offline, then converge by exporting one side and importing
// it into the other (section 5's "manual or VCS-driven" sync model — there
// is no daemon or background sync here, only explicit export/import).
func TestTwoCloneConvergence(t *testing.T) {
	bdPath := requireBdBinary(t)

	tmpDir := t.TempDir()
	cloneA := filepath.Join(tmpDir, "clone-a")
	cloneB := filepath.Join(tmpDir, "clone-b")
	for _, dir := range []string{cloneA, cloneB} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
		copyFile(t, bdPath, filepath.Join(dir, "bd"))
	}

	runCmd(t, cloneA, "./bd", "init", "--prefix", "test")
	runCmd(t, cloneB, "./bd", "init", "--prefix", "test")

	runCmd(t, cloneA, "./bd", "create", "Issue from clone A", "--type", "task", "--priority", "1", "--json")
	runCmd(t, cloneB, "./bd", "create", "Issue from clone B", "--type", "task", "--priority", "1", "--json")

	// Both workspaces assign hash-based IDs independently, so the two
	// issues get distinct IDs even though created concurrently with no
	// coordination (section 2's collision-avoidance guarantee).
	runCmd(t, cloneA, "./bd", "export")
	runCmd(t, cloneB, "./bd", "export")

	mirrorA, err := os.ReadFile(filepath.Join(cloneA, ".beads", "issues.jsonl"))
	if err != nil {
		t.Fatalf("failed to read clone A mirror: %v", err)
	}
	mirrorB, err := os.ReadFile(filepath.Join(cloneB, ".beads", "issues.jsonl"))
	if err != nil {
		t.Fatalf("failed to read clone B mirror: %v", err)
	}

	// Converge: merge the two mirrors line-by-line (standing in for a VCS
	// merge of the textual mirror) and import the union into each side.
	merged := mergeLines(t, string(mirrorA), string(mirrorB))
	mergedPath := filepath.Join(tmpDir, "merged.jsonl")
	if err := os.WriteFile(mergedPath, []byte(merged), 0o600); err != nil {
		t.Fatalf("failed to write merged mirror: %v", err)
	}

	runCmd(t, cloneA, "./bd", "import", "-i", mergedPath)
	runCmd(t, cloneB, "./bd", "import", "-i", mergedPath)

	titlesA := listTitles(t, cloneA)
	titlesB := listTitles(t, cloneB)
	sort.Strings(titlesA)
	sort.Strings(titlesB)

	want := []string{"Issue from clone A", "Issue from clone B"}
	if strings.Join(titlesA, ",") != strings.Join(want, ",") {
		t.Errorf("clone A did not converge: got %v, want %v", titlesA, want)
	}
	if strings.Join(titlesB, ",") != strings.Join(want, ",") {
		t.Errorf("clone B did not converge: got %v, want %v", titlesB, want)
	}
}

func mergeLines(t *testing.T, a, b string) string {
	t.Helper()
	seen := make(map[string]bool)
	var out []string
	for _, line := range append(strings.Split(strings.TrimRight(a, "\n"), "\n"), strings.Split(strings.TrimRight(b, "\n"), "\n")...) {
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return strings.Join(out, "\n") + "\n"
}

func listTitles(t *testing.T, workdir string) []string {
	t.Helper()
	out := runCmdOutput(t, workdir, "./bd", "list", "--json")
	var issues []struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(out), &issues); err != nil {
		t.Fatalf("failed to parse list output: %v\noutput: %s", err, out)
	}
	titles := make([]string, 0, len(issues))
	for _, issue := range issues {
		titles = append(titles, issue.Title)
	}
	return titles
}

func requireBdBinary(t *testing.T) string {
	t.Helper()
	bdPath, err := filepath.Abs("./bd")
	if err != nil {
		t.Fatalf("failed to resolve bd path: %v", err)
	}
	if _, err := os.Stat(bdPath); err != nil {
		t.Skipf("bd binary not found at %s - run 'go build -o bd ./cmd/bd' first", bdPath)
	}
	return bdPath
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("failed to read %s: %v", src, err)
	}
	if err := os.WriteFile(dst, data, 0o755); err != nil {
		t.Fatalf("failed to write %s: %v", dst, err)
	}
}

func runCmd(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("command %s %v failed: %v\noutput: %s", name, args, err, out)
	}
}

func runCmdOutput(t *testing.T, dir string, name string, args ...string) string {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("command %s %v failed: %v\noutput: %s", name, args, err, out)
	}
	return string(out)
}
