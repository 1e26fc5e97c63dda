package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/beads-core/beads/internal/storage"
)

// Metadata keys persisted in the store's metadata table (section 4.8).
const (
	MetaJSONLContentHash = "jsonl_content_hash"
	MetaJSONLFileHash    = "jsonl_file_hash"
	MetaLastImportTime   = "last_import_time"
	MetaLastExportTime   = "last_export_time"
	MetaSchemaVersion    = "schema_version"
	MetaWorkspaceID      = "workspace_id"
)

// NeedsImport reports whether the mirror at path has changed since the last
// import/export and an import should be triggered (section 4.8,
// "Staleness detection"). It gates the (relatively expensive) content hash
// computation behind a cheap mtime comparison against last_import_time: a
// mirror whose mtime is not newer than the last import is assumed unchanged
// without being read.
func NeedsImport(ctx context.Context, store storage.Storage, path string) (bool, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat mirror: %w", err)
	}

	lastImportStr, err := store.GetMetadata(ctx, MetaLastImportTime)
	if err != nil {
		return false, fmt.Errorf("failed to read last_import_time: %w", err)
	}
	if lastImportStr != "" {
		lastImport, err := time.Parse(time.RFC3339, lastImportStr)
		if err == nil && !info.ModTime().After(lastImport) {
			return false, nil
		}
	}

	currentHash, err := hashFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to hash mirror: %w", err)
	}
	storedHash, err := store.GetMetadata(ctx, MetaJSONLContentHash)
	if err != nil {
		return false, fmt.Errorf("failed to read jsonl_content_hash: %w", err)
	}

	return currentHash != storedHash, nil
}

// RecordImport updates last_import_time and jsonl_content_hash after a
// successful import, so the next NeedsImport call reflects the new
// convergence point.
func RecordImport(ctx context.Context, store storage.Storage, path string) error {
	hash, err := hashFile(path)
	if err != nil {
		return fmt.Errorf("failed to hash mirror: %w", err)
	}
	if err := store.SetMetadata(ctx, MetaJSONLContentHash, hash); err != nil {
		return err
	}
	return store.SetMetadata(ctx, MetaLastImportTime, time.Now().UTC().Format(time.RFC3339))
}

// CheckIntegrity implements the "Integrity guard" of section 4.8: before an
// incremental export, if jsonl_file_hash doesn't match the mirror's current
// hash (or the mirror is absent), export_hashes and jsonl_file_hash are
// cleared and the caller must force a full export instead.
func CheckIntegrity(ctx context.Context, store storage.Storage, path string) (needsFullExport bool, err error) {
	storedHash, err := store.GetJSONLFileHash(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read jsonl_file_hash: %w", err)
	}

	currentHash, statErr := hashFile(path)
	if statErr != nil {
		// Mirror absent: force a full export to (re)create it.
		if err := store.ClearAllExportHashes(ctx); err != nil {
			return false, err
		}
		if err := store.SetJSONLFileHash(ctx, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	if storedHash == "" || storedHash == currentHash {
		return false, nil
	}

	if err := store.ClearAllExportHashes(ctx); err != nil {
		return false, err
	}
	if err := store.SetJSONLFileHash(ctx, ""); err != nil {
		return false, err
	}
	return true, nil
}

// InferPrefix implements "Prefix inference on cold start" (section 4.8):
// when the store has no configured issue_prefix, infer one from the common
// prefix of IDs found in the mirror, falling back to the workspace
// directory's basename.
func InferPrefix(mirrorPath, workspaceDir string) (string, error) {
	ids, err := readIDs(mirrorPath)
	if err != nil || len(ids) == 0 {
		return filepath.Base(filepath.Clean(workspaceDir)), nil
	}

	prefix, ok := commonIDPrefix(ids)
	if !ok {
		return filepath.Base(filepath.Clean(workspaceDir)), nil
	}
	return prefix, nil
}

func readIDs(path string) ([]string, error) {
	// #nosec G304 - caller-controlled mirror path, already validated upstream
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, `"id"`)
		if idx == -1 {
			continue
		}
		rest := line[idx+len(`"id"`):]
		colon := strings.Index(rest, ":")
		if colon == -1 {
			continue
		}
		rest = strings.TrimSpace(rest[colon+1:])
		if !strings.HasPrefix(rest, `"`) {
			continue
		}
		end := strings.Index(rest[1:], `"`)
		if end == -1 {
			continue
		}
		ids = append(ids, rest[1:1+end])
	}
	return ids, nil
}

// commonIDPrefix returns the hyphen-delimited prefix shared by every ID
// (e.g. "bd" for "bd-1a2", "bd-93f"), requiring it to be unique across ids.
func commonIDPrefix(ids []string) (string, bool) {
	prefixes := make(map[string]bool)
	for _, id := range ids {
		dash := strings.Index(id, "-")
		if dash <= 0 {
			return "", false
		}
		prefixes[id[:dash]] = true
	}
	if len(prefixes) != 1 {
		return "", false
	}
	for p := range prefixes {
		return p, true
	}
	return "", false
}

// SortedIDs is a small helper used by callers that want deterministic
// diagnostics (e.g. reporting prefix mismatches).
func SortedIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
