package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// TargetsFile is the on-disk JSON format for the tracked id list. Ids are
// stored as strings for interchange with other tools reading the same file.
type TargetsFile struct {
	App        string   `json:"app"`
	Version    string   `json:"version"`
	ExportedAt string   `json:"exportedAt"`
	Targets    []string `json:"targets"`
}

// LoadTargets reads the targets file at path. A missing file yields an empty
// list. Entries that do not parse as positive integers are skipped;
// duplicates collapse to their first occurrence.
func LoadTargets(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []int64{}, nil
		}
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var file TargetsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode targets file: %w", err)
	}

	seen := make(map[int64]struct{}, len(file.Targets))
	ids := make([]int64, 0, len(file.Targets))
	for _, raw := range file.Targets {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// SaveTargets writes the id list to path in the targets file format. The
// write goes through a temp file and rename so a crash never leaves a
// truncated file behind.
func SaveTargets(path string, ids []int64) error {
	targets := make([]string, len(ids))
	for i, id := range ids {
		targets[i] = strconv.FormatInt(id, 10)
	}

	file := TargetsFile{
		App:        appName,
		Version:    fileVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Targets:    targets,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode targets file: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create targets directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write targets file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace targets file: %w", err)
	}
	return nil
}

// AddTarget appends id to the targets file if not already present and
// returns the updated list.
func AddTarget(path string, id int64) ([]int64, error) {
	if id <= 0 {
		return nil, fmt.Errorf("target id must be positive (got %d)", id)
	}

	ids, err := LoadTargets(path)
	if err != nil {
		return nil, err
	}
	for _, existing := range ids {
		if existing == id {
			return ids, nil
		}
	}
	ids = append(ids, id)
	if err := SaveTargets(path, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// RemoveTarget deletes id from the targets file and returns the updated
// list. Removing an absent id is a no-op.
func RemoveTarget(path string, id int64) ([]int64, error) {
	ids, err := LoadTargets(path)
	if err != nil {
		return nil, err
	}

	kept := ids[:0]
	removed := false
	for _, existing := range ids {
		if existing == id {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return kept, nil
	}
	if err := SaveTargets(path, kept); err != nil {
		return nil, err
	}
	return kept, nil
}
