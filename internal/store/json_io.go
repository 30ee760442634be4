package store

import (
	"encoding/json"
	"os"
)

// readJSON decodes the file at path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	b, err := readFile(path)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// writeJSON encodes v and writes it atomically.
func writeJSON(path string, v any, mode os.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, b, mode)
}
