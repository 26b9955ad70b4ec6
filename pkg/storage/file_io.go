package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"quickreply/pkg/errors"
	"quickreply/pkg/model"
)

// FileExport writes a transfer document to a file as indented JSON.
func FileExport(doc *model.TransferDocument, filename string) error {
	const op = "storage.FileExport"

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Storage(op, "failed to marshal transfer document", err)
	}

	// Ensure the directory exists
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Storage(op, fmt.Sprintf("failed to create directory %s", dir), err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Storage(op, fmt.Sprintf("failed to write %s", filename), err)
	}
	return nil
}

// FileImport reads a transfer document from a file.
func FileImport(filename string) (*model.TransferDocument, error) {
	const op = "storage.FileImport"

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Storage(op, fmt.Sprintf("failed to read %s", filename), err)
	}

	var doc model.TransferDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Storage(op, fmt.Sprintf("failed to parse %s", filename), err)
	}
	return &doc, nil
}
