package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"quickreply/pkg/errors"
)

// ReadMediaFile loads a media file referenced by a template and returns its
// base64 payload plus the file extension (without the leading dot), for
// embedding into a self-contained export document.
func ReadMediaFile(path string) (data, ext string, err error) {
	const op = "storage.ReadMediaFile"

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", errors.Storage(op, fmt.Sprintf("failed to read media file %s", path), err)
	}
	return base64.StdEncoding.EncodeToString(raw), strings.TrimPrefix(filepath.Ext(path), "."), nil
}

// WriteMediaFile materializes embedded media into an account's media
// directory under the given name and returns the written path.
func WriteMediaFile(mediaDir, name, ext, data string) (string, error) {
	const op = "storage.WriteMediaFile"

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", errors.Validation(op, "embedded media for %q is not valid base64: %v", name, err)
	}
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		return "", errors.Storage(op, fmt.Sprintf("failed to create media directory %s", mediaDir), err)
	}

	filename := name
	if ext != "" {
		filename = name + "." + ext
	}
	path := filepath.Join(mediaDir, filename)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", errors.Storage(op, fmt.Sprintf("failed to write media file %s", path), err)
	}
	return path, nil
}
