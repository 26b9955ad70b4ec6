package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickreply/pkg/errors"
)

func TestMediaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.png")
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}
	require.NoError(t, os.WriteFile(src, payload, 0644))

	data, ext, err := ReadMediaFile(src)
	require.NoError(t, err)
	assert.Equal(t, "png", ext)
	assert.Equal(t, base64.StdEncoding.EncodeToString(payload), data)

	mediaDir := filepath.Join(dir, "media")
	path, err := WriteMediaFile(mediaDir, "t1", ext, data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mediaDir, "t1.png"), path)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestReadMediaFileMissing(t *testing.T) {
	_, _, err := ReadMediaFile(filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindStorage))
}

func TestWriteMediaFileRejectsBadBase64(t *testing.T) {
	_, err := WriteMediaFile(t.TempDir(), "t1", "png", "!!!not base64!!!")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestWriteMediaFileWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteMediaFile(dir, "t1", "", base64.StdEncoding.EncodeToString([]byte("x")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "t1"), path)
}
