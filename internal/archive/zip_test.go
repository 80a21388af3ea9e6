package archive

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/testutil"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "faces_20240309_140507.zip", Name(ts))
}

func TestZip_Write(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "out", "a.jpg")
	b := filepath.Join(dir, "out", "b.jpg")
	testutil.WriteText(t, a, "first")
	testutil.WriteText(t, b, "second")

	dest := filepath.Join(dir, "faces.zip")
	err := Zip{}.Write(context.Background(), dest, []Entry{
		{Path: a, Name: "HS1234567.jpg"},
		{Path: b, Name: "cropped_b.jpg"},
	})
	require.NoError(t, err)

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	require.Len(t, zr.File, 2)
	assert.Equal(t, "HS1234567.jpg", zr.File[0].Name)
	assert.Equal(t, "cropped_b.jpg", zr.File[1].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
}

func TestZip_WriteFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "faces.zip")

	err := Zip{}.Write(context.Background(), dest, []Entry{{Path: filepath.Join(dir, "missing.jpg"), Name: "x.jpg"}})
	require.Error(t, err)
	assert.Empty(t, testutil.ListFiles(t, dir))
}

func TestZip_RejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	testutil.WriteText(t, a, "x")

	err := Zip{}.Write(context.Background(), filepath.Join(dir, "f.zip"), []Entry{{Path: a, Name: "a.jpg"}, {Path: a, Name: "a.jpg"}})
	require.Error(t, err)
}

func TestZip_Cancelled(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	testutil.WriteText(t, a, "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Zip{}.Write(ctx, filepath.Join(dir, "f.zip"), []Entry{{Path: a, Name: "a.jpg"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a.jpg"}, testutil.ListFiles(t, dir))
}
