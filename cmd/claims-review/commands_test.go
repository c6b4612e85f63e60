package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/claims-review/internal/review"
)

const claim = `{
  "patient_name": "DOE, JANE",
  "cleaned_dos1": "03/01/2024",
  "cleaned_total_charge": "150.50",
  "line_items": [{"cleaned_charge": "100.00"}, {"cleaned_charge": "50.50"}]
}`

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("REVIEW_DATA_DIR", dataDir)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := root.Execute()
	return out.String(), err
}

func seed(t *testing.T, records map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	fails := filepath.Join(dir, "fails")
	require.NoError(t, os.MkdirAll(fails, 0o755))
	for id, body := range records {
		require.NoError(t, os.WriteFile(filepath.Join(fails, id+".json"), []byte(body), 0o644))
	}
	return dir
}

func TestListShowCheck(t *testing.T) {
	dir := seed(t, map[string]string{
		"a": claim,
		"b": `{"cleaned_total_charge": "200.00", "line_items": [{"cleaned_charge": "150.50"}]}`,
	})

	out, err := run(t, dir, "list")
	require.NoError(t, err)
	assert.Equal(t, "  a\n  b\n", out)

	out, err = run(t, dir, "show", "a")
	require.NoError(t, err)
	assert.Contains(t, out, `"patient_name": "DOE, JANE"`)

	out, err = run(t, dir, "check", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "OK   a: total 150.50, line items 150.50 (2)")

	out, err = run(t, dir, "check", "b")
	require.Error(t, err)
	assert.Contains(t, out, "off by 49.50")

	_, err = run(t, dir, "show", "missing")
	assert.Error(t, err)
}

func TestShowField(t *testing.T) {
	dir := seed(t, map[string]string{"a": claim})

	out, err := run(t, dir, "show", "a", "--field", "patient_name")
	require.NoError(t, err)
	assert.Equal(t, "DOE, JANE\n", out)

	out, err = run(t, dir, "show", "a", "-f", "line_items.1.cleaned_charge")
	require.NoError(t, err)
	assert.Equal(t, "50.50\n", out)

	_, err = run(t, dir, "show", "a", "--field", "line_items.7.cleaned_charge")
	assert.ErrorIs(t, err, review.ErrInvalidField)
}

func TestCommitThenExport(t *testing.T) {
	dir := seed(t, map[string]string{"a": claim})

	out, err := run(t, dir, "commit", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "Changes saved for a.")
	assert.FileExists(t, filepath.Join(dir, "output", "a.json"))
	assert.FileExists(t, filepath.Join(dir, "originals", "a.json"))

	out, err = run(t, dir, "list", "--committed")
	require.NoError(t, err)
	assert.Equal(t, "  a\n", out)

	archive := filepath.Join(dir, "batch.zip")
	out, err = run(t, dir, "export", "-o", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 record(s)")
	assert.FileExists(t, archive)
	assert.NoFileExists(t, filepath.Join(dir, "output", "a.json"))

	_, err = run(t, dir, "export", "-o", archive)
	assert.Error(t, err, "nothing left to export")
}

func TestExportKeepsRecordsWhenArchiveCannotBePlaced(t *testing.T) {
	dir := seed(t, map[string]string{"a": claim})
	_, err := run(t, dir, "commit", "a")
	require.NoError(t, err)

	// a non-empty directory at the target path makes the final rename fail
	target := filepath.Join(dir, "taken.zip")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "inside"), 0o755))

	_, err = run(t, dir, "export", "-o", target)
	require.ErrorContains(t, err, "output directory not cleared")
	assert.FileExists(t, filepath.Join(dir, "output", "a.json"))

	kept, err := filepath.Glob(filepath.Join(dir, ".export-*.zip"))
	require.NoError(t, err)
	assert.Len(t, kept, 1, "the built archive is kept for recovery")
}

func TestRenderRequiresDocument(t *testing.T) {
	dir := seed(t, map[string]string{"a": claim})
	_, err := run(t, dir, "render", "a", "header")
	assert.ErrorContains(t, err, "no source document")
}
