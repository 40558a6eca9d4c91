package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestLoader_DefaultsToPDFOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", []byte("ignored by default"))
	writeFile(t, dir, "policy.pdf", []byte("%PDF-1.4\nHello\nWorld\n%%EOF"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, filepath.Join(dir, "nested"), "deep.pdf", []byte("%PDF-1.4\nDeep\n%%EOF"))

	docs, err := New().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, filepath.Join(dir, "policy.pdf"), docs[0].Path)
	assert.Equal(t, 1, docs[0].Page)
	assert.Contains(t, docs[0].Content, "Hello")
	assert.Equal(t, "1", docs[0].Metadata["page"])
}

func TestLoader_TextAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", []byte("# Title\n\nBody"))
	writeFile(t, dir, "a.txt", []byte("Invoices are due in thirty days."))
	writeFile(t, dir, "empty.txt", []byte("   \n"))

	docs, err := New(WithExtensions("txt", ".MD")).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Invoices are due in thirty days.", docs[0].Content)
	assert.Equal(t, 0, docs[0].Page)
	assert.Equal(t, "md", docs[1].Metadata["format"])
}

func TestLoader_Spreadsheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Plan"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Price"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Basic"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "10"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "prices.xlsx", buf.Bytes())

	docs, err := New(WithExtensions(".xlsx")).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Sheet1", docs[0].Metadata["sheet"])
	assert.Contains(t, docs[0].Content, "Plan: Basic; Price: 10")
}

func TestLoader_NoDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", []byte("not a pdf"))
	_, err := New().Load(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no documents found in")
}

func TestExtractPrintableText(t *testing.T) {
	got := extractPrintableText([]byte{'a', 0x00, 0xff, '\n', 'b', 0x7f})
	assert.Equal(t, "a\nb", string(got))
}
