package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDF_ExtractsPages(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "two_pages.pdf"))
	require.NoError(t, err)

	pages, err := New().Extract("report.PDF", data)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 0, pages[0].Number)
	assert.Contains(t, pages[0].Text, "refund policy")
	assert.Equal(t, 1, pages[1].Number)
	assert.Contains(t, pages[1].Text, "shipping takes")
}

func TestPDF_Malformed(t *testing.T) {
	_, err := New().Extract("broken.pdf", []byte("%PDF-1.4\nnot really a pdf"))
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	pages, err := New().Extract("notes.md", []byte("# Notes\nhello"))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, -1, pages[0].Number)
	assert.Equal(t, "# Notes\nhello", pages[0].Text)

	_, err = New().Extract("blob.txt", []byte{0xff, 0xfe, 0x00})
	assert.ErrorIs(t, err, ErrNotText)
}
