package hasher

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityOf_Deterministic(t *testing.T) {
	data := []byte("the quick brown fox")

	a := IdentityOf(data)
	b := IdentityOf(append([]byte(nil), data...))

	assert.Equal(t, a, b)
	assert.Len(t, string(a), 2*Size)
	assert.True(t, Valid(string(a)))
}

func TestIdentityOf_KnownValue(t *testing.T) {
	// sha256("") = e3b0c44298fc1c149afbf4c8996fb924...
	assert.Equal(t, "e3b0c44298fc1c14", string(IdentityOf(nil)))
}

func TestIdentityOf_DifferentInputs(t *testing.T) {
	assert.NotEqual(t, IdentityOf([]byte("a")), IdentityOf([]byte("b")))
}

func TestIdentityOfReader_MatchesBytes(t *testing.T) {
	data := bytes.Repeat([]byte("chunk "), 10000)

	id, err := IdentityOfReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, IdentityOf(data), id)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestIdentityOfReader_PropagatesError(t *testing.T) {
	_, err := IdentityOfReader(failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestIdentityOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	id, err := IdentityOfFile(path)
	require.NoError(t, err)
	assert.Equal(t, IdentityOf([]byte("%PDF-1.4 fake")), id)

	_, err = IdentityOfFile(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("xyz"))
	assert.False(t, Valid("zzzzzzzzzzzzzzzz"))
	assert.True(t, Valid("0123456789abcdef"))
}
