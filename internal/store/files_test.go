package store_test

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/pkg/logger"
)

func newFileStore(t *testing.T) *store.FileStore {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), logger.NewNop())
	require.NoError(t, err)
	return fs
}

func writePayload(t *testing.T, fs *store.FileStore, mediaID, content string) string {
	t.Helper()
	path := fs.PathFor(mediaID)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestMatchesHash(t *testing.T) {
	fs := newFileStore(t)
	writePayload(t, fs, "m1", "payload-bytes")

	assert.True(t, fs.MatchesHash("m1", sha256Hex("payload-bytes")))
	assert.False(t, fs.MatchesHash("m1", sha256Hex("different-bytes")))
	assert.False(t, fs.MatchesHash("missing", sha256Hex("payload-bytes")))
}

func TestMatchesHash_IdentityWhenNoRealChecksum(t *testing.T) {
	fs := newFileStore(t)
	writePayload(t, fs, "m1", "payload-bytes")

	// A catalog reference without a 64-char checksum only proves identity
	// by media id; presence of the payload is enough.
	assert.True(t, fs.MatchesHash("m1", "url-revision-7"))
	assert.False(t, fs.MatchesHash("missing", "url-revision-7"))
}

func TestExists_EmptyFileDoesNotCount(t *testing.T) {
	fs := newFileStore(t)
	require.NoError(t, os.WriteFile(fs.PathFor("m1"), nil, 0o644))

	assert.False(t, fs.Exists("m1"))
}

func TestPurgeOrphans(t *testing.T) {
	fs := newFileStore(t)
	writePayload(t, fs, "keep-1", "a")
	writePayload(t, fs, "keep-2", "b")
	writePayload(t, fs, "stale", "c")

	purged := fs.PurgeOrphans([]string{"keep-1", "keep-2"})

	assert.Equal(t, 1, purged)
	assert.True(t, fs.Exists("keep-1"))
	assert.True(t, fs.Exists("keep-2"))
	assert.False(t, fs.Exists("stale"))
}

func TestTotalSize(t *testing.T) {
	fs := newFileStore(t)
	writePayload(t, fs, "m1", "12345")
	writePayload(t, fs, "m2", "123")

	assert.Equal(t, int64(8), fs.TotalSize())
}
