package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/models"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":         "report.pdf",
		"my report-v2.pdf":   "my report-v2.pdf",
		"bad<name>.pdf":      "bad_name_.pdf",
		"../../etc/passwd":   "passwd",
		"weird:name?.pdf":    "weird_name_.pdf",
		"...hidden.pdf":      "hidden.pdf",
		"C:\\docs\\file.pdf": "file.pdf",
		"résumé.pdf":         "r_sum_.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestSanitizeFilenameLongNames(t *testing.T) {
	longExt := "report." + strings.Repeat("a", 250)
	var got string
	require.NotPanics(t, func() { got = SanitizeFilename(longExt) })
	assert.Len(t, got, maxNameLength)
	assert.True(t, strings.HasPrefix(got, "report."))

	longStem := strings.Repeat("b", 300) + ".pdf"
	got = SanitizeFilename(longStem)
	assert.Len(t, got, maxNameLength)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestKeyLayout(t *testing.T) {
	key := Key(models.ChatScope("c1"), "report.pdf")
	assert.True(t, strings.HasPrefix(key, "documents/chats/c1/report_"), key)
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(key, "documents/chats/c1/report_"), ".pdf"), 8)
	assert.NotEqual(t, key, Key(models.ChatScope("c1"), "report.pdf"))
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	key, err := s.Put(ctx, "documents/projects/p1/a_00000000.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	objs, err := s.List(ctx, "documents/projects/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, key, objs[0].Key)
	assert.Equal(t, int64(8), objs[0].Size)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "deleting a missing blob is not an error")

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFS(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	testStore(t, s)

	_, err = s.Put(context.Background(), "../escape", []byte("x"))
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}
