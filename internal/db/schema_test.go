package db

import (
	"testing"

	"entgo.io/ent/dialect/sql/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniqueIndex(t *testing.T, table *schema.Table, cols ...string) {
	t.Helper()
	for _, idx := range table.Indexes {
		if !idx.Unique || len(idx.Columns) != len(cols) {
			continue
		}
		match := true
		for i, c := range idx.Columns {
			if c.Name != cols[i] {
				match = false
				break
			}
		}
		if match {
			return
		}
	}
	t.Fatalf("table %s has no unique index on %v", table.Name, cols)
}

func TestUniquenessIsEnforcedByTheStore(t *testing.T) {
	var checksum *schema.Column
	for _, c := range DocumentsTable.Columns {
		if c.Name == "checksum" {
			checksum = c
		}
	}
	require.NotNil(t, checksum)
	assert.True(t, checksum.Unique)

	uniqueIndex(t, ScopeLinksTable, "document_id", "scope_type", "scope_id")
	uniqueIndex(t, ChunksTable, "document_id", "chunk_index")
}

func TestDocumentReferencesDoNotCascade(t *testing.T) {
	for _, table := range []*schema.Table{ScopeLinksTable, ChunksTable} {
		require.Len(t, table.ForeignKeys, 1)
		fk := table.ForeignKeys[0]
		assert.Same(t, DocumentsTable, fk.RefTable)
		assert.Equal(t, schema.NoAction, fk.OnDelete, table.Name)
	}
}
