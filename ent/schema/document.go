// Package schema records the service tables in ent's schema DSL. No client is
// generated from it; queries go through ent's SQL builder and internal/db owns
// the migration tables, which a test keeps in step with these definitions.
package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"
)

// Document is one physically distinct upload, identified by its content checksum.
type Document struct {
	ent.Schema
}

func (Document) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New),
		field.String("filename").MaxLen(255),
		field.String("blob_key").MaxLen(1024).Unique(), // MinIO / filesystem key
		field.String("checksum").MaxLen(80).Unique().Immutable(),
		field.Int64("size_bytes").NonNegative(),
		field.Enum("status").Values("pending", "ready", "deleting").Default("pending"),
		field.Time("uploaded_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

// Links and chunks keep the row alive: no cascading delete.
func (Document) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("links", ScopeLink.Type).
			Annotations(entsql.OnDelete(entsql.NoAction)),
		edge.To("chunks", Chunk.Type).
			Annotations(entsql.OnDelete(entsql.NoAction)),
	}
}

func (Document) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "uploaded_at"),
	}
}
