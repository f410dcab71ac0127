package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"
)

// Chunk is a contiguous piece of a document's text. Its embedding lives in the vector index under the same id.
type Chunk struct {
	ent.Schema
}

func (Chunk) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}),
		field.Int("chunk_index").NonNegative(),
		field.Int("page_number").Positive(),
		field.Text("text"),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.UUID("document_id", uuid.UUID{}),
	}
}

func (Chunk) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("document", Document.Type).
			Ref("chunks").
			Field("document_id").
			Unique().
			Required(),
	}
}

func (Chunk) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("document_id", "chunk_index").Unique(),
	}
}
