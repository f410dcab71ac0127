package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"
)

// ScopeLink makes a document visible within a chat or a project.
type ScopeLink struct {
	ent.Schema
}

func (ScopeLink) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New),
		field.Enum("scope_type").Values("chat", "project"),
		field.String("scope_id").MaxLen(64).NotEmpty(),
		field.Time("linked_at").Default(time.Now).Immutable(),
		field.UUID("document_id", uuid.UUID{}),
	}
}

func (ScopeLink) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("document", Document.Type).
			Ref("links").
			Field("document_id").
			Unique().
			Required(),
	}
}

func (ScopeLink) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("document_id", "scope_type", "scope_id").Unique(),
		index.Fields("scope_type", "scope_id"),
	}
}
