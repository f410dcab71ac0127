package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

type Project struct {
	ent.Schema
}

func (Project) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").MaxLen(64),
		field.String("owner_id").MaxLen(64),
		field.String("name").MaxLen(255),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (Project) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("chats", Chat.Type).
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}

func (Project) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("owner_id"),
	}
}

type Chat struct {
	ent.Schema
}

func (Chat) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").MaxLen(64),
		field.String("owner_id").MaxLen(64),
		field.String("title").MaxLen(255),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.String("project_id").MaxLen(64).Optional().Nillable(),
	}
}

func (Chat) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("project", Project.Type).
			Ref("chats").
			Field("project_id").
			Unique(),
	}
}

func (Chat) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("owner_id"),
		index.Fields("project_id"),
	}
}
