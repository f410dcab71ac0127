package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
)

// DocumentCounter tracks how many documents a user has uploaded and not yet purged.
type DocumentCounter struct {
	ent.Schema
}

func (DocumentCounter) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "user_document_counters"},
	}
}

func (DocumentCounter) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").StorageKey("user_id").MaxLen(64),
		field.Int("active_documents").Default(0).NonNegative(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}
