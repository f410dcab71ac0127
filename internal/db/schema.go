package db

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	DocumentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "filename", Type: field.TypeString, Size: 255},
		{Name: "blob_key", Type: field.TypeString, Unique: true, Size: 1024},
		{Name: "checksum", Type: field.TypeString, Unique: true, Size: 80},
		{Name: "size_bytes", Type: field.TypeInt64},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"pending", "ready", "deleting"}, Default: "pending"},
		{Name: "uploaded_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	DocumentsTable = &schema.Table{
		Name:       "documents",
		Columns:    DocumentsColumns,
		PrimaryKey: []*schema.Column{DocumentsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "document_status_uploaded_at", Unique: false, Columns: []*schema.Column{DocumentsColumns[5], DocumentsColumns[6]}},
		},
	}

	// Links and chunks reference documents without ON DELETE CASCADE: a document row
	// cannot be removed while anything still points at it.
	ScopeLinksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "scope_type", Type: field.TypeEnum, Enums: []string{"chat", "project"}},
		{Name: "scope_id", Type: field.TypeString, Size: 64},
		{Name: "linked_at", Type: field.TypeTime},
		{Name: "document_id", Type: field.TypeUUID},
	}
	ScopeLinksTable = &schema.Table{
		Name:       "scope_links",
		Columns:    ScopeLinksColumns,
		PrimaryKey: []*schema.Column{ScopeLinksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "scope_links_documents_links",
				Columns:    []*schema.Column{ScopeLinksColumns[4]},
				RefColumns: []*schema.Column{DocumentsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "scopelink_document_id_scope_type_scope_id", Unique: true, Columns: []*schema.Column{ScopeLinksColumns[4], ScopeLinksColumns[1], ScopeLinksColumns[2]}},
			{Name: "scopelink_scope_type_scope_id", Unique: false, Columns: []*schema.Column{ScopeLinksColumns[1], ScopeLinksColumns[2]}},
		},
	}

	ChunksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "chunk_index", Type: field.TypeInt},
		{Name: "page_number", Type: field.TypeInt},
		{Name: "text", Type: field.TypeString, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "document_id", Type: field.TypeUUID},
	}
	ChunksTable = &schema.Table{
		Name:       "chunks",
		Columns:    ChunksColumns,
		PrimaryKey: []*schema.Column{ChunksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "chunks_documents_chunks",
				Columns:    []*schema.Column{ChunksColumns[5]},
				RefColumns: []*schema.Column{DocumentsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "chunk_document_id_chunk_index", Unique: true, Columns: []*schema.Column{ChunksColumns[5], ChunksColumns[1]}},
		},
	}

	ProjectsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "owner_id", Type: field.TypeString, Size: 64},
		{Name: "name", Type: field.TypeString, Size: 255},
		{Name: "created_at", Type: field.TypeTime},
	}
	ProjectsTable = &schema.Table{
		Name:       "projects",
		Columns:    ProjectsColumns,
		PrimaryKey: []*schema.Column{ProjectsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "project_owner_id", Unique: false, Columns: []*schema.Column{ProjectsColumns[1]}},
		},
	}

	ChatsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "owner_id", Type: field.TypeString, Size: 64},
		{Name: "title", Type: field.TypeString, Size: 255},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "project_id", Type: field.TypeString, Nullable: true, Size: 64},
	}
	ChatsTable = &schema.Table{
		Name:       "chats",
		Columns:    ChatsColumns,
		PrimaryKey: []*schema.Column{ChatsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "chats_projects_chats",
				Columns:    []*schema.Column{ChatsColumns[4]},
				RefColumns: []*schema.Column{ProjectsColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{Name: "chat_owner_id", Unique: false, Columns: []*schema.Column{ChatsColumns[1]}},
			{Name: "chat_project_id", Unique: false, Columns: []*schema.Column{ChatsColumns[4]}},
		},
	}

	DocumentCountersColumns = []*schema.Column{
		{Name: "user_id", Type: field.TypeString, Size: 64},
		{Name: "active_documents", Type: field.TypeInt, Default: 0},
		{Name: "updated_at", Type: field.TypeTime},
	}
	DocumentCountersTable = &schema.Table{
		Name:       "user_document_counters",
		Columns:    DocumentCountersColumns,
		PrimaryKey: []*schema.Column{DocumentCountersColumns[0]},
	}

	Tables = []*schema.Table{
		DocumentsTable,
		ScopeLinksTable,
		ChunksTable,
		ProjectsTable,
		ChatsTable,
		DocumentCountersTable,
	}
)

func init() {
	ScopeLinksTable.ForeignKeys[0].RefTable = DocumentsTable
	ChunksTable.ForeignKeys[0].RefTable = DocumentsTable
	ChatsTable.ForeignKeys[0].RefTable = ProjectsTable
}
