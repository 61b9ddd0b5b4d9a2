package sqldriver

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// ConversationsColumns holds the columns for the "conversations" table.
	ConversationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "owner_id", Type: field.TypeString},
		{Name: "title", Type: field.TypeString, Default: ""},
		{Name: "persona", Type: field.TypeString},
		{Name: "turn_count", Type: field.TypeInt, Default: 0},
		{Name: "last_activity", Type: field.TypeTime},
		{Name: "archived_once", Type: field.TypeBool, Default: false},
		{Name: "archived_turns", Type: field.TypeInt, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
	}

	// ConversationsTable holds the schema information for the "conversations" table.
	ConversationsTable = &schema.Table{
		Name:       conversationsTable,
		Columns:    ConversationsColumns,
		PrimaryKey: []*schema.Column{ConversationsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "conversation_owner_id_last_activity",
				Unique:  false,
				Columns: []*schema.Column{ConversationsColumns[1], ConversationsColumns[5]},
			},
		},
	}

	// TurnsColumns holds the columns for the "turns" table.
	TurnsColumns = []*schema.Column{
		{Name: "seq", Type: field.TypeInt64, Increment: true},
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "origin", Type: field.TypeEnum, Enums: []string{"requester", "generator"}},
		{Name: "content", Type: field.TypeString, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "conversation_id", Type: field.TypeString},
	}

	// TurnsTable holds the schema information for the "turns" table.
	TurnsTable = &schema.Table{
		Name:       turnsTable,
		Columns:    TurnsColumns,
		PrimaryKey: []*schema.Column{TurnsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "turns_conversations_turns",
				Columns:    []*schema.Column{TurnsColumns[5]},
				RefColumns: []*schema.Column{ConversationsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "turn_conversation_id_created_at_seq",
				Unique:  false,
				Columns: []*schema.Column{TurnsColumns[5], TurnsColumns[4], TurnsColumns[0]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ConversationsTable,
		TurnsTable,
	}
)

func init() {
	TurnsTable.ForeignKeys[0].RefTable = ConversationsTable
}

// migrate creates missing tables, columns and indexes through ent's migrator.
func (d *Driver) migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(entsql.OpenDB(d.dialect, d.DB))
	if err != nil {
		return err
	}
	return m.Create(ctx, Tables...)
}
