package model

// All lists every table AutoMigrate manages.
func All() []any {
	return []any{
		&Ticket{},
		&KVEntry{},
	}
}
