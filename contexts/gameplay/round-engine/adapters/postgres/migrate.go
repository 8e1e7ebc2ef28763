package postgresadapter

// Models lists every table this module owns, for schema migration at boot.
func Models() []any {
	return []any{
		&roundModel{},
		&phrasesetModel{},
		&playerModel{},
		&promptModel{},
		&cooldownModel{},
		&transactionModel{},
		&outboxModel{},
		&queueEntryModel{},
		&leaseModel{},
	}
}
