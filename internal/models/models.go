package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Project{},
		&Competition{},
		&Reward{},
		&ProjectRecord{},
		&Payout{},
	}
}
