package models

// AllTables returns a slice of all tables in the database.
func AllTables() []interface{} {
	return []interface{}{
		&User{},
		&Contact{}, &ContactRefreshRequest{},
		&Group{}, &GroupMember{},
		&Item{},
		&DeliveryTask{},
		&ConversationLink{},
		&RetryEntry{},
		&CacheEntry{},
		&PrivateMail{}, &MailAccount{}, &Suggestion{},
	}
}
