package model

// PurgeEvent announces that an upstream identity system deleted accounts.
type PurgeEvent struct {
	EventID   string
	Gamespace string
	Accounts  []string
	// GamespaceOnly limits removal to Gamespace; otherwise every gamespace is purged.
	GamespaceOnly bool
}
