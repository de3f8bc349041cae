package domain

import "time"

// CredentialsUpdated announces that the persisted analytics settings
// changed. It deliberately carries no credential values: consumers
// re-read the settings store so a stale signal can never install stale
// credentials.
type CredentialsUpdated struct {
	UpdatedAt time.Time
}
