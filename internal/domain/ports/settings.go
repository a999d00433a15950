package ports

import "context"

// SettingsProvider is read-only key/value access to configuration such as
// gateway credentials, sandbox flags and webhook ids
type SettingsProvider interface {
	// Get returns the value for key, or an error if it is not set
	Get(ctx context.Context, key string) (string, error)
}
