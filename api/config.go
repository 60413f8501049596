// Package api provides the HTTP surface for agents, chats, messages and
// memory inspection.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string
}
