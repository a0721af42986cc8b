package pieceswarm

import "github.com/anacrolix/log"

// Config holds the collaborators and options an Exchanger needs beyond
// the Server/Connector/Repository it's built with directly.
type Config struct {
	// Logger receives every line the exchanger logs (all at warning
	// level). Defaults to log.Default.
	Logger log.Logger
	// Resolver dispatches inbound messages to handlers. Defaults to the
	// two canonical handlers from NewHandlerResolver.
	Resolver *HandlerResolver
}

func (c Config) withDefaults() Config {
	if c.Logger.IsZero() {
		c.Logger = log.Default
	}
	if c.Resolver == nil {
		c.Resolver = NewHandlerResolver()
	}
	return c
}
