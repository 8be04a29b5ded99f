// Package logging wires structured logging for the engine. It mirrors the
// teacher's "[ COMPONENT @ index ]" log-line prefixing convention (seen
// throughout NightWing1998-indexing's indexer/dataport packages) as
// zerolog fields instead of a literal string prefix.
package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

func root() zerolog.Logger {
	once.Do(func() {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			With().
			Timestamp().
			Logger()
	})
	return base
}

// For returns a logger tagged with the given component and index name,
// equivalent to the teacher's "[ COMPONENT @ index ]" prefix.
func For(component, index string) zerolog.Logger {
	return root().With().Str("component", component).Str("index", index).Logger()
}

// SetLevel adjusts the global minimum log level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
