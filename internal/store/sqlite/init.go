// Package sqlite provides the sqlite mart driver.
//
// This file registers the driver with the store registry. Import this
// package with a blank identifier to register it:
//
//	import _ "github.com/lendscope-labs/lendscope/internal/store/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/lendscope-labs/lendscope/internal/store"
)

func init() {
	store.Register("sqlite", func(logger *slog.Logger) store.Store { return New(logger) })
}
