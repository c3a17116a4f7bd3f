// Package postgres provides the postgres mart driver.
//
// This file registers the driver with the store registry. Import this
// package with a blank identifier to register it:
//
//	import _ "github.com/lendscope-labs/lendscope/internal/store/postgres"
package postgres

import (
	"log/slog"

	"github.com/lendscope-labs/lendscope/internal/store"
)

func init() {
	store.Register("postgres", func(logger *slog.Logger) store.Store { return New(logger) })
}
