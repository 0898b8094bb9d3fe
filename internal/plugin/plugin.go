// Package plugin runs in-process extensions that observe Wayfarer through
// lifecycle hooks.
package plugin

import (
	"context"

	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// Plugin is an in-process extension. Init subscribes to hooks; Close
// releases whatever Init acquired.
type Plugin interface {
	ID() string
	Init(ctx context.Context, api API) error
	Close() error
}

// API is what a plugin gets to work with.
type API struct {
	Hooks *hooks.Manager
	Log   *logging.Logger
}
