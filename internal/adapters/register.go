// Package adapters wires built-in adapters into the provider registry.
package adapters

import (
	"github.com/coachpo/bookwire/internal/adapters/nonkyc"
	"github.com/coachpo/bookwire/internal/provider"
)

// RegisterAll installs every built-in adapter into the provided registry.
func RegisterAll(reg *provider.Registry) {
	if reg == nil {
		return
	}
	nonkyc.RegisterFactory(reg)
}
