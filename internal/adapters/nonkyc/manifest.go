package nonkyc

import (
	"context"
	"fmt"

	"github.com/coachpo/bookwire/config"
	"github.com/coachpo/bookwire/internal/provider"
)

// RegisterFactory installs the NonKYC adapter factory into the registry. The
// factory starts the provider, so a successful Create returns a running
// instance.
func RegisterFactory(reg *provider.Registry) {
	if reg == nil {
		return
	}
	reg.RegisterWithMetadata(nonkycPublicMetadata.identifier,
		func(ctx context.Context, cfg config.Config) (provider.Instance, error) {
			p := New(OptionsFromConfig(cfg))
			if err := p.Start(ctx); err != nil {
				return nil, fmt.Errorf("start %s provider: %w", nonkycPublicMetadata.identifier, err)
			}
			return p, nil
		}, nonkycAdapterMetadata)
}

// OptionsFromConfig maps the gateway configuration onto adapter options.
// Unset numeric fields fall back to the adapter defaults.
func OptionsFromConfig(cfg config.Config) Options {
	opts := Options{Config: Config{
		APIKey:           cfg.Venue.APIKey,
		APISecret:        cfg.Venue.APISecret,
		SnapshotLimit:    cfg.Venue.SnapshotLimit,
		BookDepth:        cfg.Venue.BookDepth,
		QueueBuffer:      cfg.Gateway.QueueBuffer,
		HTTPTimeout:      cfg.Venue.HTTPTimeout,
		HandshakeTimeout: cfg.Venue.HandshakeTimeout,
		UserStream:       cfg.Venue.UserStream,
	}}
	opts.applyEndpoints(cfg.Venue.RESTURL, cfg.Venue.WSURL)
	return opts
}
