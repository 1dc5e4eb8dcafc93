package connector

import (
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Builder constructs a concrete connector around a ready client.
type Builder func(client *Client) (Connector, error)

// Factory selects the connector variant by the config's source type.
type Factory struct {
	logger   ectologger.Logger
	options  []ClientOption
	builders map[models.SourceType]Builder
}

// NewFactory creates a factory with the built-in source types registered.
// options are applied to every client it creates.
func NewFactory(logger ectologger.Logger, options ...ClientOption) *Factory {
	f := &Factory{
		logger:   logger,
		options:  options,
		builders: make(map[models.SourceType]Builder),
	}
	f.Register(models.SourceTypeProcurementRegistry, func(c *Client) (Connector, error) {
		return NewProcurementConnector(c), nil
	})
	f.Register(models.SourceTypeBudgetSource, func(c *Client) (Connector, error) {
		return NewBudgetSourceConnector(c), nil
	})
	f.Register(models.SourceTypeRestFeed, func(c *Client) (Connector, error) {
		return NewRestFeedConnector(c)
	})
	return f
}

func (f *Factory) Register(sourceType models.SourceType, builder Builder) {
	f.builders[sourceType] = builder
}

// Build creates the connector for cfg with an already decrypted credential.
func (f *Factory) Build(cfg *models.ConnectorConfig, credential string) (Connector, error) {
	builder, ok := f.builders[cfg.SourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSourceType, cfg.SourceType)
	}
	client := NewClient(cfg, credential, f.logger, f.options...)
	conn, err := builder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s connector %q: %w", cfg.SourceType, cfg.Name, err)
	}
	return conn, nil
}
