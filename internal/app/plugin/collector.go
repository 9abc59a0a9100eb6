// Package plugin defines the Collector Plugin SPI and the in-process
// Registry that tracks installed plugins, plus two reference
// implementations (HTTP/JSON and sandboxed-script collectors).
package plugin

import (
	"context"

	"github.com/trendforge/ingest/internal/app/domain/item"
	domain "github.com/trendforge/ingest/internal/app/domain/plugin"
)

// Collector is a source-specific module producing raw items. Implementations
// must be pure: no storage dependency, no mutable state shared with other
// plugins, and must propagate ctx cancellation out of Collect. Errors
// returned from Collect should be classified with infrastructure/errkind
// (ConfigError, NetworkError, ParseError, QuotaError) so the Scheduler can
// apply the right retry/skip disposition.
type Collector interface {
	Name() string
	Metadata() domain.Metadata
	Collect(ctx context.Context) ([]item.Raw, error)
}
