package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trackdeck/trackdeck/internal/debug"
)

// Counters used by the sync engine and remote client. Instruments are
// created lazily so they bind to whatever provider Init installed.
var (
	instrumentsOnce sync.Once

	apiRequests   metric.Int64Counter
	rateLimitHits metric.Int64Counter
	syncedRows    metric.Int64Counter
)

func instruments() {
	instrumentsOnce.Do(func() {
		m := Meter("")
		var err error
		if apiRequests, err = m.Int64Counter("td.api.requests",
			metric.WithDescription("Remote API requests issued")); err != nil {
			debug.Logf("telemetry: api counter: %v", err)
		}
		if rateLimitHits, err = m.Int64Counter("td.api.rate_limited",
			metric.WithDescription("Requests that hit a rate limit")); err != nil {
			debug.Logf("telemetry: rate-limit counter: %v", err)
		}
		if syncedRows, err = m.Int64Counter("td.sync.rows",
			metric.WithDescription("Task rows committed per sync")); err != nil {
			debug.Logf("telemetry: sync counter: %v", err)
		}
	})
}

// RecordAPIRequest counts one remote call, labelled by transport
// ("graphql" or "rest").
func RecordAPIRequest(ctx context.Context, transport string) {
	instruments()
	if apiRequests != nil {
		apiRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
	}
}

// RecordRateLimit counts one rate-limited response.
func RecordRateLimit(ctx context.Context) {
	instruments()
	if rateLimitHits != nil {
		rateLimitHits.Add(ctx, 1)
	}
}

// RecordSyncRows counts rows committed by one sync run.
func RecordSyncRows(ctx context.Context, n int) {
	instruments()
	if syncedRows != nil {
		syncedRows.Add(ctx, int64(n))
	}
}
