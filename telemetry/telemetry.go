// Package telemetry sends a single anonymous usage beacon on startup,
// mirroring the upstream singer target's "collect()" call. It is the
// only concurrent task in the whole process — everything else in the
// engine runs single-threaded cooperative.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Endpoint is the beacon collector, matching the upstream's hardcoded
// destination.
const Endpoint = "https://collector.singer.io/i"

const requestTimeout = 10 * time.Second

// Send fires a single fire-and-forget GET to the collector, identifying
// this target and its version. It never blocks the caller: the request
// runs in its own goroutine, and any failure is logged at debug level
// and otherwise ignored, matching the upstream's broad try/except.
//
// Callers gate this on the disable_collection config key — Send itself
// has no opinion on whether it should run.
func Send(name, version string, logger *slog.Logger) {
	go send(name, version, logger)
}

func send(name, version string, logger *slog.Logger) {
	params := url.Values{
		"e":     {"se"},
		"aid":   {"singer"},
		"se_ca": {name},
		"se_ac": {"open"},
		"se_la": {version},
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		logger.Debug("telemetry: building request failed", "error", err)

		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Debug("telemetry: request failed", "error", err)

		return
	}

	_ = resp.Body.Close()
}
