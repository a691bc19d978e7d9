package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/infinitystory/humanstudy/internal/client"
	"github.com/infinitystory/humanstudy/internal/metrics"
	"github.com/infinitystory/humanstudy/internal/relay"
)

// SinkFactory returns the sink that delivers to url
type SinkFactory func(url string) client.ResultSink

// RelayWorker delivers queued result batches to the spreadsheet sink
type RelayWorker struct {
	newSink SinkFactory
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu    sync.Mutex
	sinks map[string]client.ResultSink
}

// NewRelayWorker creates a relay worker. Sinks are created lazily per URL.
func NewRelayWorker(newSink SinkFactory, m *metrics.Metrics) *RelayWorker {
	return &RelayWorker{
		newSink: newSink,
		metrics: m,
		log:     log.Logger.With().Str("component", "relay-worker").Logger(),
		sinks:   make(map[string]client.ResultSink),
	}
}

// SheetsSinks is the default SinkFactory
func SheetsSinks(timeout time.Duration) SinkFactory {
	return func(url string) client.ResultSink {
		return client.NewSheetsClient(url, timeout)
	}
}

func (w *RelayWorker) sink(url string) client.ResultSink {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.sinks[url]
	if !ok {
		s = w.newSink(url)
		w.sinks[url] = s
	}
	return s
}

// ProcessTask handles relay task processing. Failed deliveries are not retried.
func (w *RelayWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := relay.ParseRelayTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.URL == "" {
		return fmt.Errorf("relay task without url: %w", asynq.SkipRetry)
	}

	start := time.Now()
	err = w.sink(payload.URL).Send(ctx, payload.Body)
	if w.metrics != nil {
		w.metrics.RelayDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if w.metrics != nil {
			w.metrics.RelayFailures.WithLabelValues(payload.Sink).Inc()
		}
		w.log.Warn().Err(err).Str("sink", payload.Sink).Msg("queued relay failed")
		return fmt.Errorf("relay to %s failed: %v: %w", payload.Sink, err, asynq.SkipRetry)
	}

	w.log.Debug().Str("sink", payload.Sink).Int("bytes", len(payload.Body)).Msg("queued relay delivered")
	return nil
}
