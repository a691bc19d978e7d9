// Package relay forwards result batches to the external spreadsheet sink.
// Delivery is best effort: a batch offered while another is in flight is
// dropped, and failures are logged and counted but never returned.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/infinitystory/humanstudy/internal/client"
	"github.com/infinitystory/humanstudy/internal/metrics"
)

// Forwarder sends at most one batch at a time to a sink
type Forwarder struct {
	name     string
	sink     client.ResultSink
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewForwarder creates a forwarder named after the flow it serves. A nil
// sink yields a forwarder that drops everything.
func NewForwarder(name string, sink client.ResultSink, timeout time.Duration, m *metrics.Metrics) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		name:    name,
		sink:    sink,
		timeout: timeout,
		metrics: m,
		log:     log.Logger.With().Str("component", "relay").Str("sink", name).Logger(),
	}
}

// Enabled reports whether the forwarder has a sink
func (f *Forwarder) Enabled() bool {
	return f != nil && f.sink != nil
}

// Forward encodes payload and sends it in the background. It returns false
// without doing any work when disabled or when a send is already in flight.
func (f *Forwarder) Forward(payload interface{}) bool {
	if !f.Enabled() {
		return false
	}
	if !f.inFlight.CompareAndSwap(false, true) {
		if f.metrics != nil {
			f.metrics.RelayDropped.WithLabelValues(f.name).Inc()
		}
		f.log.Debug().Msg("relay already in flight, dropping batch")
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		f.inFlight.Store(false)
		f.log.Error().Err(err).Msg("failed to encode batch")
		return false
	}

	if f.metrics != nil {
		f.metrics.RelayAttempts.WithLabelValues(f.name).Inc()
	}

	f.wg.Add(1)
	go f.send(body)
	return true
}

func (f *Forwarder) send(body []byte) {
	defer f.wg.Done()
	defer f.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	start := time.Now()
	err := f.sink.Send(ctx, body)
	if f.metrics != nil {
		f.metrics.RelayDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if f.metrics != nil {
			f.metrics.RelayFailures.WithLabelValues(f.name).Inc()
		}
		f.log.Warn().Err(err).Msg("relay failed")
		return
	}
	f.log.Debug().Int("bytes", len(body)).Dur("took", time.Since(start)).Msg("relay delivered")
}

// Wait blocks until the in-flight send, if any, has finished
func (f *Forwarder) Wait() {
	if f != nil {
		f.wg.Wait()
	}
}
