package relay

import (
	"time"

	"github.com/infinitystory/humanstudy/internal/client"
	"github.com/infinitystory/humanstudy/internal/config"
	"github.com/infinitystory/humanstudy/internal/metrics"
)

const (
	SinkComparison = "comparison"
	SinkReview     = "review"
)

// Forwarders holds one forwarder per flow
type Forwarders struct {
	Comparison *Forwarder
	Review     *Forwarder
}

// NewForwarders builds the forwarders described by cfg. In queue mode
// batches go through enq; otherwise they are posted directly.
func NewForwarders(cfg config.RelayConfig, enq Enqueuer, m *metrics.Metrics) Forwarders {
	timeout := time.Duration(cfg.Timeout) * time.Second
	build := func(name, url string) *Forwarder {
		if !cfg.Enabled || !config.RelayConfigured(url) {
			return NewForwarder(name, nil, timeout, m)
		}
		var sink client.ResultSink = client.NewSheetsClient(url, timeout)
		if cfg.Mode == "queue" && enq != nil {
			sink = NewQueueSink(enq, name, url)
		}
		return NewForwarder(name, sink, timeout, m)
	}
	return Forwarders{
		Comparison: build(SinkComparison, cfg.ComparisonURL),
		Review:     build(SinkReview, cfg.ReviewURL),
	}
}

// Wait blocks until both forwarders are idle
func (f Forwarders) Wait() {
	f.Comparison.Wait()
	f.Review.Wait()
}
