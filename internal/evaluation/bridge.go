package evaluation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/infinitystory/humanstudy/internal/store"
)

// Relay forwards a result batch to the external sink without waiting for
// delivery. It reports whether an attempt was started.
type Relay interface {
	Forward(payload interface{}) bool
}

// Counter is incremented on swallowed persistence failures
type Counter interface {
	Inc()
}

// Bridge persists session state and forwards results. Storage and relay
// failures are logged and never returned to the state machines.
type Bridge struct {
	store    store.Store
	relay    Relay
	log      zerolog.Logger
	failures Counter
	timeout  time.Duration
}

// BridgeOption configures a Bridge
type BridgeOption func(*Bridge)

// WithFailureCounter counts snapshot writes that failed
func WithFailureCounter(c Counter) BridgeOption {
	return func(b *Bridge) { b.failures = c }
}

// WithLogger sets the bridge logger
func WithLogger(l zerolog.Logger) BridgeOption {
	return func(b *Bridge) { b.log = l }
}

// NewBridge creates a bridge over s. A nil relay disables forwarding.
func NewBridge(s store.Store, relay Relay, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:   s,
		relay:   relay,
		log:     zerolog.Nop(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Save overwrites the value under key
func (b *Bridge) Save(ctx context.Context, key string, v interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := store.SetJSON(ctx, b.store, key, v); err != nil {
		b.log.Warn().Err(err).Str("key", key).Msg("failed to save snapshot")
		if b.failures != nil {
			b.failures.Inc()
		}
		return false
	}
	return true
}

// Load decodes the value under key into v. A missing key reports false with
// no error. An undecodable value is returned wrapping store.ErrCorrupt; any
// other error comes from the store itself.
func (b *Bridge) Load(ctx context.Context, key string, v interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := store.GetJSON(ctx, b.store, key, v); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Clear removes the value under key
func (b *Bridge) Clear(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.store.Delete(ctx, key); err != nil {
		b.log.Warn().Err(err).Str("key", key).Msg("failed to clear snapshot")
		if b.failures != nil {
			b.failures.Inc()
		}
	}
}

// Forward hands payload to the relay and returns immediately
func (b *Bridge) Forward(payload interface{}) {
	if b.relay == nil {
		return
	}
	if !b.relay.Forward(payload) {
		b.log.Debug().Msg("relay skipped")
	}
}
