package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often a Provider ticks its Store
const DefaultInterval = time.Second

// Provider drives a Store with a recurring timer. The timer exists only while
// at least one consumer is attached: the first Attach starts it and the last
// release stops it.
type Provider struct {
	store    *Store
	clock    clockwork.Clock
	interval time.Duration

	mu   sync.Mutex
	refs int
	stop chan struct{}
	done chan struct{}
}

// Option configures a Provider
type Option func(*Provider)

// WithInterval sets the tick interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock sets the clock used for the ticker. Defaults to the Store's source.
func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) {
		if c != nil {
			p.clock = c
		}
	}
}

// NewProvider creates a new Provider for store
func NewProvider(store *Store, opts ...Option) *Provider {
	p := &Provider{
		store:    store,
		clock:    store.source,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the Store this provider ticks
func (p *Provider) Store() *Store {
	return p.store
}

// Interval returns the configured tick interval
func (p *Provider) Interval() time.Duration {
	return p.interval
}

// Attach registers a consumer and returns its release func. Calling release
// more than once has no effect.
func (p *Provider) Attach() (release func()) {
	p.mu.Lock()
	p.refs++
	if p.refs == 1 {
		p.start()
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(p.detach)
	}
}

// Run keeps one attachment alive until ctx is cancelled
func (p *Provider) Run(ctx context.Context) error {
	release := p.Attach()
	defer release()

	<-ctx.Done()
	return nil
}

// Active reports whether the ticker is running
func (p *Provider) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *Provider) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refs--
	if p.refs > 0 {
		return
	}
	p.refs = 0

	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop, p.done = nil, nil

	log.Debug().Dur("interval", p.interval).Msg("clock ticker stopped")
}

// start must be called with p.mu held
func (p *Provider) start() {
	ticker := p.clock.NewTicker(p.interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop, p.done = stop, done

	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				p.store.Tick()
			}
		}
	}()

	log.Debug().Dur("interval", p.interval).Msg("clock ticker started")
}
