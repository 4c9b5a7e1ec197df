package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/repolens/workspace-api/internal/db"
)

// DefaultInterval is the tick interval used when none is configured.
const DefaultInterval = 2 * time.Second

// ErrAlreadyRunning is returned by Start when a poll is already in flight.
var ErrAlreadyRunning = errors.New("poller is already running")

// CheckFunc performs one status check and returns the latest analysis
// snapshot. Typically this wraps the reconciler's CheckStatus for a fixed
// workspace.
type CheckFunc func(ctx context.Context) (*db.Analysis, error)

// Config holds poller configuration
type Config struct {
	// Interval between status checks. Defaults to DefaultInterval.
	Interval time.Duration
	// OnUpdate receives every snapshot, including partial progress before
	// completion and the final completed record.
	OnUpdate func(*db.Analysis)
	// OnError receives the failure that stopped the loop. The poller does
	// not retry past one failure.
	OnError func(error)
}

// Poller drives a CheckFunc on a fixed interval until the analysis reaches
// its terminal state or a check fails. One poll loop runs at a time.
type Poller struct {
	check    CheckFunc
	interval time.Duration
	onUpdate func(*db.Analysis)
	onError  func(error)

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a new poller around the given check function
func New(check CheckFunc, config *Config) *Poller {
	if config == nil {
		config = &Config{}
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Poller{
		check:    check,
		interval: interval,
		onUpdate: config.OnUpdate,
		onError:  config.OnError,
	}
}

// Start begins the polling loop. It fails if a loop is already in flight.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return ErrAlreadyRunning
	}
	if p.check == nil {
		return fmt.Errorf("poller has no check function")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.isRunning = true

	go p.run(ctx, p.done)
	return nil
}

// Stop cancels the polling loop and waits for it to exit. Safe to call
// multiple times and after the loop has already terminated.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// Done returns a channel closed when the loop exits for any reason.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer func() {
		ticker.Stop()
		p.mu.Lock()
		p.isRunning = false
		p.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := p.check(ctx)
			if err != nil {
				if ctx.Err() == nil && p.onError != nil {
					p.onError(err)
				}
				return
			}

			if p.onUpdate != nil {
				p.onUpdate(snapshot)
			}

			// Completed status and a present result are equivalent terminal
			// signals; either one ends the loop.
			if snapshot.Status == db.StatusCompleted || snapshot.Completed() {
				log.Printf("Polling finished for workspace %s (status: %s)", snapshot.WorkspaceID, snapshot.Status)
				return
			}
		}
	}
}
