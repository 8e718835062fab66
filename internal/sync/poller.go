package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/threadmail/internal/logging"
	"github.com/nhle/threadmail/internal/source"
)

// SyncState represents the current state of the reconciliation loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the outcome of the latest cycle.
type SyncStatus struct {
	State     SyncState
	LastSync  time.Time
	LastCount int
	Error     error
}

// CycleFunc runs one reconciliation cycle and returns the number of
// imported messages.
type CycleFunc func(ctx context.Context) (int, error)

// defaultCycleTimeout bounds a single cycle started by the poller.
const defaultCycleTimeout = 10 * time.Minute

// Poller runs a cycle periodically and on demand.
type Poller struct {
	run      CycleFunc
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger

	status    SyncStatus
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a Poller calling run every interval.
func NewPoller(run CycleFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{
		run:       run,
		interval:  interval,
		timeout:   defaultCycleTimeout,
		log:       logging.Log,
		triggerCh: make(chan struct{}, 1),
	}
}

// SetLogger overrides the logger.
func (p *Poller) SetLogger(log logrus.FieldLogger) {
	p.log = log
}

// Start launches the polling goroutine. The first cycle runs immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.loop(p.stopCh, p.doneCh)
}

// Stop halts the polling goroutine and waits for an in-flight cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	<-done
}

// Trigger requests an immediate cycle. Requests made while one is already
// pending collapse into it.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the latest cycle.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.cycle()
		case <-p.triggerCh:
			p.cycle()
		}
	}
}

// cycle runs one cycle and records its outcome.
func (p *Poller) cycle() {
	p.setStatus(SyncRunning, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	count, err := p.run(ctx)
	if err != nil {
		p.setStatus(SyncError, 0, err)

		if source.IsAuthError(err) {
			p.log.WithError(err).Error("mailbox authentication failed; check the mail.imap settings")
			return
		}
		p.log.WithError(err).Error("reconciliation cycle failed")
		return
	}

	p.setStatus(SyncIdle, count, nil)
}

func (p *Poller) setStatus(state SyncState, count int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
		p.status.LastCount = count
	}
}
