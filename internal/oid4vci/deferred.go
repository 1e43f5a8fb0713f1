package oid4vci

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/metrics"
)

// DefaultPollDelay is the pause between deferred credential polls.
const DefaultPollDelay = 2 * time.Second

// maxBackoffDelay caps the exponential backoff between polls.
const maxBackoffDelay = 5 * time.Minute

var errStillPending = errors.New("credential still pending")

// PollPolicy controls deferred credential polling.
type PollPolicy struct {
	Delay time.Duration
	// MaxAttempts bounds the number of polls; 0 polls until cancelled.
	MaxAttempts uint
	Backoff     bool
}

type fetchFunc func(ctx context.Context) (*CredentialResponse, error)

type pollTask struct {
	owner  string
	cancel context.CancelFunc
}

// Poller runs one polling task per acceptance token. Tasks belong to the
// session that scheduled them and are cancelled with it.
type Poller struct {
	mu      sync.Mutex
	tasks   map[string]*pollTask
	policy  PollPolicy
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewPoller creates a Poller.
func NewPoller(policy PollPolicy, m *metrics.Metrics, logger *zap.Logger) *Poller {
	if policy.Delay <= 0 {
		policy.Delay = DefaultPollDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		tasks:   make(map[string]*pollTask),
		policy:  policy,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.Named("deferred"),
		metrics: m,
	}
}

// Schedule starts polling for token on behalf of owner. onIssued runs once
// when the credential is available. Scheduling a token that is already
// being polled does nothing and returns false.
func (p *Poller) Schedule(owner, token string, fetch fetchFunc, onIssued func(context.Context, *CredentialResponse)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return false
	}
	if _, exists := p.tasks[token]; exists {
		return false
	}

	ctx, cancel := context.WithCancel(p.ctx)
	task := &pollTask{owner: owner, cancel: cancel}
	p.tasks[token] = task

	p.wg.Add(1)
	go p.run(ctx, token, task, fetch, onIssued)
	return true
}

func (p *Poller) run(ctx context.Context, token string, task *pollTask, fetch fetchFunc, onIssued func(context.Context, *CredentialResponse)) {
	defer p.wg.Done()
	defer p.remove(token, task)
	defer task.cancel()

	delayType := retry.FixedDelay
	if p.policy.Backoff {
		delayType = retry.BackOffDelay
	}

	var issued *CredentialResponse
	err := retry.Do(
		func() error {
			resp, err := fetch(ctx)
			if err != nil {
				p.metrics.IncDeferredPoll(metrics.OutcomeFailure)
				return err
			}
			if resp.Credential == "" {
				p.metrics.IncDeferredPoll(metrics.OutcomeDeferred)
				return errStillPending
			}
			p.metrics.IncDeferredPoll(metrics.OutcomeSuccess)
			issued = resp
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.policy.MaxAttempts),
		retry.Delay(p.policy.Delay),
		retry.MaxDelay(maxBackoffDelay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Debug("Deferred credential not ready", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Debug("Deferred polling cancelled", zap.String("owner", task.owner))
		} else {
			p.logger.Warn("Deferred polling gave up", zap.String("owner", task.owner), zap.Error(err))
		}
		return
	}

	onIssued(ctx, issued)
}

func (p *Poller) remove(token string, task *pollTask) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tasks[token] == task {
		delete(p.tasks, token)
	}
}

// CancelOwner stops every task scheduled by owner and returns how many were stopped.
func (p *Poller) CancelOwner(owner string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for token, task := range p.tasks {
		if task.owner == owner {
			task.cancel()
			delete(p.tasks, token)
			n++
		}
	}
	return n
}

// Pending returns the number of running tasks.
func (p *Poller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Close cancels all tasks and waits for them to stop.
func (p *Poller) Close() {
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}
