// Package upload drives a secure send: it verifies the recipient's key, then
// stages an encrypted metadata record and the encrypted data of every file,
// polls until the backend confirms them, and finally stages and confirms the
// message record that references the files.
//
// The Orchestrator is a state machine over immutable Session snapshots.
// Every advance reads the latest snapshot, performs one unit of work and
// publishes a new snapshot; snapshots carry a generation so work started
// before a Restart can never touch the session that replaced it.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/logging"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/staging"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/trust"
)

// ErrNoRetryPending is returned by Retry outside the retry countdown.
var ErrNoRetryPending = errors.New("no retry pending")

// Status is the caller-facing view of the orchestrator.
type Status struct {
	Generation       uint64
	Phase            Phase
	SecondsRemaining int
	Err              error
	// Unverified marks a send to a recipient not yet anchored in the ledger.
	Unverified   bool
	ComputedRoot string
	Progress     float64
}

type Orchestrator struct {
	deps Deps
	opts Options
	log  logging.Logger

	mu      sync.Mutex
	gen     uint64
	session *Session
	status  Status
	cancel  context.CancelFunc
	changed chan struct{}
	started time.Time
	active  bool

	// blocked maps tampered recipients to the root computed for them. It
	// lives as long as the orchestrator.
	blocked map[string]string

	workers sync.WaitGroup
}

func New(deps Deps, opts Options) *Orchestrator {
	opts.setDefaults()
	if deps.Log == nil {
		deps.Log = logging.Nop()
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		log:     deps.Log,
		changed: make(chan struct{}),
		blocked: make(map[string]string),
	}
}

// Send starts a new send. It fails with common.ErrBusy while another send is
// underway, including one waiting for its retry, and with
// common.ErrTrustTampering for a recipient already found tampered.
func (o *Orchestrator) Send(req Request) error {
	if len(req.Files) == 0 {
		return fmt.Errorf("%w: nothing to send", common.ErrLogicInvariant)
	}
	for _, f := range req.Files {
		if f.Data == nil || f.Size < 0 {
			return fmt.Errorf("%w: file %q is not readable", common.ErrLogicInvariant, f.Name)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil && !o.status.Phase.Terminal() {
		return common.ErrBusy
	}
	if root, ok := o.blocked[req.Recipient.UserID]; ok {
		return fmt.Errorf("%w: recipient %s (computed root %s)", common.ErrTrustTampering, req.Recipient.UserID, root)
	}

	s, err := o.newSession(&req)
	if err != nil {
		return err
	}

	o.gen++
	s.Generation = o.gen
	o.session = s
	o.status = Status{Generation: o.gen, Phase: PhaseIdle}
	o.started = o.opts.Now()
	o.active = true
	o.deps.Metrics.RecordSendStart()

	o.log.Info(context.Background(), "send started", "generation", o.gen, "recipient", req.Recipient.UserID, "files", len(req.Files))
	o.startLocked()
	return nil
}

func (o *Orchestrator) newSession(req *Request) (*Session, error) {
	s := &Session{
		Request:  req,
		BurnDate: o.opts.Now().Add(o.opts.BurnAfter),
		Files:    make([]FileTransfer, len(req.Files)),
	}
	for i := range req.Files {
		key, err := o.deps.Suite.RandomBytes(o.opts.FileKeyLength)
		if err != nil {
			return nil, fmt.Errorf("%w: file key: %v", common.ErrLogicInvariant, err)
		}
		name, err := common.MakeRandHexString(16)
		if err != nil {
			return nil, fmt.Errorf("%w: file name: %v", common.ErrLogicInvariant, err)
		}
		s.Files[i] = FileTransfer{
			Key:             key,
			RandomName:      name,
			RecordRequestID: staging.NewRequestID(),
			DataRequestID:   staging.NewRequestID(),
		}
	}
	return s, nil
}

// Retry skips the rest of the retry countdown.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.Phase != PhaseRetryPending {
		return ErrNoRetryPending
	}
	o.log.Info(context.Background(), "manual retry", "generation", o.gen)
	o.resumeLocked()
	return nil
}

// Restart abandons the current send, including anything already staged, and
// returns to Idle. Timers and in-flight work of the abandoned send are
// cancelled and their results ignored.
func (o *Orchestrator) Restart() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.active {
		o.deps.Metrics.RecordSendFinish("restarted", o.opts.Now().Sub(o.started).Seconds())
		o.active = false
	}

	o.gen++
	o.session = nil
	o.status = Status{Generation: o.gen, Phase: PhaseIdle}
	o.log.Info(context.Background(), "session restarted", "generation", o.gen)
	o.publishLocked()
}

// Close cancels any work and waits for it to stop.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	o.mu.Unlock()

	o.workers.Wait()
}

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Snapshot returns the current session. It must not be modified.
func (o *Orchestrator) Snapshot() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Changed returns a channel closed at the next status change.
func (o *Orchestrator) Changed() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.changed
}

// Wait blocks until the send is done, failed fatally or was blocked by the
// trust check.
func (o *Orchestrator) Wait(ctx context.Context) (Status, error) {
	for {
		o.mu.Lock()
		st, ch := o.status, o.changed
		o.mu.Unlock()

		if st.Phase.Terminal() {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// startLocked runs the state machine for the current generation.
func (o *Orchestrator) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	gen := o.gen

	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		o.run(ctx, gen)
	}()
}

func (o *Orchestrator) run(ctx context.Context, gen uint64) {
	for ctx.Err() == nil {
		st := o.advance(ctx, gen)
		for st.kind == stepSuspend {
			if !sleepCtx(ctx, st.wait) {
				return
			}
			st = st.resume(ctx)
		}

		switch st.kind {
		case stepDone:
			o.finish(gen)
			return
		case stepFail:
			o.fail(gen, st.err)
			return
		case stepStale:
			return
		}
	}
}

// fail is the single failure entry point. Tampering blocks the recipient,
// retryable errors start the countdown, anything else is fatal.
func (o *Orchestrator) fail(gen uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		return
	}
	ctx := context.Background()
	o.status.Err = err
	o.status.SecondsRemaining = 0

	switch {
	case errors.Is(err, common.ErrTrustTampering):
		o.status.Phase = PhaseTrustBlocked
		if o.session != nil {
			o.status.ComputedRoot = o.blocked[o.session.Request.Recipient.UserID]
		}
		o.finishMetricsLocked("tampered")
		o.log.Error(ctx, "send blocked by trust check", "generation", gen, "error", err)

	case common.IsRetryable(err):
		// A refused write may be down to stale credentials; fetch new ones
		// for the retry.
		if inv, ok := o.deps.Credentials.(invalidator); ok && errors.Is(err, common.ErrServerRejected) {
			inv.Invalidate()
		}
		o.status.Phase = PhaseRetryPending
		o.status.SecondsRemaining = int(o.opts.RetryCountdown / time.Second)
		o.deps.Metrics.RecordRetry()
		o.log.Warn(ctx, "send interrupted, retry scheduled", "generation", gen, "in", o.opts.RetryCountdown, "error", err)
		o.startCountdownLocked()

	default:
		o.status.Phase = PhaseFatalError
		o.finishMetricsLocked("fatal")
		o.log.Error(ctx, "send failed", "generation", gen, "error", err)
	}
	o.publishLocked()
}

func (o *Orchestrator) finish(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		return
	}
	if o.session != nil {
		for i := range o.session.Files {
			common.WipeByteArray(o.session.Files[i].Key)
		}
		if o.session.Message != nil {
			common.WipeByteArray(o.session.Message.Key)
		}
	}
	o.status.Phase = PhaseDone
	o.status.Err = nil
	o.finishMetricsLocked("done")
	o.log.Info(context.Background(), "send done", "generation", gen)
	o.publishLocked()
}

func (o *Orchestrator) finishMetricsLocked(outcome string) {
	if !o.active {
		return
	}
	o.active = false
	o.deps.Metrics.RecordSendFinish(outcome, o.opts.Now().Sub(o.started).Seconds())
}

// startCountdownLocked ticks the retry countdown down to zero, then resumes.
func (o *Orchestrator) startCountdownLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	gen := o.gen

	o.workers.Add(1)
	go func() {
		defer o.workers.Done()

		t := time.NewTicker(o.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			o.mu.Lock()
			if gen != o.gen || o.status.Phase != PhaseRetryPending {
				o.mu.Unlock()
				return
			}
			o.status.SecondsRemaining--
			if o.status.SecondsRemaining <= 0 {
				o.resumeLocked()
				o.mu.Unlock()
				return
			}
			o.publishLocked()
			o.mu.Unlock()
		}
	}()
}

// resumeLocked leaves RetryPending and re-enters the state machine with the
// session as it was.
func (o *Orchestrator) resumeLocked() {
	if o.cancel != nil {
		o.cancel()
	}
	o.status.Phase = PhaseIdle
	o.status.Err = nil
	o.status.SecondsRemaining = 0
	o.publishLocked()
	o.startLocked()
}

// update applies fn to a copy of the current session and publishes it. It
// reports false, without calling fn, when gen is no longer current.
func (o *Orchestrator) update(gen uint64, fn func(s *Session)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen || o.session == nil {
		return false
	}
	next := o.session.Clone()
	fn(next)
	o.session = next
	o.publishLocked()
	return true
}

// snapshot returns the session of gen, or nil once it was replaced.
func (o *Orchestrator) snapshot(gen uint64) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		return nil
	}
	return o.session
}

func (o *Orchestrator) setPhase(gen uint64, p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen || o.status.Phase == p {
		return
	}
	o.status.Phase = p
	o.log.Debug(context.Background(), "phase", "generation", gen, "phase", p.String())
	o.publishLocked()
}

func (o *Orchestrator) publishLocked() {
	if s := o.session; s != nil {
		o.status.Progress = s.Progress()
		o.status.Unverified = s.Trust != nil && s.Trust.Outcome == trust.OutcomeUnanchored
	}
	close(o.changed)
	o.changed = make(chan struct{})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
