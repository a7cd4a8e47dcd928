package txflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/metrics"
	"hl-order-engine/internal/order"

	"go.uber.org/zap"
)

var ErrInvalidTransition = errors.New("invalid transition")

type Failure struct {
	Message     string
	Partial     bool
	Unprotected bool
	Retryable   bool
	Err         error
}

type Config struct {
	Class       ActionClass
	Policy      Policy
	Preferences Preferences
	Scheduler   Scheduler
	Refresh     RefreshFunc
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// Action is the work behind a flow. Validate must not touch the network.
type Action struct {
	Validate func() error
	Submit   func(ctx context.Context) error
}

type Machine struct {
	class     ActionClass
	policy    Policy
	prefs     Preferences
	scheduler Scheduler
	refresh   RefreshFunc
	log       *zap.Logger
	metrics   *metrics.Metrics
	action    Action

	mu       sync.Mutex
	step     Step
	failure  *Failure
	timer    Timer
	disposed bool
}

func New(cfg Config, action Action) *Machine {
	if cfg.Scheduler == nil {
		cfg.Scheduler = ClockScheduler()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return &Machine{
		class:     cfg.Class,
		policy:    cfg.Policy,
		prefs:     cfg.Preferences,
		scheduler: cfg.Scheduler,
		refresh:   cfg.Refresh,
		log:       cfg.Log.With(zap.String("class", string(cfg.Class))),
		metrics:   cfg.Metrics,
		action:    action,
		step:      StepForm,
	}
}

func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func (m *Machine) Failure() (Failure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure == nil {
		return Failure{}, false
	}
	return *m.failure, true
}

// Continue leaves form. The confirmation-skip preference is read here and
// only here: when set the flow submits immediately, otherwise it stops at
// confirm. While pending it is a no-op.
func (m *Machine) Continue(ctx context.Context) error {
	m.mu.Lock()
	if m.step == StepPending {
		m.mu.Unlock()
		return nil
	}
	if m.step != StepForm {
		step := m.step
		m.mu.Unlock()
		return fmt.Errorf("continue from %s: %w", step, ErrInvalidTransition)
	}
	if err := m.validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.prefs == nil || !m.prefs.SkipConfirmation(m.class) {
		m.step = StepConfirm
		m.mu.Unlock()
		return nil
	}
	m.metrics.ConfirmationsSkipped.Inc()
	return m.begin(ctx)
}

// Submit moves confirm to pending and runs the action. While pending it is
// a no-op.
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.step == StepPending {
		m.mu.Unlock()
		return nil
	}
	if m.step != StepConfirm {
		step := m.step
		m.mu.Unlock()
		return fmt.Errorf("submit from %s: %w", step, ErrInvalidTransition)
	}
	if err := m.validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	return m.begin(ctx)
}

// begin is entered with m.mu held and releases it while the action runs.
func (m *Machine) begin(ctx context.Context) error {
	m.step = StepPending
	m.failure = nil
	m.mu.Unlock()

	m.metrics.FlowsSubmitted.Inc()
	err := m.submit(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.step = StepSuccess
		m.log.Info("transaction succeeded")
		m.scheduleRefresh()
		return nil
	}
	var verr *order.ValidationError
	if errors.As(err, &verr) {
		m.step = StepForm
		return err
	}
	f := classify(err)
	m.failure = &f
	m.step = StepError
	m.metrics.FlowsFailed.Inc()
	m.log.Warn("transaction failed",
		zap.Bool("partial", f.Partial),
		zap.Bool("retryable", f.Retryable),
		zap.Error(err),
	)
	return err
}

func (m *Machine) submit(ctx context.Context) (err error) {
	if m.action.Submit == nil {
		return errors.New("no submit action")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("submit panicked: %v", r)
		}
	}()
	return m.action.Submit(ctx)
}

func (m *Machine) validate() error {
	if m.action.Validate == nil {
		return nil
	}
	return m.action.Validate()
}

func (m *Machine) scheduleRefresh() {
	if m.refresh == nil || m.disposed {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	refresh := m.refresh
	m.timer = m.scheduler.AfterFunc(m.policy.RefreshDelay, func() { refresh() })
}

// Back returns from confirm to form.
func (m *Machine) Back() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepConfirm {
		return false
	}
	m.step = StepForm
	return true
}

// Retry returns from error to form. Entered values live with the caller
// and are untouched. Failures that cannot succeed without re-selecting the
// instrument are not retryable.
func (m *Machine) Retry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepError || m.failure == nil || !m.failure.Retryable {
		return false
	}
	m.step = StepForm
	m.failure = nil
	return true
}

// Close reports whether the flow may be dismissed now. Closing a finished
// flow resets it to form; a scheduled refresh still fires.
func (m *Machine) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.step {
	case StepPending:
		return m.policy.Dismissible
	case StepSuccess, StepError, StepConfirm:
		m.step = StepForm
		m.failure = nil
	}
	return true
}

// Dispose cancels a refresh that has not fired yet. The machine schedules
// nothing afterwards.
func (m *Machine) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func classify(err error) Failure {
	f := Failure{Message: err.Error(), Retryable: true, Err: err}
	var partial *order.PartialSequenceError
	var serr *order.SubmissionError
	switch {
	case errors.Is(err, asset.ErrMarketNotFound):
		f.Retryable = false
	case errors.As(err, &partial):
		f.Partial = true
		f.Unprotected = partial.Unprotected
	case errors.As(err, &serr) && serr.Err != nil:
		f.Message = serr.Err.Error()
	}
	return f
}
