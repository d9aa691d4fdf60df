// Package heartbeat keeps the webhook subscription alive. Each run takes the
// registration file's checkout, creates or extends the subscription and checks
// the file back in. A worker that finds the file checked out retreats.
package heartbeat

import (
	"context"
	"errors"
	"time"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/registration"
	"github.com/tonimelisma/onedrive-gateway/internal/session"
)

// Outcome is how a run ended.
type Outcome string

const (
	Completed Outcome = "completed"
	Retreated Outcome = "retreated"
	Cancelled Outcome = "cancelled"
	Failed    Outcome = "failed"
	// Skipped means another process on this host is running a heartbeat.
	Skipped Outcome = "skipped"
)

const eventPrefix = "WEBHOOK:heartbeat:"

const (
	DefaultInterval = time.Hour
	DefaultTimeout  = 5 * time.Minute
)

// Lock is the remote checkout around the registration file.
type Lock interface {
	WithCheckout(ctx context.Context, fn func(ctx context.Context) error) error
}

// Renewer creates or extends the subscription of a resource.
type Renewer interface {
	CreateOrRefresh(ctx context.Context, resource string) (registration.Registration, error)
}

// Job is the renewal task for one resource.
type Job struct {
	lock     Lock
	renewer  Renewer
	resource string
	sessions *session.Manager
	timeout  time.Duration
	now      func() time.Time
	logger   logger.Logger
}

// Option configures a Job.
type Option func(*Job)

// WithTimeout bounds a single run.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithSessions records runs and guards them with the host lock.
func WithSessions(m *session.Manager) Option {
	return func(j *Job) { j.sessions = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// New creates a Job.
func New(lock Lock, renewer Renewer, resource string, log logger.Logger, opts ...Option) *Job {
	j := &Job{
		lock:     lock,
		renewer:  renewer,
		resource: resource,
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   log,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunOnce performs one renewal. Cancelling ctx stops the run; the checkout is
// still released.
func (j *Job) RunOnce(ctx context.Context) (Outcome, error) {
	if j.sessions != nil {
		unlock, err := j.sessions.TryLock()
		if errors.Is(err, session.ErrLocked) {
			j.logger.Info(eventPrefix+string(Skipped), "resource", j.resource)
			return Skipped, nil
		}
		if err != nil {
			return Failed, err
		}
		defer unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	started := j.now()
	j.logger.Info(eventPrefix+"started", "resource", j.resource)

	var reg registration.Registration
	err := j.lock.WithCheckout(ctx, func(ctx context.Context) error {
		var err error
		reg, err = j.renewer.CreateOrRefresh(ctx, j.resource)
		return err
	})

	outcome := Completed
	switch {
	case errors.Is(err, registration.ErrCheckedOut):
		outcome, err = Retreated, nil
		j.logger.Info(eventPrefix+string(outcome), "resource", j.resource)
	case err != nil && ctx.Err() != nil:
		outcome = Cancelled
		j.logger.Warn(eventPrefix+string(outcome), "resource", j.resource, "error", err)
	case err != nil:
		outcome = Failed
		j.logger.Error(eventPrefix+string(outcome), "resource", j.resource, "error", err)
	default:
		j.logger.Info(eventPrefix+string(outcome), "resource", j.resource,
			"subscription", reg.RegistrationID, "expires", reg.ExpirationDateTime)
	}

	j.record(started, outcome, reg, err)
	return outcome, err
}

func (j *Job) record(started time.Time, outcome Outcome, reg registration.Registration, runErr error) {
	if j.sessions == nil {
		return
	}
	state := &session.State{
		Outcome:            string(outcome),
		Resource:           j.resource,
		StartedAt:          started,
		FinishedAt:         j.now(),
		ExpirationDateTime: reg.ExpirationDateTime,
	}
	if runErr != nil {
		state.Error = runErr.Error()
	}
	if err := j.sessions.Save(state); err != nil {
		j.logger.Warn("could not record heartbeat run", "error", err)
	}
}

// Start runs the job immediately and then at every multiple of interval until
// ctx is done.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	for {
		_, _ = j.RunOnce(ctx)

		next := j.now().Truncate(interval).Add(interval)
		timer := time.NewTimer(next.Sub(j.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Debug("heartbeat schedule stopped")
			return
		case <-timer.C:
		}
	}
}
