package mcq

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"

	"exam-portal/internal/logger"
	"exam-portal/internal/models"
)

type State string

const (
	StateLoading    State = "loading"
	StateError      State = "error"
	StateAnswering  State = "answering"
	StateConfirming State = "confirming"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
)

var (
	ErrNoTestSelected   = errors.New("no test selected")
	ErrNotReady         = errors.New("test is not loaded")
	ErrNotAnswering     = errors.New("test is not accepting answers")
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrUnknownOption    = errors.New("unknown option")
	ErrNotConfirming    = errors.New("submission was not requested")
	ErrAlreadySubmitted = errors.New("test already submitted")
	ErrClosed           = errors.New("test session closed")
)

type Fetcher interface {
	FetchTest(ctx context.Context, path string) (*models.TestBundle, error)
}

type Grader interface {
	SubmitAnswers(ctx context.Context, payload models.SubmissionPayload) (*models.SubmissionResult, error)
}

const (
	EventState     = "state"
	EventTick      = "tick"
	EventSubmitted = "submitted"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type RunnerConfig struct {
	Path  string
	Email string
	// ReturnTo is the study-list link offered when loading fails.
	ReturnTo string

	Fetcher Fetcher
	Grader  Grader
	Clock   clock.Clock
	Log     *logger.Logger

	// Notify receives state changes and countdown ticks. It is called without the runner lock held.
	Notify func(Event)
	// OnSubmitted is called once with the final review.
	OnSubmitted func(*Review)
	// Attended is asked when the deadline passes. When it reports false the attempt is
	// abandoned instead of submitted. Nil means always attended.
	Attended func() bool
	// OnAbandoned is called once when the deadline passes with nobody attending.
	OnAbandoned func()
}

// Runner drives one timed test attempt: load, answer, submit exactly once, review.
type Runner struct {
	cfg    RunnerConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	loadErr   error
	meta      models.TestMetadata
	questions *models.QuestionSet
	answers   models.AnswerMap
	deadline  time.Time
	remaining int
	review    *Review
	started   bool
	closed    bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRunner creates a runner whose lifetime is bound to parent; cancelling parent or
// calling Close tears down the countdown and discards late results.
func NewRunner(parent context.Context, cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Runner{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		state:  StateLoading,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Load fetches the question set once. A failure leaves the runner in the terminal error state.
func (r *Runner) Load(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	bundle, err := r.cfg.Fetcher.FetchTest(ctx, r.cfg.Path)
	var qs *models.QuestionSet
	if err == nil {
		qs, err = models.NewQuestionSet(bundle.Questions)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(r.done)
		return ErrClosed
	}
	if err != nil {
		r.state = StateError
		r.loadErr = err
		r.mu.Unlock()
		close(r.done)
		r.cfg.Log.Warn("test load failed", "path", r.cfg.Path, "error", err)
		r.notify(EventState, StateError)
		return err
	}
	r.meta = bundle.Metadata
	r.questions = qs
	r.answers = make(models.AnswerMap)
	r.state = StateAnswering
	now := r.cfg.Clock.Now()
	r.deadline = now.Add(time.Duration(r.meta.Duration) * time.Second)
	r.remaining = remainingSeconds(r.deadline, now)
	// the ticker exists before Load returns so no tick can be missed
	ticker := r.cfg.Clock.Ticker(time.Second)
	r.mu.Unlock()

	go r.countdown(ticker)
	r.cfg.Log.Info("test loaded", "path", r.cfg.Path, "questions", qs.Len(), "duration", r.meta.Duration)
	r.notify(EventState, StateAnswering)
	return nil
}

func (r *Runner) countdown(ticker *clock.Ticker) {
	defer close(r.done)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if r.tick() > 0 {
				continue
			}
			if r.cfg.Attended != nil && !r.cfg.Attended() {
				if r.abandon() {
					r.cfg.Log.Info("deadline passed with nobody attending, attempt abandoned", "path", r.cfg.Path)
					if r.cfg.OnAbandoned != nil {
						r.cfg.OnAbandoned()
					}
				}
				return
			}
			if _, err := r.submit(models.SubmitTimeout, false); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
				r.cfg.Log.Debug("timeout submission skipped", "path", r.cfg.Path, "error", err)
			}
			return
		}
	}
}

func (r *Runner) tick() int {
	r.mu.Lock()
	rem := remainingSeconds(r.deadline, r.cfg.Clock.Now())
	r.remaining = rem
	r.mu.Unlock()
	r.notify(EventTick, rem)
	return rem
}

func remainingSeconds(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (r *Runner) SelectAnswer(questionKey, option string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.answeringLocked(); err != nil {
		return err
	}
	q, ok := r.questions.ByKey(questionKey)
	if !ok {
		return errors.Wrapf(ErrUnknownQuestion, "%q", questionKey)
	}
	if !q.HasOption(option) {
		return errors.Wrapf(ErrUnknownOption, "%q for question %d", option, q.No)
	}
	r.answers[questionKey] = option
	return nil
}

func (r *Runner) ClearAnswer(questionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.answeringLocked(); err != nil {
		return err
	}
	if _, ok := r.questions.ByKey(questionKey); !ok {
		return errors.Wrapf(ErrUnknownQuestion, "%q", questionKey)
	}
	delete(r.answers, questionKey)
	return nil
}

func (r *Runner) answeringLocked() error {
	switch {
	case r.closed:
		return ErrClosed
	case r.state == StateAnswering:
		return nil
	case r.state == StateSubmitting || r.state == StateSubmitted:
		return ErrAlreadySubmitted
	case r.state == StateLoading || r.state == StateError:
		return ErrNotReady
	default:
		return ErrNotAnswering
	}
}

// RequestSubmit opens the confirmation step of a manual submission.
func (r *Runner) RequestSubmit() error {
	r.mu.Lock()
	if r.state == StateConfirming {
		r.mu.Unlock()
		return nil
	}
	if err := r.answeringLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = StateConfirming
	r.mu.Unlock()
	r.notify(EventState, StateConfirming)
	return nil
}

// CancelSubmit closes the confirmation step and returns to answering.
func (r *Runner) CancelSubmit() error {
	r.mu.Lock()
	switch r.state {
	case StateConfirming:
	case StateSubmitting, StateSubmitted:
		r.mu.Unlock()
		return ErrAlreadySubmitted
	default:
		r.mu.Unlock()
		return ErrNotConfirming
	}
	r.state = StateAnswering
	r.mu.Unlock()
	r.notify(EventState, StateAnswering)
	return nil
}

// ConfirmSubmit performs the manual submission after RequestSubmit.
func (r *Runner) ConfirmSubmit() (*Review, error) {
	return r.submit(models.SubmitManual, true)
}

// submit posts the answers exactly once per runner. The state flips to submitting under
// the lock, so a racing timeout and confirm cannot both reach the grader.
func (r *Runner) submit(reason string, confirmed bool) (*Review, error) {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return nil, ErrClosed
	case r.state == StateSubmitting || r.state == StateSubmitted:
		r.mu.Unlock()
		return nil, ErrAlreadySubmitted
	case confirmed && r.state != StateConfirming:
		r.mu.Unlock()
		return nil, ErrNotConfirming
	case r.state != StateAnswering && r.state != StateConfirming:
		r.mu.Unlock()
		return nil, ErrNotReady
	}
	r.state = StateSubmitting
	qs := r.questions
	meta := r.meta
	answers := r.answers.Clone()
	payload := BuildPayload(r.cfg.Path, r.cfg.Email, meta, qs, answers)
	r.mu.Unlock()

	r.stopCountdown()
	r.notify(EventState, StateSubmitting)

	var review *Review
	res, err := r.cfg.Grader.SubmitAnswers(r.ctx, payload)
	if err != nil {
		r.cfg.Log.Warn("submission failed, grading locally", "path", r.cfg.Path, "reason", reason, "error", err)
		review = GradeLocally(qs, answers)
	} else {
		review = ReviewFromResult(qs, answers, res)
	}
	review.TestName = meta.TestName
	review.HighScore = meta.HighScore
	review.Reason = reason
	review.SubmittedAt = r.cfg.Clock.Now()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.review = review
	r.state = StateSubmitted
	r.mu.Unlock()

	r.cfg.Log.Info("test submitted", "path", r.cfg.Path, "reason", reason, "source", review.Source, "score", review.Score)
	r.notify(EventSubmitted, review)
	if r.cfg.OnSubmitted != nil {
		r.cfg.OnSubmitted(review)
	}
	return review, nil
}

func (r *Runner) stopCountdown() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// abandon closes an attempt that is still being answered. It leaves submissions in flight alone.
func (r *Runner) abandon() bool {
	r.mu.Lock()
	if r.closed || (r.state != StateAnswering && r.state != StateConfirming) {
		r.mu.Unlock()
		return false
	}
	r.closed = true
	r.mu.Unlock()
	r.stopCountdown()
	r.cancel()
	return true
}

// Close tears the runner down. In-flight fetches and submissions finish without touching state.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stopCountdown()
	r.cancel()
}

// Done is closed once the countdown goroutine has exited (or loading failed).
func (r *Runner) Done() <-chan struct{} { return r.done }

// Finished reports when the attempt was submitted, if it has been.
func (r *Runner) Finished() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateSubmitted || r.review == nil {
		return time.Time{}, false
	}
	return r.review.SubmittedAt, true
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) notify(typ string, data interface{}) {
	if r.cfg.Notify == nil {
		return
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	r.cfg.Notify(Event{Type: typ, Data: data})
}
