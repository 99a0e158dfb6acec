package mcq

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"exam-portal/internal/logger"
	"exam-portal/internal/models"
)

var (
	ErrSessionNotFound = errors.New("test session not found")
	ErrLoadFailed      = errors.New("test could not be loaded")
)

type Backend interface {
	Fetcher
	Grader
}

// TestCache keeps fetched question sets and the per-test best scores.
type TestCache interface {
	GetTest(ctx context.Context, path string) (*models.TestBundle, error)
	SetTest(ctx context.Context, path string, bundle *models.TestBundle) error
	RecordScore(ctx context.Context, path, email string, score int) error
	TopScores(ctx context.Context, path string, limit int64) ([]models.LeaderboardEntry, error)
}

type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *models.Attempt) error
	ListAttempts(ctx context.Context, userID uint, limit int) ([]models.Attempt, error)
}

// Publisher fans runner events out to the session's websocket room.
type Publisher interface {
	Publish(room, messageType string, data interface{})
	RoomSize(room string) int
}

// Student identifies the signed-in user taking a test.
type Student struct {
	ID    uint
	Email string
}

const (
	defaultIdleTimeout   = 2 * time.Minute
	defaultRetention     = 15 * time.Minute
	defaultSweepInterval = 30 * time.Second
)

type Options struct {
	PathPrefix string
	ReturnTo   string
	Clock      clock.Clock
	// IdleTimeout is how long a session without a websocket listener stays attended after
	// its last request.
	IdleTimeout time.Duration
	// Retention is how long a submitted session stays readable.
	Retention     time.Duration
	SweepInterval time.Duration
}

type session struct {
	id      string
	owner   uint
	runner  *Runner
	started time.Time
	// lastSeen is the time of the last session request after Start; zero until then.
	lastSeen time.Time
}

type Service struct {
	backend Backend
	cache   TestCache
	repo    AttemptStore
	hub     Publisher
	opts    Options
	log     *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewService(backend Backend, cache TestCache, repo AttemptStore, hub Publisher, opts Options, log *logger.Logger) *Service {
	if opts.PathPrefix == "" {
		opts.PathPrefix = "/test/"
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	return &Service{
		backend:  backend,
		cache:    cache,
		repo:     repo,
		hub:      hub,
		opts:     opts,
		log:      log.With("component", "mcq"),
		sessions: make(map[string]*session),
	}
}

// Start resolves the test from the navigation location, loads it and starts the countdown.
// A load failure returns the error view alongside ErrLoadFailed; no session is kept.
func (s *Service) Start(ctx context.Context, student Student, location string) (string, View, error) {
	path, err := ResolveTestPath(location, s.opts.PathPrefix)
	if err != nil {
		return "", View{}, err
	}

	id := uuid.NewString()
	runner := NewRunner(context.Background(), RunnerConfig{
		Path:     path,
		Email:    student.Email,
		ReturnTo: s.opts.ReturnTo,
		Fetcher:  cachedFetcher{backend: s.backend, cache: s.cache, log: s.log},
		Grader:   s.backend,
		Clock:    s.opts.Clock,
		Log:      s.log.With("session", id),
		Notify: func(e Event) {
			if s.hub != nil {
				s.hub.Publish(id, e.Type, e.Data)
			}
		},
		OnSubmitted: func(rv *Review) {
			s.recordAttempt(student, path, rv)
		},
		Attended: func() bool {
			return s.attended(id)
		},
		OnAbandoned: func() {
			s.drop(id)
		},
	})

	if err := runner.Load(ctx); err != nil {
		view := runner.Snapshot()
		runner.Close()
		return "", view, errors.Wrap(ErrLoadFailed, err.Error())
	}

	s.mu.Lock()
	s.sessions[id] = &session{id: id, owner: student.ID, runner: runner, started: s.opts.Clock.Now()}
	s.mu.Unlock()
	s.log.Info("test session started", "session", id, "user", student.ID, "path", path)
	return id, runner.Snapshot(), nil
}

// runner looks up an owned session and marks it as seen.
func (s *Service) runner(id string, owner uint) (*Runner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.owner != owner {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.opts.Clock.Now()
	return sess.runner, nil
}

// attended reports whether a student is still on the test page: a websocket listener is
// connected, or a session request arrived within the idle timeout.
func (s *Service) attended(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	return s.attendedLocked(sess, s.opts.Clock.Now())
}

func (s *Service) attendedLocked(sess *session, now time.Time) bool {
	if s.hub != nil && s.hub.RoomSize(sess.id) > 0 {
		return true
	}
	return !sess.lastSeen.IsZero() && now.Sub(sess.lastSeen) < s.opts.IdleTimeout
}

func (s *Service) drop(id string) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		s.log.Info("test session abandoned", "session", id)
	}
}

// Sweep evicts submitted sessions past their retention and abandons unsubmitted ones
// nobody has attended for the idle timeout. New sessions get one idle timeout to connect.
func (s *Service) Sweep() int {
	now := s.opts.Clock.Now()
	var expired []*session

	s.mu.Lock()
	for id, sess := range s.sessions {
		if s.expiredLocked(sess, now) {
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.runner.Close()
		s.log.Info("test session evicted", "session", sess.id, "state", sess.runner.State())
	}
	return len(expired)
}

func (s *Service) expiredLocked(sess *session, now time.Time) bool {
	if at, ok := sess.runner.Finished(); ok {
		return now.Sub(at) >= s.opts.Retention
	}
	switch sess.runner.State() {
	case StateAnswering, StateConfirming:
	default:
		return false
	}
	if now.Sub(sess.started) < s.opts.IdleTimeout {
		return false
	}
	return !s.attendedLocked(sess, now)
}

// Run sweeps sessions until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := s.opts.Clock.Ticker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Owns reports whether the session exists and belongs to the user.
func (s *Service) Owns(id string, owner uint) bool {
	_, err := s.runner(id, owner)
	return err == nil
}

func (s *Service) Get(id string, owner uint) (View, error) {
	r, err := s.runner(id, owner)
	if err != nil {
		return View{}, err
	}
	return r.Snapshot(), nil
}

func (s *Service) SelectAnswer(id string, owner uint, questionKey, option string) (View, error) {
	return s.apply(id, owner, func(r *Runner) error { return r.SelectAnswer(questionKey, option) })
}

func (s *Service) ClearAnswer(id string, owner uint, questionKey string) (View, error) {
	return s.apply(id, owner, func(r *Runner) error { return r.ClearAnswer(questionKey) })
}

func (s *Service) RequestSubmit(id string, owner uint) (View, error) {
	return s.apply(id, owner, func(r *Runner) error { return r.RequestSubmit() })
}

func (s *Service) CancelSubmit(id string, owner uint) (View, error) {
	return s.apply(id, owner, func(r *Runner) error { return r.CancelSubmit() })
}

func (s *Service) ConfirmSubmit(id string, owner uint) (View, error) {
	return s.apply(id, owner, func(r *Runner) error {
		_, err := r.ConfirmSubmit()
		return err
	})
}

func (s *Service) apply(id string, owner uint, fn func(*Runner) error) (View, error) {
	r, err := s.runner(id, owner)
	if err != nil {
		return View{}, err
	}
	if err := fn(r); err != nil {
		return r.Snapshot(), err
	}
	return r.Snapshot(), nil
}

// Close abandons the session. Nothing is sent to the backend.
func (s *Service) Close(id string, owner uint) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok || sess.owner != owner {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()
	sess.runner.Close()
	s.log.Info("test session closed", "session", id, "state", sess.runner.State())
	return nil
}

// Shutdown closes every open session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.runner.Close()
	}
}

func (s *Service) Attempts(ctx context.Context, userID uint, limit int) ([]models.Attempt, error) {
	if s.repo == nil {
		return []models.Attempt{}, nil
	}
	attempts, err := s.repo.ListAttempts(ctx, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list attempts")
	}
	return attempts, nil
}

func (s *Service) Leaderboard(ctx context.Context, path string, limit int64) ([]models.LeaderboardEntry, error) {
	if s.cache == nil {
		return []models.LeaderboardEntry{}, nil
	}
	entries, err := s.cache.TopScores(ctx, path, limit)
	if err != nil {
		return nil, errors.Wrap(err, "leaderboard")
	}
	return entries, nil
}

func (s *Service) recordAttempt(student Student, path string, rv *Review) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.repo != nil {
		attempt := &models.Attempt{
			UserID:      student.ID,
			Email:       student.Email,
			Path:        path,
			TestName:    rv.TestName,
			Score:       rv.Score,
			Total:       rv.Total,
			Status:      rv.Status,
			Source:      rv.Source,
			Reason:      rv.Reason,
			SubmittedAt: rv.SubmittedAt,
		}
		if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
			s.log.Error("failed to store attempt", "user", student.ID, "path", path, "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.RecordScore(ctx, path, student.Email, rv.Score); err != nil {
			s.log.Warn("failed to record score", "path", path, "error", err)
		}
	}
}

// cachedFetcher reads question sets through the cache.
type cachedFetcher struct {
	backend Fetcher
	cache   TestCache
	log     *logger.Logger
}

func (f cachedFetcher) FetchTest(ctx context.Context, path string) (*models.TestBundle, error) {
	if f.cache != nil {
		if bundle, err := f.cache.GetTest(ctx, path); err == nil {
			return bundle, nil
		}
	}
	bundle, err := f.backend.FetchTest(ctx, path)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		if err := f.cache.SetTest(ctx, path, bundle); err != nil {
			f.log.Warn("failed to cache test", "path", path, "error", err)
		}
	}
	return bundle, nil
}
