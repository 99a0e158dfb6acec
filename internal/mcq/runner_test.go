package mcq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-portal/internal/logger"
	"exam-portal/internal/models"
)

type fakeBackend struct {
	mu        sync.Mutex
	bundle    *models.TestBundle
	fetchErr  error
	submitErr error
	result    *models.SubmissionResult
	fetches   int
	payloads  []models.SubmissionPayload
	// release, when set, holds SubmitAnswers until it is closed.
	release chan struct{}
}

func (f *fakeBackend) FetchTest(ctx context.Context, path string) (*models.TestBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.bundle, nil
}

func (f *fakeBackend) SubmitAnswers(ctx context.Context, payload models.SubmissionPayload) (*models.SubmissionResult, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.result, nil
}

func (f *fakeBackend) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeBackend) lastPayload() models.SubmissionPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func scenarioBundle() *models.TestBundle {
	return &models.TestBundle{
		Metadata: models.TestMetadata{TestName: "Mock 1", Duration: 2, HighScore: 10},
		Questions: map[string]models.Question{
			"q1": {No: 1, Question: "Q", Answer: "A", Options: map[string]string{"A": "x", "B": "y"}},
		},
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(typ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newTestRunner(t *testing.T, backend *fakeBackend, clk clock.Clock, onSubmitted func(*Review)) (*Runner, *eventLog) {
	t.Helper()
	events := &eventLog{}
	r := NewRunner(context.Background(), RunnerConfig{
		Path:        "mock-1",
		Email:       "ama@example.com",
		ReturnTo:    "/study",
		Fetcher:     backend,
		Grader:      backend,
		Clock:       clk,
		Log:         logger.Nop(),
		Notify:      events.add,
		OnSubmitted: onSubmitted,
	})
	t.Cleanup(r.Close)
	return r, events
}

func TestRunner_TimeoutSubmitsOnceWithEmptyAnswers(t *testing.T) {
	backend := &fakeBackend{bundle: scenarioBundle(), submitErr: errors.New("network down")}
	mock := clock.NewMock()
	var reviews []*Review
	var mu sync.Mutex
	r, events := newTestRunner(t, backend, mock, func(rv *Review) {
		mu.Lock()
		reviews = append(reviews, rv)
		mu.Unlock()
	})

	require.NoError(t, r.Load(context.Background()))
	view := r.Snapshot()
	assert.Equal(t, StateAnswering, view.State)
	assert.Equal(t, 2, view.Remaining)

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return events.count(EventTick) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, backend.submits(), "nothing is sent before the deadline")
	assert.Equal(t, StateAnswering, r.State())
	assert.Equal(t, 1, r.Snapshot().Remaining)

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return r.State() == StateSubmitted
	}, 2*time.Second, 10*time.Millisecond)

	<-r.Done()
	mock.Add(5 * time.Second)

	assert.Equal(t, 1, backend.submits())
	payload := backend.lastPayload()
	assert.Equal(t, map[string]string{"1": ""}, payload.Answers)
	assert.Equal(t, "mock-1", payload.Path)
	assert.Equal(t, "ama@example.com", payload.Email)
	assert.Equal(t, "Mock 1", payload.TestName)

	view = r.Snapshot()
	require.NotNil(t, view.Review)
	assert.Equal(t, 0, view.Review.Score)
	assert.Equal(t, 1, view.Review.Total)
	assert.Equal(t, 10, view.Review.HighScore)
	assert.Equal(t, models.GradedLocally, view.Review.Source)
	assert.Equal(t, models.SubmitTimeout, view.Review.Reason)
	assert.Equal(t, 0, view.Remaining)
	assert.Empty(t, view.Questions)

	mu.Lock()
	assert.Len(t, reviews, 1)
	mu.Unlock()
	assert.Equal(t, 1, events.count(EventSubmitted))
}

func TestRunner_ManualConfirmFallbackScore(t *testing.T) {
	backend := &fakeBackend{bundle: scenarioBundle(), submitErr: errors.New("status 500")}
	r, _ := newTestRunner(t, backend, clock.NewMock(), nil)
	require.NoError(t, r.Load(context.Background()))

	require.NoError(t, r.SelectAnswer("q1", "A"))
	_, err := r.ConfirmSubmit()
	assert.True(t, errors.Is(err, ErrNotConfirming), "confirm without request")
	assert.Equal(t, 0, backend.submits())

	require.NoError(t, r.RequestSubmit())
	require.NoError(t, r.RequestSubmit())
	assert.Equal(t, StateConfirming, r.State())

	rv, err := r.ConfirmSubmit()
	require.NoError(t, err)
	assert.Equal(t, 1, rv.Score)
	assert.Equal(t, models.SubmitManual, rv.Reason)
	assert.Equal(t, map[string]string{"1": "A"}, backend.lastPayload().Answers)

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop after submission")
	}
}

func TestRunner_CancelReturnsToAnswering(t *testing.T) {
	backend := &fakeBackend{bundle: scenarioBundle()}
	r, _ := newTestRunner(t, backend, clock.NewMock(), nil)
	require.NoError(t, r.Load(context.Background()))

	assert.True(t, errors.Is(r.CancelSubmit(), ErrNotConfirming))
	require.NoError(t, r.RequestSubmit())
	assert.True(t, errors.Is(r.SelectAnswer("q1", "B"), ErrNotAnswering))
	require.NoError(t, r.CancelSubmit())
	assert.Equal(t, StateAnswering, r.State())
	require.NoError(t, r.SelectAnswer("q1", "B"))
	assert.Equal(t, 0, backend.submits())
}

func TestRunner_ServerResult(t *testing.T) {
	backend := &fakeBackend{
		bundle: scenarioBundle(),
		result: &models.SubmissionResult{
			Pairs:  map[int]models.AnswerPair{1: {Selected: "B", Correct: "A"}},
			Score:  0,
			Status: "fail",
		},
	}
	r, _ := newTestRunner(t, backend, clock.NewMock(), nil)
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.SelectAnswer("q1", "B"))
	require.NoError(t, r.RequestSubmit())

	rv, err := r.ConfirmSubmit()
	require.NoError(t, err)
	assert.Equal(t, models.GradedByServer, rv.Source)
	assert.Equal(t, "fail", rv.Status)
	require.Len(t, rv.Items, 1)
	assert.Equal(t, OutcomeIncorrect, rv.Items[0].Outcome)
	assert.Equal(t, "A", rv.Items[0].Correct)

	assert.True(t, errors.Is(r.SelectAnswer("q1", "A"), ErrAlreadySubmitted))
	assert.True(t, errors.Is(r.RequestSubmit(), ErrAlreadySubmitted))
}

func TestRunner_DoubleConfirmSubmitsOnce(t *testing.T) {
	backend := &fakeBackend{bundle: scenarioBundle(), release: make(chan struct{}), submitErr: errors.New("down")}
	r, _ := newTestRunner(t, backend, clock.NewMock(), nil)
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.RequestSubmit())

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.ConfirmSubmit()
		}(i)
	}
	require.Eventually(t, func() bool { return backend.submits() == 1 }, time.Second, 5*time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, 1, backend.submits())
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadySubmitted), err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRunner_TimeoutDuringConfirmSubmitsOnce(t *testing.T) {
	backend := &fakeBackend{bundle: scenarioBundle(), submitErr: errors.New("down")}
	mock := clock.NewMock()
	r, _ := newTestRunner(t, backend, mock, nil)
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.RequestSubmit())

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return r.State() == StateSubmitted
	}, 2*time.Second, 10*time.Millisecond)

	_, err := r.ConfirmSubmit()
	assert.True(t, errors.Is(err, ErrAlreadySubmitted))
	assert.Equal(t, 1, backend.submits())
}

func TestRunner_SnapshotDoesNotRearm(t *testing.T) {
	backend := &fakeBackend{bundle: scenarioBundle()}
	mock := clock.NewMock()
	r, _ := newTestRunner(t, backend, mock, nil)
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.Load(context.Background()))

	first := r.Snapshot()
	for i := 0; i < 10; i++ {
		v := r.Snapshot()
		assert.Equal(t, first.Deadline, v.Deadline)
	}
	assert.Equal(t, 1, backend.fetches)

	require.Len(t, first.Questions, 1)
	q := first.Questions[0]
	assert.Equal(t, "q1", q.Key)
	assert.Equal(t, []OptionView{{Key: "A", Text: "x"}, {Key: "B", Text: "y"}}, q.Options)
	assert.Equal(t, "2 sec", first.DurationText)
}

func TestRunner_LoadFailure(t *testing.T) {
	backend := &fakeBackend{fetchErr: errors.New("status 404")}
	r, events := newTestRunner(t, backend, clock.NewMock(), nil)

	err := r.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, r.State())

	view := r.Snapshot()
	assert.Equal(t, "/study", view.ReturnTo)
	assert.Contains(t, view.Error, "status 404")
	assert.Nil(t, view.Metadata)

	<-r.Done()
	assert.True(t, errors.Is(r.SelectAnswer("q1", "A"), ErrNotReady))
	assert.True(t, errors.Is(r.RequestSubmit(), ErrNotReady))
	assert.Equal(t, 1, events.count(EventState))
	assert.Equal(t, 0, backend.submits())
}

func TestRunner_DuplicateQuestionNumberFailsLoad(t *testing.T) {
	bundle := scenarioBundle()
	bundle.Questions["q2"] = models.Question{No: 1, Question: "dup", Options: map[string]string{"A": "a"}}
	r, _ := newTestRunner(t, &fakeBackend{bundle: bundle}, clock.NewMock(), nil)

	err := r.Load(context.Background())
	assert.True(t, errors.Is(err, models.ErrDuplicateQuestionNo))
	assert.Equal(t, StateError, r.State())
}

func TestRunner_SelectAnswerValidation(t *testing.T) {
	r, _ := newTestRunner(t, &fakeBackend{bundle: scenarioBundle()}, clock.NewMock(), nil)
	assert.True(t, errors.Is(r.SelectAnswer("q1", "A"), ErrNotReady))
	require.NoError(t, r.Load(context.Background()))

	assert.True(t, errors.Is(r.SelectAnswer("q9", "A"), ErrUnknownQuestion))
	assert.True(t, errors.Is(r.SelectAnswer("q1", "Z"), ErrUnknownOption))

	require.NoError(t, r.SelectAnswer("q1", "A"))
	assert.Equal(t, []RailEntry{{No: 1, Key: "q1", Answered: true}}, r.Rail())
	require.NoError(t, r.ClearAnswer("q1"))
	assert.Equal(t, []RailEntry{{No: 1, Key: "q1", Answered: false}}, r.Rail())
}

func TestRunner_CloseDiscardsInFlightSubmit(t *testing.T) {
	backend := &fakeBackend{bundle: scenarioBundle(), release: make(chan struct{})}
	called := false
	r, events := newTestRunner(t, backend, clock.NewMock(), func(*Review) { called = true })
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.RequestSubmit())

	errc := make(chan error, 1)
	go func() {
		_, err := r.ConfirmSubmit()
		errc <- err
	}()
	require.Eventually(t, func() bool { return backend.submits() == 1 }, time.Second, 5*time.Millisecond)
	before := events.count(EventSubmitted)

	r.Close()
	assert.True(t, errors.Is(<-errc, ErrClosed))
	assert.False(t, called)
	assert.Equal(t, before, events.count(EventSubmitted))
	assert.Equal(t, StateSubmitting, r.State())
}

func TestRunner_UnattendedDeadlineAbandons(t *testing.T) {
	backend := &fakeBackend{bundle: scenarioBundle()}
	mock := clock.NewMock()
	events := &eventLog{}
	var mu sync.Mutex
	abandoned, submitted := 0, 0
	r := NewRunner(context.Background(), RunnerConfig{
		Path:     "mock-1",
		Fetcher:  backend,
		Grader:   backend,
		Clock:    mock,
		Notify:   events.add,
		Attended: func() bool { return false },
		OnAbandoned: func() {
			mu.Lock()
			abandoned++
			mu.Unlock()
		},
		OnSubmitted: func(*Review) {
			mu.Lock()
			submitted++
			mu.Unlock()
		},
	})
	t.Cleanup(r.Close)
	require.NoError(t, r.Load(context.Background()))

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		mu.Lock()
		defer mu.Unlock()
		return abandoned == 1
	}, 2*time.Second, 10*time.Millisecond)
	<-r.Done()

	assert.Equal(t, 0, backend.submits())
	assert.Equal(t, 0, events.count(EventSubmitted))
	_, err := r.ConfirmSubmit()
	assert.True(t, errors.Is(err, ErrClosed))
	mu.Lock()
	assert.Equal(t, 1, abandoned)
	assert.Equal(t, 0, submitted)
	mu.Unlock()
}
