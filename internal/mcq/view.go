package mcq

import (
	"time"

	"exam-portal/internal/models"
)

// View is what the browser renders. Correct answers never appear before submission.
type View struct {
	State        State                `json:"state"`
	Path         string               `json:"path"`
	Metadata     *models.TestMetadata `json:"metadata,omitempty"`
	DurationText string               `json:"duration_text,omitempty"`
	Deadline     *time.Time           `json:"deadline,omitempty"`
	Remaining    int                  `json:"remaining"`
	Questions    []QuestionView       `json:"questions,omitempty"`
	Answers      models.AnswerMap     `json:"answers,omitempty"`
	Rail         []RailEntry          `json:"rail,omitempty"`
	Review       *Review              `json:"review,omitempty"`
	Error        string               `json:"error,omitempty"`
	ReturnTo     string               `json:"return_to,omitempty"`
}

type QuestionView struct {
	Key      string       `json:"key"`
	No       int          `json:"no"`
	Question string       `json:"question"`
	Options  []OptionView `json:"options"`
}

type OptionView struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// RailEntry is one stop of the jump-navigation rail.
type RailEntry struct {
	No       int    `json:"no"`
	Key      string `json:"key"`
	Answered bool   `json:"answered"`
}

// Snapshot is side-effect free; rendering it any number of times never re-arms the deadline.
func (r *Runner) Snapshot() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{State: r.state, Path: r.cfg.Path}
	switch r.state {
	case StateLoading:
		return v
	case StateError:
		if r.loadErr != nil {
			v.Error = r.loadErr.Error()
		}
		v.ReturnTo = r.cfg.ReturnTo
		return v
	}

	meta := r.meta
	deadline := r.deadline
	v.Metadata = &meta
	v.DurationText = FormatDuration(meta.Duration)
	v.Deadline = &deadline
	v.Remaining = r.remaining
	v.Answers = r.answers.Clone()
	v.Rail = r.railLocked()
	if r.state == StateSubmitted {
		v.Review = r.review
		v.Remaining = 0
		return v
	}
	v.Questions = make([]QuestionView, 0, r.questions.Len())
	for _, e := range r.questions.Entries() {
		qv := QuestionView{Key: e.Key, No: e.No, Question: e.Question.Question}
		for _, k := range e.OptionKeys() {
			qv.Options = append(qv.Options, OptionView{Key: k, Text: e.Options[k]})
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

// Rail lists every question number with its answered flag, in display order.
func (r *Runner) Rail() []RailEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.railLocked()
}

func (r *Runner) railLocked() []RailEntry {
	if r.questions == nil {
		return nil
	}
	rail := make([]RailEntry, 0, r.questions.Len())
	for _, e := range r.questions.Entries() {
		_, answered := r.answers[e.Key]
		rail = append(rail, RailEntry{No: e.No, Key: e.Key, Answered: answered})
	}
	return rail
}
