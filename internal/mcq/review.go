package mcq

import (
	"strconv"
	"time"

	"exam-portal/internal/models"
)

const (
	OutcomeCorrect    = "correct"
	OutcomeIncorrect  = "incorrect"
	OutcomeUnanswered = "unanswered"

	MarkCorrect   = "correct"
	MarkIncorrect = "incorrect"
	MarkMissed    = "missed"
)

// Review is the read-only result of a submitted test.
type Review struct {
	TestName    string       `json:"test_name"`
	Score       int          `json:"score"`
	Total       int          `json:"total"`
	HighScore   int          `json:"high_score"`
	Status      string       `json:"status,omitempty"`
	Source      string       `json:"source"`
	Reason      string       `json:"reason"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Items       []ReviewItem `json:"items"`
}

// ReviewItem is one question of the breakdown. Correct and Outcome are empty when the
// grading endpoint gave no comparison data for the question.
type ReviewItem struct {
	No       int            `json:"no"`
	Key      string         `json:"key"`
	Question string         `json:"question"`
	Selected string         `json:"selected"`
	Correct  string         `json:"correct,omitempty"`
	Outcome  string         `json:"outcome,omitempty"`
	Options  []ReviewOption `json:"options"`
}

type ReviewOption struct {
	Key      string `json:"key"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
	Mark     string `json:"mark,omitempty"`
}

// BuildPayload keys every answer by question number; unanswered questions are sent as "".
func BuildPayload(path, email string, meta models.TestMetadata, qs *models.QuestionSet, answers models.AnswerMap) models.SubmissionPayload {
	out := make(map[string]string, qs.Len())
	for _, e := range qs.Entries() {
		out[strconv.Itoa(e.No)] = answers[e.Key]
	}
	return models.SubmissionPayload{
		Path:     path,
		Email:    email,
		TestName: meta.TestName,
		Gateway:  meta.Gateway,
		Answers:  out,
	}
}

// GradeLocally scores the answers against each question's Answer field. Only answered
// questions can match. The result carries no per-question comparison data.
func GradeLocally(qs *models.QuestionSet, answers models.AnswerMap) *Review {
	rv := &Review{Total: qs.Len(), Source: models.GradedLocally, Items: make([]ReviewItem, 0, qs.Len())}
	for _, e := range qs.Entries() {
		selected, answered := answers[e.Key]
		if answered && selected == e.Answer {
			rv.Score++
		}
		rv.Items = append(rv.Items, reviewItem(e, selected, nil))
	}
	return rv
}

// ReviewFromResult correlates the grading endpoint's pairs back to questions by number.
func ReviewFromResult(qs *models.QuestionSet, answers models.AnswerMap, res *models.SubmissionResult) *Review {
	rv := &Review{
		Score:  res.Score,
		Total:  qs.Len(),
		Status: res.Status,
		Source: models.GradedByServer,
		Items:  make([]ReviewItem, 0, qs.Len()),
	}
	for _, e := range qs.Entries() {
		selected := answers[e.Key]
		pair, ok := res.Pairs[e.No]
		if !ok {
			rv.Items = append(rv.Items, reviewItem(e, selected, nil))
			continue
		}
		rv.Items = append(rv.Items, reviewItem(e, pair.Selected, &pair))
	}
	return rv
}

func reviewItem(e models.QuestionEntry, selected string, pair *models.AnswerPair) ReviewItem {
	item := ReviewItem{
		No:       e.No,
		Key:      e.Key,
		Question: e.Question.Question,
		Selected: selected,
	}
	if pair != nil {
		item.Correct = pair.Correct
		switch {
		case selected == "":
			item.Outcome = OutcomeUnanswered
		case selected == pair.Correct:
			item.Outcome = OutcomeCorrect
		default:
			item.Outcome = OutcomeIncorrect
		}
	}
	for _, key := range e.OptionKeys() {
		opt := ReviewOption{Key: key, Text: e.Options[key], Selected: key == selected}
		if pair != nil {
			isCorrect := key == pair.Correct
			switch {
			case opt.Selected && isCorrect:
				opt.Mark = MarkCorrect
			case opt.Selected:
				opt.Mark = MarkIncorrect
			case isCorrect:
				opt.Mark = MarkMissed
			}
		}
		item.Options = append(item.Options, opt)
	}
	return item
}
