package models

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrDuplicateQuestionNo = errors.New("duplicate question number")
	ErrMissingScore        = errors.New("submission result has no score")
)

type TestMetadata struct {
	TestName  string `json:"test_name"`
	Paper     string `json:"paper"`
	DietName  string `json:"diet_name"`
	Duration  int    `json:"duration"` // seconds
	HighScore int    `json:"high_score"`
	Gateway   bool   `json:"gateway,omitempty"`
}

// Question is one entry of a question set. Every JSON key other than No, Question and
// Answer is a selectable option.
type Question struct {
	No       int               `json:"No"`
	Question string            `json:"Question"`
	Answer   string            `json:"Answer"`
	Options  map[string]string `json:"-"`
}

var reservedQuestionKeys = map[string]bool{"No": true, "Question": true, "Answer": true}

func (q *Question) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	no, err := parseQuestionNo(raw["No"])
	if err != nil {
		return err
	}
	out := Question{No: no, Options: make(map[string]string)}
	if v, ok := raw["Question"]; ok {
		if err := json.Unmarshal(v, &out.Question); err != nil {
			return errors.Wrap(err, "question text")
		}
	}
	if v, ok := raw["Answer"]; ok {
		if err := json.Unmarshal(v, &out.Answer); err != nil {
			return errors.Wrap(err, "question answer")
		}
	}
	for key, v := range raw {
		if reservedQuestionKeys[key] {
			continue
		}
		var text string
		if err := json.Unmarshal(v, &text); err != nil {
			// numeric option text is rendered as written
			text = strings.TrimSpace(string(v))
		}
		out.Options[key] = text
	}
	*q = out
	return nil
}

func (q Question) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(q.Options)+3)
	for k, v := range q.Options {
		m[k] = v
	}
	m["No"] = q.No
	m["Question"] = q.Question
	if q.Answer != "" {
		m["Answer"] = q.Answer
	}
	return json.Marshal(m)
}

func parseQuestionNo(v json.RawMessage) (int, error) {
	if len(v) == 0 {
		return 0, errors.New("question is missing No")
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return 0, errors.Wrapf(err, "question No %q", n)
		}
		return i, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, errors.Wrap(err, "question No")
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "question No %q", s)
	}
	return i, nil
}

// OptionKeys returns the option keys in display order.
func (q Question) OptionKeys() []string {
	keys := make([]string, 0, len(q.Options))
	for k := range q.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (q Question) HasOption(key string) bool {
	_, ok := q.Options[key]
	return ok
}

// TestBundle is what GET /get-mcq returns.
type TestBundle struct {
	Metadata  TestMetadata        `json:"metadata"`
	Questions map[string]Question `json:"questions"`
}

// QuestionEntry pairs a question with the map key it was delivered under.
type QuestionEntry struct {
	Key string
	Question
}

// QuestionSet keeps both keys of a question: the map key that answers are stored under and
// No, which the grading endpoint correlates on.
type QuestionSet struct {
	entries []QuestionEntry
	byKey   map[string]int
	byNo    map[int]string
}

func NewQuestionSet(questions map[string]Question) (*QuestionSet, error) {
	qs := &QuestionSet{
		entries: make([]QuestionEntry, 0, len(questions)),
		byKey:   make(map[string]int, len(questions)),
		byNo:    make(map[int]string, len(questions)),
	}
	for key, q := range questions {
		if other, dup := qs.byNo[q.No]; dup {
			return nil, errors.Wrapf(ErrDuplicateQuestionNo, "%d used by %q and %q", q.No, other, key)
		}
		qs.byNo[q.No] = key
		qs.entries = append(qs.entries, QuestionEntry{Key: key, Question: q})
	}
	sort.Slice(qs.entries, func(i, j int) bool {
		if qs.entries[i].No != qs.entries[j].No {
			return qs.entries[i].No < qs.entries[j].No
		}
		return qs.entries[i].Key < qs.entries[j].Key
	})
	for i, e := range qs.entries {
		qs.byKey[e.Key] = i
	}
	return qs, nil
}

func (qs *QuestionSet) Len() int { return len(qs.entries) }

// Entries returns the questions in display order. The slice must not be modified.
func (qs *QuestionSet) Entries() []QuestionEntry { return qs.entries }

func (qs *QuestionSet) ByKey(key string) (QuestionEntry, bool) {
	i, ok := qs.byKey[key]
	if !ok {
		return QuestionEntry{}, false
	}
	return qs.entries[i], true
}

func (qs *QuestionSet) KeyForNo(no int) (string, bool) {
	key, ok := qs.byNo[no]
	return key, ok
}

// AnswerMap maps a question's map key to the selected option key. A missing entry means unanswered.
type AnswerMap map[string]string

func (a AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

type SubmissionPayload struct {
	Path     string            `json:"path"`
	Email    string            `json:"email"`
	TestName string            `json:"test_name"`
	Gateway  bool              `json:"gateway"`
	Answers  map[string]string `json:"answers"`
}

// AnswerPair is the grading endpoint's [selected, correct] tuple for one question.
type AnswerPair struct {
	Selected string
	Correct  string
}

func (p AnswerPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Selected, p.Correct})
}

func (p *AnswerPair) UnmarshalJSON(data []byte) error {
	var raw []*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return errors.Errorf("answer pair has %d elements, want 2", len(raw))
	}
	*p = AnswerPair{}
	if raw[0] != nil {
		p.Selected = *raw[0]
	}
	if raw[1] != nil {
		p.Correct = *raw[1]
	}
	return nil
}

// SubmissionResult is the POST /submit-mcq response: one [selected, correct] pair per question
// number next to the score and status keys.
type SubmissionResult struct {
	Pairs  map[int]AnswerPair
	Score  int
	Status string
}

func (r *SubmissionResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := raw["score"]; !ok {
		return ErrMissingScore
	}
	out := SubmissionResult{Pairs: make(map[int]AnswerPair)}
	for key, v := range raw {
		switch key {
		case "score":
			var f *float64
			if err := json.Unmarshal(v, &f); err != nil {
				return errors.Wrap(err, "score")
			}
			if f == nil {
				return ErrMissingScore
			}
			out.Score = int(*f)
		case "status":
			if err := json.Unmarshal(v, &out.Status); err != nil {
				return errors.Wrap(err, "status")
			}
		default:
			no, err := strconv.Atoi(key)
			if err != nil {
				// unknown extra keys are ignored
				continue
			}
			var pair AnswerPair
			if err := json.Unmarshal(v, &pair); err != nil {
				return errors.Wrapf(err, "question %d", no)
			}
			out.Pairs[no] = pair
		}
	}
	*r = out
	return nil
}

func (r SubmissionResult) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(r.Pairs)+2)
	for no, p := range r.Pairs {
		m[strconv.Itoa(no)] = p
	}
	m["score"] = r.Score
	m["status"] = r.Status
	return json.Marshal(m)
}
