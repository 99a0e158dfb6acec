package models

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestion_UnmarshalDerivesOptions(t *testing.T) {
	var q Question
	err := json.Unmarshal([]byte(`{"No": 3, "Question": "Q?", "A": "x", "B": "y", "C": 12, "Answer": "B"}`), &q)
	require.NoError(t, err)

	assert.Equal(t, 3, q.No)
	assert.Equal(t, "Q?", q.Question)
	assert.Equal(t, "B", q.Answer)
	assert.Equal(t, []string{"A", "B", "C"}, q.OptionKeys())
	assert.Equal(t, "12", q.Options["C"])
	assert.True(t, q.HasOption("A"))
	assert.False(t, q.HasOption("Answer"))
}

func TestQuestion_UnmarshalStringNo(t *testing.T) {
	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{"No": " 7", "Question": "Q", "A": "x"}`), &q))
	assert.Equal(t, 7, q.No)

	err := json.Unmarshal([]byte(`{"Question": "Q"}`), &q)
	assert.Error(t, err)
}

func TestNewQuestionSet_DualKeys(t *testing.T) {
	qs, err := NewQuestionSet(map[string]Question{
		"q-b": {No: 2, Question: "second"},
		"q-a": {No: 1, Question: "first"},
		"q-c": {No: 10, Question: "tenth"},
	})
	require.NoError(t, err)

	require.Equal(t, 3, qs.Len())
	assert.Equal(t, "q-a", qs.Entries()[0].Key)
	assert.Equal(t, "q-b", qs.Entries()[1].Key)
	assert.Equal(t, "q-c", qs.Entries()[2].Key)

	key, ok := qs.KeyForNo(10)
	assert.True(t, ok)
	assert.Equal(t, "q-c", key)

	e, ok := qs.ByKey("q-b")
	assert.True(t, ok)
	assert.Equal(t, 2, e.No)

	_, ok = qs.ByKey("missing")
	assert.False(t, ok)
}

func TestNewQuestionSet_RejectsDuplicateNo(t *testing.T) {
	_, err := NewQuestionSet(map[string]Question{
		"a": {No: 1},
		"b": {No: 1},
	})
	assert.True(t, errors.Is(err, ErrDuplicateQuestionNo))
}

func TestSubmissionResult_Unmarshal(t *testing.T) {
	var res SubmissionResult
	err := json.Unmarshal([]byte(`{"1": ["A", "A"], "2": [null, "C"], "score": 1.0, "status": "failed", "extra": true}`), &res)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Score)
	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, AnswerPair{Selected: "A", Correct: "A"}, res.Pairs[1])
	assert.Equal(t, AnswerPair{Selected: "", Correct: "C"}, res.Pairs[2])
	assert.Len(t, res.Pairs, 2)
}

func TestSubmissionResult_RejectsMalformedPair(t *testing.T) {
	var res SubmissionResult
	err := json.Unmarshal([]byte(`{"1": ["A"], "score": 0}`), &res)
	assert.Error(t, err)
}

func TestSubmissionResult_RequiresScore(t *testing.T) {
	for _, body := range []string{`null`, `{}`, `{"1": ["A", "A"], "status": "passed"}`, `{"score": null}`} {
		var res SubmissionResult
		err := json.Unmarshal([]byte(body), &res)
		assert.True(t, errors.Is(err, ErrMissingScore), body)
	}
}

func TestSubmissionPayload_Marshal(t *testing.T) {
	data, err := json.Marshal(SubmissionPayload{
		Path:     "2025_December/P1",
		Email:    "s@example.com",
		TestName: "Mock 1",
		Answers:  map[string]string{"1": ""},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"2025_December/P1","email":"s@example.com","test_name":"Mock 1","gateway":false,"answers":{"1":""}}`, string(data))
}

func TestTemplateNode_MarshalChildren(t *testing.T) {
	data, err := json.Marshal([]TemplateNode{
		{ID: "f", Name: "Folder", Type: NodeFolder},
		{ID: "t", Name: "Leaf", Type: NodeTemplate},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"f","name":"Folder","type":"folder","children":[]},{"id":"t","name":"Leaf","type":"template"}]`, string(data))
}
