package quiz

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// questionCount and optionCount are fixed by the prompt; the parser rejects
// anything the model returns that deviates from them.
const (
	questionCount = 10
	optionCount   = 4
)

// ParseError reports a model response that does not match the required quiz
// shape. Any ParseError is fatal to the whole create-quiz request.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid quiz response: %s: %v", e.Reason, e.Err)
	}
	return "invalid quiz response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

type GeneratedQuestion struct {
	QuestionTitle   string   `json:"question_title"`
	QuestionOptions []string `json:"question_options"`
	Answer          string   `json:"answer"`
}

type GeneratedQuiz struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Questions   []GeneratedQuestion `json:"questions"`
}

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z]*\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// StripFences removes a surrounding markdown code fence, which Gemini tends
// to add even when told not to.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = fenceOpen.ReplaceAllString(t, "")
		t = fenceClose.ReplaceAllString(t, "")
		t = strings.TrimSpace(t)
	}
	return t
}

// ParseQuiz decodes and strictly validates a raw model response. The quiz
// must have a title, exactly 10 questions, 4 unique options per question,
// and every answer must be one of its question's options.
func ParseQuiz(raw string) (*GeneratedQuiz, error) {
	cleaned := StripFences(raw)

	var q GeneratedQuiz
	if err := json.Unmarshal([]byte(cleaned), &q); err != nil {
		return nil, &ParseError{Reason: "malformed JSON", Err: err}
	}

	if strings.TrimSpace(q.Title) == "" {
		return nil, &ParseError{Reason: "missing quiz title"}
	}
	if len(q.Questions) != questionCount {
		return nil, &ParseError{Reason: fmt.Sprintf("quiz must contain exactly %d questions, got %d", questionCount, len(q.Questions))}
	}

	for i, question := range q.Questions {
		if strings.TrimSpace(question.QuestionTitle) == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("question %d is missing its title", i+1)}
		}
		if len(question.QuestionOptions) != optionCount {
			return nil, &ParseError{Reason: fmt.Sprintf("question %d must have exactly %d options, got %d", i+1, optionCount, len(question.QuestionOptions))}
		}

		seen := make(map[string]struct{}, optionCount)
		for _, opt := range question.QuestionOptions {
			if _, dup := seen[opt]; dup {
				return nil, &ParseError{Reason: fmt.Sprintf("question %d has duplicate options", i+1)}
			}
			seen[opt] = struct{}{}
		}

		if question.Answer == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("question %d is missing its answer", i+1)}
		}
		if _, ok := seen[question.Answer]; !ok {
			return nil, &ParseError{Reason: fmt.Sprintf("question %d answer is not one of its options", i+1)}
		}
	}

	return &q, nil
}
