package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abdulhaseeb2115/quizzio/internal/apperr"
	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

const quizSystemInstruction = `You are a quiz generator. Generate exactly 10 multiple-choice questions from the provided document context.

CRITICAL RULES:
1. Output ONLY valid JSON, no markdown, no extra text
2. Exactly 10 questions
3. Exactly 4 options per question
4. correct_index must be 0, 1, 2, or 3
5. Each question must be based on the document content
6. Questions should test understanding, not just recall

Output format (JSON only):
{
  "questions": [
    {
      "question": "string",
      "options": ["option1", "option2", "option3", "option4"],
      "correct_index": 0,
      "explanation": "string"
    }
  ]
}`

const quizUserPrompt = "Document context:\n\n%s\n\nGenerate 10 MCQs based on this content."

// StripCodeFence removes a Markdown code fence wrapping the whole payload.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ParseQuiz validates a completion against the quiz schema: a top-level
// "questions" array of exactly ten entries, each with a question string,
// exactly four option strings and an integer correct_index in [0,3].
func ParseQuiz(raw string) (*store.QuizData, error) {
	content := StripCodeFence(raw)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &top); err != nil {
		return nil, apperr.QuizFormat(fmt.Sprintf("Failed to parse LLM response as JSON: %v\nResponse: %s", err, content))
	}
	rawQuestions, ok := top["questions"]
	if !ok {
		return nil, apperr.QuizFormat("LLM response missing 'questions' key")
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(rawQuestions, &entries); err != nil {
		return nil, apperr.QuizFormat(fmt.Sprintf("'questions' must be an array: %v", err))
	}
	if len(entries) != QuizQuestionCount {
		return nil, apperr.QuizFormat(fmt.Sprintf("Expected %d questions, got %d", QuizQuestionCount, len(entries)))
	}

	data := &store.QuizData{Questions: make([]store.QuizQuestion, 0, len(entries))}
	for i, e := range entries {
		q, err := parseQuestion(e)
		if err != nil {
			return nil, apperr.QuizFormat(fmt.Sprintf("Question %d %s", i, err))
		}
		data.Questions = append(data.Questions, q)
	}
	return data, nil
}

func parseQuestion(raw json.RawMessage) (store.QuizQuestion, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return store.QuizQuestion{}, fmt.Errorf("is not an object: %v", err)
	}
	rawQuestion, hasQuestion := fields["question"]
	rawOptions, hasOptions := fields["options"]
	rawIndex, hasIndex := fields["correct_index"]
	if !hasQuestion || !hasOptions || !hasIndex {
		return store.QuizQuestion{}, fmt.Errorf("missing required fields")
	}

	var q store.QuizQuestion
	if err := json.Unmarshal(rawQuestion, &q.Question); err != nil || isNull(rawQuestion) {
		return q, fmt.Errorf("question must be a string")
	}
	if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
		return q, fmt.Errorf("options must be an array of strings")
	}
	if len(q.Options) != QuizOptionCount {
		return q, fmt.Errorf("must have exactly %d options, got %d", QuizOptionCount, len(q.Options))
	}

	idx, err := parseCorrectIndex(rawIndex)
	if err != nil {
		return q, err
	}
	q.CorrectIndex = idx

	if rawExplanation, ok := fields["explanation"]; ok && !isNull(rawExplanation) {
		if err := json.Unmarshal(rawExplanation, &q.Explanation); err != nil {
			return q, fmt.Errorf("explanation must be a string")
		}
	}
	return q, nil
}

// parseCorrectIndex accepts only a JSON number with an integral value. A
// quoted "2" or 2.5 is rejected.
func parseCorrectIndex(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("correct_index is not valid JSON: %v", err)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("correct_index must be 0-%d, got %s", QuizOptionCount-1, raw)
	}
	var idx int
	if i, err := n.Int64(); err == nil {
		idx = int(i)
	} else if f, ferr := n.Float64(); ferr == nil && f == float64(int64(f)) {
		idx = int(f)
	} else {
		return 0, fmt.Errorf("correct_index must be 0-%d, got %s", QuizOptionCount-1, raw)
	}
	if idx < 0 || idx >= QuizOptionCount {
		return 0, fmt.Errorf("correct_index must be 0-%d, got %s", QuizOptionCount-1, raw)
	}
	return idx, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
