// Package craft asks a language model to annotate literary extracts and to
// critique a writer's imitation of them.
package craft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MinFeedbackChars is the shortest piece of writing worth critiquing.
const MinFeedbackChars = 50

var ErrTooShort = fmt.Errorf("write at least %d characters before requesting feedback", MinFeedbackChars)

type Category string

const (
	CategoryStructure Category = "structure"
	CategoryVoice     Category = "voice"
	CategoryImagery   Category = "imagery"
	CategoryPacing    Category = "pacing"
)

type Annotation struct {
	Category Category `json:"category"`
	Note     string   `json:"note"`
}

type Segment struct {
	Text       string      `json:"text"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

type Analysis struct {
	Segments   []Segment `json:"segments"`
	Summary    []string  `json:"summary"`
	Constraint string    `json:"constraint"`
	Source     string    `json:"source,omitempty"`
}

type Feedback struct {
	Segments []Segment `json:"segments"`
	Summary  []string  `json:"summary"`
	Feedback string    `json:"feedback"`
}

// Completer sends a system prompt and one user message to a model and
// returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// DecodeError means the model replied with something that is not the
// expected JSON. Raw holds the reply as received.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode model response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Analyzer struct {
	model Completer
}

func NewAnalyzer(model Completer) *Analyzer {
	return &Analyzer{model: model}
}

// AnalyzeExtract segments and annotates an extract for the given constraint.
func (a *Analyzer) AnalyzeExtract(ctx context.Context, text, constraint string) (*Analysis, error) {
	prompt := fmt.Sprintf("Extract:\n\n%s\n\nConstraint: %s", text, constraint)
	raw, err := a.model.Complete(ctx, analysisPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze extract: %w", err)
	}

	var out Analysis
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	if len(out.Segments) == 0 {
		return nil, &DecodeError{Raw: raw, Err: errors.New("no segments")}
	}
	return &out, nil
}

// ReviewWriting critiques userText as an imitation of original.
func (a *Analyzer) ReviewWriting(ctx context.Context, original, constraint, userText string) (*Feedback, error) {
	if len([]rune(strings.TrimSpace(userText))) < MinFeedbackChars {
		return nil, ErrTooShort
	}
	prompt := fmt.Sprintf("Original extract:\n\n%s\n\nConstraint: %s\n\nUser's writing:\n\n%s", original, constraint, userText)
	raw, err := a.model.Complete(ctx, feedbackPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("review writing: %w", err)
	}

	var out Feedback
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Feedback) == "" {
		return nil, &DecodeError{Raw: raw, Err: errors.New("empty feedback")}
	}
	return &out, nil
}

var (
	openFence  = regexp.MustCompile("^```(?:json)?\\s*\\n?")
	closeFence = regexp.MustCompile("\\n?```\\s*$")
)

// StripFences removes a Markdown code fence wrapped around a model reply.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = openFence.ReplaceAllString(s, "")
		s = closeFence.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

func decode(raw string, v any) error {
	if err := json.Unmarshal([]byte(StripFences(raw)), v); err != nil {
		return &DecodeError{Raw: raw, Err: err}
	}
	return nil
}
