// Package reader implements the reading tools on top of the validated model boundary.
package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/dastan/internal/llm"
	"github.com/starford/dastan/internal/models"
	"github.com/starford/dastan/internal/prompt"
	"github.com/starford/dastan/internal/schema"
)

// Mode selects where a tool gets its answer from.
type Mode string

const (
	ModeLive    Mode = "live"
	ModeFixture Mode = "fixture"
)

// ToolConfig is the per-tool runtime configuration.
type ToolConfig struct {
	Mode         Mode
	Model        string
	FixtureDelay time.Duration
}

// Invoker performs one validated model call.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (json.RawMessage, error)
}

// FixtureSource returns the static payload of a task.
type FixtureSource interface {
	Get(task prompt.Task) (json.RawMessage, error)
}

// SettingsSource returns the current reader preferences.
type SettingsSource interface {
	Get() models.Settings
}

// ToolInfo describes how a tool is currently served.
type ToolInfo struct {
	Task   prompt.Task `json:"task"`
	Mode   Mode        `json:"mode"`
	Model  string      `json:"model,omitempty"`
	Schema string      `json:"schema"`
}

// Service runs the reader tools.
type Service struct {
	invoker  Invoker
	fixtures FixtureSource
	settings SettingsSource
	tools    map[prompt.Task]ToolConfig
	logger   *slog.Logger
}

// NewService creates a Service. Tasks missing from tools are served from fixtures.
func NewService(invoker Invoker, fixtures FixtureSource, settings SettingsSource, tools map[prompt.Task]ToolConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		invoker:  invoker,
		fixtures: fixtures,
		settings: settings,
		tools:    tools,
		logger:   logger,
	}
}

// Tools lists every tool with its mode.
func (s *Service) Tools() []ToolInfo {
	out := make([]ToolInfo, 0, len(prompt.Tasks))
	for _, task := range prompt.Tasks {
		tc := s.tool(task)
		d, _ := task.Schema()
		info := ToolInfo{Task: task, Mode: tc.Mode, Schema: d.Name}
		if tc.Mode == ModeLive {
			info.Model = tc.Model
		}
		out = append(out, info)
	}
	return out
}

// Lookup returns a WordInfo for a word seen in context.
func (s *Service) Lookup(ctx context.Context, in LookupInput) (json.RawMessage, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	return s.run(ctx, prompt.TaskLookup, in.Word, prompt.Flags{
		HeritageMode: s.heritage(in.HeritageMode),
		Context:      in.Context,
	})
}

// Paraphrase returns a SentenceInfo for one sentence.
func (s *Service) Paraphrase(ctx context.Context, in ParaphraseInput) (json.RawMessage, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	return s.run(ctx, prompt.TaskParaphrase, in.Sentence, prompt.Flags{
		HeritageMode: s.heritage(in.HeritageMode),
	})
}

// Analyze returns a NarrativeAnalysis of a text.
func (s *Service) Analyze(ctx context.Context, in TextInput) (json.RawMessage, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	return s.run(ctx, prompt.TaskAnalyze, in.Text, prompt.Flags{})
}

// Timeline returns the events of a text.
func (s *Service) Timeline(ctx context.Context, in TextInput) (json.RawMessage, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	return s.run(ctx, prompt.TaskTimeline, in.Text, prompt.Flags{})
}

// Summarize returns a Summary whose length echoes the requested one.
func (s *Service) Summarize(ctx context.Context, in SummarizeInput) (json.RawMessage, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	out, err := s.run(ctx, prompt.TaskSummarize, in.Text, prompt.Flags{Length: in.Length})
	if err != nil {
		return nil, err
	}
	if s.tool(prompt.TaskSummarize).Mode == ModeLive {
		if err := checkSummary(out, in.Length); err != nil {
			return nil, fmt.Errorf("%s: %w", prompt.TaskSummarize, err)
		}
	}
	return out, nil
}

// Questions returns the array of comprehension questions for a text.
func (s *Service) Questions(ctx context.Context, in TextInput) (json.RawMessage, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	out, err := s.run(ctx, prompt.TaskQuestions, in.Text, prompt.Flags{})
	if err != nil {
		return nil, err
	}
	questions, err := checkQuestions(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", prompt.TaskQuestions, err)
	}
	return questions, nil
}

func (s *Service) run(ctx context.Context, task prompt.Task, input string, flags prompt.Flags) (json.RawMessage, error) {
	tc := s.tool(task)
	if tc.Mode != ModeLive {
		return s.fixture(ctx, task, tc.FixtureDelay)
	}

	d, ok := task.Schema()
	if !ok {
		return nil, fmt.Errorf("%s: no schema", task)
	}
	p, err := prompt.Build(task, input, flags)
	if err != nil {
		return nil, err
	}
	out, err := s.invoker.Invoke(ctx, llm.Request{
		Model:    tc.Model,
		Prompt:   p.Text,
		Messages: p.Messages,
		Schema:   d,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", task, err)
	}
	return out, nil
}

func (s *Service) fixture(ctx context.Context, task prompt.Task, delay time.Duration) (json.RawMessage, error) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	out, err := s.fixtures.Get(task)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tool served from fixture", slog.String("task", string(task)))
	return out, nil
}

func (s *Service) tool(task prompt.Task) ToolConfig {
	tc, ok := s.tools[task]
	if !ok || tc.Mode == "" {
		tc.Mode = ModeFixture
	}
	return tc
}

func (s *Service) heritage(explicit *bool) bool {
	if explicit != nil {
		return *explicit
	}
	if s.settings == nil {
		return false
	}
	return s.settings.Get().HeritageMode
}

func checkSummary(raw json.RawMessage, requested string) error {
	var sum models.Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return schema.Mismatch("", "decode summary: %v", err)
	}
	if sum.Length != requested {
		return schema.Mismatch("length", "got %q, requested %q", sum.Length, requested)
	}
	return nil
}

// checkQuestions enforces that every correct answer is one of its options and
// returns the questions array exactly as received.
func checkQuestions(raw json.RawMessage) (json.RawMessage, error) {
	var set models.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, schema.Mismatch("", "decode questions: %v", err)
	}
	for i, q := range set.Questions {
		if len(q.Options) == 0 {
			return nil, schema.Mismatch(fmt.Sprintf("questions[%d].options", i), "no options")
		}
		if !slices.Contains(q.Options, q.CorrectAnswer) {
			return nil, schema.Mismatch(fmt.Sprintf("questions[%d].correct_answer", i), "%q is not one of the options", q.CorrectAnswer)
		}
	}
	var envelope struct {
		Questions json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, schema.Mismatch("", "decode questions: %v", err)
	}
	return envelope.Questions, nil
}
