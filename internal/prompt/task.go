package prompt

import "github.com/starford/dastan/internal/schema"

// Task identifies a reader tool.
type Task string

const (
	TaskLookup     Task = "lookup"
	TaskParaphrase Task = "paraphrase"
	TaskSummarize  Task = "summarize"
	TaskQuestions  Task = "questions"
	TaskAnalyze    Task = "analyze"
	TaskTimeline   Task = "timeline"
)

// Tasks lists every known task.
var Tasks = []Task{TaskLookup, TaskParaphrase, TaskSummarize, TaskQuestions, TaskAnalyze, TaskTimeline}

// Schema returns the descriptor the model output of t must satisfy.
func (t Task) Schema() (schema.Descriptor, bool) {
	switch t {
	case TaskLookup:
		return schema.WordInfo, true
	case TaskParaphrase:
		return schema.SentenceInfo, true
	case TaskSummarize:
		return schema.Summary, true
	case TaskQuestions:
		return schema.Questions, true
	case TaskAnalyze:
		return schema.NarrativeAnalysis, true
	case TaskTimeline:
		return schema.Timeline, true
	}
	return schema.Descriptor{}, false
}

// ParseTask resolves a task name.
func ParseTask(name string) (Task, bool) {
	for _, t := range Tasks {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}
