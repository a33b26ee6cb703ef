package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/dastan/internal/apperr"
	"github.com/starford/dastan/internal/llm"
	"github.com/starford/dastan/internal/prompt"
	"github.com/starford/dastan/internal/reader"
	"github.com/starford/dastan/internal/session"
	"github.com/starford/dastan/internal/sse"
)

// Handler holds API route handlers.
type Handler struct {
	reader   *reader.Service
	settings SettingsStore
	tracker  *session.Tracker
	broker   *sse.Broker
	ready    func(ctx context.Context) error
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = session.NewTracker()
	}
	return &Handler{
		reader:   deps.Reader,
		settings: deps.Settings,
		tracker:  tracker,
		broker:   deps.Broker,
		ready:    deps.Ready,
		logger:   logger,
	}
}

// Lookup handles POST /api/lookup.
//
//	@Summary		Look up a word in context
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			body	body		reader.LookupInput	true	"Word and surrounding text"
//	@Param			X-Session-ID	header	string	false	"Session for last-request-wins"
//	@Success		200		{object}	WordInfo
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lookup [post]
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	var in reader.LookupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.serve(w, r, prompt.TaskLookup, func(ctx context.Context) (json.RawMessage, error) {
		return h.reader.Lookup(ctx, in)
	})
}

// Paraphrase handles POST /api/paraphrase.
//
//	@Summary		Paraphrase one sentence
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			body	body		reader.ParaphraseInput	true	"Sentence"
//	@Success		200		{object}	SentenceInfo
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/paraphrase [post]
func (h *Handler) Paraphrase(w http.ResponseWriter, r *http.Request) {
	var in reader.ParaphraseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.serve(w, r, prompt.TaskParaphrase, func(ctx context.Context) (json.RawMessage, error) {
		return h.reader.Paraphrase(ctx, in)
	})
}

// Summarize handles POST /api/summarize.
//
//	@Summary		Summarize a text
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			body	body		reader.SummarizeInput	true	"Text and length"
//	@Success		200		{object}	Summary
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/summarize [post]
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var in reader.SummarizeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.serve(w, r, prompt.TaskSummarize, func(ctx context.Context) (json.RawMessage, error) {
		return h.reader.Summarize(ctx, in)
	})
}

// Analyze handles POST /api/analyze.
//
//	@Summary		Analyze the narrative of a text
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			body	body		reader.TextInput	true	"Text"
//	@Success		200		{object}	NarrativeAnalysis
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/analyze [post]
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	h.textTool(w, r, prompt.TaskAnalyze, h.reader.Analyze)
}

// Questions handles POST /questions and POST /api/questions.
//
//	@Summary		Generate comprehension questions
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			body	body		reader.TextInput	true	"Text"
//	@Success		200		{array}		Question
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/questions [post]
func (h *Handler) Questions(w http.ResponseWriter, r *http.Request) {
	h.textTool(w, r, prompt.TaskQuestions, h.reader.Questions)
}

// Timeline handles POST /api/timeline.
//
//	@Summary		Extract the timeline of a text
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			body	body		reader.TextInput	true	"Text"
//	@Success		200		{object}	Timeline
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/timeline [post]
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	h.textTool(w, r, prompt.TaskTimeline, h.reader.Timeline)
}

func (h *Handler) textTool(w http.ResponseWriter, r *http.Request, task prompt.Task, fn func(context.Context, reader.TextInput) (json.RawMessage, error)) {
	var in reader.TextInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.serve(w, r, task, func(ctx context.Context) (json.RawMessage, error) {
		return fn(ctx, in)
	})
}

// serve runs one tool call. With a session header the call takes the
// (session, tool) slot and cancels any earlier call still holding it.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, task prompt.Task, fn func(ctx context.Context) (json.RawMessage, error)) {
	sid := sessionID(r)
	ev := sse.ToolEvent{Session: sid, Tool: string(task)}
	start := time.Now()

	var (
		out json.RawMessage
		err error
	)
	h.publish(sse.TypeToolStarted, ev)
	if sid == "" {
		out, err = fn(r.Context())
	} else {
		var ticket session.Ticket
		out, ticket, err = session.Run(h.tracker, r.Context(), session.Key(sid, string(task)), fn)
		ev.Generation = ticket.Generation
	}
	ev.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, apperr.ErrStale) {
			h.publish(sse.TypeToolStale, ev)
		} else {
			ev.Error = publicMessage(err)
			h.publish(sse.TypeToolFailed, ev)
		}
		h.writeError(w, task, err)
		return
	}
	h.publish(sse.TypeToolCompleted, ev)
	writeRaw(w, http.StatusOK, out)
}

func (h *Handler) publish(typ string, ev sse.ToolEvent) {
	if h.broker != nil {
		h.broker.PublishToolEvent(typ, ev)
	}
}

// writeError maps err to a status and a message that never carries provider text.
func (h *Handler) writeError(w http.ResponseWriter, task prompt.Task, err error) {
	status := statusOf(err)
	attrs := []any{slog.String("tool", string(task)), slog.String("error", err.Error())}

	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.Int("status", pe.Status), slog.String("detail", pe.Detail()))
	}
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error("tool failed", attrs...)
	case status == http.StatusConflict:
		h.logger.Info("tool superseded", attrs...)
	default:
		h.logger.Debug("tool rejected", attrs...)
	}
	writeJSON(w, status, errorBody(publicMessage(err)))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrStale):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	var invalid *apperr.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.Is(err, apperr.ErrInvalidRequest):
		return "invalid request"
	case errors.Is(err, apperr.ErrStale):
		return apperr.ErrStale.Error()
	case errors.Is(err, apperr.ErrNotFound):
		return "not found"
	case errors.Is(err, apperr.ErrMalformedJSON):
		return "model response was not valid JSON"
	case errors.Is(err, apperr.ErrSchemaMismatch):
		return "model response failed validation"
	case errors.Is(err, apperr.ErrTransport):
		return "model provider unreachable"
	case errors.Is(err, apperr.ErrProvider):
		return "model provider error"
	default:
		return "internal error"
	}
}
