package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/writinggym/internal/dialogue"
	"github.com/dukerupert/writinggym/internal/metrics"
	"github.com/dukerupert/writinggym/internal/speech"
)

type SpeechHandler struct {
	service *speech.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewSpeechHandler(svc *speech.Service, m *metrics.Metrics, logger *slog.Logger) *SpeechHandler {
	return &SpeechHandler{service: svc, metrics: m, logger: logger}
}

type speechRequest struct {
	Text string `json:"text"`
}

// Speech handles POST /api/speech and answers with MP3 audio.
func (h *SpeechHandler) Speech(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[speechRequest](w, r)
	if !ok {
		return
	}

	start := time.Now()
	res, err := h.service.Synthesize(r.Context(), req.Text)
	switch {
	case errors.Is(err, speech.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "Missing text")
		return
	case errors.Is(err, speech.ErrTextTooLong):
		writeError(w, http.StatusBadRequest, "Text too long")
		return
	case errors.Is(err, speech.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, "speech is not configured")
		return
	case err != nil:
		h.metrics.Upstream("elevenlabs", start, err)
		h.logger.Error("text to speech", "error", err)
		writeError(w, http.StatusBadGateway, "Text-to-speech failed")
		return
	}
	if !res.Cached {
		h.metrics.Upstream("elevenlabs", start, nil)
	}

	mode := "narration"
	if res.Dialogue {
		mode = "dialogue"
	}
	h.metrics.DialogueParse(mode)

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set("X-Speech-Mode", mode)
	w.WriteHeader(http.StatusOK)
	w.Write(res.Audio)
}

type turnsResponse struct {
	Dialogue bool            `json:"dialogue"`
	Turns    []dialogue.Turn `json:"turns"`
}

// Turns handles POST /api/speech/turns. It shows how a passage would be
// voiced without calling the speech provider.
func (h *SpeechHandler) Turns(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[speechRequest](w, r)
	if !ok {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Missing text")
		return
	}

	turns, isDialogue := dialogue.Parse(req.Text)
	if !isDialogue {
		turns = []dialogue.Turn{{Text: req.Text, VoiceID: dialogue.VoiceNarrator}}
	}
	writeJSON(w, http.StatusOK, turnsResponse{Dialogue: isDialogue, Turns: turns})
}
