package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/writinggym/internal/dialogue"
)

// MaxTextChars is the longest passage accepted for synthesis.
const MaxTextChars = 5000

var (
	ErrEmptyText   = errors.New("missing text")
	ErrTextTooLong = errors.New("text too long")
)

// Synthesizer produces MP3 audio.
type Synthesizer interface {
	TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error)
	Dialogue(ctx context.Context, turns []dialogue.Turn) ([]byte, error)
}

// Cache stores audio by content key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, audio []byte) error
}

// Result is synthesized audio plus how it was produced.
type Result struct {
	Audio    []byte
	Dialogue bool
	Turns    int
	Cached   bool
}

type Service struct {
	tts    Synthesizer
	cache  Cache
	logger *slog.Logger
}

// NewService creates a speech service. cache may be nil.
func NewService(tts Synthesizer, cache Cache, logger *slog.Logger) *Service {
	return &Service{tts: tts, cache: cache, logger: logger.With("component", "speech")}
}

// CacheKey identifies the audio for a passage read in the given mode.
func CacheKey(mode, text string) string {
	sum := sha256.Sum256([]byte(mode + "|" + text))
	return hex.EncodeToString(sum[:])
}

// Synthesize reads text aloud. Dialogue gets one voice per speaker; anything
// else is read by the narrator. Cache failures are logged and otherwise ignored.
func (s *Service) Synthesize(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return nil, ErrTextTooLong
	}

	turns, isDialogue := dialogue.Parse(text)
	mode := "narration"
	if isDialogue {
		mode = "dialogue"
	}
	res := &Result{Dialogue: isDialogue, Turns: len(turns)}

	key := CacheKey(mode, text)
	if s.cache != nil {
		audio, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("audio cache read failed", "key", key, "error", err)
		} else if ok {
			res.Audio = audio
			res.Cached = true
			return res, nil
		}
	}

	var (
		audio []byte
		err   error
	)
	if isDialogue {
		audio, err = s.tts.Dialogue(ctx, turns)
	} else {
		audio, err = s.tts.TextToSpeech(ctx, dialogue.VoiceNarrator, text)
	}
	if err != nil {
		return nil, err
	}
	res.Audio = audio

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, audio); err != nil {
			s.logger.Warn("audio cache write failed", "key", key, "error", err)
		}
	}
	return res, nil
}
