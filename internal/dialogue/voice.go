package dialogue

import "strings"

// ElevenLabs voice ids.
const (
	VoicePrimary   = "JBFqnCBsd6RMkjVDRZzb" // George
	VoiceSecondary = "pNInz6obpgDQGcFmaJgB" // Adam, for two-male scenes
	VoiceFemale    = "21m00Tcm4TlvDq8ikWAM" // Rachel

	// VoiceNarrator reads text that is not dialogue.
	VoiceNarrator = VoicePrimary
)

// palette is the order in which unknown stage labels are handed voices.
var palette = []string{VoicePrimary, VoiceSecondary, VoiceFemale}

var feminine = map[string]bool{
	"she":      true,
	"woman":    true,
	"her":      true,
	"female":   true,
	"emma":     true,
	"anne":     true,
	"martha":   true,
	"masha":    true,
	"miss":     true,
	"narrator": true,
}

var secondaryMale = map[string]bool{
	"owner":   true,
	"alyosha": true,
}

// knownVoice maps a role token or speaker label to a voice when the token
// is one the source texts use. ok is false for anything else.
func knownVoice(speaker string) (voice string, ok bool) {
	s := strings.ToLower(strings.TrimSpace(speaker))
	switch {
	case feminine[s], strings.HasPrefix(s, "miss "), strings.Contains(s, "woman"):
		return VoiceFemale, true
	case secondaryMale[s]:
		return VoiceSecondary, true
	case s == "he" || s == "man" || s == "boy":
		return VoicePrimary, true
	case s == "girl":
		return VoiceFemale, true
	}
	return "", false
}

// VoiceFor returns the voice for a speaker label or pronoun. Unknown
// speakers get the primary voice.
func VoiceFor(speaker string) string {
	if v, ok := knownVoice(speaker); ok {
		return v
	}
	return VoicePrimary
}

// voices tracks assignments while a text is parsed.
type voices struct {
	last   string
	prev   string
	labels map[string]string
}

func newVoices() *voices {
	// With no history, alternation starts as if the primary voice just spoke.
	return &voices{last: VoicePrimary, prev: VoiceFemale, labels: make(map[string]string)}
}

func (v *voices) use(voice string) string {
	if voice != v.last {
		v.prev, v.last = v.last, voice
	}
	return voice
}

// alternate hands the turn to the other of the two most recent voices.
func (v *voices) alternate() string {
	return v.use(v.prev)
}

// label returns the voice for a stage label. Known tokens map directly;
// other labels keep one voice for the whole text, and distinct labels get
// distinct voices while the palette lasts.
func (v *voices) label(name string) string {
	key := strings.ToLower(name)
	if voice, ok := v.labels[key]; ok {
		return v.use(voice)
	}
	voice, ok := knownVoice(name)
	if !ok {
		voice = v.unheld()
	}
	v.labels[key] = voice
	return v.use(voice)
}

func (v *voices) unheld() string {
	held := make(map[string]bool, len(v.labels))
	for _, voice := range v.labels {
		held[voice] = true
	}
	for _, voice := range palette {
		if !held[voice] {
			return voice
		}
	}
	return v.prev
}
