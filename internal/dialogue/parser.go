// Package dialogue splits practice passages into speaker turns so they can
// be voiced by more than one synthetic speaker.
package dialogue

import (
	"regexp"
	"strings"
)

// Turn is one speaker's utterance with the voice that should read it.
type Turn struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// Form is the line shape that produced a turn.
type Form int

const (
	FormStage            Form = iota + 1 // ALICE: Hello.
	FormAttributedAfter                  // 'Hello,' she said.
	FormAttributedBefore                 // She said, 'Hello.'
	FormQuoted                           // 'Hello.'
	FormMixedAttributed                  // 'Hello,' the man nodded.
	FormMixed                            // 'Hello,' came the reply.
	FormFallback                         // any other line
)

func (f Form) String() string {
	switch f {
	case FormStage:
		return "stage"
	case FormAttributedAfter:
		return "attributed_after"
	case FormAttributedBefore:
		return "attributed_before"
	case FormQuoted:
		return "quoted"
	case FormMixedAttributed:
		return "mixed_attributed"
	case FormMixed:
		return "mixed"
	case FormFallback:
		return "fallback"
	}
	return "unknown"
}

// Policy decides when parsed turns count as dialogue.
type Policy struct {
	MinTurns int
	// Structural lists the forms that show the text really has speakers.
	// At least one turn must come from one of them.
	Structural []Form
}

// DefaultPolicy accepts two or more turns with at least one line that names
// its speaker. Bare quotes alone are not enough: a quoted epigraph followed
// by prose should still be read by a single voice.
var DefaultPolicy = Policy{
	MinTurns:   2,
	Structural: []Form{FormStage, FormAttributedAfter, FormAttributedBefore, FormMixedAttributed},
}

func (p Policy) structural(f Form) bool {
	for _, s := range p.Structural {
		if s == f {
			return true
		}
	}
	return false
}

// Accept reports whether r is dialogue under p.
func (p Policy) Accept(r Result) bool {
	if len(r.Turns) == 0 || len(r.Turns) < p.MinTurns {
		return false
	}
	if len(p.Structural) == 0 {
		return true
	}
	for _, f := range r.Forms {
		if p.structural(f) {
			return true
		}
	}
	return false
}

// Result is the raw output of Analyze. Forms[i] is the shape of the line
// that produced Turns[i].
type Result struct {
	Turns []Turn
	Forms []Form
}

// quoted matches a single-quoted utterance in which a doubled quote stands
// for a literal one.
const quoted = `'([^']*(?:''[^']*)*)'`

var (
	stageRe       = regexp.MustCompile(`^([A-Z][A-Za-z]+):\s*(.+)$`)
	saidAfterRe   = regexp.MustCompile(`(?i)^` + quoted + `\s*[,.]?\s*(?:the\s+)?(man|woman|he|she|boy|girl)\s+(?:said|replied|answered|cried|whispered|murmured)`)
	continuedRe   = regexp.MustCompile(`^\s*[,.]?\s*` + quoted)
	saidBeforeRe  = regexp.MustCompile(`(?i)^(?:the\s+)?(man|woman|he|she)\s+(?:said|replied|answered|cried)\s*[,:]?\s*` + quoted)
	quotedOnlyRe  = regexp.MustCompile(`^` + quoted + `\s*\.?$`)
	mixedRe       = regexp.MustCompile(`^` + quoted + `\s*[,.]?\s*(.+)$`)
	mixedSpeakRe  = regexp.MustCompile(`(?i)\b(?:the\s+)?(man|woman|he|she)\s+\w+`)
	doubledQuotes = strings.NewReplacer("''", "'")
)

func unquote(s string) string {
	return strings.TrimSpace(doubledQuotes.Replace(s))
}

// Parse splits text into turns under DefaultPolicy. It returns false when
// the text does not look like dialogue; callers then narrate it with one voice.
func Parse(text string) ([]Turn, bool) {
	return ParseWithPolicy(text, DefaultPolicy)
}

// ParseWithPolicy is Parse with a caller-chosen acceptance policy.
func ParseWithPolicy(text string, p Policy) ([]Turn, bool) {
	r := Analyze(text)
	if !p.Accept(r) {
		return nil, false
	}
	return r.Turns, true
}

// Analyze classifies every non-blank line of text and assigns voices without
// deciding whether the result is dialogue. The first matching form wins, in
// the order the Form constants are declared.
func Analyze(text string) Result {
	var r Result
	v := newVoices()

	add := func(f Form, utterance, voice string) {
		r.Turns = append(r.Turns, Turn{Text: utterance, VoiceID: voice})
		r.Forms = append(r.Forms, f)
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := stageRe.FindStringSubmatch(line); m != nil {
			add(FormStage, strings.TrimSpace(m[2]), v.label(m[1]))
			continue
		}

		if loc := saidAfterRe.FindStringSubmatchIndex(line); loc != nil {
			utterance := unquote(line[loc[2]:loc[3]])
			if c := continuedRe.FindStringSubmatch(line[loc[1]:]); c != nil {
				if more := unquote(c[1]); more != "" {
					utterance = strings.TrimSpace(utterance + " " + more)
				}
			}
			if utterance = trimTrailingComma(utterance); utterance != "" {
				add(FormAttributedAfter, utterance, v.use(VoiceFor(line[loc[4]:loc[5]])))
			}
			continue
		}

		if m := saidBeforeRe.FindStringSubmatch(line); m != nil {
			if utterance := unquote(m[2]); utterance != "" {
				add(FormAttributedBefore, utterance, v.use(VoiceFor(m[1])))
			}
			continue
		}

		if m := quotedOnlyRe.FindStringSubmatch(line); m != nil {
			if utterance := unquote(m[1]); utterance != "" {
				add(FormQuoted, utterance, v.alternate())
			}
			continue
		}

		if m := mixedRe.FindStringSubmatch(line); m != nil {
			utterance := trimTrailingComma(unquote(m[1]))
			if utterance == "" {
				continue
			}
			if s := mixedSpeakRe.FindStringSubmatch(m[2]); s != nil {
				add(FormMixedAttributed, utterance, v.use(VoiceFor(s[1])))
			} else {
				add(FormMixed, utterance, v.alternate())
			}
			continue
		}

		add(FormFallback, line, v.alternate())
	}
	return r
}

// trimTrailingComma drops the comma that joins a quote to the attribution
// after it, as in 'Hi,' she said.
func trimTrailingComma(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(s, ","))
}
