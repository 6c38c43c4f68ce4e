package conversation

import (
	"strings"
	"unicode/utf8"
)

// Instruction accompanies every audio submission.
const Instruction = "Please carefully transcribe the speech in this audio and then respond naturally to what was said. " +
	"If you cannot clearly understand the speech, please ask the user to repeat their message more clearly. " +
	"Focus on understanding the actual words spoken, not background sounds."

// DefaultMIMEType labels clips that arrive without a declared type.
const DefaultMIMEType = "audio/webm"

// DefaultMinReplyLength is the rune count a reply must exceed to be accepted.
const DefaultMinReplyLength = 10

// DefaultCandidates are tried, in order, after the declared type.
var DefaultCandidates = []string{"audio/webm", "audio/mp4", "audio/mpeg", "audio/wav", "audio/ogg"}

// DefaultRejectPhrases mark replies that describe noise rather than speech.
var DefaultRejectPhrases = []string{
	"i can't process",
	"making a",
	"sound that seems",
	"background noise",
	"unclear",
	"cannot understand",
}

// AcceptFunc decides whether a reply is a meaningful answer to speech.
type AcceptFunc func(reply string) bool

// Policy drives audio format negotiation.
type Policy struct {
	DefaultMIMEType string
	Candidates      []string
	Instruction     string
	Accept          AcceptFunc
}

// DefaultPolicy returns the built-in negotiation policy.
func DefaultPolicy() Policy {
	return Policy{
		DefaultMIMEType: DefaultMIMEType,
		Candidates:      append([]string(nil), DefaultCandidates...),
		Instruction:     Instruction,
		Accept:          Heuristic(DefaultMinReplyLength, DefaultRejectPhrases...),
	}
}

// withDefaults fills unset fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if strings.TrimSpace(p.DefaultMIMEType) == "" {
		p.DefaultMIMEType = def.DefaultMIMEType
	}
	if len(p.Candidates) == 0 {
		p.Candidates = def.Candidates
	}
	if strings.TrimSpace(p.Instruction) == "" {
		p.Instruction = def.Instruction
	}
	if p.Accept == nil {
		p.Accept = def.Accept
	}
	return p
}

// Order returns the MIME types to try for a clip declared as declared.
// The declared type (or the default when empty) comes first; exact
// duplicates are dropped.
func (p Policy) Order(declared string) []string {
	p = p.withDefaults()
	first := strings.TrimSpace(declared)
	if first == "" {
		first = p.DefaultMIMEType
	}

	out := make([]string, 0, len(p.Candidates)+1)
	seen := make(map[string]struct{}, len(p.Candidates)+1)
	for _, mt := range append([]string{first}, p.Candidates...) {
		mt = strings.TrimSpace(mt)
		if mt == "" {
			continue
		}
		if _, ok := seen[mt]; ok {
			continue
		}
		seen[mt] = struct{}{}
		out = append(out, mt)
	}
	return out
}

// Heuristic accepts replies longer than minLen runes that contain none of
// rejectPhrases. Matching is case-insensitive.
func Heuristic(minLen int, rejectPhrases ...string) AcceptFunc {
	phrases := make([]string, 0, len(rejectPhrases))
	for _, p := range rejectPhrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return func(reply string) bool {
		reply = strings.TrimSpace(reply)
		if utf8.RuneCountInString(reply) <= minLen {
			return false
		}
		lower := strings.ToLower(reply)
		for _, p := range phrases {
			if strings.Contains(lower, p) {
				return false
			}
		}
		return true
	}
}
