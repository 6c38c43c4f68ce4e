// Package speech speaks assistant replies aloud, one utterance at a time.
package speech

import "strings"

// Voice is a synthesizer voice. ID is what the engine is invoked with; Name
// is what preference matching looks at.
type Voice struct {
	ID      string
	Name    string
	Lang    string
	Default bool
}

// PreferredVoices lists voice names in order of preference. A voice matches
// when its name contains the preferred name.
var PreferredVoices = []string{
	"Samantha",
	"Karen",
	"Victoria",
	"Alex",
	"Google UK English Female",
	"Google US English Female",
	"Microsoft Zira Desktop",
	"Microsoft David Desktop",
}

// SelectVoice picks a voice for replies. Preferred names win in order; then
// the default English voice, then any English voice, then the first voice.
func SelectVoice(voices []Voice, preferred []string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	for _, name := range preferred {
		for _, v := range voices {
			if strings.Contains(v.Name, name) {
				return v, true
			}
		}
	}
	for _, v := range voices {
		if v.Default && isEnglish(v.Lang) {
			return v, true
		}
	}
	for _, v := range voices {
		if isEnglish(v.Lang) {
			return v, true
		}
	}
	return voices[0], true
}

func isEnglish(lang string) bool {
	return strings.HasPrefix(strings.ToLower(lang), "en")
}
