package core

// Clip is one captured audio recording as submitted for a turn.
type Clip struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the clip length in bytes.
func (c Clip) Size() int {
	return len(c.Data)
}

// Part is one element of a dialogue submission.
type Part struct {
	Text  string
	Audio *Clip
}

// TextPart builds a text-only part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// AudioPart builds an inline audio part labeled with mimeType.
func AudioPart(data []byte, mimeType string) Part {
	return Part{Audio: &Clip{MIMEType: mimeType, Data: data}}
}

// ReplyStatus tags the outcome of a processed turn.
type ReplyStatus string

const (
	StatusSuccess               ReplyStatus = "success"
	StatusAudioTooShort         ReplyStatus = "audio_too_short"
	StatusAudioProcessingFailed ReplyStatus = "audio_processing_failed"
)

// Reply is the result of one processed turn.
type Reply struct {
	Text   string      `json:"text"`
	Status ReplyStatus `json:"status"`
}

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerAI     Speaker = "ai"
	SpeakerSystem Speaker = "system"
)
