package conversation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// PolicyFile is the on-disk form of a negotiation Policy.
type PolicyFile struct {
	DefaultMIMEType string   `yaml:"default_mime_type"`
	Candidates      []string `yaml:"candidates"`
	Instruction     string   `yaml:"instruction"`
	MinReplyLength  *int     `yaml:"min_reply_length"`
	RejectPhrases   []string `yaml:"reject_phrases"`
}

// LoadPolicy reads a YAML policy file. Omitted fields keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file %q: %w", path, err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes a YAML policy document. Unknown keys are rejected.
func ParsePolicy(raw []byte) (Policy, error) {
	var pf PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return pf.Policy()
}

// Policy converts the file form into a Policy.
func (pf PolicyFile) Policy() (Policy, error) {
	minLen := DefaultMinReplyLength
	if pf.MinReplyLength != nil {
		if *pf.MinReplyLength < 0 {
			return Policy{}, fmt.Errorf("min_reply_length must be >= 0")
		}
		minLen = *pf.MinReplyLength
	}
	phrases := pf.RejectPhrases
	if phrases == nil {
		phrases = DefaultRejectPhrases
	}
	p := Policy{
		DefaultMIMEType: pf.DefaultMIMEType,
		Candidates:      pf.Candidates,
		Instruction:     pf.Instruction,
		Accept:          Heuristic(minLen, phrases...),
	}
	return p.withDefaults(), nil
}
