package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/vango-go/vai-voice/pkg/core"
)

// AudioField is the multipart field carrying recorded audio.
const AudioField = "audio"

const multipartMemory = 8 << 20

// received describes what a request carried when it held neither text nor
// audio. Field names follow the browser client's diagnostics.
type received struct {
	HasBody  bool     `json:"hasBody"`
	HasFiles bool     `json:"hasFiles"`
	BodyKeys []string `json:"bodyKeys"`
	FileKeys []string `json:"fileKeys"`
}

type turnInput struct {
	Text     string
	Audio    *core.Clip
	Received received
}

// readTurnInput accepts a JSON body {"text": "..."}, a url-encoded form or a
// multipart form with an "audio" file and an optional "text" field.
func readTurnInput(r *http.Request, maxBytes int64) (turnInput, error) {
	in := turnInput{Received: received{BodyKeys: []string{}, FileKeys: []string{}}}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]json.RawMessage
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return in, nil
			}
			return in, uploadError(err, maxBytes, "invalid JSON body")
		}
		in.Received.HasBody = true
		in.Received.BodyKeys = sortedKeys(body)
		if raw, ok := body["text"]; ok {
			var text string
			if err := json.Unmarshal(raw, &text); err != nil {
				return in, core.NewInvalidRequestError("text must be a string")
			}
			in.Text = text
		}
		return in, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return in, uploadError(err, maxBytes, "invalid multipart body")
		}
		form := r.MultipartForm
		in.Received.HasBody = len(form.Value) > 0
		in.Received.HasFiles = len(form.File) > 0
		in.Received.BodyKeys = sortedKeys(form.Value)
		in.Received.FileKeys = sortedKeys(form.File)
		if vals := form.Value["text"]; len(vals) > 0 {
			in.Text = vals[0]
		}
		if files := form.File[AudioField]; len(files) > 0 {
			clip, err := readClip(r, maxBytes)
			if err != nil {
				return in, err
			}
			in.Audio = &clip
		}
		return in, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return in, uploadError(err, maxBytes, "invalid form body")
		}
		in.Received.HasBody = len(r.PostForm) > 0
		in.Received.BodyKeys = sortedKeys(r.PostForm)
		in.Text = r.PostForm.Get("text")
		return in, nil
	}
	return in, nil
}

// readClip loads the audio file of an already parsed multipart form.
func readClip(r *http.Request, maxBytes int64) (core.Clip, error) {
	file, header, err := r.FormFile(AudioField)
	if err != nil {
		return core.Clip{}, uploadError(err, maxBytes, "invalid audio upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return core.Clip{}, uploadError(err, maxBytes, "failed to read audio upload")
	}
	return core.Clip{
		Name:     header.Filename,
		MIMEType: strings.TrimSpace(header.Header.Get("Content-Type")),
		Data:     data,
	}, nil
}

func uploadError(err error, maxBytes int64, msg string) *core.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		e := core.NewInvalidRequestError(fmt.Sprintf("upload exceeds %d bytes", maxBytes))
		e.Code = "upload_too_large"
		e.Err = err
		return e
	}
	e := core.NewInvalidRequestError(msg)
	e.Err = err
	return e
}

// statusForInputError keeps oversized uploads distinguishable from malformed ones.
func statusForInputError(err *core.Error) int {
	if err.Code == "upload_too_large" {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
