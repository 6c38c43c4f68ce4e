package vai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/vango-go/vai-voice/pkg/core"
)

const defaultGatewayTimeout = 4 * time.Minute

func (c *Client) endpoint(path string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(c.baseURL))
	if err != nil || strings.TrimSpace(base.Scheme) == "" || strings.TrimSpace(base.Host) == "" {
		return "", core.NewInvalidRequestError("invalid gateway base URL")
	}
	if base.User != nil {
		return "", core.NewInvalidRequestError("gateway base URL must not include credentials")
	}

	base.RawQuery = ""
	base.Fragment = ""

	cleanPath := "/" + strings.TrimLeft(path, "/")
	basePath := strings.TrimSuffix(base.Path, "/")
	if basePath == "" || basePath == "/" {
		base.Path = cleanPath
	} else {
		base.Path = basePath + cleanPath
	}
	base.RawPath = ""
	return base.String(), nil
}

// post sends body to path and decodes a 2xx JSON response into out.
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	ctx, cancel := withDefaultGatewayTimeout(ctx)
	defer cancel()

	endpoint, err := c.endpoint(path)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return unreachable(http.MethodPost, endpoint, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(SessionHeader, c.sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.Classify(ctxErr)
		}
		return unreachable(http.MethodPost, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeGatewayErrorResponse(resp, endpoint, http.MethodPost)
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.Error{
			Type:      core.ErrUnknown,
			Message:   "failed to decode gateway response",
			RequestID: requestIDFromHeader(resp.Header),
			Err:       err,
		}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return core.NewInvalidRequestError("failed to marshal request body")
		}
		body = bytes.NewReader(raw)
	}
	return c.post(ctx, path, "application/json", body, out)
}

func (c *Client) postClip(ctx context.Context, path string, clip core.Clip, out any) error {
	body, contentType, err := encodeClip(clip)
	if err != nil {
		return err
	}
	return c.post(ctx, path, contentType, body, out)
}

// encodeClip writes clip as the multipart "audio" field.
func encodeClip(clip core.Clip) (*bytes.Buffer, string, error) {
	name := clip.Name
	if name == "" {
		name = "recording"
	}
	mimeType := clip.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="audio"; filename="`+escapeQuotes(name)+`"`)
	hdr.Set("Content-Type", mimeType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return nil, "", core.NewInvalidRequestError("failed to encode audio")
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, "", core.NewInvalidRequestError("failed to encode audio")
	}
	if err := w.Close(); err != nil {
		return nil, "", core.NewInvalidRequestError("failed to encode audio")
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func withDefaultGatewayTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultGatewayTimeout)
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultGatewayTimeout)
}
