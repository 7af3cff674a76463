package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/alexjbarnes/wallet-sync/internal/errors"
)

// maxEventBytes bounds a single SSE line.
const maxEventBytes = 1024 * 1024

// SSETransport opens the push stream as a text/event-stream response.
type SSETransport struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// NewSSETransport returns a transport for url. The http client must not
// set a Timeout, since the response body stays open indefinitely.
func NewSSETransport(url, token string, httpClient *http.Client) *SSETransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &SSETransport{URL: url, Token: token, HTTPClient: httpClient}
}

// Open sends the stream request and returns a reader over its body.
func (t *SSETransport) Open(ctx context.Context) (EventReader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+t.Token)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream: %w", apperrors.ErrInvalidToken)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream: unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)

	return &sseReader{body: resp.Body, scanner: sc}, nil
}

// sseReader parses the event-stream framing: "data:" lines accumulate
// until a blank line dispatches them. Comment lines (":") and other
// fields are ignored.
type sseReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (r *sseReader) Next(ctx context.Context) ([]byte, error) {
	var data bytes.Buffer
	has := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading stream: %w", err)
			}
			return nil, apperrors.ErrStreamClosed
		}

		line := r.scanner.Bytes()
		if len(line) == 0 {
			if has {
				return data.Bytes(), nil
			}
			continue
		}

		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))

		if has {
			data.WriteByte('\n')
		}
		data.Write(value)
		has = true
	}
}

func (r *sseReader) Close() error {
	return r.body.Close()
}
