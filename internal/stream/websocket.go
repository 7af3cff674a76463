package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	apperrors "github.com/alexjbarnes/wallet-sync/internal/errors"
)

// wsReadLimit caps a single inbound frame.
const wsReadLimit = 1024 * 1024

// wsConn abstracts the WebSocket connection so the reader can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// WebSocketTransport opens the push stream as a receive-only WebSocket.
type WebSocketTransport struct {
	URL   string
	Token string
}

// NewWebSocketTransport returns a transport dialing url (ws:// or wss://).
func NewWebSocketTransport(url, token string) *WebSocketTransport {
	return &WebSocketTransport{URL: url, Token: token}
}

// Open dials the endpoint with the bearer credential.
func (t *WebSocketTransport) Open(ctx context.Context) (EventReader, error) {
	conn, resp, err := websocket.Dial(ctx, t.URL, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + t.Token},
		},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dialing stream: %w", apperrors.ErrInvalidToken)
		}
		return nil, fmt.Errorf("dialing stream: %w", err)
	}

	return newWSReader(conn), nil
}

type wsReader struct {
	conn wsConn
}

func newWSReader(conn wsConn) *wsReader {
	conn.SetReadLimit(wsReadLimit)
	return &wsReader{conn: conn}
}

// Next returns the next text frame. Binary frames are skipped.
func (r *wsReader) Next(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := r.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil, apperrors.ErrStreamClosed
			}
			return nil, fmt.Errorf("reading frame: %w", err)
		}

		if typ != websocket.MessageText {
			continue
		}

		return data, nil
	}
}

func (r *wsReader) Close() error {
	return r.conn.Close(websocket.StatusNormalClosure, "bye")
}
