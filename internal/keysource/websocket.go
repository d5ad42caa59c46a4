package keysource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cbegin/keywave/internal/music"
)

// DefaultURL is where the key capture server broadcasts.
const DefaultURL = "ws://localhost:8765"

// WebSocket reads key messages from a capture server.
type WebSocket struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

func (w *WebSocket) Run(ctx context.Context, handle func(music.KeyEvent)) error {
	url := w.URL
	if url == "" {
		url = DefaultURL
	}
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := dialer.DialContext(ctx, url, w.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	logger.Info("key source connected", "url", url)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec := NewDecoder()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("read %s: %w", url, err)
		}
		ev, err := dec.Decode(data)
		if err != nil {
			logger.Debug("skipping key message", "err", err)
			continue
		}
		handle(ev)
	}
}
