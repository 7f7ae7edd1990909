package client

import (
	"context"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// VerificationEvent is the payload pushed when email verification completes.
// The id is the encrypted subject identifier, the same value used as the
// channel name.
type VerificationEvent struct {
	ID       string `json:"id"`
	Verified bool   `json:"verified"`
}

// Watcher holds a realtime connection open while the pending-verification
// view is visible and waits for the completion event. The payload is treated
// as a hint only; OnVerified should re-fetch the session for the truth.
type Watcher struct {
	url        string
	channel    string
	onVerified func(context.Context) error
	logger     *zap.Logger
}

// NewWatcher builds a watcher for one channel, the encrypted subject id.
func NewWatcher(wsURL, channel string, onVerified func(context.Context) error, logger *zap.Logger) *Watcher {
	return &Watcher{url: wsURL, channel: channel, onVerified: onVerified, logger: logger}
}

// Run dials the realtime endpoint, subscribes by sending the channel name as
// the first frame, and blocks until the verification event arrives or ctx is
// cancelled. Cancelling ctx closes the connection, so leaving the view stops
// all background work.
func (w *Watcher) Run(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageText, []byte(w.channel)); err != nil {
		return err
	}
	w.logger.Debug("verification watcher subscribed", zap.String("channel", w.channel))

	for {
		var event VerificationEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if !event.Verified || event.ID != w.channel {
			continue
		}

		w.logger.Info("email verification confirmed")
		if w.onVerified != nil {
			return w.onVerified(ctx)
		}
		return nil
	}
}
