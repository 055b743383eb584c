package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// OrderChannel names the stream channel carrying updates for symbol.
func OrderChannel(symbol string) string { return "orders:" + strings.ToUpper(symbol) }

// SubscribeRequest is the control message a stream client sends.
type SubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// SubscribeOrderUpdates dials wsURL, subscribes to symbol's order channel and
// delivers updates until ctx ends or the connection drops. The channel is
// closed when delivery stops.
func (c *Client) SubscribeOrderUpdates(ctx context.Context, wsURL, symbol string) (<-chan OrderUpdate, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &ConnectionError{Op: "subscribe", Err: err}
	}

	channel := OrderChannel(symbol)
	if err := conn.WriteJSON(SubscribeRequest{Op: "subscribe", Channels: []string{channel}}); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "subscribe", Err: fmt.Errorf("send subscribe: %w", err)}
	}
	c.log.Infow("order_stream_subscribed", "channel", channel)

	out := make(chan OrderUpdate, 16)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(stop)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Warnw("order_stream_closed", "channel", channel, "err", err)
				}
				return
			}
			// the server may batch several updates into one frame, one per line
			for _, line := range bytes.Split(msg, []byte{'\n'}) {
				if len(bytes.TrimSpace(line)) == 0 {
					continue
				}
				var u OrderUpdate
				if err := json.Unmarshal(line, &u); err != nil {
					c.log.Warnw("order_stream_bad_message", "err", err)
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
