package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vocdoni/anondonation/log"
)

const blocksSubscription = `
	subscription {
		blocks {
			height
			hash
		}
	}
`

// graphql-transport-ws message types.
const (
	wsConnectionInit = "connection_init"
	wsConnectionAck  = "connection_ack"
	wsSubscribe      = "subscribe"
	wsNext           = "next"
	wsError          = "error"
	wsComplete       = "complete"
	wsPing           = "ping"
	wsPong           = "pong"

	wsSubprotocol       = "graphql-transport-ws"
	wsHandshakeTimeout  = 10 * time.Second
	blockChannelBacklog = 16
)

// Block is a new block notification.
type Block struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeBlocks opens a GraphQL subscription to new blocks on the indexer
// WebSocket endpoint. The returned channel is closed when ctx is done or the
// connection drops.
func SubscribeBlocks(ctx context.Context, wsURL string) (<-chan Block, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		Subprotocols:     []string{wsSubprotocol},
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close websocket handshake body", "error", err.Error())
		}
	}
	// closed stops the closer once the reader exits or the handshake fails
	closed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-closed:
		}
		_ = conn.Close()
	}()
	fail := func(err error) (<-chan Block, error) {
		close(closed)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}

	deadline := time.Now().Add(wsHandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fail(err)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fail(err)
	}
	if err := conn.WriteJSON(wsMessage{Type: wsConnectionInit}); err != nil {
		return fail(fmt.Errorf("init websocket: %w", err))
	}
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		return fail(fmt.Errorf("read connection ack: %w", err))
	}
	if ack.Type != wsConnectionAck {
		return fail(fmt.Errorf("unexpected message %q, expected %q", ack.Type, wsConnectionAck))
	}
	payload, err := json.Marshal(map[string]string{"query": blocksSubscription})
	if err != nil {
		return fail(err)
	}
	if err := conn.WriteJSON(wsMessage{ID: "blocks", Type: wsSubscribe, Payload: payload}); err != nil {
		return fail(fmt.Errorf("subscribe to blocks: %w", err))
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return fail(err)
	}
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		return fail(err)
	}

	blocks := make(chan Block, blockChannelBacklog)
	go func() {
		defer close(closed)
		defer close(blocks)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					log.Debugw("block subscription closed", "url", wsURL, "error", err.Error())
				}
				return
			}
			switch msg.Type {
			case wsNext:
				var next struct {
					Data struct {
						Blocks Block `json:"blocks"`
					} `json:"data"`
				}
				if err := json.Unmarshal(msg.Payload, &next); err != nil {
					log.Warnw("invalid block notification", "error", err.Error())
					continue
				}
				select {
				case blocks <- next.Data.Blocks:
				case <-ctx.Done():
					return
				}
			case wsPing:
				if err := conn.WriteJSON(wsMessage{Type: wsPong}); err != nil {
					return
				}
			case wsError, wsComplete:
				log.Warnw("block subscription ended by server",
					"type", msg.Type,
					"payload", string(msg.Payload))
				return
			}
		}
	}()
	return blocks, nil
}
