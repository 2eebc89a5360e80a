package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
)

// PushEnvelope wraps every message on the push channel.
type PushEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Push event types sent by the backend.
const (
	EventListUpdated       = "list.updated"
	EventItemUpdated       = "item.updated"
	EventPantryItemUpdated = "pantry.updated"
	EventSessionRevoked    = "session.revoked"
)

// PushSubscriber keeps a WebSocket open to the backend and feeds pushed
// changes into the store. Remote copies arrive as full entities; the
// store's remote-apply path decides whether they land.
type PushSubscriber struct {
	wsURL string
	st    *store.Store

	// onSessionRevoked runs when the server pushes a revocation.
	onSessionRevoked func()

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPushSubscriber creates a subscriber against the given WebSocket URL.
func NewPushSubscriber(wsURL string, st *store.Store) *PushSubscriber {
	return &PushSubscriber{wsURL: wsURL, st: st}
}

// OnSessionRevoked registers the forced-logout hook.
func (p *PushSubscriber) OnSessionRevoked(fn func()) {
	p.onSessionRevoked = fn
}

// Start opens the channel in the background. The connection retries with
// exponential backoff and rides out connectivity loss; it only sends
// while a session exists.
func (p *PushSubscriber) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(runCtx)

	logging.Info("Push subscriber started", nil)
}

// Stop closes the channel and waits for the loop to exit.
func (p *PushSubscriber) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	logging.Info("Push subscriber stopped", nil)
}

// run reconnects forever until the context is canceled.
func (p *PushSubscriber) run(ctx context.Context) {
	defer p.wg.Done()

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // keep trying for the life of the process
	policy.MaxInterval = time.Minute

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		token := p.accessToken()
		if token == "" {
			// No session yet; poll until login happens
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if err := p.connectAndRead(ctx, token); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := policy.NextBackOff()
			logging.Warn("Push channel disconnected, reconnecting", map[string]interface{}{
				"error":         err.Error(),
				"retry_in_secs": wait.Seconds(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		policy.Reset()
	}
}

// connectAndRead dials the channel and pumps messages until it drops.
func (p *PushSubscriber) connectAndRead(ctx context.Context, token string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, p.wsURL+"?token="+token, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	logging.Info("Push channel connected", nil)

	// Close the socket when the context dies so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Keepalive pings
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		p.handleMessage(message)
	}
}

// handleMessage decodes one envelope and dispatches the matching
// remote-apply command. Malformed messages are logged and skipped.
func (p *PushSubscriber) handleMessage(message []byte) {
	var envelope PushEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		logging.Warn("Invalid push message", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	switch envelope.Type {
	case EventListUpdated:
		var list models.ShoppingList
		if err := json.Unmarshal(envelope.Data, &list); err != nil {
			logging.Warn("Invalid list payload on push channel", map[string]interface{}{"error": err.Error()})
			return
		}
		p.dispatch(store.ApplyRemoteList{List: list})

	case EventItemUpdated:
		var item models.ListItem
		if err := json.Unmarshal(envelope.Data, &item); err != nil {
			logging.Warn("Invalid item payload on push channel", map[string]interface{}{"error": err.Error()})
			return
		}
		p.dispatch(store.ApplyRemoteItem{Item: item})

	case EventPantryItemUpdated:
		var item models.PantryItem
		if err := json.Unmarshal(envelope.Data, &item); err != nil {
			logging.Warn("Invalid pantry payload on push channel", map[string]interface{}{"error": err.Error()})
			return
		}
		p.dispatch(store.ApplyRemotePantryItem{Item: item})

	case EventSessionRevoked:
		logging.Warn("Session revoked by server", nil)
		p.dispatch(store.ClearSession{})
		if p.onSessionRevoked != nil {
			p.onSessionRevoked()
		}

	default:
		logging.Debug("Ignoring unknown push event", map[string]interface{}{
			"type": envelope.Type,
		})
	}
}

func (p *PushSubscriber) dispatch(cmd store.Command) {
	if err := p.st.Dispatch(cmd); err != nil {
		logging.Error("Failed to apply pushed change", err, map[string]interface{}{
			"command": cmd.Type(),
		})
	}
}

func (p *PushSubscriber) accessToken() string {
	state := p.st.State()
	if state.Auth.Session == nil {
		return ""
	}
	return state.Auth.Session.AccessToken
}
