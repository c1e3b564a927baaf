package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
	"github.com/openmined/vaultsync/internal/vaultmsg"
	"github.com/openmined/vaultsync/internal/version"
	"github.com/openmined/vaultsync/internal/wsproto"
)

const (
	maxMessageSize = 64 * 1024 * 1024

	HeaderPeerID     = "X-Vault-Peer-Id"
	HeaderPeerAuth   = "X-Vault-Auth"
	HeaderServerID   = "X-Vault-Server-Id"
	HeaderServerAuth = "X-Vault-Server-Auth"
	HeaderVersion    = "X-Vault-Version"
)

type WebsocketHub struct {
	auth    Authenticator
	handler Handler

	clients  map[string]*WebsocketClient // ConnID -> client
	register chan *WebsocketClient
	done     chan struct{}

	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
}

func NewHub(auth Authenticator, handler Handler) *WebsocketHub {
	return &WebsocketHub{
		auth:     auth,
		handler:  handler,
		clients:  make(map[string]*WebsocketClient),
		register: make(chan *WebsocketClient),
		done:     make(chan struct{}),
	}
}

func (h *WebsocketHub) Run(ctx context.Context) {
	slog.Info("wshub started")
	defer slog.Info("wshub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ConnID()] = client
			slog.Debug("wshub registered", "connId", client.ConnID(), "peer", client.Info.PeerID, "active", len(h.clients))
			h.mu.Unlock()

			h.wg.Add(1)
			client.Start(ctx)
			go h.serve(ctx, client)

		case <-h.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// serve feeds one client's lifecycle to the handler, in order
func (h *WebsocketHub) serve(ctx context.Context, client *WebsocketClient) {
	defer h.wg.Done()

	h.handler.OnConnect(client)

loop:
	for {
		select {
		case msg := <-client.Messages():
			h.handler.OnMessage(ctx, client, msg)
		case <-client.Closed():
			break loop
		}
	}

	h.mu.Lock()
	delete(h.clients, client.ConnID())
	active := len(h.clients)
	h.mu.Unlock()

	// the run context may already be cancelled during shutdown
	h.handler.OnDisconnect(context.WithoutCancel(ctx), client, client.CloseReason())
	slog.Debug("wshub removed", "connId", client.ConnID(), "peer", client.Info.PeerID, "active", active)
}

// Count returns the number of live connections
func (h *WebsocketHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebsocketHub) Shutdown(ctx context.Context) {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.RLock()
	clients := make([]*WebsocketClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		go client.shutdown()
	}

	waited := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		slog.Info("wshub shutdown")
	case <-ctx.Done():
		slog.Warn("wshub shutdown timed out", "pending", h.Count())
	}
}

// WebsocketHandler authenticates the peer, upgrades the connection and
// registers the client with the hub.
func (h *WebsocketHub) WebsocketHandler(ctx *gin.Context) {
	peerID := ctx.GetHeader(HeaderPeerID)
	if h.auth != nil {
		if err := h.auth.VerifyPeer(peerID, ctx.GetHeader(HeaderPeerAuth)); err != nil {
			slog.Warn("wshub auth rejected", "peer", peerID, "ip", ctx.ClientIP(), "error", err)
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials, err)
			return
		}
		ctx.Writer.Header().Set(HeaderServerID, h.auth.ServerID())
		ctx.Writer.Header().Set(HeaderServerAuth, h.auth.ServerToken())
	}

	enc := wsproto.PreferredEncoding(ctx.GetHeader(wsproto.HeaderEncoding))
	ctx.Writer.Header().Set(wsproto.HeaderEncoding, strings.ToLower(enc.String()))

	conn, err := websocket.Accept(ctx.Writer, ctx.Request, nil)
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("websocket accept failed: %w", err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := NewWebsocketClient(conn, &ClientInfo{
		PeerID:   peerID,
		IPAddr:   ctx.ClientIP(),
		Headers:  ctx.Request.Header.Clone(),
		Version:  ctx.GetHeader(HeaderVersion),
		Encoding: enc,
	})

	// queued before the loops start so it is the first frame the peer sees
	client.Send(vaultmsg.NewSystemMessage(version.Version, "ok"))

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, shutdownReason)
	case <-ctx.Request.Context().Done():
		conn.Close(websocket.StatusGoingAway, shutdownReason)
	}
}
