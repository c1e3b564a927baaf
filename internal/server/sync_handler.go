package server

import (
	"context"

	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"github.com/openmined/vaultsync/internal/server/reconcile"
	"github.com/openmined/vaultsync/internal/vaultmsg"
)

// syncHandler feeds websocket lifecycle events into the reconcile engine
type syncHandler struct {
	engine *reconcile.Engine
}

func (h *syncHandler) OnConnect(client *ws.WebsocketClient) {
	h.engine.OnConnect(client)
}

func (h *syncHandler) OnMessage(ctx context.Context, client *ws.WebsocketClient, msg *vaultmsg.Message) {
	h.engine.OnMessage(ctx, client, msg)
}

func (h *syncHandler) OnDisconnect(ctx context.Context, client *ws.WebsocketClient, reason string) {
	h.engine.OnDisconnect(ctx, client, reason)
}
