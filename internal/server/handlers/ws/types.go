package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/openmined/vaultsync/internal/vaultmsg"
	"github.com/openmined/vaultsync/internal/wsproto"
)

var (
	ErrSendBufferFull = errors.New("ws: send buffer full")
	ErrClientClosed   = errors.New("ws: client closed")
)

type ClientInfo struct {
	PeerID   string
	IPAddr   string
	Headers  http.Header
	Version  string
	Encoding wsproto.Encoding
}

// Handler receives the lifecycle of every connection. Calls for one client
// are made from a single goroutine, in order.
type Handler interface {
	OnConnect(client *WebsocketClient)
	OnMessage(ctx context.Context, client *WebsocketClient, msg *vaultmsg.Message)
	OnDisconnect(ctx context.Context, client *WebsocketClient, reason string)
}

// Authenticator checks a peer token at upgrade time and vouches for the server.
type Authenticator interface {
	VerifyPeer(id, token string) error
	ServerID() string
	ServerToken() string
}
