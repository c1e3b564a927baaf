package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/openmined/vaultsync/internal/server/auth"
	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"github.com/openmined/vaultsync/internal/vault"
	"github.com/openmined/vaultsync/internal/vaultmsg"
	"github.com/openmined/vaultsync/internal/version"
	"github.com/openmined/vaultsync/internal/wsproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse"

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Auth.Password = testPassword
	cfg.HTTP.RateLimit = ""
	require.NoError(t, cfg.Validate())
	return cfg
}

type testServer struct {
	svc   *Services
	http  *httptest.Server
	wsURL string
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	cfg := testConfig(t)
	svc, err := NewServices(ctx, cfg)
	require.NoError(t, err)

	hub := ws.NewHub(svc.Auth, &syncHandler{engine: svc.Engine})
	go hub.Run(ctx)

	handler, err := SetupRoutes(cfg, svc, hub)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)

	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		hub.Shutdown(shutdownCtx)
		cancel()
		srv.Close()
		svc.Shutdown(shutdownCtx)
	})

	return &testServer{
		svc:   svc,
		http:  srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events",
	}
}

func (ts *testServer) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.http.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) accessToken(t *testing.T, peer string) string {
	t.Helper()
	body := `{"peerId":"` + peer + `","auth":"` + auth.PeerToken(peer, testPassword) + `"}`
	resp, err := http.Post(ts.http.URL+"/auth/token", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.AccessToken
}

type testPeer struct {
	conn *websocket.Conn
}

func (ts *testServer) dial(t *testing.T, peer string) *testPeer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	headers := http.Header{}
	headers.Set(ws.HeaderPeerID, peer)
	headers.Set(ws.HeaderPeerAuth, auth.PeerToken(peer, testPassword))
	conn, resp, err := websocket.Dial(ctx, ts.wsURL, &websocket.DialOptions{HTTPHeader: headers})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	serverID := resp.Header.Get(ws.HeaderServerID)
	assert.Equal(t, auth.PeerToken(serverID, testPassword), resp.Header.Get(ws.HeaderServerAuth))

	p := &testPeer{conn: conn}
	assert.Equal(t, vaultmsg.MsgSystem, p.read(t).Type)
	return p
}

func (p *testPeer) send(t *testing.T, msg *vaultmsg.Message) {
	t.Helper()
	typ, data, err := wsproto.Marshal(msg, wsproto.EncodingJSON)
	require.NoError(t, err)
	require.NoError(t, p.conn.Write(context.Background(), typ, data))
}

func (p *testPeer) read(t *testing.T) *vaultmsg.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := p.conn.Read(ctx)
	require.NoError(t, err)
	msg, _, err := wsproto.Unmarshal(typ, data)
	require.NoError(t, err)
	return msg
}

func TestIndexAndHealth(t *testing.T) {
	ts := startTestServer(t)

	resp := ts.get(t, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var info version.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, version.AppName, info.App)

	resp = ts.get(t, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.get(t, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryRequiresToken(t *testing.T) {
	ts := startTestServer(t)

	resp := ts.get(t, "/api/v1/history/files", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := ts.accessToken(t, "phone")
	resp = ts.get(t, "/api/v1/history/files", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.get(t, "/api/v1/devices", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventsRejectBadPeerToken(t *testing.T) {
	ts := startTestServer(t)

	headers := http.Header{}
	headers.Set(ws.HeaderPeerID, "intruder")
	headers.Set(ws.HeaderPeerAuth, auth.PeerToken("intruder", "guess"))
	_, resp, err := websocket.Dial(context.Background(), ts.wsURL, &websocket.DialOptions{HTTPHeader: headers})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Two devices: one publishes a new file, the other receives the apply.
func TestSyncBetweenDevices(t *testing.T) {
	ctx := context.Background()
	ts := startTestServer(t)

	laptop := ts.dial(t, "laptop-peer-0000000001")
	laptop.send(t, vaultmsg.NewDeviceID("laptop"))
	phone := ts.dial(t, "phone-peer-00000000002")
	phone.send(t, vaultmsg.NewDeviceID("phone"))

	require.Eventually(t, func() bool {
		list, err := ts.svc.Devices.List(ctx)
		return err == nil && len(list) == 2
	}, 2*time.Second, 10*time.Millisecond)

	content := []byte("# hello")
	meta := vault.FileMetadata{
		Path:        "notes/hello.md",
		Kind:        vault.KindFile,
		Action:      vault.ActionCreated,
		Fingerprint: vault.Fingerprint(content),
		MTime:       1000,
	}
	laptop.send(t, vaultmsg.NewFileEvent(meta))

	req := laptop.read(t)
	require.Equal(t, vaultmsg.MsgFileData, req.Type)
	data, ok := vaultmsg.Payload[vaultmsg.FileData](req)
	require.True(t, ok)
	assert.Equal(t, vaultmsg.FileDataSend, data.Type)
	assert.Equal(t, "notes/hello.md", data.Path)

	laptop.send(t, vaultmsg.NewFileApply(meta, content, false))

	applied := phone.read(t)
	require.Equal(t, vaultmsg.MsgFileData, applied.Type)
	got, ok := vaultmsg.Payload[vaultmsg.FileData](applied)
	require.True(t, ok)
	assert.Equal(t, vaultmsg.FileDataApply, got.Type)
	assert.Equal(t, content, got.Content)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, int64(1000), got.Metadata.MTime)

	stored, err := ts.svc.Vault.Read(ctx, "notes/hello.md")
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	require.NotNil(t, ts.svc.AccessLog)
	changes, err := ts.svc.AccessLog.DeviceLogs("laptop", 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "notes/hello.md", changes[0].Path)
	assert.Equal(t, len(content), changes[0].Size)

	resp := ts.get(t, "/api/v1/devices/laptop/changes", ts.accessToken(t, "laptop-peer-0000000001"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "password is required")

	cfg = DefaultConfig()
	cfg.Auth.Password = "pw"
	cfg.DataDir = t.TempDir()
	require.NoError(t, cfg.Validate())
	assert.True(t, strings.HasSuffix(cfg.DBPath, dbFileName))
	assert.Equal(t, filepath.Join(cfg.DataDir, accessLogDirName), cfg.Access.Dir)

	cfg.HTTP.CertFile = "cert.pem"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Auth.Password = "pw"
	cfg.HTTP.RateLimit = "many"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Auth.Password = "pw"
	cfg.Log.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Auth.Password = "pw"
	cfg.Blob.Kind = "tape"
	assert.Error(t, cfg.Validate())
}

func TestDataDirLock(t *testing.T) {
	dir := t.TempDir()

	first := NewDataDirLock(dir)
	require.NoError(t, first.Lock())

	second := NewDataDirLock(dir)
	assert.ErrorIs(t, second.Lock(), ErrDataDirLocked)
	assert.NoError(t, second.Unlock())

	require.NoError(t, first.Unlock())
	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())
}
