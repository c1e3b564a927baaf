package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmined/vaultsync/internal/vault"
	"github.com/openmined/vaultsync/internal/vaultmsg"
)

const (
	defaultIdentifyTimeout = 5 * time.Second

	reasonIdentifyTimeout = "device id timeout"
	reasonProtocol        = "protocol error"
	reasonSendFailed      = "send failed"
)

var (
	ErrAlreadySyncing = errors.New("reconcile: sync already in progress")
	ErrNotIdentified  = errors.New("reconcile: session has no device id")
	ErrUnknownSession = errors.New("reconcile: unknown session")
)

// DeviceRegistry is what the engine needs from the device registry
type DeviceRegistry interface {
	Add(ctx context.Context, id string) error
	TouchLastOnline(ctx context.Context, id string) (int64, error)
}

// ChangeRecorder is told about every change the engine persists
type ChangeRecorder interface {
	RecordChange(deviceID, connID string, meta vault.FileMetadata, size int)
}

type Config struct {
	// IdentifyTimeout is how long a new session may stay without a device id
	IdentifyTimeout time.Duration `mapstructure:"identify_timeout"`
	// IgnorePatterns are gitignore-style rules for paths the vault never stores
	IgnorePatterns []string `mapstructure:"ignore_patterns"`
}

func (c *Config) Validate() error {
	if c.IdentifyTimeout < 0 {
		return fmt.Errorf("identify_timeout must not be negative")
	}
	return nil
}

// Engine resolves device changes against the vault and fans accepted
// changes out to other sessions.
type Engine struct {
	store    vault.Store
	devices  DeviceRegistry
	locks    *vault.PathLocks
	history  *History
	sessions *sessions
	config   *Config
	recorder ChangeRecorder
	ignore   *ignoreList
}

func NewEngine(config *Config, store vault.Store, devices DeviceRegistry, locks *vault.PathLocks) *Engine {
	if config == nil {
		config = &Config{}
	}
	if config.IdentifyTimeout == 0 {
		config.IdentifyTimeout = defaultIdentifyTimeout
	}
	if locks == nil {
		locks = vault.NewPathLocks()
	}
	return &Engine{
		store:    store,
		devices:  devices,
		locks:    locks,
		history:  NewHistory(store),
		sessions: newSessions(),
		config:   config,
		ignore:   newIgnoreList(config.IgnorePatterns),
	}
}

// SetRecorder installs r for changes accepted from now on. Not safe to call
// once sessions are being served.
func (e *Engine) SetRecorder(r ChangeRecorder) {
	e.recorder = r
}

func (e *Engine) record(s *Session, meta vault.FileMetadata, size int) {
	if e.recorder != nil {
		e.recorder.RecordChange(s.DeviceID(), s.ConnID(), meta, size)
	}
}

func (e *Engine) History() *History {
	return e.history
}

// Session returns the live session for a connection
func (e *Engine) Session(connID string) (*Session, bool) {
	return e.sessions.get(connID)
}

func (e *Engine) SessionCount() int {
	return e.sessions.len()
}

// OnConnect starts a session and arms the identify timer
func (e *Engine) OnConnect(peer Peer) *Session {
	s := newSession(peer)
	s.identify = time.AfterFunc(e.config.IdentifyTimeout, func() {
		if s.Identified() {
			return
		}
		slog.Warn("session not identified in time", "connId", s.ConnID(), "timeout", e.config.IdentifyTimeout)
		peer.Close(reasonIdentifyTimeout)
	})
	e.sessions.add(s)
	slog.Info("session connected", "connId", s.ConnID(), "active", e.sessions.len())
	return s
}

// OnDisconnect drops the session and records when its device was last seen
func (e *Engine) OnDisconnect(ctx context.Context, peer Peer, reason string) {
	s, ok := e.sessions.remove(peer.ConnID())
	if !ok {
		return
	}
	s.stopTimer()

	deviceID := s.DeviceID()
	if deviceID != "" {
		if _, err := e.devices.TouchLastOnline(ctx, deviceID); err != nil {
			slog.Error("update last online", "device", deviceID, "error", err)
		}
	}
	slog.Info("session disconnected", "connId", peer.ConnID(), "device", deviceID, "reason", reason, "active", e.sessions.len())
}

// OnMessage handles one inbound message. Messages of a single session
// must be delivered sequentially.
func (e *Engine) OnMessage(ctx context.Context, peer Peer, msg *vaultmsg.Message) {
	s, ok := e.sessions.get(peer.ConnID())
	if !ok {
		slog.Warn("message for unknown session", "connId", peer.ConnID(), "msgType", msg.Type)
		return
	}

	if !msg.Type.IsRPC() && !s.Identified() {
		e.protocolError(s, msg, ErrNotIdentified)
		return
	}

	var err error
	switch msg.Type {
	case vaultmsg.MsgSystem:
		// keepalive
	case vaultmsg.MsgDeviceID:
		err = e.handleDeviceID(ctx, s, msg)
	case vaultmsg.MsgAutoSync:
		err = e.handleAutoSync(s, msg)
	case vaultmsg.MsgSync:
		err = e.handleSync(ctx, s, msg)
	case vaultmsg.MsgFileEvent:
		err = e.handleFileEvent(ctx, s, msg)
	case vaultmsg.MsgFileData:
		err = e.handleFileData(ctx, s, msg)
	case vaultmsg.MsgFileHistory:
		err = e.handleFileHistory(ctx, s, msg)
	default:
		err = fmt.Errorf("%w: unexpected %s", errProtocol, msg.Type)
	}

	if err == nil {
		return
	}
	if errors.Is(err, errSendFailed) {
		// session already closed by send
		return
	}
	if errors.Is(err, errProtocol) {
		e.protocolError(s, msg, err)
		return
	}
	slog.Error("handle message", "connId", s.ConnID(), "device", s.DeviceID(), "msgId", msg.Id, "msgType", msg.Type, "error", err)
	s.send(vaultmsg.NewError(http.StatusInternalServerError, pathOf(msg), err.Error()))
}

var (
	errProtocol   = errors.New("protocol error")
	errSendFailed = errors.New("send failed")
)

func (e *Engine) protocolError(s *Session, msg *vaultmsg.Message, err error) {
	slog.Warn("protocol error, closing session", "connId", s.ConnID(), "msgType", msg.Type, "error", err)
	s.send(vaultmsg.NewError(http.StatusBadRequest, pathOf(msg), err.Error()))
	s.peer.Close(reasonProtocol)
}

func (e *Engine) handleDeviceID(ctx context.Context, s *Session, msg *vaultmsg.Message) error {
	payload, ok := vaultmsg.Payload[vaultmsg.DeviceID](msg)
	if !ok || payload.ID == "" {
		return fmt.Errorf("%w: device id missing", errProtocol)
	}
	if !s.bind(payload.ID) {
		return fmt.Errorf("%w: session already bound to another device", errProtocol)
	}

	if err := e.devices.Add(ctx, payload.ID); err != nil {
		return err
	}
	if _, err := e.devices.TouchLastOnline(ctx, payload.ID); err != nil {
		return err
	}

	slog.Info("session identified", "connId", s.ConnID(), "device", payload.ID)
	return nil
}

func (e *Engine) handleAutoSync(s *Session, msg *vaultmsg.Message) error {
	payload, ok := vaultmsg.Payload[vaultmsg.AutoSync](msg)
	if !ok {
		return fmt.Errorf("%w: invalid auto_sync payload", errProtocol)
	}
	s.setAutoSync(payload.Enabled)
	slog.Debug("auto sync", "connId", s.ConnID(), "device", s.DeviceID(), "enabled", payload.Enabled)
	return nil
}

func (e *Engine) handleSync(ctx context.Context, s *Session, msg *vaultmsg.Message) error {
	payload, ok := vaultmsg.Payload[vaultmsg.Sync](msg)
	if !ok {
		return fmt.Errorf("%w: invalid sync payload", errProtocol)
	}
	if err := e.FullSync(ctx, s, payload.Inventory); errors.Is(err, ErrAlreadySyncing) {
		slog.Warn("sync ignored, already syncing", "connId", s.ConnID(), "device", s.DeviceID())
		return nil
	} else if err != nil {
		return err
	}
	return nil
}

func (e *Engine) handleFileEvent(ctx context.Context, s *Session, msg *vaultmsg.Message) error {
	payload, ok := vaultmsg.Payload[vaultmsg.FileEvent](msg)
	if !ok {
		return fmt.Errorf("%w: invalid file_event payload", errProtocol)
	}
	candidate := payload.Metadata
	if err := candidate.Normalize(); err != nil {
		return fmt.Errorf("%w: %w", errProtocol, err)
	}
	if e.ignore.ShouldIgnore(candidate.Path) {
		slog.Debug("ignored file_event", "connId", s.ConnID(), "path", candidate.Path)
		return nil
	}
	_, err := e.ResolveEvent(ctx, s, &candidate)
	return err
}

func (e *Engine) handleFileData(ctx context.Context, s *Session, msg *vaultmsg.Message) error {
	payload, ok := vaultmsg.Payload[vaultmsg.FileData](msg)
	if !ok {
		return fmt.Errorf("%w: invalid file_data payload", errProtocol)
	}

	switch payload.Type {
	case vaultmsg.FileDataSend:
		path, err := vault.CleanPath(payload.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", errProtocol, err)
		}
		return e.sendCurrent(ctx, s, path)
	case vaultmsg.FileDataApply:
		_, err := e.Apply(ctx, s, payload)
		return err
	default:
		return fmt.Errorf("%w: unknown file_data type %q", errProtocol, payload.Type)
	}
}

func (e *Engine) handleFileHistory(ctx context.Context, s *Session, msg *vaultmsg.Message) error {
	payload, ok := vaultmsg.Payload[vaultmsg.FileHistory](msg)
	if !ok {
		return fmt.Errorf("%w: invalid file_history payload", errProtocol)
	}
	reply := e.history.Query(ctx, payload)
	return s.send(vaultmsg.NewHistoryReply(msg.Id, reply))
}

// ResolveEvent runs the conflict policy for a single candidate and acts
// on the verdict.
func (e *Engine) ResolveEvent(ctx context.Context, s *Session, candidate *vault.FileMetadata) (Outcome, error) {
	return e.resolve(ctx, s, candidate.Path, func(*vault.FileMetadata) *vault.FileMetadata {
		return candidate
	})
}

// resolve reads the stored record and decides under the path lock. Messages
// carrying the path's state go out while the lock is held, so every peer
// sees one path's changes in commit order.
func (e *Engine) resolve(ctx context.Context, s *Session, path string, candidateFor func(local *vault.FileMetadata) *vault.FileMetadata) (Outcome, error) {
	unlock := e.locks.Lock(path)
	defer unlock()

	local, err := e.store.ReadMetadata(ctx, path)
	if err != nil {
		return NoChange, err
	}
	candidate := candidateFor(local)
	outcome := Resolve(local, candidate)

	slog.Debug("resolve", "connId", s.ConnID(), "device", s.DeviceID(), "path", path, "outcome", outcome)

	switch outcome {
	case RemoteNewer:
		if candidate.IsDeleted() {
			if err := e.store.WriteMetadata(ctx, path, candidate); err != nil {
				return outcome, err
			}
			e.record(s, *candidate, 0)
			e.broadcast(s, vaultmsg.NewFileApply(*candidate, nil, false))
			return outcome, nil
		}
		unlock()
		if err := s.send(vaultmsg.NewFileSend(path)); err != nil {
			return outcome, err
		}

	case LocalNewer:
		apply, err := e.currentApply(ctx, local)
		if err != nil {
			return outcome, err
		}
		if err := s.send(apply); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

// Apply stores an incoming change if it still wins against the stored
// record, then broadcasts it. Losing changes push the stored state back.
func (e *Engine) Apply(ctx context.Context, s *Session, data vaultmsg.FileData) (Outcome, error) {
	if data.Metadata == nil {
		return NoChange, fmt.Errorf("%w: apply without metadata", errProtocol)
	}
	meta := *data.Metadata
	if meta.Path == "" {
		meta.Path = data.Path
	}
	if err := meta.Normalize(); err != nil {
		return NoChange, fmt.Errorf("%w: %w", errProtocol, err)
	}
	if meta.IsDeleted() {
		meta.Fingerprint = ""
	}
	path := meta.Path

	defer e.markResolved(s, path)

	if e.ignore.ShouldIgnore(path) {
		slog.Debug("ignored apply", "connId", s.ConnID(), "path", path)
		return NoChange, nil
	}

	unlock := e.locks.Lock(path)
	defer unlock()

	local, err := e.store.ReadMetadata(ctx, path)
	if err != nil {
		return NoChange, err
	}

	outcome := Resolve(local, &meta)
	slog.Debug("apply", "connId", s.ConnID(), "device", s.DeviceID(), "path", path, "outcome", outcome, "size", len(data.Content))

	switch outcome {
	case RemoteNewer:
		binary := data.Binary || vault.IsBinaryPath(path)
		if err := e.commit(ctx, local, &meta, data.Content, binary); err != nil {
			return outcome, err
		}

		content := data.Content
		if meta.IsDeleted() {
			content = nil
		}
		e.record(s, meta, len(content))
		e.broadcast(s, vaultmsg.NewFileApply(meta, content, binary))

	case LocalNewer:
		apply, err := e.currentApply(ctx, local)
		if err != nil {
			return outcome, err
		}
		if err := s.send(apply); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

// commit writes metadata then content. A failed content write restores the
// previous record so metadata never points at missing content.
func (e *Engine) commit(ctx context.Context, previous, meta *vault.FileMetadata, content []byte, binary bool) error {
	if err := e.store.WriteMetadata(ctx, meta.Path, meta); err != nil {
		return err
	}
	if meta.IsDeleted() || meta.IsFolder() {
		return nil
	}

	if _, err := e.store.Write(ctx, meta.Path, content, binary); err != nil {
		var rollbackErr error
		if previous != nil {
			rollbackErr = e.store.WriteMetadata(ctx, meta.Path, previous)
		} else {
			rollbackErr = e.store.Delete(ctx, meta.Path)
		}
		if rollbackErr != nil {
			slog.Error("rollback metadata", "path", meta.Path, "error", rollbackErr)
		}
		return err
	}
	return nil
}

// sendCurrent answers a device's send request with the stored state
func (e *Engine) sendCurrent(ctx context.Context, s *Session, path string) error {
	unlock := e.locks.Lock(path)
	defer unlock()

	local, err := e.store.ReadMetadata(ctx, path)
	if err != nil {
		return err
	}
	if local == nil {
		return fmt.Errorf("%w: %s", vault.ErrNotFound, path)
	}
	apply, err := e.currentApply(ctx, local)
	if err != nil {
		return err
	}
	return s.send(apply)
}

// currentApply builds an apply message for the stored state. Tombstones
// and folders carry no content.
func (e *Engine) currentApply(ctx context.Context, local *vault.FileMetadata) (*vaultmsg.Message, error) {
	binary := vault.IsBinaryPath(local.Path)
	if local.IsDeleted() || local.IsFolder() {
		return vaultmsg.NewFileApply(*local, nil, binary), nil
	}
	content, err := e.store.Read(ctx, local.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", local.Path, err)
	}
	return vaultmsg.NewFileApply(*local, content, binary), nil
}

// broadcast sends msg to every identified auto-sync session except origin.
// A peer that cannot take the message is closed; origin is unaffected.
func (e *Engine) broadcast(origin *Session, msg *vaultmsg.Message) {
	targets := e.sessions.snapshot(func(s *Session) bool {
		return s != origin && s.Identified() && s.AutoSync()
	})
	for _, target := range targets {
		target.send(msg)
	}
	if len(targets) > 0 {
		slog.Debug("broadcast", "msgType", msg.Type, "path", pathOf(msg), "peers", len(targets))
	}
}

func pathOf(msg *vaultmsg.Message) string {
	switch msg.Type {
	case vaultmsg.MsgFileEvent:
		if p, ok := vaultmsg.Payload[vaultmsg.FileEvent](msg); ok {
			return p.Metadata.Path
		}
	case vaultmsg.MsgFileData:
		if p, ok := vaultmsg.Payload[vaultmsg.FileData](msg); ok {
			return p.Path
		}
	case vaultmsg.MsgFileHistory:
		if p, ok := vaultmsg.Payload[vaultmsg.FileHistory](msg); ok {
			return p.Path
		}
	}
	return ""
}
