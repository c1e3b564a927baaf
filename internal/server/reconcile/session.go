package reconcile

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/vaultsync/internal/vaultmsg"
)

// Peer is the transport side of one live connection
type Peer interface {
	ConnID() string
	Send(msg *vaultmsg.Message) error
	Close(reason string)
}

// Session is the per-connection sync state. It lives from connect to
// disconnect and is never persisted.
type Session struct {
	peer Peer

	mu       sync.Mutex
	deviceID string
	autoSync bool
	syncing  bool
	pending  mapset.Set[string]
	identify *time.Timer
}

func newSession(peer Peer) *Session {
	return &Session{
		peer:     peer,
		autoSync: true,
		pending:  mapset.NewThreadUnsafeSet[string](),
	}
}

func (s *Session) ConnID() string {
	return s.peer.ConnID()
}

func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

func (s *Session) Identified() bool {
	return s.DeviceID() != ""
}

func (s *Session) AutoSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSync
}

func (s *Session) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// Pending returns a copy of the paths still awaited in a full sync
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.ToSlice()
}

func (s *Session) setAutoSync(enabled bool) {
	s.mu.Lock()
	s.autoSync = enabled
	s.mu.Unlock()
}

// bind sets the device id once. Later binds with another id fail.
func (s *Session) bind(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceID != "" && s.deviceID != deviceID {
		return false
	}
	s.deviceID = deviceID
	if s.identify != nil {
		s.identify.Stop()
		s.identify = nil
	}
	return true
}

// beginSync moves idle to syncing. False when a sync is already running.
func (s *Session) beginSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	s.pending.Clear()
	return true
}

func (s *Session) addPending(path string) {
	s.mu.Lock()
	if s.syncing {
		s.pending.Add(path)
	}
	s.mu.Unlock()
}

func (s *Session) removePending(path string) {
	s.mu.Lock()
	if s.syncing {
		s.pending.Remove(path)
	}
	s.mu.Unlock()
}

// settle moves syncing back to idle when nothing is pending. It reports
// whether that transition happened on this call.
func (s *Session) settle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.syncing || s.pending.Cardinality() > 0 {
		return false
	}
	s.syncing = false
	return true
}

func (s *Session) abortSync() {
	s.mu.Lock()
	s.syncing = false
	s.pending.Clear()
	s.mu.Unlock()
}

func (s *Session) stopTimer() {
	s.mu.Lock()
	if s.identify != nil {
		s.identify.Stop()
		s.identify = nil
	}
	s.mu.Unlock()
}

// send delivers msg to the peer. A failed send closes the peer, since the
// device can no longer tell which requests and changes it missed; it
// reconnects and runs a full sync instead.
func (s *Session) send(msg *vaultmsg.Message) error {
	err := s.peer.Send(msg)
	if err == nil {
		return nil
	}
	slog.Warn("session send failed, closing", "connId", s.ConnID(), "device", s.DeviceID(), "msgType", msg.Type, "error", err)
	// closing flushes the peer's queue, which must not hold up the caller
	go s.peer.Close(reasonSendFailed)
	return fmt.Errorf("%w: %w", errSendFailed, err)
}

// sessions is the registry of live sessions keyed by connection id
type sessions struct {
	mu sync.RWMutex
	m  map[string]*Session
}

func newSessions() *sessions {
	return &sessions{m: make(map[string]*Session)}
}

func (r *sessions) add(s *Session) {
	r.mu.Lock()
	r.m[s.ConnID()] = s
	r.mu.Unlock()
}

func (r *sessions) get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[connID]
	return s, ok
}

func (r *sessions) remove(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[connID]
	delete(r.m, connID)
	return s, ok
}

func (r *sessions) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// snapshot returns the sessions matching keep. Callers send to the copy
// without holding the registry lock.
func (r *sessions) snapshot(keep func(*Session) bool) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.m))
	for _, s := range r.m {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
