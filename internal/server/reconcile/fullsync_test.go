package reconcile

import (
	"context"
	"testing"

	"github.com/openmined/vaultsync/internal/vault"
	"github.com/openmined/vaultsync/internal/vaultmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(m vault.FileMetadata) vaultmsg.InventoryEntry {
	return vaultmsg.InventoryEntry{Path: m.Path, Metadata: m}
}

func byPath(items []vaultmsg.FileData) map[string]vaultmsg.FileData {
	out := make(map[string]vaultmsg.FileData, len(items))
	for _, it := range items {
		out[it.Path] = it
	}
	return out
}

func TestFullSyncWalk(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	onlyStore := file("store-only.md", "s1", 100)
	env.seed(t, &onlyStore, "from store")
	deletedHere := tombstone("deleted-here.md", 100)
	env.seed(t, &deletedHere, "")
	stale := file("stale.md", "old", 100)
	env.seed(t, &stale, "old content")
	same := file("same.md", "x", 100)
	env.seed(t, &same, "same")
	newerHere := file("newer-here.md", "n2", 300)
	env.seed(t, &newerHere, "newer")

	peer := env.connect(t, "c1", "laptop")
	s := mustSession(t, env, "c1")

	inventory := []vaultmsg.InventoryEntry{
		entry(file("stale.md", "new", 200)),
		entry(file("same.md", "x", 50)),
		entry(file("newer-here.md", "n1", 200)),
		entry(file("device-only.md", "d1", 10)),
		entry(tombstone("device-deleted.md", 10)),
	}

	env.engine.OnMessage(ctx, peer, vaultmsg.NewSync(inventory))

	msgs := byPath(peer.fileData(t))
	require.Len(t, msgs, 4)

	assert.Equal(t, vaultmsg.FileDataApply, msgs["store-only.md"].Type)
	assert.Equal(t, "from store", string(msgs["store-only.md"].Content))
	assert.Equal(t, vaultmsg.FileDataApply, msgs["newer-here.md"].Type)
	assert.Equal(t, "newer", string(msgs["newer-here.md"].Content))
	assert.Equal(t, vaultmsg.FileDataSend, msgs["stale.md"].Type)
	assert.Equal(t, vaultmsg.FileDataSend, msgs["device-only.md"].Type)

	// local-only tombstones are not pushed, identical entries stay quiet
	assert.NotContains(t, msgs, "deleted-here.md")
	assert.NotContains(t, msgs, "same.md")

	// device tombstone is taken without waiting for content
	m, err := env.store.ReadMetadata(ctx, "device-deleted.md")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.IsDeleted())

	assert.True(t, s.Syncing())
	assert.ElementsMatch(t, []string{"stale.md", "device-only.md"}, s.Pending())
	assert.Empty(t, peer.ofType(vaultmsg.MsgSyncComplete))

	env.engine.OnMessage(ctx, peer, vaultmsg.NewFileApply(file("stale.md", "new", 200), []byte("new content"), false))
	assert.True(t, s.Syncing())
	assert.Empty(t, peer.ofType(vaultmsg.MsgSyncComplete))

	env.engine.OnMessage(ctx, peer, vaultmsg.NewFileApply(file("device-only.md", "d1", 10), []byte("device"), false))
	assert.False(t, s.Syncing())
	assert.Len(t, peer.ofType(vaultmsg.MsgSyncComplete), 1)

	content, err := env.store.Read(ctx, "stale.md")
	require.NoError(t, err)
	assert.Equal(t, "new content", string(content))
}

func TestFullSyncCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	same := file("a.md", "h1", 100)
	env.seed(t, &same, "hi")

	peer := env.connect(t, "c1", "laptop")
	env.engine.OnMessage(ctx, peer, vaultmsg.NewSync([]vaultmsg.InventoryEntry{entry(same)}))

	assert.Len(t, peer.ofType(vaultmsg.MsgSyncComplete), 1)
	assert.False(t, mustSession(t, env, "c1").Syncing())
}

func TestFullSyncEmpty(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	peer := env.connect(t, "c1", "laptop")

	env.engine.OnMessage(ctx, peer, vaultmsg.NewSync(nil))
	assert.Len(t, peer.ofType(vaultmsg.MsgSyncComplete), 1)
}

func TestFullSyncRejectsReentry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	peer := env.connect(t, "c1", "laptop")
	s := mustSession(t, env, "c1")

	inventory := []vaultmsg.InventoryEntry{entry(file("new.md", "n", 10))}
	require.NoError(t, env.engine.FullSync(ctx, s, inventory))
	require.True(t, s.Syncing())

	err := env.engine.FullSync(ctx, s, inventory)
	assert.ErrorIs(t, err, ErrAlreadySyncing)

	// over the wire the second sync is ignored, the session stays open
	env.engine.OnMessage(ctx, peer, vaultmsg.NewSync(inventory))
	assert.Empty(t, peer.closed)
	assert.Empty(t, peer.ofType(vaultmsg.MsgError))
	assert.Len(t, peer.ofType(vaultmsg.MsgFileData), 1)
}

func TestFullSyncSkipsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	peer := env.connect(t, "c1", "laptop")

	bad := file("../escape.md", "x", 10)
	env.engine.OnMessage(ctx, peer, vaultmsg.NewSync([]vaultmsg.InventoryEntry{entry(bad)}))

	assert.Empty(t, peer.fileData(t))
	assert.Len(t, peer.ofType(vaultmsg.MsgSyncComplete), 1)
}

func TestFullSyncContinuesPastBrokenPath(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// metadata without content makes the push fail for this path only
	broken := file("broken.md", "b", 100)
	require.NoError(t, env.store.WriteMetadata(ctx, broken.Path, &broken))
	good := file("good.md", "g", 100)
	env.seed(t, &good, "fine")

	peer := env.connect(t, "c1", "laptop")
	env.engine.OnMessage(ctx, peer, vaultmsg.NewSync(nil))

	msgs := byPath(peer.fileData(t))
	assert.Contains(t, msgs, "good.md")
	assert.NotContains(t, msgs, "broken.md")
	assert.Len(t, peer.ofType(vaultmsg.MsgSyncComplete), 1)
}

func TestFullSyncAbortsWhenRequestsCannotBeSent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	peer := env.connect(t, "c1", "laptop")
	peer.sendLimit = 2
	s := mustSession(t, env, "c1")

	inventory := []vaultmsg.InventoryEntry{
		entry(file("n0.md", "h0", 10)),
		entry(file("n1.md", "h1", 10)),
		entry(file("n2.md", "h2", 10)),
		entry(file("n3.md", "h3", 10)),
	}
	err := env.engine.FullSync(ctx, s, inventory)
	require.ErrorIs(t, err, errSendFailed)

	assert.Len(t, peer.fileData(t), 2)
	assert.False(t, s.Syncing())
	assert.Empty(t, s.Pending())
	peer.closedWith(t, reasonSendFailed)
}

func TestFullSyncRecoversAfterReconnect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	stalled := env.connect(t, "c1", "laptop")
	stalled.sendLimit = 1

	inventory := []vaultmsg.InventoryEntry{
		entry(file("a.md", "ha", 10)),
		entry(file("b.md", "hb", 10)),
	}
	env.engine.OnMessage(ctx, stalled, vaultmsg.NewSync(inventory))
	stalled.closedWith(t, reasonSendFailed)
	assert.Empty(t, stalled.ofType(vaultmsg.MsgSyncComplete))
	env.engine.OnDisconnect(ctx, stalled, reasonSendFailed)

	peer := env.connect(t, "c2", "laptop")
	env.engine.OnMessage(ctx, peer, vaultmsg.NewSync(inventory))
	require.Len(t, peer.fileData(t), 2)

	env.engine.OnMessage(ctx, peer, vaultmsg.NewFileApply(file("a.md", "ha", 10), []byte("a"), false))
	env.engine.OnMessage(ctx, peer, vaultmsg.NewFileApply(file("b.md", "hb", 10), []byte("b"), false))

	s := mustSession(t, env, "c2")
	assert.False(t, s.Syncing())
	assert.Len(t, peer.ofType(vaultmsg.MsgSyncComplete), 1)

	content, err := env.store.Read(ctx, "b.md")
	require.NoError(t, err)
	assert.Equal(t, "b", string(content))
}
