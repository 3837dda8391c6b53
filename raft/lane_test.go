package raft

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
	memstore "github.com/xmh1011/go-multiraft/storage/inmemory"
	"github.com/xmh1011/go-multiraft/transport"
)

// testConfig 使用较短的超时，让测试中的选举和复制足够快。
func testConfig() Config {
	return Config{
		HeartbeatInterval:  20 * time.Millisecond,
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		RequestTimeout:     3 * time.Second,
		CatchUpTimeout:     5 * time.Second,
		ReplicationBatch:   16,
		SnapshotChunkSize:  256,
	}
}

func newMemStores() storage.LaneStores {
	return storage.LaneStores{
		Log:       memstore.NewLogStore(),
		Ballot:    memstore.NewBallotStore(),
		Snapshots: memstore.NewSnapshotStore(),
	}
}

// newTestLane 创建一个不启动后台任务的 lane，测试直接驱动它的内部组件。
func newTestLane(t *testing.T, trans transport.Transport, stores storage.LaneStores) *Lane {
	t.Helper()
	n, err := NewNode("node-1", testConfig(), memstore.NewBackend(), trans, func(param.LaneID) storage.StateMachine {
		return memstore.NewInMemoryStateMachine()
	})
	require.NoError(t, err)
	l, err := newLane(n, 0, stores, memstore.NewInMemoryStateMachine())
	require.NoError(t, err)
	return l
}

func kvMessage(t *testing.T, cmd param.KVCommand) []byte {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return data
}

func setMessage(t *testing.T, key, value string) []byte {
	return kvMessage(t, param.KVCommand{Op: param.OpSet, Key: key, Value: value})
}

func markerEntry(prev, this param.Clock, members ...param.NodeID) param.Entry {
	return param.Entry{
		PrevClock: prev,
		ThisClock: this,
		Command:   param.MustEncodeCommand(param.NewSnapshotCommand(members)),
	}
}

func writeEntry(prev param.Clock, term uint64, requestID string, message []byte) param.Entry {
	return param.NewEntry(prev, term, param.MustEncodeCommand(param.NewWriteCommand(requestID, message)))
}

// seedBootstrapped 写入与 bootstrap 相同的日志头：索引 1 处的快照标记和空状态机的快照。
func seedBootstrapped(t *testing.T, stores storage.LaneStores, members ...param.NodeID) param.Clock {
	t.Helper()
	app, err := memstore.NewInMemoryStateMachine().GetSnapshot()
	require.NoError(t, err)
	data, err := encodeSnapshotPayload(snapshotPayload{App: app})
	require.NoError(t, err)
	require.NoError(t, stores.Snapshots.SaveSnapshot(1, data))

	head := param.Clock{Term: 0, Index: 1}
	require.NoError(t, stores.Log.InsertEntry(1, markerEntry(param.Clock{}, head, members...)))
	return head
}

// appendWrites 在 prev 之后追加 n 条 set 命令，key 为 k1..kn，返回最后一条的 Clock。
func appendWrites(t *testing.T, store storage.RaftLogStore, prev param.Clock, term uint64, n int) param.Clock {
	t.Helper()
	for i := 1; i <= n; i++ {
		key := "k" + strconv.Itoa(i)
		e := writeEntry(prev, term, "req-"+key, setMessage(t, key, "v"+strconv.Itoa(i)))
		require.NoError(t, store.InsertEntry(e.ThisClock.Index, e))
		prev = e.ThisClock
	}
	return prev
}

func toFrames(entries ...param.Entry) []param.ReplicationStreamEntry {
	frames := make([]param.ReplicationStreamEntry, 0, len(entries))
	for _, e := range entries {
		frames = append(frames, param.ReplicationStreamEntry{Clock: e.ThisClock, Command: e.Command})
	}
	return frames
}

// applyAll 应用所有已提交的条目。
func applyAll(t *testing.T, l *Lane) {
	t.Helper()
	for {
		err := l.log.AdvanceKernProcess()
		if err == errNothingToApply {
			return
		}
		require.NoError(t, err)
	}
}

func TestNewLane_RecoversFromStorage(t *testing.T) {
	stores := newMemStores()
	head := seedBootstrapped(t, stores, "node-1", "node-2")
	last := appendWrites(t, stores.Log, head, 1, 2)
	e := param.NewEntry(last, 1, param.MustEncodeCommand(param.NewMembershipCommand([]param.NodeID{"node-1", "node-2", "node-3"})))
	require.NoError(t, stores.Log.InsertEntry(e.ThisClock.Index, e))
	require.NoError(t, stores.Ballot.SaveBallot(param.Ballot{CurTerm: 4, VotedFor: "node-2"}))

	l := newTestLane(t, nil, stores)

	st, err := l.status()
	require.NoError(t, err)
	assert.Equal(t, param.Follower.String(), st.State)
	assert.Equal(t, uint64(4), st.Term)
	assert.Equal(t, uint64(1), st.CommitIndex)
	assert.Equal(t, uint64(0), st.AppliedIndex)
	assert.Equal(t, uint64(1), st.HeadIndex)
	assert.Equal(t, uint64(4), st.LastIndex)
	// 未提交的成员变更同样生效
	assert.Equal(t, []param.NodeID{"node-1", "node-2", "node-3"}, st.Members)
	assert.Equal(t, []param.NodeID{"node-1", "node-2"}, l.log.votersAt(3))
	assert.True(t, l.log.hasUncommittedConfig())
	assert.True(t, l.isVoter("node-3"))
	assert.False(t, l.isVoter("node-4"))
}

func TestNewLane_EmptyLog(t *testing.T) {
	l := newTestLane(t, nil, newMemStores())

	st, err := l.status()
	require.NoError(t, err)
	assert.Zero(t, st.Term)
	assert.Zero(t, st.LastIndex)
	assert.Empty(t, st.Members)
	assert.False(t, l.isVoter("node-1"))

	tail, err := l.log.Tail()
	require.NoError(t, err)
	assert.Equal(t, param.Clock{}, tail)
}

func TestLane_GoTrackedAfterStop(t *testing.T) {
	l := newTestLane(t, nil, newMemStores())
	// 未启动的 lane 不运行任务
	assert.False(t, l.goTracked(func(ctx context.Context) {}))
}
