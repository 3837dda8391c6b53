package raft

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
	memstore "github.com/xmh1011/go-multiraft/storage/inmemory"
	memtrans "github.com/xmh1011/go-multiraft/transport/inmemory"
)

const waitTimeout = 10 * time.Second

// testPeer 是集群中的一个节点。重启时保留 backend，重新创建 Node 和 Transport。
type testPeer struct {
	id      param.NodeID
	backend *memstore.Backend
	trans   *memtrans.Transport
	node    *Node
	running bool

	mu   sync.Mutex
	apps map[param.LaneID]*memstore.StateMachine
}

func (p *testPeer) app(lane param.LaneID) *memstore.StateMachine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apps[lane]
}

func (p *testPeer) get(lane param.LaneID, key string) (string, error) {
	app := p.app(lane)
	if app == nil {
		return "", errors.New("lane not created")
	}
	return app.Get(key)
}

type testCluster struct {
	t     *testing.T
	cfg   Config
	lanes []param.LaneID
	peers []*testPeer

	mu      sync.Mutex
	leaders map[param.LaneID]map[uint64]param.NodeID // 每个任期观察到的 Leader
}

func newTestCluster(t *testing.T, n int, lanes ...param.LaneID) *testCluster {
	return newTestClusterWithConfig(t, testConfig(), n, lanes...)
}

func newTestClusterWithConfig(t *testing.T, cfg Config, n int, lanes ...param.LaneID) *testCluster {
	c := &testCluster{
		t:       t,
		cfg:     cfg,
		lanes:   lanes,
		leaders: make(map[param.LaneID]map[uint64]param.NodeID),
	}
	for i := 1; i <= n; i++ {
		c.peers = append(c.peers, &testPeer{id: fmt.Sprintf("node-%d", i), backend: memstore.NewBackend()})
	}
	for _, p := range c.peers {
		c.startPeer(p)
	}
	t.Cleanup(func() {
		for _, p := range c.peers {
			p.node.Stop()
		}
	})
	return c
}

func (c *testCluster) startPeer(p *testPeer) {
	c.t.Helper()
	p.mu.Lock()
	p.apps = make(map[param.LaneID]*memstore.StateMachine)
	p.mu.Unlock()

	p.trans = memtrans.NewInMemoryTransport(p.id)
	node, err := NewNode(p.id, c.cfg, p.backend, p.trans, func(lane param.LaneID) storage.StateMachine {
		sm := memstore.NewInMemoryStateMachine()
		p.mu.Lock()
		p.apps[lane] = sm
		p.mu.Unlock()
		return sm
	})
	require.NoError(c.t, err)
	p.node = node
	p.trans.RegisterRaft(node)

	for _, other := range c.peers {
		if other == p || !other.running {
			continue
		}
		p.trans.Connect(other.id, other.node)
		other.trans.Connect(p.id, node)
	}
	for _, lane := range c.lanes {
		require.NoError(c.t, node.CreateLane(lane))
	}
	node.Start()
	p.running = true
}

func (c *testCluster) stopPeer(p *testPeer) {
	for _, other := range c.peers {
		if other == p || !other.running {
			continue
		}
		other.trans.Disconnect(p.id)
		p.trans.Disconnect(other.id)
	}
	p.node.Stop()
	p.running = false
}

// isolate 切断 p 与其他所有节点的双向连接，p 继续运行。
func (c *testCluster) isolate(p *testPeer) {
	for _, other := range c.peers {
		if other == p || !other.running {
			continue
		}
		other.trans.Disconnect(p.id)
		p.trans.Disconnect(other.id)
	}
}

// heal 恢复 p 与其他运行中节点的连接。
func (c *testCluster) heal(p *testPeer) {
	for _, other := range c.peers {
		if other == p || !other.running {
			continue
		}
		other.trans.Connect(p.id, p.node)
		p.trans.Connect(other.id, other.node)
	}
}

func (c *testCluster) peer(id param.NodeID) *testPeer {
	for _, p := range c.peers {
		if p.id == id {
			return p
		}
	}
	c.t.Fatalf("unknown peer %s", id)
	return nil
}

// observe 记录所有运行中节点的角色，检查同一任期内最多只有一个 Leader。
// 返回任期最高的 Leader，没有时返回 nil。
func (c *testCluster) observe(lane param.LaneID) *testPeer {
	var leader *testPeer
	var leaderTerm uint64
	for _, p := range c.peers {
		if !p.running {
			continue
		}
		st, err := p.node.Status(lane)
		if err != nil || st.State != param.Leader.String() {
			continue
		}

		c.mu.Lock()
		terms, ok := c.leaders[lane]
		if !ok {
			terms = make(map[uint64]param.NodeID)
			c.leaders[lane] = terms
		}
		if prev, ok := terms[st.Term]; ok && prev != p.id {
			c.mu.Unlock()
			c.t.Errorf("lane %d has two leaders in term %d: %s and %s", lane, st.Term, prev, p.id)
			continue
		}
		terms[st.Term] = p.id
		c.mu.Unlock()

		if leader == nil || st.Term > leaderTerm {
			leader, leaderTerm = p, st.Term
		}
	}
	return leader
}

func (c *testCluster) waitLeader(lane param.LaneID) *testPeer {
	c.t.Helper()
	var leader *testPeer
	require.Eventually(c.t, func() bool {
		leader = c.observe(lane)
		return leader != nil
	}, waitTimeout, 10*time.Millisecond, "no leader elected for lane %d", lane)
	return leader
}

// bootstrap 在 members[0] 上初始化 lane，再依次添加其余成员。
func (c *testCluster) bootstrap(lane param.LaneID, members ...*testPeer) *testPeer {
	c.t.Helper()
	if len(members) == 0 {
		members = c.peers
	}
	first := members[0]
	require.NoError(c.t, first.node.AddServer(&param.AddServerRequest{LaneID: lane, ServerID: first.id}))
	leader := c.waitLeader(lane)
	require.Equal(c.t, first.id, leader.id)

	for _, p := range members[1:] {
		require.NoError(c.t, leader.node.AddServer(&param.AddServerRequest{LaneID: lane, ServerID: p.id}))
	}
	return leader
}

// tryWrite 不断重试直到某个 Leader 接受写请求。不使用 t，可以在其他 goroutine 中调用。
func (c *testCluster) tryWrite(lane param.LaneID, requestID string, cmd param.KVCommand) (param.Response, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return param.Response{}, err
	}
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		leader := c.observe(lane)
		if leader == nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		var resp param.Response
		err := leader.node.Write(&param.WriteRequest{LaneID: lane, Message: data, RequestID: requestID}, &resp)
		if err == nil && !resp.NotLeader {
			return resp, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return param.Response{}, fmt.Errorf("write %s timed out", requestID)
}

func (c *testCluster) write(lane param.LaneID, requestID string, cmd param.KVCommand) param.Response {
	c.t.Helper()
	resp, err := c.tryWrite(lane, requestID, cmd)
	require.NoError(c.t, err)
	return resp
}

func (c *testCluster) set(lane param.LaneID, key, value string) {
	c.t.Helper()
	resp := c.write(lane, "set-"+key+"-"+value, param.KVCommand{Op: param.OpSet, Key: key, Value: value})
	require.Empty(c.t, resp.Error)
}

// read 通过 Leader 做一次线性一致读。
func (c *testCluster) read(lane param.LaneID, key string) param.Response {
	c.t.Helper()
	data, err := json.Marshal(param.KVCommand{Op: param.OpGet, Key: key})
	require.NoError(c.t, err)

	var resp param.Response
	require.Eventually(c.t, func() bool {
		leader := c.observe(lane)
		if leader == nil {
			return false
		}
		resp = param.Response{}
		err := leader.node.Read(&param.ReadRequest{LaneID: lane, Message: data}, &resp)
		return err == nil && !resp.NotLeader
	}, waitTimeout, 20*time.Millisecond)
	return resp
}

// waitValue 等待 p 的状态机中 key 的值变为 want。
func (c *testCluster) waitValue(p *testPeer, lane param.LaneID, key, want string) {
	c.t.Helper()
	require.Eventually(c.t, func() bool {
		v, err := p.get(lane, key)
		return err == nil && v == want
	}, waitTimeout, 10*time.Millisecond, "%s never saw %s=%s", p.id, key, want)
}

// status 可以在 Eventually 的条件函数中调用，出错时只记录错误。
func (c *testCluster) status(p *testPeer, lane param.LaneID) LaneStatus {
	st, err := p.node.Status(lane)
	if err != nil {
		c.t.Errorf("status of %s lane %d: %v", p.id, lane, err)
	}
	return st
}

func TestCluster_BootstrapWriteRead(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0)

	st := c.status(leader, 0)
	assert.ElementsMatch(t, []param.NodeID{"node-1", "node-2", "node-3"}, st.Members)

	c.set(0, "color", "blue")
	resp := c.write(0, "add-1", param.KVCommand{Op: param.OpFetchAdd, Key: "counter", Delta: 5})
	assert.Equal(t, "0", string(resp.Message))
	resp = c.write(0, "add-2", param.KVCommand{Op: param.OpFetchAdd, Key: "counter", Delta: 2})
	assert.Equal(t, "5", string(resp.Message))

	resp = c.read(0, "color")
	assert.Equal(t, "blue", string(resp.Message))
	assert.Empty(t, resp.Error)

	resp = c.read(0, "missing")
	assert.Contains(t, resp.Error, memstore.ErrKeyNotFound.Error())

	for _, p := range c.peers {
		c.waitValue(p, 0, "counter", "7")
		c.waitValue(p, 0, "color", "blue")
	}
	c.observe(0)
}

func TestCluster_ApplicationErrorIsReturned(t *testing.T) {
	c := newTestCluster(t, 1, 0)
	c.bootstrap(0)

	c.set(0, "word", "hello")
	resp := c.write(0, "bad-add", param.KVCommand{Op: param.OpFetchAdd, Key: "word", Delta: 1})
	assert.Equal(t, memstore.ErrInvalidCounter.Error(), resp.Error)

	// 重试得到相同的结果
	resp = c.write(0, "bad-add", param.KVCommand{Op: param.OpFetchAdd, Key: "word", Delta: 1})
	assert.Equal(t, memstore.ErrInvalidCounter.Error(), resp.Error)
}

func TestCluster_FollowerRedirects(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0)

	for _, p := range c.peers {
		if p == leader {
			continue
		}
		require.Eventually(t, func() bool {
			return c.status(p, 0).Leader == leader.id
		}, waitTimeout, 10*time.Millisecond)

		var resp param.Response
		err := p.node.Write(&param.WriteRequest{LaneID: 0, Message: setMessage(t, "a", "1"), RequestID: "r"}, &resp)
		require.NoError(t, err)
		assert.True(t, resp.NotLeader)
		assert.Equal(t, leader.id, resp.LeaderHint)

		resp = param.Response{}
		err = p.node.Read(&param.ReadRequest{LaneID: 0, Message: kvMessage(t, param.KVCommand{Op: param.OpGet, Key: "a"})}, &resp)
		require.NoError(t, err)
		assert.True(t, resp.NotLeader)
	}
}

func TestCluster_DuplicateRequestAppliedOnce(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	c.bootstrap(0)

	const clients = 8
	var wg sync.WaitGroup
	responses := make([]param.Response, clients)
	errs := make([]error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = c.tryWrite(0, "same-request", param.KVCommand{Op: param.OpFetchAdd, Key: "n", Delta: 1})
		}(i)
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "0", string(responses[i].Message), "every retry sees the first result")
	}
	resp := c.read(0, "n")
	assert.Equal(t, "1", string(resp.Message))
}

func TestCluster_MultipleLanesAreIndependent(t *testing.T) {
	c := newTestCluster(t, 3, 1, 2)
	c.bootstrap(1, c.peers[0], c.peers[1], c.peers[2])
	c.bootstrap(2, c.peers[2], c.peers[0], c.peers[1])

	c.set(1, "owner", "lane-1")
	c.set(2, "owner", "lane-2")

	assert.Equal(t, "lane-1", string(c.read(1, "owner").Message))
	assert.Equal(t, "lane-2", string(c.read(2, "owner").Message))
	for _, p := range c.peers {
		c.waitValue(p, 1, "owner", "lane-1")
		c.waitValue(p, 2, "owner", "lane-2")
	}
	assert.Equal(t, []param.LaneID{1, 2}, c.peers[0].node.Lanes())
}

func TestCluster_FollowerRestartCatchesUp(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0)
	c.set(0, "before", "1")

	var follower *testPeer
	for _, p := range c.peers {
		if p != leader {
			follower = p
			break
		}
	}
	c.waitValue(follower, 0, "before", "1")
	c.stopPeer(follower)

	for i := 0; i < 20; i++ {
		c.set(0, "key-"+strconv.Itoa(i), strconv.Itoa(i))
	}

	c.startPeer(follower)
	c.waitValue(follower, 0, "before", "1")
	c.waitValue(follower, 0, "key-19", "19")

	// 空闲的 Leader 也能让重启的节点追上提交索引
	require.Eventually(t, func() bool {
		return c.status(follower, 0).CommitIndex == c.status(leader, 0).CommitIndex
	}, waitTimeout, 10*time.Millisecond)
}

func TestCluster_LeaderFailover(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	old := c.bootstrap(0)
	oldTerm := c.status(old, 0).Term
	c.set(0, "k", "v1")

	c.stopPeer(old)
	leader := c.waitLeader(0)
	assert.NotEqual(t, old.id, leader.id)
	assert.Greater(t, c.status(leader, 0).Term, oldTerm)

	c.set(0, "k", "v2")
	assert.Equal(t, "v2", string(c.read(0, "k").Message))

	// 旧 Leader 重启后成为 Follower 并追上
	c.startPeer(old)
	c.waitValue(old, 0, "k", "v2")
	assert.Eventually(t, func() bool {
		return c.status(old, 0).Leader == leader.id
	}, waitTimeout, 10*time.Millisecond)
}

func TestCluster_NetworkPartition(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	old := c.bootstrap(0)
	oldTerm := c.status(old, 0).Term
	c.set(0, "k", "before")

	c.isolate(old)

	// 多数派一侧选出新的 Leader
	var leader *testPeer
	require.Eventually(t, func() bool {
		leader = c.observe(0)
		return leader != nil && leader != old
	}, waitTimeout, 10*time.Millisecond)
	assert.Greater(t, c.status(leader, 0).Term, oldTerm)
	c.set(0, "k", "after")

	// 孤立的旧 Leader 联系不到多数派后下台
	require.Eventually(t, func() bool {
		return c.status(old, 0).State != param.Leader.String()
	}, waitTimeout, 10*time.Millisecond)
	v, err := old.get(0, "k")
	require.NoError(t, err)
	assert.Equal(t, "before", v)

	c.heal(old)
	c.waitValue(old, 0, "k", "after")
	assert.Eventually(t, func() bool {
		return c.status(old, 0).Leader == leader.id
	}, waitTimeout, 10*time.Millisecond)
}

func TestCluster_SnapshotInstallOnNewMember(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0, c.peers[0], c.peers[1])

	for i := 0; i < 30; i++ {
		c.set(0, "key-"+strconv.Itoa(i), strconv.Itoa(i))
	}
	dedupResp := c.write(0, "counted", param.KVCommand{Op: param.OpFetchAdd, Key: "n", Delta: 1})
	require.Equal(t, "0", string(dedupResp.Message))

	require.NoError(t, leader.node.RequestSnapshot(0))
	require.Eventually(t, func() bool {
		return c.status(leader, 0).HeadIndex > 1
	}, waitTimeout, 10*time.Millisecond)

	newcomer := c.peers[2]
	require.NoError(t, leader.node.AddServer(&param.AddServerRequest{LaneID: 0, ServerID: newcomer.id}))

	c.waitValue(newcomer, 0, "key-29", "29")
	c.waitValue(newcomer, 0, "n", "1")
	assert.Greater(t, c.status(newcomer, 0).HeadIndex, uint64(1), "newcomer starts from the snapshot")

	// 去重记录随快照一起传给了新成员
	l, err := newcomer.node.lane(0)
	require.NoError(t, err)
	rec, ok := l.kernel.dedup.get("counted")
	require.True(t, ok)
	assert.Equal(t, "0", string(rec.Response))

	assert.ElementsMatch(t, []param.NodeID{"node-1", "node-2", "node-3"}, c.status(leader, 0).Members)
}

func TestCluster_AutomaticSnapshots(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotInterval = 10
	c := newTestClusterWithConfig(t, cfg, 2, 0)
	c.bootstrap(0)

	for i := 0; i < 25; i++ {
		c.set(0, "key-"+strconv.Itoa(i), strconv.Itoa(i))
	}
	for _, p := range c.peers {
		require.Eventually(t, func() bool {
			return c.status(p, 0).HeadIndex >= 10
		}, waitTimeout, 10*time.Millisecond, "%s never compacted", p.id)
	}
	c.waitValue(c.peers[1], 0, "key-24", "24")
	assert.Equal(t, "24", string(c.read(0, "key-24").Message))
}

func TestCluster_TimeoutNowTransfersLeadership(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0)
	c.set(0, "k", "v")

	var target *testPeer
	for _, p := range c.peers {
		if p != leader {
			target = p
			break
		}
	}
	c.waitValue(target, 0, "k", "v")
	oldTerm := c.status(leader, 0).Term

	require.NoError(t, target.node.SendTimeoutNow(&param.TimeoutNow{LaneID: 0}))
	require.Eventually(t, func() bool {
		st := c.status(target, 0)
		return st.State == param.Leader.String() && st.Term > oldTerm
	}, waitTimeout, 10*time.Millisecond)
	c.observe(0)

	c.set(0, "k", "after-transfer")
	assert.Equal(t, "after-transfer", string(c.read(0, "k").Message))
}

func TestCluster_TimeoutNowOnLaggingFollowerKeepsCommittedWrites(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0)
	lagging := c.peer("node-2")
	c.set(0, "k", "initial")
	c.waitValue(lagging, 0, "k", "initial")

	// 只切断发往 lagging 的方向：它收不到新条目，但它的投票请求仍能送达
	for _, p := range c.peers {
		if p != lagging {
			p.trans.Disconnect(lagging.id)
		}
	}
	c.set(0, "k", "committed")
	oldTerm := c.status(leader, 0).Term

	// lagging 没有收到新的心跳，本地检查放行；强制选举抬高了任期，但投票者拒绝日志落后的候选人
	require.NoError(t, lagging.node.SendTimeoutNow(&param.TimeoutNow{LaneID: 0}))

	var current *testPeer
	require.Eventually(t, func() bool {
		current = c.observe(0)
		return current != nil && c.status(current, 0).Term > oldTerm
	}, waitTimeout, 10*time.Millisecond)
	assert.NotEqual(t, lagging.id, current.id)
	assert.Equal(t, "committed", string(c.read(0, "k").Message))

	for _, p := range c.peers {
		if p != lagging {
			p.trans.Connect(lagging.id, lagging.node)
		}
	}
	c.waitValue(lagging, 0, "k", "committed")
}

func TestCluster_RemoveServer(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0)

	var removed *testPeer
	for _, p := range c.peers {
		if p != leader {
			removed = p
			break
		}
	}
	require.NoError(t, leader.node.RemoveServer(&param.RemoveServerRequest{LaneID: 0, ServerID: removed.id}))

	members := c.status(leader, 0).Members
	assert.Len(t, members, 2)
	assert.NotContains(t, members, removed.id)

	// 移除不存在的成员是无操作
	require.NoError(t, leader.node.RemoveServer(&param.RemoveServerRequest{LaneID: 0, ServerID: "node-9"}))

	c.set(0, "after", "removal")
	assert.Equal(t, "removal", string(c.read(0, "after").Message))
}

func TestCluster_RemoveLeader(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0)
	c.set(0, "k", "v")

	require.NoError(t, leader.node.RemoveServer(&param.RemoveServerRequest{LaneID: 0, ServerID: leader.id}))

	// 旧 Leader 应用新配置后退位，剩下的成员选出新 Leader
	var next *testPeer
	require.Eventually(t, func() bool {
		next = c.observe(0)
		return next != nil && next != leader
	}, waitTimeout, 10*time.Millisecond)
	assert.NotContains(t, c.status(next, 0).Members, leader.id)

	c.set(0, "k", "v2")
	assert.Equal(t, "v2", string(c.read(0, "k").Message))
}

func TestCluster_ProcessKernRequestForwardsToLeader(t *testing.T) {
	c := newTestCluster(t, 3, 0)
	leader := c.bootstrap(0, c.peers[0], c.peers[1])

	follower := c.peer("node-2")
	require.NotEqual(t, leader.id, follower.id)
	require.Eventually(t, func() bool {
		return c.status(follower, 0).Leader == leader.id
	}, waitTimeout, 10*time.Millisecond)

	req, err := param.NewKernRequest(0, param.KernRequestBody{Op: param.KernAddServer, ServerID: "node-3"})
	require.NoError(t, err)
	require.NoError(t, follower.node.ProcessKernRequest(req))

	require.Eventually(t, func() bool {
		return c.isMember(leader, 0, "node-3")
	}, waitTimeout, 10*time.Millisecond)

	c.set(0, "k", "v")
	c.waitValue(c.peer("node-3"), 0, "k", "v")
}

func (c *testCluster) isMember(p *testPeer, lane param.LaneID, id param.NodeID) bool {
	for _, m := range c.status(p, lane).Members {
		if m == id {
			return true
		}
	}
	return false
}
