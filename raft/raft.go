package raft

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
	"github.com/xmh1011/go-multiraft/storage"
	"github.com/xmh1011/go-multiraft/transport"
)

// 对外可见的错误与 Transport 共用同一组哨兵值。
var (
	ErrNotLeader                  = api.ErrNotLeader
	ErrLaneNotFound               = api.ErrLaneNotFound
	ErrStaleTerm                  = api.ErrStaleTerm
	ErrTimeout                    = api.ErrTimeout
	ErrMembershipChangeInProgress = api.ErrMembershipChangeInProgress
	ErrMalformedRequest           = api.ErrMalformedRequest

	ErrLaneExists = errors.New("lane already exists")
	ErrStopped    = errors.New("node stopped")
	// ErrLogBehind 表示本地日志还没有追上 Leader 的提交索引，不能发起强制选举。
	ErrLogBehind = errors.New("log behind leader commit")
)

var (
	// errNothingToApply 表示已应用索引追上了提交索引。
	errNothingToApply = errors.New("nothing to apply")
	// errSnapshotRequired 表示需要的条目已经被压缩。
	errSnapshotRequired = errors.New("entry compacted, snapshot required")
)

// AppFactory 为每个 lane 创建独立的状态机实例。
type AppFactory func(lane param.LaneID) storage.StateMachine

// Node 是一个服务进程：它托管多个 lane，所有 lane 共用同一个 Transport 和心跳广播。
type Node struct {
	id      param.NodeID
	cfg     Config
	trans   transport.Transport
	backend storage.Backend
	newApp  AppFactory

	mu      sync.RWMutex
	lanes   map[param.LaneID]*Lane
	stopped bool

	heartbeat *heartbeatBroadcaster

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode 创建一个节点。id 必须是其他节点可以拨通的地址。
func NewNode(id param.NodeID, cfg Config, backend storage.Backend, trans transport.Transport, newApp AppFactory) (*Node, error) {
	if id == "" {
		return nil, errors.New("node id must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid raft config: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		id:      id,
		cfg:     cfg,
		trans:   trans,
		backend: backend,
		newApp:  newApp,
		lanes:   make(map[param.LaneID]*Lane),
		ctx:     ctx,
		cancel:  cancel,
	}
	n.heartbeat = newHeartbeatBroadcaster(n)
	return n, nil
}

// ID 返回节点标识。
func (n *Node) ID() param.NodeID {
	return n.id
}

// Config 返回节点使用的共识参数。
func (n *Node) Config() Config {
	return n.cfg
}

// Start 启动节点级的心跳广播。lane 可以在 Start 之前或之后创建。
func (n *Node) Start() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.heartbeat.run(n.ctx)
	}()
	log.Printf("[Node] node=%s started", n.id)
}

// Stop 直接中止所有 lane 的后台任务，不做任何排空。
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	lanes := make([]*Lane, 0, len(n.lanes))
	for _, l := range n.lanes {
		lanes = append(lanes, l)
	}
	n.lanes = make(map[param.LaneID]*Lane)
	n.mu.Unlock()

	n.cancel()
	for _, l := range lanes {
		l.stop()
	}
	n.wg.Wait()
	log.Printf("[Node] node=%s stopped", n.id)
}

// CreateLane 打开 lane 的存储并启动它的后台任务。
// 日志为空的 lane 不属于任何集群，直到有人对它调用 AddServer。
func (n *Node) CreateLane(id param.LaneID) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return ErrStopped
	}
	if _, ok := n.lanes[id]; ok {
		return fmt.Errorf("lane %d: %w", id, ErrLaneExists)
	}
	stores, err := n.backend.Open(id)
	if err != nil {
		return fmt.Errorf("open storage for lane %d: %w", id, err)
	}
	l, err := newLane(n, id, stores, n.newApp(id))
	if err != nil {
		return err
	}
	n.lanes[id] = l
	l.start(n.ctx)
	return nil
}

// RemoveLane 停止 lane 的后台任务。持久化数据保持不变。
func (n *Node) RemoveLane(id param.LaneID) error {
	n.mu.Lock()
	l, ok := n.lanes[id]
	delete(n.lanes, id)
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("lane %d: %w", id, ErrLaneNotFound)
	}
	l.stop()
	return nil
}

func (n *Node) lane(id param.LaneID) (*Lane, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	l, ok := n.lanes[id]
	if !ok {
		return nil, fmt.Errorf("lane %d: %w", id, ErrLaneNotFound)
	}
	return l, nil
}

// Lanes 返回已创建的 lane，按编号升序。
func (n *Node) Lanes() []param.LaneID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]param.LaneID, 0, len(n.lanes))
	for id := range n.lanes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (n *Node) snapshotLanes() []*Lane {
	n.mu.RLock()
	defer n.mu.RUnlock()
	lanes := make([]*Lane, 0, len(n.lanes))
	for _, l := range n.lanes {
		lanes = append(lanes, l)
	}
	return lanes
}

// LaneStatus 是一个 lane 在本节点上的状态摘要。
type LaneStatus struct {
	LaneID       param.LaneID   `json:"lane_id"`
	State        string         `json:"state"`
	Term         uint64         `json:"term"`
	Leader       param.NodeID   `json:"leader"`
	CommitIndex  uint64         `json:"commit_index"`
	AppliedIndex uint64         `json:"applied_index"`
	HeadIndex    uint64         `json:"head_index"`
	LastIndex    uint64         `json:"last_index"`
	Members      []param.NodeID `json:"members"`
}

// Status 返回 lane 的状态摘要。
func (n *Node) Status(id param.LaneID) (LaneStatus, error) {
	l, err := n.lane(id)
	if err != nil {
		return LaneStatus{}, err
	}
	return l.status()
}

// RequestSnapshot 让 lane 在下一次应用循环中做一次快照。
func (n *Node) RequestSnapshot(id param.LaneID) error {
	l, err := n.lane(id)
	if err != nil {
		return err
	}
	l.kernel.requestSnapshot()
	return nil
}
