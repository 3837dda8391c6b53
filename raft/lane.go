package raft

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
	"github.com/xmh1011/go-multiraft/transport"
)

// Lane 是一个独立的 Raft 组。它拥有自己的日志、选票、状态机和后台任务，
// 组件之间通过 Lane 互相访问，Lane 本身由 Node 持有。
type Lane struct {
	id    param.LaneID
	self  param.NodeID
	cfg   Config
	trans transport.Transport
	node  *Node

	stores     storage.LaneStores
	voter      *Voter
	log        *CommandLog
	kernel     *KernelApplier
	repl       *replicator
	membership *membershipManager

	// commitEvents 在提交索引前进时触发，由 KernelApplier 消费。
	commitEvents *EventBus
	// kernEvents 在每条日志应用后触发。
	kernEvents *EventBus
	committed  *Watermark
	applied    *Watermark

	// leaderCommit 是心跳中看到的 Leader 提交索引的最大值
	leaderCommit atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newLane 从存储中恢复 lane 的状态：选票、成员配置和日志头。
// 提交索引从日志头开始，已应用索引从 0 开始，重启后通过快照和重放恢复状态机。
func newLane(n *Node, id param.LaneID, stores storage.LaneStores, app storage.StateMachine) (*Lane, error) {
	l := &Lane{
		id:           id,
		self:         n.id,
		cfg:          n.cfg,
		trans:        n.trans,
		node:         n,
		stores:       stores,
		commitEvents: NewEventBus(),
		kernEvents:   NewEventBus(),
		committed:    NewWatermark(0),
		applied:      NewWatermark(0),
	}

	var err error
	if l.log, err = newCommandLog(l, stores.Log, stores.Snapshots); err != nil {
		return nil, fmt.Errorf("recover log of lane %d: %w", id, err)
	}
	if l.voter, err = newVoter(l, stores.Ballot); err != nil {
		return nil, fmt.Errorf("recover ballot of lane %d: %w", id, err)
	}
	l.kernel = newKernelApplier(l, app)
	l.repl = newReplicator(l)
	l.membership = newMembershipManager(l)
	return l, nil
}

func (l *Lane) start(parent context.Context) {
	l.ctx, l.cancel = context.WithCancel(parent)
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.voter.run(l.ctx)
	}()
	go func() {
		defer l.wg.Done()
		l.kernel.run(l.ctx)
	}()
	// 有未应用的已提交条目（例如重启后的快照头）时立即开始应用
	l.commitEvents.Push()
}

func (l *Lane) stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// goTracked 在 lane 的生命周期内运行 f，lane 停止后不再启动新任务。
func (l *Lane) goTracked(f func(ctx context.Context)) bool {
	if l.ctx == nil || l.ctx.Err() != nil {
		return false
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		f(l.ctx)
	}()
	return true
}

// isVoter 判断 id 是否在当前生效的成员配置中。
func (l *Lane) isVoter(id param.NodeID) bool {
	for _, m := range l.log.Voters() {
		if m == id {
			return true
		}
	}
	return false
}

func (l *Lane) status() (LaneStatus, error) {
	state, term, leader := l.voter.Snapshot()
	head, err := l.stores.Log.GetHeadIndex()
	if err != nil {
		return LaneStatus{}, err
	}
	last, err := l.stores.Log.GetLastIndex()
	if err != nil {
		return LaneStatus{}, err
	}
	return LaneStatus{
		LaneID:       l.id,
		State:        state.String(),
		Term:         term,
		Leader:       leader,
		CommitIndex:  l.log.CommitIndex(),
		AppliedIndex: l.log.AppliedIndex(),
		HeadIndex:    head,
		LastIndex:    last,
		Members:      l.log.Voters(),
	}, nil
}
