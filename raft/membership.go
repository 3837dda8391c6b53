package raft

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/thoas/go-funk"

	"github.com/xmh1011/go-multiraft/param"
)

func containsNode(members []param.NodeID, id param.NodeID) bool {
	return funk.ContainsString(members, id)
}

// membershipManager 执行单节点成员变更。同一时间只允许一个变更进行，
// 新的配置一写入日志就生效，不需要等待提交。
type membershipManager struct {
	lane *Lane
	mu   sync.Mutex
}

func newMembershipManager(l *Lane) *membershipManager {
	return &membershipManager{lane: l}
}

// AddServer 把 server 加入成员集合。对空日志的 lane 以自身为参数调用时，
// 会用单节点配置初始化一个新集群。
func (m *membershipManager) AddServer(server param.NodeID) error {
	if server == "" {
		return fmt.Errorf("%w: empty server id", ErrMalformedRequest)
	}
	if server == m.lane.self {
		bootstrapped, err := m.bootstrap()
		if err != nil || bootstrapped {
			return err
		}
	}

	term, ok := m.lane.voter.leaderTerm()
	if !ok {
		return ErrNotLeader
	}
	if !m.mu.TryLock() {
		return ErrMembershipChangeInProgress
	}
	defer m.mu.Unlock()
	if m.lane.log.hasUncommittedConfig() {
		return ErrMembershipChangeInProgress
	}

	members := m.lane.log.Voters()
	if containsNode(members, server) {
		return nil
	}

	// 1. 作为 learner 接收日志，追上当前的提交索引后再成为投票成员
	m.lane.repl.addLearner(server)
	defer m.lane.repl.removeLearner(server)

	target := m.lane.log.CommitIndex()
	if err := m.waitCaughtUp(server, target); err != nil {
		log.Printf("[Membership] node=%s lane=%d %s did not catch up to %d: %v", m.lane.self, m.lane.id, server, target, err)
		return err
	}

	// 2. 追加新配置并等待提交
	newMembers := funk.UniqString(append(members, server))
	if err := m.appendConfig(term, newMembers); err != nil {
		return err
	}
	log.Printf("[Membership] node=%s lane=%d added %s, members=%v", m.lane.self, m.lane.id, server, newMembers)
	return nil
}

// RemoveServer 把 server 移出成员集合。Leader 移除自己时，会在新配置应用后退位。
func (m *membershipManager) RemoveServer(server param.NodeID) error {
	if server == "" {
		return fmt.Errorf("%w: empty server id", ErrMalformedRequest)
	}
	term, ok := m.lane.voter.leaderTerm()
	if !ok {
		return ErrNotLeader
	}
	if !m.mu.TryLock() {
		return ErrMembershipChangeInProgress
	}
	defer m.mu.Unlock()
	if m.lane.log.hasUncommittedConfig() {
		return ErrMembershipChangeInProgress
	}

	members := m.lane.log.Voters()
	if !containsNode(members, server) {
		return nil
	}
	newMembers := make([]param.NodeID, 0, len(members)-1)
	for _, id := range members {
		if id != server {
			newMembers = append(newMembers, id)
		}
	}
	if len(newMembers) == 0 {
		return fmt.Errorf("cannot remove the last member %s", server)
	}

	// 被移除的节点在新配置提交之前继续接收日志，这样它能看到自己被移除
	m.lane.repl.addDraining(server)
	defer m.lane.repl.removeDraining(server)

	if err := m.appendConfig(term, newMembers); err != nil {
		return err
	}
	log.Printf("[Membership] node=%s lane=%d removed %s, members=%v", m.lane.self, m.lane.id, server, newMembers)
	return nil
}

func (m *membershipManager) appendConfig(term uint64, members []param.NodeID) error {
	index, err := m.lane.log.appendCommand(term, param.NewMembershipCommand(members))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(m.lane.ctx, m.lane.cfg.RequestTimeout)
	defer cancel()
	return m.lane.log.waitCommitted(ctx, index, term)
}

// waitCaughtUp 等待 server 的 match 索引达到 target。
func (m *membershipManager) waitCaughtUp(server param.NodeID, target uint64) error {
	deadline := time.Now().Add(m.lane.cfg.CatchUpTimeout)
	for {
		if m.lane.repl.matchIndex(server) >= target {
			return nil
		}
		if _, ok := m.lane.voter.leaderTerm(); !ok {
			return ErrNotLeader
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		select {
		case <-time.After(m.lane.cfg.HeartbeatInterval):
		case <-m.lane.ctx.Done():
			return ErrStopped
		}
	}
}

// bootstrap 在空日志上写入以自身为唯一成员的快照标记，然后立即发起选举。
// 日志非空时返回 false。
func (m *membershipManager) bootstrap() (bool, error) {
	c := m.lane.log
	c.mu.Lock()
	last, err := c.store.GetLastIndex()
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	if last != 0 {
		c.mu.Unlock()
		return false, nil
	}

	app, err := m.lane.kernel.app.GetSnapshot()
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	data, err := encodeSnapshotPayload(snapshotPayload{App: app})
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	if err := c.snapshots.SaveSnapshot(1, data); err != nil {
		c.mu.Unlock()
		return false, err
	}
	members := []param.NodeID{m.lane.self}
	marker := param.Entry{
		PrevClock: param.Clock{},
		ThisClock: param.Clock{Term: 0, Index: 1},
		Command:   param.MustEncodeCommand(param.NewSnapshotCommand(members)),
	}
	if err := c.store.InsertEntry(1, marker); err != nil {
		c.mu.Unlock()
		return false, err
	}
	c.pushConfig(1, members)
	c.advanceCommitIndex(1)
	c.mu.Unlock()

	log.Printf("[Membership] node=%s lane=%d bootstrapped a new cluster", m.lane.self, m.lane.id)
	m.lane.goTracked(func(context.Context) { m.lane.voter.campaign(false) })
	return true, nil
}

// addLearner 让 server 开始接收日志但不参与投票。
func (r *replicator) addLearner(server param.NodeID) {
	r.mu.Lock()
	r.learners[server] = struct{}{}
	r.mu.Unlock()
	r.syncTargets()
}

func (r *replicator) removeLearner(server param.NodeID) {
	r.mu.Lock()
	delete(r.learners, server)
	r.mu.Unlock()
	r.syncTargets()
}

func (r *replicator) addDraining(server param.NodeID) {
	r.mu.Lock()
	r.draining[server] = struct{}{}
	r.mu.Unlock()
	r.syncTargets()
}

func (r *replicator) removeDraining(server param.NodeID) {
	r.mu.Lock()
	delete(r.draining, server)
	r.mu.Unlock()
	r.syncTargets()
}

// executeKernRequest 执行 ProcessKernRequest 投递的成员变更。
func (m *membershipManager) executeKernRequest(body param.KernRequestBody) error {
	switch body.Op {
	case param.KernAddServer:
		return m.AddServer(body.ServerID)
	case param.KernRemoveServer:
		return m.RemoveServer(body.ServerID)
	default:
		return errors.New("unknown kern op")
	}
}
