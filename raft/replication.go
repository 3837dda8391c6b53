package raft

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/xmh1011/go-multiraft/param"
)

// peerProgress 是 Leader 对单个复制目标的跟踪状态。
type peerProgress struct {
	next    uint64 // 下一条要发送的索引
	match   uint64 // 已确认与 Leader 一致的最大索引
	lastAck time.Time
	wake    *EventBus
	cancel  context.CancelFunc
}

// replicator 管理 Leader 的复制线程：每个复制目标一个 goroutine。
// 复制目标是投票成员、正在追赶的 learner 以及正在被移除的成员（除自己以外）。
type replicator struct {
	lane *Lane

	// 锁顺序：Voter.mu -> replicator.mu。term 只在 Voter 切换角色时由 prepare/resign 修改
	mu           sync.Mutex
	term         uint64    // 当前领导任期，不是 Leader 时为 0
	leaderSince  time.Time // 成为 Leader 的时间，之后一个选举超时内视为联系到多数派
	peers        map[param.NodeID]*peerProgress
	learners     map[param.NodeID]struct{}
	draining     map[param.NodeID]struct{}
	barrierIndex uint64 // 本任期 barrier 条目的索引
}

func newReplicator(l *Lane) *replicator {
	return &replicator{
		lane:     l,
		peers:    make(map[param.NodeID]*peerProgress),
		learners: make(map[param.NodeID]struct{}),
		draining: make(map[param.NodeID]struct{}),
	}
}

// prepare 在 Voter 持有锁、即将成为 term 任期的 Leader 时调用。
func (r *replicator) prepare(term uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopAllLocked()
	r.term = term
	r.barrierIndex = 0
	r.leaderSince = time.Now()
}

// resign 在 Voter 退回 Follower 时停止所有复制线程。
func (r *replicator) resign() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopAllLocked()
}

// becomeLeader 启动复制线程，并追加本任期的 barrier 条目。调用前必须已经 prepare。
func (r *replicator) becomeLeader(term uint64) {
	r.syncTargets()

	index, err := r.lane.log.appendCommand(term, param.NewBarrierCommand())
	if err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to append barrier for term %d: %v", r.lane.self, r.lane.id, term, err)
		return
	}
	r.mu.Lock()
	if r.term == term {
		r.barrierIndex = index
	}
	r.mu.Unlock()
	r.lane.node.heartbeat.trigger()
}

// barrier 返回本任期 barrier 的索引，尚未追加时返回 0。
func (r *replicator) barrier(term uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.term != term {
		return 0
	}
	return r.barrierIndex
}

func (r *replicator) stopAllLocked() {
	for id, p := range r.peers {
		p.cancel()
		delete(r.peers, id)
	}
	r.term = 0
}

// targets 计算当前的复制目标。
func (r *replicator) targets() []param.NodeID {
	set := make(map[param.NodeID]struct{})
	for _, id := range r.lane.log.Voters() {
		set[id] = struct{}{}
	}
	r.mu.Lock()
	for id := range r.learners {
		set[id] = struct{}{}
	}
	for id := range r.draining {
		set[id] = struct{}{}
	}
	r.mu.Unlock()
	delete(set, r.lane.self)

	ids := make([]param.NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// syncTargets 让复制线程与当前的复制目标保持一致。不是 Leader 时什么都不做。
func (r *replicator) syncTargets() {
	targets := r.targets()
	last, err := r.lane.log.store.GetLastIndex()
	if err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to read last index: %v", r.lane.self, r.lane.id, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	term := r.term
	if term == 0 {
		return
	}

	wanted := make(map[param.NodeID]struct{}, len(targets))
	for _, id := range targets {
		id := id
		wanted[id] = struct{}{}
		if _, ok := r.peers[id]; ok || r.lane.ctx == nil {
			continue
		}
		ctx, cancel := context.WithCancel(r.lane.ctx)
		p := &peerProgress{next: last + 1, lastAck: time.Now(), wake: NewEventBus(), cancel: cancel}
		started := r.lane.goTracked(func(context.Context) {
			defer cancel()
			r.runSender(ctx, term, id, p)
		})
		if !started {
			cancel()
			continue
		}
		r.peers[id] = p
	}
	for id, p := range r.peers {
		if _, ok := wanted[id]; !ok {
			p.cancel()
			delete(r.peers, id)
		}
	}
}

// notify 唤醒所有复制线程。
func (r *replicator) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.peers {
		p.wake.Push()
	}
}

// recordAck 记录一次来自 peer 的成功响应，用于 Leader 租约判断。
func (r *replicator) recordAck(term uint64, peer param.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.term != term {
		return
	}
	if p, ok := r.peers[peer]; ok {
		p.lastAck = time.Now()
	}
}

// matchIndex 返回 peer 已确认的最大索引。
func (r *replicator) matchIndex(peer param.NodeID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[peer]; ok {
		return p.match
	}
	return 0
}

// hasQuorumContact 判断 Leader 在 within 时间内是否收到过多数投票成员的响应。
// 刚当选的 Leader 在 within 时间内总是返回 true，复制线程此时可能还没有启动。
func (r *replicator) hasQuorumContact(term uint64, within time.Duration) bool {
	voters := r.lane.log.Voters()
	need := len(voters)/2 + 1

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.term != term {
		return false
	}
	if time.Since(r.leaderSince) < within {
		return true
	}
	count := 0
	for _, id := range voters {
		if id == r.lane.self {
			count++
			continue
		}
		if p, ok := r.peers[id]; ok && time.Since(p.lastAck) < within {
			count++
		}
	}
	return count >= need
}

// advanceLeaderCommit 取投票成员 match 索引的中位数作为提交候选，
// 只有当前任期的条目可以通过计数提交。
func (r *replicator) advanceLeaderCommit(term uint64) {
	if !r.lane.voter.isLeaderOf(term) {
		return
	}
	voters := r.lane.log.Voters()
	if len(voters) == 0 {
		return
	}
	last, err := r.lane.log.store.GetLastIndex()
	if err != nil {
		return
	}

	matches := make([]uint64, 0, len(voters))
	r.mu.Lock()
	for _, id := range voters {
		if id == r.lane.self {
			matches = append(matches, last)
			continue
		}
		if p, ok := r.peers[id]; ok {
			matches = append(matches, p.match)
		} else {
			matches = append(matches, 0)
		}
	}
	r.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })
	candidate := matches[len(matches)/2]
	if candidate <= r.lane.log.CommitIndex() {
		return
	}
	clock, err := r.lane.log.clockAt(candidate)
	if err != nil || clock.Term != term {
		return
	}
	r.lane.log.advanceCommitIndex(candidate)
}

// runSender 是单个复制目标的复制循环：被唤醒或者每个心跳周期检查一次是否有新条目。
// 空闲超过最小选举超时后重发最后一条条目，让重启后的 Follower 重新确认日志并推进提交索引。
func (r *replicator) runSender(ctx context.Context, term uint64, peer param.NodeID, p *peerProgress) {
	interval := r.lane.cfg.HeartbeatInterval
	failing := false
	lastSent := time.Time{}
	for {
		if ctx.Err() != nil || !r.lane.voter.isLeaderOf(term) {
			return
		}
		idle := time.Since(lastSent) >= r.lane.cfg.ElectionTimeoutMin
		sent, progressed, err := r.replicateOnce(term, peer, p, idle)
		if err != nil {
			if !failing {
				log.Printf("[Replication] node=%s lane=%d failed to replicate to %s: %v", r.lane.self, r.lane.id, peer, err)
				failing = true
			}
			p.wake.Consume(ctx, interval)
			continue
		}
		if failing {
			log.Printf("[Replication] node=%s lane=%d replication to %s recovered", r.lane.self, r.lane.id, peer)
			failing = false
		}
		if sent {
			lastSent = time.Now()
		}
		if progressed {
			continue
		}
		p.wake.Consume(ctx, interval)
	}
}

// replicateOnce 发送一条复制流。sent 表示确实发送了数据，progressed 表示状态有变化，应当立即再次尝试。
// resend 为 true 且没有新条目时重发最后一条条目。
func (r *replicator) replicateOnce(term uint64, peer param.NodeID, p *peerProgress, resend bool) (sent, progressed bool, err error) {
	store := r.lane.log.store

	r.mu.Lock()
	next := p.next
	r.mu.Unlock()

	head, err := store.GetHeadIndex()
	if err != nil {
		return false, false, err
	}
	last, err := store.GetLastIndex()
	if err != nil {
		return false, false, err
	}
	if last == 0 {
		return false, false, nil
	}
	resending := false
	if next > last {
		if !resend {
			return false, false, nil
		}
		next, resending = last, true
	}

	// 1. 确定起点。需要的条目已被压缩时从日志头的快照标记开始
	start := next
	var prev param.Clock
	if next <= head {
		start = head
		headEntry, err := store.GetEntry(head)
		if err != nil {
			return false, false, err
		}
		if headEntry == nil {
			return false, true, nil
		}
		prev = headEntry.PrevClock
	} else {
		prev, err = r.lane.log.clockAt(next - 1)
		if errors.Is(err, errSnapshotRequired) {
			return false, true, nil
		}
		if err != nil {
			return false, false, err
		}
	}

	// 2. 收集一批条目
	end := min(last, start+uint64(r.lane.cfg.ReplicationBatch)-1)
	entries := make([]param.ReplicationStreamEntry, 0, end-start+1)
	for i := start; i <= end; i++ {
		entry, err := store.GetEntry(i)
		if err != nil {
			return false, false, err
		}
		if entry == nil {
			// 读取期间发生了压缩
			if len(entries) == 0 {
				return false, true, nil
			}
			break
		}
		entries = append(entries, param.ReplicationStreamEntry{Clock: entry.ThisClock, Command: entry.Command})
	}

	stream := &param.ReplicationStream{
		Header: param.ReplicationStreamHeader{
			LaneID:     r.lane.id,
			SenderID:   r.lane.self,
			SenderTerm: term,
			PrevClock:  prev,
		},
		Entries: entries,
	}
	var resp param.ReplicationStreamResponse
	if err := r.lane.trans.SendReplicationStream(peer, stream, &resp); err != nil {
		return true, false, err
	}
	r.recordAck(term, peer)

	// 3. 根据响应更新进度
	r.mu.Lock()
	if resp.NInserted > 0 {
		match := prev.Index + resp.NInserted
		if match > p.match {
			p.match = match
		}
		p.next = match + 1
		r.mu.Unlock()
		r.advanceLeaderCommit(term)
		return true, !resending, nil
	}

	// 不连续：回退 next，跳过 follower 明显缺失的部分
	newNext := min(next-1, resp.LogLastIndex+1)
	if newNext < 1 {
		newNext = 1
	}
	p.next = newNext
	r.mu.Unlock()
	return true, newNext != next, nil
}

// ingest 以 Follower 身份处理一条复制流。
func (c *CommandLog) ingest(stream *param.ReplicationStream) (param.ReplicationStreamResponse, error) {
	var resp param.ReplicationStreamResponse
	hdr := stream.Header

	// 1. 检查任期并确认 Leader
	ok, err := c.lane.voter.observeLeader(hdr.SenderTerm, hdr.SenderID)
	if err != nil {
		return resp, err
	}
	if !ok {
		return resp, ErrStaleTerm
	}

	if err := validateStream(stream); err != nil {
		return resp, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	head, err := c.store.GetHeadIndex()
	if err != nil {
		return resp, err
	}
	last, err := c.store.GetLastIndex()
	if err != nil {
		return resp, err
	}
	resp.LogLastIndex = last
	if len(stream.Entries) == 0 {
		return resp, nil
	}

	cmds := make([]param.Command, len(stream.Entries))
	for i, f := range stream.Entries {
		if cmds[i], err = param.DecodeCommand(f.Command); err != nil {
			return resp, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	}

	// 2. 检查连续性。以快照标记开头的流不需要前驱
	prev := hdr.PrevClock
	if cmds[0].Kind != param.CommandSnapshot && prev.Index > 0 && prev.Index >= head {
		local, err := c.store.GetEntry(prev.Index)
		if err != nil {
			return resp, err
		}
		if local == nil {
			return resp, nil
		}
		if local.ThisClock != prev {
			if prev.Index > c.CommitIndex() {
				if err := c.truncateFromLocked(prev.Index); err != nil {
					return resp, err
				}
				resp.LogLastIndex = prev.Index - 1
			}
			return resp, nil
		}
	}

	// 3. 逐条写入：已有且相同的跳过，冲突的截断后覆盖
	prevClock := prev
	for i, f := range stream.Entries {
		if cmds[i].Kind == param.CommandSnapshot {
			err = c.acceptSnapshotEntryLocked(hdr.SenderID, prevClock, f, cmds[i])
		} else {
			err = c.acceptEntryLocked(prevClock, f, cmds[i])
		}
		if err != nil {
			return resp, err
		}
		resp.NInserted++
		prevClock = f.Clock
	}

	// 4. 记录与该 Leader 确认一致的范围，心跳据此推进提交索引
	c.setVerified(hdr.SenderTerm, prevClock.Index)

	if resp.LogLastIndex, err = c.store.GetLastIndex(); err != nil {
		return resp, err
	}
	return resp, nil
}

// validateStream 检查流内条目的索引连续。
func validateStream(stream *param.ReplicationStream) error {
	expected := stream.Header.PrevClock.Index + 1
	for _, f := range stream.Entries {
		if f.Clock.Index != expected {
			return fmt.Errorf("%w: frame index %d, want %d", ErrMalformedRequest, f.Clock.Index, expected)
		}
		expected++
	}
	return nil
}

// acceptEntryLocked 写入一条普通条目。调用方持有 mu。
func (c *CommandLog) acceptEntryLocked(prev param.Clock, f param.ReplicationStreamEntry, cmd param.Command) error {
	index := f.Clock.Index
	head, err := c.store.GetHeadIndex()
	if err != nil {
		return err
	}
	if head > 0 && index < head {
		// 已经包含在快照中
		return nil
	}

	existing, err := c.store.GetEntry(index)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.ThisClock == f.Clock {
			return nil
		}
		if err := c.truncateFromLocked(index); err != nil {
			return err
		}
	}

	entry := param.Entry{PrevClock: prev, ThisClock: f.Clock, Command: f.Command}
	if err := c.store.InsertEntry(index, entry); err != nil {
		return fmt.Errorf("insert entry %d: %w", index, err)
	}
	if cmd.Kind == param.CommandMembership {
		c.pushConfig(index, cmd.Membership)
	}
	return nil
}
