package raft

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/xmh1011/go-multiraft/param"
)

// heartbeatBroadcaster 按节点发送心跳：每个周期把本节点领导的所有 lane 按对端合并成一条消息。
type heartbeatBroadcaster struct {
	node *Node
	wake *EventBus

	mu       sync.Mutex
	inflight map[param.NodeID]bool // 上一轮还没返回的对端本轮跳过
}

func newHeartbeatBroadcaster(n *Node) *heartbeatBroadcaster {
	return &heartbeatBroadcaster{
		node:     n,
		wake:     NewEventBus(),
		inflight: make(map[param.NodeID]bool),
	}
}

// trigger 立即发送一轮心跳，用于新 Leader 宣告自己。
func (h *heartbeatBroadcaster) trigger() {
	h.wake.Push()
}

func (h *heartbeatBroadcaster) run(ctx context.Context) {
	for {
		h.wake.Consume(ctx, h.node.cfg.HeartbeatInterval)
		if ctx.Err() != nil {
			return
		}
		h.broadcast()
	}
}

// broadcast 为每个对端构建一条合并的心跳并异步发送。
func (h *heartbeatBroadcaster) broadcast() {
	batches := make(map[param.NodeID]*param.Heartbeat)
	for _, l := range h.node.snapshotLanes() {
		term, isLeader := l.voter.leaderTerm()
		if !isLeader {
			continue
		}
		state := param.LeaderCommitState{LeaderTerm: term, LeaderCommitIndex: l.log.CommitIndex()}
		for _, peer := range l.repl.targets() {
			hb, ok := batches[peer]
			if !ok {
				hb = param.NewHeartbeat(h.node.id)
				batches[peer] = hb
			}
			hb.LeaderCommitStates[l.id] = state
		}
	}

	for peer, hb := range batches {
		if !h.acquire(peer) {
			continue
		}
		go func(peer param.NodeID, hb *param.Heartbeat) {
			defer h.release(peer)
			h.send(peer, hb)
		}(peer, hb)
	}
}

func (h *heartbeatBroadcaster) acquire(peer param.NodeID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inflight[peer] {
		return false
	}
	h.inflight[peer] = true
	return true
}

func (h *heartbeatBroadcaster) release(peer param.NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, peer)
}

// send 发送一条心跳并处理响应：对端任期更高时退位，任期相同时记为一次确认。
func (h *heartbeatBroadcaster) send(peer param.NodeID, hb *param.Heartbeat) {
	var resp param.HeartbeatResponse
	if err := h.node.trans.SendHeartbeat(peer, hb, &resp); err != nil {
		return
	}
	for laneID, state := range hb.LeaderCommitStates {
		l, err := h.node.lane(laneID)
		if err != nil {
			continue
		}
		term, ok := resp.Terms[laneID]
		if !ok {
			continue
		}
		switch {
		case term > state.LeaderTerm:
			log.Printf("[Heartbeat] node=%s lane=%d peer %s has higher term %d", h.node.id, laneID, peer, term)
			if err := l.voter.observeTerm(term); err != nil {
				log.Printf("[ERROR] node=%s lane=%d %v", h.node.id, laneID, err)
			}
		case term == state.LeaderTerm:
			l.repl.recordAck(term, peer)
		}
	}
}

// handleHeartbeat 处理 Leader 发来的单个 lane 的心跳，返回本地任期。
func (l *Lane) handleHeartbeat(leader param.NodeID, state param.LeaderCommitState) uint64 {
	ok, err := l.voter.observeLeader(state.LeaderTerm, leader)
	if err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to handle heartbeat from %s: %v", l.self, l.id, leader, err)
	}
	if ok {
		for {
			seen := l.leaderCommit.Load()
			if state.LeaderCommitIndex <= seen || l.leaderCommit.CompareAndSwap(seen, state.LeaderCommitIndex) {
				break
			}
		}
		l.log.followerCommit(state.LeaderTerm, state.LeaderCommitIndex)
	}
	return l.voter.CurrentTerm()
}

// caughtUp 检查本地日志是否包含心跳中看到的 Leader 提交索引。
func (l *Lane) caughtUp() error {
	tail, err := l.log.Tail()
	if err != nil {
		return err
	}
	if commit := l.leaderCommit.Load(); tail.Index < commit {
		return fmt.Errorf("lane %d: last index %d, leader commit %d: %w", l.id, tail.Index, commit, ErrLogBehind)
	}
	return nil
}

// confirmLeadership 向所有投票成员发送只包含该 lane 的心跳，
// 收到多数派同任期的确认时返回 true。用于线性一致读。
func (l *Lane) confirmLeadership(term uint64) bool {
	voters := l.log.Voters()
	need := len(voters)/2 + 1

	acks := 0
	peers := make([]param.NodeID, 0, len(voters))
	for _, id := range voters {
		if id == l.self {
			acks++
			continue
		}
		peers = append(peers, id)
	}
	if acks >= need {
		return true
	}

	results := make(chan bool, len(peers))
	state := param.LeaderCommitState{LeaderTerm: term, LeaderCommitIndex: l.log.CommitIndex()}
	for _, peer := range peers {
		go func(peer param.NodeID) {
			hb := param.NewHeartbeat(l.self)
			hb.LeaderCommitStates[l.id] = state
			var resp param.HeartbeatResponse
			if err := l.trans.SendHeartbeat(peer, hb, &resp); err != nil {
				results <- false
				return
			}
			peerTerm := resp.Terms[l.id]
			if peerTerm > term {
				_ = l.voter.observeTerm(peerTerm)
			}
			results <- peerTerm == term
		}(peer)
	}

	timer := time.NewTimer(l.cfg.RequestTimeout)
	defer timer.Stop()
	for remaining := len(peers); remaining > 0; remaining-- {
		select {
		case ok := <-results:
			if ok {
				acks++
			}
			if acks >= need {
				return true
			}
		case <-timer.C:
			return false
		}
	}
	return false
}
