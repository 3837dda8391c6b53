package raft

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
)

// Node 实现 api.RaftService，Transport 把所有入站请求交给它，再按 LaneID 分发。
var _ api.RaftService = (*Node)(nil)

// Write 处理客户端写请求：命令提交并应用后返回状态机的结果。
// 相同 RequestID 的请求只会执行一次，重试得到的是第一次执行的结果。
func (n *Node) Write(args *param.WriteRequest, reply *param.Response) error {
	l, err := n.lane(args.LaneID)
	if err != nil {
		return err
	}
	if args.RequestID == "" {
		return fmt.Errorf("%w: empty request id", ErrMalformedRequest)
	}
	return l.write(args, reply)
}

func (l *Lane) write(args *param.WriteRequest, reply *param.Response) error {
	// 1. 不是 Leader 时返回重定向提示
	state, _, leader := l.voter.Snapshot()
	if state != param.Leader {
		notLeader(reply, leader)
		return nil
	}

	// 2. 已经执行过的请求直接返回记录的结果
	if rec, ok := l.kernel.dedup.get(args.RequestID); ok {
		fillResponse(reply, rec)
		return nil
	}

	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.RequestTimeout)
	defer cancel()

	// 3. 追加并等待提交
	index, err := l.log.Append(ctx, param.NewWriteCommand(args.RequestID, args.Message))
	if errors.Is(err, ErrNotLeader) {
		_, _, leader = l.voter.Snapshot()
		notLeader(reply, leader)
		return nil
	}
	if err != nil {
		return err
	}

	// 4. 等待应用，然后从去重表中取结果
	if err := l.applied.Wait(ctx, index); err != nil {
		return ErrTimeout
	}
	rec, ok := l.kernel.dedup.get(args.RequestID)
	if !ok {
		return fmt.Errorf("result of request %s is no longer available", args.RequestID)
	}
	fillResponse(reply, rec)
	return nil
}

// Read 处理客户端读请求。读请求不写日志，而是使用 read index：
// 记录当前提交索引，向多数派确认领导权，等待应用追上后再查询状态机。
func (n *Node) Read(args *param.ReadRequest, reply *param.Response) error {
	l, err := n.lane(args.LaneID)
	if err != nil {
		return err
	}
	return l.read(args, reply)
}

func (l *Lane) read(args *param.ReadRequest, reply *param.Response) error {
	state, term, leader := l.voter.Snapshot()
	if state != param.Leader {
		notLeader(reply, leader)
		return nil
	}

	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.RequestTimeout)
	defer cancel()

	// 1. 本任期必须已有条目提交，否则提交索引可能落后
	readIndex, err := l.waitTermCommitted(ctx, term)
	if err != nil {
		return err
	}

	// 2. 确认自己仍是 Leader
	if !l.confirmLeadership(term) {
		_, _, leader = l.voter.Snapshot()
		notLeader(reply, leader)
		return nil
	}

	// 3. 等待状态机应用到 readIndex
	if err := l.applied.Wait(ctx, readIndex); err != nil {
		return ErrTimeout
	}

	resp, err := l.kernel.app.Read(args.Message)
	reply.Message = resp
	if err != nil {
		reply.Error = err.Error()
	}
	return nil
}

// waitTermCommitted 等待提交索引处的条目属于 term 任期，返回此时的提交索引。
func (l *Lane) waitTermCommitted(ctx context.Context, term uint64) (uint64, error) {
	for {
		commit := l.log.CommitIndex()
		clock, err := l.log.clockAt(commit)
		if err != nil && !errors.Is(err, errSnapshotRequired) {
			return 0, err
		}
		if err == nil && clock.Term == term {
			return commit, nil
		}
		if !l.voter.isLeaderOf(term) {
			return 0, ErrNotLeader
		}
		if err := l.committed.Wait(ctx, commit+1); err != nil {
			return 0, ErrTimeout
		}
	}
}

func notLeader(reply *param.Response, leader param.NodeID) {
	reply.NotLeader = true
	reply.LeaderHint = leader
}

func fillResponse(reply *param.Response, rec dedupRecord) {
	reply.Message = rec.Response
	reply.Error = rec.Err
}

// ProcessKernRequest 投递一个成员变更请求，不等待执行结果。
// Leader 异步执行；Follower 转发给已知的 Leader 一次；否则丢弃。
func (n *Node) ProcessKernRequest(args *param.KernRequest) error {
	l, err := n.lane(args.LaneID)
	if err != nil {
		return err
	}
	body, err := param.DecodeKernRequestBody(args.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if body.Op != param.KernAddServer && body.Op != param.KernRemoveServer {
		return fmt.Errorf("%w: unknown kern op %d", ErrMalformedRequest, body.Op)
	}

	state, _, leader := l.voter.Snapshot()
	switch {
	case state == param.Leader:
		l.goTracked(func(context.Context) {
			if err := l.membership.executeKernRequest(body); err != nil {
				log.Printf("[Membership] node=%s lane=%d kern request %+v failed: %v", l.self, l.id, body, err)
			}
		})
	case leader != "" && leader != l.self:
		l.goTracked(func(context.Context) {
			if err := l.trans.SendKernRequest(leader, args); err != nil {
				log.Printf("[Membership] node=%s lane=%d failed to forward kern request to %s: %v", l.self, l.id, leader, err)
			}
		})
	default:
		log.Printf("[Membership] node=%s lane=%d dropped kern request %+v: no known leader", l.self, l.id, body)
	}
	return nil
}

// RequestVote 是处理投票请求的 RPC 入口。
func (n *Node) RequestVote(args *param.VoteRequest, reply *param.VoteResponse) error {
	l, err := n.lane(args.LaneID)
	if err != nil {
		return err
	}
	granted, err := l.voter.RequestVote(args)
	if err != nil {
		return err
	}
	reply.VoteGranted = granted
	return nil
}

// AddServer 同步执行成员添加，只能在 Leader 上调用（或对空 lane 以自身为参数初始化集群）。
func (n *Node) AddServer(args *param.AddServerRequest) error {
	l, err := n.lane(args.LaneID)
	if err != nil {
		return err
	}
	return l.membership.AddServer(args.ServerID)
}

// RemoveServer 同步执行成员移除，只能在 Leader 上调用。
func (n *Node) RemoveServer(args *param.RemoveServerRequest) error {
	l, err := n.lane(args.LaneID)
	if err != nil {
		return err
	}
	return l.membership.RemoveServer(args.ServerID)
}

// SendReplicationStream 以 Follower 身份接收一条复制流。
func (n *Node) SendReplicationStream(args *param.ReplicationStream, reply *param.ReplicationStreamResponse) error {
	l, err := n.lane(args.Header.LaneID)
	if err != nil {
		return err
	}
	resp, err := l.log.ingest(args)
	if err != nil {
		return err
	}
	*reply = resp
	return nil
}

// GetSnapshot 返回 args.Index 处的快照分块。
func (n *Node) GetSnapshot(args *param.GetSnapshotRequest, reply *param.SnapshotReply) error {
	l, err := n.lane(args.LaneID)
	if err != nil {
		return err
	}
	chunks, err := l.snapshotChunks(args.Index)
	if err != nil {
		return err
	}
	reply.Chunks = chunks
	return nil
}

// SendHeartbeat 处理合并心跳，对每个本地存在的 lane 回复它的任期。
func (n *Node) SendHeartbeat(args *param.Heartbeat, reply *param.HeartbeatResponse) error {
	reply.Terms = make(map[param.LaneID]uint64, len(args.LeaderCommitStates))
	for laneID, state := range args.LeaderCommitStates {
		l, err := n.lane(laneID)
		if err != nil {
			continue
		}
		reply.Terms[laneID] = l.handleHeartbeat(args.LeaderID, state)
	}
	return nil
}

// SendTimeoutNow 让本节点立即发起一次强制选举。
func (n *Node) SendTimeoutNow(args *param.TimeoutNow) error {
	l, err := n.lane(args.LaneID)
	if err != nil {
		return err
	}
	if !l.isVoter(l.self) {
		return fmt.Errorf("node %s is not a voter of lane %d", l.self, l.id)
	}
	// 投票者仍会拒绝日志落后的候选人，这里提前拒绝，避免无谓地抬高任期
	if err := l.caughtUp(); err != nil {
		log.Printf("[Election] node=%s lane=%d ignores timeout-now: %v", l.self, l.id, err)
		return err
	}
	l.goTracked(func(context.Context) { l.voter.campaign(true) })
	return nil
}
