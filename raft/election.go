package raft

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
)

// Voter 保存一个 lane 的选举状态：角色、持久化的选票以及最近一次联系 Leader 的时间。
// 选票在对外产生任何影响之前落盘。
type Voter struct {
	lane    *Lane
	ballots storage.RaftBallotStore

	mu                sync.Mutex
	state             param.State
	ballot            param.Ballot
	leaderID          param.NodeID
	lastLeaderContact time.Time // Follower 最近一次收到合法 Leader 消息的时间
	electionDeadline  time.Time

	campaigning atomic.Bool
}

func newVoter(l *Lane, ballots storage.RaftBallotStore) (*Voter, error) {
	ballot, err := ballots.LoadBallot()
	if errors.Is(err, storage.ErrBallotNotFound) {
		ballot = param.NewBallot(0)
	} else if err != nil {
		return nil, err
	}
	v := &Voter{
		lane:    l,
		ballots: ballots,
		state:   param.Follower,
		ballot:  ballot,
	}
	v.resetElectionTimerLocked()
	return v, nil
}

// Snapshot 返回当前角色、任期和已知的 Leader。
func (v *Voter) Snapshot() (param.State, uint64, param.NodeID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, v.ballot.CurTerm, v.leaderID
}

// CurrentTerm 返回当前任期。
func (v *Voter) CurrentTerm() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ballot.CurTerm
}

// leaderTerm 在本节点是 Leader 时返回它的任期。
func (v *Voter) leaderTerm() (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ballot.CurTerm, v.state == param.Leader
}

// isLeaderOf 判断本节点是否仍是 term 任期的 Leader。
func (v *Voter) isLeaderOf(term uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state == param.Leader && v.ballot.CurTerm == term
}

func (v *Voter) resetElectionTimerLocked() {
	cfg := v.lane.cfg
	spread := int64(cfg.ElectionTimeoutMax - cfg.ElectionTimeoutMin)
	v.electionDeadline = time.Now().Add(cfg.ElectionTimeoutMin + time.Duration(rand.Int63n(spread)))
}

// leaderAliveLocked 判断最近是否收到过合法 Leader 的消息。Leader 自己总是认为 Leader 存活。
func (v *Voter) leaderAliveLocked() bool {
	if v.state == param.Leader {
		return true
	}
	return v.leaderID != "" && time.Since(v.lastLeaderContact) < v.lane.cfg.ElectionTimeoutMin
}

// becomeFollowerLocked 采纳更高的任期并清空投票，持久化失败时状态保持不变。
func (v *Voter) becomeFollowerLocked(term uint64) error {
	ballot := param.NewBallot(term)
	if err := v.ballots.SaveBallot(ballot); err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to persist ballot for term %d: %v", v.lane.self, v.lane.id, term, err)
		return err
	}
	if v.state == param.Leader {
		log.Printf("[Election] node=%s lane=%d steps down, term %d -> %d", v.lane.self, v.lane.id, v.ballot.CurTerm, term)
		v.lane.repl.resign()
	}
	v.ballot = ballot
	v.state = param.Follower
	v.leaderID = ""
	return nil
}

// observeTerm 处理从任意消息中看到的任期，比当前任期高时退回 Follower。
func (v *Voter) observeTerm(term uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if term <= v.ballot.CurTerm {
		return nil
	}
	return v.becomeFollowerLocked(term)
}

// observeLeader 处理来自 leader 的复制流或心跳。
// 返回 false 表示消息来自旧任期，应当被拒绝。
func (v *Voter) observeLeader(term uint64, leader param.NodeID) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if term < v.ballot.CurTerm {
		return false, nil
	}
	if term > v.ballot.CurTerm {
		if err := v.becomeFollowerLocked(term); err != nil {
			return false, err
		}
	}
	// 同一任期内只可能有一个 Leader，候选人收到它的消息后放弃选举
	if v.state == param.Leader {
		v.lane.repl.resign()
	}
	if v.state != param.Follower {
		v.state = param.Follower
	}
	if v.leaderID != leader {
		log.Printf("[Election] node=%s lane=%d follows leader %s in term %d", v.lane.self, v.lane.id, leader, term)
	}
	v.leaderID = leader
	v.lastLeaderContact = time.Now()
	v.resetElectionTimerLocked()
	return true, nil
}

// stepDown 让 Leader 在不改变任期的情况下退回 Follower。
func (v *Voter) stepDown(reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != param.Leader {
		return
	}
	log.Printf("[Election] node=%s lane=%d steps down in term %d: %s", v.lane.self, v.lane.id, v.ballot.CurTerm, reason)
	v.lane.repl.resign()
	v.state = param.Follower
	v.leaderID = ""
	v.resetElectionTimerLocked()
}

// RequestVote 处理预投票和正式投票请求。
func (v *Voter) RequestVote(req *param.VoteRequest) (bool, error) {
	tail, err := v.lane.log.Tail()
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// 1. 旧任期的请求直接拒绝
	if req.VoteTerm < v.ballot.CurTerm {
		return false, nil
	}

	// 2. 预投票只回答"如果你发起选举，我会不会投给你"，不修改任何状态
	if req.PreVote {
		if v.leaderAliveLocked() {
			return false, nil
		}
		return !req.CandidateClock.Less(tail), nil
	}

	// 3. Leader 粘滞：仍能联系到 Leader 时拒绝投票，且不采纳请求中的更高任期。
	// 被隔离后重新加入的节点因此无法抬高集群任期 (Raft 论文 §9.6)，
	// 它会在下一次复制流或心跳中看到当前任期并退回 Follower
	if !req.ForceVote && v.leaderAliveLocked() {
		return false, nil
	}

	// 4. 采纳更高的任期。这一步必须在回复之前落盘
	if req.VoteTerm > v.ballot.CurTerm {
		if err := v.becomeFollowerLocked(req.VoteTerm); err != nil {
			return false, err
		}
	}

	// 5. 本任期已经投给了别人
	if v.ballot.VotedFor != "" && v.ballot.VotedFor != req.CandidateID {
		return false, nil
	}

	// 6. 候选人的日志比自己旧。强制选举也必须满足这一条，否则已提交的条目可能丢失
	if req.CandidateClock.Less(tail) {
		log.Printf("[RequestVote] node=%s lane=%d denies %s for term %d: candidate log %s behind %s",
			v.lane.self, v.lane.id, req.CandidateID, req.VoteTerm, req.CandidateClock, tail)
		return false, nil
	}

	if v.ballot.VotedFor != req.CandidateID {
		ballot := param.Ballot{CurTerm: v.ballot.CurTerm, VotedFor: req.CandidateID}
		if err := v.ballots.SaveBallot(ballot); err != nil {
			log.Printf("[ERROR] node=%s lane=%d failed to persist vote: %v", v.lane.self, v.lane.id, err)
			return false, err
		}
		v.ballot = ballot
	}
	v.resetElectionTimerLocked()
	log.Printf("[RequestVote] node=%s lane=%d grants vote for term %d to %s", v.lane.self, v.lane.id, req.VoteTerm, req.CandidateID)
	return true, nil
}

// run 驱动选举计时器，Leader 在这里检查自己是否仍能联系到多数派。
func (v *Voter) run(ctx context.Context) {
	tick := v.lane.cfg.ElectionTimeoutMin / 10
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.tick()
		}
	}
}

func (v *Voter) tick() {
	v.mu.Lock()
	state := v.state
	term := v.ballot.CurTerm
	expired := time.Now().After(v.electionDeadline)
	v.mu.Unlock()

	if state == param.Leader {
		if !v.lane.repl.hasQuorumContact(term, v.lane.cfg.ElectionTimeoutMax) {
			v.stepDown("lost contact with a majority")
		}
		return
	}
	if !expired || !v.lane.isVoter(v.lane.self) {
		return
	}
	v.campaign(false)
}

// campaign 发起一次选举。force 为 true 时跳过预投票，并要求投票者忽略 Leader 粘滞，
// 日志新旧检查仍然生效。
func (v *Voter) campaign(force bool) {
	if !v.campaigning.CompareAndSwap(false, true) {
		return
	}
	defer v.campaigning.Store(false)

	// 1. 预投票：确认能赢得选举之后才增加任期
	if !force && !v.preVote() {
		return
	}

	// 2. 成为候选人：增加任期，投票给自己并持久化
	term, ok := v.becomeCandidate(force)
	if !ok {
		return
	}

	// 3. 请求正式投票
	tail, err := v.lane.log.Tail()
	if err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to read log tail for election: %v", v.lane.self, v.lane.id, err)
		return
	}
	won := v.collectVotes(term, tail, force, false)

	// 4. 处理结果。期间任期或角色发生变化时放弃
	v.mu.Lock()
	if v.state != param.Candidate || v.ballot.CurTerm != term {
		v.mu.Unlock()
		return
	}
	if !won {
		log.Printf("[Election] node=%s lane=%d lost election for term %d", v.lane.self, v.lane.id, term)
		v.state = param.Follower
		v.mu.Unlock()
		return
	}
	// 复制状态与角色在同一临界区内切换，tick 看到 Leader 时租约检查已经可用
	v.lane.repl.prepare(term)
	v.state = param.Leader
	v.leaderID = v.lane.self
	v.mu.Unlock()

	log.Printf("[Election] node=%s lane=%d elected as Leader for term %d", v.lane.self, v.lane.id, term)
	v.lane.repl.becomeLeader(term)
}

func (v *Voter) preVote() bool {
	v.mu.Lock()
	if v.state == param.Leader {
		v.mu.Unlock()
		return false
	}
	v.state = param.PreCandidate
	term := v.ballot.CurTerm + 1
	v.resetElectionTimerLocked()
	v.mu.Unlock()

	tail, err := v.lane.log.Tail()
	if err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to read log tail for pre-vote: %v", v.lane.self, v.lane.id, err)
		return false
	}
	granted := v.collectVotes(term, tail, false, true)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != param.PreCandidate || v.ballot.CurTerm+1 != term {
		return false
	}
	if !granted {
		v.state = param.Follower
		return false
	}
	return true
}

func (v *Voter) becomeCandidate(force bool) (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == param.Leader || (!force && v.state != param.PreCandidate) {
		return 0, false
	}
	ballot := param.Ballot{CurTerm: v.ballot.CurTerm + 1, VotedFor: v.lane.self}
	if err := v.ballots.SaveBallot(ballot); err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to persist ballot before election: %v", v.lane.self, v.lane.id, err)
		v.state = param.Follower
		return 0, false
	}
	v.ballot = ballot
	v.state = param.Candidate
	v.leaderID = ""
	v.resetElectionTimerLocked()
	log.Printf("[Election] node=%s lane=%d starts election for term %d (force=%t)", v.lane.self, v.lane.id, ballot.CurTerm, force)
	return ballot.CurTerm, true
}

// collectVotes 并发地向所有投票成员请求投票，获得严格多数时返回 true。
func (v *Voter) collectVotes(term uint64, tail param.Clock, force, preVote bool) bool {
	voters := v.lane.log.Voters()
	need := len(voters)/2 + 1

	granted := 0
	peers := make([]param.NodeID, 0, len(voters))
	for _, id := range voters {
		if id == v.lane.self {
			granted++
			continue
		}
		peers = append(peers, id)
	}
	if granted >= need {
		return true
	}

	results := make(chan bool, len(peers))
	for _, peer := range peers {
		go func(peer param.NodeID) {
			req := param.NewVoteRequest(v.lane.id, term, v.lane.self, tail, force, preVote)
			var resp param.VoteResponse
			if err := v.lane.trans.SendRequestVote(peer, req, &resp); err != nil {
				results <- false
				return
			}
			results <- resp.VoteGranted
		}(peer)
	}

	timer := time.NewTimer(v.lane.cfg.ElectionTimeoutMin)
	defer timer.Stop()

	for remaining := len(peers); remaining > 0; remaining-- {
		select {
		case ok := <-results:
			if ok {
				granted++
			}
			if granted >= need {
				return true
			}
		case <-timer.C:
			return false
		}
	}
	return false
}
