package raft

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
	"github.com/xmh1011/go-multiraft/transport"
)

// seedVoterLog 写入日志 [marker(0,1), (1,2), (2,3)]，尾部为 (2,3)。
func seedVoterLog(t *testing.T, stores storage.LaneStores) {
	t.Helper()
	head := seedBootstrapped(t, stores, "node-1", "node-2", "node-3")
	e2 := writeEntry(head, 1, "r2", setMessage(t, "a", "1"))
	e3 := writeEntry(e2.ThisClock, 2, "r3", setMessage(t, "b", "2"))
	require.NoError(t, stores.Log.InsertEntry(2, e2))
	require.NoError(t, stores.Log.InsertEntry(3, e3))
}

func TestVoter_RequestVote(t *testing.T) {
	upToDate := param.Clock{Term: 2, Index: 3}
	behind := param.Clock{Term: 1, Index: 9}

	tests := []struct {
		name        string
		ballot      param.Ballot
		leaderAlive bool
		req         *param.VoteRequest

		// setupMocks 设置选票持久化的期望调用
		setupMocks func(b *storage.MockRaftBallotStore)

		want       bool
		wantErr    bool
		wantBallot param.Ballot
	}{
		{
			name:       "StaleTerm",
			ballot:     param.Ballot{CurTerm: 2},
			req:        param.NewVoteRequest(0, 1, "node-2", upToDate, false, false),
			setupMocks: func(b *storage.MockRaftBallotStore) {},
			want:       false,
			wantBallot: param.Ballot{CurTerm: 2},
		},
		{
			name:       "PreVoteGranted",
			ballot:     param.Ballot{CurTerm: 2},
			req:        param.NewVoteRequest(0, 3, "node-2", upToDate, false, true),
			setupMocks: func(b *storage.MockRaftBallotStore) {},
			want:       true,
			wantBallot: param.Ballot{CurTerm: 2},
		},
		{
			name:       "PreVoteLogBehind",
			ballot:     param.Ballot{CurTerm: 2},
			req:        param.NewVoteRequest(0, 3, "node-2", behind, false, true),
			setupMocks: func(b *storage.MockRaftBallotStore) {},
			want:       false,
			wantBallot: param.Ballot{CurTerm: 2},
		},
		{
			name:        "PreVoteLeaderAlive",
			ballot:      param.Ballot{CurTerm: 2},
			leaderAlive: true,
			req:         param.NewVoteRequest(0, 3, "node-2", upToDate, false, true),
			setupMocks:  func(b *storage.MockRaftBallotStore) {},
			want:        false,
			wantBallot:  param.Ballot{CurTerm: 2},
		},
		{
			name:   "GrantsHigherTerm",
			ballot: param.Ballot{CurTerm: 2},
			req:    param.NewVoteRequest(0, 3, "node-2", upToDate, false, false),
			setupMocks: func(b *storage.MockRaftBallotStore) {
				gomock.InOrder(
					b.EXPECT().SaveBallot(param.Ballot{CurTerm: 3}).Return(nil),
					b.EXPECT().SaveBallot(param.Ballot{CurTerm: 3, VotedFor: "node-2"}).Return(nil),
				)
			},
			want:       true,
			wantBallot: param.Ballot{CurTerm: 3, VotedFor: "node-2"},
		},
		{
			// 粘滞拒绝发生在采纳任期之前，本地任期和选票都不变
			name:        "StickyLeaderDoesNotAdoptHigherTerm",
			ballot:      param.Ballot{CurTerm: 2},
			leaderAlive: true,
			req:         param.NewVoteRequest(0, 3, "node-2", upToDate, false, false),
			setupMocks:  func(b *storage.MockRaftBallotStore) {},
			want:        false,
			wantBallot:  param.Ballot{CurTerm: 2},
		},
		{
			name:        "ForcedVoteIgnoresStickyLeader",
			ballot:      param.Ballot{CurTerm: 2},
			leaderAlive: true,
			req:         param.NewVoteRequest(0, 3, "node-2", upToDate, true, false),
			setupMocks: func(b *storage.MockRaftBallotStore) {
				gomock.InOrder(
					b.EXPECT().SaveBallot(param.Ballot{CurTerm: 3}).Return(nil),
					b.EXPECT().SaveBallot(param.Ballot{CurTerm: 3, VotedFor: "node-2"}).Return(nil),
				)
			},
			want:       true,
			wantBallot: param.Ballot{CurTerm: 3, VotedFor: "node-2"},
		},
		{
			// 强制选举不放宽日志检查：(1,9) 比本地尾部 (2,3) 旧，投给它会丢掉 (2,3)
			name:        "ForcedVoteLogBehindDenied",
			ballot:      param.Ballot{CurTerm: 2},
			leaderAlive: true,
			req:         param.NewVoteRequest(0, 3, "node-2", behind, true, false),
			setupMocks: func(b *storage.MockRaftBallotStore) {
				b.EXPECT().SaveBallot(param.Ballot{CurTerm: 3}).Return(nil)
			},
			want:       false,
			wantBallot: param.Ballot{CurTerm: 3},
		},
		{
			name:       "AlreadyVotedForOther",
			ballot:     param.Ballot{CurTerm: 2, VotedFor: "node-3"},
			req:        param.NewVoteRequest(0, 2, "node-2", upToDate, false, false),
			setupMocks: func(b *storage.MockRaftBallotStore) {},
			want:       false,
			wantBallot: param.Ballot{CurTerm: 2, VotedFor: "node-3"},
		},
		{
			name:       "RepeatedVoteForSameCandidate",
			ballot:     param.Ballot{CurTerm: 2, VotedFor: "node-2"},
			req:        param.NewVoteRequest(0, 2, "node-2", upToDate, false, false),
			setupMocks: func(b *storage.MockRaftBallotStore) {},
			want:       true,
			wantBallot: param.Ballot{CurTerm: 2, VotedFor: "node-2"},
		},
		{
			name:   "LogBehindStillAdoptsTerm",
			ballot: param.Ballot{CurTerm: 2},
			req:    param.NewVoteRequest(0, 3, "node-2", behind, false, false),
			setupMocks: func(b *storage.MockRaftBallotStore) {
				b.EXPECT().SaveBallot(param.Ballot{CurTerm: 3}).Return(nil)
			},
			want:       false,
			wantBallot: param.Ballot{CurTerm: 3},
		},
		{
			name:   "PersistFailure",
			ballot: param.Ballot{CurTerm: 2},
			req:    param.NewVoteRequest(0, 3, "node-2", upToDate, false, false),
			setupMocks: func(b *storage.MockRaftBallotStore) {
				b.EXPECT().SaveBallot(param.Ballot{CurTerm: 3}).Return(errors.New("disk full"))
			},
			wantErr:    true,
			wantBallot: param.Ballot{CurTerm: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			ballots := storage.NewMockRaftBallotStore(ctrl)
			ballots.EXPECT().LoadBallot().Return(tt.ballot, nil)
			tt.setupMocks(ballots)

			stores := newMemStores()
			stores.Ballot = ballots
			seedVoterLog(t, stores)
			l := newTestLane(t, nil, stores)

			if tt.leaderAlive {
				l.voter.mu.Lock()
				l.voter.leaderID = "node-3"
				l.voter.lastLeaderContact = time.Now()
				l.voter.mu.Unlock()
			}

			granted, err := l.voter.RequestVote(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, granted)
			}
			l.voter.mu.Lock()
			assert.Equal(t, tt.wantBallot, l.voter.ballot)
			l.voter.mu.Unlock()
		})
	}
}

func TestVoter_ObserveLeader(t *testing.T) {
	stores := newMemStores()
	require.NoError(t, stores.Ballot.SaveBallot(param.Ballot{CurTerm: 2, VotedFor: "node-1"}))
	l := newTestLane(t, nil, stores)

	ok, err := l.voter.observeLeader(1, "node-2")
	require.NoError(t, err)
	assert.False(t, ok, "older term must be rejected")

	ok, err = l.voter.observeLeader(3, "node-2")
	require.NoError(t, err)
	assert.True(t, ok)

	state, term, leader := l.voter.Snapshot()
	assert.Equal(t, param.Follower, state)
	assert.Equal(t, uint64(3), term)
	assert.Equal(t, param.NodeID("node-2"), leader)

	// 新任期的选票已经落盘，且没有投票
	ballot, err := stores.Ballot.LoadBallot()
	require.NoError(t, err)
	assert.Equal(t, param.Ballot{CurTerm: 3}, ballot)
}

func TestVoter_StepDownKeepsTerm(t *testing.T) {
	l := newTestLane(t, nil, newMemStores())
	l.voter.mu.Lock()
	l.voter.state = param.Leader
	l.voter.ballot = param.Ballot{CurTerm: 7, VotedFor: "node-1"}
	l.voter.leaderID = "node-1"
	l.voter.mu.Unlock()

	l.voter.stepDown("test")

	state, term, leader := l.voter.Snapshot()
	assert.Equal(t, param.Follower, state)
	assert.Equal(t, uint64(7), term)
	assert.Empty(t, leader)
}

func TestVoter_Campaign(t *testing.T) {
	tests := []struct {
		name    string
		members []param.NodeID
		force   bool

		// setupMocks 设置对端对投票请求的响应
		setupMocks func(tr *transport.MockTransport)

		wantState param.State
		wantTerm  uint64
	}{
		{
			name:       "SingleNodeWinsAlone",
			members:    []param.NodeID{"node-1"},
			setupMocks: func(tr *transport.MockTransport) {},
			wantState:  param.Leader,
			wantTerm:   1,
		},
		{
			name:    "WinsWithPeerVote",
			members: []param.NodeID{"node-1", "node-2"},
			setupMocks: func(tr *transport.MockTransport) {
				gomock.InOrder(
					tr.EXPECT().SendRequestVote("node-2", gomock.Any(), gomock.Any()).
						DoAndReturn(func(_ string, req *param.VoteRequest, resp *param.VoteResponse) error {
							if !req.PreVote || req.VoteTerm != 1 {
								return errors.New("expected pre-vote for term 1")
							}
							resp.VoteGranted = true
							return nil
						}),
					tr.EXPECT().SendRequestVote("node-2", gomock.Any(), gomock.Any()).
						DoAndReturn(func(_ string, req *param.VoteRequest, resp *param.VoteResponse) error {
							resp.VoteGranted = !req.PreVote && req.VoteTerm == 1
							return nil
						}),
				)
			},
			wantState: param.Leader,
			wantTerm:  1,
		},
		{
			name:    "PreVoteRejectedKeepsTerm",
			members: []param.NodeID{"node-1", "node-2", "node-3"},
			setupMocks: func(tr *transport.MockTransport) {
				tr.EXPECT().SendRequestVote(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ string, req *param.VoteRequest, resp *param.VoteResponse) error {
						resp.VoteGranted = false
						return nil
					}).Times(2)
			},
			wantState: param.Follower,
			wantTerm:  0,
		},
		{
			name:    "UnreachablePeers",
			members: []param.NodeID{"node-1", "node-2", "node-3"},
			setupMocks: func(tr *transport.MockTransport) {
				tr.EXPECT().SendRequestVote(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("connection refused")).Times(2)
			},
			wantState: param.Follower,
			wantTerm:  0,
		},
		{
			name:    "ForcedSkipsPreVote",
			members: []param.NodeID{"node-1", "node-2", "node-3"},
			force:   true,
			setupMocks: func(tr *transport.MockTransport) {
				tr.EXPECT().SendRequestVote(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ string, req *param.VoteRequest, resp *param.VoteResponse) error {
						resp.VoteGranted = req.ForceVote && !req.PreVote
						return nil
					}).MinTimes(1).MaxTimes(2)
			},
			wantState: param.Leader,
			wantTerm:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			tr := transport.NewMockTransport(ctrl)
			tt.setupMocks(tr)

			stores := newMemStores()
			seedBootstrapped(t, stores, tt.members...)
			l := newTestLane(t, tr, stores)

			l.voter.campaign(tt.force)

			state, term, _ := l.voter.Snapshot()
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantTerm, term)

			if tt.wantState == param.Leader {
				// 新 Leader 追加了本任期的 barrier
				last, err := stores.Log.GetLastIndex()
				require.NoError(t, err)
				assert.Equal(t, uint64(2), last)
				assert.Equal(t, uint64(2), l.repl.barrier(term))
				entry, err := stores.Log.GetEntry(2)
				require.NoError(t, err)
				cmd, err := param.DecodeCommand(entry.Command)
				require.NoError(t, err)
				assert.Equal(t, param.CommandBarrier, cmd.Kind)

				// 复制线程尚未启动，租约检查也不能让刚当选的 Leader 退位
				l.voter.tick()
				state, _, _ = l.voter.Snapshot()
				assert.Equal(t, param.Leader, state)
			}
		})
	}
}
