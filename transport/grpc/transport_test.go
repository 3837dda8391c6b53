package grpc

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
)

// startPair 启动两个 Transport，返回发送方和接收方的 mock 服务。
func startPair(t *testing.T, opts ...Option) (*Transport, *Transport, *api.MockRaftService) {
	t.Helper()
	ctrl := gomock.NewController(t)

	t1, err := NewTransport("127.0.0.1:0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = t1.Close() })

	t2, err := NewTransport("127.0.0.1:0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = t2.Close() })

	t1.RegisterRaft(api.NewMockRaftService(ctrl))
	peer := api.NewMockRaftService(ctrl)
	t2.RegisterRaft(peer)

	require.NoError(t, t1.Start())
	require.NoError(t, t2.Start())
	return t1, t2, peer
}

func TestGRPCTransport(t *testing.T) {
	for _, compression := range []string{"", ZstdCompressor, "gzip"} {
		t.Run("compression="+compression, func(t *testing.T) {
			t1, t2, peer := startPair(t, WithCompression(compression))

			t.Run("RequestVote", func(t *testing.T) {
				peer.EXPECT().RequestVote(gomock.Any(), gomock.Any()).
					DoAndReturn(func(args *param.VoteRequest, reply *param.VoteResponse) error {
						assert.Equal(t, uint32(7), args.LaneID)
						assert.Equal(t, param.Clock{Term: 1, Index: 10}, args.CandidateClock)
						reply.VoteGranted = true
						return nil
					}).Times(1)

				resp := &param.VoteResponse{}
				err := t1.SendRequestVote(t2.Addr(), param.NewVoteRequest(7, 2, t1.Addr(), param.Clock{Term: 1, Index: 10}, false, false), resp)
				require.NoError(t, err)
				assert.True(t, resp.VoteGranted)
			})

			t.Run("SendReplicationStream", func(t *testing.T) {
				req := &param.ReplicationStream{
					Header: param.ReplicationStreamHeader{LaneID: 7, SenderID: t1.Addr(), SenderTerm: 2, PrevClock: param.Clock{Term: 1, Index: 3}},
					Entries: []param.ReplicationStreamEntry{
						{Clock: param.Clock{Term: 2, Index: 4}, Command: []byte("cmd1")},
						{Clock: param.Clock{Term: 2, Index: 5}, Command: []byte("cmd2")},
					},
				}
				peer.EXPECT().SendReplicationStream(gomock.Any(), gomock.Any()).
					DoAndReturn(func(args *param.ReplicationStream, reply *param.ReplicationStreamResponse) error {
						assert.Equal(t, req.Header, args.Header)
						assert.Equal(t, req.Entries, args.Entries)
						reply.NInserted = 2
						reply.LogLastIndex = 5
						return nil
					}).Times(1)

				resp := &param.ReplicationStreamResponse{}
				require.NoError(t, t1.SendReplicationStream(t2.Addr(), req, resp))
				assert.Equal(t, uint64(2), resp.NInserted)
				assert.Equal(t, uint64(5), resp.LogLastIndex)
			})

			t.Run("GetSnapshot", func(t *testing.T) {
				peer.EXPECT().GetSnapshot(gomock.Any(), gomock.Any()).
					DoAndReturn(func(args *param.GetSnapshotRequest, reply *param.SnapshotReply) error {
						assert.Equal(t, uint64(9), args.Index)
						reply.Chunks = []param.SnapshotChunk{{Data: []byte("snap")}, {Data: []byte("shot")}}
						return nil
					}).Times(1)

				resp := &param.SnapshotReply{}
				require.NoError(t, t1.GetSnapshot(t2.Addr(), &param.GetSnapshotRequest{LaneID: 7, Index: 9}, resp))
				assert.Len(t, resp.Chunks, 2)
				assert.Equal(t, []byte("snapshot"), resp.Bytes())
			})

			t.Run("SendHeartbeat", func(t *testing.T) {
				peer.EXPECT().SendHeartbeat(gomock.Any(), gomock.Any()).
					DoAndReturn(func(args *param.Heartbeat, reply *param.HeartbeatResponse) error {
						reply.Terms = map[param.LaneID]uint64{}
						for lane, st := range args.LeaderCommitStates {
							reply.Terms[lane] = st.LeaderTerm + 1
						}
						return nil
					}).Times(1)

				hb := param.NewHeartbeat(t1.Addr())
				hb.LeaderCommitStates[1] = param.LeaderCommitState{LeaderTerm: 3, LeaderCommitIndex: 8}
				hb.LeaderCommitStates[2] = param.LeaderCommitState{LeaderTerm: 5, LeaderCommitIndex: 1}
				resp := &param.HeartbeatResponse{}
				require.NoError(t, t1.SendHeartbeat(t2.Addr(), hb, resp))
				assert.Equal(t, map[param.LaneID]uint64{1: 4, 2: 6}, resp.Terms)
			})

			t.Run("Write", func(t *testing.T) {
				peer.EXPECT().Write(gomock.Any(), gomock.Any()).
					DoAndReturn(func(args *param.WriteRequest, reply *param.Response) error {
						reply.NotLeader = true
						reply.LeaderHint = "10.0.0.1:9000"
						return nil
					}).Times(1)

				resp := &param.Response{}
				require.NoError(t, t1.SendWrite(t2.Addr(), &param.WriteRequest{LaneID: 1, RequestID: "r1", Message: []byte("m")}, resp))
				assert.True(t, resp.NotLeader)
				assert.Equal(t, "10.0.0.1:9000", resp.LeaderHint)
			})

			t.Run("Ack-only calls", func(t *testing.T) {
				peer.EXPECT().SendTimeoutNow(gomock.Any()).Return(nil).Times(1)
				peer.EXPECT().ProcessKernRequest(gomock.Any()).Return(nil).Times(1)
				require.NoError(t, t1.SendTimeoutNow(t2.Addr(), &param.TimeoutNow{LaneID: 1}))
				require.NoError(t, t1.SendKernRequest(t2.Addr(), &param.KernRequest{LaneID: 1, Message: []byte{1}}))
			})
		})
	}
}

func TestGRPCTransportErrors(t *testing.T) {
	t1, t2, peer := startPair(t)

	t.Run("Sentinel errors map back", func(t *testing.T) {
		peer.EXPECT().AddServer(gomock.Any()).Return(api.ErrMembershipChangeInProgress)
		err := t1.SendAddServer(t2.Addr(), &param.AddServerRequest{LaneID: 1, ServerID: "x"})
		assert.ErrorIs(t, err, api.ErrMembershipChangeInProgress)

		peer.EXPECT().SendReplicationStream(gomock.Any(), gomock.Any()).Return(api.ErrStaleTerm)
		err = t1.SendReplicationStream(t2.Addr(), &param.ReplicationStream{}, &param.ReplicationStreamResponse{})
		assert.ErrorIs(t, err, api.ErrStaleTerm)

		peer.EXPECT().GetSnapshot(gomock.Any(), gomock.Any()).Return(api.ErrLaneNotFound)
		err = t1.GetSnapshot(t2.Addr(), &param.GetSnapshotRequest{}, &param.SnapshotReply{})
		assert.ErrorIs(t, err, api.ErrLaneNotFound)
	})

	t.Run("Unknown errors keep their message", func(t *testing.T) {
		peer.EXPECT().RemoveServer(gomock.Any()).Return(errors.New("disk on fire"))
		err := t1.SendRemoveServer(t2.Addr(), &param.RemoveServerRequest{LaneID: 1, ServerID: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")
	})

	t.Run("Unknown compressor is rejected", func(t *testing.T) {
		_, err := NewTransport("127.0.0.1:0", WithCompression("lz4"))
		assert.Error(t, err)
	})

	t.Run("Start without service", func(t *testing.T) {
		tr, err := NewTransport("127.0.0.1:0")
		require.NoError(t, err)
		defer tr.Close()
		assert.Error(t, tr.Start())
	})
}
