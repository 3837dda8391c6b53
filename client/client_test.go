package client

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
	"github.com/xmh1011/go-multiraft/transport"
)

var servers = []param.NodeID{"node-1", "node-2", "node-3"}

// setup 是一个辅助函数，用于创建测试所需的 mock 对象和客户端实例。
func setup(t *testing.T) (*gomock.Controller, *transport.MockTransport, *Client) {
	ctrl := gomock.NewController(t)
	mockTrans := transport.NewMockTransport(ctrl)
	c, err := NewClient(servers, mockTrans, WithRetry(time.Millisecond, 4))
	require.NoError(t, err)
	return ctrl, mockTrans, c
}

func TestNewClientRequiresServers(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestDecideNextAction(t *testing.T) {
	testCases := []struct {
		name           string
		resp           param.Response
		err            error
		expectedAction clientAction
		expectedLeader param.NodeID
		expectCached   bool
	}{
		{
			name:           "success caches target",
			resp:           param.Response{Message: []byte("ok")},
			expectedAction: actionSuccess,
			expectedLeader: "node-1",
			expectCached:   true,
		},
		{
			name:           "not leader with hint",
			resp:           param.Response{NotLeader: true, LeaderHint: "node-3"},
			expectedAction: actionRetry,
			expectedLeader: "node-3",
			expectCached:   true,
		},
		{
			name:           "not leader without hint",
			resp:           param.Response{NotLeader: true},
			expectedAction: actionRetry,
		},
		{
			name:           "transport error",
			err:            errors.New("connection refused"),
			expectedAction: actionRetry,
		},
		{
			name:           "membership change in progress",
			err:            api.ErrMembershipChangeInProgress,
			expectedAction: actionRetry,
		},
		{
			name:           "lane not found",
			err:            api.ErrLaneNotFound,
			expectedAction: actionFail,
			expectedLeader: "node-2",
			expectCached:   true,
		},
		{
			name:           "malformed request",
			err:            api.ErrMalformedRequest,
			expectedAction: actionFail,
			expectedLeader: "node-2",
			expectCached:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, c := setup(t)
			c.leaders[7] = "node-2"

			resp := tc.resp
			action, _ := c.decideNextAction(7, "node-1", &resp, tc.err)
			assert.Equal(t, tc.expectedAction, action)

			leader, ok := c.Leader(7)
			assert.Equal(t, tc.expectCached, ok)
			if tc.expectCached {
				assert.Equal(t, tc.expectedLeader, leader)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	t.Run("success on first try", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		mockTrans.EXPECT().
			SendWrite("node-1", gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ string, req *param.WriteRequest, resp *param.Response) error {
				assert.Equal(t, param.LaneID(3), req.LaneID)
				assert.Equal(t, []byte("cmd"), req.Message)
				assert.NotEmpty(t, req.RequestID)
				resp.Message = []byte("done")
				return nil
			})

		out, err := c.Write(3, []byte("cmd"))
		require.NoError(t, err)
		assert.Equal(t, []byte("done"), out)

		leader, ok := c.Leader(3)
		assert.True(t, ok)
		assert.Equal(t, "node-1", leader)
	})

	t.Run("follows leader hint with the same request id", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		var ids []string
		gomock.InOrder(
			mockTrans.EXPECT().
				SendWrite("node-1", gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ string, req *param.WriteRequest, resp *param.Response) error {
					ids = append(ids, req.RequestID)
					resp.NotLeader = true
					resp.LeaderHint = "node-3"
					return nil
				}),
			mockTrans.EXPECT().
				SendWrite("node-3", gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ string, req *param.WriteRequest, resp *param.Response) error {
					ids = append(ids, req.RequestID)
					resp.Message = []byte("ok")
					return nil
				}),
		)

		out, err := c.Write(0, []byte("cmd"))
		require.NoError(t, err)
		assert.Equal(t, []byte("ok"), out)
		require.Len(t, ids, 2)
		assert.Equal(t, ids[0], ids[1])
	})

	t.Run("rotates servers on transport error", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		gomock.InOrder(
			mockTrans.EXPECT().
				SendWrite("node-1", gomock.Any(), gomock.Any()).
				Return(errors.New("connection refused")),
			mockTrans.EXPECT().
				SendWrite("node-2", gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ string, _ *param.WriteRequest, resp *param.Response) error {
					resp.Message = []byte("ok")
					return nil
				}),
		)

		_, err := c.WriteWithID(0, "fixed-id", []byte("cmd"))
		require.NoError(t, err)
	})

	t.Run("application error is not retried", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		mockTrans.EXPECT().
			SendWrite("node-1", gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ string, _ *param.WriteRequest, resp *param.Response) error {
				resp.Error = "invalid counter"
				return nil
			}).Times(1)

		_, err := c.Write(0, []byte("cmd"))
		assert.ErrorIs(t, err, ErrApplication)
		assert.Contains(t, err.Error(), "invalid counter")
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		mockTrans.EXPECT().
			SendWrite(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(errors.New("connection refused")).
			Times(4)

		_, err := c.Write(0, []byte("cmd"))
		assert.Error(t, err)
	})

	t.Run("lane not found is permanent", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		mockTrans.EXPECT().
			SendWrite("node-1", gomock.Any(), gomock.Any()).
			Return(api.ErrLaneNotFound).
			Times(1)

		_, err := c.Write(9, []byte("cmd"))
		assert.ErrorIs(t, err, api.ErrLaneNotFound)
	})
}

func TestReadUsesCachedLeader(t *testing.T) {
	_, mockTrans, c := setup(t)
	c.leaders[1] = "node-2"

	mockTrans.EXPECT().
		SendRead("node-2", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ string, req *param.ReadRequest, resp *param.Response) error {
			assert.Equal(t, param.LaneID(1), req.LaneID)
			resp.Message = []byte("v")
			return nil
		})

	out, err := c.Read(1, []byte("get"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), out)
}

func TestMembershipRequests(t *testing.T) {
	t.Run("add server retries on not leader", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		gomock.InOrder(
			mockTrans.EXPECT().
				SendAddServer("node-1", &param.AddServerRequest{LaneID: 0, ServerID: "node-4"}).
				Return(api.ErrNotLeader),
			mockTrans.EXPECT().
				SendAddServer("node-2", &param.AddServerRequest{LaneID: 0, ServerID: "node-4"}).
				Return(nil),
		)

		require.NoError(t, c.AddServer(0, "node-4"))
		leader, _ := c.Leader(0)
		assert.Equal(t, "node-2", leader)
	})

	t.Run("remove server", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		mockTrans.EXPECT().
			SendRemoveServer("node-1", &param.RemoveServerRequest{LaneID: 2, ServerID: "node-3"}).
			Return(nil)

		require.NoError(t, c.RemoveServer(2, "node-3"))
	})

	t.Run("timeout now goes to the named target", func(t *testing.T) {
		_, mockTrans, c := setup(t)

		mockTrans.EXPECT().
			SendTimeoutNow("node-3", &param.TimeoutNow{LaneID: 5}).
			Return(errors.New("unreachable"))

		err := c.TimeoutNow(5, "node-3")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "node-3")
	})
}
