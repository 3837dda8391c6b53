package tcp

import (
	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
)

// RaftRPC 是一个包装器，用于将 RaftService 的方法暴露给 net/rpc 包。
// net/rpc 要求每个方法都有 reply 参数，所以没有响应体的调用使用 Ack。
type RaftRPC struct {
	Service api.RaftService
}

// Ack 是无响应体调用的占位回复。
type Ack struct{}

func (r *RaftRPC) Write(args param.WriteRequest, reply *param.Response) error {
	return r.Service.Write(&args, reply)
}

func (r *RaftRPC) Read(args param.ReadRequest, reply *param.Response) error {
	return r.Service.Read(&args, reply)
}

func (r *RaftRPC) ProcessKernRequest(args param.KernRequest, _ *Ack) error {
	return r.Service.ProcessKernRequest(&args)
}

// RequestVote 是 RequestVote RPC 的 RPC 处理器。
func (r *RaftRPC) RequestVote(args param.VoteRequest, reply *param.VoteResponse) error {
	return r.Service.RequestVote(&args, reply)
}

func (r *RaftRPC) AddServer(args param.AddServerRequest, _ *Ack) error {
	return r.Service.AddServer(&args)
}

func (r *RaftRPC) RemoveServer(args param.RemoveServerRequest, _ *Ack) error {
	return r.Service.RemoveServer(&args)
}

// SendReplicationStream 一次性接收 header 和全部 entry。
func (r *RaftRPC) SendReplicationStream(args param.ReplicationStream, reply *param.ReplicationStreamResponse) error {
	return r.Service.SendReplicationStream(&args, reply)
}

func (r *RaftRPC) GetSnapshot(args param.GetSnapshotRequest, reply *param.SnapshotReply) error {
	return r.Service.GetSnapshot(&args, reply)
}

func (r *RaftRPC) SendHeartbeat(args param.Heartbeat, reply *param.HeartbeatResponse) error {
	return r.Service.SendHeartbeat(&args, reply)
}

func (r *RaftRPC) SendTimeoutNow(args param.TimeoutNow, _ *Ack) error {
	return r.Service.SendTimeoutNow(&args)
}
