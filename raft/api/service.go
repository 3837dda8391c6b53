package api

import (
	"github.com/xmh1011/go-multiraft/param"
)

// RaftService 定义了 Raft 节点需要暴露给 Transport 的 RPC 处理方法。
// Transport 层通过此接口回调 Raft 核心逻辑，所有方法都必须可以并发调用。
type RaftService interface {
	// Write 处理客户端写请求，命令提交并应用后才返回。
	Write(args *param.WriteRequest, reply *param.Response) error

	// Read 处理客户端读请求，不经过日志。
	Read(args *param.ReadRequest, reply *param.Response) error

	// ProcessKernRequest 投递一个内部请求，不等待执行结果。
	ProcessKernRequest(args *param.KernRequest) error

	RequestVote(args *param.VoteRequest, reply *param.VoteResponse) error

	AddServer(args *param.AddServerRequest) error

	RemoveServer(args *param.RemoveServerRequest) error

	// SendReplicationStream 接收一个完整的复制流（header + entries）。
	SendReplicationStream(args *param.ReplicationStream, reply *param.ReplicationStreamResponse) error

	// GetSnapshot 以分块形式返回 args.Index 处的快照。
	GetSnapshot(args *param.GetSnapshotRequest, reply *param.SnapshotReply) error

	SendHeartbeat(args *param.Heartbeat, reply *param.HeartbeatResponse) error

	SendTimeoutNow(args *param.TimeoutNow) error
}
