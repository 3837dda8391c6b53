package transport

import (
	"fmt"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
	"github.com/xmh1011/go-multiraft/transport/grpc"
	"github.com/xmh1011/go-multiraft/transport/inmemory"
	"github.com/xmh1011/go-multiraft/transport/tcp"
)

const (
	GrpcTransport     = "grpc"
	TCPTransport      = "tcp"
	InmemoryTransport = "inmemory"
)

// Transport 定义了 Raft 节点之间以及客户端与节点之间通信所需的方法。
// target 是对端的 NodeID，也就是它的监听地址。
type Transport interface {
	// Addr 返回本地监听地址。
	Addr() string
	// RegisterRaft 注册处理入站请求的服务，必须在 Start 之前调用。
	RegisterRaft(service api.RaftService)
	Start() error
	Close() error

	SendWrite(target string, req *param.WriteRequest, resp *param.Response) error
	SendRead(target string, req *param.ReadRequest, resp *param.Response) error
	SendKernRequest(target string, req *param.KernRequest) error
	SendRequestVote(target string, req *param.VoteRequest, resp *param.VoteResponse) error
	SendAddServer(target string, req *param.AddServerRequest) error
	SendRemoveServer(target string, req *param.RemoveServerRequest) error

	// SendReplicationStream 发送 header 与所有 entry 帧，并等待 follower 的汇总响应。
	SendReplicationStream(target string, req *param.ReplicationStream, resp *param.ReplicationStreamResponse) error

	// GetSnapshot 拉取对端快照，resp.Chunks 按接收顺序保存所有分块。
	GetSnapshot(target string, req *param.GetSnapshotRequest, resp *param.SnapshotReply) error

	SendHeartbeat(target string, req *param.Heartbeat, resp *param.HeartbeatResponse) error
	SendTimeoutNow(target string, req *param.TimeoutNow) error
}

// Options configures NewTransport.
type Options struct {
	// Compression names the gRPC compressor ("zstd" or empty). Ignored by other transports.
	Compression string
}

// NewTransport creates a transport of the given type listening on addr.
func NewTransport(transportType, addr string, opts Options) (Transport, error) {
	switch transportType {
	case GrpcTransport:
		t, err := grpc.NewTransport(addr, grpc.WithCompression(opts.Compression))
		if err != nil {
			return nil, err
		}
		return t, nil
	case TCPTransport:
		t, err := tcp.NewTransport(addr)
		if err != nil {
			return nil, err
		}
		return t, nil
	case InmemoryTransport:
		return inmemory.NewInMemoryTransport(addr), nil
	default:
		return nil, fmt.Errorf("unknown transport type: %s", transportType)
	}
}
