package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/gzip" // 注册 gzip 压缩器
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
)

const (
	defaultCallTimeout   = 2 * time.Second
	defaultClientTimeout = 15 * time.Second
)

// Option configures a Transport.
type Option func(*Transport)

// WithCompression 设置出站调用使用的压缩器，空字符串或 "none" 表示不压缩。
func WithCompression(name string) Option {
	return func(t *Transport) {
		if name == "none" {
			name = ""
		}
		t.compression = name
	}
}

// WithCallTimeout 设置节点间调用的超时时间。
func WithCallTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.callTimeout = d
	}
}

// Transport implements transport.Transport using gRPC.
type Transport struct {
	listener  net.Listener
	localAddr string

	service    api.RaftService
	grpcServer *grpc.Server

	compression   string
	callTimeout   time.Duration
	clientTimeout time.Duration

	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
}

// NewTransport creates a new gRPC Transport listening on listenAddr.
func NewTransport(listenAddr string, opts ...Option) (*Transport, error) {
	t := &Transport{
		callTimeout:   defaultCallTimeout,
		clientTimeout: defaultClientTimeout,
		conns:         make(map[string]*grpc.ClientConn),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.compression != "" && encoding.GetCompressor(t.compression) == nil {
		return nil, fmt.Errorf("unknown grpc compressor: %s", t.compression)
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	t.listener = listener
	t.localAddr = listener.Addr().String()
	t.grpcServer = grpc.NewServer()
	return t, nil
}

// Addr returns the local address.
func (t *Transport) Addr() string {
	return t.localAddr
}

// RegisterRaft registers the service that handles inbound calls.
func (t *Transport) RegisterRaft(service api.RaftService) {
	t.service = service
}

// Start starts the gRPC server.
func (t *Transport) Start() error {
	if t.service == nil {
		return errors.New("raft service not registered")
	}

	t.grpcServer.RegisterService(&raftServiceDesc, t.service)

	go func() {
		if err := t.grpcServer.Serve(t.listener); err != nil {
			log.Printf("[GRPCTransport] Server stopped: %v", err)
		}
	}()

	log.Printf("[GRPCTransport] Service started on %s (compression=%q)", t.localAddr, t.compression)
	return nil
}

// Close stops the gRPC server and closes all connections.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.grpcServer.Stop()
	// 只作为客户端使用时 Serve 从未运行，监听器需要单独关闭
	_ = t.listener.Close()

	for addr, conn := range t.conns {
		_ = conn.Close()
		delete(t.conns, addr)
	}
	return nil
}

func (t *Transport) getConn(target string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	conn, ok := t.conns[target]
	t.mu.RUnlock()
	if ok {
		return conn, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[target]; ok {
		return conn, nil
	}

	callOpts := []grpc.CallOption{grpc.CallContentSubtype(codecName)}
	if t.compression != "" {
		callOpts = append(callOpts, grpc.UseCompressor(t.compression))
	}
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(callOpts...),
	)
	if err != nil {
		return nil, err
	}
	t.conns[target] = conn
	return conn, nil
}

func (t *Transport) invoke(target, method string, timeout time.Duration, req, resp any) error {
	conn, err := t.getConn(target)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return fromStatus(err)
	}
	return nil
}

// --- Client side implementation ---

func (t *Transport) SendWrite(target string, req *param.WriteRequest, resp *param.Response) error {
	return t.invoke(target, "Write", t.clientTimeout, req, resp)
}

func (t *Transport) SendRead(target string, req *param.ReadRequest, resp *param.Response) error {
	return t.invoke(target, "Read", t.clientTimeout, req, resp)
}

func (t *Transport) SendKernRequest(target string, req *param.KernRequest) error {
	return t.invoke(target, "ProcessKernRequest", t.callTimeout, req, &emptypb.Empty{})
}

func (t *Transport) SendRequestVote(target string, req *param.VoteRequest, resp *param.VoteResponse) error {
	return t.invoke(target, "RequestVote", t.callTimeout, req, resp)
}

// 成员变更需要等待新节点追上日志，使用客户端超时。
func (t *Transport) SendAddServer(target string, req *param.AddServerRequest) error {
	return t.invoke(target, "AddServer", t.clientTimeout, req, &emptypb.Empty{})
}

func (t *Transport) SendRemoveServer(target string, req *param.RemoveServerRequest) error {
	return t.invoke(target, "RemoveServer", t.clientTimeout, req, &emptypb.Empty{})
}

func (t *Transport) SendHeartbeat(target string, req *param.Heartbeat, resp *param.HeartbeatResponse) error {
	return t.invoke(target, "SendHeartbeat", t.callTimeout, req, resp)
}

func (t *Transport) SendTimeoutNow(target string, req *param.TimeoutNow) error {
	return t.invoke(target, "SendTimeoutNow", t.callTimeout, req, &emptypb.Empty{})
}

// SendReplicationStream 先发送 header 帧，再逐条发送 entry 帧，最后读取汇总响应。
func (t *Transport) SendReplicationStream(target string, req *param.ReplicationStream, resp *param.ReplicationStreamResponse) error {
	conn, err := t.getConn(target)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.callTimeout)
	defer cancel()

	stream, err := conn.NewStream(ctx, &raftServiceDesc.Streams[0], fullMethod("SendReplicationStream"))
	if err != nil {
		return fromStatus(err)
	}
	if err := stream.SendMsg(&replicationFrame{Header: &req.Header}); err != nil {
		return t.streamError(stream, err)
	}
	for i := range req.Entries {
		if err := stream.SendMsg(&replicationFrame{Entry: &req.Entries[i]}); err != nil {
			return t.streamError(stream, err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return fromStatus(err)
	}
	if err := stream.RecvMsg(resp); err != nil {
		return fromStatus(err)
	}
	return nil
}

// GetSnapshot 拉取对端快照的所有分块。快照可能较大，使用客户端超时。
func (t *Transport) GetSnapshot(target string, req *param.GetSnapshotRequest, resp *param.SnapshotReply) error {
	conn, err := t.getConn(target)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.clientTimeout)
	defer cancel()

	stream, err := conn.NewStream(ctx, &raftServiceDesc.Streams[1], fullMethod("GetSnapshot"))
	if err != nil {
		return fromStatus(err)
	}
	if err := stream.SendMsg(req); err != nil {
		return t.streamError(stream, err)
	}
	if err := stream.CloseSend(); err != nil {
		return fromStatus(err)
	}
	for {
		var chunk param.SnapshotChunk
		err := stream.RecvMsg(&chunk)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fromStatus(err)
		}
		resp.Chunks = append(resp.Chunks, chunk)
	}
}

// streamError 处理 SendMsg 的失败：io.EOF 表示服务端已经结束了流，真正的错误要从 RecvMsg 取得。
func (t *Transport) streamError(stream grpc.ClientStream, err error) error {
	if errors.Is(err, io.EOF) {
		if recvErr := stream.RecvMsg(new(param.ReplicationStreamResponse)); recvErr != nil {
			return fromStatus(recvErr)
		}
	}
	return fromStatus(err)
}
