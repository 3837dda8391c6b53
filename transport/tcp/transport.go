package tcp

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
)

const (
	dialTimeout = 5 * time.Second
	callTimeout = 5 * time.Second
)

// Transport 实现了 Transport 接口，通过 TCP 和 net/rpc 进行通信。
type Transport struct {
	localAddr string
	listener  net.Listener
	service   api.RaftService
	server    *rpc.Server
	mu        sync.RWMutex
	peers     map[string]*rpc.Client // 缓存 RPC 客户端连接
}

// NewTransport 创建一个新的 Transport 实例，Start 之后才开始监听 localAddr。
func NewTransport(localAddr string) (*Transport, error) {
	if localAddr == "" {
		return nil, errors.New("tcp transport requires a listen address")
	}
	return &Transport{
		localAddr: localAddr,
		peers:     make(map[string]*rpc.Client),
		server:    rpc.NewServer(),
	}, nil
}

// Addr 返回实际监听的地址，未启动时返回配置的地址。
func (t *Transport) Addr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.localAddr
}

func (t *Transport) RegisterRaft(service api.RaftService) {
	t.service = service
}

// Start 注册 RaftRPC 服务并在后台接受连接。
func (t *Transport) Start() error {
	if t.service == nil {
		return errors.New("tcp transport: no service registered")
	}
	if err := t.server.Register(&RaftRPC{Service: t.service}); err != nil {
		return err
	}
	listener, err := net.Listen("tcp", t.localAddr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()

	go t.acceptConnections(listener)

	log.Printf("[TCPTransport] Listening on %s", listener.Addr())
	return nil
}

// acceptConnections 循环接受并处理新的 TCP 连接。
func (t *Transport) acceptConnections(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			// 如果监听器关闭了，就退出循环
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[TCPTransport] Accept error on %s: %v", t.localAddr, err)
			continue
		}
		// 为每个连接启动一个新的 goroutine 来提供 RPC 服务
		go t.server.ServeConn(conn)
	}
}

// Close 关闭监听器和所有缓存的客户端连接。
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, client := range t.peers {
		_ = client.Close()
		delete(t.peers, addr)
	}
	if t.listener == nil {
		return nil
	}
	err := t.listener.Close()
	t.listener = nil
	return err
}

// getPeerClient 获取或创建一个到目标节点的 RPC 客户端。
func (t *Transport) getPeerClient(target string) (*rpc.Client, error) {
	t.mu.RLock()
	client, ok := t.peers[target]
	t.mu.RUnlock()

	if ok && client != nil {
		return client, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// 再次检查，防止在等待锁的过程中其他 goroutine 已经创建了连接
	if client, ok := t.peers[target]; ok && client != nil {
		return client, nil
	}

	conn, err := net.DialTimeout("tcp", target, dialTimeout)
	if err != nil {
		return nil, err
	}
	client = rpc.NewClient(conn)
	t.peers[target] = client
	return client, nil
}

func (t *Transport) dropPeer(target string, client *rpc.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.peers[target]; ok && cur == client {
		_ = client.Close()
		delete(t.peers, target)
	}
}

// remoteCall 是一个通用的 RPC 调用函数，带有超时。
func (t *Transport) remoteCall(target, method string, args any, reply any) error {
	client, err := t.getPeerClient(target)
	if err != nil {
		return err
	}

	call := client.Go(method, args, reply, make(chan *rpc.Call, 1))
	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case <-call.Done:
	case <-timer.C:
		// 连接可能已经卡死，丢弃它，下次调用重新建立
		t.dropPeer(target, client)
		return fmt.Errorf("%s to %s: %w", method, target, api.ErrTimeout)
	}

	if call.Error != nil {
		// 如果是连接已关闭等错误，说明缓存的 client 失效了
		if errors.Is(call.Error, rpc.ErrShutdown) || errors.Is(call.Error, net.ErrClosed) {
			t.dropPeer(target, client)
		}
		return restoreError(call.Error)
	}
	return nil
}

// restoreError 把 net/rpc 传回的错误文本还原为哨兵错误。
func restoreError(err error) error {
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	for _, known := range api.KnownErrors {
		if string(serverErr) == known.Error() {
			return known
		}
	}
	return err
}

func (t *Transport) SendWrite(target string, req *param.WriteRequest, resp *param.Response) error {
	return t.remoteCall(target, "RaftRPC.Write", req, resp)
}

func (t *Transport) SendRead(target string, req *param.ReadRequest, resp *param.Response) error {
	return t.remoteCall(target, "RaftRPC.Read", req, resp)
}

func (t *Transport) SendKernRequest(target string, req *param.KernRequest) error {
	return t.remoteCall(target, "RaftRPC.ProcessKernRequest", req, &Ack{})
}

// SendRequestVote 发送 RequestVote RPC 请求。
func (t *Transport) SendRequestVote(target string, req *param.VoteRequest, resp *param.VoteResponse) error {
	return t.remoteCall(target, "RaftRPC.RequestVote", req, resp)
}

func (t *Transport) SendAddServer(target string, req *param.AddServerRequest) error {
	return t.remoteCall(target, "RaftRPC.AddServer", req, &Ack{})
}

func (t *Transport) SendRemoveServer(target string, req *param.RemoveServerRequest) error {
	return t.remoteCall(target, "RaftRPC.RemoveServer", req, &Ack{})
}

// SendReplicationStream 在 net/rpc 上没有流，整条复制流作为一次调用发送。
func (t *Transport) SendReplicationStream(target string, req *param.ReplicationStream, resp *param.ReplicationStreamResponse) error {
	return t.remoteCall(target, "RaftRPC.SendReplicationStream", req, resp)
}

func (t *Transport) GetSnapshot(target string, req *param.GetSnapshotRequest, resp *param.SnapshotReply) error {
	return t.remoteCall(target, "RaftRPC.GetSnapshot", req, resp)
}

func (t *Transport) SendHeartbeat(target string, req *param.Heartbeat, resp *param.HeartbeatResponse) error {
	return t.remoteCall(target, "RaftRPC.SendHeartbeat", req, resp)
}

func (t *Transport) SendTimeoutNow(target string, req *param.TimeoutNow) error {
	return t.remoteCall(target, "RaftRPC.SendTimeoutNow", req, &Ack{})
}
