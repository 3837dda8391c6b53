package inmemory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
)

// ErrTransportClosed 表示 Transport 已经关闭。
var ErrTransportClosed = errors.New("inmemory transport closed")

// Transport 是一个基于内存的 Transport 实现，用于在单个进程内模拟多个节点间的通信。
// 调用是同步的方法调用，断开连接后发送立即失败，可以用来模拟网络分区。
type Transport struct {
	mu        sync.RWMutex
	localAddr string                     // 本地节点的地址
	peers     map[string]api.RaftService // 可达的对端
	service   api.RaftService
	closed    bool
}

// NewInMemoryTransport 创建一个新的 Transport 实例。
// addr 是当前使用此 transport 的节点的地址。
func NewInMemoryTransport(addr string) *Transport {
	return &Transport{
		localAddr: addr,
		peers:     make(map[string]api.RaftService),
	}
}

// Addr 返回当前 Transport 的地址。
func (t *Transport) Addr() string {
	return t.localAddr
}

// RegisterRaft 注册本地服务。
func (t *Transport) RegisterRaft(service api.RaftService) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.service = service
}

// Service 返回本地注册的服务，供其他 Transport 通过 Connect 连接。
func (t *Transport) Service() api.RaftService {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.service
}

func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	return nil
}

// Close 关闭 Transport，之后的所有发送都会失败。
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Connect 将一个节点（peer）添加到 transport 的注册表中。
func (t *Transport) Connect(peerAddr string, service api.RaftService) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[peerAddr] = service
}

// Disconnect 从 transport 的注册表中移除一个节点。
func (t *Transport) Disconnect(peerAddr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, peerAddr)
}

// getPeer 根据目标地址查找对应的服务。
func (t *Transport) getPeer(target string) (api.RaftService, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	peer, ok := t.peers[target]
	if !ok {
		return nil, fmt.Errorf("could not connect to peer: %s", target)
	}
	return peer, nil
}

func (t *Transport) SendWrite(target string, req *param.WriteRequest, resp *param.Response) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.Write(req, resp)
}

func (t *Transport) SendRead(target string, req *param.ReadRequest, resp *param.Response) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.Read(req, resp)
}

func (t *Transport) SendKernRequest(target string, req *param.KernRequest) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.ProcessKernRequest(req)
}

// SendRequestVote 向目标节点发送 RequestVote RPC。
func (t *Transport) SendRequestVote(target string, req *param.VoteRequest, resp *param.VoteResponse) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.RequestVote(req, resp)
}

func (t *Transport) SendAddServer(target string, req *param.AddServerRequest) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.AddServer(req)
}

func (t *Transport) SendRemoveServer(target string, req *param.RemoveServerRequest) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.RemoveServer(req)
}

// SendReplicationStream 把整条复制流一次性交给对端。
func (t *Transport) SendReplicationStream(target string, req *param.ReplicationStream, resp *param.ReplicationStreamResponse) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.SendReplicationStream(req, resp)
}

func (t *Transport) GetSnapshot(target string, req *param.GetSnapshotRequest, resp *param.SnapshotReply) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.GetSnapshot(req, resp)
}

func (t *Transport) SendHeartbeat(target string, req *param.Heartbeat, resp *param.HeartbeatResponse) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.SendHeartbeat(req, resp)
}

func (t *Transport) SendTimeoutNow(target string, req *param.TimeoutNow) error {
	peer, err := t.getPeer(target)
	if err != nil {
		return err
	}
	return peer.SendTimeoutNow(req)
}
