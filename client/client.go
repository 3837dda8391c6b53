package client

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
	"github.com/xmh1011/go-multiraft/transport"
)

const (
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxAttempts     = 8
)

var (
	// ErrNoServers 表示创建客户端时没有提供任何节点地址。
	ErrNoServers = errors.New("client: no servers configured")
	// ErrApplication 包装状态机返回的应用层错误，这类错误重试不会改变结果。
	ErrApplication = errors.New("application error")

	errRedirect = errors.New("redirected to another server")
)

// clientAction 定义了客户端在处理完一次响应后应采取的下一步动作。
type clientAction int

const (
	actionSuccess clientAction = iota // 成功，可以返回结果
	actionFail                        // 失败，应终止操作
	actionRetry                       // 重试
)

// Client 封装了与多 lane Raft 集群交互的逻辑。
// 它为每个 lane 缓存已知的 Leader，并在失败时按指数退避重试。
type Client struct {
	servers []param.NodeID
	trans   transport.Transport

	mu      sync.Mutex
	leaders map[param.LaneID]param.NodeID // lane -> 已知 Leader
	cursor  int                           // 没有 Leader 提示时轮询 servers

	initialInterval time.Duration
	maxAttempts     uint64
}

// Option 调整 Client 的重试策略。
type Option func(*Client)

// WithRetry 设置首次退避间隔和最大尝试次数。
func WithRetry(initial time.Duration, attempts uint64) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialInterval = initial
		}
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// NewClient 创建一个新的客户端实例。servers 是集群中各节点的地址。
func NewClient(servers []param.NodeID, trans transport.Transport, opts ...Option) (*Client, error) {
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	c := &Client{
		servers:         append([]param.NodeID(nil), servers...),
		trans:           trans,
		leaders:         make(map[param.LaneID]param.NodeID),
		initialInterval: defaultInitialInterval,
		maxAttempts:     defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Write 向 lane 提交一条写命令。每次调用生成新的请求 ID，所有重试共用它。
func (c *Client) Write(lane param.LaneID, message []byte) ([]byte, error) {
	return c.WriteWithID(lane, uuid.NewString(), message)
}

// WriteWithID 使用调用方给定的请求 ID 提交写命令。
func (c *Client) WriteWithID(lane param.LaneID, requestID string, message []byte) ([]byte, error) {
	req := &param.WriteRequest{LaneID: lane, Message: message, RequestID: requestID}
	resp, err := c.do(lane, "write", func(target param.NodeID, resp *param.Response) error {
		return c.trans.SendWrite(target, req, resp)
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return resp.Message, fmt.Errorf("%w: %s", ErrApplication, resp.Error)
	}
	return resp.Message, nil
}

// Read 在 lane 的 Leader 上执行一次线性一致读。
func (c *Client) Read(lane param.LaneID, message []byte) ([]byte, error) {
	req := &param.ReadRequest{LaneID: lane, Message: message}
	resp, err := c.do(lane, "read", func(target param.NodeID, resp *param.Response) error {
		return c.trans.SendRead(target, req, resp)
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return resp.Message, fmt.Errorf("%w: %s", ErrApplication, resp.Error)
	}
	return resp.Message, nil
}

// AddServer 把 server 加入 lane 的成员配置，直到变更提交才返回。
func (c *Client) AddServer(lane param.LaneID, server param.NodeID) error {
	req := &param.AddServerRequest{LaneID: lane, ServerID: server}
	_, err := c.do(lane, "add-server", func(target param.NodeID, _ *param.Response) error {
		return c.trans.SendAddServer(target, req)
	})
	return err
}

// RemoveServer 把 server 从 lane 的成员配置中移除。
func (c *Client) RemoveServer(lane param.LaneID, server param.NodeID) error {
	req := &param.RemoveServerRequest{LaneID: lane, ServerID: server}
	_, err := c.do(lane, "remove-server", func(target param.NodeID, _ *param.Response) error {
		return c.trans.SendRemoveServer(target, req)
	})
	return err
}

// TimeoutNow 让 target 立即在 lane 上发起选举，不做重试。
func (c *Client) TimeoutNow(lane param.LaneID, target param.NodeID) error {
	if err := c.trans.SendTimeoutNow(target, &param.TimeoutNow{LaneID: lane}); err != nil {
		return fmt.Errorf("timeout-now to %s on lane %d: %w", target, lane, err)
	}
	return nil
}

// Leader 返回客户端当前缓存的 lane Leader。
func (c *Client) Leader(lane param.LaneID) (param.NodeID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.leaders[lane]
	return id, ok
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 64 * c.initialInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, c.maxAttempts-1)
}

// do 反复调用 call，直到成功、遇到不可重试的错误或尝试次数用尽。
func (c *Client) do(lane param.LaneID, op string, call func(target param.NodeID, resp *param.Response) error) (param.Response, error) {
	var result param.Response
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		target := c.selectTarget(lane)
		log.Printf("[Client] %s lane=%d attempt=%d target=%s", op, lane, attempt, target)

		var resp param.Response
		err := call(target, &resp)
		action, err := c.decideNextAction(lane, target, &resp, err)
		switch action {
		case actionSuccess:
			result = resp
			return nil
		case actionFail:
			return backoff.Permanent(err)
		default:
			return err
		}
	}, c.newBackOff())
	if err != nil {
		return param.Response{}, fmt.Errorf("%s on lane %d: %w", op, lane, err)
	}
	return result, nil
}

// selectTarget 优先返回缓存的 Leader，否则轮询节点列表。
func (c *Client) selectTarget(lane param.LaneID) param.NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.leaders[lane]; ok {
		return id
	}
	return c.servers[c.cursor%len(c.servers)]
}

// decideNextAction 根据一次调用的结果更新 Leader 缓存并决定下一步。
func (c *Client) decideNextAction(lane param.LaneID, target param.NodeID, resp *param.Response, err error) (clientAction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err == nil && !resp.NotLeader:
		c.leaders[lane] = target
		return actionSuccess, nil
	case err == nil:
		// 节点明确告知自己不是 Leader
		if resp.LeaderHint != "" && resp.LeaderHint != target {
			c.leaders[lane] = resp.LeaderHint
		} else {
			delete(c.leaders, lane)
			c.cursor++
		}
		return actionRetry, fmt.Errorf("%s: %w", target, errRedirect)
	case errors.Is(err, api.ErrLaneNotFound), errors.Is(err, api.ErrMalformedRequest):
		return actionFail, err
	default:
		log.Printf("[Client] lane=%d request to %s failed: %v", lane, target, err)
		delete(c.leaders, lane)
		c.cursor++
		return actionRetry, err
	}
}
