package param

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// WriteRequest 是客户端的写请求。RequestID 用于去重，重试时必须保持不变。
type WriteRequest struct {
	LaneID    LaneID
	Message   []byte
	RequestID string
}

// ReadRequest 是客户端的读请求，不经过日志。
type ReadRequest struct {
	LaneID  LaneID
	Message []byte
}

// Response 是 Raft 节点对客户端读写请求的响应。
type Response struct {
	Message    []byte
	Error      string // 状态机返回的应用层错误，重试不会改变结果
	NotLeader  bool   // 如果当前节点不是 Leader，此项为 true
	LeaderHint NodeID // 当前已知的 Leader，用于客户端重定向
}

// KernOp 定义 ProcessKernRequest 可以携带的操作。
type KernOp uint8

const (
	KernAddServer KernOp = iota + 1
	KernRemoveServer
)

// KernRequest carries an opaque kernel-directed request for one lane.
type KernRequest struct {
	LaneID  LaneID
	Message []byte // gob encoded KernRequestBody
}

// KernRequestBody is the decoded form of KernRequest.Message.
type KernRequestBody struct {
	Op       KernOp
	ServerID NodeID
}

// NewKernRequest encodes body into a KernRequest for lane.
func NewKernRequest(lane LaneID, body KernRequestBody) (*KernRequest, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode kern request: %w", err)
	}
	return &KernRequest{LaneID: lane, Message: buf.Bytes()}, nil
}

// DecodeKernRequestBody decodes KernRequest.Message.
func DecodeKernRequestBody(data []byte) (KernRequestBody, error) {
	var body KernRequestBody
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&body); err != nil {
		return KernRequestBody{}, fmt.Errorf("decode kern request: %w", err)
	}
	return body, nil
}

// KVCommand 定义了客户端与参考状态机交互的命令格式。
type KVCommand struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
	Delta int64  `json:"delta,omitempty"`
}

const (
	OpSet      = "set"
	OpDelete   = "delete"
	OpFetchAdd = "fetch_add"
	OpGet      = "get"
)
