package inmemory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/xmh1011/go-multiraft/param"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrUnknownOp       = errors.New("unknown operation")
	ErrInvalidCounter  = errors.New("value is not a counter")
	ErrMalformedRecord = errors.New("malformed command")
)

// StateMachine 是 StateMachine 接口的一个内存实现，模拟一个简单的KV数据库。
// 每个 lane 使用独立的实例。
type StateMachine struct {
	mu           sync.RWMutex
	kvStore      map[string]string
	appliedIndex uint64
}

// NewInMemoryStateMachine 创建一个新的内存状态机实例。
func NewInMemoryStateMachine() *StateMachine {
	return &StateMachine{
		kvStore: make(map[string]string),
	}
}

type kvSnapshot struct {
	Index uint64            `json:"index"`
	Data  map[string]string `json:"data"`
}

// Apply 执行一条已提交的写命令。
// fetch_add 返回加法之前的计数值，其余写操作返回空结果。
func (sm *StateMachine) Apply(index uint64, message []byte) ([]byte, error) {
	var cmd param.KVCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.appliedIndex = index

	switch cmd.Op {
	case param.OpSet:
		sm.kvStore[cmd.Key] = cmd.Value
		return nil, nil
	case param.OpDelete:
		delete(sm.kvStore, cmd.Key)
		return nil, nil
	case param.OpFetchAdd:
		var old int64
		if cur, ok := sm.kvStore[cmd.Key]; ok {
			n, err := strconv.ParseInt(cur, 10, 64)
			if err != nil {
				return nil, ErrInvalidCounter
			}
			old = n
		}
		sm.kvStore[cmd.Key] = strconv.FormatInt(old+cmd.Delta, 10)
		return []byte(strconv.FormatInt(old, 10)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, cmd.Op)
	}
}

// Read 处理 get 查询。
func (sm *StateMachine) Read(message []byte) ([]byte, error) {
	var cmd param.KVCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if cmd.Op != param.OpGet {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, cmd.Op)
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if val, ok := sm.kvStore[cmd.Key]; ok {
		return []byte(val), nil
	}
	return nil, ErrKeyNotFound
}

// Get 从状态机中查询一个键的值。
func (sm *StateMachine) Get(key string) (string, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if val, ok := sm.kvStore[key]; ok {
		return val, nil
	}
	return "", ErrKeyNotFound
}

// AppliedIndex returns the index of the last applied command.
func (sm *StateMachine) AppliedIndex() uint64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.appliedIndex
}

// GetSnapshot 生成状态机的快照。
func (sm *StateMachine) GetSnapshot() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	// 使用 JSON 格式作为快照
	return json.Marshal(kvSnapshot{Index: sm.appliedIndex, Data: sm.kvStore})
}

// ApplySnapshot 从快照中恢复状态机。
func (sm *StateMachine) ApplySnapshot(snapshot []byte) error {
	var snap kvSnapshot
	if err := json.Unmarshal(snapshot, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if snap.Data == nil {
		snap.Data = make(map[string]string)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	// 用快照数据完全替换当前状态
	sm.kvStore = snap.Data
	sm.appliedIndex = snap.Index
	return nil
}
