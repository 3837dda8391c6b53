package raft

import (
	"errors"
	"fmt"
	"time"
)

// Config 是所有 lane 共享的共识参数。
type Config struct {
	// HeartbeatInterval 是 Leader 发送批量心跳的周期，也是复制线程的轮询周期。
	HeartbeatInterval time.Duration
	// 选举超时在 [ElectionTimeoutMin, ElectionTimeoutMax) 内随机选取。
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	// RequestTimeout 限制一次客户端读写等待提交和应用的时间。
	RequestTimeout time.Duration
	// CatchUpTimeout 限制 AddServer 等待新节点追上日志的时间。
	CatchUpTimeout time.Duration

	// SnapshotInterval 是两次快照之间至少应用的条目数，0 表示只在显式请求时做快照。
	SnapshotInterval uint64
	// DedupWindow 是去重记录保留的索引跨度，0 表示与 SnapshotInterval 相同。
	DedupWindow uint64

	// ReplicationBatch 是一条复制流最多携带的条目数。
	ReplicationBatch int
	// SnapshotChunkSize 是 GetSnapshot 返回的单个分块大小。
	SnapshotChunkSize int
}

// DefaultConfig 返回适合局域网部署的参数。
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:  100 * time.Millisecond,
		ElectionTimeoutMin: 500 * time.Millisecond,
		ElectionTimeoutMax: 1000 * time.Millisecond,
		RequestTimeout:     5 * time.Second,
		CatchUpTimeout:     30 * time.Second,
		SnapshotInterval:   1000,
		ReplicationBatch:   256,
		SnapshotChunkSize:  64 * 1024,
	}
}

// Validate 检查参数之间的约束。
func (c Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.ElectionTimeoutMin <= c.HeartbeatInterval {
		return fmt.Errorf("election timeout min %v must exceed heartbeat interval %v", c.ElectionTimeoutMin, c.HeartbeatInterval)
	}
	if c.ElectionTimeoutMax <= c.ElectionTimeoutMin {
		return fmt.Errorf("election timeout max %v must exceed min %v", c.ElectionTimeoutMax, c.ElectionTimeoutMin)
	}
	if c.RequestTimeout <= 0 || c.CatchUpTimeout <= 0 {
		return errors.New("request and catch-up timeouts must be positive")
	}
	if c.ReplicationBatch <= 0 {
		return errors.New("replication batch must be positive")
	}
	if c.SnapshotChunkSize <= 0 {
		return errors.New("snapshot chunk size must be positive")
	}
	return nil
}

func (c Config) dedupWindow() uint64 {
	if c.DedupWindow > 0 {
		return c.DedupWindow
	}
	return c.SnapshotInterval
}
