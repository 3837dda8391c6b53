package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/xmh1011/go-multiraft/raft"
	"github.com/xmh1011/go-multiraft/storage"
	"github.com/xmh1011/go-multiraft/transport"
)

// Config 是 raft-server 的 YAML 配置文件。时长字段的单位都是毫秒。
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Storage   StorageConfig   `yaml:"storage"`
	Transport TransportConfig `yaml:"transport"`
	Raft      RaftConfig      `yaml:"raft"`
	Admin     AdminConfig     `yaml:"admin"`
}

type NodeConfig struct {
	// Address 是本节点的监听地址，同时也是它的 NodeID。
	Address string `yaml:"address"`
	// Lanes 是启动时创建的 lane 数量，编号为 0..Lanes-1。
	Lanes int `yaml:"lanes"`
	// Bootstrap 为 true 时，本节点在每个空 lane 上把自己加为唯一成员。
	Bootstrap bool `yaml:"bootstrap"`
}

type StorageConfig struct {
	Type    string `yaml:"type"`
	DataDir string `yaml:"data_dir"`
	// BatchSize 只对 bolt 后端生效。
	BatchSize int `yaml:"batch_size"`
}

type TransportConfig struct {
	Type        string `yaml:"type"`
	Compression string `yaml:"compression"`
}

type RaftConfig struct {
	HeartbeatIntervalMs  int    `yaml:"heartbeat_interval_ms"`
	ElectionTimeoutMinMs int    `yaml:"election_timeout_min_ms"`
	ElectionTimeoutMaxMs int    `yaml:"election_timeout_max_ms"`
	RequestTimeoutMs     int    `yaml:"request_timeout_ms"`
	CatchUpTimeoutMs     int    `yaml:"catch_up_timeout_ms"`
	SnapshotInterval     uint64 `yaml:"snapshot_interval"`
	DedupWindow          uint64 `yaml:"dedup_window"`
	ReplicationBatch     int    `yaml:"replication_batch"`
	SnapshotChunkSize    int    `yaml:"snapshot_chunk_size"`
}

type AdminConfig struct {
	// Addr 为空时不启动 admin HTTP 服务。
	Addr string `yaml:"addr"`
}

// Default 返回单机可直接运行的默认配置。
func Default() Config {
	rc := raft.DefaultConfig()
	return Config{
		Node: NodeConfig{
			Address: "127.0.0.1:8001",
			Lanes:   1,
		},
		Storage: StorageConfig{
			Type:      storage.InmemoryStorage,
			DataDir:   "raft-data",
			BatchSize: 64,
		},
		Transport: TransportConfig{
			Type: transport.GrpcTransport,
		},
		Raft: RaftConfig{
			HeartbeatIntervalMs:  int(rc.HeartbeatInterval / time.Millisecond),
			ElectionTimeoutMinMs: int(rc.ElectionTimeoutMin / time.Millisecond),
			ElectionTimeoutMaxMs: int(rc.ElectionTimeoutMax / time.Millisecond),
			RequestTimeoutMs:     int(rc.RequestTimeout / time.Millisecond),
			CatchUpTimeoutMs:     int(rc.CatchUpTimeout / time.Millisecond),
			SnapshotInterval:     rc.SnapshotInterval,
			DedupWindow:          rc.DedupWindow,
			ReplicationBatch:     rc.ReplicationBatch,
			SnapshotChunkSize:    rc.SnapshotChunkSize,
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:9001",
		},
	}
}

// Load 读取 path 处的 YAML 文件，文件中缺省的字段保留默认值。
// 文件不存在时直接返回 Default()。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[Config] %s not found, using default config", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查与 raft 参数无关的字段，raft 参数由 raft.Config.Validate 检查。
func (c Config) Validate() error {
	if c.Node.Address == "" {
		return errors.New("node.address is required")
	}
	if c.Node.Lanes <= 0 {
		return fmt.Errorf("node.lanes must be positive, got %d", c.Node.Lanes)
	}
	switch c.Storage.Type {
	case storage.InmemoryStorage:
	case storage.SimpleFileStorage, storage.BoltStorage:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for %s storage", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	return c.RaftConfig().Validate()
}

// RaftConfig 把毫秒字段转换成 raft.Config。
func (c Config) RaftConfig() raft.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return raft.Config{
		HeartbeatInterval:  ms(c.Raft.HeartbeatIntervalMs),
		ElectionTimeoutMin: ms(c.Raft.ElectionTimeoutMinMs),
		ElectionTimeoutMax: ms(c.Raft.ElectionTimeoutMaxMs),
		RequestTimeout:     ms(c.Raft.RequestTimeoutMs),
		CatchUpTimeout:     ms(c.Raft.CatchUpTimeoutMs),
		SnapshotInterval:   c.Raft.SnapshotInterval,
		DedupWindow:        c.Raft.DedupWindow,
		ReplicationBatch:   c.Raft.ReplicationBatch,
		SnapshotChunkSize:  c.Raft.SnapshotChunkSize,
	}
}
