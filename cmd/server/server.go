package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/xmh1011/go-multiraft/admin"
	"github.com/xmh1011/go-multiraft/config"
	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft"
	"github.com/xmh1011/go-multiraft/storage"
	"github.com/xmh1011/go-multiraft/storage/boltdb"
	"github.com/xmh1011/go-multiraft/storage/inmemory"
	"github.com/xmh1011/go-multiraft/storage/simplefile"
	"github.com/xmh1011/go-multiraft/transport"
)

// Server 组装一个节点运行所需的全部组件。
type Server struct {
	config    config.Config
	node      *raft.Node
	transport transport.Transport
	backend   storage.Backend
	admin     *admin.Server
}

// newBackend 根据配置创建存储后端，每个节点使用数据目录下独立的子目录。
func newBackend(cfg config.StorageConfig, nodeID param.NodeID) (storage.Backend, error) {
	nodeDir := filepath.Join(cfg.DataDir, "node-"+sanitize(nodeID))

	switch cfg.Type {
	case storage.InmemoryStorage:
		log.Println("[Storage] Using in-memory storage")
		return inmemory.NewBackend(), nil
	case storage.SimpleFileStorage:
		b, err := simplefile.NewBackend(nodeDir)
		if err != nil {
			return nil, err
		}
		log.Printf("[Storage] Using simple file storage at %s", nodeDir)
		return b, nil
	case storage.BoltStorage:
		if err := os.MkdirAll(nodeDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path := filepath.Join(nodeDir, "raft.db")
		b, err := boltdb.NewBackend(path, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		log.Printf("[Storage] Using bolt storage at %s (batch=%d)", path, cfg.BatchSize)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// sanitize 把 host:port 形式的 NodeID 转成可以作为目录名的字符串。
func sanitize(id param.NodeID) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(id)
}

// NewServer creates a new Server instance
func NewServer(cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	backend, err := newBackend(cfg.Storage, cfg.Node.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	trans, err := transport.NewTransport(cfg.Transport.Type, cfg.Node.Address, transport.Options{Compression: cfg.Transport.Compression})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}

	newApp := func(param.LaneID) storage.StateMachine { return inmemory.NewInMemoryStateMachine() }
	node, err := raft.NewNode(cfg.Node.Address, cfg.RaftConfig(), backend, trans, newApp)
	if err != nil {
		_ = trans.Close()
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create raft node: %w", err)
	}

	s := &Server{
		config:    cfg,
		node:      node,
		transport: trans,
		backend:   backend,
	}
	if cfg.Admin.Addr != "" {
		s.admin = admin.NewServer(node, cfg.Admin.Addr)
	}
	return s, nil
}

// Start 启动传输层、节点和所有 lane，需要时在空 lane 上初始化集群。
func (s *Server) Start() error {
	s.transport.RegisterRaft(s.node)
	if err := s.transport.Start(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	log.Printf("Starting %s transport service on %s", s.config.Transport.Type, s.transport.Addr())

	s.node.Start()
	for i := 0; i < s.config.Node.Lanes; i++ {
		if err := s.node.CreateLane(param.LaneID(i)); err != nil {
			return fmt.Errorf("failed to create lane %d: %w", i, err)
		}
	}

	if s.config.Node.Bootstrap {
		s.bootstrap()
	}

	if s.admin != nil {
		if err := s.admin.Start(); err != nil {
			return err
		}
	}

	log.Printf("Raft node %s started with %d lanes", s.node.ID(), s.config.Node.Lanes)
	return nil
}

// bootstrap 只对日志为空的 lane 生效，已有状态的 lane 跳过。
func (s *Server) bootstrap() {
	self := s.node.ID()
	for _, lane := range s.node.Lanes() {
		st, err := s.node.Status(lane)
		if err != nil || len(st.Members) > 0 {
			continue
		}
		if err := s.node.AddServer(&param.AddServerRequest{LaneID: lane, ServerID: self}); err != nil {
			log.Printf("[ERROR] node=%s lane=%d bootstrap failed: %v", self, lane, err)
			continue
		}
		log.Printf("[Membership] node=%s lane=%d bootstrapped", self, lane)
	}
}

// Stop stops the Raft server
func (s *Server) Stop() {
	log.Println("Shutting down...")
	if s.admin != nil {
		if err := s.admin.Stop(); err != nil {
			log.Printf("Failed to stop admin server: %v", err)
		}
	}
	s.node.Stop()
	if err := s.transport.Close(); err != nil {
		log.Printf("Failed to close transport: %v", err)
	}
	if err := s.backend.Close(); err != nil {
		log.Printf("Failed to close storage: %v", err)
	}
	log.Println("Node stopped")
}
