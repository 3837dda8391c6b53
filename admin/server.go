package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = 5 * time.Second
)

// raftNode 是 admin 服务使用的 raft.Node 方法子集。
type raftNode interface {
	ID() param.NodeID
	Lanes() []param.LaneID
	Status(lane param.LaneID) (raft.LaneStatus, error)
	AddServer(args *param.AddServerRequest) error
	RemoveServer(args *param.RemoveServerRequest) error
	ProcessKernRequest(args *param.KernRequest) error
	SendTimeoutNow(args *param.TimeoutNow) error
	RequestSnapshot(lane param.LaneID) error
}

// Server 提供节点的 HTTP 管理接口。
type Server struct {
	node       raftNode
	addr       string
	httpServer *http.Server
}

type errorResponse struct {
	Error  string       `json:"error"`
	Leader param.NodeID `json:"leader,omitempty"`
}

type okResponse struct {
	Status string `json:"status"`
}

// NewServer 创建监听 addr 的管理服务，调用 Start 后才开始监听。
func NewServer(node raftNode, addr string) *Server {
	return &Server{node: node, addr: addr}
}

// Handler 返回路由，便于测试直接使用。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Route("/lanes", func(r chi.Router) {
		r.Get("/", s.handleListLanes)
		r.Route("/{lane}", func(r chi.Router) {
			r.Get("/", s.handleLaneStatus)
			r.Post("/servers/{server}", s.handleAddServer)
			r.Delete("/servers/{server}", s.handleRemoveServer)
			r.Post("/timeout-now", s.handleTimeoutNow)
			r.Post("/snapshot", s.handleSnapshot)
		})
	})
	return r
}

// Start 在后台启动 HTTP 服务。
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Admin] node=%s http server error: %v", s.node.ID(), err)
		}
	}()

	log.Printf("[Admin] node=%s listening on %s", s.node.ID(), s.addr)
	return nil
}

// Stop 优雅关闭 HTTP 服务。
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown admin server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"node":   s.node.ID(),
	})
}

func (s *Server) handleListLanes(w http.ResponseWriter, _ *http.Request) {
	lanes := s.node.Lanes()
	statuses := make([]raft.LaneStatus, 0, len(lanes))
	for _, id := range lanes {
		st, err := s.node.Status(id)
		if err != nil {
			// lane 可能在遍历期间被移除
			continue
		}
		statuses = append(statuses, st)
	}
	s.writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleLaneStatus(w http.ResponseWriter, r *http.Request) {
	lane, ok := s.laneParam(w, r)
	if !ok {
		return
	}
	st, err := s.node.Status(lane)
	if err != nil {
		s.writeError(w, lane, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	s.changeMembership(w, r, param.KernAddServer)
}

func (s *Server) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	s.changeMembership(w, r, param.KernRemoveServer)
}

// changeMembership 默认同步等待变更提交；?async=true 时通过 ProcessKernRequest 投递后立即返回。
func (s *Server) changeMembership(w http.ResponseWriter, r *http.Request, op param.KernOp) {
	lane, ok := s.laneParam(w, r)
	if !ok {
		return
	}
	server := chi.URLParam(r, "server")
	if server == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing server"})
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		req, err := param.NewKernRequest(lane, param.KernRequestBody{Op: op, ServerID: server})
		if err != nil {
			s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		if err := s.node.ProcessKernRequest(req); err != nil {
			s.writeError(w, lane, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, okResponse{Status: "accepted"})
		return
	}

	var err error
	if op == param.KernAddServer {
		err = s.node.AddServer(&param.AddServerRequest{LaneID: lane, ServerID: server})
	} else {
		err = s.node.RemoveServer(&param.RemoveServerRequest{LaneID: lane, ServerID: server})
	}
	if err != nil {
		s.writeError(w, lane, err)
		return
	}
	log.Printf("[Admin] node=%s lane=%d membership op %d for %s committed", s.node.ID(), lane, op, server)
	s.writeJSON(w, http.StatusOK, okResponse{Status: "committed"})
}

func (s *Server) handleTimeoutNow(w http.ResponseWriter, r *http.Request) {
	lane, ok := s.laneParam(w, r)
	if !ok {
		return
	}
	if err := s.node.SendTimeoutNow(&param.TimeoutNow{LaneID: lane}); err != nil {
		s.writeError(w, lane, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, okResponse{Status: "campaigning"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	lane, ok := s.laneParam(w, r)
	if !ok {
		return
	}
	if err := s.node.RequestSnapshot(lane); err != nil {
		s.writeError(w, lane, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, okResponse{Status: "scheduled"})
}

func (s *Server) laneParam(w http.ResponseWriter, r *http.Request) (param.LaneID, bool) {
	raw := chi.URLParam(r, "lane")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid lane %q", raw)})
		return 0, false
	}
	return param.LaneID(id), true
}

// writeError 把 raft 的哨兵错误映射为 HTTP 状态码。
func (s *Server) writeError(w http.ResponseWriter, lane param.LaneID, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, raft.ErrLaneNotFound):
		status = http.StatusNotFound
	case errors.Is(err, raft.ErrMalformedRequest):
		status = http.StatusBadRequest
	case errors.Is(err, raft.ErrNotLeader):
		status = http.StatusConflict
		if st, serr := s.node.Status(lane); serr == nil {
			resp.Leader = st.Leader
		}
	case errors.Is(err, raft.ErrMembershipChangeInProgress), errors.Is(err, raft.ErrLogBehind):
		status = http.StatusConflict
	case errors.Is(err, raft.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[Admin] error encoding response: %v", err)
	}
}
