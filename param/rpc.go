package param

// VoteRequest 定义 RequestVote RPC 请求
type VoteRequest struct {
	LaneID         LaneID
	VoteTerm       uint64 // 候选人请求的任期（预投票时为 cur_term+1）
	CandidateID    NodeID
	CandidateClock Clock // 候选人日志尾部
	ForceVote      bool  // 由 TimeoutNow 触发，跳过日志新旧检查
	PreVote        bool  // 仅探测可行性，不修改任何状态
}

func NewVoteRequest(lane LaneID, term uint64, candidate NodeID, clock Clock, force, preVote bool) *VoteRequest {
	return &VoteRequest{
		LaneID:         lane,
		VoteTerm:       term,
		CandidateID:    candidate,
		CandidateClock: clock,
		ForceVote:      force,
		PreVote:        preVote,
	}
}

// VoteResponse 定义 RequestVote RPC 响应
type VoteResponse struct {
	VoteGranted bool
}

// ReplicationStreamHeader opens a replication stream for one lane.
type ReplicationStreamHeader struct {
	LaneID     LaneID
	SenderID   NodeID
	SenderTerm uint64 // leader's term, streams from older terms are rejected
	PrevClock  Clock  // continuity point the first entry must follow
}

// ReplicationStreamEntry is one entry frame of a replication stream.
type ReplicationStreamEntry struct {
	Clock   Clock
	Command []byte
}

// ReplicationStream is a whole client-streaming call: one header and its entry frames.
type ReplicationStream struct {
	Header  ReplicationStreamHeader
	Entries []ReplicationStreamEntry
}

// ReplicationStreamResponse reports what the follower accepted.
type ReplicationStreamResponse struct {
	NInserted    uint64
	LogLastIndex uint64
}

// GetSnapshotRequest asks for the snapshot stored at Index.
type GetSnapshotRequest struct {
	LaneID LaneID
	Index  uint64
}

// SnapshotChunk is one frame of a snapshot stream.
type SnapshotChunk struct {
	Data []byte
}

// SnapshotReply collects all chunks of a snapshot stream.
type SnapshotReply struct {
	Chunks []SnapshotChunk
}

// Bytes joins all chunk payloads.
func (r *SnapshotReply) Bytes() []byte {
	size := 0
	for _, c := range r.Chunks {
		size += len(c.Data)
	}
	data := make([]byte, 0, size)
	for _, c := range r.Chunks {
		data = append(data, c.Data...)
	}
	return data
}

// LeaderCommitState is the per-lane part of a heartbeat.
type LeaderCommitState struct {
	LeaderTerm        uint64
	LeaderCommitIndex uint64
}

// Heartbeat batches every lane the sender leads toward one peer.
type Heartbeat struct {
	LeaderID           NodeID
	LeaderCommitStates map[LaneID]LeaderCommitState
}

// NewHeartbeat creates an empty heartbeat from leader.
func NewHeartbeat(leader NodeID) *Heartbeat {
	return &Heartbeat{
		LeaderID:           leader,
		LeaderCommitStates: make(map[LaneID]LeaderCommitState),
	}
}

// HeartbeatResponse returns the receiver's term for every lane it processed.
type HeartbeatResponse struct {
	Terms map[LaneID]uint64
}

// TimeoutNow forces the receiver to start an election for LaneID.
type TimeoutNow struct {
	LaneID LaneID
}

// AddServerRequest adds ServerID to the lane's membership.
type AddServerRequest struct {
	LaneID   LaneID
	ServerID NodeID
}

// RemoveServerRequest removes ServerID from the lane's membership.
type RemoveServerRequest struct {
	LaneID   LaneID
	ServerID NodeID
}
