package param

import "fmt"

// LaneID 标识一个独立进行共识的 Raft 组。
type LaneID = uint32

// NodeID 是服务进程的标识，同时也是它的拨号地址（host:port）。
type NodeID = string

// State 定义节点在某个 lane 中的角色
type State int

const (
	Follower State = iota
	PreCandidate
	Candidate
	Leader
)

func (s State) String() string {
	switch s {
	case Follower:
		return "Follower"
	case PreCandidate:
		return "PreCandidate"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// Clock 标识日志中的一个位置。
type Clock struct {
	Term  uint64 // 产生该条目的任期
	Index uint64 // 日志索引，从 1 开始
}

// Less 按 (term, index) 字典序比较，用于判断候选人的日志是否落后。
func (c Clock) Less(other Clock) bool {
	if c.Term != other.Term {
		return c.Term < other.Term
	}
	return c.Index < other.Index
}

func (c Clock) String() string {
	return fmt.Sprintf("(%d,%d)", c.Term, c.Index)
}

// Ballot 是每个 lane 持久化的选举记录。VotedFor 为空字符串表示本任期尚未投票。
type Ballot struct {
	CurTerm  uint64
	VotedFor NodeID
}

// NewBallot creates a Ballot for the given term with no vote cast.
func NewBallot(term uint64) Ballot {
	return Ballot{CurTerm: term}
}
