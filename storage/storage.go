package storage

import (
	"errors"

	"github.com/xmh1011/go-multiraft/param"
)

const (
	InmemoryStorage   = "inmemory"
	SimpleFileStorage = "simplefile"
	BoltStorage       = "bolt"
)

var (
	// ErrBallotNotFound 表示该 lane 从未持久化过选票。
	ErrBallotNotFound = errors.New("no ballot")
	// ErrIndexOutOfRange 表示写入或压缩会破坏日志索引的连续性。
	ErrIndexOutOfRange = errors.New("log index out of range")
	// ErrSnapshotNotFound 表示指定索引处没有快照。
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("storage closed")
)

// RaftLogStore 是单个 lane 的日志持久化接口。
// 存储的索引始终构成连续区间 [GetHeadIndex(), GetLastIndex()]。
type RaftLogStore interface {
	// InsertEntry 以 upsert 语义写入 index 处的条目。
	// 非空日志只接受 [head, last+1] 范围内的索引。
	InsertEntry(index uint64, entry param.Entry) error

	// DeleteEntriesBefore 删除 index 之前的所有条目（日志压缩）。
	DeleteEntriesBefore(index uint64) error

	// DeleteEntriesFrom 删除 index 及之后的所有条目（冲突截断）。
	DeleteEntriesFrom(index uint64) error

	// GetEntry 返回 index 处的条目，不存在时返回 nil, nil。
	GetEntry(index uint64) (*param.Entry, error)

	// GetHeadIndex 返回第一条条目的索引，空日志返回 0。
	GetHeadIndex() (uint64, error)

	// GetLastIndex 返回最后一条条目的索引，空日志返回 0。
	GetLastIndex() (uint64, error)
}

// RaftBallotStore 是单个 lane 的选票持久化接口。
type RaftBallotStore interface {
	SaveBallot(ballot param.Ballot) error
	// LoadBallot 在从未保存过选票时返回 ErrBallotNotFound。
	LoadBallot() (param.Ballot, error)
}

// SnapshotStore 保存按索引区分的应用状态快照。
type SnapshotStore interface {
	SaveSnapshot(index uint64, data []byte) error
	// ReadSnapshot 在 index 处没有快照时返回 ErrSnapshotNotFound。
	ReadSnapshot(index uint64) ([]byte, error)
	DeleteSnapshotsBefore(index uint64) error
}

// LaneStores groups the stores that belong to one lane.
type LaneStores struct {
	Log       RaftLogStore
	Ballot    RaftBallotStore
	Snapshots SnapshotStore
}

// Backend hands out per-lane stores. Opening the same lane twice returns stores
// over the same persisted data.
type Backend interface {
	Open(lane param.LaneID) (LaneStores, error)
	Close() error
}

// StateMachine 定义了应用层状态机需要实现的接口。
// 命令内容对共识层是不透明的字节。
type StateMachine interface {
	// Apply 执行一条已提交的写命令并返回结果。index 严格递增。
	Apply(index uint64, message []byte) ([]byte, error)

	// Read 执行一次只读查询。
	Read(message []byte) ([]byte, error)

	// GetSnapshot 序列化当前全部状态。
	GetSnapshot() ([]byte, error)

	// ApplySnapshot 用快照完全覆盖当前状态。
	ApplySnapshot(snapshot []byte) error
}
