package inmemory

import (
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
)

type entryMap = skipmap.FuncMap[uint64, param.Entry]

// LogStore 是 RaftLogStore 的内存实现，主要用于测试和单进程集群。
// 条目保存在有序跳表中，读操作无需加锁，可以与压缩并发进行。
type LogStore struct {
	mu      sync.Mutex // 串行化写操作
	entries *entryMap

	// head/last 为 0 表示日志为空
	head atomic.Uint64
	last atomic.Uint64
}

// NewLogStore 创建一个空的内存日志。
func NewLogStore() *LogStore {
	return &LogStore{
		entries: skipmap.NewFunc[uint64, param.Entry](func(a, b uint64) bool {
			return a < b
		}),
	}
}

func (s *LogStore) InsertEntry(index uint64, entry param.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, last := s.head.Load(), s.last.Load()
	if last == 0 {
		if index == 0 {
			return storage.ErrIndexOutOfRange
		}
		s.entries.Store(index, entry)
		s.head.Store(index)
		s.last.Store(index)
		return nil
	}

	if index < head || index > last+1 {
		return storage.ErrIndexOutOfRange
	}
	s.entries.Store(index, entry)
	if index == last+1 {
		s.last.Store(index)
	}
	return nil
}

func (s *LogStore) DeleteEntriesBefore(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, last := s.head.Load(), s.last.Load()
	if last == 0 || index <= head {
		return nil
	}
	if index > last {
		return storage.ErrIndexOutOfRange
	}

	// 先前移 head，读者不会再访问被删除的区间
	s.head.Store(index)
	for i := head; i < index; i++ {
		s.entries.Delete(i)
	}
	return nil
}

func (s *LogStore) DeleteEntriesFrom(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, last := s.head.Load(), s.last.Load()
	if last == 0 || index > last {
		return nil
	}
	if index <= head {
		s.head.Store(0)
		s.last.Store(0)
		index = head
	} else {
		s.last.Store(index - 1)
	}
	for i := index; i <= last; i++ {
		s.entries.Delete(i)
	}
	return nil
}

func (s *LogStore) GetEntry(index uint64) (*param.Entry, error) {
	entry, ok := s.entries.Load(index)
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *LogStore) GetHeadIndex() (uint64, error) {
	return s.head.Load(), nil
}

func (s *LogStore) GetLastIndex() (uint64, error) {
	return s.last.Load(), nil
}

// Len returns the number of stored entries.
func (s *LogStore) Len() int {
	return s.entries.Len()
}

// BallotStore 是 RaftBallotStore 的内存实现。
type BallotStore struct {
	mu     sync.RWMutex
	ballot *param.Ballot
}

func NewBallotStore() *BallotStore {
	return &BallotStore{}
}

func (s *BallotStore) SaveBallot(ballot param.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := ballot
	s.ballot = &b
	return nil
}

func (s *BallotStore) LoadBallot() (param.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ballot == nil {
		return param.Ballot{}, storage.ErrBallotNotFound
	}
	return *s.ballot, nil
}

// SnapshotStore 是 SnapshotStore 的内存实现。
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[uint64][]byte
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[uint64][]byte)}
}

func (s *SnapshotStore) SaveSnapshot(index uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[index] = append([]byte(nil), data...)
	return nil
}

func (s *SnapshotStore) ReadSnapshot(index uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.snapshots[index]
	if !ok {
		return nil, storage.ErrSnapshotNotFound
	}
	return data, nil
}

func (s *SnapshotStore) DeleteSnapshotsBefore(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshots {
		if i < index {
			delete(s.snapshots, i)
		}
	}
	return nil
}

// Backend 为每个 lane 保存一组内存存储。重复 Open 同一个 lane 返回同一组存储，
// 因此测试可以用同一个 Backend 模拟节点重启。
type Backend struct {
	mu    sync.Mutex
	lanes map[param.LaneID]storage.LaneStores
}

// NewBackend 创建一个新的内存 Backend。
func NewBackend() *Backend {
	return &Backend{lanes: make(map[param.LaneID]storage.LaneStores)}
}

func (b *Backend) Open(lane param.LaneID) (storage.LaneStores, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if stores, ok := b.lanes[lane]; ok {
		return stores, nil
	}
	stores := storage.LaneStores{
		Log:       NewLogStore(),
		Ballot:    NewBallotStore(),
		Snapshots: NewSnapshotStore(),
	}
	b.lanes[lane] = stores
	return stores, nil
}

// Close 在内存实现中是无操作的。
func (b *Backend) Close() error {
	return nil
}
