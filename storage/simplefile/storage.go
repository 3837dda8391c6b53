package simplefile

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
)

// LaneStore implements a simple file-based storage for one lane.
// It persists the entire lane state to a file on every write operation using encoding/gob.
// The file is replaced atomically, so a crash leaves either the old or the new state.
type LaneStore struct {
	mu       sync.RWMutex
	filePath string

	// In-memory cache of the state
	ballot    *param.Ballot
	head      uint64
	log       []param.Entry // log[i] has index head+i
	snapshots map[uint64][]byte
}

// persistentData is the structure used for serialization.
type persistentData struct {
	Ballot    *param.Ballot
	Head      uint64
	Log       []param.Entry
	Snapshots map[uint64][]byte
}

// NewLaneStore opens (or creates) the lane file at filePath.
func NewLaneStore(filePath string) (*LaneStore, error) {
	s := &LaneStore{
		filePath:  filePath,
		snapshots: make(map[uint64][]byte),
	}

	if err := s.load(); err != nil {
		// If file does not exist, initialize it
		if os.IsNotExist(err) {
			if err := s.persist(); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	return s, nil
}

func (s *LaneStore) load() error {
	f, err := os.Open(s.filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var data persistentData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return fmt.Errorf("decode %s: %w", s.filePath, err)
	}

	s.ballot = data.Ballot
	s.head = data.Head
	s.log = data.Log
	if data.Snapshots != nil {
		s.snapshots = data.Snapshots
	}
	return nil
}

func (s *LaneStore) persist() error {
	data := persistentData{
		Ballot:    s.ballot,
		Head:      s.head,
		Log:       s.log,
		Snapshots: s.snapshots,
	}

	// Write to temp file and rename for atomicity
	tmpPath := s.filePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(f).Encode(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.filePath)
}

func (s *LaneStore) lastIndex() uint64 {
	if len(s.log) == 0 {
		return 0
	}
	return s.head + uint64(len(s.log)) - 1
}

// --- Log Entry Operations ---

func (s *LaneStore) InsertEntry(index uint64, entry param.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(s.log) == 0:
		if index == 0 {
			return storage.ErrIndexOutOfRange
		}
		s.head = index
		s.log = []param.Entry{entry}
	case index < s.head || index > s.lastIndex()+1:
		return storage.ErrIndexOutOfRange
	case index == s.lastIndex()+1:
		s.log = append(s.log, entry)
	default:
		s.log[index-s.head] = entry
	}
	return s.persist()
}

func (s *LaneStore) DeleteEntriesBefore(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.log) == 0 || index <= s.head {
		return nil
	}
	if index > s.lastIndex() {
		return storage.ErrIndexOutOfRange
	}

	s.log = append([]param.Entry(nil), s.log[index-s.head:]...)
	s.head = index
	return s.persist()
}

func (s *LaneStore) DeleteEntriesFrom(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.log) == 0 || index > s.lastIndex() {
		return nil
	}
	if index <= s.head {
		s.log = nil
		s.head = 0
	} else {
		s.log = s.log[:index-s.head]
	}
	return s.persist()
}

func (s *LaneStore) GetEntry(index uint64) (*param.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.log) == 0 || index < s.head || index > s.lastIndex() {
		return nil, nil
	}
	entry := s.log[index-s.head]
	return &entry, nil
}

func (s *LaneStore) GetHeadIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) == 0 {
		return 0, nil
	}
	return s.head, nil
}

func (s *LaneStore) GetLastIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIndex(), nil
}

// --- Ballot Operations ---

func (s *LaneStore) SaveBallot(ballot param.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := ballot
	s.ballot = &b
	return s.persist()
}

func (s *LaneStore) LoadBallot() (param.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ballot == nil {
		return param.Ballot{}, storage.ErrBallotNotFound
	}
	return *s.ballot, nil
}

// --- Snapshot Operations ---

func (s *LaneStore) SaveSnapshot(index uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[index] = append([]byte(nil), data...)
	return s.persist()
}

func (s *LaneStore) ReadSnapshot(index uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.snapshots[index]
	if !ok {
		return nil, storage.ErrSnapshotNotFound
	}
	return data, nil
}

func (s *LaneStore) DeleteSnapshotsBefore(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshots {
		if i < index {
			delete(s.snapshots, i)
		}
	}
	return s.persist()
}

// Backend keeps one gob file per lane under dir.
type Backend struct {
	mu    sync.Mutex
	dir   string
	lanes map[param.LaneID]*LaneStore
}

// NewBackend creates the directory if needed.
func NewBackend(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Backend{dir: dir, lanes: make(map[param.LaneID]*LaneStore)}, nil
}

func (b *Backend) Open(lane param.LaneID) (storage.LaneStores, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.lanes[lane]
	if !ok {
		var err error
		s, err = NewLaneStore(filepath.Join(b.dir, fmt.Sprintf("lane-%d.gob", lane)))
		if err != nil {
			return storage.LaneStores{}, err
		}
		b.lanes[lane] = s
	}
	return storage.LaneStores{Log: s, Ballot: s, Snapshots: s}, nil
}

func (b *Backend) Close() error {
	return nil
}
