package boltdb

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
)

const defaultBatchSize = 128

var ballotKey = []byte("ballot")

// insertOp 是排队等待 reaper 批量提交的一次写入。
type insertOp struct {
	lane  param.LaneID
	index uint64
	data  []byte
	done  chan error
}

// Backend stores every lane in one bbolt database. Each lane owns the buckets
// log-{lane}, ballot-{lane} and snapshot-{lane}.
//
// Log inserts are handed to a single reaper goroutine that commits everything
// queued so far in one write transaction; every insert is acknowledged only
// after that transaction has committed.
type Backend struct {
	db        *bolt.DB
	batchSize int

	queue   chan *insertOp
	closing chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewBackend opens (or creates) the database at path.
func NewBackend(path string, batchSize int) (*Backend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	b := &Backend{
		db:        db,
		batchSize: batchSize,
		queue:     make(chan *insertOp),
		closing:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.reaper()
	return b, nil
}

func logBucket(lane param.LaneID) []byte      { return []byte(fmt.Sprintf("log-%d", lane)) }
func ballotBucket(lane param.LaneID) []byte   { return []byte(fmt.Sprintf("ballot-%d", lane)) }
func snapshotBucket(lane param.LaneID) []byte { return []byte(fmt.Sprintf("snapshot-%d", lane)) }

func encodeKey(index uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, index)
	return k
}

func decodeKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}

func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValue(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Open creates the lane's buckets if they do not exist yet.
func (b *Backend) Open(lane param.LaneID) (storage.LaneStores, error) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{logBucket(lane), ballotBucket(lane), snapshotBucket(lane)} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storage.LaneStores{}, fmt.Errorf("create buckets for lane %d: %w", lane, err)
	}
	s := &laneStore{backend: b, lane: lane}
	return storage.LaneStores{Log: s, Ballot: s, Snapshots: s}, nil
}

// Close stops the reaper and closes the database. Inserts racing Close fail
// with storage.ErrClosed and are never partially written.
func (b *Backend) Close() error {
	var err error
	b.once.Do(func() {
		close(b.closing)
		b.wg.Wait()
		err = b.db.Close()
	})
	return err
}

func (b *Backend) reaper() {
	defer b.wg.Done()
	for {
		select {
		case <-b.closing:
			return
		case op := <-b.queue:
			batch := []*insertOp{op}
		drain:
			for len(batch) < b.batchSize {
				select {
				case next := <-b.queue:
					batch = append(batch, next)
				default:
					break drain
				}
			}
			b.commit(batch)
		}
	}
}

// commit writes batch in one transaction. Per-op validation failures do not
// abort the transaction; they are reported to the op that caused them.
func (b *Backend) commit(batch []*insertOp) {
	results := make([]error, len(batch))
	err := b.db.Update(func(tx *bolt.Tx) error {
		for i, op := range batch {
			bucket := tx.Bucket(logBucket(op.lane))
			if bucket == nil {
				results[i] = fmt.Errorf("lane %d not opened", op.lane)
				continue
			}
			head, last := bounds(bucket)
			if op.index == 0 || (last != 0 && (op.index < head || op.index > last+1)) {
				results[i] = storage.ErrIndexOutOfRange
				continue
			}
			if err := bucket.Put(encodeKey(op.index), op.data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[Storage] bolt batch of %d inserts failed: %v", len(batch), err)
	}
	for i, op := range batch {
		if err != nil {
			op.done <- err
			continue
		}
		op.done <- results[i]
	}
}

// bounds 返回 bucket 中最小和最大的索引，空 bucket 返回 0, 0。
func bounds(bucket *bolt.Bucket) (head, last uint64) {
	c := bucket.Cursor()
	if k, _ := c.First(); k != nil {
		head = decodeKey(k)
	}
	if k, _ := c.Last(); k != nil {
		last = decodeKey(k)
	}
	return head, last
}

type laneStore struct {
	backend *Backend
	lane    param.LaneID
}

func (s *laneStore) InsertEntry(index uint64, entry param.Entry) error {
	data, err := encodeValue(entry)
	if err != nil {
		return fmt.Errorf("encode entry %d: %w", index, err)
	}
	op := &insertOp{lane: s.lane, index: index, data: data, done: make(chan error, 1)}
	select {
	case s.backend.queue <- op:
	case <-s.backend.closing:
		return storage.ErrClosed
	}
	return <-op.done
}

func (s *laneStore) DeleteEntriesBefore(index uint64) error {
	return s.backend.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logBucket(s.lane))
		head, last := bounds(bucket)
		if last == 0 || index <= head {
			return nil
		}
		if index > last {
			return storage.ErrIndexOutOfRange
		}
		return deleteRange(bucket, head, index)
	})
}

func (s *laneStore) DeleteEntriesFrom(index uint64) error {
	return s.backend.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logBucket(s.lane))
		head, last := bounds(bucket)
		if last == 0 || index > last {
			return nil
		}
		if index < head {
			index = head
		}
		return deleteRange(bucket, index, last+1)
	})
}

// deleteRange 删除 [from, to) 区间内的键。先收集再删除，避免游标在删除时跳过元素。
func deleteRange(bucket *bolt.Bucket, from, to uint64) error {
	var keys [][]byte
	c := bucket.Cursor()
	for k, _ := c.Seek(encodeKey(from)); k != nil && decodeKey(k) < to; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *laneStore) GetEntry(index uint64) (*param.Entry, error) {
	var entry *param.Entry
	err := s.backend.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(logBucket(s.lane)).Get(encodeKey(index))
		if data == nil {
			return nil
		}
		var e param.Entry
		if err := decodeValue(data, &e); err != nil {
			return fmt.Errorf("decode entry %d: %w", index, err)
		}
		entry = &e
		return nil
	})
	return entry, err
}

func (s *laneStore) GetHeadIndex() (uint64, error) {
	var head uint64
	err := s.backend.db.View(func(tx *bolt.Tx) error {
		head, _ = bounds(tx.Bucket(logBucket(s.lane)))
		return nil
	})
	return head, err
}

func (s *laneStore) GetLastIndex() (uint64, error) {
	var last uint64
	err := s.backend.db.View(func(tx *bolt.Tx) error {
		_, last = bounds(tx.Bucket(logBucket(s.lane)))
		return nil
	})
	return last, err
}

func (s *laneStore) SaveBallot(ballot param.Ballot) error {
	data, err := encodeValue(ballot)
	if err != nil {
		return err
	}
	return s.backend.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ballotBucket(s.lane)).Put(ballotKey, data)
	})
}

func (s *laneStore) LoadBallot() (param.Ballot, error) {
	var ballot param.Ballot
	err := s.backend.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(ballotBucket(s.lane)).Get(ballotKey)
		if data == nil {
			return storage.ErrBallotNotFound
		}
		return decodeValue(data, &ballot)
	})
	return ballot, err
}

func (s *laneStore) SaveSnapshot(index uint64, data []byte) error {
	return s.backend.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket(s.lane)).Put(encodeKey(index), data)
	})
}

func (s *laneStore) ReadSnapshot(index uint64) ([]byte, error) {
	var out []byte
	err := s.backend.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(snapshotBucket(s.lane)).Get(encodeKey(index))
		if data == nil {
			return storage.ErrSnapshotNotFound
		}
		// bolt 返回的切片只在事务内有效
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

func (s *laneStore) DeleteSnapshotsBefore(index uint64) error {
	return s.backend.db.Update(func(tx *bolt.Tx) error {
		return deleteRange(tx.Bucket(snapshotBucket(s.lane)), 0, index)
	})
}
