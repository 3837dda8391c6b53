package boltdb

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
)

func newTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raft.db")
	b, err := NewBackend(path, 16)
	require.NoError(t, err)
	return b, path
}

func testEntry(index, term uint64) param.Entry {
	return param.Entry{
		PrevClock: param.Clock{Term: term, Index: index - 1},
		ThisClock: param.Clock{Term: term, Index: index},
		Command:   []byte("cmd"),
	}
}

func TestLogStore(t *testing.T) {
	b, _ := newTestBackend(t)
	defer b.Close()

	stores, err := b.Open(0)
	require.NoError(t, err)
	s := stores.Log

	last, err := s.GetLastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last)
	e, err := s.GetEntry(1)
	require.NoError(t, err)
	assert.Nil(t, e)

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, s.InsertEntry(i, testEntry(i, 1)))
	}
	assert.ErrorIs(t, s.InsertEntry(12, testEntry(12, 1)), storage.ErrIndexOutOfRange)

	e, err = s.GetEntry(4)
	require.NoError(t, err)
	assert.Equal(t, testEntry(4, 1), *e)

	require.NoError(t, s.DeleteEntriesFrom(9))
	last, _ = s.GetLastIndex()
	assert.Equal(t, uint64(8), last)

	require.NoError(t, s.DeleteEntriesBefore(5))
	head, _ := s.GetHeadIndex()
	assert.Equal(t, uint64(5), head)
	assert.ErrorIs(t, s.DeleteEntriesBefore(20), storage.ErrIndexOutOfRange)
	assert.ErrorIs(t, s.InsertEntry(3, testEntry(3, 1)), storage.ErrIndexOutOfRange)
}

func TestConcurrentInsertsAreBatched(t *testing.T) {
	b, _ := newTestBackend(t)
	defer b.Close()

	// 每个 lane 一个写者，多个 lane 的写入共享 reaper 的事务
	const lanes, perLane = 8, 50
	var wg sync.WaitGroup
	for lane := param.LaneID(0); lane < lanes; lane++ {
		stores, err := b.Open(lane)
		require.NoError(t, err)
		wg.Add(1)
		go func(s storage.RaftLogStore) {
			defer wg.Done()
			for i := uint64(1); i <= perLane; i++ {
				assert.NoError(t, s.InsertEntry(i, testEntry(i, 1)))
			}
		}(stores.Log)
	}
	wg.Wait()

	for lane := param.LaneID(0); lane < lanes; lane++ {
		stores, err := b.Open(lane)
		require.NoError(t, err)
		last, err := stores.Log.GetLastIndex()
		require.NoError(t, err)
		assert.Equal(t, uint64(perLane), last)
	}
}

func TestBallotAndSnapshotSurviveReopen(t *testing.T) {
	b, path := newTestBackend(t)
	stores, err := b.Open(3)
	require.NoError(t, err)

	_, err = stores.Ballot.LoadBallot()
	assert.ErrorIs(t, err, storage.ErrBallotNotFound)

	require.NoError(t, stores.Ballot.SaveBallot(param.Ballot{CurTerm: 4, VotedFor: "127.0.0.1:9001"}))
	require.NoError(t, stores.Snapshots.SaveSnapshot(2, []byte("old")))
	require.NoError(t, stores.Snapshots.SaveSnapshot(7, []byte("new")))
	require.NoError(t, stores.Snapshots.DeleteSnapshotsBefore(7))
	require.NoError(t, stores.Log.InsertEntry(7, testEntry(7, 4)))
	require.NoError(t, b.Close())

	assert.ErrorIs(t, stores.Log.InsertEntry(8, testEntry(8, 4)), storage.ErrClosed)

	b2, err := NewBackend(path, 0)
	require.NoError(t, err)
	defer b2.Close()
	stores2, err := b2.Open(3)
	require.NoError(t, err)

	ballot, err := stores2.Ballot.LoadBallot()
	require.NoError(t, err)
	assert.Equal(t, param.Ballot{CurTerm: 4, VotedFor: "127.0.0.1:9001"}, ballot)

	_, err = stores2.Snapshots.ReadSnapshot(2)
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
	data, err := stores2.Snapshots.ReadSnapshot(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)

	head, _ := stores2.Log.GetHeadIndex()
	assert.Equal(t, uint64(7), head)
}
