package raft

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log"

	"github.com/xmh1011/go-multiraft/param"
)

// snapshotPayload 是快照存储中保存的内容：应用状态加上去重记录。
// 去重记录是复制状态的一部分，必须随快照一起传给新节点。
type snapshotPayload struct {
	App   []byte
	Dedup []dedupRecord
}

func encodeSnapshotPayload(p snapshotPayload) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshotPayload(data []byte) (snapshotPayload, error) {
	var p snapshotPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return snapshotPayload{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return p, nil
}

// compact 在 index 处保存快照并压缩日志：index 处的条目替换为同一 Clock 的快照标记，
// 之前的条目和快照全部删除。index 必须已经应用。
func (c *CommandLog) compact(index uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head, err := c.store.GetHeadIndex()
	if err != nil {
		return err
	}
	if index <= head {
		return nil
	}
	entry, err := c.store.GetEntry(index)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry %d missing, cannot compact", index)
	}
	members := c.votersAt(index)

	// 1. 先保存快照数据，再替换日志头
	if err := c.snapshots.SaveSnapshot(index, data); err != nil {
		return err
	}
	marker := param.Entry{
		PrevClock: entry.PrevClock,
		ThisClock: entry.ThisClock,
		Command:   param.MustEncodeCommand(param.NewSnapshotCommand(members)),
	}
	if err := c.store.InsertEntry(index, marker); err != nil {
		return err
	}

	// 2. 删除被快照覆盖的条目和旧快照
	if err := c.store.DeleteEntriesBefore(index); err != nil {
		return err
	}
	if err := c.snapshots.DeleteSnapshotsBefore(index); err != nil {
		return err
	}
	c.compactConfigs(index, members)

	log.Printf("[Snapshot] node=%s lane=%d compacted log to %d (%d bytes)", c.lane.self, c.lane.id, index, len(data))
	return nil
}

// acceptSnapshotEntryLocked 处理复制流中的快照标记：本地没有对应条目时，
// 从发送方拉取快照数据并把日志重置为以该标记开头。调用方持有 mu。
func (c *CommandLog) acceptSnapshotEntryLocked(sender param.NodeID, prev param.Clock, f param.ReplicationStreamEntry, cmd param.Command) error {
	index := f.Clock.Index
	head, err := c.store.GetHeadIndex()
	if err != nil {
		return err
	}
	if head > 0 && index < head {
		return nil
	}
	existing, err := c.store.GetEntry(index)
	if err != nil {
		return err
	}
	if existing != nil && existing.ThisClock == f.Clock {
		return nil
	}
	if index <= c.CommitIndex() {
		return fmt.Errorf("snapshot marker %s conflicts with committed log (commit=%d)", f.Clock, c.CommitIndex())
	}

	// 1. 拉取并校验快照数据
	var reply param.SnapshotReply
	req := &param.GetSnapshotRequest{LaneID: c.lane.id, Index: index}
	if err := c.lane.trans.GetSnapshot(sender, req, &reply); err != nil {
		return fmt.Errorf("fetch snapshot %d from %s: %w", index, sender, err)
	}
	data := reply.Bytes()
	if _, err := decodeSnapshotPayload(data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if err := c.snapshots.SaveSnapshot(index, data); err != nil {
		return err
	}

	// 2. 重置日志，使快照标记成为新的日志头
	last, err := c.store.GetLastIndex()
	if err != nil {
		return err
	}
	if last > 0 {
		if err := c.store.DeleteEntriesFrom(head); err != nil {
			return err
		}
	}
	marker := param.Entry{PrevClock: prev, ThisClock: f.Clock, Command: f.Command}
	if err := c.store.InsertEntry(index, marker); err != nil {
		return err
	}
	if err := c.snapshots.DeleteSnapshotsBefore(index); err != nil {
		return err
	}

	c.cfgMu.Lock()
	c.configs = []memberConfig{{index: index, members: cmd.Membership}}
	c.cfgMu.Unlock()

	c.verifiedMu.Lock()
	if c.verifiedIndex >= index {
		c.verifiedIndex = index - 1
	}
	c.verifiedMu.Unlock()

	// 快照覆盖的内容在 Leader 上已经提交
	c.advanceCommitIndex(index)
	c.lane.repl.syncTargets()

	log.Printf("[Snapshot] node=%s lane=%d installed snapshot at %s from %s", c.lane.self, c.lane.id, f.Clock, sender)
	return nil
}

// snapshotChunks 读取 index 处的快照并切分成块。
func (l *Lane) snapshotChunks(index uint64) ([]param.SnapshotChunk, error) {
	data, err := l.stores.Snapshots.ReadSnapshot(index)
	if err != nil {
		return nil, err
	}
	size := l.cfg.SnapshotChunkSize
	chunks := make([]param.SnapshotChunk, 0, len(data)/size+1)
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		chunks = append(chunks, param.SnapshotChunk{Data: data[off:end]})
	}
	if len(chunks) == 0 {
		chunks = append(chunks, param.SnapshotChunk{})
	}
	return chunks, nil
}
