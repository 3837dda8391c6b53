package raft

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
)

// memberConfig 是某个索引处生效的投票成员集合。
type memberConfig struct {
	index   uint64
	members []param.NodeID
}

// CommandLog 封装一个 lane 的日志存储，维护提交索引、已应用索引和成员配置历史。
// 日志的第一条总是快照标记，写入由 mu 串行化。
type CommandLog struct {
	lane      *Lane
	store     storage.RaftLogStore
	snapshots storage.SnapshotStore

	// mu 串行化所有日志写入。持有 mu 时可以获取 Voter.mu，反之不行
	mu sync.Mutex

	commitIndex atomic.Uint64
	kernIndex   atomic.Uint64

	cfgMu   sync.RWMutex
	configs []memberConfig // 按索引升序，最后一个是当前生效的配置（不论是否提交）

	// Follower 侧：已确认与 verifiedTerm 任期的 Leader 一致的最大索引
	verifiedMu    sync.Mutex
	verifiedTerm  uint64
	verifiedIndex uint64
}

func newCommandLog(l *Lane, store storage.RaftLogStore, snapshots storage.SnapshotStore) (*CommandLog, error) {
	c := &CommandLog{lane: l, store: store, snapshots: snapshots}

	head, err := store.GetHeadIndex()
	if err != nil {
		return nil, err
	}
	last, err := store.GetLastIndex()
	if err != nil {
		return nil, err
	}
	if last == 0 {
		return c, nil
	}

	// 从日志头的快照标记和之后的成员变更条目中恢复配置历史
	for i := head; i <= last; i++ {
		entry, err := store.GetEntry(i)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("entry %d missing in [%d, %d]", i, head, last)
		}
		cmd, err := param.DecodeCommand(entry.Command)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if cmd.Kind == param.CommandSnapshot || cmd.Kind == param.CommandMembership {
			c.configs = append(c.configs, memberConfig{index: i, members: cmd.Membership})
		}
	}

	c.commitIndex.Store(head)
	l.committed.Advance(head)
	log.Printf("[Storage] node=%s lane=%d recovered log [%d, %d], members=%v", l.self, l.id, head, last, c.Voters())
	return c, nil
}

// Tail 返回最后一条条目的 Clock，空日志返回零值。
func (c *CommandLog) Tail() (param.Clock, error) {
	last, err := c.store.GetLastIndex()
	if err != nil {
		return param.Clock{}, err
	}
	if last == 0 {
		return param.Clock{}, nil
	}
	return c.clockAt(last)
}

// clockAt 返回 index 处条目的 Clock。
func (c *CommandLog) clockAt(index uint64) (param.Clock, error) {
	if index == 0 {
		return param.Clock{}, nil
	}
	entry, err := c.store.GetEntry(index)
	if err != nil {
		return param.Clock{}, err
	}
	if entry == nil {
		return param.Clock{}, fmt.Errorf("entry %d: %w", index, errSnapshotRequired)
	}
	return entry.ThisClock, nil
}

func (c *CommandLog) CommitIndex() uint64 {
	return c.commitIndex.Load()
}

func (c *CommandLog) AppliedIndex() uint64 {
	return c.kernIndex.Load()
}

// Voters 返回当前生效的投票成员。
func (c *CommandLog) Voters() []param.NodeID {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	if len(c.configs) == 0 {
		return nil
	}
	members := c.configs[len(c.configs)-1].members
	return append([]param.NodeID(nil), members...)
}

// configIndex 返回当前生效配置所在的索引。
func (c *CommandLog) configIndex() uint64 {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	if len(c.configs) == 0 {
		return 0
	}
	return c.configs[len(c.configs)-1].index
}

// votersAt 返回 index 处生效的成员配置。
func (c *CommandLog) votersAt(index uint64) []param.NodeID {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	var members []param.NodeID
	for _, cfg := range c.configs {
		if cfg.index > index {
			break
		}
		members = cfg.members
	}
	return append([]param.NodeID(nil), members...)
}

func (c *CommandLog) pushConfig(index uint64, members []param.NodeID) {
	c.cfgMu.Lock()
	c.configs = append(c.configs, memberConfig{index: index, members: members})
	c.cfgMu.Unlock()
	log.Printf("[Membership] node=%s lane=%d config at %d: %v", c.lane.self, c.lane.id, index, members)
	c.lane.repl.syncTargets()
}

// dropConfigsFrom 丢弃 index 及之后的配置，用于日志截断。
func (c *CommandLog) dropConfigsFrom(index uint64) {
	c.cfgMu.Lock()
	kept := c.configs[:0]
	for _, cfg := range c.configs {
		if cfg.index < index {
			kept = append(kept, cfg)
		}
	}
	c.configs = kept
	c.cfgMu.Unlock()
	c.lane.repl.syncTargets()
}

// compactConfigs 在日志压缩到 index 后，只保留 index 处的配置和之后的配置。
func (c *CommandLog) compactConfigs(index uint64, members []param.NodeID) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	kept := []memberConfig{{index: index, members: members}}
	for _, cfg := range c.configs {
		if cfg.index > index {
			kept = append(kept, cfg)
		}
	}
	c.configs = kept
}

// hasUncommittedConfig 判断是否有尚未提交的成员变更。
func (c *CommandLog) hasUncommittedConfig() bool {
	return c.configIndex() > c.CommitIndex()
}

// appendCommand 以 Leader 身份在 term 任期追加一条命令，返回它的索引。
func (c *CommandLog) appendCommand(term uint64, cmd param.Command) (uint64, error) {
	data, err := param.EncodeCommand(cmd)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lane.voter.isLeaderOf(term) {
		return 0, ErrNotLeader
	}
	tail, err := c.Tail()
	if err != nil {
		return 0, err
	}
	entry := param.NewEntry(tail, term, data)
	index := entry.ThisClock.Index
	if err := c.store.InsertEntry(index, entry); err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to append entry %d: %v", c.lane.self, c.lane.id, index, err)
		return 0, err
	}
	if cmd.Kind == param.CommandMembership {
		c.pushConfig(index, cmd.Membership)
	}

	c.lane.repl.notify()
	// 单节点集群中追加即提交
	c.lane.repl.advanceLeaderCommit(term)
	return index, nil
}

// Append 追加一条命令并等待它被多数派保存（提交）。
// 等待期间失去领导权或条目被覆盖时返回 ErrNotLeader。
func (c *CommandLog) Append(ctx context.Context, cmd param.Command) (uint64, error) {
	term, ok := c.lane.voter.leaderTerm()
	if !ok {
		return 0, ErrNotLeader
	}
	index, err := c.appendCommand(term, cmd)
	if err != nil {
		return 0, err
	}
	if err := c.waitCommitted(ctx, index, term); err != nil {
		return 0, err
	}
	return index, nil
}

// waitCommitted 等待 index 提交，并确认提交的仍是 term 任期写入的条目。
func (c *CommandLog) waitCommitted(ctx context.Context, index, term uint64) error {
	if err := c.lane.committed.Wait(ctx, index); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}
	clock, err := c.clockAt(index)
	if errors.Is(err, errSnapshotRequired) {
		// 已经被压缩，说明早已提交并应用
		return nil
	}
	if err != nil {
		return err
	}
	if clock.Term != term {
		return ErrNotLeader
	}
	return nil
}

// advanceCommitIndex 单调推进提交索引并通知应用线程。
func (c *CommandLog) advanceCommitIndex(index uint64) {
	for {
		cur := c.commitIndex.Load()
		if index <= cur {
			return
		}
		if c.commitIndex.CompareAndSwap(cur, index) {
			break
		}
	}
	c.lane.committed.Advance(index)
	c.lane.commitEvents.Push()
}

// setVerified 记录已与 term 任期 Leader 确认一致的最大索引。
func (c *CommandLog) setVerified(term, index uint64) {
	c.verifiedMu.Lock()
	defer c.verifiedMu.Unlock()
	if term != c.verifiedTerm {
		c.verifiedTerm = term
		c.verifiedIndex = index
		return
	}
	if index > c.verifiedIndex {
		c.verifiedIndex = index
	}
}

// followerCommit 按 Leader 通告的提交索引推进本地提交索引，
// 但不超过已经与该 Leader 确认一致的范围。
func (c *CommandLog) followerCommit(leaderTerm, leaderCommit uint64) {
	c.verifiedMu.Lock()
	if c.verifiedTerm != leaderTerm {
		c.verifiedMu.Unlock()
		return
	}
	target := min(leaderCommit, c.verifiedIndex)
	c.verifiedMu.Unlock()
	c.advanceCommitIndex(target)
}

// truncateFromLocked 删除 index 及之后的条目，已提交的条目不允许删除。调用方持有 mu。
func (c *CommandLog) truncateFromLocked(index uint64) error {
	if index <= c.CommitIndex() {
		return fmt.Errorf("refusing to truncate committed entry %d (commit=%d)", index, c.CommitIndex())
	}
	if err := c.store.DeleteEntriesFrom(index); err != nil {
		return err
	}
	c.dropConfigsFrom(index)

	c.verifiedMu.Lock()
	if c.verifiedIndex >= index {
		c.verifiedIndex = index - 1
	}
	c.verifiedMu.Unlock()

	log.Printf("[Replication] node=%s lane=%d truncated log from %d", c.lane.self, c.lane.id, index)
	return nil
}

// AdvanceKernProcess 应用下一条已提交的条目。没有可应用的条目时返回 errNothingToApply。
// 应用失败时不产生任何副作用，下次调用会重试同一条目。
func (c *CommandLog) AdvanceKernProcess() error {
	applied := c.kernIndex.Load()
	commit := c.commitIndex.Load()
	if applied >= commit {
		return errNothingToApply
	}

	next := applied + 1
	head, err := c.store.GetHeadIndex()
	if err != nil {
		return err
	}
	// 之前的条目已经压缩进了快照，从日志头的快照标记开始
	if next < head {
		next = head
	}
	if next > commit {
		return errNothingToApply
	}

	entry, err := c.store.GetEntry(next)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry %d: %w", next, errSnapshotRequired)
	}
	cmd, err := param.DecodeCommand(entry.Command)
	if err != nil {
		return fmt.Errorf("entry %d: %w", next, err)
	}
	if err := c.lane.kernel.apply(next, cmd); err != nil {
		return err
	}

	c.kernIndex.Store(next)
	c.lane.applied.Advance(next)
	return nil
}
