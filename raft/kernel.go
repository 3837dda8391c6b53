package raft

import (
	"context"
	"errors"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/storage"
)

// dedupRecord 记录一次写请求的执行结果。
type dedupRecord struct {
	RequestID string
	Index     uint64
	Response  []byte
	Err       string
}

// dedupTable 按请求 ID 保存执行结果。记录按应用顺序追加，所以 order 同时按索引有序。
type dedupTable struct {
	mu      sync.RWMutex
	records map[string]dedupRecord
	order   []string
}

func newDedupTable() *dedupTable {
	return &dedupTable{records: make(map[string]dedupRecord)}
}

func (d *dedupTable) get(requestID string) (dedupRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[requestID]
	return rec, ok
}

func (d *dedupTable) put(rec dedupRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.records[rec.RequestID]; ok {
		return
	}
	d.records[rec.RequestID] = rec
	d.order = append(d.order, rec.RequestID)
}

// prune 删除索引早于 current-window 的记录。window 为 0 时不删除。
// 只依赖已应用的索引，所以每个副本删除的记录完全一致。
func (d *dedupTable) prune(current, window uint64) {
	if window == 0 || current <= window {
		return
	}
	cutoff := current - window
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for n < len(d.order) && d.records[d.order[n]].Index < cutoff {
		delete(d.records, d.order[n])
		n++
	}
	if n > 0 {
		d.order = append([]string(nil), d.order[n:]...)
	}
}

func (d *dedupTable) export() []dedupRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]dedupRecord, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.records[id])
	}
	return out
}

func (d *dedupTable) restore(records []dedupRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = make(map[string]dedupRecord, len(records))
	d.order = make([]string, 0, len(records))
	for _, rec := range records {
		d.records[rec.RequestID] = rec
		d.order = append(d.order, rec.RequestID)
	}
}

func (d *dedupTable) len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// KernelApplier 按索引顺序把已提交的条目应用到状态机，并负责定期快照。
type KernelApplier struct {
	lane  *Lane
	app   storage.StateMachine
	dedup *dedupTable

	snapshotRequested atomic.Bool
}

func newKernelApplier(l *Lane, app storage.StateMachine) *KernelApplier {
	return &KernelApplier{lane: l, app: app, dedup: newDedupTable()}
}

func (k *KernelApplier) requestSnapshot() {
	k.snapshotRequested.Store(true)
	k.lane.commitEvents.Push()
}

// run 消费提交事件，尽可能多地应用条目。
func (k *KernelApplier) run(ctx context.Context) {
	for {
		k.lane.commitEvents.Consume(ctx, time.Second)
		if ctx.Err() != nil {
			return
		}
		for ctx.Err() == nil {
			err := k.lane.log.AdvanceKernProcess()
			if errors.Is(err, errNothingToApply) {
				break
			}
			if err != nil {
				if !errors.Is(err, errSnapshotRequired) {
					log.Printf("[ERROR] node=%s lane=%d failed to apply: %v", k.lane.self, k.lane.id, err)
				}
				break
			}
			k.lane.kernEvents.Push()
			k.maybeSnapshot(false)
			runtime.Gosched()
		}
		if k.snapshotRequested.CompareAndSwap(true, false) {
			k.maybeSnapshot(true)
		}
	}
}

// apply 执行一条已提交的命令。应用层错误记录在去重表里，不会中断应用流程。
func (k *KernelApplier) apply(index uint64, cmd param.Command) error {
	switch cmd.Kind {
	case param.CommandSnapshot:
		data, err := k.lane.stores.Snapshots.ReadSnapshot(index)
		if err != nil {
			return err
		}
		payload, err := decodeSnapshotPayload(data)
		if err != nil {
			return err
		}
		if err := k.app.ApplySnapshot(payload.App); err != nil {
			return err
		}
		k.dedup.restore(payload.Dedup)
		log.Printf("[Kernel] node=%s lane=%d restored state from snapshot at %d", k.lane.self, k.lane.id, index)

	case param.CommandBarrier:

	case param.CommandMembership:
		// 回放旧配置时不退位，只有日志中最新的配置才决定本节点是否仍是成员
		if k.lane.log.configIndex() == index && !containsNode(cmd.Membership, k.lane.self) {
			k.lane.voter.stepDown("removed from membership")
		}

	case param.CommandWrite:
		if _, ok := k.dedup.get(cmd.RequestID); !ok {
			resp, err := k.app.Apply(index, cmd.Message)
			rec := dedupRecord{RequestID: cmd.RequestID, Index: index, Response: resp}
			if err != nil {
				rec.Err = err.Error()
			}
			k.dedup.put(rec)
		}
	}

	k.dedup.prune(index, k.lane.cfg.dedupWindow())
	return nil
}

// maybeSnapshot 在已应用条目超过 SnapshotInterval 或被显式请求时做快照。
func (k *KernelApplier) maybeSnapshot(force bool) {
	applied := k.lane.log.AppliedIndex()
	head, err := k.lane.log.store.GetHeadIndex()
	if err != nil || applied <= head {
		return
	}
	interval := k.lane.cfg.SnapshotInterval
	if !force && (interval == 0 || applied-head < interval) {
		return
	}

	app, err := k.app.GetSnapshot()
	if err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to snapshot state machine: %v", k.lane.self, k.lane.id, err)
		return
	}
	data, err := encodeSnapshotPayload(snapshotPayload{App: app, Dedup: k.dedup.export()})
	if err != nil {
		log.Printf("[ERROR] node=%s lane=%d %v", k.lane.self, k.lane.id, err)
		return
	}
	if err := k.lane.log.compact(applied, data); err != nil {
		log.Printf("[ERROR] node=%s lane=%d failed to compact log at %d: %v", k.lane.self, k.lane.id, applied, err)
	}
}
