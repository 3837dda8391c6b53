package raft

import (
	"context"
	"sync"
	"time"
)

// EventBus 是一个合并式的通知通道：多次 Push 在被消费前只保留一次。
// 生产者永远不会阻塞。
type EventBus struct {
	ch chan struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{ch: make(chan struct{}, 1)}
}

// Push 发出一次通知。
func (b *EventBus) Push() {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

// Consume 等待通知、超时或 ctx 取消，收到通知时返回 true。
func (b *EventBus) Consume(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Watermark 是一个只增不减的索引，等待者在它达到目标值时被唤醒。
type Watermark struct {
	mu      sync.Mutex
	value   uint64
	changed chan struct{}
}

func NewWatermark(initial uint64) *Watermark {
	return &Watermark{value: initial, changed: make(chan struct{})}
}

// Advance 把水位推进到 v，v 不大于当前值时什么也不做。
func (w *Watermark) Advance(v uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v <= w.value {
		return
	}
	w.value = v
	close(w.changed)
	w.changed = make(chan struct{})
}

func (w *Watermark) Value() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// Wait 阻塞直到水位不小于 v。
func (w *Watermark) Wait(ctx context.Context, v uint64) error {
	for {
		w.mu.Lock()
		if w.value >= v {
			w.mu.Unlock()
			return nil
		}
		changed := w.changed
		w.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
