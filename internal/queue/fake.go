package queue

import (
	"context"
	"sync"
)

// FakeBroker is an in-memory Broker used by tests in this package and
// by the synchronizer/workerpool packages, the way the teacher's
// scheduler tests substitute a MockStore for PostgresStore/RedisStore.
type inFlightEntry struct {
	queue string
	task  Task
}

type FakeBroker struct {
	mu       sync.Mutex
	queues   map[string][]Task
	nextTag  uint64
	inFlight map[uint64]inFlightEntry
	closed   bool
}

// NewFake builds an empty FakeBroker.
func NewFake() *FakeBroker {
	return &FakeBroker{
		queues:   make(map[string][]Task),
		inFlight: make(map[uint64]inFlightEntry),
	}
}

func (f *FakeBroker) EnsureQueue(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queues[name]; !ok {
		f.queues[name] = nil
	}
	return nil
}

func (f *FakeBroker) Purge(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.queues[name])
	f.queues[name] = nil
	return n, nil
}

func (f *FakeBroker) Publish(ctx context.Context, name string, tasks []Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[name] = append(f.queues[name], tasks...)
	return nil
}

// Consume hands messages from name to the returned channel one at a
// time; prefetch is ignored. It does not block waiting for future publishes
// past what's resident when Consume is called, which is sufficient for
// the one-shot-run semantics this broker models in tests.
func (f *FakeBroker) Consume(ctx context.Context, name string, prefetch int) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			f.mu.Lock()
			q := f.queues[name]
			if len(q) == 0 {
				f.mu.Unlock()
				return
			}
			task := q[0]
			f.queues[name] = q[1:]
			f.nextTag++
			tag := f.nextTag
			f.inFlight[tag] = inFlightEntry{queue: name, task: task}
			f.mu.Unlock()

			select {
			case out <- Delivery{Tag: tag, Task: task}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *FakeBroker) Ack(tag uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, tag)
	return nil
}

func (f *FakeBroker) Nack(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.inFlight[tag]
	delete(f.inFlight, tag)
	if ok && requeue {
		f.queues[entry.queue] = append(f.queues[entry.queue], entry.task)
	}
	return nil
}

func (f *FakeBroker) MessageCount(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues[name]), nil
}

func (f *FakeBroker) Close() error { f.closed = true; return nil }
