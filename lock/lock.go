package lock

import (
	"context"
	"github.com/shimmeringbee/zigbee"
	"golang.org/x/sync/semaphore"
	"sync"
)

// Registry hands out one mutual exclusion primitive per physical device.
// Entries are created on first use and retained for the life of the
// process, so a device keeps the same lock across repeated operations.
type Registry struct {
	lock  *sync.RWMutex
	locks map[zigbee.IEEEAddress]*semaphore.Weighted
}

func NewRegistry() *Registry {
	return &Registry{
		lock:  &sync.RWMutex{},
		locks: make(map[zigbee.IEEEAddress]*semaphore.Weighted),
	}
}

func (r *Registry) semaphoreFor(addr zigbee.IEEEAddress) *semaphore.Weighted {
	r.lock.RLock()
	sem, found := r.locks[addr]
	r.lock.RUnlock()

	if found {
		return sem
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if sem, found = r.locks[addr]; !found {
		sem = semaphore.NewWeighted(1)
		r.locks[addr] = sem
	}

	return sem
}

// TryAcquire returns immediately, with ok false if another holder already
// has the device. Callers wanting an "operation already in progress" error
// rather than queuing should use this.
func (r *Registry) TryAcquire(addr zigbee.IEEEAddress) (*Guard, bool) {
	sem := r.semaphoreFor(addr)

	if !sem.TryAcquire(1) {
		return nil, false
	}

	return &Guard{sem: sem}, true
}

// Acquire blocks until the device lock is available or ctx is done.
func (r *Registry) Acquire(ctx context.Context, addr zigbee.IEEEAddress) (*Guard, error) {
	sem := r.semaphoreFor(addr)

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	return &Guard{sem: sem}, nil
}

// Guard represents a held device lock. Release is idempotent.
type Guard struct {
	sem  *semaphore.Weighted
	once sync.Once
}

func (g *Guard) Release() {
	g.once.Do(func() {
		g.sem.Release(1)
	})
}
