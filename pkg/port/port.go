// Package port implements the in-process TCP port allocator: the sole
// arbiter of which ports this node's forked children may bind to. It
// never probes the operating system; it only tracks what it has itself
// handed out.
package port

import (
	"fmt"
	"sync"
)

// Pool hands out and reclaims ports from a monotonic range starting
// at a configured low-water mark. All operations are serialized by a
// single mutex; the pool is the only authority on what is "in use".
type Pool struct {
	mu        sync.Mutex
	startPort int
	next      int
	used      map[int]struct{}
}

// NewPool creates a Pool that scans upward from startPort.
func NewPool(startPort int) *Pool {
	return &Pool{
		startPort: startPort,
		next:      startPort,
		used:      make(map[int]struct{}),
	}
}

// FindUnusedPort returns a port >= startPort not currently held and
// marks it used. Exhaustion is a programming error, not a condition
// this pool is designed to recover from: it panics rather than
// looping forever or silently hanging.
func (p *Pool) FindUnusedPort() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveLocked()
}

// FindTwoConsecutiveUnusedPorts returns (p, p+1), both free, and
// reserves them atomically with respect to every other Pool method.
func (p *Pool) FindTwoConsecutiveUnusedPorts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidate := p.startPort
	for {
		if candidate-p.startPort > maxScan {
			panic(fmt.Sprintf("port pool exhausted scanning for a consecutive pair from %d", p.startPort))
		}
		_, aUsed := p.used[candidate]
		_, bUsed := p.used[candidate+1]
		if !aUsed && !bUsed {
			p.used[candidate] = struct{}{}
			p.used[candidate+1] = struct{}{}
			// Only move next when no free port lies below the pair;
			// otherwise FindUnusedPort would skip that free port.
			if candidate <= p.next {
				p.advanceNextLocked(candidate + 2)
			}
			return candidate, candidate + 1
		}
		candidate++
	}
}

// MarkPortUnused returns port to the pool so it can be handed out
// again. Returning a port that was never reserved, or returning it
// twice, is a caller bug; both are no-ops here rather than panics,
// since cleanup paths must be able to call this unconditionally.
func (p *Pool) MarkPortUnused(portNum int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.used, portNum)
	if portNum >= p.startPort && portNum < p.next {
		p.next = portNum
	}
}

// InUse reports how many ports the pool currently considers held.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.used)
}

// maxScan bounds how far a single allocation will scan before giving
// up and panicking; it is generous enough that only genuine
// exhaustion (or a misconfigured startPort) trips it.
const maxScan = 1 << 20

func (p *Pool) reserveLocked() int {
	candidate := p.next
	scanned := 0
	for {
		if _, ok := p.used[candidate]; !ok {
			p.used[candidate] = struct{}{}
			p.advanceNextLocked(candidate + 1)
			return candidate
		}
		candidate++
		scanned++
		if scanned > maxScan {
			panic(fmt.Sprintf("port pool exhausted scanning from %d", p.startPort))
		}
	}
}

// advanceNextLocked moves the low-water mark past a reservation.
// MarkPortUnused rewinds it, so scanning from next always lands on the
// lowest free port at or above startPort.
func (p *Pool) advanceNextLocked(candidate int) {
	if candidate > p.next {
		p.next = candidate
	}
}
