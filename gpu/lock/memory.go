package lock

import "sync"

// MemoryExclusivity is an in-process Exclusivity, for tests and single
// process deployments.
type MemoryExclusivity struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryExclusivity() *MemoryExclusivity {
	return &MemoryExclusivity{slots: make(map[string]chan struct{})}
}

func (m *MemoryExclusivity) slot(name string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[name]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[name] = s
	}
	return s
}

func (m *MemoryExclusivity) AcquireExclusive(name string) (Guard, error) {
	s := m.slot(name)
	s <- struct{}{}
	return &memoryGuard{slot: s}, nil
}

func (m *MemoryExclusivity) TryAcquireExclusive(name string) (Guard, bool, error) {
	s := m.slot(name)
	select {
	case s <- struct{}{}:
		return &memoryGuard{slot: s}, true, nil
	default:
		return nil, false, nil
	}
}

type memoryGuard struct {
	slot chan struct{}
	once sync.Once
}

func (g *memoryGuard) Release() error {
	g.once.Do(func() { <-g.slot })
	return nil
}
