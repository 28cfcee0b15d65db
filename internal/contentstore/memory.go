package contentstore

import (
	"context"
	"sync"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

type blobEntry struct {
	data      []byte
	referrers map[string]int // referrer -> occurrence count (a multiset)
}

// MemoryStore implements Store with an in-memory map, guarded by a
// single RWMutex: reads take the read lock, writes take the write lock,
// nothing more elaborate is needed for a single-process store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[core.ContentAddress]*blobEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[core.ContentAddress]*blobEntry)}
}

func (s *MemoryStore) Put(_ context.Context, data []byte) (core.ContentAddress, error) {
	addr := core.AddressFromData(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[addr]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.blobs[addr] = &blobEntry{data: cp, referrers: make(map[string]int)}
	}
	return addr, nil
}

func (s *MemoryStore) Get(_ context.Context, addr core.ContentAddress) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.blobs[addr]
	if !ok {
		return nil, core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, nil
}

func (s *MemoryStore) Contains(_ context.Context, addr core.ContentAddress) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[addr]
	return ok, nil
}

func (s *MemoryStore) Size(_ context.Context, addr core.ContentAddress) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.blobs[addr]
	if !ok {
		return 0, core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
	}
	return int64(len(entry.data)), nil
}

func (s *MemoryStore) List(_ context.Context) ([]core.ContentAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ContentAddress, 0, len(s.blobs))
	for addr := range s.blobs {
		out = append(out, addr)
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, addr core.ContentAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.blobs[addr]
	if !ok {
		return core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
	}
	if len(entry.referrers) > 0 {
		return core.NewError(core.CodeStillReferenced, "blob still referenced: "+addr.String())
	}
	delete(s.blobs, addr)
	return nil
}

func (s *MemoryStore) AddRef(_ context.Context, addr core.ContentAddress, referrer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.blobs[addr]
	if !ok {
		return core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
	}
	entry.referrers[referrer]++
	return nil
}

func (s *MemoryStore) RemoveRef(_ context.Context, addr core.ContentAddress, referrer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.blobs[addr]
	if !ok {
		return core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
	}
	if entry.referrers[referrer] <= 1 {
		delete(entry.referrers, referrer)
	} else {
		entry.referrers[referrer]--
	}
	return nil
}

func (s *MemoryStore) RefCount(_ context.Context, addr core.ContentAddress) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.blobs[addr]
	if !ok {
		return 0, core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
	}
	total := 0
	for _, n := range entry.referrers {
		total += n
	}
	return total, nil
}

func (s *MemoryStore) Close() error { return nil }
