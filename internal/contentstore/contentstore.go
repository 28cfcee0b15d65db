// Package contentstore implements the immutable, content-addressed blob
// store of section 4.2: put/get/contains/size/list, with reference
// tracking so a blob is only deletable once its referrer multiset is
// empty.
package contentstore

import (
	"context"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Store is the primary content-addressed storage interface. Swappable
// in-memory (tests, single-process runs) and Postgres-backed (durable
// node) implementations satisfy it.
type Store interface {
	// Put writes data and returns its content address. Put is idempotent:
	// writing the same bytes twice returns the same address without error.
	Put(ctx context.Context, data []byte) (core.ContentAddress, error)

	// Get returns the bytes stored at addr, or a *core.Error{Code:
	// CodeNotFound} if no such blob exists.
	Get(ctx context.Context, addr core.ContentAddress) ([]byte, error)

	// Contains reports whether a blob exists at addr.
	Contains(ctx context.Context, addr core.ContentAddress) (bool, error)

	// Size returns the byte length of the blob at addr.
	Size(ctx context.Context, addr core.ContentAddress) (int64, error)

	// List returns every address currently stored, in no particular
	// order; callers that need a stable order must sort by hash bytes
	// themselves (the canonical codec's own sort rule).
	List(ctx context.Context) ([]core.ContentAddress, error)

	// Delete removes the blob at addr. Fails with CodeStillReferenced if
	// the reference multiset for addr is non-empty.
	Delete(ctx context.Context, addr core.ContentAddress) error

	// AddRef records referrer as holding a reference to addr. AddRef is
	// atomic with respect to Delete: a concurrent AddRef/Delete pair never
	// leaves addr deleted while a referrer still believes it holds a ref.
	AddRef(ctx context.Context, addr core.ContentAddress, referrer string) error

	// RemoveRef removes one occurrence of referrer from addr's reference
	// multiset.
	RemoveRef(ctx context.Context, addr core.ContentAddress, referrer string) error

	// RefCount returns the number of tracked referrers for addr.
	RefCount(ctx context.Context, addr core.ContentAddress) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
