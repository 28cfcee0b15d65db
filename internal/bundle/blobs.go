package bundle

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cathedral-fabric/fabric/pkg/core"
	"github.com/klauspost/compress/zstd"
)

// blob file header byte: raw bytes follow, or a zstd frame does.
const (
	blobRaw  byte = 0x00
	blobZstd byte = 0x01
)

// BlobStore is a filesystem-backed contentstore.Store rooted at a
// bundle's blobs/ directory, laid out "blobs/<first 2 hex>/<remaining
// hex>" per section 6. Reference tracking is kept in memory only:
// a bundle is an immutable artifact once written, so GC-driven deletion
// (the concern AddRef/RemoveRef/RefCount exist for) belongs to the
// node's persisted store, not the bundle itself.
type BlobStore struct {
	dir      string
	compress bool

	mu   sync.Mutex
	refs map[core.ContentAddress]map[string]int
}

// NewBlobStore returns a BlobStore rooted at dir, creating it if absent.
// When compress is set, Put writes zstd-compressed blob files.
func NewBlobStore(dir string, compress bool) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &BlobStore{dir: dir, compress: compress, refs: make(map[core.ContentAddress]map[string]int)}, nil
}

func (s *BlobStore) path(addr core.ContentAddress) string {
	hex := addr.Hash.Hex()
	return filepath.Join(s.dir, hex[:2], hex[2:])
}

func (s *BlobStore) Put(_ context.Context, data []byte) (core.ContentAddress, error) {
	addr := core.AddressFromData(data)
	path := s.path(addr)
	if _, err := os.Stat(path); err == nil {
		return addr, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.ContentAddress{}, err
	}

	body := data
	header := blobRaw
	if s.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return core.ContentAddress{}, err
		}
		body = enc.EncodeAll(data, nil)
		header = blobZstd
		if err := enc.Close(); err != nil {
			return core.ContentAddress{}, err
		}
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, header)
	out = append(out, body...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return core.ContentAddress{}, err
	}
	return addr, nil
}

func (s *BlobStore) Get(_ context.Context, addr core.ContentAddress) ([]byte, error) {
	raw, err := os.ReadFile(s.path(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, core.NewError(core.CodeBlobCorrupted, "blob file truncated before header: "+addr.String())
	}

	header, body := raw[0], raw[1:]
	switch header {
	case blobRaw:
		return body, nil
	case blobZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(body, nil)
		if err != nil {
			return nil, core.NewError(core.CodeBlobCorrupted, "zstd decode failed for "+addr.String())
		}
		return out, nil
	default:
		return nil, core.NewError(core.CodeBlobCorrupted, "unknown blob compression header for "+addr.String())
	}
}

func (s *BlobStore) Contains(_ context.Context, addr core.ContentAddress) (bool, error) {
	_, err := os.Stat(s.path(addr))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *BlobStore) Size(ctx context.Context, addr core.ContentAddress) (int64, error) {
	data, err := s.Get(ctx, addr)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (s *BlobStore) List(_ context.Context) ([]core.ContentAddress, error) {
	var out []core.ContentAddress
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, prefix := range entries {
		if !prefix.IsDir() {
			continue
		}
		inner, err := os.ReadDir(filepath.Join(s.dir, prefix.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range inner {
			addr, err := core.ParseContentAddress("blake3:" + prefix.Name() + f.Name())
			if err != nil {
				continue
			}
			out = append(out, addr)
		}
	}
	return out, nil
}

func (s *BlobStore) Delete(_ context.Context, addr core.ContentAddress) error {
	s.mu.Lock()
	if len(s.refs[addr]) > 0 {
		s.mu.Unlock()
		return core.NewError(core.CodeStillReferenced, "blob still referenced: "+addr.String())
	}
	s.mu.Unlock()

	err := os.Remove(s.path(addr))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *BlobStore) AddRef(_ context.Context, addr core.ContentAddress, referrer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[addr] == nil {
		s.refs[addr] = make(map[string]int)
	}
	s.refs[addr][referrer]++
	return nil
}

func (s *BlobStore) RemoveRef(_ context.Context, addr core.ContentAddress, referrer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[addr][referrer] > 0 {
		s.refs[addr][referrer]--
		if s.refs[addr][referrer] == 0 {
			delete(s.refs[addr], referrer)
		}
	}
	return nil
}

func (s *BlobStore) RefCount(_ context.Context, addr core.ContentAddress) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, count := range s.refs[addr] {
		n += count
	}
	return n, nil
}

func (s *BlobStore) Close() error { return nil }
