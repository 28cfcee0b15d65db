// Package snapshot implements the materialized-state snapshot engine of
// section 4.4: a content-hashed point-in-time capture of
// coordinator, worker, and DAG state, plus its incremental delta form.
package snapshot

import (
	"context"
	"sort"

	"github.com/cathedral-fabric/fabric/internal/contentstore"
	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// WorkerStateRef names the content address of a single worker's
// serialized state within a snapshot.
type WorkerStateRef struct {
	WorkerID core.WorkerID
	State    core.ContentAddress
}

// Metadata is the snapshot's identifying envelope, matching the table in
// section 3: snapshot_id, run_id, logical_time, content_hash,
// optional prior_snapshot_id, log_index.
type Metadata struct {
	SnapshotID      core.SnapshotID
	RunID           core.RunID
	LogicalTime     core.LogicalTime
	ContentHash     core.Hash
	PriorSnapshotID *core.SnapshotID
	LogIndex        uint64
}

// Snapshot is the canonical serialization of coordinator state, per-worker
// states, and DAG node state at Metadata.LogicalTime, composed as section 4.4 describes: the actual state bytes live in the content
// store, addressed here by hash.
type Snapshot struct {
	Metadata         Metadata
	CoordinatorState core.ContentAddress
	WorkerStates     []WorkerStateRef
	DAGState         core.ContentAddress
	Blobs            []core.ContentAddress
}

// bodyBytes canonically encodes every field of s except Metadata.ContentHash
// itself, which is what content_hash is a hash of.
func (s *Snapshot) bodyBytes() []byte {
	w := codec.NewWriter()
	w.ID16(s.Metadata.SnapshotID.Bytes())
	w.ID16(s.Metadata.RunID.Bytes())
	w.U64(uint64(s.Metadata.LogicalTime))
	if s.Metadata.PriorSnapshotID != nil {
		b := s.Metadata.PriorSnapshotID.Bytes()
		w.OptionalID(&b)
	} else {
		w.OptionalID(nil)
	}
	w.U64(s.Metadata.LogIndex)
	w.Hash(s.CoordinatorState.Hash)
	w.U32(uint32(s.CoordinatorState.Algorithm))

	sorted := make([]WorkerStateRef, len(s.WorkerStates))
	copy(sorted, s.WorkerStates)
	sort.Slice(sorted, func(i, j int) bool {
		return lessID16(sorted[i].WorkerID.Bytes(), sorted[j].WorkerID.Bytes())
	})
	w.U32(uint32(len(sorted)))
	for _, ws := range sorted {
		w.ID16(ws.WorkerID.Bytes())
		w.Hash(ws.State.Hash)
		w.U32(uint32(ws.State.Algorithm))
	}

	w.Hash(s.DAGState.Hash)
	w.U32(uint32(s.DAGState.Algorithm))

	blobs := make([]core.ContentAddress, len(s.Blobs))
	copy(blobs, s.Blobs)
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Hash.Hex() < blobs[j].Hash.Hex() })
	w.U32(uint32(len(blobs)))
	for _, b := range blobs {
		w.Hash(b.Hash)
		w.U32(uint32(b.Algorithm))
	}
	return w.Finish()
}

func lessID16(a, b [16]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// computeContentHash returns H(bodyBytes), the value Metadata.ContentHash
// must equal for the snapshot to verify.
func (s *Snapshot) computeContentHash() core.Hash {
	return core.ComputeHash(s.bodyBytes())
}

// Encode renders the full snapshot, including the computed content hash,
// in canonical binary form for storage as "snapshot.cath-snap".
func (s *Snapshot) Encode() []byte {
	w := codec.NewWriter()
	w.Raw(s.bodyBytes())
	w.Hash(s.Metadata.ContentHash)
	return w.Finish()
}

// Decode parses the form produced by Encode. It does not itself verify
// the content hash; call Verify for that.
func Decode(b []byte) (*Snapshot, error) {
	r := codec.NewReader(b)
	s := &Snapshot{}

	snapID, err := r.ID16()
	if err != nil {
		return nil, err
	}
	s.Metadata.SnapshotID = core.SnapshotIDFromBytes(snapID)

	runID, err := r.ID16()
	if err != nil {
		return nil, err
	}
	s.Metadata.RunID = core.RunIDFromBytes(runID)

	logicalTime, err := r.U64()
	if err != nil {
		return nil, err
	}
	s.Metadata.LogicalTime = core.LogicalTime(logicalTime)

	prior, err := r.OptionalID()
	if err != nil {
		return nil, err
	}
	if prior != nil {
		id := core.SnapshotIDFromBytes(*prior)
		s.Metadata.PriorSnapshotID = &id
	}

	logIndex, err := r.U64()
	if err != nil {
		return nil, err
	}
	s.Metadata.LogIndex = logIndex

	if s.CoordinatorState, err = decodeAddress(r); err != nil {
		return nil, err
	}

	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	s.WorkerStates = make([]WorkerStateRef, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.ID16()
		if err != nil {
			return nil, err
		}
		addr, err := decodeAddress(r)
		if err != nil {
			return nil, err
		}
		s.WorkerStates = append(s.WorkerStates, WorkerStateRef{WorkerID: core.WorkerIDFromBytes(id), State: addr})
	}

	if s.DAGState, err = decodeAddress(r); err != nil {
		return nil, err
	}

	blobCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	s.Blobs = make([]core.ContentAddress, 0, blobCount)
	for i := uint32(0); i < blobCount; i++ {
		addr, err := decodeAddress(r)
		if err != nil {
			return nil, err
		}
		s.Blobs = append(s.Blobs, addr)
	}

	hash, err := r.Hash()
	if err != nil {
		return nil, err
	}
	s.Metadata.ContentHash = hash
	return s, nil
}

func decodeAddress(r *codec.Reader) (core.ContentAddress, error) {
	h, err := r.Hash()
	if err != nil {
		return core.ContentAddress{}, err
	}
	algo, err := r.U32()
	if err != nil {
		return core.ContentAddress{}, err
	}
	return core.ContentAddress{Hash: h, Algorithm: core.AddressAlgorithm(algo)}, nil
}

// Verify recomputes content_hash over the snapshot's body and compares it
// against Metadata.ContentHash.
func (s *Snapshot) Verify() error {
	if s.computeContentHash() != s.Metadata.ContentHash {
		return core.NewError(core.CodeSnapshotCorrupted, "snapshot content_hash mismatch")
	}
	return nil
}

// VerifyBlobsExist checks that every blob and state reference the
// snapshot names is actually present in store.
func (s *Snapshot) VerifyBlobsExist(ctx context.Context, store contentstore.Store) error {
	check := func(addr core.ContentAddress) error {
		ok, err := store.Contains(ctx, addr)
		if err != nil {
			return err
		}
		if !ok {
			return core.NewError(core.CodeBlobCorrupted, "snapshot references missing blob: "+addr.String())
		}
		return nil
	}
	if err := check(s.CoordinatorState); err != nil {
		return err
	}
	if err := check(s.DAGState); err != nil {
		return err
	}
	for _, ws := range s.WorkerStates {
		if err := check(ws.State); err != nil {
			return err
		}
	}
	for _, b := range s.Blobs {
		if err := check(b); err != nil {
			return err
		}
	}
	return nil
}

// ValidateChain checks that s's prior_snapshot_id matches prior's
// snapshot id (or that s has no prior and none is supplied), per section 4.4's "prior_snapshot chain is continuous" check.
func (s *Snapshot) ValidateChain(prior *Snapshot) error {
	if s.Metadata.PriorSnapshotID == nil {
		if prior != nil {
			return core.NewError(core.CodeSnapshotCorrupted, "snapshot has no prior_snapshot_id but a prior snapshot was supplied")
		}
		return nil
	}
	if prior == nil {
		return core.NewError(core.CodeSnapshotCorrupted, "snapshot names a prior_snapshot_id but none was supplied")
	}
	if *s.Metadata.PriorSnapshotID != prior.Metadata.SnapshotID {
		return core.NewError(core.CodeSnapshotCorrupted, "snapshot's prior_snapshot_id does not match supplied prior snapshot")
	}
	return nil
}

// ValidateLogIndex checks that log_index aligns with an event's position,
// per section 4.4. exists reports whether the event log has an
// event at that sequential position.
func (s *Snapshot) ValidateLogIndex(exists func(index uint64) bool) error {
	if !exists(s.Metadata.LogIndex) {
		return core.NewError(core.CodeSnapshotCorrupted, "snapshot log_index does not align with any event position")
	}
	return nil
}

// Validate runs every section 4.4 validator check: content_hash
// recomputation, prior_snapshot chain continuity, log_index alignment,
// and referenced-blob existence.
func (s *Snapshot) Validate(ctx context.Context, prior *Snapshot, store contentstore.Store, logIndexExists func(uint64) bool) error {
	if err := s.Verify(); err != nil {
		return err
	}
	if err := s.ValidateChain(prior); err != nil {
		return err
	}
	if err := s.ValidateLogIndex(logIndexExists); err != nil {
		return err
	}
	return s.VerifyBlobsExist(ctx, store)
}
