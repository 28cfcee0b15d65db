package bundle

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cathedral-fabric/fabric/internal/eventlog"
	"github.com/cathedral-fabric/fabric/internal/snapshot"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

const (
	manifestFile  = "MANIFEST.json"
	metadataFile  = "metadata.json"
	workflowFile  = "workflow.cath"
	dagJSONFile   = "dag.json"
	eventsFile    = "events.cath-log"
	snapshotFile  = "snapshot.cath-snap"
	blobsDir      = "blobs"
)

// Writer assembles a `.cath-bundle/` directory incrementally: the event
// log and blob store are real files a caller writes into as a run
// executes, and Finalize seals the directory with a manifest once the
// run is done.
type Writer struct {
	dir      string
	dag      core.DAG
	log      *eventlog.Log
	blobs    *BlobStore
	metadata *Metadata

	snap *snapshot.Snapshot
}

// Create starts a new bundle directory at dir, which must not already
// exist. dag is written immediately in both its canonical binary
// (workflow.cath) and JSON transport (dag.json) forms; the event log and
// blob store are created empty and returned open for the caller to write
// into over the life of the run.
func Create(dir string, dag core.DAG, compressBlobs bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewError(core.CodeStorageError, err.Error())
	}

	workflowBytes := EncodeDAG(dag)
	if err := os.WriteFile(filepath.Join(dir, workflowFile), workflowBytes, 0o644); err != nil {
		return nil, core.NewError(core.CodeStorageError, err.Error())
	}
	dagJSON, err := DAGToJSON(dag)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, dagJSONFile), dagJSON, 0o644); err != nil {
		return nil, core.NewError(core.CodeStorageError, err.Error())
	}

	log, err := eventlog.Create(filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, err
	}
	blobs, err := NewBlobStore(filepath.Join(dir, blobsDir), compressBlobs)
	if err != nil {
		return nil, err
	}

	return &Writer{dir: dir, dag: dag, log: log, blobs: blobs}, nil
}

// Log returns the bundle's open event log for the caller to append into.
func (w *Writer) Log() *eventlog.Log { return w.log }

// Blobs returns the bundle's open blob store.
func (w *Writer) Blobs() *BlobStore { return w.blobs }

// SetMetadata records the run's descriptive envelope to be written at
// Finalize time.
func (w *Writer) SetMetadata(m *Metadata) { w.metadata = m }

// SetSnapshot attaches a final snapshot to be written at Finalize time.
// A bundle without a snapshot is still valid; snapshot.cath-snap is an
// optional manifest entry.
func (w *Writer) SetSnapshot(s *snapshot.Snapshot) { w.snap = s }

// Finalize writes metadata.json and, if set, snapshot.cath-snap, then
// computes and writes MANIFEST.json over every file actually present.
// The event log and blob store remain open after Finalize; call Close to
// release them once the caller has no further writes pending.
func (w *Writer) Finalize() error {
	if w.metadata == nil {
		return core.NewError(core.CodeInvalidInput, "bundle: Finalize called without metadata set")
	}
	metaBytes, err := w.metadata.encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, metadataFile), metaBytes, 0o644); err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}

	m := newManifest(w.metadata.RunID, w.metadata.StartLogicalTime)

	workflowBytes, err := os.ReadFile(filepath.Join(w.dir, workflowFile))
	if err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	m.addFile(workflowFile, workflowBytes, false)

	dagJSONBytes, err := os.ReadFile(filepath.Join(w.dir, dagJSONFile))
	if err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	m.addFile(dagJSONFile, dagJSONBytes, false)
	m.addFile(metadataFile, metaBytes, false)

	eventsBytes, err := os.ReadFile(filepath.Join(w.dir, eventsFile))
	if err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	m.addFile(eventsFile, eventsBytes, false)

	if w.snap != nil {
		snapBytes := w.snap.Encode()
		if err := os.WriteFile(filepath.Join(w.dir, snapshotFile), snapBytes, 0o644); err != nil {
			return core.NewError(core.CodeStorageError, err.Error())
		}
		m.addFile(snapshotFile, snapBytes, true)
	}

	blobAddrs, err := w.blobs.List(context.Background())
	if err != nil {
		return err
	}
	m.BlobCount = len(blobAddrs)

	manifestBytes, err := m.encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, manifestFile), manifestBytes, 0o644); err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	return nil
}

// Close releases the bundle's open event log and blob store handles.
func (w *Writer) Close() error {
	if err := w.log.Close(); err != nil {
		return err
	}
	return w.blobs.Close()
}

// Bundle is an opened, manifest-verified `.cath-bundle/` directory ready
// for replay, diff, or inspection.
type Bundle struct {
	Dir      string
	Manifest *Manifest
	Metadata *Metadata
	DAG      core.DAG
	Log      *eventlog.Log
	Blobs    *BlobStore
	Snapshot *snapshot.Snapshot // nil if the bundle carries none
}

// Open reads and verifies a bundle directory at dir: MANIFEST.json's
// recorded hash/size for every required file must match what is
// actually on disk before anything else is trusted, per section 6
// ("the manifest a verifier checks before trusting anything else inside
// the bundle").
func Open(dir string) (*Bundle, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, core.NewError(core.CodeBundleCorrupted, "bundle: cannot read MANIFEST.json: "+err.Error())
	}
	m, err := decodeManifest(manifestBytes)
	if err != nil {
		return nil, core.NewError(core.CodeBundleCorrupted, "bundle: malformed MANIFEST.json: "+err.Error())
	}
	if m.BundleVersion != CurrentBundleVersion {
		return nil, core.NewError(core.CodeBundleValidationFailed, "bundle: unsupported bundle_version")
	}

	workflowBytes, err := readAndVerify(dir, m, workflowFile)
	if err != nil {
		return nil, err
	}
	dag, err := DecodeDAG(workflowBytes)
	if err != nil {
		return nil, core.NewError(core.CodeBundleCorrupted, "bundle: malformed workflow.cath: "+err.Error())
	}

	if _, err := readAndVerify(dir, m, dagJSONFile); err != nil {
		return nil, err
	}

	metaBytes, err := readAndVerify(dir, m, metadataFile)
	if err != nil {
		return nil, err
	}
	metadata, err := decodeMetadata(metaBytes)
	if err != nil {
		return nil, core.NewError(core.CodeBundleCorrupted, "bundle: malformed metadata.json: "+err.Error())
	}

	if _, err := readAndVerify(dir, m, eventsFile); err != nil {
		return nil, err
	}
	log, err := eventlog.Open(filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, err
	}

	blobs, err := NewBlobStore(filepath.Join(dir, blobsDir), false)
	if err != nil {
		log.Close()
		return nil, err
	}

	b := &Bundle{Dir: dir, Manifest: m, Metadata: metadata, DAG: dag, Log: log, Blobs: blobs}

	if _, ok := m.fileEntry(snapshotFile); ok {
		snapBytes, err := readAndVerify(dir, m, snapshotFile)
		if err != nil {
			log.Close()
			return nil, err
		}
		snap, err := snapshot.Decode(snapBytes)
		if err != nil {
			log.Close()
			return nil, core.NewError(core.CodeSnapshotCorrupted, "bundle: malformed snapshot.cath-snap: "+err.Error())
		}
		b.Snapshot = snap
	}

	return b, nil
}

// readAndVerify reads name from dir and checks it against the manifest's
// recorded hash and size for that entry.
func readAndVerify(dir string, m *Manifest, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	present := err == nil
	if err != nil && !os.IsNotExist(err) {
		return nil, core.NewError(core.CodeStorageError, err.Error())
	}
	if verifyErr := verifyEntry(m, name, data, present); verifyErr != nil {
		return nil, verifyErr
	}
	return data, nil
}

// Close releases the bundle's open event log and blob store handles.
func (b *Bundle) Close() error {
	if err := b.Log.Close(); err != nil {
		return err
	}
	return b.Blobs.Close()
}

// VerifyBlobCoverage checks that every blob address the bundle's
// manifest reports (m.BlobCount) is actually readable from the blob
// store, the check `verify-bundle` runs beyond the per-file hash/size
// check Open already performs.
func (b *Bundle) VerifyBlobCoverage(ctx context.Context) error {
	addrs, err := b.Blobs.List(ctx)
	if err != nil {
		return err
	}
	if len(addrs) != b.Manifest.BlobCount {
		return core.NewError(core.CodeBundleValidationFailed, "bundle: blob_count mismatch")
	}
	for _, addr := range addrs {
		ok, err := b.Blobs.Contains(ctx, addr)
		if err != nil {
			return err
		}
		if !ok {
			return core.NewError(core.CodeBlobCorrupted, "bundle: missing blob "+addr.String())
		}
	}
	return nil
}
