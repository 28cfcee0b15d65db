package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func fixtureDAG() core.DAG {
	return core.DAG{
		Nodes: []core.Node{
			{ID: core.NodeIDFromName("a"), Name: "a", Resources: core.ResourceBound{Fuel: 1}},
			{ID: core.NodeIDFromName("b"), Name: "b", Resources: core.ResourceBound{Fuel: 1}},
		},
		Edges: []core.Edge{
			{From: core.NodeIDFromName("a"), To: core.NodeIDFromName("b")},
		},
	}
}

func createFixtureBundle(t *testing.T, dir string) {
	t.Helper()
	w, err := Create(dir, fixtureDAG(), false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	w.SetMetadata(&Metadata{RunID: "run-1", Status: "completed", NodeCount: 2})
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestCreateFinalizeOpenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test.cath-bundle")
	createFixtureBundle(t, dir)

	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	if b.Metadata.RunID != "run-1" {
		t.Fatalf("Metadata.RunID = %q, want run-1", b.Metadata.RunID)
	}
	if len(b.DAG.Nodes) != 2 {
		t.Fatalf("len(DAG.Nodes) = %d, want 2", len(b.DAG.Nodes))
	}
	if b.Snapshot != nil {
		t.Fatal("Snapshot != nil for a bundle with none attached")
	}
	if b.Log.Len() != 0 {
		t.Fatalf("Log.Len() = %d, want 0", b.Log.Len())
	}
}

func TestFinalizeWithoutMetadataFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test.cath-bundle")
	w, err := Create(dir, fixtureDAG(), false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer w.Close()

	if err := w.Finalize(); err == nil {
		t.Fatal("Finalize() without SetMetadata: want error, got nil")
	}
}

func TestOpenRejectsTamperedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test.cath-bundle")
	createFixtureBundle(t, dir)

	metaPath := filepath.Join(dir, metadataFile)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	tampered := append(raw, []byte("extra-bytes-not-in-the-manifest")...)
	if err := os.WriteFile(metaPath, tampered, 0o644); err != nil {
		t.Fatalf("write tampered metadata: %v", err)
	}

	if _, err := Open(dir); err == nil {
		t.Fatal("Open() on a bundle with a tampered file: want error, got nil")
	}
}

func TestOpenRejectsMissingManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := Open(dir); err == nil {
		t.Fatal("Open() on a directory with no MANIFEST.json: want error, got nil")
	}
}

func TestVerifyBlobCoverage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test.cath-bundle")
	w, err := Create(dir, fixtureDAG(), false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ctx := context.Background()
	if _, err := w.Blobs().Put(ctx, []byte("payload")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	w.SetMetadata(&Metadata{RunID: "run-1", Status: "completed"})
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	if b.Manifest.BlobCount != 1 {
		t.Fatalf("Manifest.BlobCount = %d, want 1", b.Manifest.BlobCount)
	}
	if err := b.VerifyBlobCoverage(ctx); err != nil {
		t.Fatalf("VerifyBlobCoverage() error = %v", err)
	}
}

func TestVerifyBlobCoverageDetectsMissingBlob(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test.cath-bundle")
	w, err := Create(dir, fixtureDAG(), false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ctx := context.Background()
	addr, err := w.Blobs().Put(ctx, []byte("payload"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	w.SetMetadata(&Metadata{RunID: "run-1", Status: "completed"})
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	hex := addr.Hash.Hex()
	blobPath := filepath.Join(dir, blobsDir, hex[:2], hex[2:])
	if err := os.Remove(blobPath); err != nil {
		t.Fatalf("remove blob file: %v", err)
	}

	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	if err := b.VerifyBlobCoverage(ctx); err == nil {
		t.Fatal("VerifyBlobCoverage() with a missing blob file: want error, got nil")
	}
}
