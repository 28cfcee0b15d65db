package bundle

import (
	"encoding/json"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// FileEntry names one file inside a bundle and the hash/size a verifier
// recomputes it against.
type FileEntry struct {
	Name     string `json:"name"`
	Hash     string `json:"hash"` // "blake3:<64 hex>"
	Size     int64  `json:"size"`
	Optional bool   `json:"optional,omitempty"`
}

// Manifest is the bundle's MANIFEST.json: the envelope a verifier checks
// before trusting anything else inside the bundle, per section 6.
type Manifest struct {
	BundleVersion uint32           `json:"bundle_version"`
	BundleID      string           `json:"bundle_id"`
	CreatedAt     core.LogicalTime `json:"created_at"`
	Files         []FileEntry      `json:"files"`
	BlobCount     int              `json:"blob_count"`
	Signature     []byte           `json:"signature,omitempty"`
}

// CurrentBundleVersion is the bundle_version this package writes. Spec
// section 1 excludes cross-major-version compatibility from scope, so a
// verifier that sees a different major version should reject the bundle
// rather than attempt it.
const CurrentBundleVersion uint32 = 1

func newManifest(bundleID string, createdAt core.LogicalTime) *Manifest {
	return &Manifest{BundleVersion: CurrentBundleVersion, BundleID: bundleID, CreatedAt: createdAt}
}

func (m *Manifest) addFile(name string, data []byte, optional bool) {
	m.Files = append(m.Files, FileEntry{
		Name:     name,
		Hash:     core.AddressFromData(data).String(),
		Size:     int64(len(data)),
		Optional: optional,
	})
}

func (m *Manifest) fileEntry(name string) (FileEntry, bool) {
	for _, f := range m.Files {
		if f.Name == name {
			return f, true
		}
	}
	return FileEntry{}, false
}

func (m *Manifest) encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func decodeManifest(b []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// verifyEntry recomputes name's entry hash/size against data and returns
// an error if they disagree, or if name is required but missing.
func verifyEntry(m *Manifest, name string, data []byte, present bool) error {
	entry, ok := m.fileEntry(name)
	if !ok {
		if present {
			return core.NewError(core.CodeBundleCorrupted, "manifest missing entry for "+name)
		}
		return nil
	}
	if !present {
		if entry.Optional {
			return nil
		}
		return core.NewError(core.CodeBundleCorrupted, "bundle missing required file "+name)
	}
	addr, err := core.ParseContentAddress(entry.Hash)
	if err != nil {
		return err
	}
	if addr != core.AddressFromData(data) {
		return core.NewError(core.CodeBundleCorrupted, "hash mismatch for "+name)
	}
	if entry.Size != int64(len(data)) {
		return core.NewError(core.CodeBundleCorrupted, "size mismatch for "+name)
	}
	return nil
}
