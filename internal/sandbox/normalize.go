package sandbox

import (
	"encoding/json"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Kind selects the per-tool normalization rule of section 4.7,
// grounded on cathedral_tool::normalize::NormalizeConfig but collapsed to
// a tagged choice rather than a config struct, since every rule here maps
// raw bytes to canonical bytes with no further knobs.
type Kind uint32

const (
	// Json parses and re-emits with sorted object keys and no
	// insignificant whitespace.
	Json Kind = iota
	// Binary passes raw bytes through unchanged.
	Binary
	// Custom applies a per-tool deterministic function.
	Custom
)

// Output is the result of normalizing one tool's raw output: the
// canonical bytes and their content hash, matching its
// NormalizedOutput{bytes, hash}.
type Output struct {
	Bytes []byte
	Hash  core.Hash
}

// CustomFunc is a deterministic raw-to-normalized transform for
// Kind == Custom.
type CustomFunc func(raw []byte) ([]byte, error)

// Normalize applies kind to raw. Go's encoding/json already sorts
// map[string]any keys and omits insignificant whitespace when
// marshaling, so the Json case needs no hand-rolled recursive key sort
// (the Rust reference's sort_keys walks the tree manually because
// serde_json::Map preserves insertion order by default; encoding/json's
// default map marshaling does not have that problem).
func Normalize(kind Kind, raw []byte, custom CustomFunc) (Output, error) {
	var normalized []byte
	switch kind {
	case Json:
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return Output{}, core.NewError(core.CodeInvalidInput, "normalize: invalid json: "+err.Error())
		}
		b, err := json.Marshal(value)
		if err != nil {
			return Output{}, core.NewError(core.CodeInvalidInput, "normalize: re-marshal: "+err.Error())
		}
		normalized = b
	case Binary:
		normalized = raw
	case Custom:
		if custom == nil {
			return Output{}, core.NewError(core.CodeInvalidInput, "normalize: Custom kind with no function")
		}
		b, err := custom(raw)
		if err != nil {
			return Output{}, core.NewError(core.CodeInvalidInput, "normalize: custom function: "+err.Error())
		}
		normalized = b
	default:
		return Output{}, core.NewError(core.CodeInvalidInput, "normalize: unknown kind")
	}
	return Output{Bytes: normalized, Hash: core.ComputeHash(normalized)}, nil
}
