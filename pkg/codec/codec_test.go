package codec_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/cathedral-fabric/fabric/pkg/codec"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	w := codec.NewWriter()
	w.Bool(true)
	w.Bool(false)
	w.U32(42)
	w.U64(1 << 40)
	w.String("hello")
	w.Bytes([]byte{0x01, 0x02, 0x03})

	r := codec.NewReader(w.Finish())
	if b, err := r.Bool(); err != nil || !b {
		t.Fatalf("Bool() = %v, %v, want true, nil", b, err)
	}
	if b, err := r.Bool(); err != nil || b {
		t.Fatalf("Bool() = %v, %v, want false, nil", b, err)
	}
	if v, err := r.U32(); err != nil || v != 42 {
		t.Fatalf("U32() = %v, %v, want 42, nil", v, err)
	}
	if v, err := r.U64(); err != nil || v != 1<<40 {
		t.Fatalf("U64() = %v, %v, want %d, nil", v, err, uint64(1)<<40)
	}
	if s, err := r.String(); err != nil || s != "hello" {
		t.Fatalf("String() = %q, %v, want %q, nil", s, err, "hello")
	}
	if b, err := r.Bytes(); err != nil || string(b) != "\x01\x02\x03" {
		t.Fatalf("Bytes() = %v, %v", b, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", r.Remaining())
	}
}

func TestOptionalHashRoundTrip(t *testing.T) {
	w := codec.NewWriter()
	w.OptionalHash(nil)
	h := core.ComputeHash([]byte("x"))
	w.OptionalHash(&h)

	r := codec.NewReader(w.Finish())
	got, err := r.OptionalHash()
	if err != nil || got != nil {
		t.Fatalf("OptionalHash() = %v, %v, want nil, nil", got, err)
	}
	got, err = r.OptionalHash()
	if err != nil || got == nil || *got != h {
		t.Fatalf("OptionalHash() = %v, %v, want %v, nil", got, err, h)
	}
}

func TestReaderRejectsTruncatedInput(t *testing.T) {
	w := codec.NewWriter()
	w.String("this string has a length prefix bigger than what follows")
	truncated := w.Finish()[:5]

	r := codec.NewReader(truncated)
	if _, err := r.String(); err == nil {
		t.Error("expected an error decoding truncated input")
	}
}

func TestReaderRejectsInvalidBoolTag(t *testing.T) {
	r := codec.NewReader([]byte{0x02})
	if _, err := r.Bool(); err == nil {
		t.Error("expected an error for an invalid boolean tag")
	}
}

func TestCapabilityRoundTrip(t *testing.T) {
	cases := []core.Capability{
		{Kind: core.CapabilityNetRead, HostAllowlist: []string{"*.example.com"}},
		{Kind: core.CapabilityFsWrite, PathPrefixes: []string{"./outputs"}},
		{Kind: core.CapabilityDbRead, Tables: []string{"users"}},
		{Kind: core.CapabilityEnvRead, EnvVars: []string{"PATH"}},
		{Kind: core.CapabilityExec, CPULimit: "500m", MemLimit: "256Mi"},
		{Kind: core.CapabilityWasmExec, Fuel: 1_000_000, MemBytes: 64 << 20},
		{Kind: core.CapabilityClockRead},
	}
	for _, c := range cases {
		w := codec.NewWriter()
		codec.EncodeCapability(w, c)
		r := codec.NewReader(w.Finish())
		got, err := codec.DecodeCapability(r)
		if err != nil {
			t.Fatalf("DecodeCapability(%v) error = %v", c.Kind, err)
		}
		if got.Kind != c.Kind {
			t.Errorf("round trip kind = %v, want %v", got.Kind, c.Kind)
		}
		if r.Remaining() != 0 {
			t.Errorf("round trip for %v left %d unread bytes", c.Kind, r.Remaining())
		}
	}
}

// TestEncodingFixtureStability locks the canonical byte sequence produced
// for a fixed capability set against a recorded golden file, exercising
// P2 (cross-platform stability): any change to field order, discriminant
// values, or integer width shows up as a golden-file diff.
func TestEncodingFixtureStability(t *testing.T) {
	set := core.NewCapabilitySet()
	set.Grant(core.Capability{Kind: core.CapabilityNetRead, HostAllowlist: []string{"api.example.com"}})
	set.Grant(core.Capability{Kind: core.CapabilityFsRead, PathPrefixes: []string{"."}})
	set.Grant(core.Capability{Kind: core.CapabilityWasmExec, Fuel: 1_000_000, MemBytes: 64 << 20})

	w := codec.NewWriter()
	codec.EncodeCapabilitySet(w, set)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "capability_set_fixture", w.Finish())
}
