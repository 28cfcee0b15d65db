package core

import "testing"

func TestComputeHashDeterministic(t *testing.T) {
	h1 := ComputeHash([]byte("hello world"))
	h2 := ComputeHash([]byte("hello world"))
	if h1 != h2 {
		t.Errorf("ComputeHash() not deterministic: %v != %v", h1, h2)
	}
	if len(h1.Hex()) != 64 {
		t.Errorf("Hex() length = %d, want 64", len(h1.Hex()))
	}
}

func TestHashFromHexRoundTrip(t *testing.T) {
	h := ComputeHash([]byte("test"))
	restored, err := HashFromHex(h.Hex())
	if err != nil {
		t.Fatalf("HashFromHex() error = %v", err)
	}
	if restored != h {
		t.Errorf("HashFromHex() = %v, want %v", restored, h)
	}
}

func TestHashVerify(t *testing.T) {
	data := []byte("test data")
	h := ComputeHash(data)
	if !h.Verify(data) {
		t.Error("Verify() = false for matching data")
	}
	if h.Verify([]byte("other data")) {
		t.Error("Verify() = true for mismatched data")
	}
}

func TestHashChainDeterministic(t *testing.T) {
	h1 := ComputeHash([]byte("first"))
	h2 := ComputeHash([]byte("second"))

	chained := h1.Chain(h2)
	if chained == h1 || chained == h2 {
		t.Error("Chain() result collided with an input")
	}
	if chained != h1.Chain(h2) {
		t.Error("Chain() is not deterministic")
	}
}

func TestContentAddressRoundTrip(t *testing.T) {
	data := []byte("blob content")
	addr := AddressFromData(data)
	if addr.Algorithm != AlgorithmBlake3 {
		t.Errorf("Algorithm = %v, want Blake3", addr.Algorithm)
	}
	if !addr.Hash.Verify(data) {
		t.Error("address hash does not verify data")
	}

	s := addr.String()
	restored, err := ParseContentAddress(s)
	if err != nil {
		t.Fatalf("ParseContentAddress() error = %v", err)
	}
	if restored != addr {
		t.Errorf("ParseContentAddress() = %v, want %v", restored, addr)
	}
}

func TestParseContentAddressRejectsBadAlgorithm(t *testing.T) {
	_, err := ParseContentAddress("sha256:" + ComputeHash([]byte("x")).Hex())
	if err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestParseContentAddressRejectsBadLength(t *testing.T) {
	_, err := ParseContentAddress("blake3:abcd")
	if err == nil {
		t.Error("expected error for short hash")
	}
}
