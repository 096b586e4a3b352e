package cursor

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	original := New("assertion-42", "source_id = 'src-1'")

	token, err := Encode(original)
	if err != nil {
		t.Fatalf("encode cursor: %v", err)
	}

	decoded, err := Decode(token)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}

	if decoded != original {
		t.Fatalf("cursor mismatch: %+v != %+v", decoded, original)
	}
}

func TestDecodeEmptyToken(t *testing.T) {
	t.Parallel()

	if _, err := Decode(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestDecodeInvalidBase64(t *testing.T) {
	t.Parallel()

	if _, err := Decode("not-base64@@"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestDecodeMissingKey(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Cursor{FilterHash: "abc"})
	if err != nil {
		t.Fatalf("marshal cursor: %v", err)
	}
	token := base64.URLEncoding.EncodeToString(raw)

	if _, err := Decode(token); err == nil {
		t.Fatal("expected error for missing resume key")
	}
}

func TestHashFilter(t *testing.T) {
	t.Parallel()

	if HashFilter("") != "" {
		t.Fatal("expected empty hash for empty filter")
	}

	hash := HashFilter("foo")
	if len(hash) != 16 {
		t.Fatalf("expected 16-char hash, got %d", len(hash))
	}

	if hash == HashFilter("bar") {
		t.Fatal("expected different hashes for different filters")
	}
}

func TestValidateFilterHash(t *testing.T) {
	t.Parallel()

	c := New("asrt-10", "status = 'APPROVED'")
	if err := ValidateFilterHash(c, "status = 'APPROVED'"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateFilterHash(c, "status = 'REJECTED'"); err == nil {
		t.Fatal("expected error for mismatched filter")
	}
}
