package codec

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/optilayer/optilayer/pkg/errors"
)

func TestKeyDeterministic(t *testing.T) {
	params := map[string]any{"doc": "readme", "strict": true, "depth": 3}

	k1, err := Key("validateDocument", params)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	k2, err := Key("validateDocument", map[string]any{"strict": true, "depth": 3, "doc": "readme"})
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}

	if k1 != k2 {
		t.Errorf("keys differ for equal params: %s vs %s", k1, k2)
	}
	if !strings.HasPrefix(k1, "validateDocument:") {
		t.Errorf("key %q missing operation prefix", k1)
	}
}

func TestKeyDistinguishes(t *testing.T) {
	base, _ := Key("op", map[string]any{"a": 1})

	tests := []struct {
		name      string
		operation string
		params    any
	}{
		{"different operation", "other", map[string]any{"a": 1}},
		{"different value", "op", map[string]any{"a": 2}},
		{"different key", "op", map[string]any{"b": 1}},
		{"different shape", "op", []any{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := Key(tt.operation, tt.params)
			if err != nil {
				t.Fatalf("Key failed: %v", err)
			}
			if k == base {
				t.Errorf("expected distinct key for %s", tt.name)
			}
		})
	}
}

func TestKeyUnencodableParams(t *testing.T) {
	_, err := Key("op", make(chan int))
	if err == nil {
		t.Fatal("expected error for unencodable params")
	}
	var optErr *errors.OptimizerError
	if !stderrors.As(err, &optErr) || optErr.Code != errors.ErrCodeKeyDerivationFailed {
		t.Errorf("expected KEY_DERIVATION_FAILED, got %v", err)
	}
}

func TestEncodeUnencodableValue(t *testing.T) {
	_, err := Encode(make(chan int))
	if err == nil {
		t.Fatal("expected error for unencodable value")
	}
	var optErr *errors.OptimizerError
	if !stderrors.As(err, &optErr) || optErr.Code != errors.ErrCodeEncodingFailed {
		t.Errorf("expected ENCODING_FAILED, got %v", err)
	}
}

func TestDecodeCorruptPayload(t *testing.T) {
	_, err := Decode([]byte("{truncated"))
	if err == nil {
		t.Fatal("expected error for corrupt payload")
	}
	var optErr *errors.OptimizerError
	if !stderrors.As(err, &optErr) || optErr.Code != errors.ErrCodeEncodingFailed {
		t.Errorf("expected ENCODING_FAILED, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	value := map[string]any{"status": "valid", "issues": []any{"missing title"}}

	data, err := Encode(value)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	m, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded value has type %T, want map", decoded)
	}
	if m["status"] != "valid" {
		t.Errorf("expected status valid, got %v", m["status"])
	}
}

func TestCompressorRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 200))

	for _, algorithm := range []string{AlgorithmGzip, AlgorithmZstd, AlgorithmLZ4} {
		t.Run(algorithm, func(t *testing.T) {
			c, err := NewCompressor(algorithm, 0)
			if err != nil {
				t.Fatalf("NewCompressor failed: %v", err)
			}

			compressed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if len(compressed) >= len(payload) {
				t.Errorf("compressed size %d not smaller than input %d", len(compressed), len(payload))
			}

			out, err := c.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestCompressorUnknownAlgorithm(t *testing.T) {
	if _, err := NewCompressor("snappy", 0); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestDecompressCorruptInput(t *testing.T) {
	c, err := NewCompressor(AlgorithmGzip, 0)
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	if _, err := c.Decompress([]byte("not gzip data")); err == nil {
		t.Fatal("expected error for corrupt input")
	}
}
