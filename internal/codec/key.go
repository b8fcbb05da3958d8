// Package codec derives cache keys from operation parameters and
// handles payload encoding and compression.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/optilayer/optilayer/pkg/errors"
)

// Key derives a deterministic cache key from an operation name and its
// parameters. Parameters are canonicalized through JSON encoding
// (encoding/json writes map keys in sorted order), so two calls with
// equal parameters always map to the same key.
func Key(operation string, params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", errors.NewError(errors.ErrCodeKeyDerivationFailed, "parameters are not encodable").
			WithComponent("codec").
			WithOperation(operation).
			WithCause(err)
	}

	h := xxhash.New()
	_, _ = h.WriteString(operation)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(data)

	return fmt.Sprintf("%s:%016x", operation, h.Sum64()), nil
}

// Encode serializes a value to its cacheable payload form.
func Encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeEncodingFailed, "value is not encodable").
			WithComponent("codec").
			WithCause(err)
	}
	return data, nil
}

// Decode deserializes a cached payload back into a value.
func Decode(data []byte) (any, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, errors.NewError(errors.ErrCodeEncodingFailed, "payload is not decodable").
			WithComponent("codec").
			WithCause(err)
	}
	return value, nil
}
