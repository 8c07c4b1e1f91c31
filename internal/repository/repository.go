package repository

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrVersionConflict indicates a conditional write lost to a concurrent
// update of the same row. Callers re-read and retry.
var ErrVersionConflict = errors.New("version conflict")

func marshalJSONB(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return data, nil
}

func unmarshalJSONB(data []byte, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}
