package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores a validated JSON object in a jsonb column. Dynamic payloads
// (peer ratings, bid confirmations, role-count histograms) are validated at
// the boundary and persisted through this type, never as opaque blobs with
// unknown shape.
type JSONMap map[string]any

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return m.parseFromBytes(v)
	case string:
		return m.parseFromBytes([]byte(v))
	default:
		return fmt.Errorf("JSONMap: unsupported Scan type %T", src)
	}
}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("JSONMap: marshal: %w", err)
	}
	return string(data), nil
}

func (m *JSONMap) parseFromBytes(data []byte) error {
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("JSONMap: unmarshal: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	*m = out
	return nil
}
