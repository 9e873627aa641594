package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// EnvVars custom type for JSON storage
type EnvVars map[string]string

func (e EnvVars) Value() (driver.Value, error) {
	if e == nil {
		return "{}", nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (e *EnvVars) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*e = EnvVars{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("env vars: unsupported column type %T", value)
	}
	if len(raw) == 0 {
		*e = EnvVars{}
		return nil
	}
	out := EnvVars{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*e = out
	return nil
}

// Keys returns the variable names in sorted order.
func (e EnvVars) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that can be modified freely.
func (e EnvVars) Clone() EnvVars {
	out := make(EnvVars, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
