package cache

import (
	"encoding/json"
	"time"

	"golang.org/x/xerrors"
)

// SetJSON marshals the value and stores it under the key
func (manager *Manager) SetJSON(key string, value interface{}, ttl time.Duration, inputHash string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return xerrors.Errorf("failed to serialize value for key %q: %w", key, err)
	}

	return manager.Set(key, data, ttl, inputHash)
}

// GetJSON retrieves and unmarshals the value stored under the key
func (manager *Manager) GetJSON(key string, inputHash string, target interface{}) (bool, error) {
	data, ok := manager.Get(key, inputHash)
	if !ok {
		return false, nil
	}

	err := json.Unmarshal(data, target)
	if err != nil {
		return false, xerrors.Errorf("failed to deserialize value for key %q: %w", key, err)
	}

	return true, nil
}
