package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"dlend/core/types"
	"dlend/native/lending"
)

const (
	poolPrefix     = "lending/pool/"
	userPrefix     = "lending/user/"
	positionPrefix = "lending/position/"
)

// Store persists engine records as JSON documents in a key-value Database.
// It satisfies the lending engine's state interface; records are decoded
// fresh on every read, so callers always receive independent copies.
type Store struct {
	db Database
}

// NewStore wraps a Database in the lending state schema.
func NewStore(db Database) *Store {
	return &Store{db: db}
}

func poolKey(poolID string) []byte {
	return []byte(poolPrefix + url.PathEscape(poolID))
}

func userKey(addr types.Address) []byte {
	return []byte(userPrefix + url.PathEscape(string(addr)))
}

// positionKey escapes both segments so addresses containing the separator
// cannot collide with other users' records.
func positionKey(addr types.Address, poolID string) []byte {
	return []byte(positionPrefix + url.PathEscape(string(addr)) + "/" + url.PathEscape(poolID))
}

func (s *Store) GetPool(poolID string) (*lending.Pool, error) {
	raw, err := s.db.Get(poolKey(poolID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pool lending.Pool
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, fmt.Errorf("storage: decode pool %q: %w", poolID, err)
	}
	return &pool, nil
}

func (s *Store) PutPool(pool *lending.Pool) error {
	if pool == nil || strings.TrimSpace(pool.ID) == "" {
		return fmt.Errorf("storage: pool record missing identifier")
	}
	raw, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return s.db.Put(poolKey(pool.ID), raw)
}

func (s *Store) ListPools() ([]*lending.Pool, error) {
	var pools []*lending.Pool
	err := s.db.Iterate([]byte(poolPrefix), func(key, value []byte) error {
		var pool lending.Pool
		if err := json.Unmarshal(value, &pool); err != nil {
			return fmt.Errorf("storage: decode pool at %q: %w", key, err)
		}
		pools = append(pools, &pool)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pools, nil
}

func (s *Store) GetUserPosition(addr types.Address) (*lending.UserPosition, error) {
	raw, err := s.db.Get(userKey(addr))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var position lending.UserPosition
	if err := json.Unmarshal(raw, &position); err != nil {
		return nil, fmt.Errorf("storage: decode user %q: %w", addr, err)
	}
	return &position, nil
}

func (s *Store) PutUserPosition(position *lending.UserPosition) error {
	if position == nil || position.Address.IsZero() {
		return fmt.Errorf("storage: user record missing address")
	}
	raw, err := json.Marshal(position)
	if err != nil {
		return err
	}
	return s.db.Put(userKey(position.Address), raw)
}

func (s *Store) GetUserPoolPosition(addr types.Address, poolID string) (*lending.UserPoolPosition, error) {
	raw, err := s.db.Get(positionKey(addr, poolID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var position lending.UserPoolPosition
	if err := json.Unmarshal(raw, &position); err != nil {
		return nil, fmt.Errorf("storage: decode position %q/%q: %w", addr, poolID, err)
	}
	return &position, nil
}

func (s *Store) PutUserPoolPosition(position *lending.UserPoolPosition) error {
	if position == nil || position.Address.IsZero() || strings.TrimSpace(position.PoolID) == "" {
		return fmt.Errorf("storage: position record missing identifiers")
	}
	raw, err := json.Marshal(position)
	if err != nil {
		return err
	}
	return s.db.Put(positionKey(position.Address, position.PoolID), raw)
}

func (s *Store) ListUserPoolPositions(addr types.Address) ([]*lending.UserPoolPosition, error) {
	prefix := positionPrefix + url.PathEscape(string(addr)) + "/"
	var positions []*lending.UserPoolPosition
	err := s.db.Iterate([]byte(prefix), func(key, value []byte) error {
		var position lending.UserPoolPosition
		if err := json.Unmarshal(value, &position); err != nil {
			return fmt.Errorf("storage: decode position at %q: %w", key, err)
		}
		positions = append(positions, &position)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}
