package store

import (
	"database/sql"
	"errors"
	"time"
)

// LoadCacheEntry returns a cached payload. ok is false when the key is absent.
func (s *Store) LoadCacheEntry(key string) ([]byte, time.Time, bool, error) {
	var (
		payload   []byte
		fetchedAt time.Time
	)
	err := s.db.QueryRow(`SELECT payload, fetched_at FROM cache_entries WHERE key = ?`, key).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return payload, fetchedAt, true, nil
}

// SaveCacheEntry upserts a cached payload.
func (s *Store) SaveCacheEntry(key string, payload []byte, fetchedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO cache_entries (key, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, payload, fetchedAt.UTC(),
	)
	return err
}

// DeleteCacheEntry removes the entry stored under exactly key.
func (s *Store) DeleteCacheEntry(key string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// DeleteCacheEntries removes every entry whose key starts with prefix.
// An empty prefix clears the table.
func (s *Store) DeleteCacheEntries(prefix string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE substr(key, 1, length(?)) = ?`, prefix, prefix)
	return err
}
