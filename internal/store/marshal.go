package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hsk98/rota/internal/domain"
)

// timeLayout is the canonical timestamp encoding for all TEXT time columns.
// RFC 3339 with nanoseconds sorts lexicographically, so time comparisons
// can stay inside SQL.
const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// parseNullTime converts a nullable TEXT column into *time.Time.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalCapabilities encodes a capability list as a JSON array.
// Nil encodes as [] so the column is never NULL.
func marshalCapabilities(caps []string) (string, error) {
	if caps == nil {
		caps = []string{}
	}
	b, err := json.Marshal(caps)
	if err != nil {
		return "", fmt.Errorf("marshal capabilities: %w", err)
	}
	return string(b), nil
}

// capEntry is one cached parse of a capabilities column, stamped for TTL
// checks.
type capEntry struct {
	caps []string
	at   time.Time
}

// capCacheTTL bounds snapshot cache staleness. The cache only avoids
// re-parsing JSON; all correctness-bearing reads go to the database.
const capCacheTTL = 30 * time.Second

// parseCapabilities decodes a capabilities column, memoizing by raw JSON.
func (s *Store) parseCapabilities(raw string, now time.Time) ([]string, error) {
	if e, ok := s.capCache.Load(raw); ok && now.Sub(e.at) < capCacheTTL {
		return e.caps, nil
	}

	var caps []string
	if err := json.Unmarshal([]byte(raw), &caps); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities %q: %w", raw, err)
	}

	s.capCache.Store(raw, capEntry{caps: caps, at: now})
	return caps, nil
}

// marshalRequirements encodes a requirement sequence as a JSON array,
// preserving order. Nil encodes as [].
func marshalRequirements(reqs []domain.CapabilityRequirement) (string, error) {
	if reqs == nil {
		reqs = []domain.CapabilityRequirement{}
	}
	b, err := json.Marshal(reqs)
	if err != nil {
		return "", fmt.Errorf("marshal requirements: %w", err)
	}
	return string(b), nil
}

func unmarshalRequirements(raw string) ([]domain.CapabilityRequirement, error) {
	var reqs []domain.CapabilityRequirement
	if err := json.Unmarshal([]byte(raw), &reqs); err != nil {
		return nil, fmt.Errorf("unmarshal requirements %q: %w", raw, err)
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return reqs, nil
}

// wrapPersistence tags unexpected store failures with domain.ErrPersistence
// so the engine can distinguish "store broken" from "nothing to allocate".
func wrapPersistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}
