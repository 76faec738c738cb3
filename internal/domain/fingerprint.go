package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCapability returns the canonical form of a capability id:
// NFC-normalized, trimmed, lowercased. Two ids that normalize equally refer
// to the same capability regardless of how the caller typed them.
func NormalizeCapability(id string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(id)))
}

// RequirementsFingerprint computes a stable 128-bit fingerprint of a
// requirement set, stored on assignment rows and carried in audit events so
// that "same requirements" can be asserted without comparing slices.
//
// The encoding is order-insensitive: requirements are canonicalized and
// sorted by id before hashing, with a null separator between fields to keep
// id/priority boundaries unambiguous.
func RequirementsFingerprint(reqs []CapabilityRequirement) string {
	if len(reqs) == 0 {
		return ""
	}

	canon := make([]string, 0, len(reqs))
	for _, r := range reqs {
		canon = append(canon, fmt.Sprintf("%s\x00%d", NormalizeCapability(r.ID), r.Priority))
	}
	sort.Strings(canon)

	h := xxh3.HashString128(strings.Join(canon, "\x00"))
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// ValidateRequirements rejects malformed requirement sequences before any
// filtering runs. An empty sequence is valid (capability matching becomes a
// pass-through).
func ValidateRequirements(reqs []CapabilityRequirement) error {
	seen := make(map[string]bool, len(reqs))
	for i, r := range reqs {
		id := NormalizeCapability(r.ID)
		if id == "" {
			return fmt.Errorf("%w: requirement %d has empty id", ErrInvalidRequirement, i)
		}
		if r.Priority < 0 {
			return fmt.Errorf("%w: requirement %q has negative priority %d", ErrInvalidRequirement, id, r.Priority)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate requirement %q", ErrInvalidRequirement, id)
		}
		seen[id] = true
	}
	return nil
}
