package types

import (
	"sort"

	"github.com/opencontainers/go-digest"
)

// ExclusionSet holds layer digests referenced by retained manifests.
// It lives for one cleanup run and is never persisted.
type ExclusionSet struct {
	digests map[digest.Digest]struct{}
}

func NewExclusionSet() *ExclusionSet {
	return &ExclusionSet{digests: map[digest.Digest]struct{}{}}
}

// Add records a digest and reports whether it was not present before.
func (s *ExclusionSet) Add(d digest.Digest) bool {
	if _, ok := s.digests[d]; ok {
		return false
	}
	s.digests[d] = struct{}{}
	return true
}

func (s *ExclusionSet) Contains(d digest.Digest) bool {
	_, ok := s.digests[d]
	return ok
}

func (s *ExclusionSet) Len() int {
	return len(s.digests)
}

// Digests returns the recorded digests in lexical order.
func (s *ExclusionSet) Digests() []digest.Digest {
	out := make([]digest.Digest, 0, len(s.digests))
	for d := range s.digests {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
