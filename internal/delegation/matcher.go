package delegation

import (
	"context"
	"sort"
	"strings"

	"github.com/ziadkadry99/personaengine/internal/capability"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/stringset"
)

// loadPenalty is subtracted from the capability score per open delegation.
const loadPenalty = 5

// RankCandidates scores every persona with declared capabilities against the
// required list and returns the qualifying ones, best first. Candidates are
// ordered by score minus five per open delegation, then by persona id. An
// empty result means nobody reached the minimum match.
func (s *Store) RankCandidates(ctx context.Context, required, exclude []string, opts RankOptions) ([]Candidate, error) {
	required = stringset.Normalize(required)
	if len(required) == 0 {
		return nil, errs.Validation("ranking requires at least one required capability")
	}
	opts = s.withDefaults(opts)

	records, err := s.caps.List(ctx)
	if err != nil {
		return nil, err
	}
	load, err := s.openLoad(ctx)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	out := []Candidate{}
	for _, rec := range records {
		if excluded[rec.PersonaID] {
			continue
		}
		score, matched := Score(required, rec)
		if score < opts.MinMatchPercent {
			continue
		}
		n := load[rec.PersonaID]
		if opts.ExcludeBusy && n >= opts.BusyThreshold {
			continue
		}
		out = append(out, Candidate{
			PersonaID:       rec.PersonaID,
			CapabilityScore: score,
			Load:            n,
			Rank:            score - float64(loadPenalty*n),
			Matched:         matched,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].PersonaID < out[j].PersonaID
	})
	if len(out) > opts.MaxCandidates {
		out = out[:opts.MaxCandidates]
	}
	return out, nil
}

// Score returns the percentage of required capabilities that match one of
// the record's expertise or tool entries, together with the required
// capabilities that matched. Matching is case-insensitive: a requirement
// matches an entry containing it ("ml" matches "ml-ops") or an entry it
// starts with ("python" matches "py"). An entry inside a requirement does
// not count, so "ml" never matches "html".
func Score(required []string, rec capability.Capability) (float64, []string) {
	if len(required) == 0 {
		return 0, []string{}
	}
	entries := rec.Entries()
	lowered := make([]string, len(entries))
	for i, e := range entries {
		lowered[i] = strings.ToLower(e)
	}

	matched := []string{}
	for _, req := range required {
		needle := strings.ToLower(req)
		for _, e := range lowered {
			if e == "" {
				continue
			}
			if strings.Contains(e, needle) || strings.HasPrefix(needle, e) {
				matched = append(matched, req)
				break
			}
		}
	}
	return 100 * float64(len(matched)) / float64(len(required)), matched
}

func (s *Store) withDefaults(opts RankOptions) RankOptions {
	if opts.MinMatchPercent <= 0 {
		opts.MinMatchPercent = s.defaults.MinMatchPercent
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = s.defaults.MaxCandidates
	}
	if opts.BusyThreshold <= 0 {
		opts.BusyThreshold = s.defaults.BusyThreshold
	}
	return opts
}
