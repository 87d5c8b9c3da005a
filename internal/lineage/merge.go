package lineage

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/ziadkadry99/personaengine/internal/audit"
	"github.com/ziadkadry99/personaengine/internal/capability"
	"github.com/ziadkadry99/personaengine/internal/errs"
	"github.com/ziadkadry99/personaengine/internal/stringset"
)

// weighted_average keeps only the most frequent entries.
const (
	topExpertise = 10
	topTools     = 15
)

// Merge combines the source personas' capabilities into the target inside a
// single transaction. The target capability is replaced, a merge audit entry
// is appended and a merged lineage edge is recorded from every source. If any
// step fails nothing is written.
func (s *Store) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	sources := stringset.Normalize(req.Sources)
	target := strings.TrimSpace(req.Target)
	if len(sources) == 0 {
		return nil, errs.Validation("merge requires at least one source persona")
	}
	if target == "" {
		return nil, errs.Validation("merge requires a target persona")
	}
	if stringset.Contains(sources, target) {
		return nil, errs.Validation("target %q cannot also be a source", target)
	}
	if !req.Strategy.Valid() {
		return nil, errs.Validation("unknown merge strategy %q", req.Strategy)
	}

	var result MergeResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		loaded := make([]capability.Capability, 0, len(sources))
		var sourcePerms []string
		for _, id := range sources {
			c, err := s.caps.GetTx(ctx, tx, id)
			if err != nil {
				return err
			}
			loaded = append(loaded, *c)

			perms, err := s.perms.PermissionsTx(ctx, tx, id)
			if err != nil {
				return err
			}
			sourcePerms = stringset.Union(sourcePerms, perms)
		}

		prior, err := s.caps.GetTx(ctx, tx, target)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		merged := Combine(req.Strategy, loaded)
		merged.PersonaID = target
		if prior != nil {
			merged.PerformanceMetrics = prior.PerformanceMetrics
			merged.LearningCapabilities = prior.LearningCapabilities
		}
		written, err := s.caps.PutTx(ctx, tx, &merged)
		if err != nil {
			return err
		}

		targetPerms, err := s.perms.PermissionsTx(ctx, tx, target)
		if err != nil {
			return err
		}

		before := allEntries(prior)
		after := allEntries(written)
		entry, err := s.audits.LogTx(ctx, tx, audit.Entry{
			PrimaryPersona:    target,
			SecondaryPersonas: sources,
			MergeStrategy:     string(req.Strategy),
			CapabilityDiff: audit.CapabilityDiff{
				Added:   stringset.Difference(after, before),
				Removed: stringset.Difference(before, after),
			},
			PermissionDiff:       audit.PermissionDiff{Granted: stringset.Difference(sourcePerms, targetPerms)},
			HistoryAccessGranted: req.HistoryAccessGranted,
			OperatorID:           req.OperatorID,
		})
		if err != nil {
			return err
		}

		share := 1 / float64(len(sources))
		records := make([]Record, 0, len(sources))
		for _, id := range sources {
			rec, err := s.recordTx(ctx, tx, id, target, StrategyMerged, share)
			if err != nil {
				return err
			}
			records = append(records, *rec)
		}

		result = MergeResult{Capability: written, Audit: entry, Lineage: records}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Combine applies a merge strategy to the three set fields of the sources.
// The returned record has no persona id.
func Combine(strategy MergeStrategy, sources []capability.Capability) capability.Capability {
	pick := func(field func(capability.Capability) []string) [][]string {
		out := make([][]string, len(sources))
		for i, c := range sources {
			out[i] = field(c)
		}
		return out
	}
	expertise := pick(func(c capability.Capability) []string { return c.Expertise })
	tools := pick(func(c capability.Capability) []string { return c.Tools })
	restrictions := pick(func(c capability.Capability) []string { return c.Restrictions })

	switch strategy {
	case MergeIntersection:
		return capability.Capability{
			Expertise:    intersect(expertise),
			Tools:        intersect(tools),
			Restrictions: intersect(restrictions),
		}
	case MergeWeightedAverage:
		return capability.Capability{
			Expertise:    mostFrequent(expertise, topExpertise),
			Tools:        mostFrequent(tools, topTools),
			Restrictions: union(restrictions),
		}
	default:
		return capability.Capability{
			Expertise:    union(expertise),
			Tools:        union(tools),
			Restrictions: union(restrictions),
		}
	}
}

func union(lists [][]string) []string {
	out := []string{}
	for _, l := range lists {
		out = stringset.Union(out, l)
	}
	return out
}

// intersect keeps the entries of the first list present in every other list.
func intersect(lists [][]string) []string {
	if len(lists) == 0 {
		return []string{}
	}
	out := []string{}
	for _, item := range stringset.Normalize(lists[0]) {
		inAll := true
		for _, l := range lists[1:] {
			if !stringset.Contains(stringset.Normalize(l), item) {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, item)
		}
	}
	return out
}

// mostFrequent ranks entries by how many lists contain them. Ties keep the
// order in which entries were first seen.
func mostFrequent(lists [][]string, limit int) []string {
	counts := map[string]int{}
	var order []string
	for _, l := range lists {
		for _, item := range stringset.Normalize(l) {
			if counts[item] == 0 {
				order = append(order, item)
			}
			counts[item]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	if order == nil {
		return []string{}
	}
	return order
}

func allEntries(c *capability.Capability) []string {
	if c == nil {
		return []string{}
	}
	return stringset.Union(c.Entries(), c.Restrictions)
}
