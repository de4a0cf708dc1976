// Package comparator compares the latest object sets of two targets, or a
// frozen baseline against a live target, by definition hash, and produces
// line-level diffs for individual objects.
package comparator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/CosmoTheDev/procwatch/internal/objdef"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/models"
)

// Per-object comparison statuses.
const (
	StatusIdentical = "identical"
	StatusDifferent = "different"
	StatusOnlyInA   = "only_in_a"
	StatusOnlyInB   = "only_in_b"
)

// compareDeadline bounds one interactive comparison.
const compareDeadline = 20 * time.Second

// Side identifies one target of a comparison.
type Side struct {
	TenantID    int    `json:"tenant_id"`
	TenantCode  string `json:"tenant_code"`
	Environment string `json:"environment"`
}

// Entry is one object on one side of a comparison: its identity, hash, and a
// reference (snapshot id or baseline object id) for fetching the definition.
type Entry struct {
	FullName   string
	ObjectType string
	Hash       string
	Ref        int64
}

// Result is the comparison outcome for one object name.
type Result struct {
	FullName   string `json:"full_name"`
	ObjectType string `json:"object_type"`
	Status     string `json:"status"`
	HashA      string `json:"hash_a,omitempty"`
	HashB      string `json:"hash_b,omitempty"`
	RefA       int64  `json:"ref_a,omitempty"`
	RefB       int64  `json:"ref_b,omitempty"`
}

// Summary is a full comparison: per-object results plus counts.
type Summary struct {
	SideA     Side     `json:"side_a"`
	SideB     Side     `json:"side_b"`
	Results   []Result `json:"results"`
	Identical int      `json:"identical"`
	Different int      `json:"different"`
	OnlyInA   int      `json:"only_in_a"`
	OnlyInB   int      `json:"only_in_b"`
}

// Comparator reads snapshot and baseline data through a Store.
type Comparator struct {
	store *repository.Store
}

// New creates a Comparator over store.
func New(store *repository.Store) *Comparator {
	return &Comparator{store: store}
}

// Compare matches the latest non-custom snapshots of target A against target
// B by case-insensitive fullName. kindFilter restricts the comparison to one
// object kind; empty means all kinds.
func (c *Comparator) Compare(ctx context.Context, a, b Side, kindFilter string) (*Summary, error) {
	if kindFilter != "" && !models.ValidKind(kindFilter) {
		return nil, fmt.Errorf("%w: unknown object kind %q", repository.ErrInvariant, kindFilter)
	}
	ctx, cancel := context.WithTimeout(ctx, compareDeadline)
	defer cancel()

	entriesA, err := c.latestEntries(ctx, a, kindFilter)
	if err != nil {
		return nil, err
	}
	entriesB, err := c.latestEntries(ctx, b, kindFilter)
	if err != nil {
		return nil, err
	}
	summary := CompareEntries(entriesA, entriesB)
	summary.SideA = a
	summary.SideB = b
	return summary, nil
}

func (c *Comparator) latestEntries(ctx context.Context, side Side, kindFilter string) ([]Entry, error) {
	latest, err := c.store.LatestSnapshots(ctx, side.TenantID, side.Environment)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, snap := range latest {
		// Custom objects differ per tenant by definition; comparing them
		// across targets only produces noise.
		if snap.IsCustom {
			continue
		}
		if kindFilter != "" && snap.ObjectType != kindFilter {
			continue
		}
		entries = append(entries, Entry{
			FullName:   snap.FullName,
			ObjectType: snap.ObjectType,
			Hash:       snap.DefinitionHash,
			Ref:        snap.ID,
		})
	}
	return entries, nil
}

// CompareEntries matches two entry sets by case-insensitive fullName and
// classifies each name. Results are ordered differences-first, then by name.
func CompareEntries(a, b []Entry) *Summary {
	byKeyA := entryIndex(a)
	byKeyB := entryIndex(b)

	summary := &Summary{}
	seen := make(map[string]struct{}, len(byKeyA))
	for key, ea := range byKeyA {
		seen[key] = struct{}{}
		result := Result{
			FullName:   ea.FullName,
			ObjectType: ea.ObjectType,
			HashA:      ea.Hash,
			RefA:       ea.Ref,
		}
		if eb, ok := byKeyB[key]; ok {
			result.HashB = eb.Hash
			result.RefB = eb.Ref
			if ea.Hash == eb.Hash {
				result.Status = StatusIdentical
				summary.Identical++
			} else {
				result.Status = StatusDifferent
				summary.Different++
			}
		} else {
			result.Status = StatusOnlyInA
			summary.OnlyInA++
		}
		summary.Results = append(summary.Results, result)
	}
	for key, eb := range byKeyB {
		if _, ok := seen[key]; ok {
			continue
		}
		summary.Results = append(summary.Results, Result{
			FullName:   eb.FullName,
			ObjectType: eb.ObjectType,
			Status:     StatusOnlyInB,
			HashB:      eb.Hash,
			RefB:       eb.Ref,
		})
		summary.OnlyInB++
	}

	sort.Slice(summary.Results, func(i, j int) bool {
		ri, rj := summary.Results[i], summary.Results[j]
		if a, b := statusRank(ri.Status), statusRank(rj.Status); a != b {
			return a < b
		}
		return objdef.Key(ri.FullName) < objdef.Key(rj.FullName)
	})
	return summary
}

func entryIndex(entries []Entry) map[string]Entry {
	index := make(map[string]Entry, len(entries))
	for _, e := range entries {
		key := objdef.Key(e.FullName)
		if _, dup := index[key]; !dup {
			index[key] = e
		}
	}
	return index
}

// statusRank orders results so differences surface before matches.
func statusRank(status string) int {
	switch status {
	case StatusDifferent:
		return 0
	case StatusOnlyInA:
		return 1
	case StatusOnlyInB:
		return 2
	default:
		return 3
	}
}
