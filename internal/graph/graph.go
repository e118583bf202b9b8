// Package graph enforces the structural rules of the document dependency
// graph: cycle prevention at the family level, critical dependency gating,
// and dependency inheritance on up-version.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/doctrack/doctrack/internal/types"
)

// Resolver is the subset of storage operations the graph checks need. Both
// the Storage interface and an open Transaction satisfy it.
type Resolver interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	FamilyMembers(ctx context.Context, familyKey string) ([]*types.Document, error)
	LatestEffective(ctx context.Context, familyKey string) (*types.Document, error)
	GetOutboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error)
	AddDependency(ctx context.Context, dep *types.Dependency) error
}

// ValidateNewEdge checks a candidate edge from -> to before insertion.
// Self-edges and intra-family edges are rejected outright; then a family-level
// traversal from the target rejects any edge that would close a cycle.
// SUPERSEDES edges are system-generated within a family and excluded from the
// traversal.
func ValidateNewEdge(ctx context.Context, r Resolver, from, to *types.Document) error {
	if from.ID == to.ID {
		return types.NewDomainError(types.CodeCircularDependency,
			fmt.Sprintf("document %s cannot depend on itself", from.Number))
	}
	if from.FamilyKey == to.FamilyKey {
		return types.NewDomainError(types.CodeCircularDependency,
			fmt.Sprintf("documents %s and %s are versions of the same document", from.Number, to.Number))
	}

	// Direct inverse check: an active edge from to's family back to from's
	// family makes the cycle immediate.
	inverse, err := familyReachable(ctx, r, to.FamilyKey, from.FamilyKey, 1)
	if err != nil {
		return err
	}
	if inverse {
		return types.NewDomainError(types.CodeCircularDependency,
			fmt.Sprintf("%s already depends on %s", to.Number, from.Number))
	}

	// Full traversal: if from's family is reachable from to's family through
	// any number of hops, the new edge closes a cycle.
	reachable, err := familyReachable(ctx, r, to.FamilyKey, from.FamilyKey, 0)
	if err != nil {
		return err
	}
	if reachable {
		return types.NewDomainError(types.CodeCircularDependency,
			fmt.Sprintf("adding %s -> %s would create a dependency cycle", from.Number, to.Number))
	}
	return nil
}

// familyReachable walks active non-SUPERSEDES edges treating families as
// nodes, and reports whether target is reachable from start. maxDepth 0 means
// unbounded.
func familyReachable(ctx context.Context, r Resolver, start, target string, maxDepth int) (bool, error) {
	visited := map[string]bool{start: true}
	frontier := []string{start}
	// familyOf caches target document family lookups for this traversal.
	familyOf := map[string]string{}

	for depth := 1; len(frontier) > 0; depth++ {
		if maxDepth > 0 && depth > maxDepth {
			return false, nil
		}
		var next []string
		for _, family := range frontier {
			members, err := r.FamilyMembers(ctx, family)
			if err != nil {
				return false, err
			}
			for _, member := range members {
				edges, err := r.GetOutboundDependencies(ctx, member.ID, true)
				if err != nil {
					return false, err
				}
				for _, edge := range edges {
					if edge.Type == types.DepSupersedes {
						continue
					}
					toFamily, ok := familyOf[edge.ToID]
					if !ok {
						toDoc, err := r.GetDocument(ctx, edge.ToID)
						if err != nil {
							return false, err
						}
						toFamily = toDoc.FamilyKey
						familyOf[edge.ToID] = toFamily
					}
					if toFamily == target {
						return true, nil
					}
					if !visited[toFamily] {
						visited[toFamily] = true
						next = append(next, toFamily)
					}
				}
			}
		}
		frontier = next
	}
	return false, nil
}

// CheckCriticalDependencies validates every active is_critical outbound edge
// of a document: the target family must hold a member in EFFECTIVE or
// APPROVED_PENDING_EFFECTIVE. Returns CRITICAL_DEPENDENCY_UNMET listing the
// offending targets.
func CheckCriticalDependencies(ctx context.Context, r Resolver, doc *types.Document) error {
	edges, err := r.GetOutboundDependencies(ctx, doc.ID, true)
	if err != nil {
		return err
	}

	var unmet []string
	for _, edge := range edges {
		if !edge.IsCritical {
			continue
		}
		target, err := r.GetDocument(ctx, edge.ToID)
		if err != nil {
			return err
		}
		if criticalTargetSatisfied(ctx, r, target) {
			continue
		}
		unmet = append(unmet, fmt.Sprintf("%s (%s, %s)", target.Number, edge.Type, target.Status))
	}
	if len(unmet) > 0 {
		return types.NewDomainError(types.CodeCriticalDependencyUnmet,
			fmt.Sprintf("document %s has unmet critical dependencies", doc.Number), unmet...)
	}
	return nil
}

func criticalTargetSatisfied(ctx context.Context, r Resolver, target *types.Document) bool {
	if target.Status == types.StatusEffective || target.Status == types.StatusApprovedPendingEffective {
		return true
	}
	members, err := r.FamilyMembers(ctx, target.FamilyKey)
	if err != nil {
		return false
	}
	for _, m := range members {
		if m.Status == types.StatusEffective || m.Status == types.StatusApprovedPendingEffective {
			return true
		}
	}
	return false
}

// UnresolvedDependencyWarning is the warning prefix attached to workflow
// results when an inherited dependency has no effective target.
const UnresolvedDependencyWarning = "UNRESOLVED_DEPENDENCY"

// CopyDependencies inherits the active outbound edges of oldDoc onto newDoc.
// Each target is re-resolved to its family's latest effective member; targets
// with no effective member are copied as-is with a warning. SUPERSEDES edges
// are never inherited.
func CopyDependencies(ctx context.Context, r Resolver, oldDoc, newDoc *types.Document, actor string) ([]string, error) {
	edges, err := r.GetOutboundDependencies(ctx, oldDoc.ID, true)
	if err != nil {
		return nil, err
	}

	var warnings []string
	now := time.Now().UTC()
	for _, edge := range edges {
		if edge.Type == types.DepSupersedes {
			continue
		}
		target, err := r.GetDocument(ctx, edge.ToID)
		if err != nil {
			return nil, err
		}

		toID := target.ID
		effective, err := r.LatestEffective(ctx, target.FamilyKey)
		if err != nil {
			return nil, err
		}
		if effective != nil {
			toID = effective.ID
		} else {
			warnings = append(warnings, fmt.Sprintf(
				"%s: target %s has no effective version", UnresolvedDependencyWarning, target.Number))
		}

		err = r.AddDependency(ctx, &types.Dependency{
			ID:         uuid.NewString(),
			FromID:     newDoc.ID,
			ToID:       toID,
			Type:       edge.Type,
			IsCritical: edge.IsCritical,
			IsActive:   true,
			CreatedAt:  now,
			CreatedBy:  actor,
		})
		if err != nil {
			// Two old edges can resolve to the same effective target.
			if types.IsCode(err, types.CodeConflict) {
				continue
			}
			return nil, err
		}
	}
	return warnings, nil
}

// FindFamilyCycles detects cycles over a full edge snapshot for the periodic
// graph audit. familyOf maps document IDs to family keys; SUPERSEDES edges
// are ignored. Each cycle is returned as an ordered list of family keys.
func FindFamilyCycles(edges []*types.Dependency, familyOf map[string]string) [][]string {
	adj := map[string]map[string]bool{}
	for _, edge := range edges {
		if !edge.IsActive || edge.Type == types.DepSupersedes {
			continue
		}
		from, to := familyOf[edge.FromID], familyOf[edge.ToID]
		if from == "" || to == "" || from == to {
			continue
		}
		if adj[from] == nil {
			adj[from] = map[string]bool{}
		}
		adj[from][to] = true
	}

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	// frame is one node's position in the explicit DFS stack. The walk is
	// iterative so a deep graph cannot exhaust the goroutine stack.
	type frame struct {
		node    string
		targets []string
		next    int
	}
	newFrame := func(n string) *frame {
		targets := make([]string, 0, len(adj[n]))
		for t := range adj[n] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		return &frame{node: n, targets: targets}
	}

	state := map[string]int{}
	var cycles [][]string

	for _, root := range nodes {
		if state[root] != unvisited {
			continue
		}
		state[root] = inStack
		path := []string{root}
		stack := []*frame{newFrame(root)}

		for len(stack) > 0 {
			f := stack[len(stack)-1]
			if f.next < len(f.targets) {
				t := f.targets[f.next]
				f.next++
				switch state[t] {
				case unvisited:
					state[t] = inStack
					path = append(path, t)
					stack = append(stack, newFrame(t))
				case inStack:
					for i, p := range path {
						if p == t {
							cycles = append(cycles, append([]string{}, path[i:]...))
							break
						}
					}
				}
				continue
			}
			state[f.node] = done
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}
	return cycles
}
