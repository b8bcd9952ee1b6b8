package referral

import (
	"referral_ledger/internal/domain"
)

// StopReason says why a walk ended.
type StopReason string

const (
	StopNoReferrer StopReason = "no_referrer"
	StopRoot       StopReason = "root"
	StopUnresolved StopReason = "unresolved"
	StopMaxDepth   StopReason = "max_depth"
	StopCycle      StopReason = "cycle"
)

type Ancestor struct {
	Depth   int
	Account *domain.Account
}

type Walk struct {
	Ancestors []Ancestor
	Stop      StopReason
	// StopCode is the referral code that ended the walk, if any.
	StopCode string
}

type Walker struct {
	maxDepth int
	rootCode string
}

// NewWalker returns a walker that emits at most maxDepth ancestors and treats
// rootCode as the top of the tree.
func NewWalker(maxDepth int, rootCode string) *Walker {
	if rootCode == "" {
		rootCode = domain.DefaultRootCode
	}
	return &Walker{
		maxDepth: maxDepth,
		rootCode: domain.NormalizeCode(rootCode),
	}
}

// Walk follows referrer codes upward from start. Depth 0 is the immediate
// referrer. The walk ends at an empty or root code, at a code the graph cannot
// resolve, after maxDepth ancestors, or when an account would be visited twice.
func (w *Walker) Walk(start *domain.Account, g *Graph) Walk {
	var result Walk

	visited := map[string]struct{}{start.ID: {}}
	current := domain.NormalizeCode(start.ReferrerID)

	for depth := 0; ; depth++ {
		if depth >= w.maxDepth {
			result.Stop = StopMaxDepth
			result.StopCode = current
			return result
		}
		if current == "" {
			result.Stop = StopNoReferrer
			return result
		}
		if current == w.rootCode {
			result.Stop = StopRoot
			result.StopCode = current
			return result
		}

		ancestor, ok := g.Lookup(current)
		if !ok {
			result.Stop = StopUnresolved
			result.StopCode = current
			return result
		}
		if _, seen := visited[ancestor.ID]; seen {
			result.Stop = StopCycle
			result.StopCode = current
			return result
		}
		visited[ancestor.ID] = struct{}{}

		result.Ancestors = append(result.Ancestors, Ancestor{Depth: depth, Account: ancestor})
		current = domain.NormalizeCode(ancestor.ReferrerID)
	}
}
