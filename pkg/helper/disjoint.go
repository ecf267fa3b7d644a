package helper

import (
	"sort"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

// DisjointPathsOK implements the Disjoint-paths predicate from the
// DolevRC component design: given the set of observed paths, find at
// least quorum paths whose interior node sets (excluding the shared
// source endpoint, path[0]) are pairwise disjoint.
//
// Choosing a maximum set of pairwise-disjoint paths out of an arbitrary
// observed set is a set-packing problem, not solvable by a greedy
// shortest-first pass: two paths sharing one node can each individually
// be the shortest candidate yet block a larger disjoint set that a
// different choice would have reached. This tries candidates shortest
// first (a path tried early and rejected costs less backtracking) but
// backtracks over every inclusion/exclusion choice, so it always finds
// a disjoint quorum if the observed path set contains one.
//
// A path's first element is always the author/source process — every
// observed path for a given message starts there, so counting it as
// interior would make every path trivially non-disjoint with every
// other. The interior is therefore path[1:]: self, the implicit
// terminal endpoint, is never itself recorded in the path (a process
// only appends the peer it *received from*, not itself), so only the
// source endpoint needs stripping.
func DisjointPathsOK(paths map[string][]types.ProcessID, quorum int) bool {
	if quorum <= 0 {
		return true
	}
	if len(paths) < quorum {
		return false
	}

	interiors := make([][]types.ProcessID, 0, len(paths))
	for _, p := range paths {
		interior := p
		if len(interior) > 0 {
			interior = interior[1:]
		}
		interiors = append(interiors, interior)
	}
	sort.Slice(interiors, func(i, j int) bool {
		return len(interiors[i]) < len(interiors[j])
	})

	return selectDisjoint(interiors, 0, quorum, make(map[types.ProcessID]struct{}))
}

// selectDisjoint backtracks over interiors[idx:], deciding for each
// whether including it (if disjoint from used) can still reach
// remaining selections from what is left.
func selectDisjoint(interiors [][]types.ProcessID, idx, remaining int, used map[types.ProcessID]struct{}) bool {
	if remaining == 0 {
		return true
	}
	if len(interiors)-idx < remaining {
		return false
	}

	candidate := interiors[idx]
	if disjointFrom(candidate, used) {
		for _, n := range candidate {
			used[n] = struct{}{}
		}
		if selectDisjoint(interiors, idx+1, remaining-1, used) {
			return true
		}
		for _, n := range candidate {
			delete(used, n)
		}
	}
	return selectDisjoint(interiors, idx+1, remaining, used)
}

func disjointFrom(interior []types.ProcessID, used map[types.ProcessID]struct{}) bool {
	for _, n := range interior {
		if _, ok := used[n]; ok {
			return false
		}
	}
	return true
}
