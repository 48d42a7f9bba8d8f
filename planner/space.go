package planner

import "github.com/CodeStranger-Fred/bishop/mdp"

// StateSpace enumerates every (cell, mask) pair as a single dense index:
// cell<<objects | mask. States that consumption can never reach are kept;
// they only cost iteration time.
type StateSpace struct {
	Cells   int
	Objects int
}

func (sp StateSpace) Size() int { return sp.Cells << uint(sp.Objects) }

func (sp StateSpace) Index(s mdp.State) int {
	return s.Cell<<uint(sp.Objects) | int(s.Mask)
}

func (sp StateSpace) State(i int) mdp.State {
	return mdp.State{
		Cell: i >> uint(sp.Objects),
		Mask: uint64(i) & ((uint64(1) << uint(sp.Objects)) - 1),
	}
}

// Contains reports whether s lies inside the space.
func (sp StateSpace) Contains(s mdp.State) bool {
	return s.Cell >= 0 && s.Cell < sp.Cells && s.Mask < uint64(1)<<uint(sp.Objects)
}
