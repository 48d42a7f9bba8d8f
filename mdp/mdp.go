// Package mdp holds the static description of a grid world: cells, terrain,
// walls, reward objects, the start and exit cells, and the deterministic base
// transition kernel. Planning code layers object consumption on top of it.
package mdp

// Action indexes the map's action list ("L", "R", "U", "D", and with diagonal
// travel "UL", "UR", "DL", "DR").
type Action int

// State is an expanded planning state: a cell plus the bitmask of objects that
// are still on the map. Bit i is set while object i has not been collected.
type State struct {
	Cell int
	Mask uint64
}

// Has reports whether object i is still present in s.
func (s State) Has(i int) bool {
	return s.Mask&(1<<uint(i)) != 0
}

// Transition records one step taken by an agent.
type Transition struct {
	State0 State
	Action Action
	State1 State
	Reward float64
}

// Kernel maps a (cell, action) pair to a distribution over next cells.
type Kernel interface {
	Transition(cell int, a Action) DiscretePdf[int]
}

// MaxObjects bounds the number of reward objects. The expanded state space
// grows as cells*2^objects, so this is a memory limit, not an algorithmic one.
const MaxObjects = 20

var (
	cardinalActions = []string{"L", "R", "U", "D"}
	diagonalActions = []string{"L", "R", "U", "D", "UL", "UR", "DL", "DR"}

	// column and row offsets, indexed like diagonalActions
	actionDX = []int{-1, 1, 0, 0, -1, 1, -1, 1}
	actionDY = []int{0, 0, -1, 1, -1, -1, 1, 1}
)
