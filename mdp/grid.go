package mdp

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Object is a consumable reward item sitting on a cell.
type Object struct {
	Cell int
	Type int
}

// Map is a bounded grid world. Cells are numbered row-major from the top left
// corner. Moves that would leave the grid or enter a wall leave the agent in
// place.
type Map struct {
	Width    int
	Height   int
	Diagonal bool

	Terrain      []int
	TerrainNames []string
	Walls        []bool

	Objects     []Object
	ObjectNames []string

	Start int
	Exit  int

	actions []string
}

// BuildGrid creates a width x height map with every cell on terrain 0 and
// no objects. Start and exit are unset until SetStart and SetExit.
func BuildGrid(width, height int, diagonal bool) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, Configf("BuildGrid", "grid must be at least 1x1, got %dx%d", width, height)
	}
	m := &Map{
		Width:    width,
		Height:   height,
		Diagonal: diagonal,
		Terrain:  make([]int, width*height),
		Walls:    make([]bool, width*height),
		Start:    -1,
		Exit:     -1,
	}
	if diagonal {
		m.actions = diagonalActions
	} else {
		m.actions = cardinalActions
	}
	return m, nil
}

func (m *Map) NumCells() int   { return m.Width * m.Height }
func (m *Map) NumActions() int { return len(m.actions) }
func (m *Map) NumObjects() int { return len(m.Objects) }

// NumTerrains is the number of terrain types the map declares: the number of
// terrain names when present, otherwise one more than the largest label.
func (m *Map) NumTerrains() int {
	if len(m.TerrainNames) > 0 {
		return len(m.TerrainNames)
	}
	n := 0
	for _, t := range m.Terrain {
		if t+1 > n {
			n = t + 1
		}
	}
	return n
}

// NumObjectTypes is one more than the largest object type, or the number of
// object names when those declare more types than are placed.
func (m *Map) NumObjectTypes() int {
	n := len(m.ObjectNames)
	for _, o := range m.Objects {
		if o.Type+1 > n {
			n = o.Type + 1
		}
	}
	return n
}

func (m *Map) InRange(cell int) bool {
	return cell >= 0 && cell < m.NumCells()
}

// Index converts 0-based (x, y) coordinates to a cell number.
func (m *Map) Index(x, y int) (int, error) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0, Configf("Index", "coordinates (%d,%d) off a %dx%d grid", x, y, m.Width, m.Height)
	}
	return y*m.Width + x, nil
}

// Coordinates is the inverse of Index.
func (m *Map) Coordinates(cell int) (x, y int, err error) {
	if !m.InRange(cell) {
		return 0, 0, Configf("Coordinates", "cell %d out of range [0,%d)", cell, m.NumCells())
	}
	return cell % m.Width, cell / m.Width, nil
}

// Next applies the deterministic base kernel.
func (m *Map) Next(cell int, a Action) int {
	if a < 0 || int(a) >= len(m.actions) {
		return cell
	}
	x := cell%m.Width + actionDX[a]
	y := cell/m.Width + actionDY[a]
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return cell
	}
	next := y*m.Width + x
	if m.Walls[next] {
		return cell
	}
	return next
}

// Transition implements Kernel. The base grid is deterministic, so the
// distribution is a point mass.
func (m *Map) Transition(cell int, a Action) DiscretePdf[int] {
	pdf := DiscretePdf[int]{}
	pdf.Add(m.Next(cell, a), 1)
	return pdf
}

// SetTerrain replaces the per-cell terrain labels and, optionally, their names.
func (m *Map) SetTerrain(types []int, names []string) error {
	if len(types) != m.NumCells() {
		return Configf("SetTerrain", "got %d terrain labels for %d cells", len(types), m.NumCells())
	}
	for i, t := range types {
		if t < 0 {
			return Configf("SetTerrain", "cell %d has negative terrain %d", i, t)
		}
		if len(names) > 0 && t >= len(names) {
			return Configf("SetTerrain", "cell %d uses terrain %d but only %d are named", i, t, len(names))
		}
	}
	m.Terrain = append([]int(nil), types...)
	m.TerrainNames = append([]string(nil), names...)
	return nil
}

// InsertSquare paints a width x height block whose top left corner is (x, y).
func (m *Map) InsertSquare(x, y, width, height, terrain int) error {
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > m.Width || y+height > m.Height {
		return Configf("InsertSquare", "square %dx%d at (%d,%d) does not fit a %dx%d map",
			width, height, x, y, m.Width, m.Height)
	}
	if terrain < 0 {
		return Configf("InsertSquare", "negative terrain %d", terrain)
	}
	for r := y; r < y+height; r++ {
		for c := x; c < x+width; c++ {
			m.Terrain[r*m.Width+c] = terrain
		}
	}
	return nil
}

// SetWalls marks cells as impassable.
func (m *Map) SetWalls(cells []int) error {
	walls := make([]bool, m.NumCells())
	for _, c := range cells {
		if !m.InRange(c) {
			return Configf("SetWalls", "wall cell %d out of range [0,%d)", c, m.NumCells())
		}
		walls[c] = true
	}
	m.Walls = walls
	return nil
}

// PlaceObjects records reward objects. names, if given, name each object type.
func (m *Map) PlaceObjects(locations, types []int, names []string) error {
	if len(locations) != len(types) {
		return Configf("PlaceObjects", "%d locations but %d types", len(locations), len(types))
	}
	if len(locations) > MaxObjects {
		return Configf("PlaceObjects", "%d objects exceeds the limit of %d", len(locations), MaxObjects)
	}
	seen := make(map[int]bool, len(locations))
	objects := make([]Object, len(locations))
	for i, loc := range locations {
		if !m.InRange(loc) {
			return Configf("PlaceObjects", "object %d at cell %d out of range [0,%d)", i, loc, m.NumCells())
		}
		if types[i] < 0 {
			return Configf("PlaceObjects", "object %d has negative type %d", i, types[i])
		}
		if seen[loc] {
			return Configf("PlaceObjects", "two objects on cell %d", loc)
		}
		seen[loc] = true
		objects[i] = Object{Cell: loc, Type: types[i]}
	}
	m.Objects = objects
	m.ObjectNames = append([]string(nil), names...)
	return nil
}

func (m *Map) SetStart(cell int) error {
	if !m.InRange(cell) {
		return Configf("SetStart", "start cell %d out of range [0,%d)", cell, m.NumCells())
	}
	m.Start = cell
	return nil
}

func (m *Map) SetExit(cell int) error {
	if !m.InRange(cell) {
		return Configf("SetExit", "exit cell %d out of range [0,%d)", cell, m.NumCells())
	}
	m.Exit = cell
	return nil
}

// ObjectAt returns the index of the object on cell, or -1.
func (m *Map) ObjectAt(cell int) int {
	for i, o := range m.Objects {
		if o.Cell == cell {
			return i
		}
	}
	return -1
}

// FullMask has one bit set per object.
func (m *Map) FullMask() uint64 {
	return (uint64(1) << uint(len(m.Objects))) - 1
}

// Validate checks the layout is complete and consistent.
func (m *Map) Validate() error {
	const op = "Map.Validate"
	if len(m.Terrain) != m.NumCells() || len(m.Walls) != m.NumCells() {
		return Configf(op, "terrain or wall table does not cover %d cells", m.NumCells())
	}
	if !m.InRange(m.Start) {
		return Configf(op, "start cell not set")
	}
	if !m.InRange(m.Exit) {
		return Configf(op, "exit cell not set")
	}
	if m.Walls[m.Start] || m.Walls[m.Exit] {
		return Configf(op, "start or exit is a wall")
	}
	n := m.NumTerrains()
	for i, t := range m.Terrain {
		if t < 0 || t >= n {
			return Configf(op, "cell %d has undeclared terrain %d", i, t)
		}
	}
	for i, o := range m.Objects {
		switch {
		case m.Walls[o.Cell]:
			return Configf(op, "object %d sits on a wall", i)
		case o.Cell == m.Start:
			return Configf(op, "object %d sits on the start cell", i)
		case o.Cell == m.Exit:
			return Configf(op, "object %d sits on the exit cell", i)
		}
	}
	return nil
}

// CanReach marks every cell from which target is reachable through the base
// kernel.
func (m *Map) CanReach(target int) []bool {
	n := m.NumCells()
	reach := make([]bool, n)
	if !m.InRange(target) {
		return reach
	}

	// edges point from a cell to its predecessors, so a walk from target
	// visits everything that can get there
	g := simple.NewDirectedGraph()
	for c := 0; c < n; c++ {
		g.AddNode(simple.Node(c))
	}
	for c := 0; c < n; c++ {
		if m.Walls[c] {
			continue
		}
		for a := range m.actions {
			if next := m.Next(c, Action(a)); next != c {
				g.SetEdge(simple.Edge{F: simple.Node(next), T: simple.Node(c)})
			}
		}
	}

	reach[target] = true
	bf := traverse.BreadthFirst{
		Visit: func(v graph.Node) { reach[v.ID()] = true },
	}
	bf.Walk(g, simple.Node(target), nil)
	return reach
}

// CheckExitReachable fails if any open cell cannot reach the exit.
func (m *Map) CheckExitReachable() error {
	reach := m.CanReach(m.Exit)
	for c, ok := range reach {
		if !ok && !m.Walls[c] {
			return Configf("CheckExitReachable", "exit %d unreachable from cell %d", m.Exit, c)
		}
	}
	return nil
}
