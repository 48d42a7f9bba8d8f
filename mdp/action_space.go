package mdp

import "strconv"

// Actions returns the action names in index order.
func (m *Map) Actions() []string {
	return append([]string(nil), m.actions...)
}

func (m *Map) ActionName(a Action) string {
	if a < 0 || int(a) >= len(m.actions) {
		return "?"
	}
	return m.actions[a]
}

// ActionIndex resolves an action name such as "UL".
func (m *Map) ActionIndex(name string) (Action, error) {
	for i, n := range m.actions {
		if n == name {
			return Action(i), nil
		}
	}
	return 0, Configf("ActionIndex", "unknown action %q (have %v)", name, m.actions)
}

// ActionIndices transforms a list of action names into action numbers.
func (m *Map) ActionIndices(names []string) ([]Action, error) {
	out := make([]Action, len(names))
	for i, name := range names {
		a, err := m.ActionIndex(name)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// ActionNames is the inverse of ActionIndices.
func (m *Map) ActionNames(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = m.ActionName(a)
	}
	return out
}

func (m *Map) TerrainName(t int) string {
	if t >= 0 && t < len(m.TerrainNames) {
		return m.TerrainNames[t]
	}
	return "terrain " + strconv.Itoa(t)
}

func (m *Map) ObjectTypeName(t int) string {
	if t >= 0 && t < len(m.ObjectNames) {
		return m.ObjectNames[t]
	}
	return "object " + strconv.Itoa(t)
}
