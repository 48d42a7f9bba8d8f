package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corridor = `
name: corridor
agent:
  costPrior: ScaledUniform
  costParameters: [1]
  rewardPrior: Gamma
  rewardParameters: [2, 0.5]
  cNull: 0.1
  rNull: 0.2
  choiceTau: 0.5
  actionTau: 0.25
  softmaxChoice: false
  restrict: true
map:
  diagonal: false
  start: 0
  exit: 8
  terrain: |
    000
    111
    110
  terrainNames: [road, mud]
objects:
  locations: [2]
  types: [0]
  names: [apple]
observed: [R, R, D, D]
`

func TestParseScenario(t *testing.T) {
	sc, err := Parse([]byte(corridor), ".")
	require.NoError(t, err)

	assert.Equal(t, "corridor", sc.Name)
	assert.Equal(t, []string{"R", "R", "D", "D"}, sc.Observed)

	m := sc.Map
	assert.Equal(t, 3, m.Width)
	assert.Equal(t, 3, m.Height)
	assert.Equal(t, 4, m.NumActions())
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 1, 1, 0}, m.Terrain)
	assert.Equal(t, []string{"road", "mud"}, m.TerrainNames)
	assert.Equal(t, 0, m.Start)
	assert.Equal(t, 8, m.Exit)
	assert.Equal(t, []mdp.Object{{Cell: 2, Type: 0}}, m.Objects)
	assert.Equal(t, "apple", m.ObjectTypeName(0))

	model := sc.Model
	assert.Equal(t, []agent.PriorSpec{{Family: agent.ScaledUniform, Params: []float64{1}}}, model.CostPriors)
	assert.Equal(t, []agent.PriorSpec{{Family: agent.Gamma, Params: []float64{2, 0.5}}}, model.RewardPriors)
	assert.Equal(t, 0.1, model.CostNullProbability)
	assert.Equal(t, 0.2, model.RewardNullProbability)
	assert.Equal(t, agent.Temperatures{Choice: 0, Action: 0.25}, model.Temperatures())
	assert.True(t, model.Restrict)
	costs, rewards := model.Dimensions()
	assert.Equal(t, 2, costs)
	assert.Equal(t, 1, rewards)
}

func TestDefaults(t *testing.T) {
	sc, err := Parse([]byte(`
map:
  start: 0
  exit: 3
  terrain: "0000"
objects:
  locations: [1, 2]
`), ".")
	require.NoError(t, err)
	assert.Equal(t, 8, sc.Map.NumActions(), "diagonal travel is on by default")
	assert.Equal(t, []mdp.Object{{Cell: 1, Type: 0}, {Cell: 2, Type: 0}}, sc.Map.Objects)

	def := agent.DefaultModel()
	assert.Equal(t, def.CostPriors, sc.Model.CostPriors)
	assert.Equal(t, def.RewardPriors, sc.Model.RewardPriors)
	assert.Equal(t, agent.Temperatures{Choice: 0.01, Action: 0.01}, sc.Model.Temperatures())
	assert.Zero(t, sc.Model.CostNullProbability)
}

// The shared `prior` and `pNull` keys alias one value onto both the cost and
// the reward side. Only the family is shared: hyperparameters stay separate.
func TestSharedPriorAliasing(t *testing.T) {
	sc, err := Parse([]byte(`
agent:
  prior: Exponential
  costParameters: [2]
  rewardParameters: [0.5]
  pNull: 0.3
map: {start: 0, exit: 1, terrain: "00"}
objects: {}
`), ".")
	require.NoError(t, err)
	assert.Equal(t, []agent.PriorSpec{{Family: agent.Exponential, Params: []float64{2}}}, sc.Model.CostPriors)
	assert.Equal(t, []agent.PriorSpec{{Family: agent.Exponential, Params: []float64{0.5}}}, sc.Model.RewardPriors)
	assert.Equal(t, 0.3, sc.Model.CostNullProbability)
	assert.Equal(t, 0.3, sc.Model.RewardNullProbability)

	for name, doc := range map[string]string{
		"prior and costPrior": "agent: {prior: Exponential, costPrior: Gamma, costParameters: [1]}",
		"pNull and rNull":     "agent: {pNull: 0.1, rNull: 0.2}",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc+"\nmap: {start: 0, exit: 1, terrain: \"00\"}\n"), ".")
			assert.ErrorIs(t, err, mdp.ErrConfiguration)
		})
	}
}

func TestPerDimensionPriors(t *testing.T) {
	sc, err := Parse([]byte(`
agent:
  costPriors:
    - {family: Constant, params: [0]}
    - {family: Beta, params: [2, 2, 5]}
map: {start: 0, exit: 1, terrain: "01", diagonal: false}
`), ".")
	require.NoError(t, err)
	require.Len(t, sc.Model.CostPriors, 2)
	assert.Equal(t, agent.Beta, sc.Model.CostPriors[1].Family)

	_, err = Parse([]byte(`
agent:
  costPrior: Constant
  costPriors: [{family: Constant, params: [0]}]
map: {start: 0, exit: 1, terrain: "01"}
`), ".")
	assert.ErrorIs(t, err, mdp.ErrConfiguration)
}

func TestLoadResolvesMapFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "maps"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maps", "pond.txt"), []byte("0000\n0110\n0000\n\ngrass\nwater\n"), 0o644))
	path := filepath.Join(dir, "pond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
map:
  file: maps/pond.txt
  start: 0
  exit: 11
  walls: [6]
  squares:
    - {x: 0, y: 2, width: 2, height: 1, terrain: 1}
observed: [R]
`), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pond", sc.Name)
	assert.Equal(t, 4, sc.Map.Width)
	assert.Equal(t, []string{"grass", "water"}, sc.Map.TerrainNames)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 1, 1, 0, 1, 1, 0, 0}, sc.Map.Terrain)
	assert.True(t, sc.Map.Walls[6])

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestScenarioErrors(t *testing.T) {
	cases := map[string]string{
		"bad yaml":         "map: [",
		"no terrain":       "map: {start: 0, exit: 1}",
		"terrain and file": `map: {start: 0, exit: 1, terrain: "00", file: x.txt}`,
		"no start":         `map: {exit: 1, terrain: "00"}`,
		"exit off map":     `map: {start: 0, exit: 5, terrain: "00"}`,
		"type mismatch":    "map: {start: 0, exit: 2, terrain: \"000\"}\nobjects: {locations: [1], types: [0, 1]}",
		"object on exit":   "map: {start: 0, exit: 2, terrain: \"000\"}\nobjects: {locations: [2]}",
		"params no prior":  "agent: {rewardParameters: [1]}\nmap: {start: 0, exit: 1, terrain: \"00\"}",
		"bad family":       "agent: {costPrior: Cauchy, costParameters: [1]}\nmap: {start: 0, exit: 1, terrain: \"00\"}",
		"missing file":     `map: {start: 0, exit: 1, file: nowhere.txt}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), t.TempDir())
			assert.ErrorIs(t, err, mdp.ErrConfiguration)
		})
	}
}

func TestParseGrid(t *testing.T) {
	g, err := ParseGrid(strings.NewReader("\n012\n210\n\n\nlow\nmid\n\nhigh\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.Equal(t, []int{0, 1, 2, 2, 1, 0}, g.Types)
	assert.Equal(t, []string{"low", "mid", "high"}, g.Names)

	for _, bad := range []string{"", "01\n012\n", "0a1\n"} {
		_, err := ParseGrid(strings.NewReader(bad))
		assert.ErrorIs(t, err, mdp.ErrConfiguration, "%q", bad)
	}
}
