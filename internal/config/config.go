// Package config loads scenario files: a map, an agent model and an observed
// action sequence, described in YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/mdp"
	"gopkg.in/yaml.v3"
)

// File mirrors the YAML layout of a scenario.
type File struct {
	Name     string        `yaml:"name"`
	Agent    AgentConfig   `yaml:"agent"`
	Map      MapConfig     `yaml:"map"`
	Objects  ObjectsConfig `yaml:"objects"`
	Observed []string      `yaml:"observed"`
}

// AgentConfig holds the prior and softmax settings.
//
// `prior` names one family for both costs and rewards and `pNull` sets both
// null probabilities. They are shorthands: giving `prior` together with
// `costPrior` or `rewardPrior` (or `pNull` with `cNull` or `rNull`) is
// rejected rather than letting one silently win.
type AgentConfig struct {
	Prior            agent.Family `yaml:"prior"`
	CostPrior        agent.Family `yaml:"costPrior"`
	RewardPrior      agent.Family `yaml:"rewardPrior"`
	CostParameters   []float64    `yaml:"costParameters"`
	RewardParameters []float64    `yaml:"rewardParameters"`

	// per-dimension priors, used instead of the single family when present
	CostPriors   []agent.PriorSpec `yaml:"costPriors"`
	RewardPriors []agent.PriorSpec `yaml:"rewardPriors"`

	PNull *float64 `yaml:"pNull"`
	CNull *float64 `yaml:"cNull"`
	RNull *float64 `yaml:"rNull"`

	ChoiceTau     *float64 `yaml:"choiceTau"`
	ActionTau     *float64 `yaml:"actionTau"`
	SoftmaxChoice *bool    `yaml:"softmaxChoice"`
	SoftmaxAction *bool    `yaml:"softmaxAction"`
	Restrict      bool     `yaml:"restrict"`
}

// MapConfig describes the grid. Terrain comes either inline or from a map
// text file resolved against the scenario's directory.
type MapConfig struct {
	Diagonal     *bool          `yaml:"diagonal"`
	Start        *int           `yaml:"start"`
	Exit         *int           `yaml:"exit"`
	Terrain      string         `yaml:"terrain"`
	TerrainNames []string       `yaml:"terrainNames"`
	File         string         `yaml:"file"`
	Walls        []int          `yaml:"walls"`
	Squares      []SquareConfig `yaml:"squares"`
}

type SquareConfig struct {
	X       int `yaml:"x"`
	Y       int `yaml:"y"`
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	Terrain int `yaml:"terrain"`
}

type ObjectsConfig struct {
	Locations []int    `yaml:"locations"`
	Types     []int    `yaml:"types"`
	Names     []string `yaml:"names"`
}

// Scenario is a fully resolved, validated scenario.
type Scenario struct {
	Name     string
	Map      *mdp.Map
	Model    agent.Model
	Observed []string
}

// Load reads and resolves the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// Parse resolves a scenario document. dir is used for relative map files.
func Parse(data []byte, dir string) (*Scenario, error) {
	const op = "config.Parse"
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, mdp.Configf(op, "yaml: %v", err)
	}

	m, err := f.Map.build(dir, f.Objects)
	if err != nil {
		return nil, err
	}
	model, err := f.Agent.model()
	if err != nil {
		return nil, err
	}
	if err := model.Validate(m); err != nil {
		return nil, err
	}
	return &Scenario{Name: f.Name, Map: m, Model: model, Observed: f.Observed}, nil
}

func (c MapConfig) build(dir string, objects ObjectsConfig) (*mdp.Map, error) {
	const op = "config.Map"
	var grid *Grid
	switch {
	case c.Terrain != "" && c.File != "":
		return nil, mdp.Configf(op, "give either map.terrain or map.file, not both")
	case c.File != "":
		path := c.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		fh, err := os.Open(path)
		if err != nil {
			return nil, mdp.Configf(op, "open map file: %v", err)
		}
		defer fh.Close()
		if grid, err = ParseGrid(fh); err != nil {
			return nil, err
		}
	case c.Terrain != "":
		var err error
		if grid, err = ParseGrid(strings.NewReader(c.Terrain)); err != nil {
			return nil, err
		}
	default:
		return nil, mdp.Configf(op, "map.terrain or map.file is required")
	}
	if len(c.TerrainNames) > 0 {
		grid.Names = c.TerrainNames
	}

	diagonal := true
	if c.Diagonal != nil {
		diagonal = *c.Diagonal
	}
	m, err := mdp.BuildGrid(grid.Width, grid.Height, diagonal)
	if err != nil {
		return nil, err
	}
	if err := m.SetTerrain(grid.Types, grid.Names); err != nil {
		return nil, err
	}
	for _, sq := range c.Squares {
		if err := m.InsertSquare(sq.X, sq.Y, sq.Width, sq.Height, sq.Terrain); err != nil {
			return nil, err
		}
	}
	if err := m.SetWalls(c.Walls); err != nil {
		return nil, err
	}

	if c.Start == nil || c.Exit == nil {
		return nil, mdp.Configf(op, "map.start and map.exit are required")
	}
	if err := m.SetStart(*c.Start); err != nil {
		return nil, err
	}
	if err := m.SetExit(*c.Exit); err != nil {
		return nil, err
	}

	types := objects.Types
	if len(types) == 0 && len(objects.Locations) > 0 {
		// untyped objects are all of one kind
		types = make([]int, len(objects.Locations))
	}
	if err := m.PlaceObjects(objects.Locations, types, objects.Names); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (c AgentConfig) model() (agent.Model, error) {
	const op = "config.Agent"
	model := agent.DefaultModel()

	if c.Prior != "" && (c.CostPrior != "" || c.RewardPrior != "") {
		return model, mdp.Configf(op, "agent.prior is shorthand for costPrior and rewardPrior; give one form")
	}
	costFamily, rewardFamily := c.CostPrior, c.RewardPrior
	if c.Prior != "" {
		costFamily, rewardFamily = c.Prior, c.Prior
	}

	costs, err := priors(op, "cost", costFamily, c.CostParameters, c.CostPriors)
	if err != nil {
		return model, err
	}
	if costs != nil {
		model.CostPriors = costs
	}
	rewards, err := priors(op, "reward", rewardFamily, c.RewardParameters, c.RewardPriors)
	if err != nil {
		return model, err
	}
	if rewards != nil {
		model.RewardPriors = rewards
	}

	if c.PNull != nil && (c.CNull != nil || c.RNull != nil) {
		return model, mdp.Configf(op, "agent.pNull is shorthand for cNull and rNull; give one form")
	}
	if c.PNull != nil {
		model.CostNullProbability = *c.PNull
		model.RewardNullProbability = *c.PNull
	}
	if c.CNull != nil {
		model.CostNullProbability = *c.CNull
	}
	if c.RNull != nil {
		model.RewardNullProbability = *c.RNull
	}

	if c.ChoiceTau != nil {
		model.ChoiceTemperature = *c.ChoiceTau
	}
	if c.ActionTau != nil {
		model.ActionTemperature = *c.ActionTau
	}
	if c.SoftmaxChoice != nil {
		model.SoftmaxChoice = *c.SoftmaxChoice
	}
	if c.SoftmaxAction != nil {
		model.SoftmaxAction = *c.SoftmaxAction
	}
	model.Restrict = c.Restrict
	return model, nil
}

// priors returns nil when the document leaves the default in place.
func priors(op, what string, family agent.Family, params []float64, specs []agent.PriorSpec) ([]agent.PriorSpec, error) {
	switch {
	case len(specs) > 0 && family != "":
		return nil, mdp.Configf(op, "%s prior given both as a family and as a per-dimension list", what)
	case len(specs) > 0:
		return specs, nil
	case family != "":
		return []agent.PriorSpec{{Family: family, Params: params}}, nil
	case len(params) > 0:
		return nil, mdp.Configf(op, "%s parameters given without a %s prior", what, what)
	}
	return nil, nil
}
