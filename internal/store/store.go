// Package store persists inference runs and their weighted samples in
// SQLite.
package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/posterior"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	seed          INTEGER NOT NULL,
	num_samples   INTEGER NOT NULL,
	observed      TEXT NOT NULL,
	cost_names    TEXT NOT NULL,
	reward_names  TEXT NOT NULL,
	ess           REAL NOT NULL,
	scenario      TEXT
);

CREATE TABLE IF NOT EXISTS samples (
	run_id         TEXT NOT NULL,
	idx            INTEGER NOT NULL,
	params         BLOB,
	log_likelihood REAL,
	failed         INTEGER NOT NULL,
	diagnostic     TEXT,
	converged      INTEGER NOT NULL,
	iterations     INTEGER NOT NULL,
	PRIMARY KEY (run_id, idx),
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
`

// timeLayout has a fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by LoadRun for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is the metadata of one inference run.
type Run struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Seed      uint64
	Samples   int
	Observed  []string
	ESS       float64
	// Scenario is the source document, kept so a run can be reproduced.
	Scenario string
}

// Store manages saved runs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes run and every sample of post in one transaction. A run
// without an ID gets a fresh UUID. The ID is returned.
func (s *Store) SaveRun(run Run, post *posterior.Store) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	samples := post.Samples()
	run.Samples = len(samples)
	run.ESS = post.EffectiveSampleSize()

	observed, err := json.Marshal(nonNil(run.Observed))
	if err != nil {
		return "", fmt.Errorf("marshal observed: %w", err)
	}
	costNames, err := json.Marshal(nonNil(post.CostNames()))
	if err != nil {
		return "", fmt.Errorf("marshal cost names: %w", err)
	}
	rewardNames, err := json.Marshal(nonNil(post.RewardNames()))
	if err != nil {
		return "", fmt.Errorf("marshal reward names: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, name, created_at, seed, num_samples, observed, cost_names, reward_names, ess, scenario)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.CreatedAt.UTC().Format(timeLayout), int64(run.Seed), run.Samples,
		string(observed), string(costNames), string(rewardNames), run.ESS, run.Scenario,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO samples (run_id, idx, params, log_likelihood, failed, diagnostic, converged, iterations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", fmt.Errorf("prepare samples: %w", err)
	}
	defer stmt.Close()
	for i, ws := range samples {
		// REAL columns cannot hold -Inf portably, so zero weight is NULL
		var ll sql.NullFloat64
		if !math.IsInf(ws.LogLikelihood, 0) {
			ll = sql.NullFloat64{Float64: ws.LogLikelihood, Valid: true}
		}
		_, err := stmt.Exec(run.ID, i, encodeVector(ws.Parameters.Vector()), ll,
			ws.Failed, ws.Diagnostic, ws.Converged, ws.Iterations)
		if err != nil {
			return "", fmt.Errorf("insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return run.ID, nil
}

// LoadRun restores a run and rebuilds its posterior store.
func (s *Store) LoadRun(id string) (Run, *posterior.Store, error) {
	run, costNames, rewardNames, err := s.scanRun(s.db.QueryRow(
		`SELECT run_id, name, created_at, seed, num_samples, observed, cost_names, reward_names, ess, scenario
		 FROM runs WHERE run_id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("load run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, nil, fmt.Errorf("load run %s: %w", id, err)
	}

	rows, err := s.db.Query(
		`SELECT params, log_likelihood, failed, diagnostic, converged, iterations
		 FROM samples WHERE run_id = ? ORDER BY idx`, id,
	)
	if err != nil {
		return Run{}, nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	post := posterior.New(costNames, rewardNames)
	nc := len(costNames)
	for rows.Next() {
		var blob []byte
		var ll sql.NullFloat64
		var diag sql.NullString
		var ws posterior.WeightedSample
		if err := rows.Scan(&blob, &ll, &ws.Failed, &diag, &ws.Converged, &ws.Iterations); err != nil {
			return Run{}, nil, fmt.Errorf("scan sample: %w", err)
		}
		vec := decodeVector(blob)
		if len(vec) != nc+len(rewardNames) {
			return Run{}, nil, fmt.Errorf("sample has %d parameters, run declares %d", len(vec), nc+len(rewardNames))
		}
		ws.Parameters = agent.Parameters{Costs: vec[:nc:nc], Rewards: vec[nc:]}
		ws.LogLikelihood = math.Inf(-1)
		if ll.Valid {
			ws.LogLikelihood = ll.Float64
		}
		ws.Diagnostic = diag.String
		if err := post.AddSample(ws); err != nil {
			return Run{}, nil, fmt.Errorf("restore sample: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return Run{}, nil, fmt.Errorf("iterate samples: %w", err)
	}
	return run, post, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT run_id, name, created_at, seed, num_samples, observed, cost_names, reward_names, ess, scenario
		 FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, _, _, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRun(row scanner) (Run, []string, []string, error) {
	var run Run
	var created, observed, costJSON, rewardJSON string
	var seed int64
	var scenario sql.NullString
	err := row.Scan(&run.ID, &run.Name, &created, &seed, &run.Samples, &observed,
		&costJSON, &rewardJSON, &run.ESS, &scenario)
	if err != nil {
		return Run{}, nil, nil, err
	}
	run.Seed = uint64(seed)
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Run{}, nil, nil, fmt.Errorf("parse created_at: %w", err)
	}
	run.Scenario = scenario.String

	var costNames, rewardNames []string
	if err := json.Unmarshal([]byte(observed), &run.Observed); err != nil {
		return Run{}, nil, nil, fmt.Errorf("unmarshal observed: %w", err)
	}
	if err := json.Unmarshal([]byte(costJSON), &costNames); err != nil {
		return Run{}, nil, nil, fmt.Errorf("unmarshal cost names: %w", err)
	}
	if err := json.Unmarshal([]byte(rewardJSON), &rewardNames); err != nil {
		return Run{}, nil, nil, fmt.Errorf("unmarshal reward names: %w", err)
	}
	return run, costNames, rewardNames, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
