// Package config loads a process Configuration from a TOML file, with
// in-code defaults and eager validation, per the ambient configuration
// stack.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

// File is the on-disk TOML shape, using plain ints/strings so it maps
// cleanly onto types.Configuration.
type File struct {
	Self         int              `toml:"self"`
	N            int              `toml:"n"`
	F            int              `toml:"f"`
	Peers        []int            `toml:"peers"`
	Starters     map[string]int   `toml:"starters"`
	CausalChains map[string][]int `toml:"causal_chains"`
	Malicious    string           `toml:"malicious"`
	OptimO1      bool             `toml:"optim_o1"`
	OptimO2      bool             `toml:"optim_o2"`
	OptimO3      bool             `toml:"optim_o3"`
	MetricsPath  string           `toml:"metrics_path"`
}

// Load reads and validates a Configuration from a TOML file at path.
// A malformed or out-of-bounds configuration is returned as an error
// rather than panicking, but the caller (cmd/node) treats it as fatal
// per the error handling design: f >= N/3 must abort process start.
func Load(path string) (types.Configuration, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return types.Configuration{}, err
	}
	cfg, err := fromFile(f)
	if err != nil {
		return types.Configuration{}, err
	}
	if err := cfg.Validate(); err != nil {
		return types.Configuration{}, err
	}
	return cfg, nil
}

func fromFile(f File) (types.Configuration, error) {
	peers := make([]types.ProcessID, len(f.Peers))
	for i, p := range f.Peers {
		peers[i] = types.ProcessID(p)
	}
	starters := make(map[types.ProcessID]int, len(f.Starters))
	for k, v := range f.Starters {
		id, err := atoi(k)
		if err != nil {
			return types.Configuration{}, fmt.Errorf("starters: %w", err)
		}
		starters[types.ProcessID(id)] = v
	}
	chains := make(map[types.ProcessID][]types.ProcessID, len(f.CausalChains))
	for k, v := range f.CausalChains {
		id, err := atoi(k)
		if err != nil {
			return types.Configuration{}, fmt.Errorf("causal_chains: %w", err)
		}
		chain := make([]types.ProcessID, len(v))
		for i, pid := range v {
			chain[i] = types.ProcessID(pid)
		}
		chains[types.ProcessID(id)] = chain
	}

	mode := types.MaliciousMode(f.Malicious)
	if mode == "" {
		mode = types.MaliciousOff
	}

	return types.Configuration{
		Self:         types.ProcessID(f.Self),
		N:            f.N,
		F:            f.F,
		Peers:        peers,
		Starters:     starters,
		CausalChains: chains,
		Malicious:    mode,
		Optim: types.Optimisations{
			O1: f.OptimO1,
			O2: f.OptimO2,
			O3: f.OptimO3,
		},
		MetricsPath: f.MetricsPath,
	}, nil
}

// atoi parses a TOML table key (which arrives as a string, since TOML
// has no integer-keyed tables) as a decimal process id, rejecting
// empty strings and non-digit characters rather than silently
// collapsing a typo'd key onto process 0.
func atoi(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty process id key")
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("process id key %q: not a decimal integer", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
