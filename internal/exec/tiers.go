package exec

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Tier identifies one rung of the execution engine's promotion ladder,
// from the baseline interpreter up through the optimizing ahead-of-time
// backend repurposed for in-process JIT use.
type Tier uint8

const (
	// TierInterp is the baseline register-file interpreter (T0).
	TierInterp Tier = iota
	// TierFastJIT is the first JIT tier: backend/llvm at -O0/-O1-
	// equivalent settings, favoring fast compile time over code quality.
	TierFastJIT
	// TierFastJIT2 is the second JIT tier: the same fast backend at a
	// higher optimization setting once a function has proven itself hot
	// enough to justify the extra compile time.
	TierFastJIT2
	// TierOptJIT is the top tier: backend/llvm at its existing -O3 AOT
	// settings, for functions hot enough to amortize the slowest compile.
	TierOptJIT
)

// String names a tier the way the rest of the compiler names pipeline
// stages (see buildpipeline.Stage), for log lines and trace events.
func (t Tier) String() string {
	switch t {
	case TierInterp:
		return "T0"
	case TierFastJIT:
		return "T1"
	case TierFastJIT2:
		return "T2"
	case TierOptJIT:
		return "T3"
	default:
		return "T?"
	}
}

// Thresholds holds the call-count at which a function is promoted from
// one tier to the next. Defaults come from spec'd K-values (10/100/1000);
// an ambient `[tiers]` table in the project's surge.toml can override
// them per-project the same way other ambient config sections do (see
// internal/project's toml.DecodeFile usage).
type Thresholds struct {
	FastJIT  uint64 `toml:"fastjit"`
	FastJIT2 uint64 `toml:"fastjit2"`
	OptJIT   uint64 `toml:"optjit"`
}

// DefaultThresholds returns the built-in K-thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{FastJIT: 10, FastJIT2: 100, OptJIT: 1000}
}

// tiersFile is the shape of the `[tiers]` table inside surge.toml.
type tiersFile struct {
	Tiers Thresholds `toml:"tiers"`
}

// LoadThresholds reads a `[tiers]` override table from path, falling back
// to DefaultThresholds for any field left at its zero value (a project
// wanting only fastjit tuned doesn't have to restate the other two).
func LoadThresholds(path string) (Thresholds, error) {
	out := DefaultThresholds()
	if path == "" {
		return out, nil
	}
	if _, err := os.Stat(path); err != nil {
		return out, nil
	}
	var cfg tiersFile
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return out, err
	}
	if cfg.Tiers.FastJIT != 0 {
		out.FastJIT = cfg.Tiers.FastJIT
	}
	if cfg.Tiers.FastJIT2 != 0 {
		out.FastJIT2 = cfg.Tiers.FastJIT2
	}
	if cfg.Tiers.OptJIT != 0 {
		out.OptJIT = cfg.Tiers.OptJIT
	}
	return out, nil
}

// Next reports which tier calls should promote to given a call count
// under t, or ok=false if count hasn't crossed the next threshold yet.
func (t Thresholds) Next(current Tier, calls uint64) (Tier, bool) {
	switch current {
	case TierInterp:
		if calls >= t.FastJIT {
			return TierFastJIT, true
		}
	case TierFastJIT:
		if calls >= t.FastJIT2 {
			return TierFastJIT2, true
		}
	case TierFastJIT2:
		if calls >= t.OptJIT {
			return TierOptJIT, true
		}
	}
	return current, false
}
