package ai

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Wave-selection policy when several scripted triggers match.
const (
	PolicyFirstMatch = "first_match"
	PolicyLastMatch  = "last_match"
)

// WaveSpec is one wave inside a scripted army.
type WaveSpec struct {
	CritterID string `yaml:"critter"`
	Slots     int    `yaml:"slots"`
}

// ScriptedWave pairs a trigger expression with a fixed army composition. The
// trigger runs against the target empire, so designers can key set-piece
// raids off the player's progress, e.g.
//
//	when: Completed("POTTERY") && Citizens() >= 3
type ScriptedWave struct {
	Name    string     `yaml:"name"`
	When    string     `yaml:"when"`
	Waves   []WaveSpec `yaml:"waves"`
	program *vm.Program
}

func compileWaves(waves []ScriptedWave) ([]ScriptedWave, error) {
	for i := range waves {
		prog, err := expr.Compile(waves[i].When, expr.Env(TriggerEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile wave trigger %q: %w", waves[i].Name, err)
		}
		waves[i].program = prog
	}
	return waves, nil
}

// matchScripted returns the scripted composition selected by the policy, or
// nil when no trigger matches.
func matchScripted(waves []ScriptedWave, env TriggerEnv, policy string) *ScriptedWave {
	var match *ScriptedWave
	for i := range waves {
		result, err := vm.Run(waves[i].program, env)
		if err != nil {
			slog.Warn("wave trigger error", "wave", waves[i].Name, "error", err)
			continue
		}
		ok, _ := result.(bool)
		if !ok {
			continue
		}
		if policy == PolicyFirstMatch {
			return &waves[i]
		}
		match = &waves[i]
	}
	return match
}
