// Package ai implements the scripted computer opponent: it scores player
// empires, synthesizes raiding armies sized to a self-adapting power budget,
// and launches attacks through the regular attack service.
package ai

import "github.com/jpenner/bastion/bastion-core/empire"

// TriggerEnv wraps a snapshot of the target empire and exposes helper methods
// callable from wave-trigger expressions.
type TriggerEnv struct {
	completed map[string]bool
	citizens  int
	culture   float64
}

// Completed reports whether the target has finished the given item.
func (e TriggerEnv) Completed(id string) bool { return e.completed[id] }

// Citizens returns the target's citizen count.
func (e TriggerEnv) Citizens() int { return e.citizens }

// Culture returns the target's culture stock.
func (e TriggerEnv) Culture() float64 { return e.culture }

// ItemsDone returns how many items the target has completed.
func (e TriggerEnv) ItemsDone() int { return len(e.completed) }

func envFor(target *empire.Empire) TriggerEnv {
	target.Lock()
	defer target.Unlock()
	return TriggerEnv{
		completed: target.Completed(),
		citizens:  target.CitizenCount,
		culture:   target.Resources[empire.ResCulture],
	}
}
