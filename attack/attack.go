// Package attack implements the travel → siege → battle → finished state
// machine that bridges the world loop and the battle runtime.
package attack

// Phase is the attack state-machine position. Phases only ever advance.
type Phase string

const (
	Travelling Phase = "TRAVELLING"
	InSiege    Phase = "IN_SIEGE"
	InBattle   Phase = "IN_BATTLE"
	Finished   Phase = "FINISHED"
)

// Attack is a directed intent from attacker to defender.
type Attack struct {
	ID          int    `json:"attack_id"`
	AttackerUID int    `json:"attacker_uid"`
	DefenderUID int    `json:"defender_uid"`
	ArmyAID     int    `json:"army_aid"`
	Phase       Phase  `json:"phase"`

	ETASeconds float64 `json:"eta_seconds"`
	InitialETA float64 `json:"initial_eta"`

	SiegeRemaining float64 `json:"siege_remaining"`
	InitialSiege   float64 `json:"initial_siege"`

	// dispatched marks that this process run has already handed the attack
	// to the world loop for battle creation. Deliberately not serialized:
	// after a snapshot restore an IN_BATTLE attack must be returned by the
	// first step exactly once more.
	dispatched bool
}

// TravelProgress reports 0..1 travel completion for display.
func (a *Attack) TravelProgress() float64 {
	if a.InitialETA <= 0 {
		return 1
	}
	p := 1 - a.ETASeconds/a.InitialETA
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// SiegeProgress reports 0..1 siege completion for display.
func (a *Attack) SiegeProgress() float64 {
	if a.InitialSiege <= 0 {
		return 1
	}
	p := 1 - a.SiegeRemaining/a.InitialSiege
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
