package battle

import (
	"log/slog"
	"sort"

	"github.com/jpenner/bastion/bastion-core/empire"
)

// ApplyLoot settles a finished battle against the participating empires.
// Capture gains accrued during the battle are transferred first; if the
// defender lost, a fraction of their culture, a fraction of one completed
// knowledge item's effort, and possibly one artefact move to the attacker.
// All rolls come from the battle PRNG, so a replay of the same battle id
// settles identically.
func (b *State) ApplyLoot(attackers *empire.Manager, engine *empire.Engine) {
	if !b.Finished {
		return
	}

	for _, uid := range b.sortedAttackerUIDs() {
		atk, ok := attackers.Get(uid)
		if !ok {
			continue
		}
		gains := b.AttackerGains[uid]
		for _, res := range sortedFloatKeys(gains) {
			amount := gains[res]
			b.Defender.Lock()
			if have := b.Defender.Resources[res]; have < amount {
				amount = have
			}
			b.Defender.Resources[res] -= amount
			b.Defender.Unlock()
			atk.Lock()
			atk.Resources[res] += amount
			atk.Unlock()
			gains[res] = amount
			b.DefenderLosses[res] += amount
		}
	}

	if b.DefenderWon {
		return
	}

	// The defender fell; the first attacker sacks the city.
	atk, ok := attackers.Get(b.Army.OwnerUID)
	if !ok {
		return
	}

	frac := b.lootFraction()
	b.Defender.Lock()
	plunder := b.Defender.Resources[empire.ResCulture] * frac
	b.Defender.Resources[empire.ResCulture] -= plunder
	b.Defender.Unlock()
	atk.Lock()
	atk.Resources[empire.ResCulture] += plunder
	atk.Unlock()
	b.DefenderLosses[empire.ResCulture] += plunder

	b.loseKnowledge(engine)

	b.Defender.Lock()
	nArtefacts := len(b.Defender.Artefacts)
	b.Defender.Unlock()
	if nArtefacts > 0 && b.rng.Float64() < b.tun.ArtefactStealChance {
		b.Defender.Lock()
		idx := b.rng.Intn(len(b.Defender.Artefacts))
		stolen := b.Defender.Artefacts[idx]
		b.Defender.Artefacts = append(b.Defender.Artefacts[:idx], b.Defender.Artefacts[idx+1:]...)
		if engine != nil {
			engine.RecalculateEffects(b.Defender)
		}
		b.Defender.Unlock()
		atk.Lock()
		atk.Artefacts = append(atk.Artefacts, stolen)
		if engine != nil {
			engine.RecalculateEffects(atk)
		}
		atk.Unlock()
		slog.Info("artefact stolen", "battle", b.BID, "artefact", stolen, "from", b.DefenderUID, "to", atk.UID)
	}
}

// loseKnowledge un-completes a random finished knowledge item by restoring a
// fraction of its effort, then rebuilds the defender's effects so the lost
// item stops contributing.
func (b *State) loseKnowledge(engine *empire.Engine) {
	b.Defender.Lock()
	defer b.Defender.Unlock()

	var completed []string
	for _, id := range sortedFloatKeys(b.Defender.Knowledge) {
		if b.Defender.Knowledge[id] <= 0 {
			completed = append(completed, id)
		}
	}
	if len(completed) == 0 {
		return
	}
	id := completed[b.rng.Intn(len(completed))]
	it, ok := b.reg.Get(id)
	if !ok || it.Effort <= 0 {
		return
	}
	lost := it.Effort * b.lootFraction()
	b.Defender.Knowledge[id] = lost
	if engine != nil {
		engine.RecalculateEffects(b.Defender)
	}
	slog.Info("knowledge lost", "battle", b.BID, "item", id, "remaining_effort", lost)
}

// lootFraction draws from the configured plunder band.
func (b *State) lootFraction() float64 {
	return b.tun.MinLootFraction + b.rng.Float64()*(b.tun.MaxLootFraction-b.tun.MinLootFraction)
}

func (b *State) sortedAttackerUIDs() []int {
	out := make([]int, len(b.AttackerUIDs))
	copy(out, b.AttackerUIDs)
	sort.Ints(out)
	return out
}
