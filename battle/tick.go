package battle

import (
	"sort"

	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/hexmap"
	"github.com/jpenner/bastion/bastion-core/item"
)

// Tick advances the battle by dt milliseconds. Phase order is fixed: shots,
// critters, towers, armies, bookkeeping. Every collection iterates in id
// order, so two battles with the same inputs evolve identically.
func (b *State) Tick(dt float64) {
	if b.Finished {
		return
	}
	b.stepShots(dt)
	b.stepCritters(dt)
	b.stepTowers(dt)
	b.stepArmies(dt)
	b.bookkeeping(dt)
}

func (b *State) stepShots(dt float64) {
	// Splash impacts append sub-shots to b.Shots; iterating a detached slice
	// keeps them out of this pass and alive for the next.
	pending := b.Shots
	b.Shots = nil
	for _, s := range pending {
		if s.FlightTotalMs == 0 {
			s.FlightTotalMs = s.FlightRemainingMs
		}
		s.FlightRemainingMs -= dt
		if s.FlightRemainingMs > 0 {
			b.Shots = append(b.Shots, s)
			continue
		}
		// Impact. A vanished target still consumes the shot.
		target, ok := b.Critters[s.TargetCID]
		if !ok {
			continue
		}
		b.applyHit(s, target)
	}
}

func (b *State) applyHit(s *Shot, target *Critter) {
	pierce := s.Damage - target.Armor
	if pierce < 0 {
		pierce = 0
	}
	switch s.Type {
	case item.ShotCold:
		target.Health -= pierce
		target.SlowRemainingMs = s.Effects[item.EffectSlowTargetDuration] * 1000
		target.SlowSpeed = target.Speed * s.Effects[item.EffectSlowTarget]
	case item.ShotBurn:
		// Burn ignores armour.
		target.Health -= s.Damage
		target.BurnRemainingMs = s.Effects[item.EffectBurnTargetDuration] * 1000
		target.BurnDPS = s.Effects[item.EffectBurnTargetDPS]
	case item.ShotSplash:
		target.Health -= pierce
		b.enqueueSplash(s, target)
	default:
		target.Health -= pierce
	}
}

// enqueueSplash spreads sub-shots to every other critter within the splash
// radius of the impact hex. Sub-shots are plain NORMAL shots with a short
// fixed flight and no source structure.
func (b *State) enqueueSplash(s *Shot, primary *Critter) {
	radius := int(s.Effects[item.EffectSplashRadius])
	if radius <= 0 {
		radius = b.tun.DefaultSplashRadius
	}
	impact := hexmap.InterpolateHex(b.Path, primary.PathProgress)
	for _, c := range b.SortedCritters() {
		if c.CID == primary.CID {
			continue
		}
		pos := hexmap.InterpolateHex(b.Path, c.PathProgress)
		if impact.DistanceTo(pos) > radius {
			continue
		}
		b.Shots = append(b.Shots, &Shot{
			Damage:            s.Damage,
			TargetCID:         c.CID,
			SourceSID:         -1,
			Type:              item.ShotNormal,
			FlightRemainingMs: b.tun.SplashSubFlightMs,
			FlightTotalMs:     b.tun.SplashSubFlightMs,
			Origin:            impact,
		})
	}
}

func (b *State) stepCritters(dt float64) {
	if len(b.Path) < 2 {
		return
	}
	segments := float64(len(b.Path) - 1)
	for _, c := range b.SortedCritters() {
		c.PathProgress += c.EffectiveSpeed() * (dt / 1000) / segments
		if c.PathProgress > 1 {
			c.PathProgress = 1
		}

		if c.BurnRemainingMs > 0 {
			burnMs := dt
			if c.BurnRemainingMs < burnMs {
				burnMs = c.BurnRemainingMs
			}
			c.Health -= c.BurnDPS * burnMs / 1000
			c.BurnRemainingMs -= dt
			if c.BurnRemainingMs < 0 {
				c.BurnRemainingMs = 0
			}
		}
		if c.SlowRemainingMs > 0 {
			c.SlowRemainingMs -= dt
			if c.SlowRemainingMs < 0 {
				c.SlowRemainingMs = 0
			}
		}

		if c.Health <= 0 {
			b.critterDied(c)
			continue
		}
		if c.PathProgress >= 1 {
			b.critterFinished(c)
		}
	}
}

// critterDied removes the critter, credits the defender's kill reward, and
// spawns any on-death replacements at the parent's position.
func (b *State) critterDied(c *Critter) {
	delete(b.Critters, c.CID)
	b.Journal = append(b.Journal, Removal{CID: c.CID, Reason: "died"})

	if c.Value > 0 {
		b.Defender.Lock()
		b.Defender.Resources[empire.ResGold] += c.Value
		b.Defender.Unlock()
	}

	for _, id := range sortedKeys(c.SpawnOnDeath) {
		for i := 0; i < c.SpawnOnDeath[id]; i++ {
			b.spawnCritter(id, c.PathProgress)
		}
	}

	if b.bus != nil && b.observed() {
		b.bus.Emit(event.CritterDied{BattleID: b.BID, CID: c.CID, ItemID: c.ItemID})
	}
}

// critterFinished removes the critter at the castle and applies its capture:
// life is taken from the defender immediately, everything else accrues to the
// attacker's gains for loot settlement.
func (b *State) critterFinished(c *Critter) {
	delete(b.Critters, c.CID)
	b.Journal = append(b.Journal, Removal{CID: c.CID, Reason: "finished"})

	lifeTaken := 1.0
	if v, ok := c.Capture["life"]; ok {
		lifeTaken = v
	}
	b.Defender.Lock()
	b.Defender.Resources[empire.ResLife] -= lifeTaken
	if b.Defender.Resources[empire.ResLife] < 0 {
		b.Defender.Resources[empire.ResLife] = 0
	}
	b.Defender.Unlock()
	b.DefenderLosses["life"] += lifeTaken

	owner := b.Army.OwnerUID
	gains := b.AttackerGains[owner]
	if gains == nil {
		gains = make(map[string]float64)
		b.AttackerGains[owner] = gains
	}
	for _, k := range sortedFloatKeys(c.Capture) {
		if k == "life" {
			continue
		}
		gains[k] += c.Capture[k]
	}
}

func (b *State) stepTowers(dt float64) {
	for _, s := range b.SortedStructures() {
		// Cool down first, then fire the same tick the reload elapses.
		s.ReloadRemainingMs -= dt
		if s.ReloadRemainingMs > 0 {
			continue
		}
		s.ReloadRemainingMs = 0
		target := b.pickTarget(s)
		if target == nil {
			s.FocusCID = 0
			continue
		}
		s.FocusCID = target.CID
		s.ReloadRemainingMs = float64(s.ReloadMs)

		pos := hexmap.InterpolateHex(b.Path, target.PathProgress)
		dist := s.Pos.DistanceTo(pos)
		flight := float64(dist) / s.ShotSpeed * 1000
		if flight < 1 {
			flight = 1
		}
		b.Shots = append(b.Shots, &Shot{
			Damage:            s.Damage,
			TargetCID:         target.CID,
			SourceSID:         s.SID,
			Type:              s.ShotType,
			Effects:           copyEffects(s.Effects),
			FlightRemainingMs: flight,
			FlightTotalMs:     flight,
			Origin:            s.Pos,
		})
		if b.bus != nil && b.observed() {
			b.bus.Emit(event.StructureFired{BattleID: b.BID, SID: s.SID, TargetCID: target.CID})
		}
	}
}

// pickTarget selects the in-range critter closest to the castle; ties break
// on lowest cid via the sorted scan order.
func (b *State) pickTarget(s *empire.Structure) *Critter {
	var best *Critter
	for _, c := range b.SortedCritters() {
		pos := hexmap.InterpolateHex(b.Path, c.PathProgress)
		if s.Pos.DistanceTo(pos) > s.Range {
			continue
		}
		if best == nil || c.PathProgress > best.PathProgress {
			best = c
		}
	}
	return best
}

func (b *State) stepArmies(dt float64) {
	idx := -1
	for i, w := range b.Army.Waves {
		if w.Spawned < w.Slots {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	w := b.Army.Waves[idx]
	if idx != b.activeWave {
		// A freshly activated wave waits out the inter-wave delay, except the
		// very first, which was armed at construction.
		if b.activeWave >= 0 {
			w.NextSpawnMs = b.tun.InterWaveDelayMs
		}
		b.activeWave = idx
	}

	w.NextSpawnMs -= dt
	if w.NextSpawnMs > 0 {
		return
	}
	// An unknown critter id burns the slot rather than stalling the wave.
	b.spawnCritter(w.CritterID, 0)
	w.Spawned++
	interval := 1000.0
	if it, ok := b.reg.Get(w.CritterID); ok && it.SpawnIntervalMs > 0 {
		interval = float64(it.SpawnIntervalMs)
	}
	w.NextSpawnMs = interval
}

func (b *State) bookkeeping(dt float64) {
	b.ElapsedMs += dt
	b.BroadcastTimerMs -= dt

	if b.ElapsedMs < b.tun.MinKeepAliveMs {
		return
	}
	b.KeepAlive = false

	b.Defender.Lock()
	life := b.Defender.Resources[empire.ResLife]
	b.Defender.Unlock()
	if life <= 0 {
		b.finish(false)
		return
	}
	if len(b.Critters) == 0 && b.allWavesSpawned() {
		b.finish(true)
	}
}

func (b *State) allWavesSpawned() bool {
	for _, w := range b.Army.Waves {
		if w.Spawned < w.Slots {
			return false
		}
	}
	return true
}

func (b *State) finish(defenderWon bool) {
	b.Finished = true
	b.DefenderWon = defenderWon
	b.Shots = nil
	if b.bus != nil {
		b.bus.Emit(event.BattleFinished{
			BattleID:    b.BID,
			AttackID:    b.AttackID,
			DefenderWon: defenderWon,
		})
	}
}

func copyEffects(m map[string]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedFloatKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
