package ai

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/jpenner/bastion/bastion-core/attack"
	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/item"
)

// Config tunes the director. Zero values fall back to defaults.
type Config struct {
	UID int `yaml:"uid"`

	AttackIntervalSeconds float64 `yaml:"attack_interval_seconds"`

	// Difficulty adaptation: the director tracks its win rate over a sliding
	// window and nudges the power multiplier toward the target band.
	TargetWinRate      float64 `yaml:"target_win_rate"`
	WinRateBand        float64 `yaml:"win_rate_band"`
	Window             int     `yaml:"window"`
	AdaptationRate     float64 `yaml:"adaptation_rate"`
	MinPowerMultiplier float64 `yaml:"min_power_multiplier"`
	MaxPowerMultiplier float64 `yaml:"max_power_multiplier"`

	// Scoring weights over the target's development.
	BuildingWeight  float64 `yaml:"building_weight"`
	ResearchWeight  float64 `yaml:"research_weight"`
	CultureWeight   float64 `yaml:"culture_weight"`
	StructureWeight float64 `yaml:"structure_weight"`

	// Army synthesis.
	PowerFloor         float64 `yaml:"power_floor"`
	SpeedBias          float64 `yaml:"speed_bias"`
	ArmorBias          float64 `yaml:"armor_bias"`
	FastSpeedThreshold float64 `yaml:"fast_speed_threshold"`
	WaveCount          int     `yaml:"wave_count"`
	MinSlots           int     `yaml:"min_slots"`
	MaxSlots           int     `yaml:"max_slots"`

	WavePolicy    string         `yaml:"wave_policy"`
	ScriptedWaves []ScriptedWave `yaml:"scripted_waves"`
}

// DefaultConfig mirrors the configured defaults.
func DefaultConfig() Config {
	return Config{
		AttackIntervalSeconds: 300,
		TargetWinRate:         0.5,
		WinRateBand:           0.05,
		Window:                10,
		AdaptationRate:        0.08,
		MinPowerMultiplier:    0.2,
		MaxPowerMultiplier:    3.0,
		BuildingWeight:        1.0,
		ResearchWeight:        1.0,
		CultureWeight:         1.0,
		StructureWeight:       1.0,
		PowerFloor:            500,
		SpeedBias:             0.3,
		ArmorBias:             0.3,
		FastSpeedThreshold:    0.25,
		WaveCount:             3,
		MinSlots:              1,
		MaxSlots:              12,
		WavePolicy:            PolicyLastMatch,
	}
}

// Director is the computer opponent. It implements the world loop's Agent
// interface and attacks through the same service players use.
type Director struct {
	cfg     Config
	empires *empire.Manager
	attacks *attack.Service
	reg     *item.Registry

	mu          sync.Mutex
	multiplier  float64
	results     []bool
	pending     map[int]bool
	sinceAttack float64

	// Player uids with completions since the last step. Completion events
	// arrive inline on the emitter's goroutine, so evaluation waits for the
	// next Step.
	triggered []int
}

// New compiles the scripted wave triggers and subscribes the director to
// battle outcomes.
func New(cfg Config, empires *empire.Manager, attacks *attack.Service,
	reg *item.Registry, bus *event.Bus) (*Director, error) {

	def := DefaultConfig()
	if cfg.AttackIntervalSeconds == 0 {
		cfg.AttackIntervalSeconds = def.AttackIntervalSeconds
	}
	if cfg.TargetWinRate == 0 {
		cfg.TargetWinRate = def.TargetWinRate
	}
	if cfg.WinRateBand == 0 {
		cfg.WinRateBand = def.WinRateBand
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if cfg.AdaptationRate == 0 {
		cfg.AdaptationRate = def.AdaptationRate
	}
	if cfg.MinPowerMultiplier == 0 {
		cfg.MinPowerMultiplier = def.MinPowerMultiplier
	}
	if cfg.MaxPowerMultiplier == 0 {
		cfg.MaxPowerMultiplier = def.MaxPowerMultiplier
	}
	if cfg.BuildingWeight == 0 {
		cfg.BuildingWeight = def.BuildingWeight
	}
	if cfg.ResearchWeight == 0 {
		cfg.ResearchWeight = def.ResearchWeight
	}
	if cfg.CultureWeight == 0 {
		cfg.CultureWeight = def.CultureWeight
	}
	if cfg.StructureWeight == 0 {
		cfg.StructureWeight = def.StructureWeight
	}
	if cfg.PowerFloor == 0 {
		cfg.PowerFloor = def.PowerFloor
	}
	if cfg.SpeedBias == 0 {
		cfg.SpeedBias = def.SpeedBias
	}
	if cfg.ArmorBias == 0 {
		cfg.ArmorBias = def.ArmorBias
	}
	if cfg.FastSpeedThreshold == 0 {
		cfg.FastSpeedThreshold = def.FastSpeedThreshold
	}
	if cfg.WaveCount == 0 {
		cfg.WaveCount = def.WaveCount
	}
	if cfg.MinSlots == 0 {
		cfg.MinSlots = def.MinSlots
	}
	if cfg.MaxSlots == 0 {
		cfg.MaxSlots = def.MaxSlots
	}
	if cfg.WavePolicy == "" {
		cfg.WavePolicy = def.WavePolicy
	}

	compiled, err := compileWaves(cfg.ScriptedWaves)
	if err != nil {
		return nil, err
	}
	cfg.ScriptedWaves = compiled

	d := &Director{
		cfg:        cfg,
		empires:    empires,
		attacks:    attacks,
		reg:        reg,
		multiplier: 1.0,
		pending:    make(map[int]bool),
	}
	if bus != nil {
		bus.Subscribe(event.KindBattleFinished, func(ev event.Event) {
			fin := ev.(event.BattleFinished)
			d.onBattleFinished(fin.AttackID, fin.DefenderWon)
		})
		bus.Subscribe(event.KindItemCompleted, func(ev event.Event) {
			ic := ev.(event.ItemCompleted)
			d.onItemCompleted(ic.EmpireUID)
		})
	}
	return d, nil
}

// onItemCompleted queues a player for scripted-trigger evaluation on the
// next step. The handler runs inline on the completing empire's goroutine,
// possibly under that empire's lock, so it must not touch the empire here.
func (d *Director) onItemCompleted(uid int) {
	if uid == d.cfg.UID {
		return
	}
	d.mu.Lock()
	d.triggered = append(d.triggered, uid)
	d.mu.Unlock()
}

// PowerMultiplier returns the current difficulty multiplier.
func (d *Director) PowerMultiplier() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.multiplier
}

// Step drains queued completion triggers and advances the attack timer;
// called once per world tick.
func (d *Director) Step(dt float64) {
	d.mu.Lock()
	d.sinceAttack += dt
	due := d.sinceAttack >= d.cfg.AttackIntervalSeconds
	if due {
		d.sinceAttack = 0
	}
	triggered := d.triggered
	d.triggered = nil
	d.mu.Unlock()

	d.evaluateTriggers(triggered)
	if !due {
		return
	}
	d.launchRaid()
}

// evaluateTriggers checks the scripted-wave triggers against every empire
// that completed an item since the last step. A match raids that empire
// immediately with the scripted army.
func (d *Director) evaluateTriggers(uids []int) {
	if len(d.cfg.ScriptedWaves) == 0 {
		return
	}
	seen := make(map[int]bool, len(uids))
	for _, uid := range uids {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		target, ok := d.empires.Get(uid)
		if !ok {
			continue
		}
		sw := matchScripted(d.cfg.ScriptedWaves, envFor(target), d.cfg.WavePolicy)
		if sw == nil {
			continue
		}
		slog.Debug("scripted trigger matched", "wave", sw.Name, "target", uid)
		d.dispatch(target, d.scriptedWaves(sw))
	}
}

// launchRaid picks the most developed player empire, builds an army sized to
// its score, and starts an attack.
func (d *Director) launchRaid() {
	target := d.pickTarget()
	if target == nil {
		return
	}
	score := d.Score(target)
	slog.Debug("raid budget", "target", target.UID, "score", score, "multiplier", d.PowerMultiplier())
	d.dispatch(target, d.composeArmy(target, score*d.PowerMultiplier()))
}

// dispatch wraps the waves in a fresh army and starts the attack.
func (d *Director) dispatch(target *empire.Empire, waves []*empire.Wave) {
	if len(waves) == 0 {
		slog.Warn("raid skipped: empty army", "target", target.UID)
		return
	}

	self, ok := d.empires.Get(d.cfg.UID)
	if !ok {
		slog.Error("director empire missing", "uid", d.cfg.UID)
		return
	}
	self.Lock()
	army := &empire.Army{AID: self.NextAID, OwnerUID: self.UID, Name: "raid", Waves: waves}
	self.NextAID++
	self.Armies = append(self.Armies, army)
	self.Unlock()

	a, err := d.attacks.Start(self.UID, target.UID, army.AID)
	if err != nil {
		slog.Error("raid launch failed", "target", target.UID, "error", err)
		return
	}
	d.mu.Lock()
	d.pending[a.ID] = true
	d.mu.Unlock()
	slog.Info("raid launched", "attack", a.ID, "target", target.UID,
		"multiplier", d.PowerMultiplier(), "waves", len(waves))
}

// pickTarget returns the player empire with the highest score; ties break on
// lowest uid by iteration order.
func (d *Director) pickTarget() *empire.Empire {
	var best *empire.Empire
	bestScore := -1.0
	for _, e := range d.empires.All() {
		if e.UID == d.cfg.UID {
			continue
		}
		if s := d.Score(e); s > bestScore {
			best, bestScore = e, s
		}
	}
	return best
}

// Score weighs an empire's development: invested effort in completed
// buildings and research, culture stock, and placed structures, floored so
// fresh empires still face token raids.
func (d *Director) Score(e *empire.Empire) float64 {
	e.Lock()
	building := d.completedEffort(e.Buildings)
	research := d.completedEffort(e.Knowledge)
	culture := e.Resources[empire.ResCulture]
	structures := len(e.Structures)
	e.Unlock()

	score := building*d.cfg.BuildingWeight +
		research*d.cfg.ResearchWeight +
		culture*d.cfg.CultureWeight +
		float64(structures)*1000*d.cfg.StructureWeight
	if score < d.cfg.PowerFloor {
		score = d.cfg.PowerFloor
	}
	return score
}

func (d *Director) completedEffort(progress map[string]float64) float64 {
	total := 0.0
	for id, rem := range progress {
		if rem > 0 {
			continue
		}
		if it, ok := d.reg.Get(id); ok {
			total += it.Effort
		}
	}
	return total
}

// composeArmy returns the wave list for a raid: a matching scripted wave wins
// outright, otherwise an army is synthesized against the budget.
func (d *Director) composeArmy(target *empire.Empire, budget float64) []*empire.Wave {
	if len(d.cfg.ScriptedWaves) > 0 {
		if sw := matchScripted(d.cfg.ScriptedWaves, envFor(target), d.cfg.WavePolicy); sw != nil {
			slog.Debug("scripted wave selected", "wave", sw.Name, "target", target.UID)
			return d.scriptedWaves(sw)
		}
	}
	return d.synthesize(target, budget)
}

func (d *Director) scriptedWaves(sw *ScriptedWave) []*empire.Wave {
	var out []*empire.Wave
	for _, spec := range sw.Waves {
		it, ok := d.reg.Get(spec.CritterID)
		if !ok || it.Kind != item.KindCritter {
			slog.Warn("scripted wave references unknown critter", "wave", sw.Name, "critter", spec.CritterID)
			continue
		}
		slots := spec.Slots
		if it.Slots > 0 && slots > it.Slots {
			slots = it.Slots
		}
		out = append(out, &empire.Wave{WaveID: len(out) + 1, CritterID: it.ID, Slots: slots})
	}
	return out
}

// synthesize splits the budget across fast, armored, and plain pools by the
// configured biases, picking the toughest critter in each pool. The wave
// count is spread round-robin over the non-empty pools, and each wave's
// slots scale the pool's budget share by the pick's health, clamped to the
// configured bounds.
func (d *Director) synthesize(target *empire.Empire, budget float64) []*empire.Wave {
	fast, armored, plain := d.pools(d.availableCritters(target))

	normalBias := 1 - d.cfg.SpeedBias - d.cfg.ArmorBias
	if normalBias < 0 {
		normalBias = 0
	}
	type pool struct {
		share    float64
		critters []item.Item
	}
	var active []pool
	for _, p := range []pool{
		{d.cfg.SpeedBias, fast},
		{d.cfg.ArmorBias, armored},
		{normalBias, plain},
	} {
		if p.share > 0 && len(p.critters) > 0 {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil
	}

	waveCounts := make([]int, len(active))
	for i := 0; i < d.cfg.WaveCount; i++ {
		waveCounts[i%len(active)]++
	}

	var out []*empire.Wave
	for i, p := range active {
		pick, ok := toughest(p.critters)
		if !ok || waveCounts[i] == 0 {
			continue
		}
		health := pick.Health
		if health < 1 {
			health = 1
		}
		slots := int(math.Ceil(p.share * budget / float64(waveCounts[i]) / health))
		if slots < d.cfg.MinSlots {
			slots = d.cfg.MinSlots
		}
		if slots > d.cfg.MaxSlots {
			slots = d.cfg.MaxSlots
		}
		if pick.Slots > 0 && slots > pick.Slots {
			slots = pick.Slots
		}
		for w := 0; w < waveCounts[i]; w++ {
			out = append(out, &empire.Wave{WaveID: len(out) + 1, CritterID: pick.ID, Slots: slots})
		}
	}
	return out
}

// availableCritters returns the critters the target could itself field, so
// raids scale with what the defender has unlocked. An empire with nothing
// unlocked faces the whole catalogue.
func (d *Director) availableCritters(target *empire.Empire) []item.Item {
	target.Lock()
	completed := target.Completed()
	target.Unlock()
	if avail := d.reg.AvailableCritters(completed); len(avail) > 0 {
		return avail
	}
	return d.reg.ByKind(item.KindCritter)
}

// pools classifies critters. A critter lands in exactly one pool: fast beats
// armored beats plain.
func (d *Director) pools(critters []item.Item) (fast, armored, plain []item.Item) {
	for _, it := range critters {
		switch {
		case it.Speed >= d.cfg.FastSpeedThreshold:
			fast = append(fast, it)
		case it.Armor > 0:
			armored = append(armored, it)
		default:
			plain = append(plain, it)
		}
	}
	return fast, armored, plain
}

// toughest picks the highest-health critter; ties break on the sorted input
// order, so lowest id wins.
func toughest(pool []item.Item) (item.Item, bool) {
	if len(pool) == 0 {
		return item.Item{}, false
	}
	best := pool[0]
	for _, it := range pool[1:] {
		if it.Health > best.Health {
			best = it
		}
	}
	return best, true
}

func (d *Director) onBattleFinished(attackID int, defenderWon bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending[attackID] {
		return
	}
	delete(d.pending, attackID)

	d.results = append(d.results, !defenderWon)
	if len(d.results) < d.cfg.Window {
		return
	}

	wins := 0
	for _, w := range d.results {
		if w {
			wins++
		}
	}
	rate := float64(wins) / float64(len(d.results))
	// One adjustment per full window; the next window starts fresh.
	d.results = d.results[:0]
	before := d.multiplier
	switch {
	case rate > d.cfg.TargetWinRate+d.cfg.WinRateBand:
		d.multiplier -= d.cfg.AdaptationRate
		if d.multiplier < d.cfg.MinPowerMultiplier {
			d.multiplier = d.cfg.MinPowerMultiplier
		}
	case rate < d.cfg.TargetWinRate-d.cfg.WinRateBand:
		d.multiplier += d.cfg.AdaptationRate
		if d.multiplier > d.cfg.MaxPowerMultiplier {
			d.multiplier = d.cfg.MaxPowerMultiplier
		}
	}
	if d.multiplier != before {
		slog.Info("difficulty adapted", "win_rate", fmt.Sprintf("%.2f", rate),
			"multiplier", fmt.Sprintf("%.2f", d.multiplier))
	}
}
