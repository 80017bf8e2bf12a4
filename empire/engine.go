package empire

import (
	"fmt"
	"sort"

	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/hexmap"
	"github.com/jpenner/bastion/bastion-core/item"
)

// Tunables for the empire engine. Zero values are replaced with defaults by
// NewEngine.
type Tunables struct {
	BaseGoldRate    float64 `yaml:"base_gold_rate"`    // per second, boosted by merchants
	BaseCultureRate float64 `yaml:"base_culture_rate"` // per second, boosted by artists
	CitizenEffect   float64 `yaml:"citizen_effect"`    // per-citizen multiplier contribution
	BaseMaxLife     float64 `yaml:"base_max_life"`
	CitizenBaseCost float64 `yaml:"citizen_base_cost"` // gold; scales with citizen count
	RefundFraction  float64 `yaml:"refund_fraction"`   // structure removal refund
	LifeCostGold    float64 `yaml:"life_cost_gold"`    // gold per point of life bought

	UpgradeDamageFactor float64 `yaml:"upgrade_damage_factor"` // damage multiplier per structure level
}

// DefaultTunables mirrors the configured defaults.
func DefaultTunables() Tunables {
	return Tunables{
		BaseGoldRate:        1.0,
		BaseCultureRate:     0.5,
		CitizenEffect:       0.1,
		BaseMaxLife:         20,
		CitizenBaseCost:     100,
		RefundFraction:      0.5,
		LifeCostGold:        50,
		UpgradeDamageFactor: 1.25,
	}
}

// Engine advances empires and applies player operations. All operations are
// pure state mutations returning an error on precondition failure; a failed
// operation leaves the empire unchanged.
type Engine struct {
	reg *item.Registry
	bus *event.Bus
	tun Tunables
}

// NewEngine wires an engine to the item registry and event bus.
func NewEngine(reg *item.Registry, bus *event.Bus, tun Tunables) *Engine {
	def := DefaultTunables()
	if tun.BaseGoldRate == 0 {
		tun.BaseGoldRate = def.BaseGoldRate
	}
	if tun.BaseCultureRate == 0 {
		tun.BaseCultureRate = def.BaseCultureRate
	}
	if tun.CitizenEffect == 0 {
		tun.CitizenEffect = def.CitizenEffect
	}
	if tun.BaseMaxLife == 0 {
		tun.BaseMaxLife = def.BaseMaxLife
	}
	if tun.CitizenBaseCost == 0 {
		tun.CitizenBaseCost = def.CitizenBaseCost
	}
	if tun.RefundFraction == 0 {
		tun.RefundFraction = def.RefundFraction
	}
	if tun.LifeCostGold == 0 {
		tun.LifeCostGold = def.LifeCostGold
	}
	if tun.UpgradeDamageFactor == 0 {
		tun.UpgradeDamageFactor = def.UpgradeDamageFactor
	}
	return &Engine{reg: reg, bus: bus, tun: tun}
}

// Registry exposes the engine's item catalogue.
func (g *Engine) Registry() *item.Registry { return g.reg }

// Step advances one empire by dt seconds: resource generation, then build
// progress, then research progress. Caller holds the empire lock.
func (g *Engine) Step(e *Empire, dt float64) {
	g.generateResources(e, dt)
	g.advanceBuild(e, dt)
	g.advanceResearch(e, dt)
	if e.Resources[ResLife] > e.MaxLife {
		e.Resources[ResLife] = e.MaxLife
	}
}

func (g *Engine) generateResources(e *Empire, dt float64) {
	goldRate := (g.tun.BaseGoldRate + e.Effects[item.EffectGoldOffset]) *
		(1 + float64(e.Citizens[RoleMerchant])*g.tun.CitizenEffect + e.Effects[item.EffectGoldModifier])
	cultureRate := (g.tun.BaseCultureRate + e.Effects[item.EffectCultureOffset]) *
		(1 + float64(e.Citizens[RoleArtist])*g.tun.CitizenEffect + e.Effects[item.EffectCultureModifier])

	e.Resources[ResGold] += goldRate * dt
	e.Resources[ResCulture] += cultureRate * dt
	// Life is never passively generated.
}

func (g *Engine) advanceBuild(e *Empire, dt float64) {
	id := e.BuildQueue
	if id == "" {
		return
	}
	rem, ok := e.Buildings[id]
	if !ok || rem <= 0 {
		e.BuildQueue = ""
		return
	}
	rem -= dt * (1 + e.Effects[item.EffectBuildSpeed])
	if rem <= 0 {
		e.Buildings[id] = 0
		e.BuildQueue = ""
		g.RecalculateEffects(e)
		g.emitCompleted(e.UID, id)
		return
	}
	e.Buildings[id] = rem
}

func (g *Engine) advanceResearch(e *Empire, dt float64) {
	id := e.ResearchQueue
	if id == "" {
		return
	}
	rem, ok := e.Knowledge[id]
	if !ok || rem <= 0 {
		e.ResearchQueue = ""
		return
	}
	rem -= dt * (1 + e.Effects[item.EffectResearchSpeed] + float64(e.Citizens[RoleScientist])*g.tun.CitizenEffect)
	if rem <= 0 {
		e.Knowledge[id] = 0
		e.ResearchQueue = ""
		g.RecalculateEffects(e)
		g.emitCompleted(e.UID, id)
		return
	}
	e.Knowledge[id] = rem
}

func (g *Engine) emitCompleted(uid int, id string) {
	if g.bus != nil {
		g.bus.Emit(event.ItemCompleted{EmpireUID: uid, ItemID: id})
	}
}

// BuildItem starts (or, for zero-effort items, immediately completes) a
// building or research item. Preconditions are checked in order; the first
// failure aborts with the empire untouched.
func (g *Engine) BuildItem(e *Empire, id string) error {
	it, ok := g.reg.Get(id)
	if !ok {
		return fmt.Errorf("unknown item %q", id)
	}

	var progress, other map[string]float64
	var queue *string
	switch it.Kind {
	case item.KindBuilding, item.KindWonder:
		progress, other, queue = e.Buildings, e.Knowledge, &e.BuildQueue
	case item.KindKnowledge:
		progress, other, queue = e.Knowledge, e.Buildings, &e.ResearchQueue
	default:
		return fmt.Errorf("item %q cannot be built or researched", id)
	}

	if !g.reg.RequirementsMet(id, e.Completed()) {
		return fmt.Errorf("Requirements not met for %s", id)
	}
	if _, started := progress[id]; started {
		return fmt.Errorf("Item %s already started or completed", id)
	}
	if _, started := other[id]; started {
		return fmt.Errorf("Item %s already started or completed", id)
	}
	if *queue != "" && it.Effort > 0 {
		return fmt.Errorf("Queue busy with %s", *queue)
	}
	if missing := firstMissingResource(e.Resources, it.Cost); missing != "" {
		return fmt.Errorf("Not enough %s", missing)
	}

	for res, amount := range it.Cost {
		e.Resources[res] -= amount
	}
	progress[id] = it.Effort
	if it.Effort <= 0 {
		// Zero-effort items complete synchronously and never touch the queue.
		g.RecalculateEffects(e)
		g.emitCompleted(e.UID, id)
		return nil
	}
	*queue = id
	return nil
}

// firstMissingResource returns the first (alphabetically) resource the empire
// cannot afford, or "" if the cost is covered. Deterministic ordering keeps
// the error string stable.
func firstMissingResource(have, cost map[string]float64) string {
	keys := make([]string, 0, len(cost))
	for k := range cost {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if have[k] < cost[k] {
			return k
		}
	}
	return ""
}

// PlaceStructure puts a tower item on an owned buildable hex.
func (g *Engine) PlaceStructure(e *Empire, id string, q, r int) (*Structure, error) {
	it, ok := g.reg.Get(id)
	if !ok || it.Kind != item.KindStructure {
		return nil, fmt.Errorf("unknown structure %q", id)
	}
	if !g.reg.RequirementsMet(id, e.Completed()) {
		return nil, fmt.Errorf("Requirements not met for %s", id)
	}
	pos := hexmap.Hex{Q: q, R: r}
	if e.HexMap[pos.Key()] != hexmap.TileBuildable {
		return nil, fmt.Errorf("Invalid position %s", pos.Key())
	}
	for _, s := range e.Structures {
		if s.Pos == pos {
			return nil, fmt.Errorf("Position %s occupied", pos.Key())
		}
	}
	if missing := firstMissingResource(e.Resources, it.Cost); missing != "" {
		return nil, fmt.Errorf("Not enough %s", missing)
	}

	for res, amount := range it.Cost {
		e.Resources[res] -= amount
	}
	s := &Structure{
		SID:       e.NextSID,
		ItemID:    id,
		Level:     1,
		Pos:       pos,
		Damage:    it.Damage,
		Range:     it.Range,
		ReloadMs:  it.ReloadMs,
		ShotSpeed: it.ShotSpeed,
		ShotType:  it.ShotType,
		Effects:   it.CopyEffects(),
	}
	e.NextSID++
	e.Structures[s.SID] = s
	return s, nil
}

// UpgradeStructure raises a placed structure one level. Each level costs the
// item cost again, scaled by the current level, and multiplies the damage by
// the upgrade factor.
func (g *Engine) UpgradeStructure(e *Empire, sid int) error {
	s, ok := e.Structures[sid]
	if !ok {
		return fmt.Errorf("unknown structure sid %d", sid)
	}
	it, ok := g.reg.Get(s.ItemID)
	if !ok {
		return fmt.Errorf("unknown item %q", s.ItemID)
	}
	cost := make(map[string]float64, len(it.Cost))
	for res, amount := range it.Cost {
		cost[res] = amount * float64(s.Level)
	}
	if missing := firstMissingResource(e.Resources, cost); missing != "" {
		return fmt.Errorf("Not enough %s", missing)
	}
	for res, amount := range cost {
		e.Resources[res] -= amount
	}
	s.Level++
	s.Damage *= g.tun.UpgradeDamageFactor
	return nil
}

// RemoveStructure deletes a placed structure and refunds part of its cost.
func (g *Engine) RemoveStructure(e *Empire, sid int) error {
	s, ok := e.Structures[sid]
	if !ok {
		return fmt.Errorf("unknown structure sid %d", sid)
	}
	if it, ok := g.reg.Get(s.ItemID); ok {
		for res, amount := range it.Cost {
			e.Resources[res] += amount * g.tun.RefundFraction
		}
	}
	delete(e.Structures, sid)
	return nil
}

// UpgradeCitizen adds one untyped citizen. The price grows linearly with the
// citizens already bought.
func (g *Engine) UpgradeCitizen(e *Empire) error {
	cost := g.tun.CitizenBaseCost * float64(e.CitizenCount+1)
	if e.Resources[ResGold] < cost {
		return fmt.Errorf("Not enough gold")
	}
	e.Resources[ResGold] -= cost
	e.CitizenCount++
	return nil
}

// AssignCitizens reassigns citizen roles. The sum of the distribution must
// not exceed the citizens the empire owns.
func (g *Engine) AssignCitizens(e *Empire, dist map[string]int) error {
	total := 0
	for role, n := range dist {
		switch role {
		case RoleMerchant, RoleScientist, RoleArtist:
		default:
			return fmt.Errorf("unknown citizen role %q", role)
		}
		if n < 0 {
			return fmt.Errorf("negative citizen count for %s", role)
		}
		total += n
	}
	if total > e.CitizenCount {
		return fmt.Errorf("Not enough citizens: have %d, want %d", e.CitizenCount, total)
	}
	e.Citizens = map[string]int{RoleMerchant: 0, RoleScientist: 0, RoleArtist: 0}
	for role, n := range dist {
		e.Citizens[role] = n
	}
	return nil
}

// IncreaseLife converts gold into one point of life, capped at MaxLife.
func (g *Engine) IncreaseLife(e *Empire) error {
	if e.Resources[ResLife] >= e.MaxLife {
		return fmt.Errorf("Life already at maximum")
	}
	if e.Resources[ResGold] < g.tun.LifeCostGold {
		return fmt.Errorf("Not enough gold")
	}
	e.Resources[ResGold] -= g.tun.LifeCostGold
	e.Resources[ResLife]++
	if e.Resources[ResLife] > e.MaxLife {
		e.Resources[ResLife] = e.MaxLife
	}
	return nil
}

// RecalculateEffects rebuilds the aggregated effect map from every completed
// building, completed knowledge, and held artefact. Items still in progress
// contribute nothing.
func (g *Engine) RecalculateEffects(e *Empire) {
	eff := make(map[string]float64)
	add := func(id string) {
		if it, ok := g.reg.Get(id); ok {
			for k, v := range it.Effects {
				eff[k] += v
			}
		}
	}
	for id, rem := range e.Buildings {
		if rem <= 0 {
			add(id)
		}
	}
	for id, rem := range e.Knowledge {
		if rem <= 0 {
			add(id)
		}
	}
	for _, id := range e.Artefacts {
		add(id)
	}
	e.Effects = eff
	e.MaxLife = g.tun.BaseMaxLife + eff[item.EffectMaxLife]
	if e.Resources[ResLife] > e.MaxLife {
		e.Resources[ResLife] = e.MaxLife
	}
}

// NewArmy creates an empty army for the empire.
func (g *Engine) NewArmy(e *Empire, name string) *Army {
	a := &Army{AID: e.NextAID, OwnerUID: e.UID, Name: name}
	e.NextAID++
	e.Armies = append(e.Armies, a)
	return a
}

// RenameArmy updates an army's display name.
func (g *Engine) RenameArmy(e *Empire, aid int, name string) error {
	a, ok := e.Army(aid)
	if !ok {
		return fmt.Errorf("unknown army aid %d", aid)
	}
	if name == "" {
		return fmt.Errorf("empty army name")
	}
	a.Name = name
	return nil
}

// AddWave appends a wave of the given critter to an army.
func (g *Engine) AddWave(e *Empire, aid int, critterID string, slots int) (*Wave, error) {
	a, ok := e.Army(aid)
	if !ok {
		return nil, fmt.Errorf("unknown army aid %d", aid)
	}
	it, ok := g.reg.Get(critterID)
	if !ok || it.Kind != item.KindCritter {
		return nil, fmt.Errorf("unknown critter %q", critterID)
	}
	if !g.reg.RequirementsMet(critterID, e.Completed()) {
		return nil, fmt.Errorf("Requirements not met for %s", critterID)
	}
	if slots <= 0 {
		slots = it.Slots
	}
	w := &Wave{WaveID: len(a.Waves) + 1, CritterID: critterID, Slots: slots}
	a.Waves = append(a.Waves, w)
	return w, nil
}

// ChangeWave updates a wave's critter type or slot count.
func (g *Engine) ChangeWave(e *Empire, aid, waveID int, critterID string, slots int) error {
	a, ok := e.Army(aid)
	if !ok {
		return fmt.Errorf("unknown army aid %d", aid)
	}
	if waveID < 1 || waveID > len(a.Waves) {
		return fmt.Errorf("unknown wave %d", waveID)
	}
	w := a.Waves[waveID-1]
	if critterID != "" {
		it, ok := g.reg.Get(critterID)
		if !ok || it.Kind != item.KindCritter {
			return fmt.Errorf("unknown critter %q", critterID)
		}
		if !g.reg.RequirementsMet(critterID, e.Completed()) {
			return fmt.Errorf("Requirements not met for %s", critterID)
		}
		w.CritterID = critterID
	}
	if slots > 0 {
		w.Slots = slots
	}
	return nil
}
