// Package item holds the read-only catalogue of everything an empire can
// build, research, place, or send into battle. The registry is constructed
// once from config and never mutated afterwards, so reads are lock-free.
package item

// Kind classifies a catalogue entry.
type Kind string

const (
	KindBuilding  Kind = "building"
	KindKnowledge Kind = "knowledge"
	KindStructure Kind = "structure"
	KindCritter   Kind = "critter"
	KindArtefact  Kind = "artefact"
	KindWonder    Kind = "wonder"
)

// ShotType selects how a structure's shots resolve on impact.
type ShotType string

const (
	ShotNormal ShotType = "normal"
	ShotBurn   ShotType = "burn"
	ShotCold   ShotType = "cold"
	ShotSplash ShotType = "splash"
)

// Effect map keys understood by the simulation. Items may carry arbitrary
// keys; these are the ones the engine reads.
const (
	EffectGoldOffset       = "gold_offset"
	EffectGoldModifier     = "gold_modifier"
	EffectCultureOffset    = "culture_offset"
	EffectCultureModifier  = "culture_modifier"
	EffectBuildSpeed       = "build_speed"
	EffectResearchSpeed    = "research_speed"
	EffectTravelTimeOffset = "travel_time_offset"
	EffectSiegeTimeOffset  = "siege_time_offset"
	EffectMaxLife          = "max_life"

	// Shot effect keys, copied from structures onto shots in flight.
	EffectSlowTarget         = "slow_target"
	EffectSlowTargetDuration = "slow_target_duration"
	EffectBurnTargetDPS      = "burn_target_dps"
	EffectBurnTargetDuration = "burn_target_duration"
	EffectSplashRadius       = "splash_radius"
)

// Item is an immutable catalogue record. Cost, Effects, Capture, Bonus and
// SpawnOnDeath are only handed out as defensive copies by the registry.
type Item struct {
	ID       string             `yaml:"id"`
	Kind     Kind               `yaml:"kind"`
	Effort   float64            `yaml:"effort"`
	Cost     map[string]float64 `yaml:"cost"`
	Requires []string           `yaml:"requires"`
	Effects  map[string]float64 `yaml:"effects"`

	// Structure numerics.
	Damage    float64  `yaml:"damage"`
	Range     int      `yaml:"range"`
	ReloadMs  int      `yaml:"reload_ms"`
	ShotSpeed float64  `yaml:"shot_speed"` // tiles per second
	ShotType  ShotType `yaml:"shot_type"`

	// Critter numerics.
	Health          float64            `yaml:"health"`
	Speed           float64            `yaml:"speed"` // tiles per second
	Armor           float64            `yaml:"armor"`
	Slots           int                `yaml:"slots"`
	SpawnIntervalMs int                `yaml:"spawn_interval_ms"`
	Capture         map[string]float64 `yaml:"capture"`
	Bonus           map[string]float64 `yaml:"bonus"`
	SpawnOnDeath    map[string]int     `yaml:"spawn_on_death"`
	Value           float64            `yaml:"value"` // defender gold per kill
}

// CopyCost returns a defensive copy of the cost map.
func (it Item) CopyCost() map[string]float64 { return copyMap(it.Cost) }

// CopyEffects returns a defensive copy of the effect map.
func (it Item) CopyEffects() map[string]float64 { return copyMap(it.Effects) }

// CopyCapture returns a defensive copy of the capture map.
func (it Item) CopyCapture() map[string]float64 { return copyMap(it.Capture) }

// CopyBonus returns a defensive copy of the bonus map.
func (it Item) CopyBonus() map[string]float64 { return copyMap(it.Bonus) }

// CopySpawnOnDeath returns a defensive copy of the spawn-on-death map.
func (it Item) CopySpawnOnDeath() map[string]int {
	if it.SpawnOnDeath == nil {
		return nil
	}
	out := make(map[string]int, len(it.SpawnOnDeath))
	for k, v := range it.SpawnOnDeath {
		out[k] = v
	}
	return out
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
