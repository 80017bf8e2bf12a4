// Package battle implements the fine-tick tower-defense runtime. One State
// exists per active battle; its Tick function is deterministic and owns all
// critters, shots, and structure copies, so tests drive it without a clock.
package battle

import (
	"encoding/binary"
	"math/rand"
	"sort"
	"sync"

	"lukechampine.com/blake3"

	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/hexmap"
	"github.com/jpenner/bastion/bastion-core/item"
)

// Tunables for the battle runtime. Zero values fall back to defaults.
type Tunables struct {
	TickMs              float64 `yaml:"tick_ms"`
	BroadcastIntervalMs float64 `yaml:"broadcast_interval_ms"`
	MinKeepAliveMs      float64 `yaml:"min_keep_alive_ms"`
	InterWaveDelayMs    float64 `yaml:"inter_wave_delay_ms"`
	SplashSubFlightMs   float64 `yaml:"splash_sub_flight_ms"`
	DefaultSplashRadius int     `yaml:"default_splash_radius"`

	// Loot applied when the defender loses.
	MinLootFraction     float64 `yaml:"min_loot_fraction"`
	MaxLootFraction     float64 `yaml:"max_loot_fraction"`
	ArtefactStealChance float64 `yaml:"artefact_steal_chance"`
}

// DefaultTunables mirrors the configured defaults.
func DefaultTunables() Tunables {
	return Tunables{
		TickMs:              15,
		BroadcastIntervalMs: 250,
		MinKeepAliveMs:      10000,
		InterWaveDelayMs:    5000,
		SplashSubFlightMs:   80,
		DefaultSplashRadius: 1,
		MinLootFraction:     0.1,
		MaxLootFraction:     0.3,
		ArtefactStealChance: 0.1,
	}
}

// Critter is one live attacker instance walking the battle path.
type Critter struct {
	CID          int     `json:"cid"`
	ItemID       string  `json:"iid"`
	Health       float64 `json:"health"`
	MaxHealth    float64 `json:"max_health"`
	Speed        float64 `json:"speed"` // base tiles/s
	Armor        float64 `json:"armor"`
	PathProgress float64 `json:"path_progress"` // 0..1 over the battle path

	SlowRemainingMs float64 `json:"slow_remaining_ms"`
	SlowSpeed       float64 `json:"slow_speed"`
	BurnRemainingMs float64 `json:"burn_remaining_ms"`
	BurnDPS         float64 `json:"burn_dps"`

	Capture      map[string]float64 `json:"capture,omitempty"`
	Bonus        map[string]float64 `json:"bonus,omitempty"`
	SpawnOnDeath map[string]int     `json:"spawn_on_death,omitempty"`
	Value        float64            `json:"value"`
}

// EffectiveSpeed returns the slowed speed while a cold effect is active.
func (c *Critter) EffectiveSpeed() float64 {
	if c.SlowRemainingMs > 0 {
		return c.SlowSpeed
	}
	return c.Speed
}

// Shot is a projectile in flight. SourceSID is -1 for splash sub-shots.
type Shot struct {
	Damage            float64            `json:"damage"`
	TargetCID         int                `json:"target_cid"`
	SourceSID         int                `json:"source_sid"`
	Type              item.ShotType      `json:"shot_type"`
	Effects           map[string]float64 `json:"effects,omitempty"`
	FlightRemainingMs float64            `json:"flight_remaining_ms"`
	FlightTotalMs     float64            `json:"flight_total_ms"`
	Origin            hexmap.Hex         `json:"origin"`
}

// Progress reports 0..1 flight completion for display.
func (s *Shot) Progress() float64 {
	if s.FlightTotalMs <= 0 {
		return 1
	}
	p := 1 - s.FlightRemainingMs/s.FlightTotalMs
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Removal records why a critter left the battle.
type Removal struct {
	CID    int    `json:"cid"`
	Reason string `json:"reason"` // "died" or "finished"
}

// State is one battle's complete simulation state.
type State struct {
	BID          string
	AttackID     int
	DefenderUID  int
	AttackerUIDs []int

	Army     *empire.Army // snapshot; wave counters advance here
	Defender *empire.Empire

	Critters   map[int]*Critter
	Structures map[int]*empire.Structure
	Shots      []*Shot
	Path       []hexmap.Hex

	ElapsedMs        float64
	BroadcastTimerMs float64

	KeepAlive   bool
	Finished    bool
	DefenderWon bool

	AttackerGains  map[int]map[string]float64
	DefenderLosses map[string]float64
	Journal        []Removal

	LifeBefore float64

	obsMu     sync.Mutex
	observers map[int]bool

	tun        Tunables
	reg        *item.Registry
	bus        *event.Bus
	rng        *rand.Rand
	nextCID    int
	activeWave int
}

// New builds a battle from an attack that finished its siege. The attacking
// army is snapshotted, the defender's structures are cloned, and the critter
// path is precomputed from the defender's hex map.
func New(bid string, attackID int, army *empire.Army, defender *empire.Empire,
	reg *item.Registry, bus *event.Bus, tun Tunables) (*State, bool) {

	def := DefaultTunables()
	if tun.TickMs == 0 {
		tun.TickMs = def.TickMs
	}
	if tun.BroadcastIntervalMs == 0 {
		tun.BroadcastIntervalMs = def.BroadcastIntervalMs
	}
	if tun.MinKeepAliveMs == 0 {
		tun.MinKeepAliveMs = def.MinKeepAliveMs
	}
	if tun.InterWaveDelayMs == 0 {
		tun.InterWaveDelayMs = def.InterWaveDelayMs
	}
	if tun.SplashSubFlightMs == 0 {
		tun.SplashSubFlightMs = def.SplashSubFlightMs
	}
	if tun.DefaultSplashRadius == 0 {
		tun.DefaultSplashRadius = def.DefaultSplashRadius
	}
	if tun.MinLootFraction == 0 {
		tun.MinLootFraction = def.MinLootFraction
	}
	if tun.MaxLootFraction == 0 {
		tun.MaxLootFraction = def.MaxLootFraction
	}
	if tun.ArtefactStealChance == 0 {
		tun.ArtefactStealChance = def.ArtefactStealChance
	}

	defender.Lock()
	path, ok := hexmap.FindPath(defender.HexMap)
	structures := make(map[int]*empire.Structure, len(defender.Structures))
	for sid, s := range defender.Structures {
		structures[sid] = s.Clone()
	}
	lifeBefore := defender.Resources[empire.ResLife]
	defender.Unlock()
	if !ok {
		return nil, false
	}

	b := &State{
		BID:              bid,
		AttackID:         attackID,
		DefenderUID:      defender.UID,
		AttackerUIDs:     []int{army.OwnerUID},
		Army:             army.Clone(),
		Defender:         defender,
		Critters:         make(map[int]*Critter),
		Structures:       structures,
		Path:             path,
		BroadcastTimerMs: tun.BroadcastIntervalMs,
		KeepAlive:        true,
		AttackerGains:    make(map[int]map[string]float64),
		DefenderLosses:   make(map[string]float64),
		LifeBefore:       lifeBefore,
		observers:        make(map[int]bool),
		tun:              tun,
		reg:              reg,
		bus:              bus,
		rng:              seededRNG(bid),
		nextCID:          1,
		activeWave:       -1,
	}
	// Reset wave counters: the snapshot spawns from scratch, first wave
	// immediately.
	for i, w := range b.Army.Waves {
		w.Spawned = 0
		if i == 0 {
			w.NextSpawnMs = 0
		}
	}
	return b, true
}

// seededRNG derives the battle PRNG from the battle id, so loot rolls are
// reproducible for a given battle.
func seededRNG(bid string) *rand.Rand {
	sum := blake3.Sum256([]byte(bid))
	seed := int64(binary.LittleEndian.Uint64(sum[:8]))
	return rand.New(rand.NewSource(seed))
}

// Observe adds a uid to the observer set.
func (b *State) Observe(uid int) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.observers[uid] = true
}

// Unobserve removes a uid from the observer set.
func (b *State) Unobserve(uid int) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	delete(b.observers, uid)
}

// Observers returns the current observer uids, sorted.
func (b *State) Observers() []int {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	out := make([]int, 0, len(b.observers))
	for uid := range b.observers {
		out = append(out, uid)
	}
	sort.Ints(out)
	return out
}

func (b *State) observed() bool {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	return len(b.observers) > 0
}

// SortedCritters returns the live critters ordered by cid.
func (b *State) SortedCritters() []*Critter {
	out := make([]*Critter, 0, len(b.Critters))
	for _, c := range b.Critters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CID < out[j].CID })
	return out
}

// SortedStructures returns the structure copies ordered by sid.
func (b *State) SortedStructures() []*empire.Structure {
	out := make([]*empire.Structure, 0, len(b.Structures))
	for _, s := range b.Structures {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out
}

func (b *State) spawnCritter(itemID string, progress float64) *Critter {
	it, ok := b.reg.Get(itemID)
	if !ok {
		return nil
	}
	c := &Critter{
		CID:          b.nextCID,
		ItemID:       itemID,
		Health:       it.Health,
		MaxHealth:    it.Health,
		Speed:        it.Speed,
		Armor:        it.Armor,
		PathProgress: progress,
		Capture:      it.CopyCapture(),
		Bonus:        it.CopyBonus(),
		SpawnOnDeath: it.CopySpawnOnDeath(),
		Value:        it.Value,
	}
	b.nextCID++
	b.Critters[c.CID] = c
	return c
}
