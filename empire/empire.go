// Package empire owns per-player game state and the coarse-tick engine that
// advances it: resource generation, build and research progress, effect
// aggregation, structure placement, and citizen management.
package empire

import (
	"sort"
	"sync"

	"github.com/jpenner/bastion/bastion-core/hexmap"
	"github.com/jpenner/bastion/bastion-core/item"
)

// Resource map keys the engine reads and writes.
const (
	ResGold    = "gold"
	ResCulture = "culture"
	ResLife    = "life"
)

// Citizen roles.
const (
	RoleMerchant  = "merchant"
	RoleScientist = "scientist"
	RoleArtist    = "artist"
)

// Structure is a placed tower. It carries a copy of the item numerics so the
// catalogue stays untouched, plus transient per-battle fields.
type Structure struct {
	SID       int                `json:"sid"`
	ItemID    string             `json:"iid"`
	Level     int                `json:"level"`
	Pos       hexmap.Hex         `json:"pos"`
	Damage    float64            `json:"damage"`
	Range     int                `json:"range"`
	ReloadMs  int                `json:"reload_ms"`
	ShotSpeed float64            `json:"shot_speed"`
	ShotType  item.ShotType      `json:"shot_type"`
	Effects   map[string]float64 `json:"effects,omitempty"`

	// Transient battle state; reset when snapshotted.
	FocusCID          int     `json:"-"`
	ReloadRemainingMs float64 `json:"-"`
}

// Clone copies the structure with transient fields cleared. Battles work on
// clones so mid-battle reloading never leaks into the owning empire.
func (s *Structure) Clone() *Structure {
	cp := *s
	cp.FocusCID = 0
	cp.ReloadRemainingMs = 0
	if s.Effects != nil {
		cp.Effects = make(map[string]float64, len(s.Effects))
		for k, v := range s.Effects {
			cp.Effects[k] = v
		}
	}
	return &cp
}

// Wave is one ordered batch of a single critter type within an army.
type Wave struct {
	WaveID      int     `json:"wave_id"`
	CritterID   string  `json:"critter_iid"`
	Slots       int     `json:"slots"`
	Spawned     int     `json:"spawned"`
	NextSpawnMs float64 `json:"next_spawn_ms"`
}

// Army is an ordered sequence of waves owned by one empire.
type Army struct {
	AID      int     `json:"aid"`
	OwnerUID int     `json:"owner_uid"`
	Name     string  `json:"name"`
	Waves    []*Wave `json:"waves"`
}

// Clone deep-copies the army; battles snapshot the attacking army so wave
// counters advance independently of the original.
func (a *Army) Clone() *Army {
	cp := &Army{AID: a.AID, OwnerUID: a.OwnerUID, Name: a.Name}
	cp.Waves = make([]*Wave, len(a.Waves))
	for i, w := range a.Waves {
		wc := *w
		cp.Waves[i] = &wc
	}
	return cp
}

// Empire is a player's complete owned game state. All mutation goes through
// the Engine while holding the empire's lock; see the shared-resource rules
// in the world loop.
type Empire struct {
	mu sync.Mutex

	UID  int    `json:"uid"`
	Name string `json:"name"`

	Resources map[string]float64 `json:"resources"`

	// Remaining effort per item id; 0 means complete. An id lives in
	// Buildings or Knowledge, never both.
	Buildings map[string]float64 `json:"buildings"`
	Knowledge map[string]float64 `json:"knowledge"`

	BuildQueue    string `json:"build_queue,omitempty"`
	ResearchQueue string `json:"research_queue,omitempty"`

	CitizenCount int            `json:"citizen_count"`
	Citizens     map[string]int `json:"citizens"`

	// Aggregated from completed items only; rebuilt by RecalculateEffects.
	Effects map[string]float64 `json:"effects"`

	Structures map[int]*Structure `json:"structures"`
	Armies     []*Army            `json:"armies"`
	SpyArmies  []*Army            `json:"spy_armies,omitempty"`
	Artefacts  []string           `json:"artefacts,omitempty"`

	HexMap  map[string]hexmap.TileType `json:"hex_map"`
	MaxLife float64                    `json:"max_life"`

	NextSID int `json:"next_sid"`
	NextAID int `json:"next_aid"`
}

// New returns an empty empire with initialised maps.
func New(uid int, name string) *Empire {
	return &Empire{
		UID:        uid,
		Name:       name,
		Resources:  map[string]float64{ResGold: 0, ResCulture: 0, ResLife: 0},
		Buildings:  make(map[string]float64),
		Knowledge:  make(map[string]float64),
		Citizens:   map[string]int{RoleMerchant: 0, RoleScientist: 0, RoleArtist: 0},
		Effects:    make(map[string]float64),
		Structures: make(map[int]*Structure),
		HexMap:     make(map[string]hexmap.TileType),
		NextSID:    1,
		NextAID:    1,
	}
}

// Lock acquires the empire's mutation lock. Exactly one of the world loop, a
// request handler, or the defending battle simulator may hold it.
func (e *Empire) Lock() { e.mu.Lock() }

// Unlock releases the empire's mutation lock.
func (e *Empire) Unlock() { e.mu.Unlock() }

// Completed returns the set of item ids with zero remaining effort, computed
// from buildings and knowledge only.
func (e *Empire) Completed() map[string]bool {
	done := make(map[string]bool, len(e.Buildings)+len(e.Knowledge))
	for id, rem := range e.Buildings {
		if rem <= 0 {
			done[id] = true
		}
	}
	for id, rem := range e.Knowledge {
		if rem <= 0 {
			done[id] = true
		}
	}
	return done
}

// Army returns the army with the given aid.
func (e *Empire) Army(aid int) (*Army, bool) {
	for _, a := range e.Armies {
		if a.AID == aid {
			return a, true
		}
	}
	return nil, false
}

// SortedStructures returns structures ordered by sid, for deterministic
// iteration.
func (e *Empire) SortedStructures() []*Structure {
	out := make([]*Structure, 0, len(e.Structures))
	for _, s := range e.Structures {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out
}

// TotalCitizens returns the number of assigned citizens across all roles.
func (e *Empire) TotalCitizens() int {
	n := 0
	for _, c := range e.Citizens {
		n += c
	}
	return n
}

// Manager holds every empire by uid.
type Manager struct {
	mu      sync.RWMutex
	empires map[int]*Empire
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{empires: make(map[int]*Empire)}
}

// Add registers an empire. Replaces any existing empire with the same uid.
func (m *Manager) Add(e *Empire) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.empires[e.UID] = e
}

// Get returns the empire for uid.
func (m *Manager) Get(uid int) (*Empire, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.empires[uid]
	return e, ok
}

// All returns every empire sorted by uid.
func (m *Manager) All() []*Empire {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Empire, 0, len(m.empires))
	for _, e := range m.empires {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Len reports the number of registered empires.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.empires)
}
