package attack

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/item"
)

// Tunables for attack timing. Zero values fall back to defaults.
type Tunables struct {
	BaseTravelSeconds float64 `yaml:"base_travel_seconds"`
	BaseSiegeSeconds  float64 `yaml:"base_siege_seconds"`
}

// DefaultTunables mirrors the configured defaults.
func DefaultTunables() Tunables {
	return Tunables{BaseTravelSeconds: 100, BaseSiegeSeconds: 30}
}

// Service owns every active attack and serialises its own mutations. At most
// one attack per defender holds the siege slot; the rest wait at ETA 0.
type Service struct {
	mu sync.Mutex

	attacks map[int]*Attack
	nextID  int

	// defender uid → attack id currently in siege
	siegeSlot map[int]int

	empires *empire.Manager
	bus     *event.Bus
	tun     Tunables
}

// NewService wires the attack engine to the empire manager and event bus.
func NewService(empires *empire.Manager, bus *event.Bus, tun Tunables) *Service {
	def := DefaultTunables()
	if tun.BaseTravelSeconds == 0 {
		tun.BaseTravelSeconds = def.BaseTravelSeconds
	}
	if tun.BaseSiegeSeconds == 0 {
		tun.BaseSiegeSeconds = def.BaseSiegeSeconds
	}
	return &Service{
		attacks:   make(map[int]*Attack),
		siegeSlot: make(map[int]int),
		empires:   empires,
		bus:       bus,
		tun:       tun,
	}
}

// Start launches an attack. Travel time is max(1, base + attacker's travel
// offset effect); negative offsets legally accelerate.
func (s *Service) Start(attackerUID, defenderUID, armyAID int) (*Attack, error) {
	if attackerUID == defenderUID {
		return nil, fmt.Errorf("Invalid target")
	}
	attacker, ok := s.empires.Get(attackerUID)
	if !ok {
		return nil, fmt.Errorf("Empire not found")
	}
	if _, ok := s.empires.Get(defenderUID); !ok {
		return nil, fmt.Errorf("Invalid target")
	}
	attacker.Lock()
	_, hasArmy := attacker.Army(armyAID)
	offset := attacker.Effects[item.EffectTravelTimeOffset]
	attacker.Unlock()
	if !hasArmy {
		return nil, fmt.Errorf("Army not found")
	}

	eta := s.tun.BaseTravelSeconds + offset
	if eta < 1 {
		eta = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a := &Attack{
		ID:          s.nextID,
		AttackerUID: attackerUID,
		DefenderUID: defenderUID,
		ArmyAID:     armyAID,
		Phase:       Travelling,
		ETASeconds:  eta,
		InitialETA:  eta,
	}
	s.attacks[a.ID] = a
	slog.Info("attack launched", "attack", a.ID, "attacker", attackerUID, "defender", defenderUID, "eta", eta)
	return a, nil
}

// StepAll advances every active attack by dt seconds and returns the attacks
// that entered IN_BATTLE and have not yet been handed to the world loop this
// process run.
func (s *Service) StepAll(dt float64) []*Attack {
	s.mu.Lock()
	defer s.mu.Unlock()

	var started []*Attack
	for _, a := range s.sortedLocked() {
		switch a.Phase {
		case Travelling:
			s.stepTravelLocked(a, dt)
		case InSiege:
			s.stepSiegeLocked(a, dt)
		case InBattle:
			// Restart path: an attack rehydrated in IN_BATTLE is returned
			// exactly once so its battle gets rebuilt.
		}
		if a.Phase == InBattle && !a.dispatched {
			a.dispatched = true
			started = append(started, a)
		}
	}
	return started
}

func (s *Service) stepTravelLocked(a *Attack, dt float64) {
	a.ETASeconds -= dt
	if a.ETASeconds > 0 {
		return
	}
	a.ETASeconds = 0
	// The defender's siege slot admits one attack; latecomers wait at ETA 0.
	if holder, taken := s.siegeSlot[a.DefenderUID]; taken && holder != a.ID {
		return
	}
	s.siegeSlot[a.DefenderUID] = a.ID

	siege := s.tun.BaseSiegeSeconds
	if def, ok := s.empires.Get(a.DefenderUID); ok {
		def.Lock()
		siege += def.Effects[item.EffectSiegeTimeOffset]
		def.Unlock()
	}
	if siege < 1 {
		siege = 1
	}
	a.SiegeRemaining = siege
	a.InitialSiege = siege
	s.transitionLocked(a, InSiege)
}

func (s *Service) stepSiegeLocked(a *Attack, dt float64) {
	a.SiegeRemaining -= dt
	if a.SiegeRemaining > 0 {
		return
	}
	a.SiegeRemaining = 0
	delete(s.siegeSlot, a.DefenderUID)
	s.transitionLocked(a, InBattle)
	if s.bus != nil {
		s.bus.Emit(event.BattleStartRequested{
			AttackID:    a.ID,
			AttackerUID: a.AttackerUID,
			DefenderUID: a.DefenderUID,
			ArmyAID:     a.ArmyAID,
		})
	}
}

func (s *Service) transitionLocked(a *Attack, to Phase) {
	from := a.Phase
	a.Phase = to
	slog.Debug("attack phase changed", "attack", a.ID, "from", from, "to", to)
	if s.bus != nil {
		s.bus.Emit(event.AttackPhaseChanged{
			AttackID:    a.ID,
			AttackerUID: a.AttackerUID,
			DefenderUID: a.DefenderUID,
			From:        string(from),
			To:          string(to),
		})
	}
}

// EndSiege lets the defender break the siege: the holding attack's timer is
// forced to zero, so the next step moves it into battle.
func (s *Service) EndSiege(defenderUID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.siegeSlot[defenderUID]
	if !ok {
		return fmt.Errorf("No siege in progress")
	}
	a := s.attacks[id]
	a.SiegeRemaining = 0
	return nil
}

// Finish marks an attack finished after its battle resolves and frees any
// siege bookkeeping still pointing at it.
func (s *Service) Finish(attackID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attacks[attackID]
	if !ok {
		return
	}
	if holder, taken := s.siegeSlot[a.DefenderUID]; taken && holder == a.ID {
		delete(s.siegeSlot, a.DefenderUID)
	}
	s.transitionLocked(a, Finished)
	delete(s.attacks, attackID)
}

// Get returns the attack with the given id.
func (s *Service) Get(id int) (*Attack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attacks[id]
	return a, ok
}

// Incoming returns active attacks targeting the defender, sorted by id.
func (s *Service) Incoming(defenderUID int) []*Attack {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Attack
	for _, a := range s.sortedLocked() {
		if a.DefenderUID == defenderUID {
			out = append(out, a)
		}
	}
	return out
}

// Outgoing returns active attacks launched by the attacker, sorted by id.
func (s *Service) Outgoing(attackerUID int) []*Attack {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Attack
	for _, a := range s.sortedLocked() {
		if a.AttackerUID == attackerUID {
			out = append(out, a)
		}
	}
	return out
}

// Snapshot returns a copy of every active attack for persistence.
func (s *Service) Snapshot() []Attack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attack, 0, len(s.attacks))
	for _, a := range s.sortedLocked() {
		out = append(out, *a)
	}
	return out
}

// Restore rehydrates attacks from a snapshot. Attacks in IN_BATTLE come back
// undispatched so the first post-restore step returns them exactly once.
func (s *Service) Restore(attacks []Attack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range attacks {
		a := attacks[i]
		a.dispatched = false
		s.attacks[a.ID] = &a
		if a.ID > s.nextID {
			s.nextID = a.ID
		}
		if a.Phase == InSiege {
			s.siegeSlot[a.DefenderUID] = a.ID
		}
	}
}

func (s *Service) sortedLocked() []*Attack {
	out := make([]*Attack, 0, len(s.attacks))
	for _, a := range s.attacks {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
