// Package event provides the in-process publish/subscribe bus that ties the
// simulation loops together. Delivery is synchronous and in registration
// order; a panicking handler is contained so the remaining handlers and the
// emitter keep running.
package event

import (
	"log/slog"
	"sync"
)

// Kind discriminates event payload types.
type Kind string

const (
	KindItemCompleted        Kind = "item_completed"
	KindAttackPhaseChanged   Kind = "attack_phase_changed"
	KindBattleStartRequested Kind = "battle_start_requested"
	KindBattleFinished       Kind = "battle_finished"
	KindCritterDied          Kind = "critter_died"
	KindStructureFired       Kind = "structure_fired"
)

// Event is any payload carrying its kind.
type Event interface {
	EventKind() Kind
}

// ItemCompleted fires when an empire finishes a building or research item.
type ItemCompleted struct {
	EmpireUID int
	ItemID    string
}

func (ItemCompleted) EventKind() Kind { return KindItemCompleted }

// AttackPhaseChanged fires on every attack state-machine transition.
type AttackPhaseChanged struct {
	AttackID    int
	AttackerUID int
	DefenderUID int
	From, To    string
}

func (AttackPhaseChanged) EventKind() Kind { return KindAttackPhaseChanged }

// BattleStartRequested fires when an attack's siege completes and the world
// loop should instantiate a battle.
type BattleStartRequested struct {
	AttackID    int
	AttackerUID int
	DefenderUID int
	ArmyAID     int
}

func (BattleStartRequested) EventKind() Kind { return KindBattleStartRequested }

// BattleFinished fires when a battle simulator reaches its end state.
type BattleFinished struct {
	BattleID    string
	AttackID    int
	DefenderWon bool
}

func (BattleFinished) EventKind() Kind { return KindBattleFinished }

// CritterDied is a fine-grained battle event, emitted only when observed.
type CritterDied struct {
	BattleID string
	CID      int
	ItemID   string
}

func (CritterDied) EventKind() Kind { return KindCritterDied }

// StructureFired is a fine-grained battle event, emitted only when observed.
type StructureFired struct {
	BattleID  string
	SID       int
	TargetCID int
}

func (StructureFired) EventKind() Kind { return KindStructureFired }

// Handler receives an event inline on the emitter's goroutine. Handlers must
// not block.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus routes events to subscribers by kind.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Kind][]subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscription)}
}

// Subscribe registers fn for events of kind k and returns a token for
// Unsubscribe.
func (b *Bus) Subscribe(k Kind, fn Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[k] = append(b.subs[k], subscription{id: b.nextID, fn: fn})
	return b.nextID
}

// Unsubscribe removes the subscription with the given token.
func (b *Bus) Unsubscribe(k Kind, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[k]
	for i, s := range subs {
		if s.id == id {
			b.subs[k] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers e to every handler registered for its kind, in registration
// order, on the caller's goroutine. A failing handler does not stop delivery.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	subs := b.subs[e.EventKind()]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		deliver(s.fn, e)
	}
}

func deliver(fn Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "kind", e.EventKind(), "panic", r)
		}
	}()
	fn(e)
}
