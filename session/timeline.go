package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/protocol"
)

// defaultTimelineCap bounds the per-player history.
const defaultTimelineCap = 50

// Timeline keeps a bounded per-player history of notable events, fed from the
// bus. Handlers only append under the timeline's own lock, so they are safe
// to run inline on the emitter's goroutine.
type Timeline struct {
	mu      sync.Mutex
	cap     int
	entries map[int][]protocol.TimelineEntry

	now func() time.Time
}

// NewTimeline subscribes a timeline to the bus. capacity <= 0 falls back to
// the default.
func NewTimeline(bus *event.Bus, capacity int) *Timeline {
	if capacity <= 0 {
		capacity = defaultTimelineCap
	}
	t := &Timeline{
		cap:     capacity,
		entries: make(map[int][]protocol.TimelineEntry),
		now:     time.Now,
	}
	if bus != nil {
		bus.Subscribe(event.KindItemCompleted, func(ev event.Event) {
			ic := ev.(event.ItemCompleted)
			t.add(ic.EmpireUID, "item_completed", fmt.Sprintf("completed %s", ic.ItemID))
		})
		bus.Subscribe(event.KindAttackPhaseChanged, func(ev event.Event) {
			pc := ev.(event.AttackPhaseChanged)
			t.add(pc.AttackerUID, "attack", fmt.Sprintf("attack %d on empire %d entered %s", pc.AttackID, pc.DefenderUID, pc.To))
			t.add(pc.DefenderUID, "defense", fmt.Sprintf("attack %d from empire %d entered %s", pc.AttackID, pc.AttackerUID, pc.To))
		})
	}
	return t
}

func (t *Timeline) add(uid int, kind, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := append(t.entries[uid], protocol.TimelineEntry{
		At:   t.now().Unix(),
		Kind: kind,
		Text: text,
	})
	if len(list) > t.cap {
		list = list[len(list)-t.cap:]
	}
	t.entries[uid] = list
}

// For returns a copy of the uid's history, oldest first.
func (t *Timeline) For(uid int) []protocol.TimelineEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.TimelineEntry(nil), t.entries[uid]...)
}
