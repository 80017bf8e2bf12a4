package battle

import (
	"context"
	"log/slog"
	"time"

	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/hexmap"
)

// Sender delivers battle updates to connected observers. Implemented by the
// session hub.
type Sender interface {
	Broadcast(uids []int, msgType string, payload any) int
}

// CritterView is the broadcast shape of one critter.
type CritterView struct {
	CID          int     `json:"cid"`
	ItemID       string  `json:"iid"`
	Health       float64 `json:"health"`
	MaxHealth    float64 `json:"max_health"`
	PathProgress float64 `json:"path_progress"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Scale        float64 `json:"scale"`
	Slowed       bool    `json:"slowed,omitempty"`
	Burning      bool    `json:"burning,omitempty"`
}

// ShotView is the broadcast shape of one shot in flight.
type ShotView struct {
	TargetCID int        `json:"target_cid"`
	SourceSID int        `json:"source_sid"`
	ShotType  string     `json:"shot_type"`
	Progress  float64    `json:"progress"`
	Origin    hexmap.Hex `json:"origin"`
}

// StructureView is the broadcast shape of one tower copy.
type StructureView struct {
	SID      int        `json:"sid"`
	ItemID   string     `json:"iid"`
	Pos      hexmap.Hex `json:"pos"`
	FocusCID int        `json:"focus_cid,omitempty"`
}

// Update is the periodic battle broadcast. Slices are ordered by id, so the
// serialized payload is identical across runs of the same battle.
type Update struct {
	BID         string          `json:"bid"`
	AttackID    int             `json:"attack_id"`
	ElapsedMs   float64         `json:"elapsed_ms"`
	Life        float64         `json:"life"`
	Critters    []CritterView   `json:"critters"`
	Shots       []ShotView      `json:"shots"`
	Structures  []StructureView `json:"structures"`
	Removed     []Removal       `json:"removed,omitempty"`
	KeepAlive   bool            `json:"keep_alive"`
	Finished    bool            `json:"is_finished"`
	DefenderWon bool            `json:"defender_won"`
}

// Snapshot builds the broadcast view of the current state. sinceJournal marks
// how much of the removal journal the receiver has already seen.
func (b *State) Snapshot(sinceJournal int) Update {
	b.Defender.Lock()
	life := b.Defender.Resources[empire.ResLife]
	b.Defender.Unlock()

	u := Update{
		BID:         b.BID,
		AttackID:    b.AttackID,
		ElapsedMs:   b.ElapsedMs,
		Life:        life,
		Critters:    make([]CritterView, 0, len(b.Critters)),
		Shots:       make([]ShotView, 0, len(b.Shots)),
		Structures:  make([]StructureView, 0, len(b.Structures)),
		KeepAlive:   b.KeepAlive,
		Finished:    b.Finished,
		DefenderWon: b.DefenderWon,
	}
	for _, c := range b.SortedCritters() {
		x, y := hexmap.Interpolate(b.Path, c.PathProgress)
		scale := 1.0
		if c.MaxHealth > 0 {
			scale = 0.5 + 0.5*c.Health/c.MaxHealth
		}
		u.Critters = append(u.Critters, CritterView{
			CID:          c.CID,
			ItemID:       c.ItemID,
			Health:       c.Health,
			MaxHealth:    c.MaxHealth,
			PathProgress: c.PathProgress,
			X:            x,
			Y:            y,
			Scale:        scale,
			Slowed:       c.SlowRemainingMs > 0,
			Burning:      c.BurnRemainingMs > 0,
		})
	}
	for _, s := range b.Shots {
		u.Shots = append(u.Shots, ShotView{
			TargetCID: s.TargetCID,
			SourceSID: s.SourceSID,
			ShotType:  string(s.Type),
			Progress:  s.Progress(),
			Origin:    s.Origin,
		})
	}
	for _, s := range b.SortedStructures() {
		u.Structures = append(u.Structures, StructureView{
			SID:      s.SID,
			ItemID:   s.ItemID,
			Pos:      s.Pos,
			FocusCID: s.FocusCID,
		})
	}
	if sinceJournal < len(b.Journal) {
		u.Removed = append(u.Removed, b.Journal[sinceJournal:]...)
	}
	return u
}

// Run drives the battle at the fine tick rate until it finishes or ctx is
// cancelled. dt is fixed at the configured tick length regardless of wall
// drift, so a battle's evolution depends only on its inputs. Broadcasts go
// to the current observer set every broadcast interval.
func (b *State) Run(ctx context.Context, sender Sender, onFinish func(*State)) {
	ticker := time.NewTicker(time.Duration(b.tun.TickMs) * time.Millisecond)
	defer ticker.Stop()

	journalSent := 0
	slog.Info("battle started", "battle", b.BID, "attack", b.AttackID, "defender", b.DefenderUID)
	for {
		select {
		case <-ctx.Done():
			slog.Info("battle aborted", "battle", b.BID)
			return
		case <-ticker.C:
		}

		b.Tick(b.tun.TickMs)

		if b.BroadcastTimerMs <= 0 || b.Finished {
			b.BroadcastTimerMs += b.tun.BroadcastIntervalMs
			if uids := b.Observers(); len(uids) > 0 && sender != nil {
				sender.Broadcast(uids, "battle_update", b.Snapshot(journalSent))
			}
			journalSent = len(b.Journal)
		}

		if b.Finished {
			slog.Info("battle finished", "battle", b.BID, "defender_won", b.DefenderWon, "elapsed_ms", b.ElapsedMs)
			if onFinish != nil {
				onFinish(b)
			}
			return
		}
	}
}
