// Package world runs the coarse simulation loop: one step per second across
// every empire and attack, instantiating a battle runtime whenever a siege
// completes.
package world

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpenner/bastion/bastion-core/attack"
	"github.com/jpenner/bastion/bastion-core/battle"
	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/item"
	"github.com/jpenner/bastion/bastion-core/protocol"
)

// Agent is anything stepped once per world tick after the empires advance.
// The AI director implements it.
type Agent interface {
	Step(dt float64)
}

// Tunables for the world loop. Zero values fall back to defaults.
type Tunables struct {
	StepMs float64         `yaml:"step_ms"`
	Battle battle.Tunables `yaml:"battle"`
}

// DefaultTunables mirrors the configured defaults.
func DefaultTunables() Tunables {
	return Tunables{StepMs: 1000, Battle: battle.DefaultTunables()}
}

// World ties the empire engine, attack service, and battle runtimes together
// under one coarse clock.
type World struct {
	Empires *empire.Manager
	Engine  *empire.Engine
	Attacks *attack.Service

	mu      sync.Mutex
	battles map[string]*battle.State
	agents  []Agent

	reg    *item.Registry
	bus    *event.Bus
	sender battle.Sender
	tun    Tunables

	tele telemetry

	cancelBattles context.CancelFunc
	battleCtx     context.Context
	wg            sync.WaitGroup
}

// New assembles a world. sender may be nil when nothing observes battles.
func New(empires *empire.Manager, engine *empire.Engine, attacks *attack.Service,
	reg *item.Registry, bus *event.Bus, sender battle.Sender, tun Tunables) *World {

	if tun.StepMs == 0 {
		tun.StepMs = DefaultTunables().StepMs
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &World{
		Empires:       empires,
		Engine:        engine,
		Attacks:       attacks,
		battles:       make(map[string]*battle.State),
		reg:           reg,
		bus:           bus,
		sender:        sender,
		tun:           tun,
		battleCtx:     ctx,
		cancelBattles: cancel,
	}
}

// AddAgent registers an agent to step each world tick.
func (w *World) AddAgent(a Agent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agents = append(w.agents, a)
}

// Step advances the whole world by dt seconds: empires first, then attacks,
// then battle instantiation for attacks that just left their siege, then
// agents. Exposed so tests drive the world without a clock.
func (w *World) Step(dt float64) {
	start := time.Now()

	for _, e := range w.Empires.All() {
		e.Lock()
		w.Engine.Step(e, dt)
		e.Unlock()
	}

	for _, a := range w.Attacks.StepAll(dt) {
		w.startBattle(a)
	}

	w.mu.Lock()
	agents := make([]Agent, len(w.agents))
	copy(agents, w.agents)
	w.mu.Unlock()
	for _, ag := range agents {
		ag.Step(dt)
	}

	w.tele.record(time.Since(start))
}

// startBattle builds the battle runtime for an attack whose siege completed
// and hands it to its own goroutine.
func (w *World) startBattle(a *attack.Attack) {
	attacker, ok := w.Empires.Get(a.AttackerUID)
	if !ok {
		slog.Error("battle start: attacker missing", "attack", a.ID, "uid", a.AttackerUID)
		w.Attacks.Finish(a.ID)
		return
	}
	defender, ok := w.Empires.Get(a.DefenderUID)
	if !ok {
		slog.Error("battle start: defender missing", "attack", a.ID, "uid", a.DefenderUID)
		w.Attacks.Finish(a.ID)
		return
	}
	attacker.Lock()
	army, hasArmy := attacker.Army(a.ArmyAID)
	if hasArmy {
		army = army.Clone()
	}
	attacker.Unlock()
	if !hasArmy {
		slog.Error("battle start: army missing", "attack", a.ID, "aid", a.ArmyAID)
		w.Attacks.Finish(a.ID)
		return
	}

	b, ok := battle.New(uuid.NewString(), a.ID, army, defender, w.reg, w.bus, w.tun.Battle)
	if !ok {
		// No walkable path means the defender auto-wins the assault.
		slog.Warn("battle start: no path through defender map", "attack", a.ID, "defender", a.DefenderUID)
		w.Attacks.Finish(a.ID)
		return
	}

	w.mu.Lock()
	w.battles[b.BID] = b
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		b.Run(w.battleCtx, w.sender, w.settleBattle)
	}()
}

// settleBattle applies loot and closes out the attack once a battle ends.
// Observers and both sides get a final summary with the settled transfers.
func (w *World) settleBattle(b *battle.State) {
	b.ApplyLoot(w.Empires, w.Engine)
	w.Attacks.Finish(b.AttackID)
	w.mu.Lock()
	delete(w.battles, b.BID)
	w.mu.Unlock()

	if w.sender != nil {
		uids := b.Observers()
		uids = append(uids, b.DefenderUID)
		uids = append(uids, b.AttackerUIDs...)
		w.sender.Broadcast(dedupe(uids), protocol.TypeBattleSummary, protocol.BattleSummary{
			BID:            b.BID,
			DefenderWon:    b.DefenderWon,
			AttackerGains:  b.AttackerGains,
			DefenderLosses: b.DefenderLosses,
		})
	}
}

func dedupe(uids []int) []int {
	seen := make(map[int]bool, len(uids))
	out := uids[:0]
	for _, uid := range uids {
		if !seen[uid] {
			seen[uid] = true
			out = append(out, uid)
		}
	}
	return out
}

// Battle returns the battle with the given id.
func (w *World) Battle(bid string) (*battle.State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.battles[bid]
	return b, ok
}

// BattleForDefender returns the battle (if any) targeting the defender uid.
func (w *World) BattleForDefender(uid int) (*battle.State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, bid := range w.sortedBattleIDsLocked() {
		if w.battles[bid].DefenderUID == uid {
			return w.battles[bid], true
		}
	}
	return nil, false
}

// ActiveBattles reports how many battles are running.
func (w *World) ActiveBattles() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.battles)
}

func (w *World) sortedBattleIDsLocked() []string {
	out := make([]string, 0, len(w.battles))
	for bid := range w.battles {
		out = append(out, bid)
	}
	sort.Strings(out)
	return out
}

// Telemetry reports loop health.
func (w *World) Telemetry() Telemetry {
	return w.tele.snapshot()
}

// Run drives the world at the coarse step rate until ctx is cancelled, then
// stops every battle goroutine and waits for them.
func (w *World) Run(ctx context.Context) {
	step := time.Duration(w.tun.StepMs) * time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	slog.Info("world loop started", "step_ms", w.tun.StepMs, "empires", w.Empires.Len())
	for {
		select {
		case <-ctx.Done():
			slog.Info("world loop stopping")
			w.cancelBattles()
			w.wg.Wait()
			return
		case <-ticker.C:
			w.Step(w.tun.StepMs / 1000)
		}
	}
}
