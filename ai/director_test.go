package ai

import (
	"math"
	"testing"

	"github.com/jpenner/bastion/bastion-core/attack"
	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/item"
)

func testRegistry(t *testing.T) *item.Registry {
	t.Helper()
	reg, err := item.NewRegistry([]item.Item{
		{ID: "HARE", Kind: item.KindCritter, Health: 3, Speed: 3, Slots: 10, Cost: map[string]float64{"gold": 20}},
		{ID: "WOLF", Kind: item.KindCritter, Health: 8, Speed: 2, Slots: 8, Cost: map[string]float64{"gold": 40}},
		{ID: "TURTLE", Kind: item.KindCritter, Health: 30, Speed: 0.1, Armor: 2, Slots: 4, Cost: map[string]float64{"gold": 80}},
		{ID: "RAT", Kind: item.KindCritter, Health: 5, Speed: 0.2, Slots: 12, Cost: map[string]float64{"gold": 10}},
		{ID: "POTTERY", Kind: item.KindKnowledge, Effort: 10, Cost: map[string]float64{"gold": 100}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func testDirector(t *testing.T, cfg Config) (*Director, *empire.Manager, *event.Bus) {
	t.Helper()
	reg := testRegistry(t)
	bus := event.NewBus()
	mgr := empire.NewManager()
	mgr.Add(empire.New(100, "overlord"))
	player := empire.New(1, "player")
	mgr.Add(player)
	attacks := attack.NewService(mgr, bus, attack.Tunables{})

	cfg.UID = 100
	d, err := New(cfg, mgr, attacks, reg, bus)
	if err != nil {
		t.Fatal(err)
	}
	return d, mgr, bus
}

// A run of wins steps the multiplier down by the adaptation rate once per
// full window, to the floor and never past it, and never back up while the
// streak lasts.
func TestAdaptationWalksToFloor(t *testing.T) {
	d, _, _ := testDirector(t, Config{})

	want := 1.0
	prev := 1.0
	for i := 1; i <= 120; i++ {
		d.mu.Lock()
		d.pending[i] = true
		d.mu.Unlock()
		d.onBattleFinished(i, false) // defender lost: the director won

		got := d.PowerMultiplier()
		if got > prev+1e-9 {
			t.Fatalf("result %d: multiplier rose from %v to %v during a win streak", i, prev, got)
		}
		prev = got

		if i%10 == 0 { // one step per full window
			want -= 0.08
			if want < 0.2 {
				want = 0.2
			}
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("result %d: multiplier = %v, want %v", i, got, want)
		}
	}
	if d.PowerMultiplier() != 0.2 {
		t.Errorf("final multiplier = %v, want the floor 0.2", d.PowerMultiplier())
	}
}

func TestAdaptationRecoversOnLosses(t *testing.T) {
	d, _, _ := testDirector(t, Config{})
	id := 0
	feed := func(won bool, n int) {
		for i := 0; i < n; i++ {
			id++
			d.mu.Lock()
			d.pending[id] = true
			d.mu.Unlock()
			d.onBattleFinished(id, !won)
		}
	}

	feed(true, 20) // two full win windows: 1.0 - 2*0.08 = 0.84
	low := d.PowerMultiplier()
	if math.Abs(low-0.84) > 1e-9 {
		t.Fatalf("multiplier after 20 wins = %v, want 0.84", low)
	}
	feed(false, 20) // two all-loss windows push it back up
	if d.PowerMultiplier() <= low {
		t.Errorf("multiplier did not recover: %v -> %v", low, d.PowerMultiplier())
	}
}

func TestForeignBattlesIgnored(t *testing.T) {
	d, _, bus := testDirector(t, Config{Window: 1})
	for i := 0; i < 5; i++ {
		bus.Emit(event.BattleFinished{BattleID: "x", AttackID: 999 + i, DefenderWon: false})
	}
	if d.PowerMultiplier() != 1.0 {
		t.Errorf("multiplier moved on battles the director never launched: %v", d.PowerMultiplier())
	}
}

// Synthesis spreads the wave count over the pools and sizes each wave from
// the pool's budget share against the pick's health, clamped to the slot
// bounds and the catalogue limit.
func TestSynthesizeArmy(t *testing.T) {
	d, mgr, _ := testDirector(t, Config{SpeedBias: 0.5, ArmorBias: 0.25})
	player, _ := mgr.Get(1)

	waves := d.synthesize(player, 1600)
	if len(waves) != 3 {
		t.Fatalf("waves = %d, want one per pool", len(waves))
	}

	byCritter := map[string]int{}
	for _, w := range waves {
		byCritter[w.CritterID] = w.Slots
		it, _ := d.reg.Get(w.CritterID)
		if it.Slots > 0 && w.Slots > it.Slots {
			t.Errorf("wave of %s has %d slots, catalogue limit %d", w.CritterID, w.Slots, it.Slots)
		}
	}
	// Fast pool: WOLF beats HARE on health; ceil(0.5×1600/8)=100, capped to
	// the catalogue limit of 8.
	if byCritter["WOLF"] != 8 {
		t.Errorf("fast wave slots = %d, want 8", byCritter["WOLF"])
	}
	// Armored pool: ceil(0.25×1600/30)=14, max_slots 12, catalogue limit 4.
	if byCritter["TURTLE"] != 4 {
		t.Errorf("armored wave slots = %d, want 4", byCritter["TURTLE"])
	}
	// Plain pool: ceil(0.25×1600/5)=80, clamped to max_slots 12.
	if byCritter["RAT"] != 12 {
		t.Errorf("plain wave slots = %d, want 12", byCritter["RAT"])
	}
}

// Raids field only critters the defender could itself build; an empire with
// nothing unlocked faces the whole catalogue.
func TestSynthesizeUsesDefenderAvailable(t *testing.T) {
	reg, err := item.NewRegistry([]item.Item{
		{ID: "KENNEL", Kind: item.KindBuilding, Effort: 10},
		{ID: "WOLF", Kind: item.KindCritter, Health: 8, Speed: 2, Slots: 8, Requires: []string{"KENNEL"}},
		{ID: "RAT", Kind: item.KindCritter, Health: 5, Speed: 0.2, Slots: 12},
	})
	if err != nil {
		t.Fatal(err)
	}
	mgr := empire.NewManager()
	mgr.Add(empire.New(100, "overlord"))
	player := empire.New(1, "player")
	mgr.Add(player)
	d, err := New(Config{UID: 100}, mgr, attack.NewService(mgr, nil, attack.Tunables{}), reg, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, w := range d.synthesize(player, 500) {
		if w.CritterID == "WOLF" {
			t.Error("raid fields WOLF before the defender unlocks the kennel")
		}
	}

	player.Lock()
	player.Buildings["KENNEL"] = 0
	player.Unlock()
	found := false
	for _, w := range d.synthesize(player, 500) {
		if w.CritterID == "WOLF" {
			found = true
		}
	}
	if !found {
		t.Error("raid ignores the newly unlocked WOLF")
	}

	// Everything gated: the whole catalogue is the fallback.
	gated, err := item.NewRegistry([]item.Item{
		{ID: "KENNEL", Kind: item.KindBuilding, Effort: 10},
		{ID: "WOLF", Kind: item.KindCritter, Health: 8, Speed: 2, Slots: 8, Requires: []string{"KENNEL"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	fresh := empire.New(2, "fresh")
	mgr.Add(fresh)
	d2, err := New(Config{UID: 100}, mgr, attack.NewService(mgr, nil, attack.Tunables{}), gated, nil)
	if err != nil {
		t.Fatal(err)
	}
	if waves := d2.synthesize(fresh, 500); len(waves) == 0 {
		t.Error("no fallback army when the defender has nothing unlocked")
	}
}

func TestScoreFloor(t *testing.T) {
	d, mgr, _ := testDirector(t, Config{})
	fresh, _ := mgr.Get(1)
	if got := d.Score(fresh); got != 500 {
		t.Errorf("fresh empire score = %v, want the 500 floor", got)
	}
}

// Score sums completed effort per category, culture, and a flat weight per
// structure. In-progress items contribute nothing.
func TestScoreWeighsDevelopment(t *testing.T) {
	d, mgr, _ := testDirector(t, Config{})
	player, _ := mgr.Get(1)
	player.Lock()
	player.Knowledge["POTTERY"] = 0 // completed, effort 10
	player.Resources[empire.ResCulture] = 700
	player.Structures[1] = &empire.Structure{SID: 1}
	player.Unlock()

	if got := d.Score(player); got != 10+700+1000 {
		t.Errorf("score = %v, want 1710", got)
	}

	player.Lock()
	player.Knowledge["POTTERY"] = 4 // back in progress
	player.Unlock()
	if got := d.Score(player); got != 700+1000 {
		t.Errorf("score with in-progress research = %v, want 1700", got)
	}
}

func TestScriptedWavePolicy(t *testing.T) {
	waves := []ScriptedWave{
		{Name: "early", When: `Citizens() >= 1`, Waves: []WaveSpec{{CritterID: "RAT", Slots: 4}}},
		{Name: "late", When: `Citizens() >= 1 && Completed("POTTERY")`, Waves: []WaveSpec{{CritterID: "WOLF", Slots: 4}}},
	}

	d, mgr, _ := testDirector(t, Config{ScriptedWaves: waves, WavePolicy: PolicyLastMatch})
	player, _ := mgr.Get(1)
	player.Lock()
	player.CitizenCount = 2
	player.Knowledge["POTTERY"] = 0
	player.Unlock()

	got := d.composeArmy(player, 1000)
	if len(got) != 1 || got[0].CritterID != "WOLF" {
		t.Fatalf("last_match picked %v, want the WOLF raid", got)
	}

	d2, _, _ := testDirector(t, Config{ScriptedWaves: waves, WavePolicy: PolicyFirstMatch})
	got = d2.composeArmy(player, 1000)
	if len(got) != 1 || got[0].CritterID != "RAT" {
		t.Fatalf("first_match picked %v, want the RAT raid", got)
	}
}

func TestScriptedFallbackToSynthesis(t *testing.T) {
	waves := []ScriptedWave{
		{Name: "never", When: `Citizens() >= 99`, Waves: []WaveSpec{{CritterID: "RAT", Slots: 4}}},
	}
	d, mgr, _ := testDirector(t, Config{ScriptedWaves: waves})
	player, _ := mgr.Get(1)
	if got := d.composeArmy(player, 1000); len(got) == 0 {
		t.Error("no fallback synthesis when no trigger matches")
	}
}

// Completing an item re-evaluates the scripted triggers against that empire
// on the next step, outside the regular attack cadence.
func TestScriptedTriggerRaid(t *testing.T) {
	waves := []ScriptedWave{
		{Name: "punish", When: `Completed("POTTERY")`, Waves: []WaveSpec{{CritterID: "RAT", Slots: 4}}},
	}
	d, mgr, bus := testDirector(t, Config{ScriptedWaves: waves, AttackIntervalSeconds: 9999})
	player, _ := mgr.Get(1)
	player.Lock()
	player.Knowledge["POTTERY"] = 0
	player.Unlock()

	self, _ := mgr.Get(100)
	armies := func() int {
		self.Lock()
		defer self.Unlock()
		return len(self.Armies)
	}

	bus.Emit(event.ItemCompleted{EmpireUID: player.UID, ItemID: "POTTERY"})
	if armies() != 0 {
		t.Fatal("raid launched before the next step")
	}
	d.Step(1)
	if armies() != 1 {
		t.Fatalf("armies after trigger step = %d, want 1", armies())
	}
	d.mu.Lock()
	pending := len(d.pending)
	d.mu.Unlock()
	if pending != 1 {
		t.Errorf("pending raids = %d, want 1", pending)
	}

	// The director's own completions never trigger a raid, and a drained
	// queue stays drained.
	bus.Emit(event.ItemCompleted{EmpireUID: 100, ItemID: "POTTERY"})
	d.Step(1)
	d.Step(1)
	if armies() != 1 {
		t.Errorf("armies after non-player completions = %d, want 1", armies())
	}
}

func TestBadTriggerRejected(t *testing.T) {
	reg := testRegistry(t)
	mgr := empire.NewManager()
	attacks := attack.NewService(mgr, nil, attack.Tunables{})
	_, err := New(Config{UID: 100, ScriptedWaves: []ScriptedWave{
		{Name: "broken", When: `Citizens( >=`},
	}}, mgr, attacks, reg, nil)
	if err == nil {
		t.Error("malformed trigger expression accepted")
	}
}

func TestLaunchRaidRegistersPending(t *testing.T) {
	d, mgr, _ := testDirector(t, Config{AttackIntervalSeconds: 10})
	player, _ := mgr.Get(1)
	player.Lock()
	player.CitizenCount = 4
	player.Unlock()

	for i := 0; i < 9; i++ {
		d.Step(1)
	}
	self, _ := mgr.Get(100)
	self.Lock()
	armies := len(self.Armies)
	self.Unlock()
	if armies != 0 {
		t.Fatal("raid launched before the interval elapsed")
	}

	d.Step(1)
	self.Lock()
	armies = len(self.Armies)
	self.Unlock()
	if armies != 1 {
		t.Fatalf("armies after interval = %d, want 1", armies)
	}
	d.mu.Lock()
	pending := len(d.pending)
	d.mu.Unlock()
	if pending != 1 {
		t.Errorf("pending raids = %d, want 1", pending)
	}
}
