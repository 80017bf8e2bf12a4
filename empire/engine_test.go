package empire

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/hexmap"
	"github.com/jpenner/bastion/bastion-core/item"
)

func testRegistry(t *testing.T) *item.Registry {
	t.Helper()
	reg, err := item.NewRegistry([]item.Item{
		{ID: "INIT", Kind: item.KindBuilding, Effort: 0},
		{ID: "FIRE_PLACE", Kind: item.KindBuilding, Effort: 20,
			Requires: []string{"INIT"},
			Cost:     map[string]float64{"gold": 20},
			Effects:  map[string]float64{item.EffectGoldOffset: 0.5}},
		{ID: "POTTERY", Kind: item.KindKnowledge, Effort: 10,
			Requires: []string{"FIRE_PLACE"},
			Cost:     map[string]float64{"culture": 10}},
		{ID: "FREE_SHRINE", Kind: item.KindBuilding, Effort: 0,
			Requires: []string{"INIT"},
			Effects:  map[string]float64{item.EffectCultureOffset: 0.25}},
		{ID: "ARROW_TOWER", Kind: item.KindStructure, Damage: 1, Range: 2,
			ReloadMs: 100, ShotSpeed: 80, ShotType: item.ShotNormal,
			Requires: []string{"INIT"},
			Cost:     map[string]float64{"gold": 50}},
		{ID: "RAT", Kind: item.KindCritter, Health: 5, Speed: 1.5, Slots: 3,
			Requires: []string{"INIT"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func testEmpire() *Empire {
	e := New(1, "testers")
	e.Resources[ResGold] = 500
	e.Resources[ResCulture] = 200
	e.Buildings["INIT"] = 0
	return e
}

// S1: build, progress over 21 ticks, complete at tick 20 with one event.
func TestBuildAndComplete(t *testing.T) {
	bus := event.NewBus()
	completions := 0
	var completedID string
	bus.Subscribe(event.KindItemCompleted, func(ev event.Event) {
		completions++
		completedID = ev.(event.ItemCompleted).ItemID
	})
	g := NewEngine(testRegistry(t), bus, Tunables{})
	e := testEmpire()
	e.Citizens[RoleMerchant] = 0

	if err := g.BuildItem(e, "FIRE_PLACE"); err != nil {
		t.Fatal(err)
	}
	if e.Resources[ResGold] != 480 {
		t.Errorf("gold after build = %v, want 480", e.Resources[ResGold])
	}
	if e.Buildings["FIRE_PLACE"] != 20 {
		t.Errorf("remaining = %v, want 20", e.Buildings["FIRE_PLACE"])
	}
	if e.BuildQueue != "FIRE_PLACE" {
		t.Errorf("build queue = %q, want FIRE_PLACE", e.BuildQueue)
	}

	for i := 0; i < 21; i++ {
		// Effects must not apply while the building is in progress.
		if i < 20 && e.Effects[item.EffectGoldOffset] != 0 {
			t.Fatalf("tick %d: uncompleted building contributed effects", i)
		}
		g.Step(e, 1)
	}
	if e.Buildings["FIRE_PLACE"] != 0 {
		t.Errorf("remaining after 21 ticks = %v, want 0", e.Buildings["FIRE_PLACE"])
	}
	if e.BuildQueue != "" {
		t.Errorf("build queue = %q, want empty", e.BuildQueue)
	}
	if completions != 1 || completedID != "FIRE_PLACE" {
		t.Errorf("completions = %d (%q), want exactly one FIRE_PLACE", completions, completedID)
	}
	if e.Effects[item.EffectGoldOffset] != 0.5 {
		t.Errorf("completed building effect missing: %v", e.Effects)
	}
}

// S2: requirements rejection leaves the empire byte-equal.
func TestBuildRequirementsRejected(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := New(1, "fresh")
	e.Resources[ResGold] = 500

	err := g.BuildItem(e, "FIRE_PLACE")
	if err == nil || !strings.Contains(err.Error(), "Requirements not met") {
		t.Fatalf("err = %v, want requirements error", err)
	}
	if e.Resources[ResGold] != 500 {
		t.Errorf("gold changed on rejected build: %v", e.Resources[ResGold])
	}
	if len(e.Buildings) != 0 || e.BuildQueue != "" {
		t.Errorf("buildings mutated on rejected build: %v / %q", e.Buildings, e.BuildQueue)
	}
}

func TestBuildRejectionIsIdempotent(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	e.Resources[ResGold] = 5 // cannot afford FIRE_PLACE

	before := snapshotEmpire(e)
	err := g.BuildItem(e, "FIRE_PLACE")
	if err == nil || !strings.Contains(err.Error(), "Not enough gold") {
		t.Fatalf("err = %v, want gold error", err)
	}
	after := snapshotEmpire(e)
	if before != after {
		t.Errorf("rejected build mutated state:\n before %v\n after  %v", before, after)
	}
}

func snapshotEmpire(e *Empire) string {
	return fmt.Sprintf("%q|%q|%v|%v|%d|%d",
		e.BuildQueue, e.ResearchQueue,
		e.Resources[ResGold], e.Resources[ResCulture],
		len(e.Buildings), len(e.Knowledge))
}

// Resource generation formula round-trips within 1e-4.
func TestResourceGenerationFormula(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	e.CitizenCount = 3
	e.Citizens[RoleMerchant] = 3
	e.Effects[item.EffectGoldOffset] = 0.5
	e.Effects[item.EffectGoldModifier] = 0.2

	goldBefore := e.Resources[ResGold]
	g.Step(e, 1)

	want := (1.0 + 0.5) * (1 + 3*0.1 + 0.2)
	got := e.Resources[ResGold] - goldBefore
	if math.Abs(got-want) > 1e-4 {
		t.Errorf("gold delta = %v, want %v", got, want)
	}
}

func TestCultureGenerationFormula(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	e.CitizenCount = 2
	e.Citizens[RoleArtist] = 2

	before := e.Resources[ResCulture]
	g.Step(e, 2)

	want := 0.5 * (1 + 2*0.1) * 2
	got := e.Resources[ResCulture] - before
	if math.Abs(got-want) > 1e-4 {
		t.Errorf("culture delta = %v, want %v", got, want)
	}
}

func TestZeroEffortItemSkipsQueue(t *testing.T) {
	bus := event.NewBus()
	completions := 0
	bus.Subscribe(event.KindItemCompleted, func(event.Event) { completions++ })
	g := NewEngine(testRegistry(t), bus, Tunables{})
	e := testEmpire()

	if err := g.BuildItem(e, "FREE_SHRINE"); err != nil {
		t.Fatal(err)
	}
	if e.BuildQueue != "" {
		t.Errorf("zero-effort item set queue to %q", e.BuildQueue)
	}
	if e.Buildings["FREE_SHRINE"] != 0 {
		t.Errorf("zero-effort item remaining = %v", e.Buildings["FREE_SHRINE"])
	}
	if completions != 1 {
		t.Errorf("completions = %d, want 1", completions)
	}
	if e.Effects[item.EffectCultureOffset] != 0.25 {
		t.Errorf("effects not applied immediately: %v", e.Effects)
	}
}

func TestQueueBusyRejected(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	if err := g.BuildItem(e, "FIRE_PLACE"); err != nil {
		t.Fatal(err)
	}
	err := g.BuildItem(e, "FIRE_PLACE")
	if err == nil {
		t.Fatal("duplicate build accepted")
	}
}

func TestResearchUsesScientists(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	e.Buildings["FIRE_PLACE"] = 0
	e.CitizenCount = 5
	e.Citizens[RoleScientist] = 5

	if err := g.BuildItem(e, "POTTERY"); err != nil {
		t.Fatal(err)
	}
	if e.ResearchQueue != "POTTERY" {
		t.Fatalf("research queue = %q", e.ResearchQueue)
	}
	g.Step(e, 1)
	// 10 effort - 1*(1 + 5*0.1) = 8.5 remaining.
	if math.Abs(e.Knowledge["POTTERY"]-8.5) > 1e-9 {
		t.Errorf("remaining = %v, want 8.5", e.Knowledge["POTTERY"])
	}
}

func TestEffectsOnlyFromCompleted(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	if err := g.BuildItem(e, "FIRE_PLACE"); err != nil {
		t.Fatal(err)
	}
	g.RecalculateEffects(e)
	if e.Effects[item.EffectGoldOffset] != 0 {
		t.Error("in-progress building contributed to effects")
	}
	e.Buildings["FIRE_PLACE"] = 0
	g.RecalculateEffects(e)
	if e.Effects[item.EffectGoldOffset] != 0.5 {
		t.Errorf("completed building effect = %v, want 0.5", e.Effects[item.EffectGoldOffset])
	}
}

func TestPlaceStructure(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	e.HexMap[hexmap.Hex{Q: 2, R: 0}.Key()] = hexmap.TileBuildable

	s, err := g.PlaceStructure(e, "ARROW_TOWER", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.Resources[ResGold] != 450 {
		t.Errorf("gold = %v, want 450", e.Resources[ResGold])
	}
	if s.Damage != 1 || s.Range != 2 || s.ReloadMs != 100 {
		t.Errorf("stats not copied: %+v", s)
	}

	// Same hex again must fail.
	if _, err := g.PlaceStructure(e, "ARROW_TOWER", 2, 0); err == nil {
		t.Error("overlapping placement accepted")
	}
	// Unowned hex must fail.
	if _, err := g.PlaceStructure(e, "ARROW_TOWER", 9, 9); err == nil {
		t.Error("placement on unowned hex accepted")
	}
}

func TestUpgradeStructure(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	e.HexMap[hexmap.Hex{Q: 2, R: 0}.Key()] = hexmap.TileBuildable
	s, err := g.PlaceStructure(e, "ARROW_TOWER", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Level != 1 {
		t.Fatalf("placed level = %d, want 1", s.Level)
	}

	// Level 1 → 2 costs the item price once.
	goldBefore := e.Resources[ResGold]
	if err := g.UpgradeStructure(e, s.SID); err != nil {
		t.Fatal(err)
	}
	if e.Resources[ResGold] != goldBefore-50 {
		t.Errorf("first upgrade cost %v, want 50", goldBefore-e.Resources[ResGold])
	}
	if s.Level != 2 || s.Damage != 1.25 {
		t.Errorf("after upgrade: level %d damage %v, want 2 / 1.25", s.Level, s.Damage)
	}

	// Level 2 → 3 costs twice the item price.
	goldBefore = e.Resources[ResGold]
	if err := g.UpgradeStructure(e, s.SID); err != nil {
		t.Fatal(err)
	}
	if e.Resources[ResGold] != goldBefore-100 {
		t.Errorf("second upgrade cost %v, want 100", goldBefore-e.Resources[ResGold])
	}

	e.Resources[ResGold] = 0
	if err := g.UpgradeStructure(e, s.SID); err == nil || !strings.Contains(err.Error(), "Not enough gold") {
		t.Errorf("broke upgrade err = %v, want gold rejection", err)
	}
	if s.Level != 3 {
		t.Errorf("rejected upgrade changed level: %d", s.Level)
	}
	if err := g.UpgradeStructure(e, 99); err == nil {
		t.Error("unknown sid accepted")
	}
}

func TestRenameArmy(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	a := g.NewArmy(e, "host")

	if err := g.RenameArmy(e, a.AID, "vanguard"); err != nil {
		t.Fatal(err)
	}
	if a.Name != "vanguard" {
		t.Errorf("name = %q, want vanguard", a.Name)
	}
	if err := g.RenameArmy(e, a.AID, ""); err == nil {
		t.Error("empty name accepted")
	}
	if err := g.RenameArmy(e, 99, "ghosts"); err == nil {
		t.Error("unknown aid accepted")
	}
}

func TestRemoveStructureRefunds(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	e.HexMap[hexmap.Hex{Q: 2, R: 0}.Key()] = hexmap.TileBuildable
	s, err := g.PlaceStructure(e, "ARROW_TOWER", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	goldBefore := e.Resources[ResGold]
	if err := g.RemoveStructure(e, s.SID); err != nil {
		t.Fatal(err)
	}
	if e.Resources[ResGold] != goldBefore+25 {
		t.Errorf("refund wrong: %v", e.Resources[ResGold]-goldBefore)
	}
	if len(e.Structures) != 0 {
		t.Error("structure not removed")
	}
}

func TestAssignCitizensBounded(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{})
	e := testEmpire()
	e.CitizenCount = 3

	if err := g.AssignCitizens(e, map[string]int{RoleMerchant: 2, RoleArtist: 1}); err != nil {
		t.Fatal(err)
	}
	if e.Citizens[RoleMerchant] != 2 || e.Citizens[RoleArtist] != 1 {
		t.Errorf("citizens = %v", e.Citizens)
	}
	if err := g.AssignCitizens(e, map[string]int{RoleMerchant: 4}); err == nil {
		t.Error("over-assignment accepted")
	}
}

func TestLifeClampedToMaxLife(t *testing.T) {
	g := NewEngine(testRegistry(t), event.NewBus(), Tunables{BaseMaxLife: 10})
	e := testEmpire()
	g.RecalculateEffects(e)
	e.Resources[ResLife] = 50
	g.Step(e, 1)
	if e.Resources[ResLife] != 10 {
		t.Errorf("life = %v, want clamped to 10", e.Resources[ResLife])
	}
}
