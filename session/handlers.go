package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jpenner/bastion/bastion-core/attack"
	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/hexmap"
	"github.com/jpenner/bastion/bastion-core/protocol"
	"github.com/jpenner/bastion/bastion-core/store"
	"github.com/jpenner/bastion/bastion-core/world"
)

// Username/password bounds enforced at signup.
const (
	minUsernameLen = 3
	maxUsernameLen = 24
	minPasswordLen = 6
)

// Scorer ranks empires for userinfo and the hall of fame; the AI director's
// development score is wired in at startup.
type Scorer interface {
	Score(e *empire.Empire) float64
}

// Notifier pushes server-initiated messages to connected players. *Hub
// implements it.
type Notifier interface {
	Send(uid int, msgType string, payload any) bool
}

// Game bundles everything the message handlers operate on.
type Game struct {
	Empires *empire.Manager
	Engine  *empire.Engine
	Attacks *attack.Service
	World   *world.World
	Store   *store.Store

	// Timeline, Scorer, and Notifier back the social/info surface. Each is
	// optional; the handlers degrade when unset.
	Timeline *Timeline
	Scorer   Scorer
	Notifier Notifier

	// BaseMap is copied into every new empire.
	BaseMap map[string]hexmap.TileType
}

// hallOfFameLimit caps the ranking length.
const hallOfFameLimit = 10

func (g *Game) score(e *empire.Empire) float64 {
	if g.Scorer != nil {
		return g.Scorer.Score(e)
	}
	e.Lock()
	defer e.Unlock()
	return e.Resources[empire.ResCulture]
}

// Router builds the full message surface over the game services.
func (g *Game) Router() *Router {
	r := NewRouter()
	g.Register(r)
	return r
}

// Register installs every game handler on an existing router.
func (g *Game) Register(r *Router) {
	r.Register(protocol.TypeAuthRequest, g.handleAuth)
	r.Register(protocol.TypeSignup, g.handleSignup)
	r.Register(protocol.TypeSummaryRequest, authed(g, g.handleSummary))
	r.Register(protocol.TypeItemRequest, authed(g, g.handleItems))
	r.Register(protocol.TypeNewItem, authed(g, g.handleNewItem))
	r.Register(protocol.TypeNewStructure, authed(g, g.handleNewStructure))
	r.Register(protocol.TypeDeleteStructure, authed(g, g.handleDeleteStructure))
	r.Register(protocol.TypeUpgradeStructure, authed(g, g.handleUpgradeStructure))
	r.Register(protocol.TypeCitizenUpgrade, authed(g, g.handleCitizenUpgrade))
	r.Register(protocol.TypeChangeCitizen, authed(g, g.handleChangeCitizen))
	r.Register(protocol.TypeIncreaseLife, authed(g, g.handleIncreaseLife))
	r.Register(protocol.TypeMilitaryRequest, authed(g, g.handleMilitary))
	r.Register(protocol.TypeNewArmy, authed(g, g.handleNewArmy))
	r.Register(protocol.TypeChangeArmy, authed(g, g.handleChangeArmy))
	r.Register(protocol.TypeNewWave, authed(g, g.handleNewWave))
	r.Register(protocol.TypeChangeWave, authed(g, g.handleChangeWave))
	r.Register(protocol.TypeNewAttackRequest, authed(g, g.handleNewAttack))
	r.Register(protocol.TypeEndSiege, authed(g, g.handleEndSiege))
	r.Register(protocol.TypeBattleRegister, authed(g, g.handleBattleRegister))
	r.Register(protocol.TypeBattleUnregister, authed(g, g.handleBattleUnregister))
	r.Register(protocol.TypeUserMessage, authed(g, g.handleUserMessage))
	r.Register(protocol.TypeTimelineRequest, authed(g, g.handleTimeline))
	r.Register(protocol.TypeUserinfoRequest, authed(g, g.handleUserinfo))
	r.Register(protocol.TypeHallOfFameRequest, authed(g, g.handleHallOfFame))
	r.Register(protocol.TypePreferencesRequest, authed(g, g.handlePreferences))
	r.Register(protocol.TypeChangePreferences, authed(g, g.handleChangePreferences))
}

type empireHandler func(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error)

// authed resolves the session's empire before running h.
func authed(g *Game, h empireHandler) Handler {
	return func(s *Session, env protocol.Envelope) (*protocol.Envelope, error) {
		if s.UID == 0 {
			return nil, fmt.Errorf("not authenticated")
		}
		e, ok := g.Empires.Get(s.UID)
		if !ok {
			return nil, fmt.Errorf("Empire not found")
		}
		return h(s, e, env)
	}
}

func reply(env protocol.Envelope, msgType string, payload any) (*protocol.Envelope, error) {
	out, err := protocol.NewEnvelope(msgType, env.RequestID, payload)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Game) handleAuth(s *Session, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.AuthRequest
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	uid, err := g.Store.Authenticate(req.Username, req.Password)
	if err != nil {
		return reply(env, protocol.TypeAuthResponse, protocol.AuthResponse{Success: false, Reason: "invalid credentials"})
	}
	if _, ok := g.Empires.Get(uid); !ok {
		return reply(env, protocol.TypeAuthResponse, protocol.AuthResponse{Success: false, Reason: "Empire not found"})
	}
	s.Bind(uid)
	return reply(env, protocol.TypeAuthResponse, protocol.AuthResponse{Success: true, UID: uid})
}

func (g *Game) handleSignup(s *Session, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.Signup
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	if len(req.Username) < minUsernameLen || len(req.Username) > maxUsernameLen {
		return reply(env, protocol.TypeSignupResponse, protocol.SignupResponse{Success: false, Reason: "invalid username length"})
	}
	if len(req.Password) < minPasswordLen {
		return reply(env, protocol.TypeSignupResponse, protocol.SignupResponse{Success: false, Reason: "password too short"})
	}
	name := req.EmpireName
	if name == "" {
		name = req.Username
	}

	uid, err := g.Store.CreateUser(req.Username, req.Password, req.Email, name)
	if err != nil {
		return reply(env, protocol.TypeSignupResponse, protocol.SignupResponse{Success: false, Reason: err.Error()})
	}

	e := empire.New(uid, name)
	for k, v := range g.BaseMap {
		e.HexMap[k] = v
	}
	g.Engine.RecalculateEffects(e)
	e.Resources[empire.ResLife] = e.MaxLife
	g.Empires.Add(e)

	s.Bind(uid)
	return reply(env, protocol.TypeSignupResponse, protocol.SignupResponse{Success: true, UID: uid})
}

func (g *Game) handleSummary(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	e.Lock()
	resp := protocol.SummaryResponse{
		Resources: copyFloats(e.Resources),
		Citizens:  copyInts(e.Citizens),
		Artefacts: append([]string(nil), e.Artefacts...),
		Effects:   copyFloats(e.Effects),
		MaxLife:   e.MaxLife,
	}
	e.Unlock()
	return reply(env, protocol.TypeSummaryResponse, resp)
}

func (g *Game) handleItems(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	e.Lock()
	resp := protocol.ItemResponse{
		Buildings: copyFloats(e.Buildings),
		Knowledge: copyFloats(e.Knowledge),
	}
	e.Unlock()
	return reply(env, protocol.TypeItemResponse, resp)
}

func (g *Game) handleNewItem(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.NewItem
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	err := g.Engine.BuildItem(e, req.IID)
	resp := protocol.BuildResponse{
		Success:       err == nil,
		IID:           req.IID,
		BuildQueue:    e.BuildQueue,
		ResearchQueue: e.ResearchQueue,
	}
	e.Unlock()
	if err != nil {
		resp.Error = err.Error()
	}
	return reply(env, protocol.TypeBuildResponse, resp)
}

func (g *Game) handleNewStructure(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.NewStructure
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	_, err := g.Engine.PlaceStructure(e, req.IID, req.HexQ, req.HexR)
	e.Unlock()
	return opReply(env, err)
}

func (g *Game) handleDeleteStructure(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.DeleteStructure
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	err := g.Engine.RemoveStructure(e, req.SID)
	e.Unlock()
	return opReply(env, err)
}

func (g *Game) handleUpgradeStructure(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.UpgradeStructure
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	err := g.Engine.UpgradeStructure(e, req.SID)
	e.Unlock()
	return opReply(env, err)
}

func (g *Game) handleCitizenUpgrade(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	e.Lock()
	err := g.Engine.UpgradeCitizen(e)
	resp := protocol.CitizenResponse{Success: err == nil, Citizens: copyInts(e.Citizens)}
	e.Unlock()
	if err != nil {
		resp.Error = err.Error()
	}
	return reply(env, protocol.TypeAck, resp)
}

func (g *Game) handleChangeCitizen(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.ChangeCitizen
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	err := g.Engine.AssignCitizens(e, req.Citizens)
	resp := protocol.CitizenResponse{Success: err == nil, Citizens: copyInts(e.Citizens)}
	e.Unlock()
	if err != nil {
		resp.Error = err.Error()
	}
	return reply(env, protocol.TypeAck, resp)
}

func (g *Game) handleIncreaseLife(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	e.Lock()
	err := g.Engine.IncreaseLife(e)
	e.Unlock()
	return opReply(env, err)
}

func (g *Game) handleMilitary(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	e.Lock()
	var resp protocol.MilitaryResponse
	for _, it := range g.Engine.Registry().AvailableCritters(e.Completed()) {
		resp.AvailableCritters = append(resp.AvailableCritters, it.ID)
	}
	for _, a := range e.Armies {
		av := protocol.ArmyView{AID: a.AID, Name: a.Name}
		for _, w := range a.Waves {
			av.Waves = append(av.Waves, protocol.WaveView{WaveID: w.WaveID, CritterID: w.CritterID, Slots: w.Slots})
		}
		resp.Armies = append(resp.Armies, av)
	}
	e.Unlock()

	resp.AttacksIncoming = attackViews(g.Attacks.Incoming(s.UID))
	resp.AttacksOutgoing = attackViews(g.Attacks.Outgoing(s.UID))
	return reply(env, protocol.TypeMilitaryResponse, resp)
}

func attackViews(attacks []*attack.Attack) []protocol.AttackView {
	out := make([]protocol.AttackView, 0, len(attacks))
	for _, a := range attacks {
		progress := a.TravelProgress()
		if a.Phase == attack.InSiege {
			progress = a.SiegeProgress()
		}
		out = append(out, protocol.AttackView{
			AttackID:    a.ID,
			AttackerUID: a.AttackerUID,
			DefenderUID: a.DefenderUID,
			Phase:       string(a.Phase),
			Progress:    progress,
		})
	}
	return out
}

func (g *Game) handleNewArmy(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.NewArmy
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	g.Engine.NewArmy(e, req.Name)
	e.Unlock()
	return opReply(env, nil)
}

func (g *Game) handleChangeArmy(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.ChangeArmy
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	err := g.Engine.RenameArmy(e, req.AID, req.Name)
	e.Unlock()
	return opReply(env, err)
}

func (g *Game) handleNewWave(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.NewWave
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	_, err := g.Engine.AddWave(e, req.AID, req.CritterIID, req.Slots)
	e.Unlock()
	return opReply(env, err)
}

func (g *Game) handleChangeWave(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.ChangeWave
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	e.Lock()
	err := g.Engine.ChangeWave(e, req.AID, req.WaveNumber, req.CritterIID, req.Slots)
	e.Unlock()
	return opReply(env, err)
}

func (g *Game) handleNewAttack(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.NewAttackRequest
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	_, err := g.Attacks.Start(s.UID, req.TargetUID, req.ArmyAID)
	return opReply(env, err)
}

func (g *Game) handleEndSiege(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	return opReply(env, g.Attacks.EndSiege(s.UID))
}

func (g *Game) handleBattleRegister(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.BattleRegister
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	b, ok := g.World.Battle(req.BID)
	if !ok {
		return nil, fmt.Errorf("unknown battle")
	}
	b.Observe(s.UID)

	setup := protocol.BattleSetup{BID: b.BID, DefenderUID: b.DefenderUID}
	for _, st := range b.SortedStructures() {
		setup.Structures = append(setup.Structures, protocol.StructureView{
			SID: st.SID, IID: st.ItemID, HexQ: st.Pos.Q, HexR: st.Pos.R,
		})
	}
	for _, hx := range b.Path {
		setup.Path = append(setup.Path, protocol.PathHex{Q: hx.Q, R: hx.R})
	}
	return reply(env, protocol.TypeBattleSetup, setup)
}

func (g *Game) handleBattleUnregister(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.BattleRegister
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	if b, ok := g.World.Battle(req.BID); ok {
		b.Unobserve(s.UID)
	}
	return opReply(env, nil)
}

func (g *Game) handleUserMessage(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.UserMessage
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return opReply(env, fmt.Errorf("empty message"))
	}
	if _, ok := g.Empires.Get(req.ToUID); !ok {
		return opReply(env, fmt.Errorf("unknown recipient %d", req.ToUID))
	}
	delivered := g.Notifier != nil && g.Notifier.Send(req.ToUID, protocol.TypeUserMessage,
		protocol.UserMessage{FromUID: s.UID, Text: req.Text})
	resp := protocol.OpResponse{Success: delivered}
	if !delivered {
		resp.Error = "recipient offline"
	}
	return reply(env, protocol.TypeAck, resp)
}

func (g *Game) handleTimeline(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	resp := protocol.TimelineResponse{}
	if g.Timeline != nil {
		resp.Entries = g.Timeline.For(s.UID)
	}
	return reply(env, protocol.TypeTimelineResponse, resp)
}

func (g *Game) handleUserinfo(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.UserinfoRequest
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	uid := req.UID
	if uid == 0 {
		uid = s.UID
	}
	target, ok := g.Empires.Get(uid)
	if !ok {
		return nil, fmt.Errorf("Empire not found")
	}

	target.Lock()
	resp := protocol.UserinfoResponse{UID: uid, EmpireName: target.Name}
	target.Unlock()
	// The AI empire has no account row; its empire name stands alone.
	if username, empireName, err := g.Store.UserName(uid); err == nil {
		resp.Username = username
		if empireName != "" {
			resp.EmpireName = empireName
		}
	}
	resp.Score = g.score(target)
	return reply(env, protocol.TypeUserinfoResponse, resp)
}

func (g *Game) handleHallOfFame(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var entries []protocol.HallOfFameEntry
	for _, emp := range g.Empires.All() {
		emp.Lock()
		name := emp.Name
		emp.Unlock()
		entries = append(entries, protocol.HallOfFameEntry{
			UID:        emp.UID,
			EmpireName: name,
			Score:      g.score(emp),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UID < entries[j].UID
	})
	if len(entries) > hallOfFameLimit {
		entries = entries[:hallOfFameLimit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return reply(env, protocol.TypeHallOfFameResponse, protocol.HallOfFameResponse{Entries: entries})
}

func (g *Game) handlePreferences(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	prefs, err := g.Store.Preferences(s.UID)
	if err != nil {
		return nil, err
	}
	return reply(env, protocol.TypePreferences, protocol.Preferences{Prefs: prefs})
}

func (g *Game) handleChangePreferences(s *Session, e *empire.Empire, env protocol.Envelope) (*protocol.Envelope, error) {
	var req protocol.Preferences
	if err := protocol.Decode(env, &req); err != nil {
		return nil, err
	}
	return opReply(env, g.Store.SetPreferences(s.UID, req.Prefs))
}

func opReply(env protocol.Envelope, err error) (*protocol.Envelope, error) {
	resp := protocol.OpResponse{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	return reply(env, protocol.TypeAck, resp)
}

func copyFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyInts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
