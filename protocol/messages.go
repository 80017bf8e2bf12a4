package protocol

// Message type constants. Requests come from clients; *_response and the push
// types flow server → client.
const (
	TypeAuthRequest    = "auth_request"
	TypeAuthResponse   = "auth_response"
	TypeSignup         = "signup"
	TypeSignupResponse = "signup_response"

	TypeSummaryRequest  = "summary_request"
	TypeSummaryResponse = "summary_response"
	TypeItemRequest     = "item_request"
	TypeItemResponse    = "item_response"

	TypeNewItem          = "new_item"
	TypeBuildResponse    = "build_response"
	TypeNewStructure     = "new_structure"
	TypeDeleteStructure  = "delete_structure"
	TypeUpgradeStructure = "upgrade_structure"

	TypeCitizenUpgrade = "citizen_upgrade"
	TypeChangeCitizen  = "change_citizen"
	TypeIncreaseLife   = "increase_life"

	TypeMilitaryRequest  = "military_request"
	TypeMilitaryResponse = "military_response"
	TypeNewArmy          = "new_army"
	TypeChangeArmy       = "change_army"
	TypeNewWave          = "new_wave"
	TypeChangeWave       = "change_wave"

	TypeNewAttackRequest = "new_attack_request"
	TypeEndSiege         = "end_siege"

	TypeBattleRegister   = "battle_register"
	TypeBattleUnregister = "battle_unregister"
	TypeBattleSetup      = "battle_setup"
	TypeBattleUpdate     = "battle_update"
	TypeBattleSummary    = "battle_summary"

	TypeUserMessage        = "user_message"
	TypeTimelineRequest    = "timeline_request"
	TypeTimelineResponse   = "timeline_response"
	TypeUserinfoRequest    = "userinfo_request"
	TypeUserinfoResponse   = "userinfo_response"
	TypeHallOfFameRequest  = "hall_of_fame_request"
	TypeHallOfFameResponse = "hall_of_fame_response"
	TypePreferencesRequest = "preferences_request"
	TypePreferences        = "preferences"
	TypeChangePreferences  = "change_preferences"

	TypeError = "error"
	TypeAck   = "ack"
)

type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Success bool   `json:"success"`
	UID     int    `json:"uid,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type Signup struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email,omitempty"`
	EmpireName string `json:"empire_name,omitempty"`
}

type SignupResponse struct {
	Success bool   `json:"success"`
	UID     int    `json:"uid,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type SummaryResponse struct {
	Resources map[string]float64 `json:"resources"`
	Citizens  map[string]int     `json:"citizens"`
	Artefacts []string           `json:"artefacts"`
	Effects   map[string]float64 `json:"effects"`
	MaxLife   float64            `json:"max_life"`
}

// ItemResponse maps iid → remaining effort; 0 means complete.
type ItemResponse struct {
	Buildings map[string]float64 `json:"buildings"`
	Knowledge map[string]float64 `json:"knowledge"`
}

type NewItem struct {
	IID string `json:"iid"`
}

type BuildResponse struct {
	Success       bool   `json:"success"`
	IID           string `json:"iid"`
	Error         string `json:"error,omitempty"`
	BuildQueue    string `json:"build_queue,omitempty"`
	ResearchQueue string `json:"research_queue,omitempty"`
}

type NewStructure struct {
	IID  string `json:"iid"`
	HexQ int    `json:"hex_q"`
	HexR int    `json:"hex_r"`
}

type DeleteStructure struct {
	SID int `json:"sid"`
}

type UpgradeStructure struct {
	SID int `json:"sid"`
}

type ChangeCitizen struct {
	Citizens map[string]int `json:"citizens"`
}

type CitizenResponse struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Citizens map[string]int `json:"citizens,omitempty"`
}

type MilitaryResponse struct {
	Armies            []ArmyView   `json:"armies"`
	AvailableCritters []string     `json:"available_critters"`
	AttacksIncoming   []AttackView `json:"attacks_incoming"`
	AttacksOutgoing   []AttackView `json:"attacks_outgoing"`
}

type ArmyView struct {
	AID   int        `json:"aid"`
	Name  string     `json:"name"`
	Waves []WaveView `json:"waves"`
}

type WaveView struct {
	WaveID    int    `json:"wave_id"`
	CritterID string `json:"critter_iid"`
	Slots     int    `json:"slots"`
}

type AttackView struct {
	AttackID    int     `json:"attack_id"`
	AttackerUID int     `json:"attacker_uid"`
	DefenderUID int     `json:"defender_uid"`
	Phase       string  `json:"phase"`
	Progress    float64 `json:"progress"`
}

type NewArmy struct {
	Name string `json:"name"`
}

type ChangeArmy struct {
	AID  int    `json:"aid"`
	Name string `json:"name,omitempty"`
}

type NewWave struct {
	AID        int    `json:"aid"`
	CritterIID string `json:"critter_iid"`
	Slots      int    `json:"slots,omitempty"`
}

type ChangeWave struct {
	AID        int    `json:"aid"`
	WaveNumber int    `json:"wave_number"`
	CritterIID string `json:"critter_iid,omitempty"`
	Slots      int    `json:"slots,omitempty"`
}

type NewAttackRequest struct {
	TargetUID int `json:"target_uid"`
	ArmyAID   int `json:"army_aid"`
}

type BattleRegister struct {
	BID string `json:"bid"`
}

// BattleSetup answers battle_register with the static pieces a client needs
// before the first delta arrives.
type BattleSetup struct {
	BID         string          `json:"bid"`
	DefenderUID int             `json:"defender_uid"`
	Structures  []StructureView `json:"structures"`
	Path        []PathHex       `json:"path"`
}

type StructureView struct {
	SID  int    `json:"sid"`
	IID  string `json:"iid"`
	HexQ int    `json:"hex_q"`
	HexR int    `json:"hex_r"`
}

type PathHex struct {
	Q int `json:"q"`
	R int `json:"r"`
}

type BattleSummary struct {
	BID            string                     `json:"bid"`
	DefenderWon    bool                       `json:"defender_won"`
	AttackerGains  map[int]map[string]float64 `json:"attacker_gains"`
	DefenderLosses map[string]float64         `json:"defender_losses"`
}

// UserMessage carries player-to-player chat. Clients set to_uid and text; the
// relayed copy the recipient sees carries from_uid.
type UserMessage struct {
	ToUID   int    `json:"to_uid,omitempty"`
	FromUID int    `json:"from_uid,omitempty"`
	Text    string `json:"text"`
}

type TimelineResponse struct {
	Entries []TimelineEntry `json:"entries"`
}

type TimelineEntry struct {
	At   int64  `json:"at"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// UserinfoRequest with uid 0 asks about the requesting player.
type UserinfoRequest struct {
	UID int `json:"uid,omitempty"`
}

type UserinfoResponse struct {
	UID        int     `json:"uid"`
	Username   string  `json:"username"`
	EmpireName string  `json:"empire_name"`
	Score      float64 `json:"score"`
}

type HallOfFameResponse struct {
	Entries []HallOfFameEntry `json:"entries"`
}

type HallOfFameEntry struct {
	Rank       int     `json:"rank"`
	UID        int     `json:"uid"`
	EmpireName string  `json:"empire_name"`
	Score      float64 `json:"score"`
}

type Preferences struct {
	Prefs map[string]string `json:"prefs"`
}

type OpResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}
