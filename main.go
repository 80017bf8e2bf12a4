package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/jpenner/bastion/bastion-core/ai"
	"github.com/jpenner/bastion/bastion-core/attack"
	"github.com/jpenner/bastion/bastion-core/config"
	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/event"
	"github.com/jpenner/bastion/bastion-core/hexmap"
	"github.com/jpenner/bastion/bastion-core/item"
	"github.com/jpenner/bastion/bastion-core/session"
	"github.com/jpenner/bastion/bastion-core/store"
	"github.com/jpenner/bastion/bastion-core/world"
)

const banner = `
██████╗  █████╗ ███████╗████████╗██╗ ██████╗ ███╗   ██╗
██╔══██╗██╔══██╗██╔════╝╚══██╔══╝██║██╔═══██╗████╗  ██║
██████╔╝███████║███████╗   ██║   ██║██║   ██║██╔██╗ ██║
██╔══██╗██╔══██║╚════██║   ██║   ██║██║   ██║██║╚██╗██║
██████╔╝██║  ██║███████║   ██║   ██║╚██████╔╝██║ ╚████║
╚═════╝ ╚═╝  ╚═╝╚══════╝   ╚═╝   ╚═╝ ╚═════╝ ╚═╝  ╚═══╝

Empire Defense Server`

func main() {
	configPath := flag.String("config", "", "path to config yaml (defaults apply when empty)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	fmt.Println(banner)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}

	reg, err := item.LoadFile(cfg.ItemsPath)
	if err != nil {
		slog.Error("failed to load item catalogue", "path", cfg.ItemsPath, "error", err)
		os.Exit(1)
	}
	baseMap, err := config.LoadMap(cfg.MapPath)
	if err != nil {
		slog.Error("failed to load base map", "path", cfg.MapPath, "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("failed to create data dir", "error", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	bus := event.NewBus()
	empires := empire.NewManager()
	engine := empire.NewEngine(reg, bus, cfg.Empire)
	attacks := attack.NewService(empires, bus, cfg.Attack)

	rehydrate(st, empires, attacks)

	router := session.NewRouter()
	hub := session.NewHub(router, session.Options{
		ReadTimeout: time.Duration(cfg.Session.ReadTimeoutSeconds * float64(time.Second)),
		SendBuffer:  cfg.Session.SendBuffer,
		RatePerSec:  cfg.Session.RateLimitPerSecond,
		RateBurst:   cfg.Session.RateLimitBurst,
	})
	w := world.New(empires, engine, attacks, reg, bus, hub, cfg.World)

	game := &session.Game{
		Empires:  empires,
		Engine:   engine,
		Attacks:  attacks,
		World:    w,
		Store:    st,
		Timeline: session.NewTimeline(bus, 0),
		Notifier: hub,
		BaseMap:  baseMap,
	}
	game.Register(router)

	if cfg.AI.UID != 0 {
		ensureAIEmpire(empires, engine, baseMap, cfg.AI.UID)
		director, err := ai.New(cfg.AI, empires, attacks, reg, bus)
		if err != nil {
			slog.Error("failed to start ai director", "error", err)
			os.Exit(1)
		}
		w.AddAgent(director)
		game.Scorer = director
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go w.Run(ctx)
	go snapshotLoop(ctx, st, empires, attacks, cfg.SnapshotIntervalSeconds)
	go telemetryLoop(ctx, w, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(rw, "ok online=%d battles=%d\n", hub.Online(), w.ActiveBattles())
	})
	srv := &http.Server{Addr: cfg.Listen, Handler: mux}

	go func() {
		slog.Info("listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	// Final snapshot so a clean shutdown loses nothing.
	if err := saveSnapshot(st, empires, attacks); err != nil {
		slog.Error("final snapshot failed", "error", err)
	}
}

// rehydrate restores the last snapshot, if any. Battles are not persisted;
// attacks that were mid-battle restart their assault on the next world step.
func rehydrate(st *store.Store, empires *empire.Manager, attacks *attack.Service) {
	snap, err := st.LoadLatest()
	if err != nil {
		slog.Error("snapshot restore failed, starting empty", "error", err)
		return
	}
	if snap == nil {
		slog.Info("no snapshot found, starting empty")
		return
	}
	for _, e := range snap.Empires {
		empires.Add(e)
	}
	attacks.Restore(snap.Attacks)
	slog.Info("state restored", "empires", len(snap.Empires), "attacks", len(snap.Attacks), "saved_at", snap.SavedAt)
}

// ensureAIEmpire creates the computer opponent's empire on first boot.
func ensureAIEmpire(empires *empire.Manager, engine *empire.Engine, baseMap map[string]hexmap.TileType, uid int) {
	if _, ok := empires.Get(uid); ok {
		return
	}
	e := empire.New(uid, "The Horde")
	for k, v := range baseMap {
		e.HexMap[k] = v
	}
	engine.RecalculateEffects(e)
	e.Resources[empire.ResLife] = e.MaxLife
	empires.Add(e)
	slog.Info("ai empire created", "uid", uid)
}

// snapshotLoop persists the world on a fixed interval.
func snapshotLoop(ctx context.Context, st *store.Store, empires *empire.Manager, attacks *attack.Service, intervalSeconds float64) {
	ticker := time.NewTicker(time.Duration(intervalSeconds * float64(time.Second)))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveSnapshot(st, empires, attacks); err != nil {
				slog.Error("snapshot failed", "error", err)
			}
		}
	}
}

// telemetryLoop logs loop health once a minute.
func telemetryLoop(ctx context.Context, w *world.World, hub *session.Hub) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := w.Telemetry()
			slog.Info("world telemetry",
				"ticks", t.Ticks,
				"last_work_ms", t.LastWorkMs,
				"avg_work_ms", t.AvgWorkMs,
				"battles", w.ActiveBattles(),
				"online", hub.Online(),
				"dropped_frames", hub.Dropped())
		}
	}
}

// saveSnapshot locks every empire in uid order for a consistent cut, then
// appends it to the hash chain.
func saveSnapshot(st *store.Store, empires *empire.Manager, attacks *attack.Service) error {
	all := empires.All()
	sort.Slice(all, func(i, j int) bool { return all[i].UID < all[j].UID })
	for _, e := range all {
		e.Lock()
	}
	err := st.SaveSnapshot(store.Snapshot{
		Empires: all,
		Attacks: attacks.Snapshot(),
		SavedAt: time.Now().UTC(),
	})
	for i := len(all) - 1; i >= 0; i-- {
		all[i].Unlock()
	}
	return err
}
