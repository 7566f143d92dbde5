// Command liftd is one node of a distributed elevator controller: it
// owns one cabin, replicates hall-call state with its peers over UDP,
// and serves a read-only status API for observability.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"liftd/internal/config"
	"liftd/internal/eventlog"
	"liftd/internal/fsm"
	"liftd/internal/handler"
	"liftd/internal/hwio"
	"liftd/internal/nodeid"
	"liftd/internal/request"
	"liftd/internal/statusapi"
	"liftd/internal/transport"
)

const version = "0.1.0"

func main() {
	defaults := config.Defaults()

	floors := flag.Int("floors", defaults.Floors, "number of floors served by this cabin")
	configDir := flag.String("config-dir", defaults.ConfigDir, "directory holding the persisted node id")
	broadcastPort := flag.Int("broadcast-port", defaults.BroadcastPort, "UDP port for request/position broadcasts")
	presencePort := flag.Int("presence-port", defaults.PresencePort, "UDP port for peer presence heartbeats")
	pollInterval := flag.Duration("poll-interval", defaults.PollInterval, "sensor/timer poll interval")
	announceInterval := flag.Duration("announce-interval", defaults.AnnounceInterval, "periodic request re-broadcast interval")
	doorTimeout := flag.Duration("door-timeout", defaults.DoorTimeout, "how long the door stays open")
	stuckTimeout := flag.Duration("stuck-timeout", defaults.StuckTimeout, "watchdog timeout before a stuck cabin is fatal")
	httpAddr := flag.String("http-addr", defaults.HTTPListenAddr, "listen address for the status API")
	eventLogPath := flag.String("event-log", defaults.EventLogPath, "path to the event-log SQLite database")
	ticksPerFloor := flag.Int("sim-ticks-per-floor", 10, "simulator: poll ticks to travel one floor")
	flag.Parse()

	cfg := config.Config{
		Floors:           *floors,
		ConfigDir:        *configDir,
		BroadcastPort:    *broadcastPort,
		PresencePort:     *presencePort,
		PollInterval:     *pollInterval,
		AnnounceInterval: *announceInterval,
		DoorTimeout:      *doorTimeout,
		StuckTimeout:     *stuckTimeout,
		HTTPListenAddr:   *httpAddr,
		EventLogPath:     *eventLogPath,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("liftd: invalid configuration: %v", err)
	}

	log.Printf("liftd %s starting (floors=%d)", version, cfg.Floors)

	localIP, err := nodeid.LocalIP()
	if err != nil {
		log.Fatalf("liftd: determine local IP: %v", err)
	}
	localID, err := nodeid.Load(cfg.ConfigDir, localIP)
	if err != nil {
		log.Fatalf("liftd: load node identity: %v", err)
	}
	log.Printf("liftd: node id %s", localID)

	elog, err := eventlog.Open(cfg.EventLogPath, 50, 5*time.Second)
	if err != nil {
		log.Fatalf("liftd: open event log: %v", err)
	}
	elog.Start()
	defer elog.Close()

	adapter, err := transport.NewUDPAdapter(localID, localIP, cfg.BroadcastPort, cfg.PresencePort)
	if err != nil {
		log.Fatalf("liftd: start transport adapter: %v", err)
	}
	defer adapter.Close()

	table := request.NewTable(cfg.Floors)
	h := handler.New(table, adapter)
	driver := hwio.NewSimDriver(cfg.Floors, *ticksPerFloor)

	f := fsm.New(cfg.Floors, h, adapter, driver, cfg.PollInterval, cfg.AnnounceInterval, cfg.DoorTimeout, cfg.StuckTimeout)

	hub := statusapi.NewHub()
	go hub.Run()
	f.SetObserver(func(event string, data interface{}) {
		hub.Publish(event, data)
		if err := elog.Log(logEventFor(event, data, f)); err != nil {
			log.Printf("liftd: event log write failed: %v", err)
		}
	})

	api := statusapi.New(h, f, hub)
	srv := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("liftd: status API listening on %s", cfg.HTTPListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("liftd: status API failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.Init(ctx); err != nil {
		log.Fatalf("liftd: homing sequence failed: %v", err)
	}
	log.Printf("liftd: homed to floor 0")

	runErr := make(chan error, 1)
	go func() { runErr <- f.Run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("liftd: shutting down gracefully")
	case err := <-runErr:
		log.Printf("liftd: FSM loop exited: %v", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("liftd: status API shutdown error: %v", err)
	}
}

// logEventFor converts an FSM observer callback into an event-log row.
func logEventFor(event string, data interface{}, f *fsm.FSM) eventlog.Event {
	e := eventlog.Event{Timestamp: time.Now().Unix(), Kind: event, Floor: f.Floor()}
	switch v := data.(type) {
	case int:
		e.Status = f.State().String()
		e.Detail = "position"
		e.Floor = v
	case hwio.Button:
		e.Kind = v.Kind.String()
		e.Floor = v.Floor
		e.Status = "button"
	case string:
		e.Status = v
	}
	return e
}
