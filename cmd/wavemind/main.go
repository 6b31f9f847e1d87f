// wavemind - real-time wave evaluation daemon
//
// Receives multi-band wave samples, routes them to the single active
// actor, and serves telemetry and transition events over HTTP/websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrainlab/go-wavemind/internal/config"
	"github.com/entrainlab/go-wavemind/internal/log"
	"github.com/entrainlab/go-wavemind/internal/store"
	"github.com/entrainlab/go-wavemind/pkg/coordinator"
	"github.com/entrainlab/go-wavemind/pkg/evaluator"
	"github.com/entrainlab/go-wavemind/pkg/web"
)

func main() {
	port := flag.String("port", config.String("WAVEMIND_PORT", config.DefaultPort), "API listen port")
	dbPath := flag.String("db", config.String("WAVEMIND_DB", config.DefaultDBPath), "SQLite path for transition history (empty disables)")
	profilesDir := flag.String("profiles", config.String("WAVEMIND_PROFILES", config.DefaultProfilesDir), "directory of actor profile JSON files")
	activate := flag.String("activate", "", "actor to activate on startup")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log.Init(*logLevel)

	settings := config.Settings()
	if err := settings.Validate(); err != nil {
		log.Error("invalid settings", "error", err)
		os.Exit(1)
	}

	coord, err := coordinator.New(settings)
	if err != nil {
		log.Error("coordinator init", "error", err)
		os.Exit(1)
	}
	defer coord.Shutdown()

	var history *store.Store
	if *dbPath != "" {
		history, err = store.Open(*dbPath)
		if err != nil {
			log.Error("open transition store", "path", *dbPath, "error", err)
			os.Exit(1)
		}
		defer history.Close()
		coord.AddSink(history)
	}

	// Transitions are worth a log line regardless of other sinks.
	coord.AddSink(coordinator.SinkFunc(func(ev coordinator.Event) {
		log.Info("state changed",
			"actor", ev.ActorID,
			"from", ev.FromName,
			"to", ev.ToName,
			"metric", ev.Metric,
			"instability", ev.Instability)
	}))

	if err := registerProfiles(coord, *profilesDir); err != nil {
		log.Error("load profiles", "dir", *profilesDir, "error", err)
		os.Exit(1)
	}

	if *activate != "" {
		if err := coord.Activate(*activate); err != nil {
			log.Error("activate", "actor", *activate, "error", err)
			os.Exit(1)
		}
		log.Info("actor activated", "actor", *activate)
	}

	server := web.NewServer(*port, coord, history)
	coord.AddSink(server)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Run(ctx); err != nil {
		log.Error("server", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// registerProfiles loads every profile in dir and registers one actor per
// profile, keyed by profile name. A missing directory is fine: actors can
// still be registered over the API.
func registerProfiles(coord *coordinator.Coordinator, dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		log.Warn("profiles directory missing, starting empty", "dir", dir)
		return nil
	}

	profiles, err := evaluator.LoadProfiles(dir)
	if err != nil {
		return err
	}
	for name, p := range profiles {
		if err := coord.Register(name, p); err != nil {
			return err
		}
		log.Info("actor registered", "actor", name)
	}
	return nil
}
