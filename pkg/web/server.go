// Package web exposes the coordinator over HTTP and websockets.
//
// The API surface is a collaborator layer: core packages know nothing
// about it. Samples arrive via POST /api/sample or the /ws/ingest stream;
// transition events and periodic telemetry fan out on /ws/events.
package web

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/entrainlab/go-wavemind/internal/log"
	"github.com/entrainlab/go-wavemind/internal/store"
	"github.com/entrainlab/go-wavemind/pkg/coordinator"
	"github.com/entrainlab/go-wavemind/pkg/hub"
)

// telemetryInterval is how often active-actor telemetry is pushed to
// websocket subscribers.
const telemetryInterval = time.Second

// Server is the wavemind API server.
type Server struct {
	app   *fiber.App
	port  string
	coord *coordinator.Coordinator
	log   *store.Store // optional transition history, may be nil

	events *hub.Hub
}

// NewServer wires the API around a coordinator. transitions may be nil if
// persistence is disabled.
func NewServer(port string, coord *coordinator.Coordinator, transitions *store.Store) *Server {
	s := &Server{
		port:   port,
		coord:  coord,
		log:    transitions,
		events: hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "wavemind",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/settings", s.handleSettings)
	api.Post("/sample", s.handleSetSample)

	api.Get("/actors", s.handleListActors)
	api.Post("/actors", s.handleRegister)
	api.Get("/actors/:id", s.handleTelemetry)
	api.Delete("/actors/:id", s.handleUnregister)

	api.Post("/actors/:id/activate", s.handleActivate)
	api.Post("/deactivate", s.handleDeactivate)

	api.Post("/actors/:id/stimulation/start", s.handleStartStimulation)
	api.Post("/actors/:id/stimulation/stop", s.handleStopStimulation)
	api.Post("/actors/:id/reset", s.handleReset)

	api.Put("/actors/:id/obedience", s.handleSetObedience)
	api.Delete("/actors/:id/obedience", s.handleClearObedience)

	api.Get("/transitions", s.handleTransitions)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/ingest", websocket.New(s.handleIngestWS))

	s.app = app
	return s
}

// StateChanged implements coordinator.Sink: every transition is pushed to
// websocket subscribers. Register the server as a sink on the coordinator.
func (s *Server) StateChanged(ev coordinator.Event) {
	s.events.BroadcastJSON(fiber.Map{
		"type":  "transition",
		"event": ev,
	})
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.events.Run(ctx)
	go s.telemetryLoop(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Error("server shutdown", "error", err)
		}
	}()

	log.Info("api listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// telemetryLoop periodically pushes the active actor's snapshot.
func (s *Server) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, ok := s.coord.ActiveID()
			if !ok {
				continue
			}
			t, err := s.coord.Telemetry(id)
			if err != nil {
				continue
			}
			s.events.BroadcastJSON(fiber.Map{
				"type":  "telemetry",
				"actor": t,
			})
		}
	}
}
