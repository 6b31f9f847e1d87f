package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/entrainlab/go-wavemind/internal/log"
	"github.com/entrainlab/go-wavemind/pkg/coordinator"
	"github.com/entrainlab/go-wavemind/pkg/evaluator"
	"github.com/entrainlab/go-wavemind/pkg/hub"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleSettings(c *fiber.Ctx) error {
	set := s.coord.Settings()
	return c.JSON(fiber.Map{
		"sample_interval_ms":         set.SampleInterval.Milliseconds(),
		"smoothing_half_life_ms":     set.SmoothingHalfLife.Milliseconds(),
		"success_threshold":          set.SuccessThreshold,
		"overload_threshold":         set.OverloadThreshold,
		"instability_fail_threshold": set.InstabilityFailThreshold,
		"instability_recovery_rate":  set.InstabilityRecoveryRate,
	})
}

// SampleRequest carries one raw band vector. Malformed values are
// sanitized downstream, never rejected.
type SampleRequest struct {
	Bands []float64 `json:"bands"`
}

func (s *Server) handleSetSample(c *fiber.Ctx) error {
	var req SampleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid sample body")
	}
	s.coord.SetSample(req.Bands)
	return c.SendStatus(fiber.StatusAccepted)
}

// RegisterRequest creates an actor from an inline profile document.
type RegisterRequest struct {
	ID      string          `json:"id"`
	Profile json.RawMessage `json:"profile"`
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil || req.ID == "" {
		return badRequest(c, "id and profile are required")
	}

	profile, err := evaluator.ParseProfile(req.Profile, req.ID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := s.coord.Register(req.ID, profile); err != nil {
		if errors.Is(err, coordinator.ErrActorRegistered) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": req.ID})
}

func (s *Server) handleListActors(c *fiber.Ctx) error {
	return c.JSON(s.coord.Actors())
}

func (s *Server) handleTelemetry(c *fiber.Ctx) error {
	t, err := s.coord.Telemetry(c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}
	return c.JSON(t)
}

func (s *Server) handleUnregister(c *fiber.Ctx) error {
	s.coord.Unregister(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleActivate(c *fiber.Ctx) error {
	if err := s.coord.Activate(c.Params("id")); err != nil {
		return notFound(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeactivate(c *fiber.Ctx) error {
	s.coord.Deactivate()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleStartStimulation(c *fiber.Ctx) error {
	err := s.coord.StartStimulation(c.Params("id"))
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusNoContent)
	case errors.Is(err, coordinator.ErrActorNotFound):
		return notFound(c, err)
	default:
		// Not idle: report but don't fail hard; the machine ignored it.
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
}

func (s *Server) handleStopStimulation(c *fiber.Ctx) error {
	if err := s.coord.StopStimulation(c.Params("id")); err != nil {
		return notFound(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	if err := s.coord.ResetActor(c.Params("id")); err != nil {
		return notFound(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ObedienceRequest pushes an externally computed metric. Value is the
// raw obedience level in [0,100]; it is normalized to [0,1] here so the
// state machine only ever sees normalized metrics.
type ObedienceRequest struct {
	Value      float64  `json:"value"`
	Multiplier *float64 `json:"multiplier,omitempty"`
}

func (s *Server) handleSetObedience(c *fiber.Ctx) error {
	var req ObedienceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid obedience body")
	}

	id := c.Params("id")
	if err := s.coord.SetObedience(id, req.Value/100); err != nil {
		return notFound(c, err)
	}
	if req.Multiplier != nil {
		if err := s.coord.SetObedienceMultiplier(id, *req.Multiplier); err != nil {
			return notFound(c, err)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleClearObedience(c *fiber.Ctx) error {
	if err := s.coord.ClearObedience(c.Params("id")); err != nil {
		return notFound(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleTransitions(c *fiber.Ctx) error {
	if s.log == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "transition history disabled",
		})
	}
	rows, err := s.log.Recent(c.Query("actor"), c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rows)
}

// handleEventsWS subscribes a client to the transition/telemetry feed.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	client := hub.NewClient(s.events, conn)
	client.Run()
}

// handleIngestWS receives a stream of band vectors. Latest-wins semantics
// mean the sender may push at any rate; the evaluation tick reads whatever
// arrived most recently.
func (s *Server) handleIngestWS(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var req SampleRequest
		if err := conn.ReadJSON(&req); err != nil {
			log.Debug("ingest stream closed", "error", err)
			return
		}
		s.coord.SetSample(req.Bands)
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
}
