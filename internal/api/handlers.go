package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/contextstore"
	"github.com/p-blackswan/puzzlecanvas/internal/eventbus"
	"github.com/p-blackswan/puzzlecanvas/internal/preference"
	"github.com/p-blackswan/puzzlecanvas/internal/visual"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store  *contextstore.Store
	bus    *eventbus.Bus
	pieces *visual.Collection
	sync   Syncer
	logger zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:  deps.Store,
		bus:    deps.Bus,
		pieces: deps.Pieces,
		sync:   deps.Sync,
		logger: logger.With().Str("component", "handlers").Logger(),
	}
}

// EmitEvent handles POST /api/v1/events. The event is dispatched
// synchronously; AI work it triggers finishes later and reports through
// AI_* events.
func (h *Handlers) EmitEvent(c *fiber.Ctx) error {
	var req EventRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	t := eventbus.Type(strings.ToUpper(strings.TrimSpace(req.Type)))
	if t == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_type", "Bad Request",
			"Event type is required")
	}

	payload, err := eventbus.DecodePayload(t, req.Payload)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_payload", "Bad Request",
			err.Error())
	}

	ev := h.bus.EmitType(t, payload)
	h.logger.Debug().Str("event_type", string(t)).Str("event_id", ev.ID).Msg("event accepted")
	return c.Status(fiber.StatusAccepted).JSON(EventResponse{ID: ev.ID, Type: string(ev.Type)})
}

// GetState handles GET /api/v1/state.
func (h *Handlers) GetState(c *fiber.Ctx) error {
	return c.JSON(StateResponse{
		Revision: h.store.Revision(),
		CanUndo:  h.store.CanUndo(),
		CanRedo:  h.store.CanRedo(),
		State:    h.store.State(),
	})
}

// Undo handles POST /api/v1/undo.
func (h *Handlers) Undo(c *fiber.Ctx) error {
	if h.store.Undo() == nil {
		return problemResponse(c, fiber.StatusConflict,
			"nothing_to_undo", "Conflict",
			"The undo history is empty")
	}
	return c.JSON(h.history())
}

// Redo handles POST /api/v1/redo.
func (h *Handlers) Redo(c *fiber.Ctx) error {
	if h.store.Redo() == nil {
		return problemResponse(c, fiber.StatusConflict,
			"nothing_to_redo", "Conflict",
			"The redo history is empty")
	}
	return c.JSON(h.history())
}

func (h *Handlers) history() HistoryResponse {
	return HistoryResponse{
		Revision: h.store.Revision(),
		CanUndo:  h.store.CanUndo(),
		CanRedo:  h.store.CanRedo(),
	}
}

// Persist handles POST /api/v1/persist. Storage failures are logged by the
// store and never surface here.
func (h *Handlers) Persist(c *fiber.Ctx) error {
	h.store.Persist(c.UserContext())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"revision": h.store.Revision()})
}

// ListVisualPieces handles GET /api/v1/visual-pieces.
func (h *Handlers) ListVisualPieces(c *fiber.Ctx) error {
	pieces := h.pieces.Pieces()
	if pieces == nil {
		pieces = []visual.Piece{}
	}
	return c.JSON(fiber.Map{"pieces": pieces})
}

// ReplaceVisualPieces handles PUT /api/v1/visual-pieces. The sync adapter
// turns the difference into store commits and PIECE_* events before this
// returns.
func (h *Handlers) ReplaceVisualPieces(c *fiber.Ctx) error {
	var pieces []visual.Piece
	if err := c.BodyParser(&pieces); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	for i, p := range pieces {
		if strings.TrimSpace(p.ID) == "" {
			return problemResponse(c, fiber.StatusBadRequest,
				"missing_id", "Bad Request",
				"Every piece needs an id (index "+strconv.Itoa(i)+")")
		}
		if p.Mode != "" && !p.Mode.Valid() {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_mode", "Bad Request",
				"Unknown design mode: "+string(p.Mode))
		}
	}

	h.pieces.Set(pieces)
	return c.JSON(fiber.Map{"pieces": len(h.pieces.Pieces()), "revision": h.store.Revision()})
}

// Sync handles POST /api/v1/sync.
func (h *Handlers) Sync(c *fiber.Ctx) error {
	if h.sync == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"sync_unavailable", "Service Unavailable",
			"No sync adapter is attached")
	}
	return c.JSON(SyncResponse{Synced: h.sync.SyncAllToDomain()})
}

// GetPreferences handles GET /api/v1/preferences.
func (h *Handlers) GetPreferences(c *fiber.Ctx) error {
	profile := h.store.State().PreferenceProfile
	hints := preference.Hints(profile, c.QueryInt("hints", preference.DefaultHintCount))
	if hints == nil {
		hints = []string{}
	}
	return c.JSON(PreferencesResponse{
		Profile: profile,
		Ranked:  preference.Rank(profile),
		Hints:   hints,
	})
}
