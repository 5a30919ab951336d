package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/babel/internal/app/orch"
	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/journal"
	"github.com/dkeye/babel/internal/protocol"
)

const maxMessagesLimit = 200

type handlers struct {
	orch *orch.Orchestrator
}

type createRoomRequest struct {
	RoomName string `json:"room_name"`
}

type roomResponse struct {
	core.RoomInfo
	IsActive bool `json:"is_active"`
}

func writeError(c *gin.Context, status int, err error) {
	kind, msg := domain.Public(err)
	c.JSON(status, gin.H{"kind": kind, "message": msg})
}

func (h *handlers) room(c *gin.Context) (core.RoomService, bool) {
	room, ok := h.orch.Rooms.GetRoom(domain.RoomID(c.Param("room_id")))
	if !ok {
		writeError(c, http.StatusNotFound, domain.ErrRoomNotFound)
		return nil, false
	}
	return room, true
}

func infoOf(room core.RoomService) roomResponse {
	r := room.Room()
	return roomResponse{
		RoomInfo: core.RoomInfo{
			ID:               r.ID,
			Name:             r.Name,
			ParticipantCount: room.OnlineCount(),
			CreatedAt:        r.CreatedAt,
		},
		IsActive: r.Active,
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"active_rooms": len(h.orch.Rooms.List()),
		"connections":  h.orch.Registry.Count(),
		"timestamp":    time.Now().UTC(),
	})
}

func (h *handlers) languages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": h.orch.Catalog.Supported()})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, domain.Wrap(domain.KindProtocol, "invalid body", err))
			return
		}
	}
	name := strings.TrimSpace(req.RoomName)
	if len([]rune(name)) > domain.MaxNameLen {
		writeError(c, http.StatusBadRequest, domain.Errorf(domain.KindInvalidName, "room name is longer than %d characters", domain.MaxNameLen))
		return
	}
	room := h.orch.Rooms.Create(name)
	c.JSON(http.StatusCreated, infoOf(room))
}

func (h *handlers) getRoom(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, infoOf(room))
}

// participants lists who is online. include_offline=true adds every member
// ever joined, with presence and timestamps.
func (h *handlers) participants(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	resp := gin.H{
		"room_id":      room.Room().ID,
		"participants": protocol.ViewsOf(room.OnlineSnapshot()),
	}
	if c.Query("include_offline") == "true" {
		resp["members"] = room.Participants()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) translate(c *gin.Context) {
	var req protocol.TranslationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, domain.ErrProtocol.WithCause(err))
		return
	}
	q, err := h.orch.ParseTranslation(req.Text, req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.orch.Translate(c.Request.Context(), q)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) messages(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	limit := journal.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, domain.Errorf(domain.KindProtocol, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxMessagesLimit)
	}
	entries, err := h.orch.Journal.Recent(c.Request.Context(), room.Room().ID, limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, journal.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(c, status, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": room.Room().ID, "messages": entries})
}

func (h *handlers) deleteRoom(c *gin.Context) {
	if !h.orch.EvictRoom(c.Request.Context(), domain.RoomID(c.Param("room_id"))) {
		writeError(c, http.StatusNotFound, domain.ErrRoomNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}
