package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/auth"
	"github.com/vovakirdan/strangerchat-server/internal/proto"
	"github.com/vovakirdan/strangerchat-server/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// StaffHandlers provides the read-only staff API and the operator login.
type StaffHandlers struct {
	store       store.Store
	authService *auth.Service
	log         *zerolog.Logger
}

// NewStaffHandlers creates a new staff handlers instance.
func NewStaffHandlers(st store.Store, authService *auth.Service, logger *zerolog.Logger) *StaffHandlers {
	return &StaffHandlers{
		store:       st,
		authService: authService,
		log:         logger,
	}
}

// LoginRequest represents the operator login body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	Token        string  `json:"token"`
	ParticipantA string  `json:"participant_a"`
	ParticipantB *string `json:"participant_b,omitempty"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// CountsResponse summarizes rooms by status.
type CountsResponse struct {
	Waiting int `json:"waiting"`
	Active  int `json:"active"`
	Closed  int `json:"closed"`
	Total   int `json:"total"`
}

// SummaryResponse is returned by the rooms summary endpoint.
type SummaryResponse struct {
	Counts       CountsResponse `json:"counts"`
	ActiveRooms  []RoomResponse `json:"active_rooms"`
	WaitingRooms []RoomResponse `json:"waiting_rooms"`
}

// MessagesResponse is one page of a room transcript.
type MessagesResponse struct {
	RoomID     string                 `json:"room_id"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	Total      int                    `json:"total"`
	TotalPages int                    `json:"total_pages"`
	Messages   []proto.HistoryMessage `json:"messages"`
}

// IssueToken exchanges operator credentials for a staff token.
// POST /api/staff/token
func (h *StaffHandlers) IssueToken(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("username", req.Username).Msg("operator logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// RoomsSummary returns room counts and the currently open rooms.
// GET /api/staff/rooms/summary
func (h *StaffHandlers) RoomsSummary(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.store.CountRooms(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to count rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	active, err := h.store.ListRooms(ctx, store.RoomFilter{Status: store.RoomStatusActive})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list active rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	waiting, err := h.store.ListRooms(ctx, store.RoomFilter{Status: store.RoomStatusWaiting})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list waiting rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, SummaryResponse{
		Counts: CountsResponse{
			Waiting: counts.Waiting,
			Active:  counts.Active,
			Closed:  counts.Closed,
			Total:   counts.Waiting + counts.Active + counts.Closed,
		},
		ActiveRooms:  roomResponses(active),
		WaitingRooms: roomResponses(waiting),
	})
}

// RoomMessages returns one page of a room transcript, oldest first.
// GET /api/staff/rooms/:token/messages?page=&page_size=
func (h *StaffHandlers) RoomMessages(c *gin.Context) {
	token := c.Param("token")

	page, err := queryInt(c, "page", 1)
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		return
	}
	pageSize, err := queryInt(c, "page_size", defaultPageSize)
	if err != nil || pageSize < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page_size"})
		return
	}
	pageSize = min(pageSize, maxPageSize)

	ctx := c.Request.Context()
	if _, err := h.store.GetRoom(ctx, token); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room", token).Msg("failed to get room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	msgs, total, err := h.store.PageMessages(ctx, token, (page-1)*pageSize, pageSize)
	if err != nil {
		h.log.Error().Err(err).Str("room", token).Msg("failed to page messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, proto.HistoryMessage{Sender: m.Sender, Content: m.Content, Timestamp: m.Timestamp})
	}
	c.JSON(http.StatusOK, MessagesResponse{
		RoomID:     token,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
		Messages:   out,
	})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func roomResponses(rooms []*store.Room) []RoomResponse {
	out := make([]RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomResponse{
			Token:        r.Token,
			ParticipantA: r.ParticipantA,
			ParticipantB: r.ParticipantB,
			Status:       string(r.Status()),
			CreatedAt:    r.CreatedAt.Format(time.RFC3339Nano),
			UpdatedAt:    r.UpdatedAt.Format(time.RFC3339Nano),
		})
	}
	return out
}
