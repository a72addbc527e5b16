package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/example/room-booking/internal/application"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WatchHandler upgrades requests under /watch to websockets and streams live
// query snapshots over them. Each frame carries either the full current
// result set or an error; an error frame does not end the stream.
type WatchHandler struct {
	service   *application.WatchService
	responder responder
	logger    *slog.Logger
}

// NewWatchHandler constructs a watch handler.
func NewWatchHandler(service *application.WatchService, logger *slog.Logger) *WatchHandler {
	base := defaultLogger(logger)
	return &WatchHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *WatchHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "WatchHandler", operation, attrs...)
}

// Rooms streams the caller's room set, re-emitted in full on every change.
func (h *WatchHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Rooms", "principal_id", principal.UserID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream := h.service.WatchRoomsForUser(ctx, principal)
	defer stream.Unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	go watchConnectionClose(conn, cancel)

	logger.InfoContext(ctx, "room watch opened")
	for event := range stream.Events() {
		frame := roomWatchFrame{Type: frameTypeFor(event.Err)}
		if event.Err != nil {
			frame.Message = "failed to read the current room set"
		} else {
			frame.Rooms = toRoomDTOs(event.Docs)
		}
		if err := conn.WriteJSON(frame); err != nil {
			logger.InfoContext(ctx, "room watch closed", "error", err)
			return
		}
	}
	logger.InfoContext(ctx, "room watch closed")
}

// Bookings streams one room's bookings, re-emitted in full on every change.
// The caller must be a member of the room.
func (h *WatchHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := RoomIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Bookings", "principal_id", principal.UserID, "room_id", roomID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.service.WatchBookingsForRoom(ctx, principal, roomID)
	if err != nil {
		logger.ErrorContext(ctx, "booking watch rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	defer sub.Unsubscribe()

	conn, upgradeErr := upgrader.Upgrade(w, r, nil)
	if upgradeErr != nil {
		logger.ErrorContext(ctx, "websocket upgrade failed", "error", upgradeErr)
		return
	}
	defer conn.Close()

	go watchConnectionClose(conn, cancel)

	logger.InfoContext(ctx, "booking watch opened")
	for event := range sub.Events() {
		frame := bookingWatchFrame{Type: frameTypeFor(event.Err)}
		if event.Err != nil {
			frame.Message = "failed to read the current booking set"
		} else {
			frame.Bookings = toBookingDTOs(event.Docs)
		}
		if err := conn.WriteJSON(frame); err != nil {
			logger.InfoContext(ctx, "booking watch closed", "error", err)
			return
		}
	}
	logger.InfoContext(ctx, "booking watch closed")
}

// watchConnectionClose drains inbound frames so a client disconnect cancels
// the stream promptly. Inbound payloads are ignored; the watch endpoints are
// send-only.
func watchConnectionClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func frameTypeFor(err error) string {
	if err != nil {
		return "error"
	}
	return "snapshot"
}

type roomWatchFrame struct {
	Type    string    `json:"type"`
	Rooms   []roomDTO `json:"rooms,omitempty"`
	Message string    `json:"message,omitempty"`
}

type bookingWatchFrame struct {
	Type     string       `json:"type"`
	Bookings []bookingDTO `json:"bookings,omitempty"`
	Message  string       `json:"message,omitempty"`
}
