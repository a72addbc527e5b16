package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/room-booking/internal/application"
	"github.com/example/room-booking/internal/persistence"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (persistence.Booking, error)
	UpdateBooking(ctx context.Context, params application.UpdateBookingParams) (persistence.Booking, error)
	DeleteBooking(ctx context.Context, params application.DeleteBookingParams) error
	ListBookings(ctx context.Context, principal application.Principal, roomID string) ([]persistence.Booking, error)
}

// BookingHandler serves the /rooms/{id}/bookings resource.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

// NewBookingHandler constructs a booking handler.
func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

// List responds with a room's bookings ordered by start time.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
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
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID, "room_id", roomID)

	bookings, err := h.service.ListBookings(r.Context(), principal, roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingListResponse{Bookings: toBookingDTOs(bookings)})
}

// Create reserves a time slot.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "room_id", roomID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "room_id", roomID)

	booking, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{
		Principal: principal,
		RoomID:    roomID,
		Input:     input,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "booking creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("booking_id", booking.ID).InfoContext(r.Context(), "booking created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

// Update applies a partial patch to a booking.
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := RoomIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return
	}
	bookingID, ok := BookingIDFromContext(r.Context())
	if !ok || strings.TrimSpace(bookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req bookingPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "room_id", roomID, "booking_id", bookingID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode booking patch", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "room_id", roomID, "booking_id", bookingID)

	booking, err := h.service.UpdateBooking(r.Context(), application.UpdateBookingParams{
		Principal: principal,
		RoomID:    roomID,
		BookingID: bookingID,
		Patch:     patch,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "booking update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

// Delete removes a booking.
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := RoomIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return
	}
	bookingID, ok := BookingIDFromContext(r.Context())
	if !ok || strings.TrimSpace(bookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "room_id", roomID, "booking_id", bookingID)

	if err := h.service.DeleteBooking(r.Context(), application.DeleteBookingParams{
		Principal: principal,
		RoomID:    roomID,
		BookingID: bookingID,
	}); err != nil {
		logger.ErrorContext(r.Context(), "booking deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type bookingRequest struct {
	Start       string  `json:"start"`
	End         string  `json:"end"`
	Description *string `json:"description,omitempty"`
}

func (r bookingRequest) toInput() (application.BookingInput, error) {
	start, err := parseTimestamp(r.Start, "start")
	if err != nil {
		return application.BookingInput{}, err
	}
	end, err := parseTimestamp(r.End, "end")
	if err != nil {
		return application.BookingInput{}, err
	}
	return application.BookingInput{
		Start:       start,
		End:         end,
		Description: r.Description,
	}, nil
}

type bookingPatchRequest struct {
	Start       *string `json:"start,omitempty"`
	End         *string `json:"end,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r bookingPatchRequest) toPatch() (application.BookingPatch, error) {
	patch := application.BookingPatch{Description: r.Description}
	if r.Start != nil {
		start, err := parseTimestamp(*r.Start, "start")
		if err != nil {
			return application.BookingPatch{}, err
		}
		patch.Start = &start
	}
	if r.End != nil {
		end, err := parseTimestamp(*r.End, "end")
		if err != nil {
			return application.BookingPatch{}, err
		}
		patch.End = &end
	}
	return patch, nil
}

func parseTimestamp(value, field string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &timestampError{field: field}
	}
	return parsed.UTC(), nil
}

type timestampError struct {
	field string
}

func (e *timestampError) Error() string {
	return e.field + " must be an RFC 3339 timestamp"
}

type bookingDTO struct {
	ID          string  `json:"id"`
	RoomID      string  `json:"room_id"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	Description *string `json:"description,omitempty"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

type bookingListResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

func toBookingDTO(booking persistence.Booking) bookingDTO {
	return bookingDTO{
		ID:          booking.ID,
		RoomID:      booking.RoomID,
		Start:       booking.Start.UTC().Format(time.RFC3339),
		End:         booking.End.UTC().Format(time.RFC3339),
		Description: booking.Description,
		CreatedBy:   booking.CreatedBy,
		CreatedAt:   booking.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   booking.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingDTOs(bookings []persistence.Booking) []bookingDTO {
	dtos := make([]bookingDTO, 0, len(bookings))
	for _, booking := range bookings {
		dtos = append(dtos, toBookingDTO(booking))
	}
	return dtos
}
