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

type memberService interface {
	AddMember(ctx context.Context, params application.AddMemberParams) (persistence.Membership, error)
	SetRole(ctx context.Context, params application.SetRoleParams) error
	RemoveMember(ctx context.Context, params application.RemoveMemberParams) error
	ListMembers(ctx context.Context, principal application.Principal, roomID string) ([]persistence.Membership, error)
}

// MemberHandler serves the /rooms/{id}/members resource.
type MemberHandler struct {
	service   memberService
	responder responder
	logger    *slog.Logger
}

// NewMemberHandler constructs a member handler.
func NewMemberHandler(service memberService, logger *slog.Logger) *MemberHandler {
	base := defaultLogger(logger)
	return &MemberHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MemberHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MemberHandler", operation, attrs...)
}

// List responds with a room's memberships.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
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

	members, err := h.service.ListMembers(r.Context(), principal, roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "member listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, memberListResponse{Members: toMemberDTOs(members)})
}

// Add invites a user into a room.
func (h *MemberHandler) Add(w http.ResponseWriter, r *http.Request) {
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

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Add", "principal_id", principal.UserID, "room_id", roomID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode member request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Add", "principal_id", principal.UserID, "room_id", roomID)

	membership, err := h.service.AddMember(r.Context(), application.AddMemberParams{
		Principal: principal,
		RoomID:    roomID,
		Input: application.MemberInput{
			UserID: req.UserID,
			Email:  req.Email,
			Role:   persistence.Role(req.Role),
		},
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "member addition failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("membership_id", membership.ID).InfoContext(r.Context(), "member added")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, memberResponse{Member: toMemberDTO(membership)})
}

// SetRole changes a member's role.
func (h *MemberHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := RoomIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return
	}
	membershipID, ok := MembershipIDFromContext(r.Context())
	if !ok || strings.TrimSpace(membershipID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMemberID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "SetRole", "principal_id", principal.UserID, "room_id", roomID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode role request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SetRole", "principal_id", principal.UserID, "room_id", roomID, "membership_id", membershipID)

	if err := h.service.SetRole(r.Context(), application.SetRoleParams{
		Principal:    principal,
		RoomID:       roomID,
		MembershipID: membershipID,
		Role:         persistence.Role(req.Role),
	}); err != nil {
		logger.ErrorContext(r.Context(), "role change failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member role updated")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Remove revokes a membership.
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := RoomIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return
	}
	membershipID, ok := MembershipIDFromContext(r.Context())
	if !ok || strings.TrimSpace(membershipID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMemberID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Remove", "principal_id", principal.UserID, "room_id", roomID, "membership_id", membershipID)

	if err := h.service.RemoveMember(r.Context(), application.RemoveMemberParams{
		Principal:    principal,
		RoomID:       roomID,
		MembershipID: membershipID,
	}); err != nil {
		logger.ErrorContext(r.Context(), "member removal failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member removed")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type memberRequest struct {
	UserID *string `json:"user_id,omitempty"`
	Email  string  `json:"email"`
	Role   string  `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type memberDTO struct {
	ID      string  `json:"id"`
	RoomID  string  `json:"room_id"`
	UserID  *string `json:"user_id,omitempty"`
	Email   string  `json:"email,omitempty"`
	Role    string  `json:"role"`
	AddedAt string  `json:"added_at"`
}

type memberResponse struct {
	Member memberDTO `json:"member"`
}

type memberListResponse struct {
	Members []memberDTO `json:"members"`
}

func toMemberDTO(membership persistence.Membership) memberDTO {
	return memberDTO{
		ID:      membership.ID,
		RoomID:  membership.RoomID,
		UserID:  membership.UserID,
		Email:   membership.Email,
		Role:    string(membership.Role),
		AddedAt: membership.AddedAt.UTC().Format(time.RFC3339),
	}
}

func toMemberDTOs(members []persistence.Membership) []memberDTO {
	dtos := make([]memberDTO, 0, len(members))
	for _, membership := range members {
		dtos = append(dtos, toMemberDTO(membership))
	}
	return dtos
}
