package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/room-booking/internal/persistence"
)

// RoomService orchestrates validation, authorization, and persistence for
// rooms and their memberships.
type RoomService struct {
	rooms       persistence.RoomRepository
	memberships persistence.MembershipRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRoomService constructs a room service with the provided dependencies.
func NewRoomService(rooms persistence.RoomRepository, memberships persistence.MembershipRepository, idGenerator func() string, now func() time.Time) *RoomService {
	return NewRoomServiceWithLogger(rooms, memberships, idGenerator, now, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger.
func NewRoomServiceWithLogger(rooms persistence.RoomRepository, memberships persistence.MembershipRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RoomService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RoomService{
		rooms:       rooms,
		memberships: memberships,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

// CreateRoom persists a new room and its creator's admin membership.
func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (room persistence.Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateRoom",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", room.ID).InfoContext(ctx, "room created")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := validateRoomInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	room = persistence.Room{
		ID:          s.idGenerator(),
		Name:        strings.TrimSpace(params.Input.Name),
		Description: normalizeOptionalString(params.Input.Description),
		CreatedBy:   params.Principal.UserID,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}

	if err = s.rooms.CreateRoom(ctx, room); err != nil {
		err = mapRoomRepoError(err)
		return
	}

	creatorID := params.Principal.UserID
	membership := persistence.Membership{
		ID:      s.idGenerator(),
		RoomID:  room.ID,
		UserID:  &creatorID,
		Email:   strings.ToLower(params.Principal.Email),
		Role:    persistence.RoleAdmin,
		AddedAt: createdAt,
	}
	if err = s.memberships.CreateMembership(ctx, membership); err != nil {
		// The room must not outlive a failed admin membership write.
		if delErr := s.rooms.DeleteRoom(ctx, room.ID); delErr != nil {
			logger.ErrorContext(ctx, "failed to roll back room after membership failure", "error", delErr)
		}
		err = mapMembershipRepoError(err)
		room = persistence.Room{}
		return
	}

	return
}

// GetRoom returns one room to any of its members.
func (s *RoomService) GetRoom(ctx context.Context, principal Principal, roomID string) (persistence.Room, error) {
	if s == nil {
		return persistence.Room{}, fmt.Errorf("RoomService is nil")
	}

	if _, ok, err := s.EffectiveRole(ctx, principal, roomID); err != nil {
		return persistence.Room{}, err
	} else if !ok {
		return persistence.Room{}, ErrUnauthorized
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return persistence.Room{}, mapRoomRepoError(err)
	}
	return room, nil
}

// UpdateRoom applies name and description changes for room admins.
func (s *RoomService) UpdateRoom(ctx context.Context, params UpdateRoomParams) (room persistence.Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateRoom",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room updated")
	}()

	if err = s.requireAdmin(ctx, params.Principal, params.RoomID); err != nil {
		return
	}

	var existing persistence.Room
	existing, err = s.rooms.GetRoom(ctx, params.RoomID)
	if err != nil {
		err = mapRoomRepoError(err)
		return
	}

	vErr := validateRoomInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	updated.Name = strings.TrimSpace(params.Input.Name)
	updated.Description = normalizeOptionalString(params.Input.Description)
	updated.UpdatedAt = s.now()

	if err = s.rooms.UpdateRoom(ctx, updated); err != nil {
		err = mapRoomRepoError(err)
		return
	}

	room = updated
	return
}

// DeleteRoom removes a room together with its memberships and bookings.
func (s *RoomService) DeleteRoom(ctx context.Context, principal Principal, roomID string) error {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteRoom",
		"principal_id", principal.UserID,
		"room_id", roomID,
	)

	if err := s.requireAdmin(ctx, principal, roomID); err != nil {
		logger.ErrorContext(ctx, "failed to delete room", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.rooms.DeleteRoom(ctx, roomID); err != nil {
		err = mapRoomRepoError(err)
		logger.ErrorContext(ctx, "failed to delete room", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "room deleted")
	return nil
}

// ListRoomsForUser returns the rooms visible to the principal, resolved from
// memberships matching either the stable user id or the contact address,
// deduplicated by room and ordered by name then id.
func (s *RoomService) ListRoomsForUser(ctx context.Context, principal Principal) (rooms []persistence.Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListRoomsForUser",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).InfoContext(ctx, "rooms listed")
	}()

	memberships, err := s.membershipsForIdentity(ctx, principal)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(memberships))
	for _, membership := range memberships {
		if _, ok := seen[membership.RoomID]; ok {
			continue
		}
		seen[membership.RoomID] = struct{}{}

		room, getErr := s.rooms.GetRoom(ctx, membership.RoomID)
		if errors.Is(getErr, persistence.ErrNotFound) {
			// Membership outlived its room; skip rather than fail the listing.
			continue
		}
		if getErr != nil {
			return nil, getErr
		}
		rooms = append(rooms, room)
	}

	SortRooms(rooms)
	return rooms, nil
}

// AddMember grants a user access to a room. Only room admins may invite.
func (s *RoomService) AddMember(ctx context.Context, params AddMemberParams) (membership persistence.Membership, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddMember",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("membership_id", membership.ID).InfoContext(ctx, "member added")
	}()

	if err = s.requireAdmin(ctx, params.Principal, params.RoomID); err != nil {
		return
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(params.Input.Email) == "" && params.Input.UserID == nil {
		vErr.add("email", "email or user id is required")
	}
	if !params.Input.Role.Valid() {
		vErr.add("role", "role must be admin or user")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	membership = persistence.Membership{
		ID:      s.idGenerator(),
		RoomID:  params.RoomID,
		UserID:  params.Input.UserID,
		Email:   strings.ToLower(strings.TrimSpace(params.Input.Email)),
		Role:    params.Input.Role,
		AddedAt: s.now(),
	}

	if err = s.memberships.CreateMembership(ctx, membership); err != nil {
		err = mapMembershipRepoError(err)
		membership = persistence.Membership{}
		return
	}

	return
}

// SetRole changes a member's role. Only room admins may do so, and the last
// admin membership cannot be demoted.
func (s *RoomService) SetRole(ctx context.Context, params SetRoleParams) (err error) {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}

	logger := s.loggerWith(ctx, "SetRole",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
		"membership_id", params.MembershipID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set role", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member role updated")
	}()

	if !params.Role.Valid() {
		vErr := &ValidationError{}
		vErr.add("role", "role must be admin or user")
		return vErr
	}

	if err = s.requireAdmin(ctx, params.Principal, params.RoomID); err != nil {
		return err
	}

	target, err := s.memberships.GetMembership(ctx, params.RoomID, params.MembershipID)
	if err != nil {
		return mapMembershipRepoError(err)
	}

	if target.Role == persistence.RoleAdmin && params.Role != persistence.RoleAdmin {
		if err = s.ensureNotLastAdmin(ctx, params.RoomID); err != nil {
			return err
		}
	}

	if err = s.memberships.UpdateMembershipRole(ctx, params.RoomID, params.MembershipID, params.Role); err != nil {
		return mapMembershipRepoError(err)
	}
	return nil
}

// RemoveMember revokes a membership. Only room admins may remove members,
// and the last admin membership cannot be removed.
func (s *RoomService) RemoveMember(ctx context.Context, params RemoveMemberParams) (err error) {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}

	logger := s.loggerWith(ctx, "RemoveMember",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
		"membership_id", params.MembershipID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member removed")
	}()

	if err = s.requireAdmin(ctx, params.Principal, params.RoomID); err != nil {
		return err
	}

	target, err := s.memberships.GetMembership(ctx, params.RoomID, params.MembershipID)
	if err != nil {
		return mapMembershipRepoError(err)
	}

	if target.Role == persistence.RoleAdmin {
		if err = s.ensureNotLastAdmin(ctx, params.RoomID); err != nil {
			return err
		}
	}

	if err = s.memberships.DeleteMembership(ctx, params.RoomID, params.MembershipID); err != nil {
		return mapMembershipRepoError(err)
	}
	return nil
}

// ListMembers returns a room's memberships to any of its members.
func (s *RoomService) ListMembers(ctx context.Context, principal Principal, roomID string) ([]persistence.Membership, error) {
	if s == nil {
		return nil, fmt.Errorf("RoomService is nil")
	}

	if _, ok, err := s.EffectiveRole(ctx, principal, roomID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrUnauthorized
	}

	members, err := s.memberships.ListMembershipsForRoom(ctx, roomID)
	if err != nil {
		return nil, mapMembershipRepoError(err)
	}
	return members, nil
}

// EffectiveRole resolves the principal's role within a room. When several
// membership rows match (an id match plus a stale email match), the highest
// privilege wins, keeping the resolution deterministic.
func (s *RoomService) EffectiveRole(ctx context.Context, principal Principal, roomID string) (persistence.Role, bool, error) {
	members, err := s.memberships.ListMembershipsForRoom(ctx, roomID)
	if err != nil {
		return "", false, mapMembershipRepoError(err)
	}

	var role persistence.Role
	found := false
	for _, membership := range members {
		if !MatchesIdentity(membership, principal.UserID, principal.Email) {
			continue
		}
		if !found || membership.Role == persistence.RoleAdmin {
			role = membership.Role
		}
		found = true
	}
	return role, found, nil
}

// MatchesIdentity reports whether a membership row references the given user
// by stable id or contact address.
func MatchesIdentity(membership persistence.Membership, userID, email string) bool {
	if userID != "" && membership.UserID != nil && *membership.UserID == userID {
		return true
	}
	if email != "" && membership.Email != "" && strings.EqualFold(membership.Email, email) {
		return true
	}
	return false
}

// SortRooms orders rooms by name, ties broken by id. The comparison is
// case-sensitive so emissions stay byte-stable across replicas.
func SortRooms(rooms []persistence.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Name == rooms[j].Name {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Name < rooms[j].Name
	})
}

func (s *RoomService) requireAdmin(ctx context.Context, principal Principal, roomID string) error {
	role, ok, err := s.EffectiveRole(ctx, principal, roomID)
	if err != nil {
		return err
	}
	if !ok || role != persistence.RoleAdmin {
		return ErrUnauthorized
	}
	return nil
}

func (s *RoomService) ensureNotLastAdmin(ctx context.Context, roomID string) error {
	members, err := s.memberships.ListMembershipsForRoom(ctx, roomID)
	if err != nil {
		return mapMembershipRepoError(err)
	}

	admins := 0
	for _, membership := range members {
		if membership.Role == persistence.RoleAdmin {
			admins++
		}
	}
	if admins <= 1 {
		vErr := &ValidationError{}
		vErr.add("role", "room must keep at least one admin")
		return vErr
	}
	return nil
}

func (s *RoomService) membershipsForIdentity(ctx context.Context, principal Principal) ([]persistence.Membership, error) {
	var merged []persistence.Membership
	seen := make(map[string]struct{})

	if principal.UserID != "" {
		byID, err := s.memberships.ListMembershipsByUserID(ctx, principal.UserID)
		if err != nil {
			return nil, mapMembershipRepoError(err)
		}
		for _, membership := range byID {
			seen[membership.ID] = struct{}{}
			merged = append(merged, membership)
		}
	}

	if principal.Email != "" {
		byEmail, err := s.memberships.ListMembershipsByEmail(ctx, principal.Email)
		if err != nil {
			return nil, mapMembershipRepoError(err)
		}
		for _, membership := range byEmail {
			if _, ok := seen[membership.ID]; ok {
				continue
			}
			merged = append(merged, membership)
		}
	}

	return merged, nil
}

func validateRoomInput(input RoomInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	return vErr
}

func mapRoomRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("name", "name is required")
		return vErr
	}
	return err
}

func mapMembershipRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("role", "role must be admin or user")
		return vErr
	}
	return err
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
