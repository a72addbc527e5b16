package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/room-booking/internal/application"
	"github.com/example/room-booking/internal/identity"
	"github.com/example/room-booking/internal/livequery"
	"github.com/example/room-booking/internal/testfixtures"
)

const (
	adminToken    = "token-admin"
	memberToken   = "token-member"
	strangerToken = "token-stranger"
)

type stubVerifier struct {
	principals map[string]identity.Principal
}

func (s stubVerifier) FromAuthorizationHeader(header string) (identity.Principal, error) {
	token := strings.TrimPrefix(header, "Bearer ")
	principal, ok := s.principals[token]
	if !ok {
		return identity.Principal{}, identity.ErrInvalidToken
	}
	return principal, nil
}

type handlerTestEnv struct {
	handler http.Handler
	store   *testfixtures.MemoryStore
	clock   *testfixtures.Clock
}

func newHandlerTestEnv(t *testing.T) *handlerTestEnv {
	t.Helper()

	feed := livequery.NewBus()
	store := testfixtures.NewMemoryStore(feed)
	ids := testfixtures.NewIDGenerator("id")
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rooms := application.NewRoomServiceWithLogger(store, store, ids.NextFunc(), clock.NowFunc(), logger)
	bookings := application.NewBookingServiceWithLogger(store, rooms, ids.NextFunc(), clock.NowFunc(), logger)
	watch := application.NewWatchServiceWithLogger(feed, store, store, store, logger)

	verifier := stubVerifier{principals: map[string]identity.Principal{
		adminToken:    {UserID: "user-admin", Email: "admin@example.com"},
		memberToken:   {UserID: "user-member", Email: "member@example.com"},
		strangerToken: {UserID: "user-stranger", Email: "stranger@example.com"},
	}}

	handler := NewRouter(RouterConfig{
		Rooms:    NewRoomHandler(rooms, logger),
		Members:  NewMemberHandler(rooms, logger),
		Bookings: NewBookingHandler(bookings, logger),
		Watch:    NewWatchHandler(watch, logger),
		Middleware: []func(http.Handler) http.Handler{
			RequestLogger(logger),
			RequireIdentity(verifier, logger),
		},
	})

	return &handlerTestEnv{handler: handler, store: store, clock: clock}
}

func (env *handlerTestEnv) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal request payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, req)
	return recorder
}

func (env *handlerTestEnv) doRaw(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()

	var payload T
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response body %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func (env *handlerTestEnv) createRoom(t *testing.T, token, name string) roomDTO {
	t.Helper()

	recorder := env.do(t, http.MethodPost, "/rooms", token, map[string]string{"name": name})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("room creation returned status %d: %s", recorder.Code, recorder.Body.String())
	}
	return decodeBody[roomResponse](t, recorder).Room
}

func (env *handlerTestEnv) addMember(t *testing.T, token, roomID, email, role string) memberDTO {
	t.Helper()

	recorder := env.do(t, http.MethodPost, "/rooms/"+roomID+"/members", token, map[string]string{"email": email, "role": role})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("member addition returned status %d: %s", recorder.Code, recorder.Body.String())
	}
	return decodeBody[memberResponse](t, recorder).Member
}

func slotBody(startHour, endHour int) map[string]string {
	day := testfixtures.ReferenceTime().Truncate(24 * time.Hour)
	return map[string]string{
		"start": day.Add(time.Duration(startHour) * time.Hour).Format(time.RFC3339),
		"end":   day.Add(time.Duration(endHour) * time.Hour).Format(time.RFC3339),
	}
}

func TestRouter_Authentication(t *testing.T) {
	t.Parallel()

	env := newHandlerTestEnv(t)

	t.Run("rejects requests without an authorization header", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/rooms", "", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
		body := decodeBody[errorResponse](t, recorder)
		if body.Message != "a bearer token is required" {
			t.Fatalf("unexpected message %q", body.Message)
		}
	})

	t.Run("rejects unknown bearer tokens", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/rooms", "token-unknown", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
	})
}

func TestRoomHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create returns the room and makes the creator an admin", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "War Room")
		if room.Name != "War Room" {
			t.Fatalf("unexpected room name %q", room.Name)
		}
		if room.CreatedBy != "user-admin" {
			t.Fatalf("unexpected creator %q", room.CreatedBy)
		}

		recorder := env.do(t, http.MethodGet, "/rooms/"+room.ID+"/members", adminToken, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200 listing members, got %d", recorder.Code)
		}
		members := decodeBody[memberListResponse](t, recorder).Members
		if len(members) != 1 || members[0].Role != "admin" || members[0].Email != "admin@example.com" {
			t.Fatalf("unexpected creator membership %+v", members)
		}
	})

	t.Run("create rejects a blank name with a field error", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		recorder := env.do(t, http.MethodPost, "/rooms", adminToken, map[string]string{"name": "   "})
		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", recorder.Code)
		}
		body := decodeBody[errorResponse](t, recorder)
		if body.Errors["name"] == "" {
			t.Fatalf("expected a name field error, got %+v", body.Errors)
		}
	})

	t.Run("create rejects a malformed body", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		recorder := env.doRaw(t, http.MethodPost, "/rooms", adminToken, "{not json")
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
	})

	t.Run("get hides rooms from non-members", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Hidden")

		recorder := env.do(t, http.MethodGet, "/rooms/"+room.ID, strangerToken, nil)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", recorder.Code)
		}
		body := decodeBody[errorResponse](t, recorder)
		if body.ErrorCode != "AUTH_FORBIDDEN" {
			t.Fatalf("unexpected error code %q", body.ErrorCode)
		}
	})

	t.Run("update requires the admin role", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Before")
		env.addMember(t, adminToken, room.ID, "member@example.com", "user")

		recorder := env.do(t, http.MethodPut, "/rooms/"+room.ID, memberToken, map[string]string{"name": "After"})
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for non-admin, got %d", recorder.Code)
		}

		recorder = env.do(t, http.MethodPut, "/rooms/"+room.ID, adminToken, map[string]string{"name": "After"})
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200 for admin, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if got := decodeBody[roomResponse](t, recorder).Room.Name; got != "After" {
			t.Fatalf("expected renamed room, got %q", got)
		}
	})

	t.Run("delete removes the room and its memberships", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Doomed")
		env.addMember(t, adminToken, room.ID, "member@example.com", "user")

		recorder := env.do(t, http.MethodDelete, "/rooms/"+room.ID, memberToken, nil)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for non-admin, got %d", recorder.Code)
		}

		recorder = env.do(t, http.MethodDelete, "/rooms/"+room.ID, adminToken, nil)
		if recorder.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", recorder.Code)
		}

		recorder = env.do(t, http.MethodGet, "/rooms/"+room.ID, adminToken, nil)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403 after deletion, got %d", recorder.Code)
		}
	})

	t.Run("list returns only the caller's rooms", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		mine := env.createRoom(t, adminToken, "Mine")
		env.createRoom(t, strangerToken, "Theirs")

		recorder := env.do(t, http.MethodGet, "/rooms", adminToken, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		rooms := decodeBody[roomListResponse](t, recorder).Rooms
		if len(rooms) != 1 || rooms[0].ID != mine.ID {
			t.Fatalf("unexpected room list %+v", rooms)
		}
	})

	t.Run("unsupported methods receive 405 with an Allow header", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		recorder := env.do(t, http.MethodPatch, "/rooms", adminToken, nil)
		if recorder.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", recorder.Code)
		}
		if allow := recorder.Header().Get("Allow"); !strings.Contains(allow, http.MethodPost) {
			t.Fatalf("expected Allow header to list POST, got %q", allow)
		}
	})

	t.Run("unknown nested paths receive 404", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Deep")
		recorder := env.do(t, http.MethodGet, "/rooms/"+room.ID+"/unknown", adminToken, nil)
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", recorder.Code)
		}
	})
}

func TestMemberHandlers(t *testing.T) {
	t.Parallel()

	t.Run("add stores the email lowercased", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Shared")
		member := env.addMember(t, adminToken, room.ID, "Casey@Example.COM", "user")
		if member.Email != "casey@example.com" {
			t.Fatalf("expected lowercased email, got %q", member.Email)
		}
	})

	t.Run("add rejects non-admin callers", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Shared")
		env.addMember(t, adminToken, room.ID, "member@example.com", "user")

		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/members", memberToken, map[string]string{"email": "casey@example.com", "role": "user"})
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", recorder.Code)
		}
	})

	t.Run("add rejects a duplicate email", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Shared")
		env.addMember(t, adminToken, room.ID, "casey@example.com", "user")

		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/members", adminToken, map[string]string{"email": "CASEY@example.com", "role": "user"})
		if recorder.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", recorder.Code)
		}
	})

	t.Run("add rejects an unknown role", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Shared")
		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/members", adminToken, map[string]string{"email": "casey@example.com", "role": "owner"})
		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", recorder.Code)
		}
		body := decodeBody[errorResponse](t, recorder)
		if body.Errors["role"] == "" {
			t.Fatalf("expected a role field error, got %+v", body.Errors)
		}
	})

	t.Run("set role refuses to demote the last admin", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Shared")

		recorder := env.do(t, http.MethodGet, "/rooms/"+room.ID+"/members", adminToken, nil)
		members := decodeBody[memberListResponse](t, recorder).Members
		if len(members) != 1 {
			t.Fatalf("expected a single creator membership, got %+v", members)
		}

		recorder = env.do(t, http.MethodPut, "/rooms/"+room.ID+"/members/"+members[0].ID, adminToken, map[string]string{"role": "user"})
		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", recorder.Code, recorder.Body.String())
		}
	})

	t.Run("remove deletes a regular member", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Shared")
		member := env.addMember(t, adminToken, room.ID, "member@example.com", "user")

		recorder := env.do(t, http.MethodDelete, "/rooms/"+room.ID+"/members/"+member.ID, adminToken, nil)
		if recorder.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d: %s", recorder.Code, recorder.Body.String())
		}

		recorder = env.do(t, http.MethodGet, "/rooms/"+room.ID+"/members", memberToken, nil)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for the removed member, got %d", recorder.Code)
		}
	})

	t.Run("remove refuses to delete the last admin", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Shared")
		recorder := env.do(t, http.MethodGet, "/rooms/"+room.ID+"/members", adminToken, nil)
		members := decodeBody[memberListResponse](t, recorder).Members

		recorder = env.do(t, http.MethodDelete, "/rooms/"+room.ID+"/members/"+members[0].ID, adminToken, nil)
		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", recorder.Code)
		}
	})
}

func TestBookingHandlers(t *testing.T) {
	t.Parallel()

	t.Run("members can create and list bookings", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		env.addMember(t, adminToken, room.ID, "member@example.com", "user")

		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", memberToken, slotBody(9, 10))
		if recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
		}
		booking := decodeBody[bookingResponse](t, recorder).Booking
		if booking.CreatedBy != "user-member" || booking.RoomID != room.ID {
			t.Fatalf("unexpected booking %+v", booking)
		}

		recorder = env.do(t, http.MethodGet, "/rooms/"+room.ID+"/bookings", memberToken, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if bookings := decodeBody[bookingListResponse](t, recorder).Bookings; len(bookings) != 1 {
			t.Fatalf("expected one booking, got %+v", bookings)
		}
	})

	t.Run("non-members cannot list bookings", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		recorder := env.do(t, http.MethodGet, "/rooms/"+room.ID+"/bookings", strangerToken, nil)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", recorder.Code)
		}
	})

	t.Run("overlapping bookings are rejected with a conflict code", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		if recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, slotBody(9, 11)); recorder.Code != http.StatusCreated {
			t.Fatalf("seed booking returned %d", recorder.Code)
		}

		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, slotBody(10, 12))
		if recorder.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", recorder.Code)
		}
		if body := decodeBody[errorResponse](t, recorder); body.ErrorCode != "SCHEDULING_CONFLICT" {
			t.Fatalf("unexpected error code %q", body.ErrorCode)
		}
	})

	t.Run("back to back bookings are allowed", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		if recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, slotBody(9, 10)); recorder.Code != http.StatusCreated {
			t.Fatalf("seed booking returned %d", recorder.Code)
		}
		if recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, slotBody(10, 11)); recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201 for adjacent slot, got %d", recorder.Code)
		}
	})

	t.Run("inverted ranges are rejected with the range code", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, slotBody(11, 9))
		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", recorder.Code)
		}
		if body := decodeBody[errorResponse](t, recorder); body.ErrorCode != "INVALID_RANGE" {
			t.Fatalf("unexpected error code %q", body.ErrorCode)
		}
	})

	t.Run("unparseable timestamps are a bad request", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, map[string]string{"start": "tomorrow", "end": "later"})
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
		}
	})

	t.Run("patch updates only the provided fields", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, slotBody(9, 10))
		booking := decodeBody[bookingResponse](t, recorder).Booking

		recorder = env.do(t, http.MethodPatch, "/rooms/"+room.ID+"/bookings/"+booking.ID, adminToken, map[string]string{"description": "standup"})
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		patched := decodeBody[bookingResponse](t, recorder).Booking
		if patched.Description == nil || *patched.Description != "standup" {
			t.Fatalf("expected patched description, got %+v", patched.Description)
		}
		if patched.Start != booking.Start || patched.End != booking.End {
			t.Fatalf("expected the slot to be preserved, got %+v", patched)
		}
	})

	t.Run("members cannot modify other people's bookings", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		env.addMember(t, adminToken, room.ID, "member@example.com", "user")

		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, slotBody(9, 10))
		booking := decodeBody[bookingResponse](t, recorder).Booking

		recorder = env.do(t, http.MethodPatch, "/rooms/"+room.ID+"/bookings/"+booking.ID, memberToken, map[string]string{"description": "mine now"})
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for patch, got %d", recorder.Code)
		}

		recorder = env.do(t, http.MethodDelete, "/rooms/"+room.ID+"/bookings/"+booking.ID, memberToken, nil)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for delete, got %d", recorder.Code)
		}
	})

	t.Run("creators can delete their bookings", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Bookable")
		recorder := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/bookings", adminToken, slotBody(9, 10))
		booking := decodeBody[bookingResponse](t, recorder).Booking

		recorder = env.do(t, http.MethodDelete, "/rooms/"+room.ID+"/bookings/"+booking.ID, adminToken, nil)
		if recorder.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", recorder.Code)
		}

		recorder = env.do(t, http.MethodDelete, "/rooms/"+room.ID+"/bookings/"+booking.ID, adminToken, nil)
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for a repeated delete, got %d", recorder.Code)
		}
	})
}

func TestWatchHandlers(t *testing.T) {
	t.Parallel()

	t.Run("booking watch rejects non-members before upgrading", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		room := env.createRoom(t, adminToken, "Watched")
		recorder := env.do(t, http.MethodGet, "/watch/rooms/"+room.ID+"/bookings", strangerToken, nil)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d: %s", recorder.Code, recorder.Body.String())
		}
	})

	t.Run("watch endpoints only accept GET", func(t *testing.T) {
		t.Parallel()
		env := newHandlerTestEnv(t)

		recorder := env.do(t, http.MethodPost, "/watch/rooms", adminToken, nil)
		if recorder.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", recorder.Code)
		}
	})
}
