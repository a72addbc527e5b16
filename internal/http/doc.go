// Package http provides HTTP handlers and middleware for the room booking API.
//
// The router exposes the following endpoints:
//   - GET /rooms, POST /rooms, GET /rooms/{id}, PUT /rooms/{id}, DELETE /rooms/{id}:
//     room management endpoints exchanging the `roomDTO` payload defined in
//     room_handler.go. Listing returns only rooms the caller belongs to; mutations
//     on an existing room require the admin role in that room.
//   - GET /rooms/{id}/members, POST /rooms/{id}/members, PUT /rooms/{id}/members/{mid},
//     DELETE /rooms/{id}/members/{mid}: membership endpoints exchanging the
//     `memberDTO` payload defined in member_handler.go. All mutations require the
//     admin role; a room can never lose its last admin.
//   - GET /rooms/{id}/bookings, POST /rooms/{id}/bookings, PATCH /rooms/{id}/bookings/{bid},
//     DELETE /rooms/{id}/bookings/{bid}: booking endpoints exchanging the `bookingDTO`
//     payload defined in booking_handler.go. Overlapping bookings are rejected with
//     409 and the SCHEDULING_CONFLICT error code.
//   - GET /watch/rooms, GET /watch/rooms/{id}/bookings: websocket endpoints streaming
//     full result-set snapshots on every change, defined in watch_handler.go.
//
// All endpoints require a bearer token; RequireIdentity resolves it into the
// principal the handlers read from the request context. Request/response DTOs
// live alongside their respective handlers so tests and documentation share the
// same ground truth.
package http
