package http

import (
	"net/http"
	"strings"
)

// RouterConfig wires the handlers and middleware the router dispatches to.
type RouterConfig struct {
	Rooms      *RoomHandler
	Members    *MemberHandler
	Bookings   *BookingHandler
	Watch      *WatchHandler
	Middleware []func(http.Handler) http.Handler
}

// NewRouter builds the HTTP routing table. Room scoped resources nest under
// /rooms/{id}; live streams live under /watch.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Rooms != nil {
		mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Rooms.List(w, r)
			case http.MethodPost:
				cfg.Rooms.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
			segments := splitPath(strings.TrimPrefix(r.URL.Path, "/rooms/"))
			if len(segments) == 0 {
				http.NotFound(w, r)
				return
			}

			r = r.WithContext(ContextWithRoomID(r.Context(), segments[0]))

			switch {
			case len(segments) == 1:
				switch r.Method {
				case http.MethodGet:
					cfg.Rooms.Get(w, r)
				case http.MethodPut:
					cfg.Rooms.Update(w, r)
				case http.MethodDelete:
					cfg.Rooms.Delete(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
				}
			case segments[1] == "members" && cfg.Members != nil:
				switch {
				case len(segments) == 2:
					switch r.Method {
					case http.MethodGet:
						cfg.Members.List(w, r)
					case http.MethodPost:
						cfg.Members.Add(w, r)
					default:
						methodNotAllowed(w, http.MethodGet, http.MethodPost)
					}
				case len(segments) == 3:
					r = r.WithContext(ContextWithMembershipID(r.Context(), segments[2]))
					switch r.Method {
					case http.MethodPut:
						cfg.Members.SetRole(w, r)
					case http.MethodDelete:
						cfg.Members.Remove(w, r)
					default:
						methodNotAllowed(w, http.MethodPut, http.MethodDelete)
					}
				default:
					http.NotFound(w, r)
				}
			case segments[1] == "bookings" && cfg.Bookings != nil:
				switch {
				case len(segments) == 2:
					switch r.Method {
					case http.MethodGet:
						cfg.Bookings.List(w, r)
					case http.MethodPost:
						cfg.Bookings.Create(w, r)
					default:
						methodNotAllowed(w, http.MethodGet, http.MethodPost)
					}
				case len(segments) == 3:
					r = r.WithContext(ContextWithBookingID(r.Context(), segments[2]))
					switch r.Method {
					case http.MethodPatch:
						cfg.Bookings.Update(w, r)
					case http.MethodDelete:
						cfg.Bookings.Delete(w, r)
					default:
						methodNotAllowed(w, http.MethodPatch, http.MethodDelete)
					}
				default:
					http.NotFound(w, r)
				}
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Watch != nil {
		mux.HandleFunc("/watch/rooms", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Watch.Rooms(w, r)
		})
		mux.HandleFunc("/watch/rooms/", func(w http.ResponseWriter, r *http.Request) {
			segments := splitPath(strings.TrimPrefix(r.URL.Path, "/watch/rooms/"))
			if len(segments) != 2 || segments[1] != "bookings" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			r = r.WithContext(ContextWithRoomID(r.Context(), segments[0]))
			cfg.Watch.Bookings(w, r)
		})
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
