package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/idiom-relay/internal/application"
	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBytes = 64 << 10

type RoomLister interface {
	Rooms() []application.RoomStatus
}

// Injector feeds chat messages into the relay. Only the in-memory transport
// provides one.
type Injector interface {
	Inject(ctx context.Context, msg ports.InboundMessage) error
}

type standingView struct {
	Player    string `json:"player"`
	Score     int    `json:"score"`
	Successes int    `json:"successes"`
	Streak    int    `json:"streak"`
}

type roomView struct {
	Room             string         `json:"room"`
	GameID           string         `json:"game_id"`
	CurrentIdiom     string         `json:"current_idiom"`
	Rounds           int            `json:"rounds"`
	StartedAt        time.Time      `json:"started_at"`
	LastActivity     time.Time      `json:"last_activity"`
	RemainingSeconds int            `json:"remaining_seconds"`
	ReminderSent     bool           `json:"reminder_sent"`
	Standings        []standingView `json:"standings"`
}

type messageRequest struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

// NewRouter exposes health and live room state. injector may be nil.
func NewRouter(rooms RoomLister, injector Injector) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/rooms", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, toRoomViews(rooms.Rooms()))
		})

		api.Get("/rooms/{roomID}", func(w http.ResponseWriter, req *http.Request) {
			roomID := chi.URLParam(req, "roomID")
			for _, view := range toRoomViews(rooms.Rooms()) {
				if view.Room == roomID {
					respondJSON(w, http.StatusOK, view)
					return
				}
			}
			respondError(w, http.StatusNotFound, domain.ErrSessionNotFound.Error())
		})

		if injector != nil {
			api.Post("/messages", func(w http.ResponseWriter, req *http.Request) {
				var body messageRequest
				if err := json.NewDecoder(io.LimitReader(req.Body, maxRequestBytes)).Decode(&body); err != nil {
					respondError(w, http.StatusBadRequest, "invalid json body")
					return
				}
				if strings.TrimSpace(body.RoomID) == "" || strings.TrimSpace(body.SenderID) == "" {
					respondError(w, http.StatusBadRequest, "room_id and sender_id are required")
					return
				}

				err := injector.Inject(req.Context(), ports.InboundMessage{
					RoomID:   domain.RoomID(body.RoomID),
					SenderID: domain.PlayerID(body.SenderID),
					Content:  body.Content,
				})
				if err != nil {
					respondError(w, http.StatusBadGateway, "publish message failed")
					return
				}
				respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
			})
		}
	})

	return r
}

func toRoomViews(statuses []application.RoomStatus) []roomView {
	views := make([]roomView, 0, len(statuses))
	for _, status := range statuses {
		view := roomView{
			Room:             string(status.Room),
			GameID:           status.GameID,
			CurrentIdiom:     status.CurrentIdiom,
			Rounds:           status.Rounds,
			StartedAt:        status.StartedAt,
			LastActivity:     status.LastActivity,
			RemainingSeconds: int(status.Remaining / time.Second),
			ReminderSent:     status.ReminderSent,
			Standings:        []standingView{},
		}
		for _, s := range status.Standings {
			view.Standings = append(view.Standings, standingView{
				Player:    string(s.Player),
				Score:     s.Score,
				Successes: s.Successes,
				Streak:    s.Streak,
			})
		}
		views = append(views, view)
	}

	return views
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
