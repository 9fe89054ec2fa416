package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"betmirror/application"
	"betmirror/domain/entities"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Transitions submits and mirrors bet actions
type Transitions interface {
	Execute(ctx context.Context, req application.TransitionRequest) (*application.TransitionResult, error)
	Create(ctx context.Context, req application.CreateRequest) (*application.TransitionResult, error)
}

// Queries reads the mirror
type Queries interface {
	List(ctx context.Context, q application.BetQuery) ([]application.BetView, error)
	Get(ctx context.Context, betNumber int64, viewer entities.Identity) (*application.BetView, error)
	Notifications(ctx context.Context, betNumber int64) ([]*entities.NotificationLogEntry, error)
}

// Reconciliation brings a mirrored bet up to the chain's state
type Reconciliation interface {
	Reconcile(ctx context.Context, betNumber int64) (*entities.Bet, error)
}

// Server holds dependencies for HTTP handlers
type Server struct {
	transitions Transitions
	queries     Queries
	reconciler  Reconciliation
}

// NewServer creates a Server
func NewServer(transitions Transitions, queries Queries, reconciler Reconciliation) *Server {
	return &Server{transitions: transitions, queries: queries, reconciler: reconciler}
}

// Router builds the HTTP router. Write endpoints have no request timeout of
// their own; they are bounded by the chain confirmation timeout.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)

	r.Route("/v1/bets", func(r chi.Router) {
		r.With(middleware.Timeout(15*time.Second)).Get("/", s.listBets)
		r.Post("/", s.createBet)

		r.Route("/{betNumber}", func(r chi.Router) {
			r.With(middleware.Timeout(15*time.Second)).Get("/", s.getBet)
			r.With(middleware.Timeout(15*time.Second)).Get("/notifications", s.listNotifications)
			r.Post("/transitions", s.transitionBet)
			r.Post("/reconcile", s.reconcileBet)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start),
			"requestId": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseBetNumber(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "betNumber"), 10, 64)
}

// viewerFromQuery reads the viewing identity from viewer_address and viewer_fid
func viewerFromQuery(r *http.Request) (entities.Identity, error) {
	q := r.URL.Query()
	viewer := entities.Identity{Address: q.Get("viewer_address")}
	if raw := q.Get("viewer_fid"); raw != "" {
		fid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return viewer, err
		}
		viewer.FID = &fid
	}
	return viewer, nil
}
