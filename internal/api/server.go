package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/config"
	"github.com/ummatics/impact-monitor/internal/ingest"
	"github.com/ummatics/impact-monitor/internal/models"
	"github.com/ummatics/impact-monitor/internal/store"
)

const tokenTTL = 24 * time.Hour

// Server exposes the read-only dashboard API plus health and trigger
// endpoints. Dashboard routes require a bearer token obtained from the
// auth endpoint with the shared dashboard password.
type Server struct {
	config  *config.Config
	store   *store.Store
	service *ingest.Service

	tokenMu sync.Mutex
	tokens  map[string]time.Time
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, st *store.Store, service *ingest.Service) *Server {
	return &Server{
		config:  cfg,
		store:   st,
		service: service,
		tokens:  make(map[string]time.Time),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/trigger", s.handleTrigger).Methods("POST")
	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	router.HandleFunc("/api/auth", s.handleAuth).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/overview", s.handleOverview).Methods("GET")
	api.HandleFunc("/social", s.handleSocial).Methods("GET")
	api.HandleFunc("/sentiment", s.handleSentiment).Methods("GET")
	api.HandleFunc("/citations", s.handleCitations).Methods("GET")
	api.HandleFunc("/news", s.handleNews).Methods("GET")

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	go func() {
		if _, err := s.service.Run(context.Background()); err != nil {
			logrus.Errorf("Manual ingestion trigger failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Ingestion run triggered"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	report := s.service.LastRun()
	if report == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no runs completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type authRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if s.config.DashboardPassword == "" {
		writeError(w, http.StatusServiceUnavailable, "dashboard access is not configured")
		return
	}

	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.config.DashboardPassword)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, expires, err := s.issueToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token:     token,
		ExpiresAt: expires.Format(time.RFC3339),
	})
}

func (s *Server) issueToken() (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, err
	}
	token := hex.EncodeToString(raw)
	expires := time.Now().Add(tokenTTL)

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	for t, exp := range s.tokens {
		if time.Now().After(exp) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = expires
	return token, expires, nil
}

func (s *Server) validToken(token string) bool {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	exp, ok := s.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(s.tokens, token)
		return false
	}
	return true
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || !s.validToken(token) {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type overviewResponse struct {
	TotalMentions  int                     `json:"total_mentions"`
	TotalCitations int                     `json:"total_citations"`
	Followers      *float64                `json:"followers,omitempty"`
	WeeklyTrend    []models.WeeklySnapshot `json:"weekly_trend"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := s.store.CountMentions(ctx, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	citations, err := s.store.TotalCitations(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snapshots, err := s.store.WeeklySnapshots(ctx, 12)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := overviewResponse{
		TotalMentions:  total,
		TotalCitations: citations,
		WeeklyTrend:    snapshots,
	}
	if followers, err := s.store.LatestMetric(ctx, models.PlatformTwitter, models.MetricAudienceSize); err == nil && followers != nil {
		resp.Followers = &followers.Value
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSocial(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	mentions, err := s.store.RecentMentions(r.Context(), platform, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	buckets, err := s.store.DailyBuckets(r.Context(), platform, 30)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mentions": mentions, "daily": buckets})
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	limit := queryInt(r, "limit", 30)

	buckets, err := s.store.DailyBuckets(r.Context(), platform, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily": buckets})
}

func (s *Server) handleCitations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 25)

	var (
		citations []models.Citation
		err       error
	)
	if r.URL.Query().Get("sort") == "recent" {
		citations, err = s.store.RecentCitations(r.Context(), limit)
	} else {
		citations, err = s.store.TopCitations(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total, err := s.store.TotalCitations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"citations": citations, "total_cited_by": total})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	mentions, err := s.store.RecentMentions(r.Context(), models.PlatformNews, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mentions": mentions})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
