package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fruitbot/internal/auth"
	"fruitbot/internal/config"
	"fruitbot/internal/game"
	"fruitbot/internal/ledger"
	"fruitbot/internal/metrics"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	PlayerID string
	Username string
	Admin    bool
}

type Server struct {
	cfg     config.APIConfig
	log     *zap.Logger
	auth    *auth.Issuer
	game    *game.Service
	metrics *metrics.Metrics
	mux     *chi.Mux
}

func New(cfg config.APIConfig, logger *zap.Logger, issuer *auth.Issuer, gameSvc *game.Service, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger.Named("api"),
		auth:    issuer,
		game:    gameSvc,
		metrics: m,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/token", s.handleIssueToken)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/pulls", s.handlePulls)
			r.Get("/balance", s.handleBalance)
			r.Post("/income/passive", s.handlePassiveIncome)
			r.Post("/income/manual", s.handleManualIncome)
			r.Get("/pity", s.handlePity)
			r.Get("/collection", s.handleCollection)
			r.Get("/history", s.handleHistory)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/players/{id}/adjust", s.handleAdminAdjust)
				r.Delete("/players/{id}", s.handleAdminWipe)
				r.Get("/stats", s.handleAdminStats)
			})
		})
	})
}

// observe records request metrics keyed by the matched route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		s.metrics.HTTP(r.Method+" "+route, status, elapsed)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.auth.Verify(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token expired"
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			PlayerID: claims.PlayerID(),
			Username: claims.Username,
			Admin:    claims.Admin,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil || !user.Admin {
			writeError(w, http.StatusForbidden, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	user, ok := ctx.Value(userContextKey).(UserContext)
	if !ok || user.PlayerID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.game.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleIssueToken mints a player token for trusted callers holding the
// admin key, such as the Discord adapter or an operator.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
	if s.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
		writeError(w, http.StatusForbidden, "token issuing is not permitted")
		return
	}
	var in struct {
		PlayerID string `json:"player_id"`
		Username string `json:"username"`
		Admin    bool   `json:"admin"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	acct, err := s.game.EnsurePlayer(r.Context(), strings.TrimSpace(in.PlayerID), in.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, exp, err := s.auth.Issue(acct.PlayerID, acct.Username, in.Admin)
	if err != nil {
		s.log.Error("issue token failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   exp.UTC(),
		"player_id":    acct.PlayerID,
		"username":     acct.Username,
	})
}

func (s *Server) handlePulls(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	var in struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.game.PerformPulls(r.Context(), game.PullInput{
		PlayerID:       user.PlayerID,
		Username:       user.Username,
		Count:          in.Count,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleBalance settles passive income before reporting. The view is served
// even when settling fails; Balance flags it as degraded if the read fails too.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	if _, err := s.game.AccruePassive(r.Context(), user.PlayerID); err != nil {
		s.log.Warn("passive accrual before balance failed",
			zap.String("player_id", user.PlayerID),
			zap.Error(err),
		)
	}
	writeJSON(w, http.StatusOK, s.game.Balance(r.Context(), user.PlayerID))
}

func (s *Server) handlePassiveIncome(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	out, err := s.game.AccruePassive(r.Context(), user.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleManualIncome(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	out, err := s.game.Collect(r.Context(), user.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePity(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.game.PityInfo(r.Context(), user.PlayerID))
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	items, err := s.game.Collection(r.Context(), user.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	entries, err := s.game.History(r.Context(), user.PlayerID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleAdminAdjust(w http.ResponseWriter, r *http.Request) {
	admin, _ := userFromContext(r.Context())
	var in struct {
		Delta  int64  `json:"delta"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target := chi.URLParam(r, "id")
	acct, err := s.game.AdjustBalance(r.Context(), game.AdjustInput{PlayerID: target, Delta: in.Delta, Reason: in.Reason})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Info("admin adjusted balance",
		zap.String("admin", admin.PlayerID),
		zap.String("player_id", target),
		zap.Int64("delta", in.Delta),
	)
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleAdminWipe(w http.ResponseWriter, r *http.Request) {
	admin, _ := userFromContext(r.Context())
	target := chi.URLParam(r, "id")
	if err := s.game.WipeAccount(r.Context(), target); err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Warn("admin wiped account", zap.String("admin", admin.PlayerID), zap.String("player_id", target))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.game.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// writeDomainError maps the error taxonomy onto status codes. The body
// carries only the public message.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve *ledger.ValidationError
		ie *ledger.InsufficientFundsError
		ce *ledger.CooldownError
		ne *ledger.NotEligibleError
		se *ledger.StorageError
	)
	msg := ledger.PublicMessage(err)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, msg)
	case errors.As(err, &ie):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":    msg,
			"balance":  ie.Balance,
			"required": ie.Required,
		})
	case errors.As(err, &ce):
		w.Header().Set("Retry-After", strconv.Itoa(ce.RetryAfterSeconds()))
		writeError(w, http.StatusTooManyRequests, msg)
	case errors.As(err, &ne):
		writeJSON(w, http.StatusConflict, map[string]any{"error": ne.Reason, "guidance": ne.Guidance})
	case errors.Is(err, ledger.ErrDuplicateRequest), errors.Is(err, ledger.ErrTxConflict):
		writeError(w, http.StatusConflict, msg)
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, msg)
	case errors.As(err, &se):
		writeError(w, http.StatusServiceUnavailable, msg)
	default:
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

// idempotencyKey returns the client's key, or "" when none was sent.
func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
