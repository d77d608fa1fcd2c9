package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mazart23/pet-book/internal/app"
	"github.com/Mazart23/pet-book/internal/config"
	"github.com/Mazart23/pet-book/internal/domain"
	"github.com/Mazart23/pet-book/internal/gateway"
	"github.com/go-chi/chi/v5"
)

// Server is the loopback HTTP server that exposes the merged feed state to a
// presentation layer.
type Server struct {
	app        *app.App
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new view server over the application context.
func NewServer(cfg *config.Config, application *app.App, logger *slog.Logger) *Server {
	s := &Server{
		app:    application,
		logger: logger,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ViewAddr(),
		Handler:      withLogging(logger, s.routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/session/login", s.handleLogin)
	r.Post("/session/logout", s.handleLogout)

	r.Route("/notifications", func(r chi.Router) {
		pick := func(*http.Request) *app.NotificationFeed { return s.app.Notifications() }
		r.Get("/", getFeed(pick))
		r.Post("/more", loadMore(s, pick))
		r.Delete("/{id}", removeItem(s, pick, "id"))
	})

	r.Route("/posts", func(r chi.Router) {
		pick := func(r *http.Request) *app.PostFeed {
			if userID := r.URL.Query().Get("user_id"); userID != "" {
				return s.app.UserPosts(userID)
			}
			return s.app.Timeline()
		}
		r.Get("/", getFeed(pick))
		r.Post("/more", loadMore(s, pick))
		r.Post("/", createItem(s, pick))
		r.Delete("/{postID}", removeItem(s, pick, "postID"))

		r.Route("/{postID}/comments", func(r chi.Router) {
			pick := func(r *http.Request) *app.CommentFeed {
				return s.app.Comments(chi.URLParam(r, "postID"))
			}
			r.Get("/", getFeed(pick))
			r.Post("/more", loadMore(s, pick))
			r.Post("/", createItem(s, pick))
			r.Delete("/{id}", removeItem(s, pick, "id"))
		})

		r.Get("/{postID}/reactions", s.handleGetReactions)
		r.Put("/{postID}/reactions", s.handleSelectReaction)
	})

	return r
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting view server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, loggedIn := s.app.Session().Token()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "logged_in": loggedIn})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "request body must be JSON")
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "username and password are required")
		return
	}

	if err := s.app.Login(r.Context(), body.Username, body.Password); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": true, "subject": s.app.Session().Credential().Subject})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Logout(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
}

type feedResponse[T domain.Item] struct {
	Items     []T      `json:"items"`
	Pending   []string `json:"pending"`
	Cursor    string   `json:"cursor,omitempty"`
	Loading   bool     `json:"loading"`
	Exhausted bool     `json:"exhausted"`
}

func toFeedResponse[T domain.Item](st domain.FeedState[T]) feedResponse[T] {
	items := st.Items
	if items == nil {
		items = []T{}
	}
	return feedResponse[T]{
		Items:     items,
		Pending:   st.Pending,
		Cursor:    st.Cursor,
		Loading:   st.Loading,
		Exhausted: st.Exhausted,
	}
}

func getFeed[T domain.Item, P any](pick func(*http.Request) *domain.Feed[T, P]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toFeedResponse(pick(r).State()))
	}
}

func loadMore[T domain.Item, P any](s *Server, pick func(*http.Request) *domain.Feed[T, P]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feed := pick(r)
		if err := feed.LoadMore(r.Context()); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toFeedResponse(feed.State()))
	}
}

func createItem[T domain.Item, P any](s *Server, pick func(*http.Request) *domain.Feed[T, P]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload P
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "request body must be JSON")
			return
		}
		item, err := pick(r).Create(r.Context(), payload)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func removeItem[T domain.Item, P any](s *Server, pick func(*http.Request) *domain.Feed[T, P], idParam string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pick(r).Remove(r.Context(), chi.URLParam(r, idParam)); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

type reactionResponse struct {
	PostID   string                      `json:"post_id"`
	Selected domain.ReactionKind         `json:"selected,omitempty"`
	Counts   map[domain.ReactionKind]int `json:"counts"`
}

func (s *Server) handleGetReactions(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	toggle := s.app.Reactions(postID)
	if err := s.loadReactions(r.Context(), postID, toggle); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reactionResponse{PostID: postID, Selected: toggle.Selected(), Counts: toggle.Counts()})
}

// loadReactions reconciles toggle with the post's server counts and the
// caller's own reaction.
func (s *Server) loadReactions(ctx context.Context, postID string, toggle *domain.ReactionToggle) error {
	token, ok := s.app.Session().Token()
	if !ok {
		return domain.ErrNoCredential
	}
	post, err := s.app.Client().Post(ctx, token, postID)
	if err != nil {
		return err
	}
	return toggle.Load(ctx, post.Reactions)
}

func (s *Server) handleSelectReaction(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	var body struct {
		Kind domain.ReactionKind `json:"reaction_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "request body must be JSON")
		return
	}

	if !body.Kind.Valid() {
		s.writeDomainError(w, r, fmt.Errorf("%w: %q", domain.ErrInvalidReaction, body.Kind))
		return
	}

	toggle := s.app.Reactions(postID)
	if !toggle.Loaded() {
		if err := s.loadReactions(r.Context(), postID, toggle); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	if err := toggle.Select(r.Context(), body.Kind); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reactionResponse{PostID: postID, Selected: toggle.Selected(), Counts: toggle.Counts()})
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := http.StatusBadGateway, "UpstreamError"
	switch {
	case domain.IsAuthError(err):
		status, errType = http.StatusUnauthorized, "AuthRequired"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidReaction):
		status, errType = http.StatusBadRequest, "InvalidRequest"
	case errors.Is(err, domain.ErrLoadInProgress):
		status, errType = http.StatusConflict, "LoadInProgress"
	case errors.Is(err, domain.ErrNotFound):
		status, errType = http.StatusNotFound, "NotFound"
	case errors.Is(err, domain.ErrUnsupported):
		status, errType = http.StatusMethodNotAllowed, "Unsupported"
	case errors.Is(err, domain.ErrFeedClosed):
		status, errType = http.StatusConflict, "FeedClosed"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, errType, gateway.DisplayMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
