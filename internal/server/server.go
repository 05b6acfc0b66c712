package server

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/vpplayer/vpplayer/internal/auth"
	"github.com/vpplayer/vpplayer/internal/database"
	"github.com/vpplayer/vpplayer/internal/httputil"
	"github.com/vpplayer/vpplayer/internal/metrics"
	"github.com/vpplayer/vpplayer/internal/profile"
	"github.com/vpplayer/vpplayer/internal/ratelimit"
	"github.com/vpplayer/vpplayer/internal/session"
	"github.com/vpplayer/vpplayer/internal/validate"
	"github.com/vpplayer/vpplayer/internal/video"
)

const limiterSweepInterval = 5 * time.Minute

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB                    database.DBTX
	Pinger                Pinger
	Storage               video.ObjectStorage
	Cache                 video.ListCache
	Geo                   video.GeoLocator
	Sessions              *session.Registry
	WebFS                 fs.FS
	JWTSecret             string
	BaseURL               string
	StoragePublicEndpoint string
	CORSOrigins           []string
	MaxUploadBytes        int64
}

type Server struct {
	router         chi.Router
	pinger         Pinger
	authHandler    *auth.Handler
	videoHandler   *video.Handler
	profileHandler *profile.Handler
	sessionHandler *session.Handler
	webFS          fs.FS

	authLimiter    *ratelimit.Limiter
	apiLimiter     *ratelimit.Limiter
	sessionLimiter *ratelimit.Limiter
}

func New(cfg Config) *Server {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	r := chi.NewRouter()
	r.Use(slogMiddleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.StoragePublicEndpoint,
	}))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(gorillaHandlers.CORS(
			gorillaHandlers.AllowedOrigins(cfg.CORSOrigins),
			gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
			gorillaHandlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
			gorillaHandlers.AllowCredentials(),
		))
	}

	s := &Server{
		router:         r,
		pinger:         cfg.Pinger,
		webFS:          cfg.WebFS,
		authLimiter:    ratelimit.NewLimiter(0.5, 5),
		apiLimiter:     ratelimit.NewLimiter(5, 20),
		sessionLimiter: ratelimit.NewLimiter(20, 60),
	}

	if cfg.DB != nil {
		if cfg.JWTSecret == "" {
			log.Fatal("JWT_SECRET is required; set the environment variable")
		}

		secureCookies := strings.HasPrefix(baseURL, "https://")
		s.authHandler = auth.NewHandler(cfg.DB, cfg.JWTSecret, secureCookies)
		s.videoHandler = video.NewHandler(cfg.DB, cfg.Storage, cfg.Cache, cfg.MaxUploadBytes)
		if cfg.Geo != nil {
			s.videoHandler.SetGeoLocator(cfg.Geo)
		}
		s.profileHandler = profile.NewHandler(cfg.DB, cfg.Storage)

		if cfg.Sessions != nil {
			s.sessionHandler = session.NewHandler(cfg.Sessions, s.videoHandler.Store(), cfg.CORSOrigins)
		}
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartCleanup sweeps the rate limiters until ctx is done.
func (s *Server) StartCleanup(ctx context.Context) {
	s.authLimiter.StartCleanup(ctx, limiterSweepInterval)
	s.apiLimiter.StartCleanup(ctx, limiterSweepInterval)
	s.sessionLimiter.StartCleanup(ctx, limiterSweepInterval)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.router.Get("/api/limits", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, validate.FieldLimits())
	})

	if s.authHandler != nil {
		s.router.Route("/api/auth", func(r chi.Router) {
			r.Use(s.authLimiter.Middleware)
			r.Post("/register", s.authHandler.Register)
			r.Post("/login", s.authHandler.Login)
			r.Post("/refresh", s.authHandler.Refresh)
			r.Post("/logout", s.authHandler.Logout)
			r.Post("/guest", s.authHandler.Guest)
		})
	}

	if s.videoHandler != nil {
		s.router.Route("/api/videos", func(r chi.Router) {
			r.Use(s.apiLimiter.Middleware)
			r.Use(s.authHandler.Middleware)
			r.Get("/", s.videoHandler.List)
			r.Get("/{id}", s.videoHandler.Get)
			r.Get("/{id}/comments", s.videoHandler.ListComments)
			r.Post("/{id}/views", s.videoHandler.RecordView)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireMember)
				r.Post("/{id}/like", s.videoHandler.Like)
				r.Delete("/{id}/like", s.videoHandler.Unlike)
				r.Post("/{id}/comments", s.videoHandler.CreateComment)
				r.Delete("/{id}/comments/{commentId}", s.videoHandler.DeleteComment)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Post("/", s.videoHandler.Create)
				r.Patch("/{id}", s.videoHandler.Update)
				r.Delete("/{id}", s.videoHandler.Delete)
			})
		})
	}

	if s.profileHandler != nil {
		s.router.Route("/api/profile", func(r chi.Router) {
			r.Use(s.apiLimiter.Middleware)
			r.Use(s.authHandler.Middleware)
			r.Use(auth.RequireMember)
			r.Get("/", s.profileHandler.Get)
			r.Patch("/", s.profileHandler.Update)
			r.Post("/avatar", s.profileHandler.UploadAvatar)
		})

		s.router.Route("/api/admin/users", func(r chi.Router) {
			r.Use(s.apiLimiter.Middleware)
			r.Use(s.authHandler.Middleware)
			r.Use(auth.RequireAdmin)
			r.Get("/", s.profileHandler.ListUsers)
			r.Patch("/{id}", s.profileHandler.SetRole)
			r.Delete("/{id}", s.profileHandler.DeleteUser)
		})
	}

	if s.sessionHandler != nil {
		s.router.Route("/api/sessions", func(r chi.Router) {
			r.Use(s.sessionLimiter.Middleware)
			r.Use(s.authHandler.Middleware)
			r.Post("/", s.sessionHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.sessionHandler.Get)
				r.Delete("/", s.sessionHandler.Delete)
				r.Post("/transport", s.sessionHandler.Transport)
				r.Post("/queue", s.sessionHandler.Queue)
				r.Post("/events", s.sessionHandler.Events)
				r.Get("/commands", s.sessionHandler.Commands)
				r.Get("/ws", s.sessionHandler.Socket)
			})
		})
	}

	if s.webFS != nil {
		spa := newSPAFileServer(s.webFS)
		s.router.NotFound(spa.ServeHTTP)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
