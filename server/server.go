package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/chainsso/go-signon-server/auth"
	"github.com/chainsso/go-signon-server/clients"
	"github.com/chainsso/go-signon-server/internal/config"
)

// Pinger reports backing store connectivity for the health endpoint. The
// in-memory store has nothing to ping and passes nil.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes HTTP requests to the authorization service.
type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      *auth.AuthorizationService
	origins   *clients.OriginCache
	transport RefreshTokenTransport
	pinger    Pinger
	startTime time.Time
}

func New(cfg config.Config, authService *auth.AuthorizationService, origins *clients.OriginCache, pinger Pinger) (*Server, error) {
	if authService == nil {
		return nil, errors.New("[Server New] authorization service is required")
	}
	if origins == nil {
		return nil, errors.New("[Server New] origin cache is required")
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		auth:      authService,
		origins:   origins,
		transport: NewRefreshTokenTransport(cfg.GetRefreshTokenTransport(), cfg.IsProduction(), cfg.GetRefreshTokenExpiration()),
		pinger:    pinger,
		startTime: time.Now(),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) initRoutes() {
	api := s.APIMiddleware()

	s.RegisterRouteHandler("GET "+RouteOAuthAuthorize, ChainMiddleware(s.AuthorizeHandler(), api...))
	s.RegisterRouteHandler("GET "+RouteOAuthCheck, ChainMiddleware(s.CheckHandler(), api...))
	s.RegisterRouteHandler("POST "+RouteOAuthVerifySignature, ChainMiddleware(s.VerifySignatureHandler(), api...))
	s.RegisterRouteHandler("POST "+RouteOAuthToken, ChainMiddleware(s.TokenHandler(), api...))
	s.RegisterRouteHandler("GET "+RouteOAuthUserInfo, ChainMiddleware(s.UserInfoHandler(), api...))
	s.RegisterRouteHandler("POST "+RouteOAuthLogout, ChainMiddleware(s.LogoutHandler(), api...))
	s.RegisterRouteHandler("GET "+RouteHealth, s.HealthHandler())

	// Browser preflights arrive as OPTIONS; without these patterns the mux
	// answers 405 before the CORS middleware ever runs.
	for _, route := range []string{
		RouteOAuthAuthorize,
		RouteOAuthCheck,
		RouteOAuthVerifySignature,
		RouteOAuthToken,
		RouteOAuthUserInfo,
		RouteOAuthLogout,
	} {
		s.RegisterRouteHandler("OPTIONS "+route, ChainMiddleware(s.PreflightHandler(), api...))
	}
}

// PreflightHandler backs the OPTIONS routes. CORS preflights carry an Origin
// header and are answered by CorsMiddleware before this runs; a bare OPTIONS
// request gets an empty 204.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Info().Str("method", parts[0]).Str("path", parts[1]).Msg("route registered")
		} else {
			log.Info().Str("path", parts[0]).Msg("route registered")
		}
	}
}
