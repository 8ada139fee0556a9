// Package server exposes the registration, two-step login and 2FA setup
// HTTP API. It is a thin JSON layer over the user store and the two-factor
// service; VPN session authorization itself happens on the management
// channel, not here.
package server

import (
	"net/http"
	"sync"

	"github.com/jrsteele09/go-vpn-auth-service/company"
	"github.com/jrsteele09/go-vpn-auth-service/internal/config"
	"github.com/jrsteele09/go-vpn-auth-service/twofactor"
	"github.com/jrsteele09/go-vpn-auth-service/users"
	"golang.org/x/time/rate"
)

// Repos holds all repository and service dependencies for the Server.
type Repos struct {
	Users     users.UserRepo
	TwoFactor *twofactor.Service
	Companies *company.Service
}

type Server struct {
	env    string // Environment (e.g., "development", "production")
	mux    *http.ServeMux
	routes []string
	config config.Config
	repos  Repos

	limitersLock sync.Mutex
	limiters     map[string]*rate.Limiter // per-IP login throttles
}

func New(config config.Config, repos Repos) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		config:   config,
		repos:    repos,
		limiters: make(map[string]*rate.Limiter),
	}
	s.env = config.GetEnv()
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}
