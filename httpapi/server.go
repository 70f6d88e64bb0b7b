// Package httpapi serves a read-only JSON view of an endpoint: the library
// directory, per-path selections, acceptance checks and the journal head.
// Changes go through the signed gRPC Execute call, never through HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/directory"
	"xdao.co/libreg/endpoint"
	"xdao.co/libreg/internal/logging"
	"xdao.co/libreg/internal/metrics"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
)

// Version is reported by /health.
const Version = "0.1.0"

// Status is the read side of an endpoint.
type Status interface {
	Accept(app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID) bool
	AcceptAt(app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID, at checkpoint.Checkpoint) (bool, error)
	Describe(app msglib.AppID, eid msglib.EID) (endpoint.PathView, error)
	Libraries() []directory.Entry
	Owners() []ownership.Binding
	Head() endpoint.Head
}

type Server struct {
	status  Status
	router  *gin.Engine
	started time.Time
}

// New builds the router. corsOrigins may be empty, in which case only
// http://localhost:3000 is allowed.
func New(st Status, corsOrigins []string) *Server {
	metrics.Register()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logging.New("http")))
	r.Use(RequestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{status: st, router: r, started: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Router() *gin.Engine { return s.router }

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
