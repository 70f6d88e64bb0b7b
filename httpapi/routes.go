package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xdao.co/libreg/msglib"
)

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/libraries", s.libraries)
	v1.GET("/owners", s.owners)
	v1.GET("/apps/:app/paths/:eid", s.describe)
	v1.GET("/accept", s.accept)
	v1.GET("/journal/head", s.head)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.started).String(),
		"service": "libregd",
		"version": Version,
	})
}

func (s *Server) libraries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"libraries": s.status.Libraries()})
}

func (s *Server) owners(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"owners": s.status.Owners()})
}

func (s *Server) describe(c *gin.Context) {
	eid, err := msglib.ParseEID(c.Param("eid"))
	if err != nil {
		writeError(c, err)
		return
	}
	v, err := s.status.Describe(msglib.AppID(c.Param("app")), eid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// accept answers GET /v1/accept?app=&eid=&library=[&at=].
func (s *Server) accept(c *gin.Context) {
	app := msglib.AppID(c.Query("app"))
	if err := app.Validate(); err != nil {
		writeError(c, err)
		return
	}
	eid, err := msglib.ParseEID(c.Query("eid"))
	if err != nil {
		writeError(c, err)
		return
	}
	lib, err := msglib.ParseLibraryID(c.Query("library"))
	if err != nil {
		writeError(c, err)
		return
	}

	raw, explicit := c.GetQuery("at")
	if !explicit {
		c.JSON(http.StatusOK, gin.H{"accepted": s.status.Accept(app, eid, lib)})
		return
	}
	at, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(c, msglib.Wrap(msglib.KindInvalidArgument, "LIBREG-HTTP-001", "invalid checkpoint "+strconv.Quote(raw), err))
		return
	}
	ok, err := s.status.AcceptAt(app, eid, lib, at)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": ok, "at": at})
}

func (s *Server) head(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Head())
}

var kindStatus = map[msglib.Kind]int{
	msglib.KindInvalidArgument:   http.StatusBadRequest,
	msglib.KindInvalidCapability: http.StatusConflict,
	msglib.KindInvalidExpiry:     http.StatusConflict,
	msglib.KindAlreadyRegistered: http.StatusConflict,
	msglib.KindNotRegistered:     http.StatusNotFound,
	msglib.KindUnauthorized:      http.StatusForbidden,
	msglib.KindStorage:           http.StatusServiceUnavailable,
}

func writeError(c *gin.Context, err error) {
	var e *msglib.Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": msglib.KindInternal, "message": err.Error()}})
		return
	}
	code, ok := kindStatus[e.Kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	c.JSON(code, gin.H{"error": gin.H{
		"kind":    e.Kind,
		"rule":    e.RuleID,
		"message": e.Error(),
	}})
}
