package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stellarlinkco/convo-eval/internal/config"
	"github.com/stellarlinkco/convo-eval/internal/store"
)

type Server struct {
	router *gin.Engine
	store  store.Store
	config *config.Config
	logger *zap.SugaredLogger
}

func NewServer(cfg *config.Config, st store.Store, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := gin.New()
	s := &Server{
		router: r,
		store:  st,
		config: cfg,
		logger: logger,
	}
	s.registerMiddleware()
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = ":8080"
	}
	return s.router.Run(addr)
}
