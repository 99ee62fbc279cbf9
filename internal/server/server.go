package server

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/aysenurcaglar/snake-oil-game/internal/config"
	"github.com/aysenurcaglar/snake-oil-game/internal/db"
	"github.com/aysenurcaglar/snake-oil-game/internal/engine"
	"github.com/aysenurcaglar/snake-oil-game/internal/feed"
)

type Server struct {
	eng   *engine.Engine
	store engine.Store
	db    *gorm.DB
	feed  feed.Feed
	cfg   config.Config
}

// New wires the engine over Postgres when a connection is given, and
// over process memory otherwise. The in-memory mode backs local runs
// and the test suite.
func New(conn *gorm.DB, bus feed.Feed, cfg config.Config) *Server {
	if bus == nil {
		bus = feed.NewBus(cfg.FeedBufferSize)
	}
	var store engine.Store
	var oracle engine.Oracle
	if conn != nil {
		sqlStore := db.NewSessionStore(conn, bus, nil)
		store, oracle = sqlStore, sqlStore
	} else {
		memStore := engine.NewMemoryStore(bus, nil)
		store, oracle = memStore, memStore
	}
	eng := engine.New(store, oracle, bus, engine.Options{
		RoleSampleSize: cfg.RoleSampleSize,
		WordSampleSize: cfg.WordSampleSize,
	})
	return &Server{
		eng:   eng,
		store: store,
		db:    conn,
		feed:  bus,
		cfg:   cfg,
	}
}

func (s *Server) Engine() *engine.Engine {
	return s.eng
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/", s.handleSessionSubroutes)
	mux.HandleFunc("POST /api/sessions/", s.handleSessionSubroutes)
	mux.HandleFunc("GET /ws/sessions/", s.handleWebsocket)
	mux.Handle("/admin/", s.adminRouter())
	return mux
}
