package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/agent"
	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/internal/research"
	"github.com/mohammad-safakhou/curricula/internal/runtime"
	"github.com/mohammad-safakhou/curricula/internal/session"
	"github.com/mohammad-safakhou/curricula/internal/telemetry"
	"github.com/mohammad-safakhou/curricula/internal/tools"
	"github.com/mohammad-safakhou/curricula/internal/tools/scrape"
	"github.com/mohammad-safakhou/curricula/internal/tools/websearch"
)

// Run wires the full service and serves HTTP until the listener fails.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     corsOrigins(cfg.Server.CORSOrigins),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	tele := telemetry.New(cfg.Telemetry)
	defer tele.Shutdown()

	router, err := llm.NewRouter(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm router: %w", err)
	}

	searcher, err := searcherFromConfig(cfg.Search)
	if err != nil {
		return fmt.Errorf("search provider: %w", err)
	}
	scraper, err := scrape.New(scrape.ChromeKind, cfg.Search.Timeout, 0)
	if err != nil {
		return fmt.Errorf("scraper: %w", err)
	}

	registry := tools.NewRegistry(tools.Deps{
		Searcher:  searcher,
		Scraper:   scraper,
		LLM:       router,
		Search:    cfg.Search,
		Telemetry: tele,
		Logger:    log.New(log.Writer(), "[TOOL] ", log.LstdFlags),
	}, cfg.Agent.ToolTimeout)

	engine := agent.NewEngine(agent.Deps{
		Config:    cfg.Agent,
		LLM:       router,
		Tools:     registry,
		Searcher:  searcher,
		Telemetry: tele,
		Logger:    log.New(log.Writer(), "[AGENT] ", log.LstdFlags),
	})

	deep := research.NewDeepResearcher(router, tele)

	store, pg, rdb, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")

	var guard []echo.MiddlewareFunc
	if cfg.Server.AuthEnabled {
		secret, err := runtime.LoadJWTSecret(cfg)
		if err != nil {
			return err
		}
		if pg == nil {
			return fmt.Errorf("auth requires postgres (storage.postgres)")
		}
		auth := &AuthHandler{Users: pg, Secret: secret}
		auth.Register(api.Group("/auth"))
		guard = append(guard, runtime.EchoAuthMiddleware(secret))
	}

	chat := &ChatHandler{
		Engine:      engine,
		Deep:        deep,
		Store:       store,
		Research:    cfg.Research,
		Stream:      cfg.Stream,
		TurnTimeout: cfg.General.TurnTimeout,
		Telemetry:   tele,
		Logger:      log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	chat.Register(api.Group("", guard...))

	sessions := &SessionsHandler{Store: store}
	sessions.Register(api.Group("/sessions", guard...))

	janitor := &Janitor{
		Store:  store,
		Engine: engine,
		Rdb:    rdb,
		Cron:   cfg.Server.JanitorCron,
		Stop:   make(chan struct{}),
		Logger: log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}
	janitor.Start()
	defer close(janitor.Stop)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// buildStore picks the storage stack: postgres when configured, with a
// redis hot cache on top when redis is too; otherwise an in-memory store
// for development. The concrete postgres handle comes back for the auth
// queries and the redis client for the janitor.
func buildStore(ctx context.Context, cfg *config.Config) (session.Store, *session.Postgres, *redis.Client, error) {
	pgCfg := cfg.Storage.Postgres
	if pgCfg.URL == "" && (pgCfg.Host == "" || pgCfg.DBName == "") {
		log.Printf("postgres not configured, sessions are in-memory only")
		return session.NewMemory(), nil, nil, nil
	}

	if err := Migrate("", pgCfg.DSN(), "up", 0); err != nil {
		log.Printf("migrations: %v", err)
	}

	pg, err := session.NewPostgres(ctx, pgCfg.DSN())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: %w", err)
	}

	var store session.Store = pg
	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb, err = session.Connect(ctx, cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
		if err != nil {
			return nil, nil, nil, err
		}
		store = session.NewCache(pg, rdb, cfg.Storage.Redis.SessionTTL)
	}
	return store, pg, rdb, nil
}

func searcherFromConfig(cfg config.SearchConfig) (websearch.Searcher, error) {
	provider := websearch.Provider(cfg.Provider)
	if provider == "" {
		provider = websearch.SerperProvider
	}
	key := cfg.SerperAPIKey
	if provider == websearch.BraveProvider {
		key = cfg.BraveAPIKey
	}
	return websearch.NewSearcher(provider, key)
}

func corsOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
