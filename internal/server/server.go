package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/pamudu-ranasinghe/virtualme/config"
	core "github.com/pamudu-ranasinghe/virtualme/internal/agent/core"
	"github.com/pamudu-ranasinghe/virtualme/internal/agent/telemetry"
	"github.com/pamudu-ranasinghe/virtualme/internal/store"
	"github.com/pamudu-ranasinghe/virtualme/provider"
	"github.com/pamudu-ranasinghe/virtualme/tools"
	"github.com/pamudu-ranasinghe/virtualme/tools/brain"
	githubtool "github.com/pamudu-ranasinghe/virtualme/tools/github"
	"github.com/pamudu-ranasinghe/virtualme/tools/mail"
	mediumtool "github.com/pamudu-ranasinghe/virtualme/tools/medium"
	youtubetool "github.com/pamudu-ranasinghe/virtualme/tools/youtube"
)

// Run wires the full service and blocks on the HTTP listener.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
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
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })

	var tel *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tel = telemetry.New()
	}
	e.GET("/metrics", echo.WrapHandler(tel.Handler()))

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	registry, err := BuildRegistry(cfg)
	if err != nil {
		return err
	}
	coord := core.NewCoordinator(llm, registry, tel)

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	secret := []byte(cfg.Server.JWTSecret)

	if err := cfg.Storage.Redis.Validate(); err != nil {
		return err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}

	api := e.Group("/api")

	auth := &AuthHandler{Secret: secret, PasswordHash: cfg.Server.AdminPasswordHash}
	auth.Register(api.Group("/auth"))

	sh := &SessionsHandler{Store: st}
	sh.Register(api.Group("/sessions"), secret)

	ch := &ChatHandler{
		Store:  st,
		Coord:  coord,
		Rdb:    rdb,
		Window: cfg.General.HistoryWindow,
		Logger: log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	ch.Register(api)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10002"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// BuildRegistry assembles the closed tool set from config.
func BuildRegistry(cfg *config.Config) (*tools.Registry, error) {
	brainTool, err := brain.New(cfg.Brain.Root, cfg.Brain.TopN)
	if err != nil {
		return nil, fmt.Errorf("loading brain corpus: %w", err)
	}
	gh := &githubtool.Client{Token: cfg.GitHub.Token, User: cfg.GitHub.User}
	medium := &mediumtool.Feed{Username: cfg.Medium.Username}
	youtube := &youtubetool.Feed{ChannelID: cfg.YouTube.ChannelID}
	sender := &mail.Sender{
		APIKey:           cfg.Email.APIKey,
		SenderEmail:      cfg.Email.SenderEmail,
		SenderName:       cfg.Email.SenderName,
		DefaultRecipient: cfg.Email.DefaultRecipient,
	}
	return tools.NewRegistry(
		brainTool,
		&githubtool.SearchTool{Client: gh},
		&githubtool.ReadTool{Client: gh},
		&mediumtool.ListTool{Feed: medium},
		&mediumtool.ReadTool{Feed: medium},
		&youtubetool.SearchTool{Feed: youtube},
		&youtubetool.TranscriptTool{Feed: youtube},
		sender,
	)
}
