package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/rpgmakermvmmo/charserver/api/rest"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/audit"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/cache"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/config"
	dbadapter "github.com/kasuganosora/rpgmakermvmmo/charserver/db"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/inter"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/metrics"
	mw "github.com/kasuganosora/rpgmakermvmmo/charserver/middleware"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/reconcile"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/scheduler"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/session"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" && cfg.Server.AdminKeyHash == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	logger.Info("Database ready", zap.String("mode", cfg.Database.Mode))

	// ---- Cache ----
	cacheCfg := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheCfg)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	ps, err := cache.NewPubSub(cacheCfg)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Services ----
	auditSvc := audit.New(db, logger)
	storageSvc := storage.NewService(db, logger)
	sm := session.NewManager(ps, logger)
	if err := sm.Follow(ctx); err != nil {
		log.Fatalf("session events: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	interMetrics := metrics.NewInterMetrics(reg)

	reconcileSvc := reconcile.NewService(db, c, auditSvc, reconcile.Options{
		Atomic:  cfg.Inter.AtomicBoundTransfer,
		LockTTL: cfg.Inter.GuildLockTTL,
	}, logger)

	// ---- Inter-server link ----
	router := inter.NewRouter(interMetrics, logger)
	inter.NewHandlers(storageSvc, reconcileSvc, sm, interMetrics, logger).
		Register(router, cfg.Inter.BoundItemsEnabled)

	interSrv := inter.NewServer(cfg.Inter, router, interMetrics, logger)
	if err := interSrv.Listen(); err != nil {
		log.Fatalf("inter: %v", err)
	}
	go func() {
		if err := interSrv.Serve(ctx); err != nil && !errors.Is(err, inter.ErrServerClosed) {
			logger.Error("inter server stopped", zap.Error(err))
		}
	}()
	logger.Info("Inter server listening", zap.String("addr", interSrv.Addr().String()))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.AddTicker("link_stats", cfg.Scheduler.StatsInterval, func(context.Context) {
		links, online := interSrv.LinkCount(), sm.Count()
		interMetrics.SetLinks(links)
		interMetrics.SetSessions(online)
		logger.Info("char server stats", zap.Int("links", links), zap.Int("online", online))
	})

	// ---- Admin HTTP ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok", "links": interSrv.LinkCount(), "online": sm.Count()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	adminH := apirest.NewAdminHandler(storageSvc, sm, interSrv, sched, logger)
	adminG := r.Group("/api/admin")
	adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey, cfg.Server.AdminKeyHash))
	adminG.GET("/storage/:account_id", adminH.GetStorage)
	adminG.PUT("/storage/:account_id", adminH.PutStorage)
	adminG.DELETE("/storage/:account_id", adminH.DeleteStorage)
	adminG.GET("/guild-storage/:guild_id", adminH.GetGuildStorage)
	adminG.DELETE("/guild-storage/:guild_id", adminH.DeleteGuildStorage)
	adminG.GET("/sessions", adminH.ListSessions)
	adminG.POST("/kick/:account_id", adminH.KickSession)
	adminG.GET("/links", adminH.ListLinks)
	adminG.GET("/scheduler", adminH.ListSchedulerTasks)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Admin server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := interSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("inter shutdown", zap.Error(err))
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin shutdown", zap.Error(err))
	}
	cancel()
	sched.Stop()
	if err := auditSvc.Stop(shutdownCtx); err != nil {
		logger.Error("audit shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}
