// Package app wires configuration, storage and services into one graph shared
// by the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"time"

	"fieldvisit/common/database"
	commonmqtt "fieldvisit/common/mqtt"
	commonredis "fieldvisit/common/redis"
	"fieldvisit/internal/accounts"
	"fieldvisit/internal/config"
	"fieldvisit/internal/geocode"
	httpapi "fieldvisit/internal/http"
	"fieldvisit/internal/metrics"
	"fieldvisit/internal/notify"
	"fieldvisit/internal/repository"
	"fieldvisit/internal/service"
	"fieldvisit/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App 进程内对象图
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	DB    *sql.DB
	Redis *redis.Client
	MQTT  *commonmqtt.Client
	Queue *geocode.Queue

	Repos *repository.Repositories
	Cache *service.OptionsCache

	Roster   *service.VendorRoster
	Routes   *service.RouteProvisioner
	Schedule *service.ScheduleService
	Clients  *service.ClientService
	Visits   *service.VisitService
	Filter   *service.FilterService
	Imports  *service.ImportService
	Geocode  *service.GeocodeService
	Accounts *accounts.Client
}

// New connects optional backends and builds every service. Postgres, Redis
// and MQTT failures fall back to in-memory or no-op implementations.
func New(cfg *config.Config, logger *zap.Logger) *App {
	a := &App{Config: cfg, Logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(reg, "fieldvisit")

	if cfg.DBEnabled {
		if db, err := database.NewPostgresDB(&cfg.Database); err == nil {
			a.DB = db
			logger.Info("DB enabled for fieldvisit")
		} else {
			logger.Warn("DB enabled but connection failed, falling back to memory repositories", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.Repos = repository.NewPostgresRepositories(a.DB)
	} else {
		a.Repos = repository.NewMemoryRepositories()
	}

	var kv store.KV = store.NewMemoryKV()
	var feed service.ChangeFeed = service.NopChangeFeed{}
	if cfg.RedisEnabled {
		client := commonredis.NewRedisClient(&cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := commonredis.Ping(ctx, client)
		cancel()
		if err == nil {
			a.Redis = client
			kv = store.NewRedisKV(client)
			feed = service.NewRedisChangeFeed(client, cfg.ChangeStream.Name, cfg.ChangeStream.MaxLen)
		} else {
			logger.Warn("Redis unavailable, using in-process option cache", zap.Error(err))
			_ = client.Close()
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.MQTT.Enabled {
		if c, err := commonmqtt.NewClient(&cfg.MQTT.Broker); err == nil {
			a.MQTT = c
			notifier = notify.NewMQTTNotifier(c, cfg.MQTT.TopicPrefix, logger)
		} else {
			logger.Warn("MQTT unavailable, route notifications disabled", zap.Error(err))
		}
	}

	a.Cache = service.NewOptionsCache(a.Repos.Entries, kv, cfg.OptionsCache.KeyPrefix, cfg.OptionsCache.TTL, logger)
	a.Roster = service.NewVendorRoster(a.Repos.Vendors, logger)
	a.Routes = service.NewRouteProvisioner(a.Repos.Routes, notifier, logger)
	a.Schedule = service.NewScheduleService(a.Repos.Entries, a.Repos.Visits, a.Cache, a.Metrics, logger)
	a.Clients = service.NewClientService(a.Repos.Clients, a.Schedule, a.Cache, feed, logger)
	a.Visits = service.NewVisitService(a.Repos.Visits, a.Repos.Entries, a.Routes, a.Roster, a.Metrics, cfg.Location(), logger)
	a.Filter = service.NewFilterService(a.Repos.Entries, a.Repos.Visits, a.Cache, logger)
	a.Imports = service.NewImportService(a.Clients, a.Schedule, a.Cache, feed, logger)

	a.Queue = geocode.NewQueue(cfg.Geocode.MinInterval)
	geocoder := geocode.NewClient(geocode.Options{
		BaseURL:   cfg.Geocode.BaseURL,
		UserAgent: cfg.Geocode.UserAgent,
		Country:   cfg.Geocode.Country,
	}, a.Queue, a.Metrics, logger)
	a.Geocode = service.NewGeocodeService(a.Repos.Clients, a.Clients, geocoder, logger)

	a.Accounts = accounts.NewClient(cfg.Accounts.BaseURL, cfg.Accounts.APIKey, logger)
	return a
}

// Router 注册所有 HTTP 路由
func (a *App) Router() *httpapi.Router {
	router := httpapi.NewRouter(a.Metrics, a.Logger)
	router.RegisterSystemRoutes()
	router.RegisterClientRoutes(httpapi.NewClientsHandler(a.Clients, a.Logger))
	router.RegisterScheduleRoutes(httpapi.NewScheduleHandler(a.Schedule, a.Filter, a.Visits, a.Logger))
	router.RegisterVisitRoutes(httpapi.NewVisitsHandler(a.Visits, a.Routes, a.Roster, a.Logger))
	router.RegisterImportRoutes(httpapi.NewImportHandler(a.Imports, a.Logger))
	router.RegisterAccountRoutes(httpapi.NewAccountsHandler(a.Accounts, a.Logger))
	return router
}

// Close 释放外部连接
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.MQTT != nil {
		a.MQTT.Disconnect()
	}
	if a.Redis != nil {
		_ = commonredis.Close(a.Redis)
	}
	if a.DB != nil {
		_ = database.Close(a.DB)
	}
}
