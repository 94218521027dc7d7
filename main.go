package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/signon/signon/handlers"
	"github.com/signon/signon/internal/accounts"
	"github.com/signon/signon/internal/avatars"
	"github.com/signon/signon/internal/config"
	"github.com/signon/signon/internal/database"
	"github.com/signon/signon/internal/linking"
	"github.com/signon/signon/internal/providers"
	"github.com/signon/signon/internal/sessions"
	"github.com/signon/signon/pkg/logger"
	"github.com/signon/signon/pkg/metrics"
	"github.com/signon/signon/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: postgres=%v mongo=%v redis=%v minio=%v",
		cfg.Postgres.URI != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()

	// Connect to Redis early so both the rate limiter and the session store
	// can use it when configured.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Account store: Postgres is canonical; MongoDB is the fallback when no
	// Postgres URI is configured.
	var store accounts.Store
	if cfg.Postgres.URI != "" {
		db, err := database.ConnectPostgres(ctx, cfg.Postgres.URI, 10*time.Second)
		if err != nil {
			logger.Warnf("failed to connect to Postgres: %v", err)
		} else {
			pg := accounts.NewPostgresStore(db)
			if err := pg.Migrate(ctx); err != nil {
				logger.Fatalf("postgres migration failed: %v", err)
			}
			store = pg
			logger.Infof("using Postgres account store")
		}
	}

	var sessionsSvc *sessions.Service
	if redisClient != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(redisClient, "session:"))
		logger.Infof("using Redis for session storage")
	}

	if cfg.MongoDB.URI != "" && (store == nil || sessionsSvc == nil) {
		// Retry/backoff when connecting to MongoDB to tolerate startup races
		const maxAttempts = 5
		backoff := time.Second
		var client *mongo.Client
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			db := client.Database(cfg.MongoDB.Database)
			if store == nil {
				ms := accounts.NewMongoStore(db)
				if err := ms.EnsureIndexes(ctx); err != nil {
					logger.Fatalf("mongo index creation failed: %v", err)
				}
				store = ms
				logger.Infof("using MongoDB account store")
			}
			if sessionsSvc == nil {
				sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection("sessions")))
				logger.Infof("using MongoDB for session storage")
			}
		}
	}

	// Optional avatar mirror backed by MinIO
	var avatarsSvc *avatars.Service
	if cfg.MinIO.Endpoint != "" {
		av, err := avatars.New(cfg.MinIO)
		if err != nil {
			logger.Warnf("avatar mirror disabled: %v", err)
		} else {
			avatarsSvc = av
		}
	}

	// OAuth providers; each one is optional and skipped when unconfigured
	var provs []providers.Provider
	redirect := func(name string) string {
		return cfg.Server.BaseURL + "/auth/callback/" + name
	}
	if p := cfg.Providers.GitHub; p.ClientID != "" {
		provs = append(provs, providers.NewGitHub(p.ClientID, p.ClientSecret, redirect("github")))
	}
	if p := cfg.Providers.Discord; p.ClientID != "" {
		provs = append(provs, providers.NewDiscord(p.ClientID, p.ClientSecret, redirect("discord")))
	}
	if p := cfg.Providers.Google; p.ClientID != "" {
		// OIDC discovery against accounts.google.com needs the network up
		g, err := providers.NewGoogle(ctx, p.ClientID, p.ClientSecret, redirect("google"))
		if err != nil {
			logger.Warnf("google provider disabled: %v", err)
		} else {
			provs = append(provs, g)
		}
	}
	registry := providers.NewRegistry(provs...)
	logger.Infof("registered oauth providers: %v", registry.Names())

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint — return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["store"] = store != nil
		deps["sessions"] = sessionsSvc != nil
		if store == nil || sessionsSvc == nil {
			ready = false
		}
		deps["providers"] = len(registry.Names()) > 0
		if len(registry.Names()) == 0 {
			ready = false
		}
		if cfg.Redis.Host != "" && cfg.RateLimit.UseRedis {
			deps["redis"] = redisClient != nil
			if redisClient == nil {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		status := gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()}
		if !ready {
			status["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	// Register sign-in handlers when the stores are available
	if store != nil && sessionsSvc != nil {
		policy := linking.NewPolicy(store)
		auth := handlers.NewAuthHandler(cfg, store, sessionsSvc, registry, policy, avatarsSvc)
		auth.Register(r.Group("/"))

		api := r.Group("/api/v1", middleware.SessionAuth(sessionsSvc, cfg.Session.CookieName))
		handlers.NewAccountsHandler(store, avatarsSvc).Register(api)
	} else {
		logger.Warnf("sign-in handlers not registered because account/session stores are unavailable")
	}

	handlers.RegisterSwagger(r)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting sign-in service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
