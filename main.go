package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/deckhand/deckhand/backend/auth-service/handlers"
	"github.com/deckhand/deckhand/backend/auth-service/internal/audit"
	"github.com/deckhand/deckhand/backend/auth-service/internal/config"
	"github.com/deckhand/deckhand/backend/auth-service/internal/database"
	"github.com/deckhand/deckhand/backend/auth-service/internal/oauth"
	"github.com/deckhand/deckhand/backend/auth-service/internal/sessions"
	"github.com/deckhand/deckhand/backend/auth-service/internal/store"
	"github.com/deckhand/deckhand/backend/auth-service/internal/tokens"
	"github.com/deckhand/deckhand/backend/auth-service/internal/users"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/logger"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/metrics"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level is controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: discord=%v mongo=%v redis=%v", cfg.Discord.ClientID != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test; production should run behind
	// a gateway with a stricter policy.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	ctx := context.Background()

	// Redis is the token store and is required: refresh rotation, the
	// revocation blocklist and staged login flows all live there.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
	}
	logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
	tokenStore := store.NewRedisStore(redisClient)

	// Optional global rate limiter (per-subject when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// MongoDB holds user records and the audit trail. Retry with backoff to
	// tolerate startup races; the service still comes up without it, with
	// user lookups degraded.
	var userSvc *users.Service
	var trail *audit.Trail
	if cfg.MongoDB.URI != "" {
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
			userSvc = users.NewService(users.NewMongoUserRepository(db.Collection("users")))
			trail = audit.NewTrail(db.Collection("audit_log"))
			logger.Infof("Connected to MongoDB: database=%s", cfg.MongoDB.Database)
		}
	}

	sessionsSvc := sessions.NewService(tokenStore, cfg)
	blocklist := sessions.NewBlocklist(tokenStore, cfg.Revocation.FailClosed)
	oauthClient := oauth.NewClient(cfg, tokenStore)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when critical dependencies answer
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["redis"] = redisClient.Ping(c.Request.Context()).Err() == nil
		if !deps["redis"] {
			ready = false
		}
		deps["users"] = userSvc != nil

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	if userSvc != nil {
		authed := middleware.AuthMiddleware(
			func(raw string) (jwtlib.MapClaims, error) { return tokens.Parse(cfg, raw) },
			blocklist,
			users.NewPermissionResolver(userSvc, cfg.Roles.Mappings),
		)
		h := handlers.NewAuthHandler(cfg, oauthClient, userSvc, sessionsSvc, blocklist, trail)
		h.Register(r.Group("/"), authed)
	} else {
		logger.Warnf("auth handlers not registered because the user service is unavailable")
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting auth service on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
