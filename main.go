package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/dao/memdao"
	"gigpay-bend/models"
	"gigpay-bend/utils"
	"gigpay-bend/utils/config"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	logger := newLogger(cfg.Env)
	defer logger.Sync()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if !cfg.DotEnv {
		logger.Info("No .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeDB, err := initStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer closeDB()

	s, err := newServer(ctx, cfg, logger, st)
	if err != nil {
		logger.Fatal("failed to initialize services", zap.Error(err))
	}

	r := s.routes()
	r.Use(func(next http.Handler) http.Handler {
		return handlers.LoggingHandler(os.Stdout, next)
	})

	// background services
	go s.dispatcher.ReconcileJob(ctx, cfg.ReconcileInterval)

	header := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization", "X-Admin-Token"})
	methods := handlers.AllowedMethods([]string{"GET", "POST", "PUT", "HEAD", "OPTIONS"})
	origins := handlers.AllowedOrigins([]string{"*"})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.CORS(header, methods, origins)(r),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("Running server", zap.String("port", cfg.Port), zap.String("storage", cfg.Storage), zap.String("gateway", cfg.Gateway))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	build := zap.NewProduction
	if env == "dev" {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func initStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return memoryStores(memdao.New()), func() {}, nil
	}

	client, err := dao.Initialize(cfg.MongoURI, cfg.MongoUser, cfg.MongoPass)
	if err != nil {
		return stores{}, nil, err
	}
	closeDB := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("mongo disconnect", zap.Error(err))
		}
	}

	db := client.Database(cfg.MongoDB)
	if err := dao.EnsureIndexes(ctx, db); err != nil {
		closeDB()
		return stores{}, nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return mongoStores(db), closeDB, nil
}

// useAuth validates a token for protected routes
func (s *server) useAuth(nextHandler http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorizationHeader := r.Header.Get("Authorization")
		if authorizationHeader == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "You are not authorized")
			return
		}
		token, err := jwt.Parse(authorizationHeader, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
			}

			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil {
			s.logger.Info("auth parse err", zap.Error(err))
			utils.RespondWithError(w, http.StatusUnauthorized, "You are not authorized")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			utils.RespondWithError(w, http.StatusUnauthorized, "An authorized error occurred")
			return
		}
		id, ok := claims["id"].(string)
		if !ok {
			utils.RespondWithError(w, http.StatusUnauthorized, "Error converting claim to string")
			return
		}
		email, _ := claims["email"].(string)

		ctx := context.WithValue(r.Context(), models.UserIDKey, id)
		ctx = context.WithValue(ctx, models.UserEmailKey, email)
		nextHandler.ServeHTTP(w, r.WithContext(ctx))
	})
}

// useAdmin guards operator routes with the X-Admin-Token header, checked
// against ADMIN_TOKEN_HASH. Without a hash the routes are closed.
func (s *server) useAdmin(nextHandler http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if s.cfg.AdminTokenHash == "" || token == "" || !utils.CheckTokenHash(token, s.cfg.AdminTokenHash) {
			s.logger.Warn("admin auth rejected", zap.String("event", "security"), zap.String("path", r.URL.Path))
			utils.RespondWithError(w, http.StatusForbidden, "You are not authorized")
			return
		}
		nextHandler.ServeHTTP(w, r)
	})
}
