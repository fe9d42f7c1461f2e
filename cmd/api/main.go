package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/fkhayef/splitledger/docs"
	"github.com/fkhayef/splitledger/internal/config"
	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/expense"
	expensesplit "github.com/fkhayef/splitledger/internal/expense/split"
	"github.com/fkhayef/splitledger/internal/group"
	"github.com/fkhayef/splitledger/internal/ledger"
	"github.com/fkhayef/splitledger/internal/metrics"
	"github.com/fkhayef/splitledger/internal/notification"
	"github.com/fkhayef/splitledger/internal/settlement"
	"github.com/fkhayef/splitledger/internal/user"
	"github.com/fkhayef/splitledger/pkg/logging"
	mw "github.com/fkhayef/splitledger/pkg/middleware"
)

// @title        SplitLedger API
// @version      1.0
// @description  Group expense ledger with debt settlement.
// @BasePath     /api/v1
func main() {
	// Load .env file
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	if envErr != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("connected to database")

	m := metrics.New()

	// Notification feature. Other services notify through it.
	notificationRepo := notification.NewRepository(db)
	notificationService := notification.NewService(notificationRepo)
	notificationHandler := notification.NewHandler(notificationService)

	// User feature
	userRepo := user.NewRepository(db)
	userService := user.NewService(userRepo)
	userHandler := user.NewHandler(userService)

	// Group feature
	groupRepo := group.NewRepository(db)
	groupService := group.NewService(groupRepo, notificationService)
	groupHandler := group.NewHandler(groupService)

	// Expenses and settle-ups share the ledger
	ledgerRepo := ledger.NewRepository(db)

	expenseService := expense.NewService(ledgerRepo, notificationService, expensesplit.NewSplitStrategyFactory())
	expenseHandler := expense.NewHandler(expenseService)

	settlementService := settlement.NewService(ledgerRepo, notificationService, m, cfg.OptimalThreshold)
	settlementHandler := settlement.NewHandler(settlementService)

	r := newRouter(routers{
		users:         userHandler,
		groups:        groupHandler,
		expenses:      expenseHandler,
		settlements:   settlementHandler,
		notifications: notificationHandler,
	}, m)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

type routers struct {
	users         *user.Handler
	groups        *group.Handler
	expenses      *expense.Handler
	settlements   *settlement.Handler
	notifications *notification.Handler
}

func newRouter(h routers, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(mw.TestUserMiddleware)
	r.Use(mw.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", m.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/groups/{groupId}/settle-up", h.settlements.GroupRoutes())
		r.Mount("/groups", h.groups.Routes())
		r.Mount("/users", h.users.Routes())
		r.Mount("/expenses", h.expenses.Routes())
		r.Mount("/settlements", h.settlements.Routes())
		r.Mount("/notifications", h.notifications.Routes())
	})

	return r
}
