package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/audit"
	"power-text2sql-backend/internal/compile"
	"power-text2sql-backend/internal/controller"
	"power-text2sql-backend/internal/execute"
	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/planner"
	"power-text2sql-backend/internal/scheduler"
	"power-text2sql-backend/internal/service"
)

// @title           Power Text2SQL API
// @version         1.0
// @description     Answers natural language questions about power-grid data. Questions are translated into a constrained query plan, validated against a curated knowledge base, compiled to parameterized read-only SQL and executed under strict guards.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @schemes   http

// @tag.name         query
// @tag.description  Natural language query pipeline

// @tag.name         audit
// @tag.description  Audit trail of past requests

// @tag.name         kb
// @tag.description  Knowledge base snapshot management

// @tag.name         health
// @tag.description  API health check operations

func main() {
	app := fx.New(
		// Core Dependencies
		fx.Provide(
			NewConfig,
		),
		// Infrastructure Dependencies
		fx.Provide(
			NewGinEngine,
			kb.NewProvider,
			planner.NewPlanGenerator,
			planner.NewResolver,
			NewCompiler,
			execute.NewExecutor,
			execute.NewGuard,
			audit.NewLogger,
			service.NewQueryService,
			controller.NewQueryController,
			controller.NewKnowledgeBaseController,
		),
		fx.Invoke(
			RegisterAPIRoutes,
			RegisterScheduler,
		),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	<-app.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	log.Info().Msg("Shutting down application...")
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown due to error or timeout")
	}
}

func NewConfig() (*config.Config, error) {
	return config.NewConfig()
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Configure CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add swagger route
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// NewCompiler picks the SQL dialect matching the configured executor. The
// mock executor compiles for MySQL so local output matches the warehouse.
func NewCompiler(cfg *config.Config) *compile.Compiler {
	dialect := compile.MySQL()
	if cfg.Executor.Mode == "timescale" {
		dialect = compile.Postgres()
	}
	return compile.NewCompiler(dialect, 200)
}

func RegisterAPIRoutes(
	lifecycle fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	queryController *controller.QueryController,
	kbController *controller.KnowledgeBaseController,
) {
	if queryController != nil {
		controller.RegisterQueryRoutes(router, queryController)
	} else {
		log.Warn().Msg("QueryController not provided, skipping query API routes.")
	}
	if kbController != nil {
		controller.RegisterKnowledgeBaseRoutes(router, kbController)
	} else {
		log.Warn().Msg("KnowledgeBaseController not provided")
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Starting HTTP server on port %s", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("HTTP server ListenAndServe error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Shutting down HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}

func RegisterScheduler(lc fx.Lifecycle, cfg *config.Config, provider *kb.Provider) {
	scheduler.NewScheduler(lc, cfg, provider)
}
