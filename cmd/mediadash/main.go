package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/MediaDash/app/controllers"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/auth"
	"github.com/ManuelReschke/MediaDash/internal/pkg/cache"
	"github.com/ManuelReschke/MediaDash/internal/pkg/database"
	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
	"github.com/ManuelReschke/MediaDash/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MediaDash/internal/pkg/router"
)

func main() {
	app, manager := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Print("Shutting down...")
		manager.Stop()
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	// background workers: email delivery and job reconciliation
	manager := jobqueue.Setup(db)
	manager.Start()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/mediadash to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "MediaDash",
		BodyLimit: 10 * 1024 * 1024, // media sources are passed by URL
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	deps := router.Dependencies{
		Controllers: controllers.NewControllers(db, manager),
		Verifier:    auth.NewClientFromEnv(cache.GetClient()),
		Workspaces:  repository.GetGlobalFactory().GetWorkspaceRepository(),
	}
	if cache.Available(2 * time.Second) {
		deps.LimiterStorage = router.NewLimiterStorage()
	} else {
		log.Print("Redis unavailable, API rate limits are kept in memory")
	}

	// ROUTER
	router.InstallRouter(app, deps)

	return app, manager
}
