package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-sync/core/config"
	"commerce-sync/core/database"
	"commerce-sync/core/logger"
	"commerce-sync/core/middleware/auth"
	"commerce-sync/core/middleware/rayid"
	"commerce-sync/core/registry"
	"commerce-sync/core/storage"
	"commerce-sync/core/woo"
	"commerce-sync/feature/catalog"
	"commerce-sync/feature/catalog/store"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the commerce sync server",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Connect to Database and migrate the cache schema
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logg.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := store.New(db, logg).Migrate(); err != nil {
			logg.Fatal("Failed to migrate database", zap.Error(err))
		}

		// 4. Initialize Storage (Optional). Exports still generate
		// spreadsheets without it, they just stay unarchived.
		var stor storage.Client
		if cfg.Storage.Endpoint != "" {
			client, err := storage.NewClient(cfg.Storage)
			if err != nil {
				logg.Fatal("Failed to create storage client", zap.Error(err))
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket); err != nil {
				cancel()
				logg.Fatal("Failed to ensure export bucket", zap.Error(err))
			}
			cancel()
			stor = client
		} else {
			logg.Warn("No storage endpoint configured, export artifacts stay local")
		}

		// 5. Upstream API Client (Optional). Without it the cache serves
		// reads and local edits only.
		var client *woo.Client
		if cfg.Woo.BaseURL != "" {
			client = woo.NewClient(cfg.Woo, logg)
			logg.Info("Upstream source configured", zap.String("base_url", cfg.Woo.BaseURL))
		} else {
			logg.Warn("No upstream source configured, syncs are disabled")
		}

		// 6. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		// 7. Register Features
		mgr := registry.NewManager(logg)
		if err := mgr.Register(catalog.NewFeature(db, client, stor, cfg.Storage.Bucket, logg)); err != nil {
			logg.Fatal("Failed to register feature", zap.Error(err))
		}

		// Middleware: RayID first so every request is traceable.
		app.Use(rayid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 8. Load Features
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 9. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 10. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
