package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/gofiber/contrib/fiberzerolog"

	"github.com/asfalis/asfalis/db"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// StartAPI initializes the database and serves the HTTP API until the
// process exits.
func StartAPI() {
	apiLogger := log.With().Str("type", "api").Logger()

	apiLogger.Info().Msg("Initializing...")
	db.InitDb()

	app := fiber.New(fiber.Config{
		ServerHeader: "Asfalis",
		AppName:      "Asfalis API",
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(viper.GetStringSlice("api.cors.origins"), ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders: "Content-Disposition",
	}))

	app.Use(fiberzerolog.New(fiberzerolog.Config{
		Logger: &apiLogger,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Post("/scans", CreateScan)
	api.Get("/scans", FindScans)
	api.Get("/scans/:id", GetScanDetail)
	api.Get("/scans/:id/findings", FindScanFindings)
	api.Get("/scans/:id/artifacts", FindScanArtifacts)
	api.Get("/scans/:id/artifacts/:name", GetScanArtifact)

	api.Get("/repos", FindRepos)
	api.Get("/installations", FindInstallations)

	app.Post("/webhooks/github", GitHubWebhookHandler)

	listenAddress := fmt.Sprintf("%v:%v", viper.Get("api.listen.host"), viper.Get("api.listen.port"))
	if err := app.Listen(listenAddress); err != nil {
		apiLogger.Warn().Err(err).Msg("Error starting server")
	}
}
