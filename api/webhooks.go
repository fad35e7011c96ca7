package api

import (
	"strings"
	"time"

	"github.com/asfalis/asfalis/db"
	"github.com/gofiber/fiber/v2"
	gogithub "github.com/google/go-github/v68/github"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// GitHubWebhookHandler verifies the payload signature and keeps the
// installation/repository catalog in sync with the platform.
func GitHubWebhookHandler(c *fiber.Ctx) error {
	secret := viper.GetString("GITHUB_WEBHOOK_SECRET")
	if secret == "" {
		log.Error().Msg("GITHUB_WEBHOOK_SECRET is not configured, rejecting webhook")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Webhooks not configured"})
	}

	payload := c.Body()
	signature := c.Get("X-Hub-Signature-256")
	if err := gogithub.ValidateSignature(signature, payload, []byte(secret)); err != nil {
		log.Warn().Err(err).Msg("Webhook signature validation failed")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid signature"})
	}

	eventType := c.Get("X-GitHub-Event")
	event, err := gogithub.ParseWebHook(eventType, payload)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse payload"})
	}

	switch event := event.(type) {
	case *gogithub.InstallationEvent:
		return handleInstallationEvent(c, event)
	case *gogithub.InstallationRepositoriesEvent:
		return handleInstallationRepositoriesEvent(c, event)
	default:
		log.Debug().Str("event", eventType).Msg("Ignoring webhook event")
		return c.JSON(fiber.Map{"status": "ignored"})
	}
}

func handleInstallationEvent(c *fiber.Ctx, event *gogithub.InstallationEvent) error {
	installation := event.GetInstallation()
	installationID := installation.GetID()
	logger := log.With().Int64("installation_id", installationID).Str("action", event.GetAction()).Logger()

	switch event.GetAction() {
	case "created", "unsuspend", "new_permissions_accepted":
		_, err := db.Connection().UpsertInstallation(&db.Installation{
			InstallationID: installationID,
			AccountLogin:   installation.GetAccount().GetLogin(),
			AccountType:    installation.GetAccount().GetType(),
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		for _, repo := range event.Repositories {
			if err := upsertEventRepo(installationID, repo); err != nil {
				logger.Error().Err(err).Str("repo", repo.GetFullName()).Msg("Repo upsert failed")
			}
		}
		logger.Info().Int("repos", len(event.Repositories)).Msg("Installation registered")
	case "deleted", "suspend":
		if err := db.Connection().RevokeInstallation(installationID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		logger.Info().Msg("Installation revoked")
	default:
		logger.Debug().Msg("Ignoring installation action")
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func handleInstallationRepositoriesEvent(c *fiber.Ctx, event *gogithub.InstallationRepositoriesEvent) error {
	installationID := event.GetInstallation().GetID()
	logger := log.With().Int64("installation_id", installationID).Logger()

	if err := db.Connection().TouchInstallation(installationID); err != nil {
		logger.Warn().Err(err).Msg("Installation touch failed")
	}

	for _, repo := range event.RepositoriesAdded {
		if err := upsertEventRepo(installationID, repo); err != nil {
			logger.Error().Err(err).Str("repo", repo.GetFullName()).Msg("Repo upsert failed")
		}
	}
	for _, repo := range event.RepositoriesRemoved {
		if err := db.Connection().DeleteRepo(repo.GetID()); err != nil {
			logger.Error().Err(err).Str("repo", repo.GetFullName()).Msg("Repo deletion failed")
		}
	}

	logger.Info().
		Int("added", len(event.RepositoriesAdded)).
		Int("removed", len(event.RepositoriesRemoved)).
		Msg("Installation repositories synced")
	return c.JSON(fiber.Map{"status": "ok"})
}

// upsertEventRepo registers a repository from an event payload. Installation
// events carry abbreviated repository objects, so the owner comes from the
// full name.
func upsertEventRepo(installationID int64, repo *gogithub.Repository) error {
	fullName := repo.GetFullName()
	owner := repo.GetOwner().GetLogin()
	name := repo.GetName()
	if owner == "" {
		if parts := strings.SplitN(fullName, "/", 2); len(parts) == 2 {
			owner = parts[0]
			if name == "" {
				name = parts[1]
			}
		}
	}

	now := time.Now().UTC()
	_, err := db.Connection().UpsertRepo(&db.Repo{
		RepoID:         repo.GetID(),
		InstallationID: installationID,
		Owner:          owner,
		Name:           name,
		FullName:       fullName,
		DefaultBranch:  repo.GetDefaultBranch(),
		IsPrivate:      repo.GetPrivate(),
		Archived:       repo.GetArchived(),
		LastSyncedAt:   &now,
	})
	return err
}
