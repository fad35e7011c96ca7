package api

import (
	"net/http"
	"strconv"

	"github.com/asfalis/asfalis/db"
	"github.com/gofiber/fiber/v2"
)

// FindRepos lists registered repositories.
func FindRepos(c *fiber.Ctx) error {
	pagination, err := parsePagination(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	filter := db.RepoFilter{
		Owner:      c.Query("owner"),
		Pagination: pagination,
	}

	if unparsedInstallationID := c.Query("installation_id"); unparsedInstallationID != "" {
		installationID, err := strconv.ParseInt(unparsedInstallationID, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid installation_id parameter"})
		}
		filter.InstallationID = installationID
	}

	items, count, err := db.Connection().ListRepos(filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": items, "count": count})
}

// FindInstallations lists known app installations, revoked ones included.
func FindInstallations(c *fiber.Ctx) error {
	items, err := db.Connection().ListInstallations()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": items, "count": len(items)})
}
