package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/asfalis/asfalis/db"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ScanCreateInput defines the acceptable input for enqueueing a scan
type ScanCreateInput struct {
	RepoID int64  `json:"repo_id" validate:"required,min=1"`
	Branch string `json:"branch" validate:"omitempty,max=255"`
}

// CreateScan enqueues a scan run for a registered repository. The run is
// inserted as queued; a worker picks it up from there.
func CreateScan(c *fiber.Ctx) error {
	input := new(ScanCreateInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	validate := validator.New()
	if err := validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	repo, err := db.Connection().GetRepoByID(input.RepoID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Repository not registered"})
	}

	run, err := db.Connection().CreateScanRun(&db.ScanRun{
		RepoID:         repo.RepoID,
		InstallationID: repo.InstallationID,
		Trigger:        db.ScanRunTriggerManual,
		Status:         db.ScanRunStatusQueued,
		Branch:         input.Branch,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": run})
}

// FindScans lists scan runs, newest first, filterable by repo and status.
func FindScans(c *fiber.Ctx) error {
	pagination, err := parsePagination(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	filter := db.ScanRunFilter{Pagination: pagination}

	if unparsedRepoID := c.Query("repo_id"); unparsedRepoID != "" {
		repoID, err := strconv.ParseInt(unparsedRepoID, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid repo_id parameter"})
		}
		filter.RepoID = repoID
	}

	if unparsedStatuses := c.Query("status"); unparsedStatuses != "" {
		for _, status := range strings.Split(unparsedStatuses, ",") {
			parsed := db.ScanRunStatus(status)
			switch parsed {
			case db.ScanRunStatusQueued, db.ScanRunStatusRunning, db.ScanRunStatusCompleted, db.ScanRunStatusFailed:
				filter.Statuses = append(filter.Statuses, parsed)
			default:
				log.Warn().Str("status", status).Msg("Invalid filter status provided")
			}
		}
	}

	items, count, err := db.Connection().ListScanRuns(filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": items, "count": count})
}

// GetScanDetail returns one scan run with its stages ordered by start time.
func GetScanDetail(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid scan run ID"})
	}

	run, err := db.Connection().GetScanRunByID(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Scan run not found"})
	}

	stages, err := db.Connection().ListScanStages(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"data": run, "stages": stages})
}

// FindScanFindings returns a run's findings, most severe first.
func FindScanFindings(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid scan run ID"})
	}

	pagination, err := parsePagination(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	filter := db.FindingFilter{ScanRunID: id, Pagination: pagination}

	if unparsedTools := c.Query("tools"); unparsedTools != "" {
		for _, tool := range strings.Split(unparsedTools, ",") {
			parsed := db.FindingTool(tool)
			switch parsed {
			case db.FindingToolOSV, db.FindingToolSemgrep, db.FindingToolCodeQL:
				filter.Tools = append(filter.Tools, parsed)
			default:
				log.Warn().Str("tool", tool).Msg("Invalid filter tool provided")
			}
		}
	}

	if unparsedSeverities := c.Query("severities"); unparsedSeverities != "" {
		filter.Severities = strings.Split(unparsedSeverities, ",")
	}

	items, count, err := db.Connection().ListFindings(filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": items, "count": count})
}

// FindScanArtifacts lists a run's stored artifacts without their content.
func FindScanArtifacts(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid scan run ID"})
	}

	items, err := db.Connection().ListScanArtifacts(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": items, "count": len(items)})
}

// GetScanArtifact returns one stored artifact document verbatim.
func GetScanArtifact(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid scan run ID"})
	}

	artifact, err := db.Connection().GetScanArtifact(id, c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Artifact not found"})
	}

	c.Set(fiber.HeaderContentType, artifact.ContentType)
	return c.Status(http.StatusOK).SendString(artifact.Content)
}

// parsePagination reads page/page_size query parameters with the usual
// defaults.
func parsePagination(c *fiber.Ctx) (db.Pagination, error) {
	pageSize, err := strconv.Atoi(c.Query("page_size", "50"))
	if err != nil {
		return db.Pagination{}, fiber.NewError(fiber.StatusBadRequest, "Invalid page size parameter")
	}
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil {
		return db.Pagination{}, fiber.NewError(fiber.StatusBadRequest, "Invalid page parameter")
	}
	return db.Pagination{Page: page, PageSize: pageSize}, nil
}
