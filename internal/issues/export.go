package issues

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
	"github.com/trackline/backend/pkg/storage"
)

// Exporter writes project issue exports to S3 and hands back a presigned
// download URL.
type Exporter struct {
	repo *Repository
	s3   *storage.S3
}

// NewExporter creates an issues exporter.
func NewExporter(repo *Repository, s3 *storage.S3) *Exporter {
	return &Exporter{repo: repo, s3: s3}
}

// Export handles POST /projects/:projectId/issues/export?format=csv|json
// (viewer). The file is uploaded to the exports bucket and the caller
// receives a short-lived download URL.
func (e *Exporter) Export(c *gin.Context) {
	if e.s3 == nil {
		response.Error(c, apperror.Internal("storage not configured"))
		return
	}
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "json" {
		response.Error(c, apperror.Validation("format", "must be csv or json"))
		return
	}
	projectID := access.ProjectID(c)

	list, err := e.repo.ListByProject(c.Request.Context(), projectID, ListFilter{})
	if err != nil {
		response.Error(c, err)
		return
	}

	var buf bytes.Buffer
	var contentType string
	switch format {
	case "json":
		contentType = "application/json"
		if err := json.NewEncoder(&buf).Encode(list); err != nil {
			response.Error(c, err)
			return
		}
	default:
		contentType = "text/csv"
		if err := writeCSV(&buf, list); err != nil {
			response.Error(c, err)
			return
		}
	}

	key := storage.ExportKey(projectID.String(), uuid.New().String(), format)
	if err := e.s3.Upload(c.Request.Context(), e.s3.ExportsBucket(), key, contentType, &buf); err != nil {
		response.Error(c, err)
		return
	}
	url, err := e.s3.GeneratePresignedDownloadURL(c.Request.Context(), e.s3.ExportsBucket(), key, e.s3.PresignExpire())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"url":        url,
		"format":     format,
		"count":      len(list),
		"expires_in": int(e.s3.PresignExpire().Seconds()),
	})
}

func writeCSV(buf *bytes.Buffer, list []*models.Issue) error {
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"key", "title", "type", "priority", "status", "assignee_id", "story_points", "due_date", "created_at"}); err != nil {
		return err
	}
	for _, i := range list {
		assignee := ""
		if i.AssigneeID != nil {
			assignee = i.AssigneeID.String()
		}
		points := ""
		if i.StoryPoints != nil {
			points = strconv.Itoa(*i.StoryPoints)
		}
		due := ""
		if i.DueDate != nil {
			due = i.DueDate.Format(time.RFC3339)
		}
		if err := w.Write([]string{
			i.Key, i.Title, i.Type, i.Priority, i.Status,
			assignee, points, due, i.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
