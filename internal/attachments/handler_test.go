package attachments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/backend/internal/access"
	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

func TestHandlersRejectWhenStorageDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil) // server runs without S3 when it is unconfigured

	issue := &models.Issue{ID: uuid.New(), ProjectID: uuid.New()}
	withIssue := func(c *gin.Context) {
		c.Set(access.ContextEntity, issue)
		c.Next()
	}

	router := gin.New()
	router.POST("/issues/:issueId/attachments/upload-url", withIssue, h.UploadURL)
	router.GET("/issues/:issueId/attachments/download-url", withIssue, h.DownloadURL)
	router.DELETE("/issues/:issueId/attachments", withIssue, h.Delete)

	base := "/issues/" + issue.ID.String() + "/attachments"
	requests := []*http.Request{
		httptest.NewRequest(http.MethodPost, base+"/upload-url", strings.NewReader(`{"filename":"a.png"}`)),
		httptest.NewRequest(http.MethodGet, base+"/download-url?filename=a.png", nil),
		httptest.NewRequest(http.MethodDelete, base+"?filename=a.png", nil),
	}
	for _, req := range requests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code, req.URL.Path)
		var body response.Body
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.NotNil(t, body.Error)
		assert.Equal(t, apperror.CodeInternal, body.Error.Code)
		assert.Equal(t, "storage not configured", body.Error.Message)
	}
}
