package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestErrorRendersDetails(t *testing.T) {
	c, rec := newContext()
	Error(c, appErrors.WithDetails(appErrors.ErrPlacementRejected, "committee has no chair", map[string]string{"kind": "MissingChair"}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_FAILURE", body.Error.Code)
	assert.Equal(t, "MissingChair", body.Error.Details["kind"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestErrorRecordsInternalCause(t *testing.T) {
	c, rec := newContext()
	Error(c, errors.New("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Len(t, c.Errors, 1)
}

func TestJSONWithPagination(t *testing.T) {
	c, rec := newContext()
	JSON(c, http.StatusOK, []string{"L01"}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1})
	assert.Contains(t, rec.Body.String(), `"total_count":1`)
}

func TestAttachment(t *testing.T) {
	c, rec := newContext()
	Attachment(c, "C1.csv", "text/csv", []byte("a,b\n"))
	assert.Equal(t, `attachment; filename="C1.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", rec.Body.String())
}
