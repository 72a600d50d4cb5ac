package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func serve(header string) (*httptest.ResponseRecorder, string) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) { seen = Value(c) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(HeaderKey, header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareKeepsInboundID(t *testing.T) {
	rec, seen := serve("batch-42")
	assert.Equal(t, "batch-42", seen)
	assert.Equal(t, "batch-42", rec.Header().Get(HeaderKey))
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	_, seen := serve("bad id with spaces\n")
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}
