package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/middleware"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

var payloadValidator = validator.New()

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext names the caller for audit records.
func actorFromContext(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil && claims.UserID != "" {
		return claims.UserID
	}
	return "anonymous"
}

// bindPayload decodes and validates a JSON body.
func bindPayload(c *gin.Context, req interface{}, message string) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
	}
	if err := payloadValidator.Struct(req); err != nil {
		return appErrors.WithDetails(appErrors.ErrValidation, message, err.Error())
	}
	return nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+key)
	}
	return v, nil
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, appErrors.Clone(appErrors.ErrValidation, "invalid "+key)
	}
	return v, nil
}

func queryDate(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+key+", expected YYYY-MM-DD")
	}
	return &d, nil
}

func queryPage(c *gin.Context) (int, int, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := queryInt(c, "page_size")
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func cacheMeta(hit bool) map[string]interface{} {
	return map[string]interface{}{"cached": hit}
}
