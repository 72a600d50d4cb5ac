package router

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/handler"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/middleware"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/config"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/logger"
	corsmiddleware "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/middleware/requestid"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type requestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Handlers groups the HTTP handlers mounted by New.
type Handlers struct {
	Assignments  *handler.DefenseAssignmentHandler
	Committees   *handler.CommitteeHandler
	Availability *handler.AvailabilityHandler
	Lecturers    *handler.LecturerHandler
	Students     *handler.StudentDefenseHandler
	Ops          *handler.MetricsHandler
}

// New builds the gin engine with the global middleware chain and every route.
func New(cfg *config.Config, logr *zap.Logger, auth tokenValidator, observer requestObserver, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(observer))

	r.GET("/health", h.Ops.Health)
	r.GET("/ready", h.Ops.Ready)
	r.GET("/metrics", h.Ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	adminOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin), middleware.RoleSelf)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(auth))

	assignments := api.Group("/defense-assignments", admin)
	assignments.POST("", h.Assignments.AssignTopics)
	assignments.POST("/auto", h.Assignments.AutoAssign)
	assignments.PUT("/topics/:topicCode", h.Assignments.Change)
	assignments.DELETE("/topics/:topicCode", h.Assignments.Remove)

	committees := api.Group("/committees")
	committees.GET("", h.Committees.List)
	committees.GET("/:code", h.Committees.Get)
	committees.POST("", admin, h.Committees.Create)
	committees.PUT("/:code", admin, h.Committees.Update)
	committees.PUT("/:code/members", admin, h.Committees.SaveMembers)
	committees.DELETE("/:code", admin, h.Committees.Delete)
	committees.GET("/:code/export", admin, h.Committees.Export)
	committees.GET("/:code/audit", admin, h.Committees.AuditHistory)

	availability := api.Group("/availability", admin)
	availability.GET("/lecturers", h.Availability.Lecturers)
	availability.GET("/topics", h.Availability.Topics)

	lecturers := api.Group("/lecturers/:code", adminOrSelf)
	lecturers.GET("/committees", h.Lecturers.Committees)
	lecturers.GET("/committees.ics", h.Lecturers.Calendar)

	api.GET("/students/:code/defense", adminOrSelf, h.Students.Get)

	return r
}
