package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/dto"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/models"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/response"
)

type assignmentScheduler interface {
	AssignTopics(ctx context.Context, placements []models.Placement) *dto.AssignTopicsResponse
	ChangeAssignment(ctx context.Context, placement models.Placement) (*models.DefenseAssignment, error)
	RemoveAssignment(ctx context.Context, topicCode, actor string) (*models.DefenseAssignment, error)
}

type autoAssigner interface {
	AutoAssign(ctx context.Context, opts models.AutoAssignOptions) (*models.AutoAssignResult, error)
}

// DefenseAssignmentHandler exposes manual and automatic topic placement.
type DefenseAssignmentHandler struct {
	scheduler assignmentScheduler
	auto      autoAssigner
}

// NewDefenseAssignmentHandler builds a new handler.
func NewDefenseAssignmentHandler(scheduler assignmentScheduler, auto autoAssigner) *DefenseAssignmentHandler {
	return &DefenseAssignmentHandler{scheduler: scheduler, auto: auto}
}

// AssignTopics godoc
// @Summary Assign topics to committees
// @Description Each placement is validated and committed on its own; the response lists per-topic outcomes.
// @Tags Defense Assignments
// @Accept json
// @Produce json
// @Param payload body dto.AssignTopicsRequest true "Placements"
// @Success 200 {object} response.Envelope
// @Router /defense-assignments [post]
func (h *DefenseAssignmentHandler) AssignTopics(c *gin.Context) {
	var req dto.AssignTopicsRequest
	if err := bindPayload(c, &req, "invalid assignment payload"); err != nil {
		response.Error(c, err)
		return
	}
	actor := actorFromContext(c)
	placements := make([]models.Placement, 0, len(req.Placements))
	for _, p := range req.Placements {
		placements = append(placements, p.ToPlacement(actor))
	}
	result := h.scheduler.AssignTopics(c.Request.Context(), placements)
	response.JSON(c, http.StatusOK, result, nil)
}

// AutoAssign godoc
// @Summary Auto-assign every available topic
// @Tags Defense Assignments
// @Accept json
// @Produce json
// @Param payload body dto.AutoAssignRequest false "Run options"
// @Success 200 {object} response.Envelope
// @Router /defense-assignments/auto [post]
func (h *DefenseAssignmentHandler) AutoAssign(c *gin.Context) {
	var req dto.AutoAssignRequest
	if c.Request.ContentLength != 0 {
		if err := bindPayload(c, &req, "invalid auto assign payload"); err != nil {
			response.Error(c, err)
			return
		}
	}
	result, err := h.auto.AutoAssign(c.Request.Context(), models.AutoAssignOptions{
		TagPriority:        req.TagPriority,
		PerSessionCap:      req.PerSessionCap,
		OverrideTopicCodes: req.OverrideTopicCodes,
		OverrideReason:     req.OverrideReason,
		DryRun:             req.DryRun,
		Actor:              actorFromContext(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{
		"assigned":   len(result.Assigned),
		"unassigned": len(result.Unassigned),
	})
}

// Change godoc
// @Summary Move a topic to another committee or slot
// @Tags Defense Assignments
// @Accept json
// @Produce json
// @Param topicCode path string true "Topic code"
// @Param payload body dto.ChangeAssignmentRequest true "Target placement"
// @Success 200 {object} response.Envelope
// @Router /defense-assignments/topics/{topicCode} [put]
func (h *DefenseAssignmentHandler) Change(c *gin.Context) {
	var req dto.ChangeAssignmentRequest
	if err := bindPayload(c, &req, "invalid assignment change payload"); err != nil {
		response.Error(c, err)
		return
	}
	placement := dto.PlacementRequest{
		TopicCode:      c.Param("topicCode"),
		CommitteeCode:  req.CommitteeCode,
		ScheduledAt:    req.ScheduledAt,
		TagOverride:    req.TagOverride,
		OverrideReason: req.OverrideReason,
	}.ToPlacement(actorFromContext(c))
	assignment, err := h.scheduler.ChangeAssignment(c.Request.Context(), placement)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Remove godoc
// @Summary Remove a topic's active assignment
// @Tags Defense Assignments
// @Produce json
// @Param topicCode path string true "Topic code"
// @Success 200 {object} response.Envelope
// @Success 204 "No active assignment"
// @Router /defense-assignments/topics/{topicCode} [delete]
func (h *DefenseAssignmentHandler) Remove(c *gin.Context) {
	removed, err := h.scheduler.RemoveAssignment(c.Request.Context(), c.Param("topicCode"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if removed == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, removed, nil)
}
