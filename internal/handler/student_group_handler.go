package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jetbrains-academy/lms-sub000/internal/models"
	"github.com/jetbrains-academy/lms-sub000/internal/service"
	appErrors "github.com/jetbrains-academy/lms-sub000/pkg/errors"
	"github.com/jetbrains-academy/lms-sub000/pkg/response"
)

// StudentGroupHandler exposes student group endpoints.
type StudentGroupHandler struct {
	groups *service.StudentGroupService
}

// NewStudentGroupHandler constructs StudentGroupHandler.
func NewStudentGroupHandler(groups *service.StudentGroupService) *StudentGroupHandler {
	return &StudentGroupHandler{groups: groups}
}

type updateGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type transferRequest struct {
	DestGroupID   string   `json:"dest_group_id" binding:"required"`
	EnrollmentIDs []string `json:"enrollment_ids" binding:"required"`
	AllowUnsafe   bool     `json:"allow_unsafe"`
}

// List godoc
// @Summary List groups of a course
// @Tags StudentGroups
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/groups [get]
func (h *StudentGroupHandler) List(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Create godoc
// @Summary Create a student group
// @Tags StudentGroups
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body models.CreateStudentGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{courseId}/groups [post]
func (h *StudentGroupHandler) Create(c *gin.Context) {
	var req models.CreateStudentGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.CourseID = c.Param("courseId")
	group, err := h.groups.Create(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Rename a student group
// @Tags StudentGroups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body handler.updateGroupRequest true "Rename payload"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [put]
func (h *StudentGroupHandler) Update(c *gin.Context) {
	var req updateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	group, err := h.groups.Update(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Remove a student group
// @Tags StudentGroups
// @Produce json
// @Param id path string true "Group ID"
// @Success 204 "No Content"
// @Router /groups/{id} [delete]
func (h *StudentGroupHandler) Delete(c *gin.Context) {
	if err := h.groups.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Members godoc
// @Summary List active members of a group
// @Tags StudentGroups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/enrollments [get]
func (h *StudentGroupHandler) Members(c *gin.Context) {
	enrollments, err := h.groups.ListEnrollments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// SafeTransferTargets godoc
// @Summary List groups students can move to without losing assignments
// @Tags StudentGroups
// @Produce json
// @Param id path string true "Source group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/safe-transfer-targets [get]
func (h *StudentGroupHandler) SafeTransferTargets(c *gin.Context) {
	targets, err := h.groups.GetGroupsForSafeTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, targets, nil)
}

// Transfer godoc
// @Summary Move students to another group
// @Tags StudentGroups
// @Accept json
// @Produce json
// @Param id path string true "Source group ID"
// @Param payload body handler.transferRequest true "Transfer payload"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/transfer [post]
func (h *StudentGroupHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	err := h.groups.TransferStudents(c.Request.Context(), c.Param("id"), req.DestGroupID, req.EnrollmentIDs, req.AllowUnsafe)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"transferred": len(req.EnrollmentIDs)}, nil)
}
