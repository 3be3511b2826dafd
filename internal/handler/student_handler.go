package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusdesk/student-admin-api/internal/models"
	"github.com/campusdesk/student-admin-api/internal/service"
	appErrors "github.com/campusdesk/student-admin-api/pkg/errors"
	"github.com/campusdesk/student-admin-api/pkg/response"
)

// StudentHandler wires HTTP endpoints to the student service.
type StudentHandler struct {
	service *service.StudentService
}

// NewStudentHandler creates a new handler.
func NewStudentHandler(svc *service.StudentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// List godoc
// @Summary List students
// @Description Paginated roster sorted by enrollment date, newest first
// @Tags Students
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size, capped at 100"
// @Param search query string false "Case-insensitive name filter"
// @Success 200 {object} models.StudentList
// @Failure 401 {object} errors.Error
// @Failure 403 {object} errors.Error
// @Security BearerAuth
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	filter := models.StudentFilter{
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result)
}

// Create godoc
// @Summary Create a student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} models.Student
// @Failure 400 {object} errors.Error
// @Security BearerAuth
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "Missing fields"))
		return
	}

	student, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, student)
}

// Update godoc
// @Summary Update a student
// @Description Replace the provided fields on a roster record
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Fields to update"
// @Success 200 {object} models.Student
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}

	student, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, student)
}

// Delete godoc
// @Summary Delete a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.MessageBody
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Deleted")
}

// ClearAll godoc
// @Summary Delete every student
// @Tags Students
// @Produce json
// @Success 200 {object} response.MessageBody
// @Security BearerAuth
// @Router /students [delete]
func (h *StudentHandler) ClearAll(c *gin.Context) {
	if err := h.service.ClearAll(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "All students deleted")
}

// Search godoc
// @Summary Search students
// @Description Filter by name substring and exact course, unpaginated
// @Tags Students
// @Produce json
// @Param name query string false "Name substring, case-insensitive"
// @Param course query string false "Exact course"
// @Success 200 {array} models.Student
// @Security BearerAuth
// @Router /students/search [get]
func (h *StudentHandler) Search(c *gin.Context) {
	students, err := h.service.Search(c.Request.Context(), c.Query("name"), c.Query("course"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students)
}

// ExportCSV godoc
// @Summary Export the roster as CSV
// @Tags Students
// @Produce text/csv
// @Success 200 {file} file
// @Security BearerAuth
// @Router /students/export/csv [get]
func (h *StudentHandler) ExportCSV(c *gin.Context) {
	h.export(c, service.ExportFormatCSV)
}

// ExportPDF godoc
// @Summary Export the roster as PDF
// @Tags Students
// @Produce application/pdf
// @Success 200 {file} file
// @Security BearerAuth
// @Router /students/export/pdf [get]
func (h *StudentHandler) ExportPDF(c *gin.Context) {
	h.export(c, service.ExportFormatPDF)
}

func (h *StudentHandler) export(c *gin.Context, format service.ExportFormat) {
	result, err := h.service.Export(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer h.service.RemoveExport(result.RelativePath)

	file, err := h.service.OpenExport(result.RelativePath)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to open export"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to stat export"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), result.ContentType, file, nil)
}

// GetMine godoc
// @Summary Get own profile
// @Description Returns the caller's student profile. Admins may pass userId to inspect another profile.
// @Tags Profile
// @Produce json
// @Param userId query string false "Target user or student id (admin only)"
// @Success 200 {object} models.Student
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /students/me [get]
func (h *StudentHandler) GetMine(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	student, err := h.service.GetMine(c.Request.Context(), user, c.Query("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// UpdateMine godoc
// @Summary Update own profile
// @Description Updates name, email and course on the caller's profile. Name and email propagate to the account.
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body service.UpdateProfileRequest true "Fields to update"
// @Success 200 {object} models.Student
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /students/me [put]
func (h *StudentHandler) UpdateMine(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}

	student, err := h.service.UpdateMine(c.Request.Context(), user, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// UploadPicture godoc
// @Summary Upload a profile picture
// @Description Accepts a multipart form with field profilePic and records its public path.
// @Tags Profile
// @Accept multipart/form-data
// @Produce json
// @Param profilePic formData file true "Image file"
// @Success 200 {object} handler.UploadResponse
// @Failure 404 {object} errors.Error
// @Security BearerAuth
// @Router /students/me/upload [post]
func (h *StudentHandler) UploadPicture(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("profilePic")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "profilePic file required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	student, err := h.service.UploadPicture(c.Request.Context(), user, fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, UploadResponse{
		Message: "Profile picture uploaded",
		Path:    student.ProfilePic,
	})
}

// UploadResponse confirms a stored profile picture.
type UploadResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}
