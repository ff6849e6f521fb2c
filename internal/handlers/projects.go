package handlers

import (
	"net/http"

	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/gin-gonic/gin"
)

// DeletedHook runs after a project was removed, for cleanup elsewhere.
type DeletedHook func(userID, projectID string)

type ProjectsHandler struct {
	projects  *store.Projects
	onDeleted DeletedHook
}

func NewProjectsHandler(projects *store.Projects, onDeleted DeletedHook) *ProjectsHandler {
	return &ProjectsHandler{projects: projects, onDeleted: onDeleted}
}

// ListProjects godoc
// @Summary     List projects
// @Description Returns the user's presets and artworks, newest first
// @Tags        projects
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.ProjectLists
// @Router      /projects [get]
func (h *ProjectsHandler) ListProjects(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	lists, err := h.projects.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to list projects")
		return
	}
	c.JSON(http.StatusOK, lists)
}

// DeleteProject godoc
// @Summary     Delete a project
// @Tags        projects
// @Produce     json
// @Security    Bearer
// @Param       project_id path string true "Project ID"
// @Success     200 {object} models.DeleteProjectsResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /projects/{project_id} [delete]
func (h *ProjectsHandler) DeleteProject(c *gin.Context) {
	userID, project, ok := h.ownedProject(c)
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), project.ID); err != nil {
		respondError(c, err, "failed to delete project")
		return
	}
	h.deleted(userID, project.ID)
	c.JSON(http.StatusOK, models.DeleteProjectsResponse{Deleted: 1})
}

// DeleteProjects godoc
// @Summary     Delete several projects
// @Description Removes a multi-selection. Ids that are unknown or belong to someone else are ignored.
// @Tags        projects
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.DeleteProjectsRequest true "Project IDs"
// @Success     200 {object} models.DeleteProjectsResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /projects/delete [post]
func (h *ProjectsHandler) DeleteProjects(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.DeleteProjectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	removed, err := h.projects.DeleteMany(c.Request.Context(), userID, req.IDs)
	if err != nil {
		respondError(c, err, "failed to delete projects")
		return
	}
	for _, id := range removed {
		h.deleted(userID, id)
	}
	c.JSON(http.StatusOK, models.DeleteProjectsResponse{Deleted: len(removed)})
}

// SelectProject godoc
// @Summary     Select a project
// @Tags        projects
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       project_id path string true "Project ID"
// @Param       request body models.SelectProjectRequest true "Selection flag"
// @Success     200 {object} models.Project
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /projects/{project_id} [patch]
func (h *ProjectsHandler) SelectProject(c *gin.Context) {
	_, project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	var req models.SelectProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	if err := h.projects.SetSelected(c.Request.Context(), project.ID, req.IsSelected); err != nil {
		respondError(c, err, "failed to update project")
		return
	}
	project.IsSelected = req.IsSelected
	c.JSON(http.StatusOK, project)
}

func (h *ProjectsHandler) ownedProject(c *gin.Context) (string, models.Project, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return "", models.Project{}, false
	}
	project, err := h.projects.Get(c.Request.Context(), c.Param("project_id"))
	if err == nil && project.UserID != userID {
		err = store.ErrNotFound
	}
	if err != nil {
		respondError(c, err, "project not found")
		return "", models.Project{}, false
	}
	return userID, project, true
}

func (h *ProjectsHandler) deleted(userID, projectID string) {
	if h.onDeleted != nil {
		h.onDeleted(userID, projectID)
	}
}
