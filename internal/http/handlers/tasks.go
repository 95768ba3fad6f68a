package handlers

import (
	"net/http"

	"task_tracker/internal/service"

	"github.com/gin-gonic/gin"
)

type createListRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateList(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	var req createListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	list, err := h.Tasks.CreateList(c.Request.Context(), uid, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

func (h *Handler) ListLists(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	lists, err := h.Tasks.ListLists(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lists": lists})
}

func (h *Handler) GetList(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	listID, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.Tasks.GetList(c.Request.Context(), uid, listID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// UpdateList renames a list. PUT and PATCH both take {name}.
func (h *Handler) UpdateList(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	listID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	list, err := h.Tasks.UpdateList(c.Request.Context(), uid, listID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) ListTasksInList(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	listID, ok := pathID(c, "id")
	if !ok {
		return
	}
	tasks, err := h.Tasks.ListTasksInList(c.Request.Context(), uid, listID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) CreateTask(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	listID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.CreateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	task, err := h.Tasks.CreateTask(c.Request.Context(), uid, listID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// ListAssigned returns the caller's assigned tasks.
func (h *Handler) ListAssigned(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	tasks, err := h.Tasks.ListAssigned(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) GetTask(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.Tasks.GetTask(c.Request.Context(), uid, taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTask expects the updated_at the client last saw; a stale value is 409.
func (h *Handler) UpdateTask(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch service.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	task, err := h.Tasks.UpdateTask(c.Request.Context(), uid, taskID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) CompleteTask(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}

	task, completed, err := h.Tasks.CompleteTask(c.Request.Context(), uid, taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": completed, "task": task})
}

func (h *Handler) DeleteTask(c *gin.Context) {
	uid, ok := mustUserID(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Tasks.DeleteTask(c.Request.Context(), uid, taskID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
