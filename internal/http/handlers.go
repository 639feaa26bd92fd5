package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slok/bosync/internal/app/schedule"
	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/storage"
)

// Scheduler schedules tasks.
type Scheduler interface {
	Schedule(ctx context.Context, req schedule.Request) (*model.Task, error)
	Reschedule(ctx context.Context, req schedule.Request) (*model.Task, error)
}

type TaskHandler struct {
	scheduler Scheduler
	tasks     storage.TaskRepository
	kv        storage.KVRepository
	logger    log.Logger
}

type ScheduleTaskRequest struct {
	Type     string         `json:"type" binding:"required"`
	TargetID int64          `json:"target_id" binding:"gte=0"`
	MetaData map[string]any `json:"meta_data"`
	ForceAdd bool           `json:"force_add"`
}

// TaskResponse is the JSON view of a task.
type TaskResponse struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	Type              string         `json:"type"`
	TypeGroup         string         `json:"type_group"`
	TargetID          int64          `json:"target_id"`
	MetaData          map[string]any `json:"meta_data,omitempty"`
	Status            string         `json:"status"`
	TimesRan          int            `json:"times_ran"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	LastProcessedAt   *time.Time     `json:"last_processed_at,omitempty"`
	ExecutionDuration string         `json:"execution_duration,omitempty"`
	ErrorOutput       string         `json:"error_output,omitempty"`
}

// HealthResponse is the health of the synchronization.
type HealthResponse struct {
	Status       string `json:"status"`
	LastSuccess  string `json:"last_success,omitempty"`
	HadFailure   bool   `json:"had_failure"`
	PendingTasks int64  `json:"pending_tasks"`
	FailedTasks  int64  `json:"failed_tasks"`
}

func NewTaskHandler(scheduler Scheduler, tasks storage.TaskRepository, kv storage.KVRepository, logger log.Logger) *TaskHandler {
	if logger == nil {
		logger = log.Noop
	}
	return &TaskHandler{
		scheduler: scheduler,
		tasks:     tasks,
		kv:        kv,
		logger:    logger.WithValues(log.Kv{"svc": "http.TaskHandler"}),
	}
}

func (h *TaskHandler) ScheduleTask(c *gin.Context) {
	var req ScheduleTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sreq := schedule.Request{
		Type:     model.TaskType(req.Type),
		TargetID: req.TargetID,
		MetaData: req.MetaData,
		ForceAdd: req.ForceAdd,
	}

	schedFn := h.scheduler.Schedule
	if reschedule, _ := strconv.ParseBool(c.Query("reschedule")); reschedule {
		schedFn = h.scheduler.Reschedule
	}

	t, err := schedFn(c, sreq)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	h.logger.Debugf("Task %s scheduled with id %d", t.Name, t.ID)
	c.JSON(http.StatusCreated, mapTask(*t))
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	filter := model.TaskFilter{}
	if s := c.Query("status"); s != "" {
		status := model.TaskStatus(s)
		if err := status.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Statuses = []model.TaskStatus{status}
	}
	if t := c.Query("type"); t != "" {
		typ := model.TaskType(t)
		if err := typ.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Types = []model.TaskType{typ}
	}
	if l := c.Query("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	tasks, err := h.tasks.ListTasks(c, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, mapTask(t))
	}

	c.JSON(http.StatusOK, gin.H{"tasks": resp})
}

func (h *TaskHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}

	last, err := h.kv.GetValue(c, conventions.KVKeyLastSuccess)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp.LastSuccess = last

	hadFailure, err := h.kv.GetValue(c, conventions.KVKeyHadFailure)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp.HadFailure, _ = strconv.ParseBool(hadFailure)
	if resp.HadFailure {
		resp.Status = "degraded"
	}

	resp.PendingTasks, err = h.tasks.CountTasks(c, model.TaskFilter{Statuses: []model.TaskStatus{model.TaskStatusNew}})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp.FailedTasks, err = h.tasks.CountTasks(c, model.TaskFilter{Statuses: []model.TaskStatus{model.TaskStatusFailed}})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, model.ErrNotValid), errors.Is(err, model.ErrUnknownTaskType):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func mapTask(t model.Task) TaskResponse {
	r := TaskResponse{
		ID:              t.ID,
		Name:            t.Name,
		Type:            string(t.Type),
		TypeGroup:       t.TypeGroup,
		TargetID:        t.TargetID,
		MetaData:        t.MetaData,
		Status:          string(t.Status),
		TimesRan:        t.TimesRan,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		LastProcessedAt: t.LastProcessedAt,
		ErrorOutput:     t.ErrorOutput,
	}
	if t.ExecutionDuration > 0 {
		r.ExecutionDuration = t.ExecutionDuration.String()
	}
	return r
}
