package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/storage"
)

// RouterConfig is the configuration of the HTTP router.
type RouterConfig struct {
	Scheduler      Scheduler
	TaskRepository storage.TaskRepository
	KVRepository   storage.KVRepository
	Logger         log.Logger
}

func (c *RouterConfig) defaults() error {
	if c.Scheduler == nil {
		return fmt.Errorf("scheduler is required")
	}
	if c.TaskRepository == nil {
		return fmt.Errorf("task repository is required")
	}
	if c.KVRepository == nil {
		return fmt.Errorf("kv repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// NewRouter returns the HTTP router with the task API.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := NewTaskHandler(cfg.Scheduler, cfg.TaskRepository, cfg.KVRepository, cfg.Logger)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))
	v1 := router.Group("/v1")
	{
		v1.POST("/tasks", h.ScheduleTask)
		v1.GET("/tasks", h.ListTasks)
		v1.GET("/health", h.Health)
	}

	return router, nil
}

func requestLogger(logger log.Logger) gin.HandlerFunc {
	logger = logger.WithValues(log.Kv{"svc": "http.Router"})
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithValues(log.Kv{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Debugf("Request handled in %s", time.Since(start))
	}
}
