package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/response"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler reports dependency health and runtime stats.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(db Pinger, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemHealth struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	Postgres       string `json:"postgres"`
	Redis          string `json:"redis"`
	ViolationQueue int64  `json:"violation_queue"`
	Goroutines     int    `json:"goroutines"`
	HeapAlloc      uint64 `json:"heap_alloc"`
	GoVersion      string `json:"go_version"`
}

// Health godoc
// GET /api/v1/system/health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := systemHealth{
		Status:     "ok",
		Uptime:     formatDuration(time.Since(h.startTime)),
		Postgres:   "disabled",
		Redis:      "disabled",
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		GoVersion:  runtime.Version(),
	}

	if h.db != nil {
		m.Postgres = "ok"
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Postgres health check failed")
			m.Postgres, m.Status = "down", "degraded"
		}
	}

	if h.rdb != nil {
		m.Redis = "ok"
		pipe := h.rdb.Pipeline()
		pingCmd := pipe.Ping(ctx)
		queueCmd := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
		if _, err := pipe.Exec(ctx); err != nil || pingCmd.Err() != nil {
			h.log.Warn().Err(err).Msg("Redis health check failed")
			m.Redis, m.Status = "down", "degraded"
		} else {
			m.ViolationQueue, _ = queueCmd.Result()
		}
	}

	status := http.StatusOK
	if m.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, m)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
