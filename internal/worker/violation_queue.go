package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ViolationQueue publishes violation events for ViolationWorker.
type ViolationQueue struct {
	rdb *redis.Client
}

func NewViolationQueue(rdb *redis.Client) *ViolationQueue {
	return &ViolationQueue{rdb: rdb}
}

// PublishViolation pushes one event onto the persistence queue.
func (q *ViolationQueue) PublishViolation(ctx context.Context, event model.ViolationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err()
}
