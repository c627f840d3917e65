package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"studia-backend/internal/models"
	"studia-backend/internal/services"
)

// Pool consumes reconcile jobs from the Redis queue. Multiple replicas can
// run the same pool: each job is claimed with a short lock, and the sweep
// itself only performs guarded transitions.
type Pool struct {
	redis       *redis.Client
	reconcile   *services.ReconcileService
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, reconcile *services.ReconcileService, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		reconcile:   reconcile,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	queues := []string{"queue:reconcile"}

	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, queues)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int, queues []string) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, queues...).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.ReconcileJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		log.Printf("Worker %d: running reconcile sweep %s (scope: %s)", id, job.ID, job.Scope)

		res, err := p.reconcile.Run(ctx, job.UserID, time.Now().UTC())
		if err != nil {
			log.Printf("Worker %d: sweep %s failed: %v", id, job.ID, err)
		} else {
			log.Printf("Worker %d: sweep %s done (processed: %d, completed: %d)", id, job.ID, res.Processed, res.Completed)
		}

		// Release lock
		p.redis.Del(ctx, lockKey)
	}
}
