package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studia-backend/internal/models"
)

const reconcileQueue = "queue:reconcile"

// SweepScheduler is the in-process stand-in for the cron trigger: on every
// tick it enqueues an all-users reconcile job. The sweep itself is
// level-triggered, so a missed or doubled tick is harmless.
type SweepScheduler struct {
	redis    *redis.Client
	interval time.Duration
	stopChan chan struct{}
}

func NewSweepScheduler(redisClient *redis.Client, interval time.Duration) *SweepScheduler {
	return &SweepScheduler{
		redis:    redisClient,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *SweepScheduler) Start() {
	go s.loop()
	log.Printf("Sweep scheduler started (every %s)", s.interval)
}

func (s *SweepScheduler) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *SweepScheduler) loop() {
	// Enqueue on startup as well as by interval.
	s.enqueue()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.enqueue()
		}
	}
}

func (s *SweepScheduler) enqueue() {
	job := models.ReconcileJob{ID: uuid.New(), Scope: "all"}
	data, _ := json.Marshal(job)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.redis.RPush(ctx, reconcileQueue, string(data)).Err(); err != nil {
		log.Printf("sweep scheduler: failed to enqueue job: %v", err)
	}
}
