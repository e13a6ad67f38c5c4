package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
)

var ErrJobNotFound = errors.New("job not found")

// JobStore keeps run records in Redis for a limited time.
type JobStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewJobStore(redisClient *redis.Client, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JobStore{redis: redisClient, ttl: ttl}
}

func (s *JobStore) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, s.ttl).Err()
}

func (s *JobStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}
