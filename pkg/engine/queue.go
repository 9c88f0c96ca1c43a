package engine

import (
	"sync"

	"agentscan/pkg/logger"

	"github.com/sirupsen/logrus"
)

// RunQueue serialises workflow runs with a simple semaphore. Server mode
// uses a single slot so two workflows never write the scans tree at once.
type RunQueue struct {
	semaphore chan struct{}
	running   int
	queued    int
	mu        sync.Mutex
	logger    *logger.Logger
}

var (
	globalQueue *RunQueue
	queueOnce   sync.Once
)

func NewRunQueue(maxConcurrent int, l *logger.Logger) *RunQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if l == nil {
		l = logger.NewLogger(logrus.InfoLevel)
	}
	q := &RunQueue{
		semaphore: make(chan struct{}, maxConcurrent),
		logger:    l,
	}
	q.logger.WithFields(logger.Fields{
		"max_concurrent": maxConcurrent,
	}).Info("Run queue initialized")
	return q
}

// InitGlobalQueue initializes the global run queue with max concurrency
func InitGlobalQueue(maxConcurrent int) {
	queueOnce.Do(func() {
		globalQueue = NewRunQueue(maxConcurrent, nil)
	})
}

// GetGlobalQueue returns the global queue instance (initializes with a single slot if needed)
func GetGlobalQueue() *RunQueue {
	InitGlobalQueue(1)
	return globalQueue
}

// ExecuteWithQueue blocks until a slot is available, then runs fn
func (q *RunQueue) ExecuteWithQueue(fn func() error) error {
	q.mu.Lock()
	q.queued++
	currentQueued := q.queued
	currentRunning := q.running
	q.mu.Unlock()

	q.logger.WithFields(logger.Fields{
		"queued":  currentQueued,
		"running": currentRunning,
		"slots":   cap(q.semaphore),
	}).Info("Run added to queue")

	q.semaphore <- struct{}{}

	q.mu.Lock()
	q.queued--
	q.running++
	q.mu.Unlock()

	defer func() {
		<-q.semaphore
		q.mu.Lock()
		q.running--
		remainingRunning := q.running
		remainingQueued := q.queued
		q.mu.Unlock()

		q.logger.WithFields(logger.Fields{
			"running": remainingRunning,
			"queued":  remainingQueued,
		}).Info("Run completed, slot released")
	}()

	return fn()
}

// GetStatus returns current queue status
func (q *RunQueue) GetStatus() (running, queued, maxConcurrent int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running, q.queued, cap(q.semaphore)
}
