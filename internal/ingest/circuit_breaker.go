package ingest

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned while a category's breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker stops hammering a Catalog Source sheet that keeps failing.
// After threshold consecutive failures it opens for resetTimeout, then lets a
// single trial request through.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	logger           *logrus.Logger

	consecutiveFailures int
	isOpen              bool
	trialInFlight       bool
	openedAt            time.Time

	now   func() time.Time
	mutex sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, failureThreshold int, resetTimeout time.Duration, logger *logrus.Logger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		logger:           logger,
		now:              time.Now,
	}
}

// CanProceed checks if requests are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}
	if cb.trialInFlight {
		return false
	}
	if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.trialInFlight = true
		cb.logger.WithField("source", cb.name).Info("circuit breaker half-open, sending trial request")
		return true
	}
	return false
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.isOpen {
		cb.logger.WithField("source", cb.name).Info("circuit breaker closed")
	}
	cb.consecutiveFailures = 0
	cb.isOpen = false
	cb.trialInFlight = false
}

// RecordFailure counts a failed request and opens the breaker at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.consecutiveFailures++
	if cb.trialInFlight || cb.consecutiveFailures >= cb.failureThreshold {
		if !cb.isOpen || cb.trialInFlight {
			cb.logger.WithFields(logrus.Fields{
				"source":   cb.name,
				"failures": cb.consecutiveFailures,
				"retry_in": cb.resetTimeout.String(),
			}).Warn("circuit breaker open")
		}
		cb.isOpen = true
		cb.trialInFlight = false
		cb.openedAt = cb.now()
	}
}

// Status returns current circuit breaker status
func (cb *CircuitBreaker) Status() (isOpen bool, consecutiveFailures int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.consecutiveFailures
}
