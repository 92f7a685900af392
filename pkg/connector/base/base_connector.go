// Package base provides the foundational BaseConnector that sources and
// destinations embed. It bundles the shared production concerns: circuit
// breaker protection, rate limiting, health monitoring, retry logic, and
// metrics collection.
//
// Connectors embed BaseConnector:
//
//	type GCSDestination struct {
//	    *base.BaseConnector
//	    // connector-specific fields
//	}
//
//	func NewGCSDestination() *GCSDestination {
//	    return &GCSDestination{
//	        BaseConnector: base.NewBaseConnector("gcs", core.ConnectorTypeDestination, "1.0.0"),
//	    }
//	}
package base

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zenithml/zenith/pkg/clients"
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/logger"
	"github.com/zenithml/zenith/pkg/metrics"
)

// BaseConnector provides common functionality for all connectors.
type BaseConnector struct {
	name          string
	connectorType core.ConnectorType
	version       string
	config        *config.BaseConfig
	logger        *zap.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
	closeMutex sync.Mutex

	circuitBreaker   *clients.CircuitBreaker
	rateLimiter      *clients.RateLimiter
	healthChecker    *HealthChecker
	metricsCollector *metrics.Collector
	retryPolicy      *RetryPolicy
}

// NewBaseConnector creates a new base connector. Called by connector
// implementations during construction.
func NewBaseConnector(name string, connectorType core.ConnectorType, version string) *BaseConnector {
	return &BaseConnector{
		name:          name,
		connectorType: connectorType,
		version:       version,
		logger:        logger.Get().With(zap.String("connector", name)),
	}
}

// Initialize sets up circuit breaker, rate limiting, health monitoring,
// metrics, and retry policy. Must be called before the connector is used.
func (bc *BaseConnector) Initialize(ctx context.Context, config *config.BaseConfig) error {
	bc.config = config
	bc.ctx, bc.cancel = context.WithCancel(ctx)

	if config.Reliability.CircuitBreaker {
		bc.circuitBreaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Timeout:          30 * time.Second,
		}, bc.logger)
	}

	if config.Reliability.RateLimitPerSec > 0 {
		bc.rateLimiter = clients.NewRateLimiter(
			config.Reliability.RateLimitPerSec,
			config.Reliability.RateLimitPerSec*2,
		)
	}

	if config.Reliability.HealthCheck {
		bc.healthChecker = NewHealthChecker(bc.name, 30*time.Second)
		bc.healthChecker.Start(bc.ctx)
	}

	bc.metricsCollector = metrics.NewCollector(bc.name)

	bc.retryPolicy = NewRetryPolicy(
		config.Reliability.RetryAttempts,
		config.Reliability.RetryDelay,
	)
	bc.retryPolicy.Multiplier = config.Reliability.RetryMultiplier
	if config.Reliability.MaxRetryDelay > 0 {
		bc.retryPolicy.MaxDelay = config.Reliability.MaxRetryDelay
	}

	bc.logger.Info("connector initialized",
		zap.String("type", string(bc.connectorType)),
		zap.String("version", bc.version))

	return nil
}

// Name returns the connector name
func (bc *BaseConnector) Name() string {
	return bc.name
}

// Type returns the connector type
func (bc *BaseConnector) Type() core.ConnectorType {
	return bc.connectorType
}

// Version returns the connector version
func (bc *BaseConnector) Version() string {
	return bc.version
}

// Config returns the connector configuration
func (bc *BaseConnector) Config() *config.BaseConfig {
	return bc.config
}

// Logger returns the connector logger
func (bc *BaseConnector) Logger() *zap.Logger {
	return bc.logger
}

// SetHealthCheckFunc installs the function run by periodic health checks.
func (bc *BaseConnector) SetHealthCheckFunc(fn func(ctx context.Context) error) {
	if bc.healthChecker != nil {
		bc.healthChecker.SetCheckFunc(fn)
	}
}

// Health performs a health check
func (bc *BaseConnector) Health(ctx context.Context) error {
	if bc.closed {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}

	if bc.healthChecker == nil {
		return nil
	}

	status := bc.healthChecker.GetStatus()
	if status.Status != "healthy" {
		return errors.Wrap(status.Error, errors.ErrorTypeHealth, "health check failed")
	}

	return nil
}

// Metrics returns current metrics
func (bc *BaseConnector) Metrics() map[string]interface{} {
	m := bc.metricsCollector.GetAll()

	m["name"] = bc.name
	m["type"] = bc.connectorType
	m["version"] = bc.version

	if bc.circuitBreaker != nil {
		m["circuit_breaker_state"] = bc.circuitBreaker.State()
	}

	if bc.rateLimiter != nil {
		rlStats := bc.rateLimiter.GetStats()
		m["rate_limit"] = rlStats.Rate
		m["rate_limiter_allowed"] = rlStats.AllowedRequests
		m["rate_limiter_blocked"] = rlStats.BlockedRequests
	}

	if bc.healthChecker != nil {
		status := bc.healthChecker.GetStatus()
		m["health_status"] = status.Status
	}

	return m
}

// Close shuts down the connector
func (bc *BaseConnector) Close(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}

	if bc.cancel != nil {
		bc.cancel()
	}

	if bc.healthChecker != nil {
		bc.healthChecker.Stop()
	}

	bc.closed = true
	bc.logger.Info("connector closed")

	return nil
}

// ExecuteWithRetry executes fn with exponential backoff.
func (bc *BaseConnector) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	return bc.retryPolicy.Execute(ctx, fn)
}

// ExecuteWithCircuitBreaker executes fn with circuit breaker protection.
func (bc *BaseConnector) ExecuteWithCircuitBreaker(fn func() error) error {
	if bc.circuitBreaker == nil {
		return fn()
	}
	return bc.circuitBreaker.Execute(fn)
}

// RateLimit enforces the configured rate limit, blocking if necessary.
// Returns immediately if no rate limiter is configured.
func (bc *BaseConnector) RateLimit(ctx context.Context) error {
	if bc.rateLimiter == nil {
		return nil
	}
	return bc.rateLimiter.Wait(ctx)
}

// RecordMetric records a named metric value
func (bc *BaseConnector) RecordMetric(name string, value interface{}) {
	bc.metricsCollector.Record(name, value)
}

// AddMetric increments a named counter
func (bc *BaseConnector) AddMetric(name string, delta float64) {
	bc.metricsCollector.Add(name, delta)
}
