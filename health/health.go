package health

import (
	"context"
	"fmt"
	"time"

	"github.com/zero-day-ai/thinggraph/store"
)

// Health status constants represent the operational state of a component.
const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy = "healthy"

	// StatusDegraded indicates the component works but cannot vouch for a
	// dependency.
	StatusDegraded = "degraded"

	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy = "unhealthy"
)

// DefaultTimeout bounds checks given a nil context.
const DefaultTimeout = 5 * time.Second

// Status is the health state of a component.
type Status struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Healthy returns a healthy status.
func Healthy(message string) Status {
	return Status{Status: StatusHealthy, Message: message}
}

// Degraded returns a degraded status.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy returns an unhealthy status.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}

func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// Pinger is anything that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck pings p and reports the outcome under name.
//
// Example:
//
//	status := health.PingCheck(ctx, "redis", redisStore)
func PingCheck(ctx context.Context, name string, p Pinger) Status {
	if p == nil {
		return Unhealthy(fmt.Sprintf("%s is not configured", name), map[string]any{"check": name})
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Unhealthy(
			fmt.Sprintf("%s is unreachable", name),
			map[string]any{
				"check": name,
				"error": err.Error(),
			},
		)
	}
	s := Healthy(fmt.Sprintf("%s is reachable", name))
	s.Details = map[string]any{
		"check":      name,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	return s
}

// StoreCheck pings s when it implements store.Pinger. Stores that cannot
// be pinged are reported as degraded.
func StoreCheck(ctx context.Context, s store.Store) Status {
	name := fmt.Sprintf("store %T", s)
	p, ok := s.(store.Pinger)
	if !ok {
		return Degraded(fmt.Sprintf("%s does not report health", name), map[string]any{"check": name})
	}
	return PingCheck(ctx, name, p)
}

// Combine aggregates checks into one status.
//
// Example:
//
//	overall := health.Combine(health.StoreCheck(ctx, s), lockStatus)
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthyChecks []string
	var degradedChecks []string
	var healthyCount int

	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthyChecks = append(unhealthyChecks, msg)
		case StatusDegraded:
			degradedChecks = append(degradedChecks, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthyChecks) > 0 {
		return Unhealthy(
			fmt.Sprintf("%d check(s) failed", len(unhealthyChecks)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthyChecks),
				"degraded":      len(degradedChecks),
				"healthy":       healthyCount,
				"failed_checks": unhealthyChecks,
			},
		)
	}

	if len(degradedChecks) > 0 {
		return Degraded(
			fmt.Sprintf("%d check(s) degraded", len(degradedChecks)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degradedChecks),
				"healthy":         healthyCount,
				"degraded_checks": degradedChecks,
			},
		)
	}

	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
