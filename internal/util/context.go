package util

import (
	"context"
	"sync/atomic"
	"time"
)

// Context keys.
type ctxKey string

const (
	ctxKeyStartTime ctxKey = "start_time"
	ctxKeyRoute     ctxKey = "route"
	ctxKeyClusterID ctxKey = "cluster_id"
	ctxKeyRouteSlot ctxKey = "route_slot"
)

// ContextWithStartTime adds a start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the start time from context.
func StartTimeFromContext(ctx context.Context) time.Time {
	if v, ok := ctx.Value(ctxKeyStartTime).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// ContextWithRoute adds a route label to the context.
func ContextWithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, ctxKeyRoute, route)
}

// ContextWithRouteSlot installs a per-request slot that inner handlers fill
// with RecordRoute. Outer middleware reads it back with RouteFromContext
// after the inner handler returns. An existing slot is kept, so every
// layer of one request shares the same slot.
func ContextWithRouteSlot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(ctxKeyRouteSlot).(*atomic.Pointer[string]); ok {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRouteSlot, new(atomic.Pointer[string]))
}

// RecordRoute stores the matched route label in the slot installed by
// ContextWithRouteSlot. It is a no-op when no slot exists.
func RecordRoute(ctx context.Context, route string) {
	if slot, ok := ctx.Value(ctxKeyRouteSlot).(*atomic.Pointer[string]); ok {
		slot.Store(&route)
	}
}

// RouteFromContext extracts the route label from context, preferring a
// recorded slot value over a plain context value.
func RouteFromContext(ctx context.Context) string {
	if slot, ok := ctx.Value(ctxKeyRouteSlot).(*atomic.Pointer[string]); ok {
		if v := slot.Load(); v != nil {
			return *v
		}
	}
	if v, ok := ctx.Value(ctxKeyRoute).(string); ok {
		return v
	}
	return ""
}

// ContextWithClusterID adds the bound cluster ID to the context.
func ContextWithClusterID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyClusterID, id)
}

// ClusterIDFromContext extracts the bound cluster ID from context.
func ClusterIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClusterID).(string); ok {
		return v
	}
	return ""
}

// ElapsedTime returns the elapsed time since the start time in context.
func ElapsedTime(ctx context.Context) time.Duration {
	startTime := StartTimeFromContext(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}
