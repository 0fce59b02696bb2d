package audit

import (
	"context"
	"time"
)

func LogAuthorization(ctx context.Context, sink Sink, identity, nodeID, jobID, model, outcome string) {
	sink.Record(ctx, Event{
		Type:    EventAuthorization,
		Actor:   identity,
		Action:  "authorize",
		Outcome: outcome,
		Fields: map[string]any{
			"node_id": nodeID,
			"job_id":  jobID,
			"model":   model,
		},
		Timestamp: time.Now(),
	})
}

func LogSettlement(ctx context.Context, sink Sink, account, nodeID, jobID string, finalCost int64, outcome string) {
	sink.Record(ctx, Event{
		Type:    EventSettlement,
		Actor:   account,
		Action:  "settle",
		Outcome: outcome,
		Fields: map[string]any{
			"node_id":    nodeID,
			"job_id":     jobID,
			"final_cost": finalCost,
		},
		Timestamp: time.Now(),
	})
}

func LogRateLimit(ctx context.Context, sink Sink, key, tier string) {
	sink.Record(ctx, Event{
		Type:    EventRateLimit,
		Actor:   key,
		Action:  "request",
		Outcome: "rejected",
		Fields: map[string]any{
			"tier": tier,
		},
		Timestamp: time.Now(),
	})
}

func LogSecurityEvent(ctx context.Context, sink Sink, actor, action, detail string) {
	sink.Record(ctx, Event{
		Type:    EventSecurity,
		Actor:   actor,
		Action:  action,
		Outcome: "rejected",
		Fields: map[string]any{
			"detail": detail,
		},
		Timestamp: time.Now(),
	})
}
