// Package invalidation keeps the dashboard caches consistent with the data
// they were built from.
//
// Data-mutation handlers report what changed as an Event. The Engine maps the
// event's kind to rules and deletes every cache key a rule's patterns match.
// Events are applied strictly in the order they were queued.
//
// # Basic Usage
//
//	manager := cache.NewManager()
//	responses := cache.NewResponseCache(manager, cache.DefaultConfigs()[cache.APIResponsesCache])
//
//	engine := invalidation.New(manager, invalidation.WithResponseCache(responses))
//	defer engine.Shutdown(ctx)
//
//	utils := invalidation.NewUtils(engine, "users-handler")
//
//	// after a successful update
//	if err := utils.InvalidateUser(ctx, userID, invalidation.ActionUpdate, "role"); err != nil {
//		logger.Error().Err(err).Msg("Failed to queue invalidation")
//	}
//
// Callers that must observe the invalidation before continuing use
// InvalidateImmediate, or WaitIdle after queueing.
//
// # Rules
//
// DefaultRules covers users, performance data, API responses and
// deployments. Additional rules can be added with AddRule or loaded from
// YAML with LoadRulesFile:
//
//	rules:
//	  - name: agent-dashboard
//	    event: "user:*"
//	    patterns: ["^dashboard:agent:"]
//	    caches: ["dashboards"]
//	    delay: 100ms
//
// A pattern may contain {entityId}, which is replaced by the event's quoted
// entity id. The cache name "*" targets every registered cache.
//
// # Multiple Instances
//
// RedisBroadcaster publishes queued events on a Redis channel and feeds
// events from other instances back into the local engine:
//
//	b := invalidation.NewRedisBroadcaster(redisClient, "")
//	engine := invalidation.New(manager, invalidation.WithPublisher(b))
//	go b.Run(ctx, engine)
//
// # Metrics
//
//   - dashboard_invalidation_events_total{event}
//   - dashboard_invalidation_entries_total{cache}
//   - dashboard_invalidation_rule_errors_total{rule}
//   - dashboard_invalidation_queue_depth
//   - dashboard_invalidation_duration_seconds{event}
//   - dashboard_invalidation_broadcasts_total{direction,result}
package invalidation
