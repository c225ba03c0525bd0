package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MembershipEvents counts membership mutations by kind (join|leave|create|delete).
	MembershipEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_membership_events_total",
			Help: "Total number of community membership mutations",
		},
		[]string{"event"},
	)

	// InviteRedemptions counts invite redemption attempts by outcome
	// (success|not_found|expired|exhausted|inactive|already_member).
	InviteRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_invite_redemptions_total",
			Help: "Total number of invite redemption attempts",
		},
		[]string{"result"},
	)

	// UpvoteToggles counts upvote toggles by resulting state (voted|unvoted).
	UpvoteToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_upvote_toggles_total",
			Help: "Total number of post upvote toggles",
		},
		[]string{"state"},
	)

	// CounterDrift counts detected denormalized counter inconsistencies.
	CounterDrift = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campfire_counter_drift_total",
			Help: "Denormalized counter inconsistencies detected during clamped decrements",
		},
		[]string{"counter"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campfire_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
