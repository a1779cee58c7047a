package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for tracking relay performance and group activity.
var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groups_relay_active_connections",
		Help: "The number of active WebSocket connections",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groups_relay_active_subscriptions",
		Help: "The number of active subscriptions",
	})

	// Message metrics
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groups_relay_messages_received_total",
		Help: "The total number of messages received",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groups_relay_messages_sent_total",
		Help: "The total number of messages sent",
	})

	CommandsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groups_relay_commands_received_total",
		Help: "The total number of commands received by type",
	}, []string{"type"}) // "EVENT", "REQ", "CLOSE", "AUTH"

	CommandProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groups_relay_command_processing_duration_seconds",
		Help:    "Time to process different command types",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 5),
	}, []string{"type"})

	// Event metrics
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groups_relay_events_processed_total",
		Help: "The total number of events processed by kind",
	}, []string{"kind"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groups_relay_events_rejected_total",
		Help: "The total number of rejected events by reason kind",
	}, []string{"reason"}) // "notice", "auth-required", "restricted", "invalid", "internal"

	EventsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groups_relay_events_stored",
		Help: "The total number of events currently stored in the database",
	})

	// Group metrics
	GroupsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groups_relay_groups_created_total",
		Help: "The total number of groups created",
	})

	GroupsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groups_relay_groups_deleted_total",
		Help: "The total number of groups deleted",
	})

	GroupsByPrivacy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "groups_relay_groups_by_privacy",
		Help: "The number of live groups partitioned by privacy settings",
	}, []string{"private", "closed"})

	ScopesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groups_relay_scopes_active",
		Help: "The number of scopes containing at least one group",
	})

	// Database metrics
	DBErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groups_relay_db_errors_total",
		Help: "Total number of database errors by type",
	}, []string{"error_type"})

	DBOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groups_relay_db_operations_total",
		Help: "Total number of database operations by type",
	}, []string{"operation"})
)

// Register pre-creates label combinations so dashboards see zeroes instead
// of absent series.
func Register() {
	for _, cmdType := range []string{"EVENT", "REQ", "CLOSE", "AUTH"} {
		CommandsReceived.WithLabelValues(cmdType)
		CommandProcessingDuration.WithLabelValues(cmdType)
	}

	for _, kind := range []string{"9000", "9001", "9002", "9005", "9006", "9007", "9008", "9009", "9021", "9022"} {
		EventsProcessed.WithLabelValues(kind)
	}

	for _, reason := range []string{"notice", "auth-required", "restricted", "invalid", "internal"} {
		EventsRejected.WithLabelValues(reason)
	}

	for _, private := range []string{"true", "false"} {
		for _, closed := range []string{"true", "false"} {
			GroupsByPrivacy.WithLabelValues(private, closed)
		}
	}

	for _, errType := range []string{"connection_failed", "query_failed", "write_failed", "delete_failed", "sign_failed"} {
		DBErrors.WithLabelValues(errType)
	}

	for _, op := range []string{"save_signed", "save_unsigned", "delete", "replay_query"} {
		DBOperations.WithLabelValues(op)
	}
}
