package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login attempt results used as the "result" label of LoginAttempts.
const (
	ResultSuccess   = "success"
	ResultInvalid   = "invalid"
	ResultMalformed = "malformed"
	ResultNoAccount = "no_account"
	ResultError     = "error"
)

// Metrics holds the Prometheus metrics for the application.
// It includes counters for bot activity, login attempts, issued credentials
// and a histogram for database query durations.
type Metrics struct {
	CommandReceived      *prometheus.CounterVec   // Counter for received bot commands
	SentMessages         *prometheus.CounterVec   // Counter for sent bot messages
	LoginAttempts        *prometheus.CounterVec   // Counter for portal login attempts
	CodesIssued          prometheus.Counter       // Counter for issued Telegram login codes
	AccessCodeCollisions prometheus.Counter       // Counter for access code collisions that triggered a retry
	SessionsCreated      *prometheus.CounterVec   // Counter for created sessions
	RateLimited          *prometheus.CounterVec   // Counter for requests rejected by the rate limiter
	DBQueryDuration      *prometheus.HistogramVec // Histogram for database query durations
	ReportGeneration     prometheus.Histogram     // Histogram for roster export durations
}

// NewMetrics creates a new Metrics instance with the provided Prometheus Registerer.
//
// Parameters:
//   - reg: A Prometheus Registerer used to register the metrics.
//
// Returns:
//   - A pointer to the newly created Metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CommandReceived: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "janus_bot_commands_received_total",
			Help: "Total number of used commands",
		}, []string{"command"}), // command: start, login, help, language, text
		SentMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "janus_bot_messages_sent_total",
			Help: "Output bot activity",
		}, []string{"type"}), // type: text, notification, error
		LoginAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "janus_login_attempts_total",
			Help: "Portal login attempts by method and result",
		}, []string{"method", "result"}),
		CodesIssued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "janus_login_codes_issued_total",
			Help: "Total number of issued Telegram login codes",
		}),
		AccessCodeCollisions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "janus_access_code_collisions_total",
			Help: "Access code candidates rejected by the unique constraint",
		}),
		SessionsCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "janus_sessions_created_total",
			Help: "Portal sessions created by login method",
		}, []string{"method"}),
		RateLimited: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "janus_rate_limited_total",
			Help: "Requests rejected by the login rate limiter",
		}, []string{"route"}),
		DBQueryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "janus_db_query_duration_seconds",
			Help:    "Duration of database queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"query_type"}), // query_type: 'consume_login_code', 'get_session'
		ReportGeneration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "janus_report_generation_duration_seconds",
			Help: "Duration of client roster excel generation.",
		}),
	}
}
