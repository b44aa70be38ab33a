package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegistrationSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradportal",
		Name:      "registration_submissions_total",
		Help:      "Registration submissions by outcome.",
	}, []string{"outcome"})

	ReferencesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gradportal",
		Name:      "references_issued_total",
		Help:      "Reference identifiers issued for the first time.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradportal",
		Name:      "notifications_total",
		Help:      "Registration email deliveries by status.",
	}, []string{"status"})

	AdminLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradportal",
		Name:      "admin_logins_total",
		Help:      "Admin authentication attempts by result.",
	}, []string{"result"})

	PasswordRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradportal",
		Name:      "admin_password_rotations_total",
		Help:      "Admin password rotation attempts by result.",
	}, []string{"result"})

	StudentLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradportal",
		Name:      "student_logins_total",
		Help:      "Student login attempts by result.",
	}, []string{"result"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradportal",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// GinMiddleware records request latency keyed by the matched route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
