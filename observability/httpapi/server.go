// Package httpapi exposes the observability core — events, spans,
// metrics, SLOs — as a read-only gin router for external dashboards and
// scrape targets. Nothing here mutates state; every handler projects an
// in-process store into JSON (or, for /metrics, Prometheus exposition
// format).
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragforge/ragforge/observability/events"
	"github.com/ragforge/ragforge/observability/metrics"
	"github.com/ragforge/ragforge/observability/slo"
	"github.com/ragforge/ragforge/observability/tracing"
)

// Server bundles the observability stores this API serves. Every field
// is optional: a nil Logger, Tracer or SLO makes its route answer 404,
// and /metrics answers 404 only when both Prom and Metrics are nil.
type Server struct {
	Logger  *events.Logger
	Tracer  *tracing.Tracer
	Metrics *metrics.Registry
	Prom    *prometheus.Registry
	SLO     *slo.Monitor
}

// Router builds the gin engine serving this Server's routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/events", s.handleEvents)
	r.GET("/spans", s.handleSpans)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/slo/:name", s.handleSLO)

	return r
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.Logger == nil {
		c.Status(http.StatusNotFound)
		return
	}

	filter := events.Filter{
		EventType: c.Query("eventType"),
		Severity:  events.Severity(c.Query("severity")),
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	if since := c.Query("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = &t
		}
	}

	c.JSON(http.StatusOK, s.Logger.GetEventHistory(filter))
}

func (s *Server) handleSpans(c *gin.Context) {
	if s.Tracer == nil {
		c.Status(http.StatusNotFound)
		return
	}

	filter := tracing.CompletedFilter{
		TraceID: c.Query("traceId"),
		Name:    c.Query("name"),
		Status:  tracing.Status(c.Query("status")),
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}

	c.JSON(http.StatusOK, gin.H{
		"spans":      s.Tracer.GetCompletedSpans(filter),
		"statistics": s.Tracer.GetStatistics(),
	})
}

// handleMetrics serves Prometheus exposition format when a Prometheus
// mirror registry is configured, falling back to the registry's own
// JSON snapshot otherwise.
func (s *Server) handleMetrics(c *gin.Context) {
	if s.Prom != nil {
		promhttp.HandlerFor(s.Prom, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
		return
	}
	if s.Metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, s.Metrics.Export())
}

func (s *Server) handleSLO(c *gin.Context) {
	if s.SLO == nil {
		c.Status(http.StatusNotFound)
		return
	}

	name := c.Param("name")
	c.JSON(http.StatusOK, gin.H{
		"name":        name,
		"sli":         s.SLO.CalculateSLI(name),
		"errorBudget": s.SLO.GetErrorBudget(name),
	})
}
