package main

import (
	"strings"

	"go.uber.org/zap"

	"idremap/internal/config"
	"idremap/internal/metrics"
	"idremap/internal/metrics/datadog"
	"idremap/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns a func that
// flushes it. An unknown backend leaves metrics disabled.
func setupMetrics(log *zap.Logger, m config.MetricsConfig, jobName, runID string) func() {
	nop := func() {}
	if jobName == "" {
		jobName = "idremap"
	}

	var (
		b   metrics.Backend
		err error
	)
	switch strings.ToLower(m.Backend) {
	case "", "none":
		log.Debug("metrics: disabled")
		return nop
	case "pushgateway", "prometheus":
		b, err = prompush.NewBackend(jobName, m.PushgatewayURL, runID)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       m.StatsdAddr,
			Namespace:  m.Namespace,
			GlobalTags: append([]string{"job:" + jobName}, m.Tags...),
			RunID:      runID,
		})
	default:
		log.Warn("metrics: unknown backend, metrics disabled", zap.String("backend", m.Backend))
		return nop
	}
	if err != nil {
		log.Warn("metrics: init failed, using nop", zap.String("backend", m.Backend), zap.Error(err))
		return nop
	}

	metrics.SetBackend(b)
	log.Info("metrics: enabled", zap.String("backend", m.Backend), zap.String("job", jobName))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics: flush error", zap.Error(err))
		}
	}
}
