package svc

import "github.com/zeromicro/go-zero/core/metric"

const (
	metricsNamespace = "btfetch"
	metricsSubsystem = "downloader"
)

var (
	metricTrafficCounter metric.CounterVec
	metricDownloadEvent  metric.CounterVec
)

func init() {
	metricTrafficCounter = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "traffic",
		Labels:    []string{"type"},
	})
	metricDownloadEvent = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "download_event",
		Labels:    []string{"event"},
	})
}
