package server

import (
	"time"

	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/api"
	"github.com/deskshell/deskshell/internal/logging"
	"github.com/deskshell/deskshell/internal/monitoring"
)

// streamNotifier forwards surface lifecycle notifications to the
// WebSocket event stream and records transition metrics.
type streamNotifier struct {
	stream  *api.Stream
	metrics *monitoring.Metrics
	log     *logging.Logger
}

func newStreamNotifier(stream *api.Stream, metrics *monitoring.Metrics, log *logging.Logger) *streamNotifier {
	return &streamNotifier{
		stream:  stream,
		metrics: metrics,
		log:     log.Named("notifier"),
	}
}

func (n *streamNotifier) LoadSuccess(surfaceID, url string) {
	n.metrics.RecordSurfaceTransition("waiting")
	n.stream.BroadcastSurface("load_success", map[string]any{
		"surfaceId": surfaceID,
		"url":       url,
	})
}

func (n *streamNotifier) LoadFailed(surfaceID, errMsg, url string) {
	n.metrics.RecordSurfaceTransition("error")
	n.log.Info("surface load failed",
		zap.String("surfaceId", surfaceID),
		zap.String("error", errMsg))
	n.stream.BroadcastSurface("load_failed", map[string]any{
		"surfaceId": surfaceID,
		"error":     errMsg,
		"url":       url,
	})
}

func (n *streamNotifier) LoadRetry(surfaceID string, at time.Time, errMsg, url string) {
	n.metrics.IncSurfaceRetries()
	n.stream.BroadcastSurface("load_retry", map[string]any{
		"surfaceId": surfaceID,
		"retryAt":   at.Unix(),
		"error":     errMsg,
		"url":       url,
	})
}

func (n *streamNotifier) LoadIncompatible(surfaceID, url string) {
	n.metrics.RecordSurfaceTransition("error")
	n.stream.BroadcastSurface("load_incompatible", map[string]any{
		"surfaceId": surfaceID,
		"url":       url,
	})
}

func (n *streamNotifier) LoadscreenEnd(surfaceID string) {
	n.metrics.RecordSurfaceTransition("ready")
	n.stream.BroadcastSurface("loadscreen_end", map[string]any{
		"surfaceId": surfaceID,
	})
}

func (n *streamNotifier) HistoryStatus(surfaceID string, canGoBack, canGoForward bool) {
	n.stream.BroadcastSurface("history_status", map[string]any{
		"surfaceId":    surfaceID,
		"canGoBack":    canGoBack,
		"canGoForward": canGoForward,
	})
}

func (n *streamNotifier) TitleUpdated(surfaceID, title string) {
	n.stream.BroadcastSurface("title_updated", map[string]any{
		"surfaceId": surfaceID,
		"title":     title,
	})
}
