package stream

import (
	"encoding/json"
	"fmt"

	"github.com/trafficdeck/trafficdeck/internal/domain"
	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/metrics"
	"github.com/trafficdeck/trafficdeck/internal/notify"
	"github.com/trafficdeck/trafficdeck/internal/registry"
)

// Frame types understood by the router. Anything else is dropped silently
// so newer servers can ship new message kinds without breaking old clients.
const (
	frameFull   = "full"
	frameUpdate = "update"
)

// Frame is one inbound text message on the realtime channel.
type Frame struct {
	Type string                 `json:"type"`
	Data []domain.ServiceRecord `json:"data"`
}

func decodeFrame(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}
	return &frame, nil
}

// Router decodes inbound frames and applies them to the registry.
// A malformed frame must never take down the connection or corrupt
// registry state: it is logged and dropped.
type Router struct {
	registry *registry.Registry
	notifier *notify.Throttle
	logger   logger.Logger
}

// NewRouter creates a router applying frames to reg.
func NewRouter(reg *registry.Registry, notifier *notify.Throttle, log logger.Logger) *Router {
	return &Router{
		registry: reg,
		notifier: notifier,
		logger:   log,
	}
}

// HandleFrame processes one raw frame. Frames are handed over in arrival
// order by the connection read loop, one at a time.
func (rt *Router) HandleFrame(raw []byte) {
	frame, err := decodeFrame(raw)
	if err != nil {
		metrics.Default.FramesDropped.Inc()
		rt.logger.Debug("dropping malformed frame", logger.Error(err))
		return
	}

	switch frame.Type {
	case frameFull:
		metrics.Default.FramesReceived.WithLabelValues(frameFull).Inc()
		rt.registry.ApplyFull(frame.Data)
		metrics.ObserveApply(rt.registry.Count())
		rt.logger.Info("applied full snapshot",
			logger.Int("services", len(frame.Data)))
		rt.notifier.TryNotify(notify.CategoryUpdate,
			fmt.Sprintf("service list refreshed (%d services)", len(frame.Data)))

	case frameUpdate:
		metrics.Default.FramesReceived.WithLabelValues(frameUpdate).Inc()
		if len(frame.Data) == 0 || frame.Data[0].Service == "" {
			metrics.Default.FramesDropped.Inc()
			rt.logger.Debug("dropping update frame without a service record")
			return
		}
		record := frame.Data[0]
		rt.registry.ApplyUpdate(record)
		metrics.ObserveApply(rt.registry.Count())
		rt.logger.Info("applied service update",
			logger.String("service", record.Service),
			logger.Int("backends", len(record.Backends)))
		rt.notifier.TryNotify(notify.CategoryUpdate,
			fmt.Sprintf("traffic split for %s updated", record.Service))

	default:
		rt.logger.Debug("ignoring unknown frame type",
			logger.String("type", frame.Type))
	}
}
