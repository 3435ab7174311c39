package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/vectorwar/arena/internal/dispatcher"
	"github.com/vectorwar/arena/internal/influx"
	"github.com/vectorwar/arena/internal/storage"
	"github.com/vectorwar/arena/internal/util"
	"github.com/vectorwar/arena/pkg/core"
)

// flusher is the part of the dispatcher used to drain buffered records
// before a session is closed.
type flusher interface {
	Flush(ctx context.Context) error
}

// RegisterHandlers registers all record handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.flusher = d

	// Session lifecycle - sync (records depend on the session ID)
	d.Register(CmdSessionStart, m.handleSessionStart, dispatcher.Logged())
	d.Register(CmdSessionEnd, m.handleSessionEnd, dispatcher.Logged())

	// High-volume per-frame records - buffered
	d.Register(CmdShipState, m.handleShipState, dispatcher.Buffered(10000))
	d.Register(CmdFrameStats, m.handleFrameStats, dispatcher.Buffered(10000))
	d.Register(CmdSnapshot, m.handleSnapshot, dispatcher.Buffered(500), dispatcher.Logged())

	// Desyncs - sync so the report goes out before the driver stops
	d.Register(CmdDesync, m.handleDesync, dispatcher.Logged())
}

func (m *Manager) handleSessionStart(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(*core.Session)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants *core.Session, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	if err := m.backend.StartSession(s); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	m.deps.Match.SetSession(s)
	m.deps.Checksums.Reset()
	m.archived.Set(0)
	m.desyncs.Set(0)
	m.started = e.Timestamp

	m.log.Info("Session started", "sessionId", s.ID, "label", s.Label, "participants", s.Participants)
	return s.ID, nil
}

func (m *Manager) handleSessionEnd(e dispatcher.Event) (any, error) {
	if m.flusher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.deps.EndTimeout)
		err := m.flusher.Flush(ctx)
		cancel()
		if err != nil {
			m.log.Warn("Queued records not fully written before session end", "error", err)
		}
	}

	s := m.deps.Match.GetSession()
	if err := m.backend.EndSession(); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	result := ""
	if exp, ok := m.backend.(storage.Exportable); ok {
		result = exp.ExportedFilePath()
	}
	if result != "" && m.deps.Uploader != nil && m.deps.UploadExports {
		meta := core.UploadMetadata{
			Label:        s.Label,
			Participants: s.Participants,
			EndFrame:     e.Frame,
			Duration:     e.Timestamp.Sub(m.started).Seconds(),
		}
		if err := m.deps.Uploader.Upload(result, meta); err != nil {
			m.log.Error("Failed to upload session export", "path", result, "error", err)
		} else {
			m.log.Info("Session export uploaded", "path", result)
		}
	}

	m.log.Info("Session ended", "sessionId", s.ID, "frame", e.Frame,
		"snapshots", m.archived.Value(), "desyncs", m.desyncs.Value())
	m.deps.Match.Clear()
	return result, nil
}

func (m *Manager) handleSnapshot(e dispatcher.Event) (any, error) {
	rec, ok := e.Payload.(*core.SnapshotRecord)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants *core.SnapshotRecord, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = e.Timestamp
	}
	if err := m.backend.RecordSnapshot(rec); err != nil {
		return nil, fmt.Errorf("failed to record snapshot: %w", err)
	}
	m.archived.Inc()
	return nil, nil
}

func (m *Manager) handleShipState(e dispatcher.Event) (any, error) {
	states, ok := e.Payload.([]core.ShipState)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants []core.ShipState, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	for i := range states {
		if err := m.backend.RecordShipState(&states[i]); err != nil {
			return nil, fmt.Errorf("failed to record ship state: %w", err)
		}
	}
	return nil, nil
}

func (m *Manager) handleFrameStats(e dispatcher.Event) (any, error) {
	stats, ok := e.Payload.(*core.FrameStats)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants *core.FrameStats, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	if stats.RecordedAt.IsZero() {
		stats.RecordedAt = e.Timestamp
	}
	m.deps.Checksums.Set(stats.Frame, stats.Checksum)
	m.deps.Match.SetFrame(stats.Frame)

	if err := m.backend.RecordFrameStats(stats); err != nil {
		return nil, fmt.Errorf("failed to record frame stats: %w", err)
	}
	m.writePoint(influx.BucketPerformance, func() error {
		return m.deps.Influx.WritePoint(context.Background(), influx.BucketPerformance,
			influx.FrameStatsPoint(m.deps.Match.Label(), *stats))
	})
	return nil, nil
}

func (m *Manager) handleDesync(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(*core.DesyncEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants *core.DesyncEvent, got %T", ErrBadPayload, e.Command, e.Payload)
	}
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = e.Timestamp
	}
	m.desyncs.Inc()
	label := m.deps.Match.Label()

	m.log.Warn("Desync detected", "frame", ev.Frame,
		"expected", util.FormatChecksum(ev.Expected), "actual", util.FormatChecksum(ev.Actual),
		"expectedDump", ev.ExpectedDump, "actualDump", ev.ActualDump)

	err := m.backend.RecordDesync(ev)
	m.writePoint(influx.BucketSync, func() error {
		return m.deps.Influx.WritePoint(context.Background(), influx.BucketSync, influx.DesyncPoint(label, *ev))
	})

	if m.deps.Uploader != nil && m.deps.UploadDesyncs {
		start := time.Now()
		if upErr := m.deps.Uploader.UploadDesync(label, *ev); upErr != nil {
			m.log.Error("Failed to upload desync report", "frame", ev.Frame, "error", upErr)
		} else {
			m.log.Info("Desync report uploaded", "frame", ev.Frame, "duration", time.Since(start))
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to record desync: %w", err)
	}
	return nil, nil
}

func (m *Manager) writePoint(bucket string, write func() error) {
	if m.deps.Influx == nil {
		return
	}
	if err := write(); err != nil {
		m.log.Debug("Failed to write metric point", "bucket", bucket, "error", err)
	}
}
