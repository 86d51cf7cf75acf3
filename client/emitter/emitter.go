// Package emitter defines the sinks observing a session's event stream.
package emitter

import (
	"fmt"
	"io"

	"github.com/robertodauria/speedprobe/pkg/probe/event"
	"github.com/robertodauria/speedprobe/pkg/probe/spec"
	"go.uber.org/zap"
)

// Emitter receives the events of a session, one method per variant.
type Emitter interface {
	OnStarted(spec.ProbeKind, event.Started)
	OnProgress(spec.ProbeKind, event.Progress)
	OnFinished(spec.ProbeKind, event.Finished)
	OnError(spec.ProbeKind, event.Error)
}

// Emit dispatches ev to the matching Emitter method. The switch covers
// every event variant.
func Emit(e Emitter, kind spec.ProbeKind, ev event.Event) {
	switch v := ev.(type) {
	case event.Started:
		e.OnStarted(kind, v)
	case event.Progress:
		e.OnProgress(kind, v)
	case event.Finished:
		e.OnFinished(kind, v)
	case event.Error:
		e.OnError(kind, v)
	}
}

// LogEmitter logs events through the global zap logger.
type LogEmitter struct{}

func (e *LogEmitter) OnStarted(kind spec.ProbeKind, ev event.Started) {
	zap.L().Sugar().Infof("%s: starting against %s (%d ms)", kind, ev.URL, ev.DurationMs)
}

func (e *LogEmitter) OnProgress(kind spec.ProbeKind, ev event.Progress) {
	zap.L().Sugar().Infof("%s: %.2f Mb/s (%d bytes, %d ms)", kind, ev.Mbps, ev.Bytes, ev.ElapsedMs)
}

func (e *LogEmitter) OnFinished(kind spec.ProbeKind, ev event.Finished) {
	zap.L().Sugar().Infof("%s: completed, %.2f Mb/s average (%d bytes, %d ms)", kind, ev.AvgMbps, ev.Bytes, ev.ElapsedMs)
}

func (e *LogEmitter) OnError(kind spec.ProbeKind, ev event.Error) {
	zap.L().Sugar().Errorf("%s: error (%s)", kind, ev.Message)
}

// WireEmitter writes one JSON envelope per event to W, the shape consumed
// by the shell layer.
type WireEmitter struct {
	W io.Writer
}

func (e *WireEmitter) write(ev event.Event) {
	data, err := event.Marshal(ev)
	if err != nil {
		zap.L().Sugar().Errorw("cannot marshal event", "err", err)
		return
	}
	fmt.Fprintf(e.W, "%s\n", data)
}

func (e *WireEmitter) OnStarted(kind spec.ProbeKind, ev event.Started)   { e.write(ev) }
func (e *WireEmitter) OnProgress(kind spec.ProbeKind, ev event.Progress) { e.write(ev) }
func (e *WireEmitter) OnFinished(kind spec.ProbeKind, ev event.Finished) { e.write(ev) }
func (e *WireEmitter) OnError(kind spec.ProbeKind, ev event.Error)       { e.write(ev) }
