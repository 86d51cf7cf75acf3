// Package client starts probe sessions and forwards their events to an
// Emitter.
package client

import (
	"time"

	"github.com/google/uuid"
	"github.com/robertodauria/speedprobe/client/config"
	"github.com/robertodauria/speedprobe/client/emitter"
	"github.com/robertodauria/speedprobe/pkg/probe"
	"github.com/robertodauria/speedprobe/pkg/probe/event"
	"github.com/robertodauria/speedprobe/pkg/probe/spec"
	"go.uber.org/zap"
)

// eventBufferSize keeps probers from blocking on a slow sink.
const eventBufferSize = 64

// Client runs download and upload sessions.
type Client struct {
	config     *config.ClientConfig
	emitter    emitter.Emitter
	downloader *probe.Downloader
	uploader   *probe.Uploader
}

// New creates a Client with the default configuration.
func New() *Client {
	return NewWithConfig(config.NewDefault())
}

// NewWithConfig creates a Client with the given configuration.
func NewWithConfig(cfg *config.ClientConfig) *Client {
	return &Client{
		config:     cfg,
		emitter:    &emitter.LogEmitter{},
		downloader: probe.NewDownloader(),
		uploader:   probe.NewUploader(),
	}
}

// SetEmitter replaces the sink receiving session events.
func (c *Client) SetEmitter(e emitter.Emitter) {
	c.emitter = e
}

// StartDownload starts a download session and returns immediately. Events
// arrive on the returned channel until it is closed after the terminal one.
// There is no cancellation handle: the session self-terminates via its
// deadline.
func (c *Client) StartDownload(target string, duration time.Duration) <-chan event.Event {
	ch := make(chan event.Event, eventBufferSize)
	go c.downloader.Run(target, duration, ch)
	return ch
}

// StartUpload starts an upload session and returns immediately. Events
// arrive on the returned channel until it is closed after the terminal one.
func (c *Client) StartUpload(target string, duration time.Duration, chunkSize int64) <-chan event.Event {
	ch := make(chan event.Event, eventBufferSize)
	go c.uploader.Run(target, duration, chunkSize, ch)
	return ch
}

// Download runs one download session to completion, forwarding its events
// to the configured emitter.
func (c *Client) Download() {
	c.drain(spec.ProbeDownload, c.StartDownload(c.config.DownloadURL, c.config.Duration))
}

// Upload runs one upload session to completion, forwarding its events to
// the configured emitter.
func (c *Client) Upload() {
	c.drain(spec.ProbeUpload, c.StartUpload(c.config.UploadURL, c.config.Duration, c.config.ChunkSize))
}

func (c *Client) drain(kind spec.ProbeKind, ch <-chan event.Event) {
	session := uuid.NewString()
	zap.L().Sugar().Debugw("session started", "session", session, "kind", kind)
	for ev := range ch {
		emitter.Emit(c.emitter, kind, ev)
	}
	zap.L().Sugar().Debugw("session completed", "session", session, "kind", kind)
}
