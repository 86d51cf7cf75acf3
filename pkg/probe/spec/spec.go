// Package spec contains the constants and types shared by the probers.
package spec

import "time"

const (
	// MinDuration is the floor applied to a requested session duration.
	MinDuration = 250 * time.Millisecond

	// ProgressInterval is the cadence at which Progress events are emitted.
	ProgressInterval = 250 * time.Millisecond

	// ReporterGrace is how long the upload transfer loop waits after setting
	// the done flag, so the reporter can observe it before the terminal
	// event is emitted.
	ReporterGrace = 50 * time.Millisecond

	MinChunkSize     = 8 << 10
	MaxChunkSize     = 1 << 20
	DefaultChunkSize = 64 << 10

	MinRequestSize    = 64 << 10
	MaxRequestSize    = 8 << 20
	RequestSizeFactor = 16

	// UploadByteCap bounds the total bytes drawn into upload request bodies
	// within one session.
	UploadByteCap = 200 << 20

	ConnectTimeout = 30 * time.Second
	MaxRedirects   = 10

	// ClientID identifies outbound requests.
	ClientID = "speedprobe/0.1.0"

	DownloadFallbackTLS       = "https://speed.cloudflare.com/__down?bytes=1073741824"
	DownloadFallbackCleartext = "http://ipv4.download.thinkbroadband.com/1GB.zip"
	DefaultUploadURL          = "https://speed.cloudflare.com/__up"
)

// ProbeKind indicates the probe direction.
type ProbeKind string

const (
	// ProbeDownload is a download session.
	ProbeDownload = ProbeKind("download")

	// ProbeUpload is an upload session.
	ProbeUpload = ProbeKind("upload")
)
