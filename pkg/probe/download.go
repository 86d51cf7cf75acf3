package probe

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/robertodauria/speedprobe/internal/errchain"
	"github.com/robertodauria/speedprobe/pkg/probe/event"
	"github.com/robertodauria/speedprobe/pkg/probe/spec"
	"go.uber.org/zap"
)

// readBufferSize is the size of the buffer used to drain response bodies.
const readBufferSize = 32 << 10

// newClient builds the HTTP client shared by both probers.
func newClient() (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   spec.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   spec.ConnectTimeout,
		ResponseHeaderTimeout: spec.ConnectTimeout,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= spec.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", spec.MaxRedirects)
			}
			return nil
		},
	}, nil
}

// Downloader measures download throughput against the first usable
// candidate endpoint.
type Downloader struct {
	fallbacks []string
}

// NewDownloader returns a Downloader using the fixed public fallbacks.
func NewDownloader() *Downloader {
	return &Downloader{
		fallbacks: []string{spec.DownloadFallbackTLS, spec.DownloadFallbackCleartext},
	}
}

// Run measures download throughput for (at most) the requested duration and
// streams events to ch. The channel is closed once the terminal event has
// been sent. Run never returns an error: every failure terminates the
// session as an Error event.
func (d *Downloader) Run(target string, duration time.Duration, ch chan<- event.Event) {
	defer close(ch)
	if duration < spec.MinDuration {
		duration = spec.MinDuration
	}
	client, err := newClient()
	if err != nil {
		ch <- event.Error{Message: errchain.Format(err)}
		return
	}
	stream, ok := d.selectStream(client, target, duration, ch)
	if !ok {
		return
	}
	defer stream.Close()

	var total, lastBytes int64
	start := time.Now()
	lastEmit := start
	// A peer that stalls mid-body would block the read past the deadline
	// and hang the session. Closing the body unblocks it.
	watchdog := time.AfterFunc(duration, func() { stream.Close() })
	defer watchdog.Stop()
	buf := make([]byte, readBufferSize)
	for {
		// The deadline check comes first so the session is bounded even
		// against an endless stream.
		if time.Since(start) >= duration {
			break
		}
		n, err := stream.Read(buf)
		total += int64(n)
		if now := time.Now(); now.Sub(lastEmit) >= spec.ProgressInterval {
			ch <- event.Progress{
				ElapsedMs: now.Sub(start).Milliseconds(),
				Bytes:     total,
				// Interval throughput: the live figure should reflect the
				// instantaneous rate, not the average since start.
				Mbps: mbps(total-lastBytes, now.Sub(lastEmit).Seconds()),
			}
			lastEmit = now
			lastBytes = total
		}
		if err == io.EOF {
			// Natural exhaustion is not a failure.
			break
		}
		if err != nil {
			if time.Since(start) >= duration {
				// The watchdog closed the body: this is the deadline
				// stopping the session, not a stream failure.
				break
			}
			zap.L().Sugar().Debugw("download read failed", "target", target, "err", err)
			ch <- event.Error{Message: errchain.Format(err)}
			return
		}
	}
	elapsed := time.Since(start)
	ch <- event.Finished{
		ElapsedMs: elapsed.Milliseconds(),
		Bytes:     total,
		AvgMbps:   mbps(total, elapsed.Seconds()),
	}
}

// selectStream tries each candidate in order and returns the body of the
// first one that connects with a success status. A Started event announces
// every attempt before its request is issued, so the caller learns which
// endpoint is being tried even when it fails.
func (d *Downloader) selectStream(client *http.Client, target string, duration time.Duration, ch chan<- event.Event) (io.ReadCloser, bool) {
	candidates := make([]string, 0, len(d.fallbacks)+1)
	if target != "" {
		candidates = append(candidates, target)
	}
	candidates = append(candidates, d.fallbacks...)

	var lastErr error
	for _, candidate := range candidates {
		ch <- event.Started{URL: candidate, DurationMs: duration.Milliseconds()}
		req, err := http.NewRequest(http.MethodGet, candidate, nil)
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("User-Agent", spec.ClientID)
		resp, err := client.Do(req)
		if err != nil {
			zap.L().Sugar().Debugw("candidate failed", "url", candidate, "err", err)
			lastErr = err
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			// The endpoint answered: this is not a connectivity problem,
			// so the remaining candidates are not tried.
			ch <- event.Error{Message: fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, candidate)}
			return nil, false
		}
		return resp.Body, true
	}
	if lastErr == nil {
		ch <- event.Error{Message: "no download candidates available"}
		return nil, false
	}
	ch <- event.Error{Message: errchain.Format(lastErr)}
	return nil, false
}
