package probe

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/m-lab/go/memoryless"
	"github.com/robertodauria/speedprobe/internal/errchain"
	"github.com/robertodauria/speedprobe/pkg/probe/event"
	"github.com/robertodauria/speedprobe/pkg/probe/spec"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// payloadReader draws a synthetic request body from a preallocated
// zero-filled chunk, counting bytes into the shared session counter as they
// leave the buffer. Counting on draw rather than on acknowledgment measures
// attempted throughput, which tolerates servers closing mid-body.
type payloadReader struct {
	chunk     []byte
	remaining int64
	sent      *atomic.Int64
}

func (r *payloadReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	chunk := r.chunk
	if r.remaining < int64(len(chunk)) {
		chunk = chunk[:r.remaining]
	}
	n := copy(p, chunk)
	r.remaining -= int64(n)
	r.sent.Add(int64(n))
	return n, nil
}

// clampChunkSize bounds the requested chunk size to
// [MinChunkSize, MaxChunkSize], substituting the default when the caller
// did not pass one.
func clampChunkSize(size int64) int64 {
	if size <= 0 {
		return spec.DefaultChunkSize
	}
	if size < spec.MinChunkSize {
		return spec.MinChunkSize
	}
	if size > spec.MaxChunkSize {
		return spec.MaxChunkSize
	}
	return size
}

// clampRequestSize bounds the adaptive request size to
// [MinRequestSize, MaxRequestSize].
func clampRequestSize(size int64) int64 {
	if size < spec.MinRequestSize {
		return spec.MinRequestSize
	}
	if size > spec.MaxRequestSize {
		return spec.MaxRequestSize
	}
	return size
}

// Uploader measures upload throughput against a single target.
type Uploader struct {
	// requestTimeout bounds how long past the session deadline an
	// in-flight request may stall before it is abandoned.
	requestTimeout time.Duration
}

// NewUploader returns an Uploader.
func NewUploader() *Uploader {
	return &Uploader{requestTimeout: spec.ConnectTimeout}
}

// Run measures upload throughput for (at most) the requested duration and
// streams events to ch. The channel is closed after the terminal event has
// been sent and the progress reporter has stopped.
//
// Transport failures and rejected requests are soft: the session still
// finalizes as Finished with whatever was measured. Public echo endpoints
// reject large bodies transiently, so surfacing those as errors would make
// the prober useless against them.
func (u *Uploader) Run(target string, duration time.Duration, chunkSize int64, ch chan<- event.Event) {
	defer close(ch)
	if duration < spec.MinDuration {
		duration = spec.MinDuration
	}
	if target == "" {
		target = spec.DefaultUploadURL
	}
	chunkSize = clampChunkSize(chunkSize)
	ch <- event.Started{
		URL:        target,
		DurationMs: duration.Milliseconds(),
		ChunkSize:  chunkSize,
	}

	client, err := newClient()
	if err != nil {
		ch <- event.Error{Message: errchain.Format(err)}
		return
	}

	// The byte counter and the done flag are the only state shared with the
	// reporter goroutine.
	total := atomic.NewInt64(0)
	done := atomic.NewBool(false)
	start := time.Now()

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go reportProgress(wg, start, total, done, ch)

	// A peer that stops reading the body would block Do past the deadline
	// and hang the session. The context bounds every request at the
	// deadline plus the stall allowance; a healthy final round-trip is
	// unaffected.
	timeout := u.requestTimeout
	if timeout <= 0 {
		timeout = spec.ConnectTimeout
	}
	ctx, cancel := context.WithDeadline(context.Background(), start.Add(duration).Add(timeout))
	defer cancel()

	chunk := make([]byte, chunkSize)
	size := clampRequestSize(chunkSize * spec.RequestSizeFactor)
	for time.Since(start) < duration && total.Load() < spec.UploadByteCap {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target,
			&payloadReader{chunk: chunk, remaining: size, sent: total})
		if err != nil {
			zap.L().Sugar().Debugw("cannot build upload request", "target", target, "err", err)
			break
		}
		req.ContentLength = size
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("User-Agent", spec.ClientID)
		resp, err := client.Do(req)
		if err != nil {
			// A late transport failure must not discard an otherwise-valid
			// measurement: stop and finalize with what was transferred.
			zap.L().Sugar().Debugw("upload request failed", "target", target, "err", err)
			break
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if size <= spec.MinRequestSize {
				break
			}
			size = clampRequestSize(size / 2)
			zap.L().Sugar().Debugw("server rejected request, shrinking",
				"target", target, "status", resp.StatusCode, "size", size)
		}
	}

	done.Store(true)
	// Give the reporter a chance to observe the flag so no Progress event
	// races after the terminal one.
	time.Sleep(spec.ReporterGrace)
	elapsed := time.Since(start)
	ch <- event.Finished{
		ElapsedMs: elapsed.Milliseconds(),
		Bytes:     total.Load(),
		AvgMbps:   mbps(total.Load(), elapsed.Seconds()),
	}
	// The channel must not close until the reporter has joined.
	wg.Wait()
}

// reportProgress emits cumulative average throughput on a fixed cadence
// until the done flag is set. Upload rate is dominated by request/response
// round-trip overhead, where interval sampling is noisier than the
// cumulative average.
func reportProgress(wg *sync.WaitGroup, start time.Time, total *atomic.Int64, done *atomic.Bool, ch chan<- event.Event) {
	defer wg.Done()
	ticker, err := memoryless.NewTicker(context.Background(), memoryless.Config{
		Min:      spec.ProgressInterval,
		Expected: spec.ProgressInterval,
		Max:      spec.ProgressInterval,
	})
	if err != nil {
		zap.L().Sugar().Errorw("cannot create reporter ticker", "err", err)
		return
	}
	defer ticker.Stop()
	for range ticker.C {
		if done.Load() {
			return
		}
		elapsed := time.Since(start)
		ch <- event.Progress{
			ElapsedMs: elapsed.Milliseconds(),
			Bytes:     total.Load(),
			Mbps:      mbps(total.Load(), elapsed.Seconds()),
		}
	}
}
