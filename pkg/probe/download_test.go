package probe

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robertodauria/speedprobe/pkg/probe/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan event.Event) []event.Event {
	var evs []event.Event
	for ev := range ch {
		evs = append(evs, ev)
	}
	return evs
}

// deadServerURL returns a URL nothing is listening on.
func deadServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func endlessStream(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 32<<10)
	for {
		if _, err := w.Write(buf); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func TestDownloadFinishesOnStreamEnd(t *testing.T) {
	payload := make([]byte, 1<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	d := &Downloader{}
	ch := make(chan event.Event, 64)
	go d.Run(srv.URL, time.Second, ch)
	evs := collect(ch)

	require.NotEmpty(t, evs)
	started, ok := evs[0].(event.Started)
	require.True(t, ok, "first event must be Started")
	assert.Equal(t, srv.URL, started.URL)
	assert.EqualValues(t, 1000, started.DurationMs)

	finished, ok := evs[len(evs)-1].(event.Finished)
	require.True(t, ok, "last event must be Finished")
	assert.EqualValues(t, len(payload), finished.Bytes)
}

func TestDownloadStopsAtDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(endlessStream))
	defer srv.Close()

	d := &Downloader{}
	ch := make(chan event.Event, 256)
	begin := time.Now()
	go d.Run(srv.URL, 900*time.Millisecond, ch)
	evs := collect(ch)
	assert.Less(t, time.Since(begin), 3*time.Second)

	require.NotEmpty(t, evs)
	finished, ok := evs[len(evs)-1].(event.Finished)
	require.True(t, ok, "last event must be Finished")
	assert.Greater(t, finished.Bytes, int64(0))

	// The final figure is the cumulative average.
	wantMbps := float64(finished.Bytes) * 8 / (float64(finished.ElapsedMs) / 1000) / 1e6
	assert.InEpsilon(t, wantMbps, finished.AvgMbps, 0.05)

	// Progress samples are strictly increasing in time and non-decreasing
	// in bytes.
	var prev *event.Progress
	for _, ev := range evs {
		p, ok := ev.(event.Progress)
		if !ok {
			continue
		}
		if prev != nil {
			assert.Greater(t, p.ElapsedMs, prev.ElapsedMs)
			assert.GreaterOrEqual(t, p.Bytes, prev.Bytes)
		}
		prev = &p
	}
}

func TestDownloadStalledStreamStopsAtDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := &Downloader{}
	ch := make(chan event.Event, 64)
	begin := time.Now()
	go d.Run(srv.URL, 300*time.Millisecond, ch)
	evs := collect(ch)

	assert.Less(t, time.Since(begin), 2*time.Second, "a silent peer must not hang the session")
	require.NotEmpty(t, evs)
	finished, ok := evs[len(evs)-1].(event.Finished)
	require.True(t, ok, "the deadline stops a stalled stream cleanly, not with an error")
	assert.EqualValues(t, 1024, finished.Bytes)
}

func TestDownloadMidStreamFailureIsHard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent: the connection closes short
		// and the client's next read fails.
		w.Header().Set("Content-Length", "4096")
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	d := &Downloader{}
	ch := make(chan event.Event, 64)
	go d.Run(srv.URL, time.Second, ch)
	evs := collect(ch)

	require.NotEmpty(t, evs)
	_, ok := evs[len(evs)-1].(event.Error)
	assert.True(t, ok, "a mid-stream read failure is terminal")
	for _, ev := range evs {
		_, finished := ev.(event.Finished)
		assert.False(t, finished, "no partial Finished after a read failure")
	}
}

func TestDownloadFloorsZeroDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(endlessStream))
	defer srv.Close()

	d := &Downloader{}
	ch := make(chan event.Event, 64)
	begin := time.Now()
	go d.Run(srv.URL, 0, ch)
	evs := collect(ch)

	require.NotEmpty(t, evs)
	started, ok := evs[0].(event.Started)
	require.True(t, ok)
	assert.EqualValues(t, 250, started.DurationMs)
	assert.GreaterOrEqual(t, time.Since(begin), 250*time.Millisecond)
}

func TestDownloadFallsBackToNextCandidate(t *testing.T) {
	dead := deadServerURL(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	d := &Downloader{fallbacks: []string{srv.URL}}
	ch := make(chan event.Event, 64)
	go d.Run(dead, 300*time.Millisecond, ch)
	evs := collect(ch)

	// One Started per attempt, failing candidate first.
	var starteds []event.Started
	for _, ev := range evs {
		if s, ok := ev.(event.Started); ok {
			starteds = append(starteds, s)
		}
	}
	require.Len(t, starteds, 2)
	assert.Equal(t, dead, starteds[0].URL)
	assert.Equal(t, srv.URL, starteds[1].URL)

	_, ok := evs[len(evs)-1].(event.Finished)
	assert.True(t, ok, "fallback candidate should carry the session to Finished")
}

func TestDownloadStatusFailureDoesNotFallBack(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer good.Close()

	d := &Downloader{fallbacks: []string{good.URL}}
	ch := make(chan event.Event, 64)
	go d.Run(bad.URL, 300*time.Millisecond, ch)
	evs := collect(ch)

	// The endpoint answered with an error page: that is terminal, the
	// remaining candidate is never tried.
	require.Len(t, evs, 2)
	_, ok := evs[0].(event.Started)
	require.True(t, ok)
	errEv, ok := evs[1].(event.Error)
	require.True(t, ok)
	assert.Contains(t, errEv.Message, "unexpected status 500")
}

func TestDownloadAllCandidatesFail(t *testing.T) {
	d := &Downloader{fallbacks: []string{deadServerURL(t)}}
	ch := make(chan event.Event, 64)
	go d.Run(deadServerURL(t), 300*time.Millisecond, ch)
	evs := collect(ch)

	require.NotEmpty(t, evs)
	errEv, ok := evs[len(evs)-1].(event.Error)
	require.True(t, ok, "last event must be Error")
	assert.Contains(t, errEv.Message, "caused by:")
}

func TestDownloadNoCandidates(t *testing.T) {
	d := &Downloader{}
	ch := make(chan event.Event, 64)
	go d.Run("", 300*time.Millisecond, ch)
	evs := collect(ch)

	require.Len(t, evs, 1)
	errEv, ok := evs[0].(event.Error)
	require.True(t, ok)
	assert.Contains(t, errEv.Message, "no download candidates")
}
