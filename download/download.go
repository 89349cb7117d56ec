// Package download runs the persisted single-worker download queue: jobs
// arrive over HTTP, survive in the catalog until ingested, and are
// fetched one at a time with strict timeouts.
package download

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anekos/noir"
	"github.com/anekos/noir/loader"
	"github.com/anekos/noir/store"
)

const (
	// overallTimeout bounds one whole transfer.
	overallTimeout = 5 * time.Minute

	// connectTimeout bounds connection establishment.
	connectTimeout = 10 * time.Second

	// lowSpeedWindow and lowSpeedBytes abort stalled transfers: fewer
	// than lowSpeedBytes within one window is too slow.
	lowSpeedWindow = 30 * time.Second
	lowSpeedBytes  = 1024 * 30

	// jobInterval rate-limits the worker between jobs.
	jobInterval = 3 * time.Second

	// queueCapacity is the channel buffer; persistence is the real queue.
	queueCapacity = 100
)

var (
	downloadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noir_downloads_completed_total",
		Help: "Downloads fetched and ingested.",
	})
	downloadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noir_download_errors_total",
		Help: "Download jobs that failed.",
	})
)

// TagRequest names tags to bind after ingestion, with their provenance.
type TagRequest struct {
	Items  []string `json:"items"`
	Source string   `json:"source"`
}

// Job describes one download: the URL to fetch, the destination path
// relative to the download root, and optional tags.
type Job struct {
	URL  string      `json:"url"`
	To   string      `json:"to"`
	Tags *TagRequest `json:"tags,omitempty"`
}

type queued struct {
	id  int64
	job Job
}

// ErrQueueFull is returned when the worker channel cannot accept a job.
// The persisted row remains, so the job is not lost.
var ErrQueueFull = errors.New("download queue is full")

// Worker fetches queued jobs one at a time on its own goroutine, with its
// own catalog handle.
type Worker struct {
	store  *store.Store
	root   string
	jobs   chan queued
	client *http.Client
}

// NewWorker creates a worker downloading beneath root, using its own
// store handle st.
func NewWorker(st *store.Store, root string) *Worker {
	return &Worker{
		store: st,
		root:  root,
		jobs:  make(chan queued, queueCapacity),
		client: &http.Client{
			Timeout: overallTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
				// HTTP/1.1 only.
				ForceAttemptHTTP2: false,
				TLSNextProto:      map[string]func(string, *tls.Conn) http.RoundTripper{},
			},
		},
	}
}

// Start launches the worker goroutine. Jobs already persisted in the
// queue table are re-enqueued first. The worker terminates only with the
// process.
func (w *Worker) Start(ctx context.Context) error {
	pending, err := w.store.PendingDownloads(ctx)
	if err != nil {
		return fmt.Errorf("reading persisted queue: %w", err)
	}
	for _, p := range pending {
		var job Job
		if err := json.Unmarshal([]byte(p.Job), &job); err != nil {
			slog.Error("corrupt persisted job", "id", p.ID, "error", err)
			continue
		}
		select {
		case w.jobs <- queued{id: p.ID, job: job}:
		default:
			slog.Warn("persisted queue larger than channel; remainder stays persisted", "id", p.ID)
		}
	}
	if len(pending) > 0 {
		slog.Info("resuming persisted downloads", "count", len(pending))
	}

	go w.loop()
	return nil
}

// Enqueue persists job and forwards it to the worker. Persistence happens
// first, inside a transaction on st (the HTTP facade's handle), so a full
// channel does not lose the job.
func (w *Worker) Enqueue(ctx context.Context, st *store.Store, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}

	tx, err := st.Transaction(ctx)
	if err != nil {
		return err
	}
	id, err := st.EnqueueDownload(ctx, job.URL, string(encoded))
	tx.Release()
	if err != nil {
		return err
	}

	select {
	case w.jobs <- queued{id: id, job: job}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Worker) loop() {
	var deque []queued
	for {
		// Drain newly arrived work without blocking.
		arrived := 0
	drain:
		for {
			select {
			case q := <-w.jobs:
				deque = append(deque, q)
				arrived++
			default:
				break drain
			}
		}
		if arrived > 0 {
			slog.Info("download jobs arrived", "count", arrived, "queued", len(deque))
		}

		if len(deque) == 0 {
			q := <-w.jobs
			deque = append(deque, q)
			continue
		}

		q := deque[0]
		deque = deque[1:]
		if err := w.process(q); err != nil {
			encoded, _ := json.Marshal(q.job)
			slog.Error("download failed", "job", string(encoded), "error", err)
			downloadErrors.Inc()
		} else {
			downloadsCompleted.Inc()
		}

		time.Sleep(jobInterval)
	}
}

// process fetches one job and ingests the result.
func (w *Worker) process(q queued) error {
	ctx := context.Background()
	dest := filepath.Join(w.root, q.job.To)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	if err := w.fetch(q.job.URL, dest); err != nil {
		return err
	}

	tx, err := w.store.Transaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Release()

	ld := loader.New(w.store, loader.Config{ComputeDhash: true, Update: true})
	if err := ld.Load(ctx, dest); err != nil {
		return err
	}

	if q.job.Tags != nil && len(q.job.Tags.Items) > 0 {
		canonical, err := noir.Canonical(dest)
		if err != nil {
			return err
		}
		tags, err := noir.NewTags(q.job.Tags.Items)
		if err != nil {
			return err
		}
		source := q.job.Tags.Source
		if source == "" {
			source = loader.DefaultTagSource
		}
		if err := w.store.AddTags(ctx, canonical, tags, source); err != nil {
			return err
		}
	}

	return w.store.DeleteDownload(ctx, q.id)
}

// fetch streams url into dest, aborting stalled transfers.
func (w *Worker) fetch(url, dest string) error {
	file, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	defer file.Close()

	resp, err := w.client.Get(url)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	if _, err := io.Copy(file, &stallReader{r: resp.Body, windowStart: time.Now()}); err != nil {
		return fmt.Errorf("streaming %s: %w", url, err)
	}
	return nil
}

// stallReader aborts when a rolling window transfers too few bytes,
// approximating curl's low-speed limit.
type stallReader struct {
	r           io.Reader
	windowStart time.Time
	windowBytes int
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.windowBytes += n
	if elapsed := time.Since(s.windowStart); elapsed >= lowSpeedWindow {
		if s.windowBytes < lowSpeedBytes {
			return n, fmt.Errorf("transfer below %d B/s for %s", lowSpeedBytes/int(lowSpeedWindow/time.Second), lowSpeedWindow)
		}
		s.windowStart = time.Now()
		s.windowBytes = 0
	}
	return n, err
}
