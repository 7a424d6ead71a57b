package objstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"github.com/bdew/MCMultiPart/internal/metrics"
)

// Uploader is the part of Client the mirror needs.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

type MirrorConfig struct {
	// Files are keyed by their path relative to BaseDir, under Prefix.
	BaseDir     string
	Prefix      string
	Workers     int
	Queue       int
	EnqueueWait time.Duration
	Attempts    int
	Backoff     time.Duration
}

type Stats struct {
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	EnqueuedTotal   uint64 `json:"enqueued_total"`
	DroppedTotal    uint64 `json:"dropped_total"`
	UploadedTotal   uint64 `json:"uploaded_total"`
	FailedTotal     uint64 `json:"failed_total"`
	LastSuccessUnix int64  `json:"last_success_unix"`
}

// Mirror uploads journal files after the journal has closed them. Enqueue
// waits at most EnqueueWait, so a stuck bucket never stalls the journal.
type Mirror struct {
	up  Uploader
	cfg MirrorConfig
	log log.Interface

	jobs chan string
	wg   sync.WaitGroup

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
	lastOK   atomic.Int64
}

func NewMirror(up Uploader, cfg MirrorConfig, logger log.Interface) *Mirror {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = 25 * time.Millisecond
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	cfg.Prefix = strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/")
	if logger == nil {
		logger = log.Log
	}
	m := &Mirror{
		up:   up,
		cfg:  cfg,
		log:  logger.WithField("module", "mirror"),
		jobs: make(chan string, cfg.Queue),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.upload(p)
			}
		}()
	}
	return m
}

func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	timer := time.NewTimer(m.cfg.EnqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- localPath:
	case <-timer.C:
		m.dropped.Add(1)
		metrics.JournalUploads.WithLabelValues("dropped").Inc()
		m.log.WithField("file", localPath).Warn("mirror queue full, file not uploaded")
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(m.jobs),
		QueueCapacity:   cap(m.jobs),
		EnqueuedTotal:   m.enqueued.Load(),
		DroppedTotal:    m.dropped.Load(),
		UploadedTotal:   m.uploaded.Load(),
		FailedTotal:     m.failed.Load(),
		LastSuccessUnix: m.lastOK.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	l := m.log.WithField("file", localPath)
	key, err := m.objectKey(localPath)
	if err != nil {
		m.failed.Add(1)
		metrics.JournalUploads.WithLabelValues("failed").Inc()
		l.WithError(err).Warn("mirror skip")
		return
	}
	l = l.WithField("key", key)

	var lastErr error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = m.up.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			break
		}
		if attempt < m.cfg.Attempts {
			time.Sleep(time.Duration(attempt*attempt) * m.cfg.Backoff)
		}
	}
	if lastErr != nil {
		m.failed.Add(1)
		metrics.JournalUploads.WithLabelValues("failed").Inc()
		l.WithError(lastErr).Error("mirror upload failed")
		return
	}
	m.uploaded.Add(1)
	m.lastOK.Store(time.Now().UTC().Unix())
	metrics.JournalUploads.WithLabelValues("ok").Inc()
	l.Debug("mirror uploaded")
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	base, err := filepath.Abs(m.cfg.BaseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if m.cfg.Prefix != "" {
		rel = path.Join(m.cfg.Prefix, rel)
	}
	return rel, nil
}
