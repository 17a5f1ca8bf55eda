package prefetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksentinel/engine/internal/cache"
)

// Config mirrors spec §4.9's tunables.
type Config struct {
	ShortRangeWindow int
	LongRangeWindow  int
	WorkerThreads    int
	QueueCapacity    int
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{ShortRangeWindow: 3, LongRangeWindow: 10, WorkerThreads: 2, QueueCapacity: 256}
}

// longRangeDispatchRate bounds how many long-range (encrypted-only) tasks
// one asset may push onto the queue per second (the burst is twice the
// configured long-range window, set in NewManager), so a single
// ForwardScrub-pattern asset cannot starve every other asset's
// short-range prefetch of worker time.
const (
	longRangeDispatchRate = 20.0
	longRangeDispatchTTL  = 10 * time.Minute
)

// Decryptor is the subset of the engine a prefetch worker needs to turn
// a chunk index into plaintext. Kept as an interface here so this
// package never imports internal/engine (engine imports prefetch, not
// the reverse).
type Decryptor interface {
	DecryptChunk(assetID string, index uint32) ([]byte, error)
}

// ChunkFetcher reads an encrypted chunk triple off disk without
// decrypting it, for long-range cache warming.
type ChunkFetcher interface {
	FetchEncryptedTriple(assetPath string, index uint32) (cache.EncryptedTriple, error)
}

// AccessEvent is what the foreground read path reports to the manager
// on every chunk access (spec §4.9).
type AccessEvent struct {
	AssetID      string
	AssetPath    string
	CurrentChunk uint32
	ByteStart    int64
	ByteEnd      int64
	TotalChunks  uint32
	ExpiryAt     int64
}

type taskKind int

const (
	shortRangeTask taskKind = iota
	longRangeTask
)

type task struct {
	kind    taskKind
	assetID string
	ev      AccessEvent
	index   uint32
}

// Manager runs the background worker pool that warms both cache tiers
// ahead of sequential/scrubbing reads (spec §4.9). It is best-effort:
// nothing it does is required for a foreground decrypt_chunk call to
// succeed.
type Manager struct {
	cfg       Config
	decrypted *cache.DecryptedChunkCache
	encrypted *cache.EncryptedChunkCache
	decryptor Decryptor
	fetcher   ChunkFetcher
	detector  *VelocityDetector
	limiter   *assetLimiter
	log       *logrus.Entry
	metrics   *Metrics

	queue   chan task
	seen    sync.Map // dedupe key -> struct{}
	aborted sync.Map // assetID -> *abortFlag

	wg     *errgroup.Group
	cancel context.CancelFunc
}

type abortFlag struct {
	mu      sync.Mutex
	aborted bool
}

// NewManager constructs a prefetch manager wired to the two cache tiers
// and the engine's decrypt/fetch capabilities. Call Start to spin up
// workers and Stop to drain them.
func NewManager(cfg Config, decrypted *cache.DecryptedChunkCache, encrypted *cache.EncryptedChunkCache, decryptor Decryptor, fetcher ChunkFetcher, log *logrus.Entry, metrics *Metrics) *Manager {
	if cfg.ShortRangeWindow <= 0 || cfg.LongRangeWindow <= 0 || cfg.WorkerThreads <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		cfg:       cfg,
		decrypted: decrypted,
		encrypted: encrypted,
		decryptor: decryptor,
		fetcher:   fetcher,
		detector:  NewVelocityDetector(nil),
		limiter:   newAssetLimiter(longRangeDispatchRate, cfg.LongRangeWindow*2, longRangeDispatchTTL),
		log:       log.WithField("component", "prefetch"),
		metrics:   metrics,
		queue:     make(chan task, cfg.QueueCapacity),
	}
}

// Start launches the worker pool. ctx cancellation (or Stop) drains it.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	m.wg = g

	for i := 0; i < m.cfg.WorkerThreads; i++ {
		g.Go(func() error {
			m.workerLoop(gctx)
			return nil
		})
	}
}

// Stop signals workers to exit and waits for them to drain.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.wg != nil {
		m.wg.Wait()
	}
	m.limiter.close()
}

// OnChunkAccess updates the velocity detector and enqueues the
// resulting short- and long-range prefetch tasks (spec §4.9 steps 1-4).
func (m *Manager) OnChunkAccess(ev AccessEvent) {
	pattern := m.detector.Observe(ev.AssetID, ev.ByteStart, ev.ByteEnd)
	m.ensureAbortFlag(ev.AssetID)
	m.metrics.observePattern(pattern)

	shortLo, shortHi := clampRange(int64(ev.CurrentChunk)+2, int64(ev.CurrentChunk)+2+int64(m.cfg.ShortRangeWindow), ev.TotalChunks)
	for i := shortLo; i < shortHi; i++ {
		m.enqueue(task{kind: shortRangeTask, assetID: ev.AssetID, ev: ev, index: uint32(i)})
	}

	var longLo, longHi int64
	switch pattern {
	case Sequential:
		longLo, longHi = int64(ev.CurrentChunk)+5, int64(ev.CurrentChunk)+15
	case SlowForward:
		longLo, longHi = int64(ev.CurrentChunk)+10, int64(ev.CurrentChunk)+20
	case ForwardScrub:
		longLo, longHi = int64(ev.CurrentChunk)+15, int64(ev.CurrentChunk)+30
	case BackwardJump:
		m.decrypted.Invalidate(ev.AssetID)
		longLo, longHi = max64(int64(ev.CurrentChunk)-15, 0), int64(ev.CurrentChunk)
	}
	longLo, longHi = clampRange(longLo, longHi, ev.TotalChunks)
	for i := longLo; i < longHi; i++ {
		if !m.limiter.allow(ev.AssetID) {
			m.log.WithField("asset_id", ev.AssetID).Debug("long-range prefetch dispatch rate-limited")
			break
		}
		m.enqueue(task{kind: longRangeTask, assetID: ev.AssetID, ev: ev, index: uint32(i)})
	}
}

// AbortAsset marks assetID as aborted: the decrypted cache for it is
// invalidated and every queued or future task for it is skipped (spec
// §4.9 worker loop, §4.10 Expired/Aborted states).
func (m *Manager) AbortAsset(assetID string) {
	m.ensureAbortFlag(assetID).set()
	m.decrypted.Invalidate(assetID)
	m.detector.Forget(assetID)
}

func (m *Manager) ensureAbortFlag(assetID string) *abortFlag {
	if v, ok := m.aborted.Load(assetID); ok {
		return v.(*abortFlag)
	}
	flag := &abortFlag{}
	actual, _ := m.aborted.LoadOrStore(assetID, flag)
	return actual.(*abortFlag)
}

func (f *abortFlag) set() {
	f.mu.Lock()
	f.aborted = true
	f.mu.Unlock()
}

func (f *abortFlag) isSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}

func (m *Manager) enqueue(t task) {
	key := dedupeKey(t)
	if _, loaded := m.seen.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	select {
	case m.queue <- t:
		m.metrics.setQueueDepth(float64(len(m.queue)))
	default:
		m.seen.Delete(key)
		m.log.WithField("asset_id", t.assetID).Warn("prefetch queue full, dropping task")
	}
}

func dedupeKey(t task) string {
	return fmt.Sprintf("%d:%s:%d", t.kind, t.assetID, t.index)
}

func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-m.queue:
			if !ok {
				return
			}
			m.seen.Delete(dedupeKey(t))
			m.metrics.setQueueDepth(float64(len(m.queue)))
			m.runTask(t)
		}
	}
}

func (m *Manager) runTask(t task) {
	flag := m.ensureAbortFlag(t.assetID)
	if flag.isSet() {
		return
	}
	if time.Now().Unix() > t.ev.ExpiryAt {
		return
	}

	var err error
	switch t.kind {
	case shortRangeTask:
		err = m.runShortRange(t)
	case longRangeTask:
		err = m.runLongRange(t)
	}
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"asset_id": t.assetID, "index": t.index, "kind": t.kind,
		}).Warn("prefetch task failed, aborting asset")
		m.AbortAsset(t.assetID)
	}
}

func (m *Manager) runShortRange(t task) error {
	if _, ok := m.decrypted.Get(t.assetID, t.index); ok {
		return nil
	}
	plaintext, err := m.decryptor.DecryptChunk(t.assetID, t.index)
	if err != nil {
		return err
	}
	m.decrypted.Put(t.assetID, t.index, plaintext, t.ev.ExpiryAt)
	return nil
}

func (m *Manager) runLongRange(t task) error {
	if _, ok := m.encrypted.Get(t.ev.AssetPath, t.index); ok {
		return nil
	}
	triple, err := m.fetcher.FetchEncryptedTriple(t.ev.AssetPath, t.index)
	if err != nil {
		return err
	}
	m.encrypted.Put(t.ev.AssetPath, t.index, triple)
	return nil
}

func clampRange(lo, hi int64, total uint32) (int64, int64) {
	if lo < 0 {
		lo = 0
	}
	if hi > int64(total) {
		hi = int64(total)
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Metrics bundles the Prometheus instruments the prefetch manager
// reports to (domain-stack wiring, see SPEC_FULL.md §4).
type Metrics struct {
	Patterns   *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

// NewMetrics registers the prefetch counters/gauges against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Patterns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oksentinel",
			Subsystem: "prefetch",
			Name:      "seek_pattern_total",
			Help:      "Observed seek patterns by kind.",
		}, []string{"pattern"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oksentinel",
			Subsystem: "prefetch",
			Name:      "queue_depth",
			Help:      "Current depth of the prefetch task queue.",
		}),
	}
	reg.MustRegister(m.Patterns, m.QueueDepth)
	return m
}

func (m *Metrics) observePattern(p SeekPattern) {
	if m == nil {
		return
	}
	m.Patterns.WithLabelValues(p.String()).Inc()
}

func (m *Metrics) setQueueDepth(v float64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(v)
}
