package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/google/uuid"
)

const (
	DefaultRetention        = 30 * time.Second
	DefaultBatchSize        = 25
	DefaultProgressEvery    = 50
	DefaultProgressInterval = 250 * time.Millisecond
	DefaultQueueSize        = 32
)

// Config holds manager configuration
type Config struct {
	Engine           *cluster.Engine
	Sink             Sink
	Retention        time.Duration // how long terminal sessions stay queryable
	BatchSize        int           // groups per GroupBatch
	ProgressEvery    int           // files between progress snapshots
	ProgressInterval time.Duration // or time between progress snapshots
	QueueSize        int
}

// Manager runs scan sessions one at a time on a background worker and
// keeps their status queryable until they are evicted
type Manager struct {
	engine           *cluster.Engine
	sink             Sink
	retention        time.Duration
	batchSize        int
	progressEvery    int
	progressInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	queue    chan *session
	closed   bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

type session struct {
	mu     sync.Mutex
	snap   Snapshot
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	evict  *time.Timer
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// update applies fn to the snapshot and returns the result
func (s *session) update(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	s.snap.updatePercent()
	return s.snap
}

// NewManager creates a manager and starts its worker. Call Close to stop it.
func NewManager(cfg *Config) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	sink := cfg.Sink
	if sink == nil {
		sink = MultiSink(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		engine:           cfg.Engine,
		sink:             sink,
		retention:        cfg.Retention,
		batchSize:        cfg.BatchSize,
		progressEvery:    cfg.ProgressEvery,
		progressInterval: cfg.ProgressInterval,
		sessions:         make(map[string]*session),
		queue:            make(chan *session, cfg.QueueSize),
		rootCtx:          ctx,
		rootCancel:       cancel,
	}

	m.wg.Add(1)
	go m.worker()

	return m
}

// Start queues a new scan session and returns its initial snapshot
func (m *Manager) Start() (Snapshot, error) {
	ctx, cancel := context.WithCancel(m.rootCtx)
	s := &session{
		snap:   Snapshot{SessionID: uuid.NewString(), Stage: StageStarting},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		cancel()
		return Snapshot{}, util.ErrManagerClosed
	}

	select {
	case m.queue <- s:
	default:
		cancel()
		return Snapshot{}, fmt.Errorf("scan queue is full (%d pending)", cap(m.queue))
	}
	m.sessions[s.snap.SessionID] = s

	util.DebugLog("Queued scan session %s", s.snap.SessionID)
	return s.snap, nil
}

// Status returns the latest snapshot of a session
func (m *Manager) Status(id string) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// Cancel requests cooperative cancellation. The session reaches the
// cancelled stage once the worker observes it; cancelling a terminal
// session has no effect.
func (m *Manager) Cancel(id string) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	snap := s.update(func(snap *Snapshot) {
		if !snap.Stage.Terminal() {
			snap.Cancelled = true
		}
	})
	if !snap.Stage.Terminal() {
		s.cancel()
	}
	return snap, nil
}

// Wait blocks until the session reaches a terminal stage or ctx is done
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	select {
	case <-s.done:
		return s.snapshot(), nil
	case <-ctx.Done():
		return s.snapshot(), ctx.Err()
	}
}

// Sessions returns snapshots of all tracked sessions ordered by id
func (m *Manager) Sessions() []Snapshot {
	m.mu.Lock()
	list := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	snaps := make([]Snapshot, len(list))
	for i, s := range list {
		snaps[i] = s.snapshot()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].SessionID < snaps[j].SessionID })
	return snaps
}

// Close cancels every session, waits for the worker to exit and stops
// pending evictions. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	m.rootCancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.evict != nil {
			s.evict.Stop()
		}
		s.mu.Unlock()
	}
}

func (m *Manager) get(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", util.ErrSessionNotFound, id)
	}
	return s, nil
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for s := range m.queue {
		m.run(s)
	}
}

// run executes one session. Panics are recovered into the error stage so
// the worker survives for later sessions.
func (m *Manager) run(s *session) {
	defer close(s.done)
	defer s.cancel()
	defer func() {
		if r := recover(); r != nil {
			util.ErrorLog("Scan session %s panicked: %v", s.snap.SessionID, r)
			m.finish(s, StageError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if s.ctx.Err() != nil {
		m.finish(s, StageCancelled, "")
		return
	}

	m.publish(s.update(func(snap *Snapshot) { snap.Stage = StageLoading }))

	files, err := m.engine.Library().GetAllFiles()
	if err != nil {
		m.finish(s, StageError, fmt.Sprintf("failed to load files: %v", err))
		return
	}
	if s.ctx.Err() != nil {
		m.finish(s, StageCancelled, "")
		return
	}

	e := &emitter{m: m, s: s, lastEmit: time.Now()}
	groups, err := m.engine.ComputeGroups(s.ctx, files, cluster.Hooks{
		OnStart:    e.start,
		OnProgress: e.progress,
		OnGroup:    e.group,
	})
	switch {
	case errors.Is(err, context.Canceled):
		// Partial results are discarded: no flush, no cache write
		m.finish(s, StageCancelled, "")
		return
	case err != nil:
		m.finish(s, StageError, err.Error())
		return
	}

	e.flush()
	m.engine.Cache().Put(groups)
	m.finish(s, StageCompleted, "")
}

// finish moves the session to a terminal stage, publishes the final
// snapshot and schedules eviction
func (m *Manager) finish(s *session, stage Stage, errMsg string) {
	snap := s.update(func(snap *Snapshot) {
		snap.Stage = stage
		snap.Complete = true
		snap.Error = errMsg
		// A cancel request that lost the race with completion does not count
		snap.Cancelled = stage == StageCancelled
		if stage == StageCompleted {
			snap.FilesProcessed = snap.TotalFiles
		}
	})
	m.publish(snap)

	switch stage {
	case StageCompleted:
		util.InfoLog("Scan session %s completed: %d groups over %d files", snap.SessionID, snap.GroupsFound, snap.TotalFiles)
	case StageCancelled:
		util.InfoLog("Scan session %s cancelled at %d/%d files", snap.SessionID, snap.FilesProcessed, snap.TotalFiles)
	default:
		util.ErrorLog("Scan session %s failed: %s", snap.SessionID, errMsg)
	}

	id := snap.SessionID
	s.mu.Lock()
	s.evict = time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	})
	s.mu.Unlock()
}

func (m *Manager) publish(snap Snapshot) {
	m.sink.PublishProgress(snap)
}

// emitter throttles progress snapshots and batches discovered groups
type emitter struct {
	m         *Manager
	s         *session
	pending   []cluster.Group
	total     int
	lastFiles int
	lastEmit  time.Time
}

func (e *emitter) start(strategy cluster.Strategy, totalFiles, totalComparisons int) {
	e.m.publish(e.s.update(func(snap *Snapshot) {
		snap.Stage = StageScanning
		snap.Strategy = strategy
		snap.TotalFiles = totalFiles
		snap.TotalComparisons = totalComparisons
	}))
}

func (e *emitter) progress(filesProcessed, comparisons int) {
	snap := e.s.update(func(snap *Snapshot) {
		snap.FilesProcessed = filesProcessed
		snap.ComparisonsCompleted = comparisons
	})

	if filesProcessed-e.lastFiles < e.m.progressEvery && time.Since(e.lastEmit) < e.m.progressInterval {
		return
	}
	e.lastFiles = filesProcessed
	e.lastEmit = time.Now()
	e.m.publish(snap)
}

func (e *emitter) group(g cluster.Group) {
	e.total++
	e.s.update(func(snap *Snapshot) { snap.GroupsFound = e.total })

	e.pending = append(e.pending, g)
	if len(e.pending) >= e.m.batchSize {
		e.flush()
	}
}

func (e *emitter) flush() {
	if len(e.pending) == 0 {
		return
	}
	e.m.sink.PublishGroups(GroupBatch{
		SessionID:        e.s.snap.SessionID,
		Groups:           e.pending,
		TotalGroupsFound: e.total,
	})
	e.pending = nil
}
