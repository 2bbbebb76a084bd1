// Package session runs a monitored sitting: it consumes detection events on a
// fixed cadence, keeps the live risk assessment, raises advisories and
// persists the final result when the session stops.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/proctor/internal/capture"
	"github.com/ent0n29/proctor/internal/detection"
	"github.com/ent0n29/proctor/internal/identity"
	"github.com/ent0n29/proctor/internal/observability"
	"github.com/ent0n29/proctor/internal/risk"
	"github.com/ent0n29/proctor/internal/store"
	"github.com/ent0n29/proctor/internal/traces"
)

var (
	ErrConflict         = errors.New("a session is already active")
	ErrNotAuthenticated = errors.New("no authenticated identity")
)

// SessionWriter is the store capability a Lifecycle needs.
type SessionWriter interface {
	CreateSession(ctx context.Context, s store.Session) (store.Session, error)
	UpdateSession(ctx context.Context, id string, update store.SessionUpdate) error
}

type Deps struct {
	Store   SessionWriter
	Source  detection.Source
	Device  capture.Device
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Claims is shared by every lifecycle in the process so a student owns at
	// most one active session across clients.
	Claims *identity.Claims
}

// Lifecycle drives one session at a time: idle, active, then finalized.
// A finalized session is never resumed; Start begins a new one.
type Lifecycle struct {
	cfg     Config
	store   SessionWriter
	source  detection.Source
	device  capture.Device
	log     *slog.Logger
	metrics *observability.Metrics
	claims  *identity.Claims

	// opMu serializes Start, Stop and Logout.
	opMu sync.Mutex

	mu         sync.Mutex
	active     bool
	started    bool
	sess       store.Session
	ident      *identity.Context
	seq        detection.Sequence
	stream     *capture.Stream
	startedAt  time.Time
	elapsed    time.Duration
	advisories map[AdvisoryKind]Advisory
	cancel     context.CancelFunc
	done       chan struct{}

	subMu   sync.Mutex
	subs    map[uint64]chan Update
	nextSub uint64
}

func NewLifecycle(cfg Config, deps Deps) *Lifecycle {
	if deps.Device == nil {
		deps.Device = capture.NoDevice{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Lifecycle{
		cfg:        cfg.withDefaults(),
		store:      deps.Store,
		source:     deps.Source,
		device:     deps.Device,
		log:        deps.Logger,
		metrics:    deps.Metrics,
		claims:     deps.Claims,
		advisories: make(map[AdvisoryKind]Advisory),
		subs:       make(map[uint64]chan Update),
	}
}

// Start opens a new session for the identity bound to ident.
func (l *Lifecycle) Start(ctx context.Context, ident *identity.Context) (store.Session, error) {
	ctx, span := traces.StartSpan(ctx, "lifecycle.start")
	defer span.End()

	student, ok := ident.Current()
	if !ok {
		traces.Fail(span, ErrNotAuthenticated)
		return store.Session{}, ErrNotAuthenticated
	}
	span.SetAttributes(traces.StudentID(student.ID))

	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	active := l.active
	l.mu.Unlock()
	if active {
		traces.Fail(span, ErrConflict)
		return store.Session{}, ErrConflict
	}

	pending := "pending-" + uuid.NewString()
	if err := ident.ClaimSession(pending); err != nil {
		if errors.Is(err, identity.ErrSessionActive) {
			err = fmt.Errorf("%w: %w", ErrConflict, err)
		}
		traces.Fail(span, err)
		return store.Session{}, err
	}
	if err := l.claims.Claim(student.ID, pending); err != nil {
		ident.ReleaseSession(pending)
		err = fmt.Errorf("%w: %w", ErrConflict, err)
		traces.Fail(span, err)
		return store.Session{}, err
	}

	started := time.Now()
	now := started.UTC()
	initial := risk.Score(0, 0)
	sess, err := l.store.CreateSession(ctx, store.Session{
		StudentID:          student.ID,
		StudentName:        student.Name,
		StartTime:          now,
		CheatingPercentage: initial.CheatingPercentage,
		TrustScore:         initial.TrustScore,
		Status:             store.StatusActive,
	})
	if err != nil {
		ident.ReleaseSession(pending)
		l.claims.Release(student.ID, pending)
		traces.Fail(span, err)
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}
	ident.SwapSession(pending, sess.ID)
	l.claims.Swap(student.ID, pending, sess.ID)
	span.SetAttributes(traces.SessionID(sess.ID))

	advisories := make(map[AdvisoryKind]Advisory)
	var stream *capture.Stream
	if s, err := l.device.Acquire(ctx, l.cfg.CaptureConstraints); err != nil {
		msg := msgCameraUnavailable
		if errors.Is(err, capture.ErrPermissionDenied) {
			msg = msgCameraDenied
		}
		advisories[AdvisoryCameraDenied] = Advisory{Kind: AdvisoryCameraDenied, Message: msg, RaisedAt: now}
		l.metrics.CameraDeniedInc()
		l.log.Warn("camera unavailable, monitoring without video", "session_id", sess.ID, "error", err)
	} else {
		stream = &s
	}

	seq := l.source.Begin(sess.ID)
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	l.active = true
	l.started = true
	l.sess = sess
	l.ident = ident
	l.seq = seq
	l.stream = stream
	l.startedAt = started
	l.elapsed = 0
	l.advisories = advisories
	l.cancel = cancel
	l.done = done
	snap := l.snapshotLocked(now)
	l.mu.Unlock()

	l.metrics.SessionStarted()
	l.log.Info("session started", "session_id", sess.ID, "student_id", student.ID, "camera", stream != nil)
	l.publish(Update{Type: UpdateSnapshot, Snapshot: snap})
	if a, ok := advisories[AdvisoryCameraDenied]; ok {
		l.publish(Update{Type: UpdateAdvisory, Snapshot: snap, Advisory: &a})
	}

	go l.run(loopCtx, seq, done)
	return sess, nil
}

// Stop finalizes the active session. It reports false, with no error, when
// nothing is active.
func (l *Lifecycle) Stop(ctx context.Context) (store.Session, bool, error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	return l.stopLocked(ctx)
}

// Logout stops any session owned by ident, then clears it.
func (l *Lifecycle) Logout(ctx context.Context, ident *identity.Context) (store.Session, bool, error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	owned := l.active && l.ident == ident
	l.mu.Unlock()

	var (
		final   store.Session
		stopped bool
		err     error
	)
	if owned {
		final, stopped, err = l.stopLocked(ctx)
	}
	ident.Clear()
	return final, stopped, err
}

func (l *Lifecycle) stopLocked(ctx context.Context) (store.Session, bool, error) {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return store.Session{}, false, nil
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	// No tick can land after the loop has exited.
	cancel()
	<-done

	ctx, span := traces.StartSpan(ctx, "lifecycle.stop")
	defer span.End()

	l.mu.Lock()
	l.elapsed = time.Since(l.startedAt)
	now := sessionEnd(l.sess.StartTime, l.elapsed)
	l.seq.Close()
	l.sess.EndTime = &now
	l.sess.Status = risk.FinalStatus(l.sess.CheatingPercentage)
	l.active = false
	l.advisories = make(map[AdvisoryKind]Advisory)
	final := l.sess
	stream := l.stream
	ident := l.ident
	l.stream = nil
	l.ident = nil
	l.cancel = nil
	l.done = nil
	snap := l.snapshotLocked(now)
	l.mu.Unlock()
	span.SetAttributes(traces.SessionID(final.ID))

	endTime := now
	status := final.Status
	err := l.store.UpdateSession(ctx, final.ID, store.SessionUpdate{
		EndTime:              &endTime,
		HeadMovementCount:    &final.HeadMovementCount,
		DeviceDetectionCount: &final.DeviceDetectionCount,
		CheatingPercentage:   &final.CheatingPercentage,
		TrustScore:           &final.TrustScore,
		Status:               &status,
	})

	if stream != nil {
		if rerr := l.device.Release(*stream); rerr != nil {
			l.log.Warn("release camera failed", "session_id", final.ID, "error", rerr)
		}
	}
	if ident != nil {
		ident.ReleaseSession(final.ID)
	}
	l.claims.Release(final.StudentID, final.ID)
	l.metrics.SessionFinalized(string(final.Status), final.TrustScore, now.Sub(final.StartTime))
	l.publish(Update{Type: UpdateEnded, Snapshot: snap})

	if err != nil {
		traces.Fail(span, err)
		l.log.Error("persist final session failed", "session_id", final.ID, "error", err)
		return final, true, fmt.Errorf("persist session %s: %w", final.ID, err)
	}
	l.log.Info("session finalized",
		"session_id", final.ID,
		"status", final.Status,
		"trust_score", final.TrustScore,
		"head_movements", final.HeadMovementCount,
		"device_detections", final.DeviceDetectionCount,
	)
	return final, true, nil
}

// Snapshot returns the live view, or the last finalized session once stopped.
// It reports false before the first Start.
func (l *Lifecycle) Snapshot() (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return Snapshot{}, false
	}
	return l.snapshotLocked(time.Now().UTC()), true
}

func (l *Lifecycle) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Subscribe registers for updates. Slow subscribers miss updates rather than
// stall the session. Call the returned func to unsubscribe.
func (l *Lifecycle) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, l.cfg.SubscriberBuffer)
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, id)
			l.subMu.Unlock()
			close(ch)
		})
	}
}

func (l *Lifecycle) run(ctx context.Context, seq detection.Sequence, done chan struct{}) {
	defer close(done)
	detect := time.NewTicker(l.cfg.DetectionInterval)
	defer detect.Stop()
	clock := time.NewTicker(l.cfg.ElapsedInterval)
	defer clock.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-detect.C:
			l.sample(seq, now.UTC())
		case now := <-clock.C:
			l.advanceClock(now.UTC())
		}
	}
}

func (l *Lifecycle) sample(seq detection.Sequence, now time.Time) {
	events := seq.Next(now)

	var raised []Advisory
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	for _, ev := range events {
		switch ev.Kind {
		case detection.KindHeadMovement:
			l.sess.HeadMovementCount++
			if l.sess.HeadMovementCount > l.cfg.MovementAdvisoryThreshold {
				raised = append(raised, l.raiseLocked(AdvisoryExcessiveMovement, msgExcessiveMovement, now, l.cfg.MovementAdvisoryTTL))
			}
		case detection.KindDeviceDetection:
			l.sess.DeviceDetectionCount++
			raised = append(raised, l.raiseLocked(AdvisoryProhibitedDevice, msgProhibitedDevice, now, l.cfg.DeviceAdvisoryTTL))
		default:
			continue
		}
		l.metrics.Detection(string(ev.Kind))
	}
	a := risk.Score(l.sess.HeadMovementCount, l.sess.DeviceDetectionCount)
	l.sess.CheatingPercentage = a.CheatingPercentage
	l.sess.TrustScore = a.TrustScore
	cleared := l.expireLocked(now)
	snap := l.snapshotLocked(now)
	l.mu.Unlock()

	for i := range raised {
		l.metrics.Advisory(string(raised[i].Kind))
		l.publish(Update{Type: UpdateAdvisory, Snapshot: snap, Advisory: &raised[i]})
	}
	l.publishCleared(cleared, snap)
	l.publish(Update{Type: UpdateSnapshot, Snapshot: snap})
}

func (l *Lifecycle) advanceClock(now time.Time) {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.elapsed = time.Since(l.startedAt)
	cleared := l.expireLocked(now)
	snap := l.snapshotLocked(now)
	l.mu.Unlock()

	l.publishCleared(cleared, snap)
	l.publish(Update{Type: UpdateSnapshot, Snapshot: snap})
}

// raiseLocked sets or refreshes an advisory; re-raising extends its display.
func (l *Lifecycle) raiseLocked(kind AdvisoryKind, msg string, now time.Time, ttl time.Duration) Advisory {
	a := Advisory{Kind: kind, Message: msg, RaisedAt: now, ExpiresAt: now.Add(ttl)}
	l.advisories[kind] = a
	return a
}

func (l *Lifecycle) expireLocked(now time.Time) []Advisory {
	var cleared []Advisory
	for kind, a := range l.advisories {
		if a.expired(now) {
			cleared = append(cleared, a)
			delete(l.advisories, kind)
		}
	}
	return cleared
}

func (l *Lifecycle) snapshotLocked(now time.Time) Snapshot {
	sess := l.sess
	if sess.EndTime != nil {
		t := *sess.EndTime
		sess.EndTime = &t
	}
	elapsed := l.elapsed
	if l.active {
		elapsed = time.Since(l.startedAt)
	}
	advisories := make([]Advisory, 0, len(l.advisories))
	for _, kind := range []AdvisoryKind{AdvisoryCameraDenied, AdvisoryProhibitedDevice, AdvisoryExcessiveMovement} {
		if a, ok := l.advisories[kind]; ok && !a.expired(now) {
			advisories = append(advisories, a)
		}
	}
	return Snapshot{
		Session:         sess,
		Active:          l.active,
		ElapsedSeconds:  int64(elapsed / time.Second),
		Tier:            risk.TierFor(sess.TrustScore),
		Gauge:           risk.GaugeFor(sess.CheatingPercentage),
		CameraAvailable: l.stream != nil,
		Advisories:      advisories,
	}
}

func (l *Lifecycle) publishCleared(cleared []Advisory, snap Snapshot) {
	for i := range cleared {
		l.publish(Update{Type: UpdateAdvisoryCleared, Snapshot: snap, Advisory: &cleared[i]})
	}
}

func (l *Lifecycle) publish(u Update) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// sessionEnd places the end of a session elapsed after start. elapsed comes
// from the monotonic clock; the result is never before start.
func sessionEnd(start time.Time, elapsed time.Duration) time.Time {
	if elapsed < 0 {
		elapsed = 0
	}
	return start.Add(elapsed).UTC()
}
