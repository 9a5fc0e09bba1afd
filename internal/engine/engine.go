// Package engine counts exercise repetitions and produces form feedback from
// a per-frame stream of body keypoints. It owns all live session state and
// performs no I/O; transport and archival belong to the caller.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/claude/repcam/internal/exercise"
	"github.com/claude/repcam/internal/geometry"
	"github.com/claude/repcam/internal/hints"
	"github.com/claude/repcam/internal/pose"
)

// Config tunes the frame pipeline and the session store.
type Config struct {
	SmoothingWindow      int
	SmoothingAlpha       float64
	ConfidenceFloor      float64
	FullBodyMinKeypoints int
	FullBodyConfidence   float64
	MaxHints             int
	HintCooldown         time.Duration

	MaxSessions int
	IdleTTL     time.Duration
	Shards      int
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		SmoothingWindow:      10,
		SmoothingAlpha:       0.3,
		ConfidenceFloor:      0.4,
		FullBodyMinKeypoints: 12,
		FullBodyConfidence:   0.5,
		MaxHints:             hints.DefaultMaxHints,
		HintCooldown:         5 * time.Second,
		IdleTTL:              10 * time.Minute,
		Shards:               DefaultShards,
	}
}

// Recorder receives counters about engine activity. Implementations must be
// safe for concurrent use and must not block.
type Recorder interface {
	SessionStarted(exercise string)
	SessionEnded(exercise, reason string)
	FrameProcessed(exercise string, lowConfidence bool)
	RepCounted(exercise string, full bool)
	HintShown(exercise, category string)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted(string) {}
func (nopRecorder) SessionEnded(string, string) {}
func (nopRecorder) FrameProcessed(string, bool) {}
func (nopRecorder) RepCounted(string, bool) {}
func (nopRecorder) HintShown(string, string) {}

// Warning codes.
const (
	WarnLowConfidence    = "low_confidence"
	WarnExerciseMismatch = "exercise_mismatch"
)

// Warning is a non-fatal condition reported alongside a frame result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Angles reports the tracked joint angle in degrees.
type Angles struct {
	Raw     float64 `json:"raw"`
	Primary float64 `json:"primary"`
	Valley  float64 `json:"valley"`
	Peak    float64 `json:"peak"`
}

// FrameResult is the outcome of one frame.
type FrameResult struct {
	SessionID       string          `json:"session_id"`
	Exercise        exercise.Type   `json:"exercise"`
	Keypoints       []pose.Keypoint `json:"keypoints"`
	RepCount        int             `json:"rep_count"`
	PartialRepCount int             `json:"partial_rep_count"`
	CurrentPhase    Phase           `json:"current_phase"`
	PhaseProgress   float64         `json:"phase_progress"`
	Hints           []hints.Hint    `json:"hints"`
	Warnings        []Warning       `json:"warnings"`
	Angles          Angles          `json:"angles"`
	IsValidRep      bool            `json:"is_valid_rep"`
	IsFullBody      bool            `json:"is_full_body"`
	Side            string          `json:"side"`
}

// Engine is the frame pipeline plus the session store.
type Engine struct {
	cfg     Config
	store   *Store
	now     func() time.Time
	rec     Recorder
	log     *slog.Logger
	onEvict func(FinalSummary)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for session bookkeeping and missing frame timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

// WithLogger sets the logger used by the janitor.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithEvictHandler registers a callback for sessions removed by idle eviction.
func WithEvictHandler(fn func(FinalSummary)) Option {
	return func(e *Engine) { e.onEvict = fn }
}

// New creates an Engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		now: time.Now,
		rec: nopRecorder{},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.store = NewStore(cfg.Shards, cfg.MaxSessions)
	return e
}

// ListSupportedExercises returns every exercise type the engine can track.
func (e *Engine) ListSupportedExercises() []exercise.Type {
	return exercise.Types()
}

// CreateSession configures a new session explicitly.
func (e *Engine) CreateSession(id string, t exercise.Type, cal *exercise.Calibration) (Summary, error) {
	if id == "" {
		return Summary{}, fmt.Errorf("%w: empty session id", ErrInvalidInput)
	}
	p, th, err := resolve(t, cal)
	if err != nil {
		return Summary{}, err
	}
	sess, err := e.store.create(id, func() *session { return e.newSession(id, p, th, cal.Level()) })
	if err != nil {
		return Summary{}, err
	}
	e.rec.SessionStarted(string(p.Type))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.summary(), nil
}

// ProcessFrame is create-or-continue: the first frame for id configures the
// session from t and cal, later frames ignore both without validating them.
// A later frame naming a different exercise gets a warning.
func (e *Engine) ProcessFrame(id string, t exercise.Type, cal *exercise.Calibration, kps []pose.Keypoint, at time.Time) (FrameResult, error) {
	f, err := parseFrame(id, kps)
	if err != nil {
		return FrameResult{}, err
	}
	if at.IsZero() {
		at = e.now()
	}

	for {
		sess, ok := e.store.get(id)
		if !ok {
			p, th, err := resolve(t, cal)
			if err != nil {
				return FrameResult{}, err
			}
			var created bool
			sess, created, err = e.store.getOrCreate(id, func() *session { return e.newSession(id, p, th, cal.Level()) })
			if err != nil {
				return FrameResult{}, err
			}
			if created {
				e.rec.SessionStarted(string(p.Type))
			}
		}

		sess.mu.Lock()
		if sess.closed {
			// Ended between lookup and lock; it is already gone from the store.
			sess.mu.Unlock()
			continue
		}
		res := e.step(sess, f, at)
		if t != sess.profile.Type {
			res.Warnings = append(res.Warnings, Warning{
				Code:    WarnExerciseMismatch,
				Message: fmt.Sprintf("session is tracking %s; %q ignored", sess.profile.Type, t),
			})
		}
		sess.mu.Unlock()
		return res, nil
	}
}

// SubmitFrame feeds a frame to an existing session.
func (e *Engine) SubmitFrame(id string, kps []pose.Keypoint, at time.Time) (FrameResult, error) {
	f, err := parseFrame(id, kps)
	if err != nil {
		return FrameResult{}, err
	}
	if at.IsZero() {
		at = e.now()
	}
	sess, ok := e.store.get(id)
	if !ok {
		return FrameResult{}, ErrUnknownSession
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return FrameResult{}, ErrUnknownSession
	}
	return e.step(sess, f, at), nil
}

// GetSession returns a snapshot of a live session.
func (e *Engine) GetSession(id string) (Summary, bool) {
	sess, ok := e.store.get(id)
	if !ok {
		return Summary{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return Summary{}, false
	}
	return sess.summary(), true
}

// EndSession removes a session and returns its final counters. An unknown id
// reports found=false. A frame already holding the session finishes first.
func (e *Engine) EndSession(id string) (FinalSummary, bool) {
	sess, ok := e.store.get(id)
	if !ok {
		return FinalSummary{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return FinalSummary{}, false
	}
	final := sess.close(EndedByClient, e.now())
	e.store.remove(id, sess)
	e.rec.SessionEnded(string(final.Exercise), string(final.Reason))
	return final, true
}

// Sessions returns snapshots of every live session ordered by id.
func (e *Engine) Sessions() []Summary {
	var out []Summary
	for _, sess := range e.store.snapshot() {
		sess.mu.Lock()
		if !sess.closed {
			out = append(out, sess.summary())
		}
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Len returns the number of live sessions.
func (e *Engine) Len() int { return e.store.Len() }

// Sweep evicts idle sessions and hands each to the evict handler.
func (e *Engine) Sweep() []FinalSummary {
	evicted := e.store.Sweep(e.now(), e.cfg.IdleTTL)
	for _, fs := range evicted {
		e.rec.SessionEnded(string(fs.Exercise), string(fs.Reason))
		if e.onEvict != nil {
			e.onEvict(fs)
		}
	}
	return evicted
}

// RunJanitor sweeps idle sessions every interval until ctx is cancelled.
func (e *Engine) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || e.cfg.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := e.Sweep(); len(evicted) > 0 {
				e.log.Info("evicted idle sessions", "count", len(evicted), "remaining", e.Len())
			}
		}
	}
}

func parseFrame(id string, kps []pose.Keypoint) (*pose.Frame, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidInput)
	}
	f, err := pose.NewFrame(kps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return f, nil
}

func resolve(t exercise.Type, cal *exercise.Calibration) (*exercise.Profile, exercise.Thresholds, error) {
	p, err := exercise.Lookup(t)
	if err != nil {
		return nil, exercise.Thresholds{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := cal.Check(); err != nil {
		return nil, exercise.Thresholds{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	th, err := p.Resolve(cal)
	if err != nil {
		return nil, exercise.Thresholds{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return p, th, nil
}

func (e *Engine) newSession(id string, p *exercise.Profile, th exercise.Thresholds, level exercise.FitnessLevel) *session {
	now := e.now()
	return &session{
		id:         id,
		profile:    p,
		thresholds: th,
		level:      level,
		smoother:   NewSmoother(e.cfg.SmoothingWindow, e.cfg.SmoothingAlpha),
		machine:    NewPhaseMachine(now),
		createdAt:  now,
		touchedAt:  now,
		lastHint:   make(map[hints.Category]time.Time),
	}
}

// step runs one frame through smoothing, the phase machine and the hint
// rules. The caller holds sess.mu.
func (e *Engine) step(sess *session, f *pose.Frame, at time.Time) FrameResult {
	sess.frames++
	sess.touchedAt = e.now()
	if at.After(sess.lastFrameAt) {
		sess.lastFrameAt = at
	}

	joints := sess.profile.SelectSide(f)
	a, _ := f.Get(joints[0])
	v, _ := f.Get(joints[1])
	b, _ := f.Get(joints[2])
	raw := geometry.JointAngle(a, v, b)

	res := FrameResult{
		SessionID:  sess.id,
		Exercise:   sess.profile.Type,
		Keypoints:  f.Keypoints(),
		Hints:      []hints.Hint{},
		Warnings:   []Warning{},
		IsFullBody: f.CountAbove(e.cfg.FullBodyConfidence) >= e.cfg.FullBodyMinKeypoints,
		Side:       side(joints),
	}

	confident := f.AllAbove(e.cfg.ConfidenceFloor, joints[:]...)
	if confident {
		sess.angle = sess.smoother.Smooth(raw)
		sess.hasAngle = true
		switch sess.machine.Step(sess.angle, sess.thresholds, at) {
		case FullRep:
			res.IsValidRep = true
			e.rec.RepCounted(string(sess.profile.Type), true)
		case PartialRep:
			e.rec.RepCounted(string(sess.profile.Type), false)
		}
	} else {
		sess.lowConfidence++
		res.Warnings = append(res.Warnings, lowConfidenceWarning(f, joints, e.cfg.ConfidenceFloor))
	}
	e.rec.FrameProcessed(string(sess.profile.Type), !confident)

	m := &sess.machine
	res.RepCount = m.Reps
	res.PartialRepCount = m.Partials
	res.CurrentPhase = m.Phase
	res.Angles = Angles{Raw: raw, Primary: sess.angle, Valley: m.Valley, Peak: m.Peak}
	if sess.hasAngle {
		res.PhaseProgress = m.Progress(sess.angle, sess.thresholds)
	}

	found := hints.Evaluate(sess.profile.Rules, hints.Input{
		Frame:           f,
		Angle:           sess.angle,
		AngleValid:      confident,
		Bottomed:        m.Phase == PhaseDown,
		Valley:          m.Valley,
		DownAngle:       sess.thresholds.DownAngle,
		UpAngle:         sess.thresholds.UpAngle,
		SafeZone:        sess.thresholds.SafeZone,
		Mirrored:        joints != sess.profile.Joints,
		Tolerance:       sess.level.Tolerance(),
		ConfidenceFloor: e.cfg.ConfidenceFloor,
	})
	res.Hints = append(res.Hints, sess.throttle(found, e.cfg.HintCooldown, e.cfg.MaxHints, at)...)
	for _, h := range res.Hints {
		e.rec.HintShown(string(sess.profile.Type), string(h.Category))
	}
	return res
}

func side(j exercise.Joints) string {
	if strings.HasPrefix(string(j.Vertex()), "right_") {
		return "right"
	}
	return "left"
}

func lowConfidenceWarning(f *pose.Frame, joints exercise.Joints, floor float64) Warning {
	var weak []string
	for _, id := range joints {
		if f.Confidence(id) < floor {
			weak = append(weak, string(id))
		}
	}
	return Warning{
		Code:    WarnLowConfidence,
		Message: fmt.Sprintf("low confidence on %s; keep your whole body in frame", strings.Join(weak, ", ")),
	}
}
