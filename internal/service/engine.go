package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/anotheregi/blastkeun/internal/cache"
	"github.com/anotheregi/blastkeun/internal/client"
	"github.com/anotheregi/blastkeun/internal/delay"
	"github.com/anotheregi/blastkeun/internal/metrics"
	"github.com/anotheregi/blastkeun/internal/mode"
	"github.com/anotheregi/blastkeun/internal/model"
	"github.com/anotheregi/blastkeun/internal/registry"
	"github.com/anotheregi/blastkeun/internal/repo"
)

const DefaultSessionName = "Blast Session"

type Config struct {
	// TypingFraction scales the mode delay range for the pause before each send.
	TypingFraction float64
	ReadDelayMin   time.Duration
	ReadDelayMax   time.Duration
}

func DefaultConfig() Config {
	return Config{
		TypingFraction: 0.3,
		ReadDelayMin:   5 * time.Second,
		ReadDelayMax:   15 * time.Second,
	}
}

type Deps struct {
	Gateway     client.Gateway
	GatewayKind string
	Ledger      repo.Ledger
	Registry    registry.SessionRegistry
	Quota       cache.DailyQuota
	Delay       delay.Simulator
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

type StartRequest struct {
	OwnerID     string          `json:"-"`
	Mode        model.ModeID    `json:"mode"`
	Contacts    []model.Contact `json:"contacts"`
	Message     string          `json:"message"`
	SessionName string          `json:"session_name"`
}

type ConnectionStatus struct {
	Ready   bool   `json:"isReady"`
	Gateway string `json:"gateway"`
	Error   string `json:"error,omitempty"`
}

// Engine runs blast sessions. Each Start drives one sequential loop in the
// caller's goroutine; Stop and StatusFor may be called concurrently.
type Engine struct {
	gateway     client.Gateway
	gatewayKind string
	ledger      repo.Ledger
	registry    registry.SessionRegistry
	quota       cache.DailyQuota
	delay       delay.Simulator
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	sender      *Sender

	// mu guards stops and starting. An owner stays in starting from the
	// running-session check until its session is registered.
	mu       sync.Mutex
	stops    map[string]*stopToken
	starting map[string]struct{}
}

func New(d Deps, cfg Config) (*Engine, error) {
	if d.Gateway == nil {
		return nil, errors.New("gateway must not be nil")
	}
	if d.Ledger == nil {
		return nil, errors.New("ledger must not be nil")
	}
	if d.Registry == nil {
		d.Registry = registry.NewMemory()
	}
	if d.Quota == nil {
		d.Quota = cache.NewMemoryQuota()
	}
	if d.Delay == nil {
		d.Delay = delay.NewRandom()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.TypingFraction <= 0 {
		cfg.TypingFraction = DefaultConfig().TypingFraction
	}
	if cfg.ReadDelayMax <= 0 {
		cfg.ReadDelayMin, cfg.ReadDelayMax = DefaultConfig().ReadDelayMin, DefaultConfig().ReadDelayMax
	}

	return &Engine{
		gateway:     d.Gateway,
		gatewayKind: d.GatewayKind,
		ledger:      d.Ledger,
		registry:    d.Registry,
		quota:       d.Quota,
		delay:       d.Delay,
		metrics:     d.Metrics,
		logger:      d.Logger.With("component", "engine"),
		now:         d.Now,
		sender: &Sender{
			gateway:        d.Gateway,
			delay:          d.Delay,
			metrics:        d.Metrics,
			now:            d.Now,
			typingFraction: cfg.TypingFraction,
			readMin:        cfg.ReadDelayMin,
			readMax:        cfg.ReadDelayMax,
		},
		stops:    make(map[string]*stopToken),
		starting: make(map[string]struct{}),
	}, nil
}

func (e *Engine) ListModes() map[model.ModeID]mode.Profile {
	return mode.List()
}

// Validate applies the boundary checks, including the per-session contact
// cap that Start itself only clamps to.
func (e *Engine) Validate(req StartRequest) error {
	p, err := validate(req)
	if err != nil {
		return err
	}
	if len(req.Contacts) > p.MaxPerSession {
		return invalid("maximum %d contacts per session in %s mode", p.MaxPerSession, p.ID)
	}
	return nil
}

func validate(req StartRequest) (mode.Profile, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return mode.Profile{}, invalid("owner id is required")
	}
	if len(req.Contacts) == 0 {
		return mode.Profile{}, invalid("contacts array is required and cannot be empty")
	}
	if strings.TrimSpace(req.Message) == "" {
		return mode.Profile{}, invalid("message is required")
	}
	id := req.Mode
	if id == "" {
		id = mode.Default
	}
	if !mode.IsKnown(id) {
		return mode.Profile{}, invalid("mode must be %s or %s", model.ModeStandard, model.ModeSafe)
	}
	return mode.Resolve(id), nil
}

func (e *Engine) Start(ctx context.Context, req StartRequest) (*model.Result, error) {
	p, err := validate(req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SessionName) == "" {
		req.SessionName = DefaultSessionName
	}

	if err := e.reserve(req.OwnerID); err != nil {
		return nil, err
	}
	sess, tok, limit, err := e.begin(ctx, req, p)
	e.release(req.OwnerID)
	if err != nil {
		return nil, err
	}

	log := e.logger.With("owner_id", req.OwnerID, "session_id", sess.ID, "mode", p.ID)
	log.Info("blast session started", "contacts", len(req.Contacts), "limit", limit)
	e.metrics.SessionStarted(string(p.ID))

	stoppedEarly, loopErr := e.run(ctx, sess, p, req.Contacts[:limit], req.Message, tok, log)

	return e.finish(ctx, sess, p, stoppedEarly, loopErr, log)
}

// reserve claims ownerID until release. It fails when the owner already has
// a running session or another start in progress.
func (e *Engine) reserve(ownerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.starting[ownerID]; ok {
		return ErrSessionActive
	}
	for _, s := range e.registry.ListByOwner(ownerID) {
		if s.Status == model.Running {
			return ErrSessionActive
		}
	}
	e.starting[ownerID] = struct{}{}
	return nil
}

func (e *Engine) release(ownerID string) {
	e.mu.Lock()
	delete(e.starting, ownerID)
	e.mu.Unlock()
}

// begin checks quota and the gateway, creates the ledger record and
// registers the session. Nothing is persisted on error.
func (e *Engine) begin(ctx context.Context, req StartRequest, p mode.Profile) (model.BlastSession, *stopToken, int, error) {
	now := e.now()
	limit := min(len(req.Contacts), p.MaxPerSession)

	used, err := e.quota.Used(ctx, req.OwnerID, p.ID, now)
	if err != nil {
		e.logger.Warn("daily quota lookup failed, continuing with session cap only",
			"owner_id", req.OwnerID, "mode", p.ID, "error", err)
		used = 0
	}
	remaining := p.MaxPerDay - used
	if remaining <= 0 {
		return model.BlastSession{}, nil, 0, ErrDailyLimitReached
	}
	limit = min(limit, remaining)

	if err := e.gateway.Ready(ctx); err != nil {
		return model.BlastSession{}, nil, 0, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	id, err := e.ledger.CreateSession(ctx, repo.NewSession{
		OwnerID:       req.OwnerID,
		Name:          req.SessionName,
		Mode:          p.ID,
		ContactsCount: len(req.Contacts),
		StartedAt:     now,
	})
	if err != nil {
		e.metrics.LedgerError("create_session")
		return model.BlastSession{}, nil, 0, fmt.Errorf("%w: create session: %w", ErrLedger, err)
	}

	sess := model.BlastSession{
		ID:            id,
		Key:           fmt.Sprintf("%s-%d", req.OwnerID, now.UnixMilli()),
		OwnerID:       req.OwnerID,
		Name:          req.SessionName,
		Mode:          p.ID,
		Status:        model.Running,
		ContactsCount: len(req.Contacts),
		StartedAt:     now,
	}

	// The token must exist before the session is visible to Stop.
	tok := newStopToken()
	e.mu.Lock()
	e.stops[sess.Key] = tok
	e.mu.Unlock()

	if err := e.registry.Put(sess); err != nil {
		e.mu.Lock()
		delete(e.stops, sess.Key)
		e.mu.Unlock()
		e.completeLedger(ctx, id, 0, 0, model.Failed)
		return model.BlastSession{}, nil, 0, fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}

	return sess, tok, limit, nil
}

// run processes contacts in order. It reports whether the loop ended before
// the last contact because of a stop request or ctx cancellation.
func (e *Engine) run(
	ctx context.Context,
	sess model.BlastSession,
	p mode.Profile,
	contacts []model.Contact,
	message string,
	tok *stopToken,
	log *slog.Logger,
) (stoppedEarly bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("blast session panic recovered", "panic", r)
			err = fmt.Errorf("%w: %v", ErrSessionFailed, r)
		}
	}()

	for i, c := range contacts {
		if tok.stopped() || ctx.Err() != nil {
			return true, nil
		}

		outcome, perr := e.sender.Process(ctx, p, c, message, tok.stopped)
		if perr != nil {
			return true, nil
		}
		e.record(ctx, sess, p, message, outcome, log)

		if i < len(contacts)-1 {
			d, _ := e.delay.Wait(ctx, p.MinDelay, p.MaxDelay)
			log.Debug("waited before next contact", "delay_ms", d.Milliseconds())
			if tok.stopped() || ctx.Err() != nil {
				return true, nil
			}
		}
	}
	return false, nil
}

func (e *Engine) record(ctx context.Context, sess model.BlastSession, p mode.Profile, message string, o model.MessageOutcome, log *slog.Logger) {
	wctx := context.WithoutCancel(ctx)

	if err := e.ledger.AppendOutcome(wctx, sess.ID, sess.OwnerID, message, o); err != nil {
		e.metrics.LedgerError("append_outcome")
		log.Error("failed to append message outcome", "phone", o.Phone, "error", err)
	}

	e.registry.Update(sess.Key, func(s *model.BlastSession) {
		s.Results = append(s.Results, o)
		if o.Success {
			s.SentCount++
		} else {
			s.FailedCount++
		}
	})

	if o.Success {
		if err := e.quota.Add(wctx, sess.OwnerID, p.ID, sess.StartedAt, 1); err != nil {
			log.Warn("failed to update daily quota", "error", err)
		}
	}

	e.metrics.MessageProcessed(string(p.ID), o.Success)
	log.Debug("message processed", "phone", o.Phone, "success", o.Success, "error", o.Error)
}

func (e *Engine) finish(ctx context.Context, sess model.BlastSession, p mode.Profile, stoppedEarly bool, loopErr error, log *slog.Logger) (*model.Result, error) {
	final := model.Completed
	if stoppedEarly {
		final = model.Stopped
	}
	if loopErr != nil {
		final = model.Failed
	}

	completedAt := e.now()
	snap, _ := e.registry.Update(sess.Key, func(s *model.BlastSession) {
		// A stop that arrived after the last checkpoint is kept even when
		// the loop then failed.
		if !s.Status.Terminal() {
			s.Status = final
		} else {
			final = s.Status
		}
		s.CompletedAt = &completedAt
	})

	e.completeLedger(ctx, sess.ID, snap.SentCount, snap.FailedCount, final)

	e.registry.Remove(sess.Key)
	e.mu.Lock()
	delete(e.stops, sess.Key)
	e.mu.Unlock()

	e.metrics.SessionFinished(string(p.ID), string(final))

	durationMs := completedAt.Sub(sess.StartedAt).Milliseconds()
	log.Info("blast session finished",
		"status", final,
		"sent", snap.SentCount,
		"failed", snap.FailedCount,
		"duration_ms", durationMs,
	)

	if loopErr != nil {
		return nil, loopErr
	}

	return &model.Result{
		SessionID: sess.ID,
		Mode:      p.ID,
		ModeName:  p.Name,
		Summary: model.Summary{
			SentCount:   snap.SentCount,
			FailedCount: snap.FailedCount,
			DurationMs:  durationMs,
			Status:      final,
		},
		Results: snap.Results,
	}, nil
}

func (e *Engine) completeLedger(ctx context.Context, id int64, sent, failed int, status model.SessionStatus) {
	if err := e.ledger.CompleteSession(context.WithoutCancel(ctx), id, sent, failed, status); err != nil {
		e.metrics.LedgerError("complete_session")
		e.logger.Error("failed to complete session in ledger", "session_id", id, "status", status, "error", err)
	}
}

// Stop flips the owner's running session to stopped. The loop observes it
// before the next typing pause, right before the next gateway call and after
// the current inter-message wait.
func (e *Engine) Stop(ownerID string) bool {
	stopped := false

	for _, s := range e.registry.ListByOwner(ownerID) {
		flipped := false
		e.registry.Update(s.Key, func(cur *model.BlastSession) {
			if cur.Status == model.Running {
				cur.Status = model.Stopped
				flipped = true
			}
		})
		if !flipped {
			continue
		}
		stopped = true

		e.mu.Lock()
		tok := e.stops[s.Key]
		e.mu.Unlock()
		if tok != nil {
			tok.signal()
		}

		go func(id int64) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.ledger.MarkStopped(ctx, id); err != nil {
				e.metrics.LedgerError("mark_stopped")
				e.logger.Error("failed to mark session stopped", "session_id", id, "error", err)
			}
		}(s.ID)

		e.logger.Info("blast session stop requested", "owner_id", ownerID, "session_id", s.ID)
	}

	return stopped
}

func (e *Engine) StatusFor(ownerID string) []model.SessionSnapshot {
	sessions := e.registry.ListByOwner(ownerID)
	out := make([]model.SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, model.SessionSnapshot{
			SessionID:     s.ID,
			Name:          s.Name,
			Mode:          s.Mode,
			Status:        s.Status,
			SentCount:     s.SentCount,
			FailedCount:   s.FailedCount,
			ContactsCount: s.ContactsCount,
			ProgressPct:   progress(s.Processed(), s.ContactsCount),
		})
	}
	return out
}

func progress(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}

func (e *Engine) ConnectionStatus(ctx context.Context) ConnectionStatus {
	st := ConnectionStatus{Ready: true, Gateway: e.gatewayKind}
	if err := e.gateway.Ready(ctx); err != nil {
		st.Ready = false
		st.Error = err.Error()
	}
	return st
}

func (e *Engine) DailyStats(ctx context.Context, ownerID string) (map[model.ModeID]model.ModeStats, error) {
	stats, err := e.ledger.DailyStats(ctx, ownerID, e.now())
	if err != nil {
		return nil, fmt.Errorf("%w: daily stats: %w", ErrLedger, err)
	}
	return stats, nil
}

func (e *Engine) History(ctx context.Context, ownerID string, limit, offset int) ([]model.SessionRecord, error) {
	items, err := e.ledger.ListSessions(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", ErrLedger, err)
	}
	return items, nil
}

func (e *Engine) Outcomes(ctx context.Context, ownerID string, sessionID int64) ([]model.MessageOutcome, error) {
	items, err := e.ledger.ListOutcomes(ctx, ownerID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list outcomes: %w", ErrLedger, err)
	}
	return items, nil
}

// Reconcile fails ledger sessions left running by a previous process. Only
// rows older than staleAfter and not tracked in the registry are touched.
func (e *Engine) Reconcile(ctx context.Context, staleAfter time.Duration) (int64, error) {
	n, err := e.ledger.FailStale(ctx, e.now().Add(-staleAfter), e.registry.ActiveIDs())
	if err != nil {
		e.metrics.LedgerError("fail_stale")
		return 0, fmt.Errorf("%w: reconcile: %w", ErrLedger, err)
	}
	if n > 0 {
		e.metrics.StaleSessionsFailedTotal.Add(float64(n))
		e.logger.Warn("marked orphaned sessions as failed", "count", n)
	}
	return n, nil
}

type stopToken struct {
	once sync.Once
	ch   chan struct{}
}

func newStopToken() *stopToken {
	return &stopToken{ch: make(chan struct{})}
}

func (t *stopToken) signal() {
	t.once.Do(func() { close(t.ch) })
}

func (t *stopToken) stopped() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}
