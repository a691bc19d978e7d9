package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/infinitystory/humanstudy/internal/evaluation"
	"github.com/infinitystory/humanstudy/internal/metrics"
	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/internal/relay"
	"github.com/infinitystory/humanstudy/internal/store"
)

var (
	// ErrNoSession is returned when a device calls a session operation before starting one
	ErrNoSession = errors.New("no active session")
	// ErrNoResults is returned when a device has nothing to export
	ErrNoResults = errors.New("no results recorded")
	// ErrConfigUnavailable wraps the start-up configuration failure
	ErrConfigUnavailable = errors.New("evaluation configuration unavailable")
)

// ViewPublisher pushes session views to connected browsers
type ViewPublisher interface {
	BroadcastView(deviceID string, view model.View)
	BroadcastComplete(deviceID string, flow model.Flow, summary interface{})
}

// SessionSettings are the study parameters taken from the service config
type SessionSettings struct {
	ReferenceMethod string
	Comparisons     int
	ClipBase        string
	WholisticClips  int
}

type deviceSessions struct {
	mu         sync.Mutex
	comparison *evaluation.ComparisonSession
	review     *evaluation.ReviewSession
}

// SessionService owns one controller per device and per flow. Calls for the
// same device are serialized.
type SessionService struct {
	cfg        *model.EvaluationConfig
	cfgErr     error
	store      store.Store
	forwarders relay.Forwarders
	publisher  ViewPublisher
	metrics    *metrics.Metrics
	settings   SessionSettings
	log        zerolog.Logger

	// NewRand seeds the generator of each fresh session
	NewRand func() evaluation.Rand
	// Clock is the time source of every session
	Clock func() time.Time

	mu      sync.Mutex
	devices map[string]*deviceSessions
}

// NewSessionService creates the session registry. A non-nil cfgErr blocks
// every session operation with that error.
func NewSessionService(
	cfg *model.EvaluationConfig,
	cfgErr error,
	s store.Store,
	forwarders relay.Forwarders,
	publisher ViewPublisher,
	m *metrics.Metrics,
	settings SessionSettings,
) *SessionService {
	if cfg == nil && cfgErr == nil {
		cfgErr = evaluation.ErrInvalidConfig
	}
	return &SessionService{
		cfg:        cfg,
		cfgErr:     cfgErr,
		store:      s,
		forwarders: forwarders,
		publisher:  publisher,
		metrics:    m,
		settings:   settings,
		log:        log.Logger.With().Str("component", "sessions").Logger(),
		NewRand: func() evaluation.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		Clock:   time.Now,
		devices: make(map[string]*deviceSessions),
	}
}

// ConfigError reports the fatal configuration error, if any
func (s *SessionService) ConfigError() error {
	return s.cfgErr
}

func (s *SessionService) ready() error {
	if s.cfgErr != nil {
		return fmt.Errorf("%w: %v", ErrConfigUnavailable, s.cfgErr)
	}
	return nil
}

// Config returns the loaded evaluation configuration
func (s *SessionService) Config() *model.EvaluationConfig {
	return s.cfg
}

func (s *SessionService) device(deviceID string) *deviceSessions {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		d = &deviceSessions{}
		s.devices[deviceID] = d
	}
	return d
}

// ActiveSessions counts sessions held in memory per flow
func (s *SessionService) ActiveSessions() map[string]int {
	s.mu.Lock()
	devices := make([]*deviceSessions, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, d)
	}
	s.mu.Unlock()

	counts := map[string]int{string(model.FlowComparison): 0, string(model.FlowReview): 0}
	for _, d := range devices {
		d.mu.Lock()
		if d.comparison != nil {
			counts[string(model.FlowComparison)]++
		}
		if d.review != nil {
			counts[string(model.FlowReview)]++
		}
		d.mu.Unlock()
	}
	return counts
}

func (s *SessionService) deviceStore(deviceID string) store.Store {
	return store.Scoped(s.store, "device:"+deviceID)
}

func (s *SessionService) options(deviceID string, forwarder *relay.Forwarder) evaluation.Options {
	bridgeOpts := []evaluation.BridgeOption{
		evaluation.WithLogger(s.log.With().Str("device", deviceID).Logger()),
	}
	if s.metrics != nil {
		bridgeOpts = append(bridgeOpts, evaluation.WithFailureCounter(s.metrics.SnapshotFailures))
	}

	var r evaluation.Relay
	if forwarder != nil {
		r = forwarder
	}

	return evaluation.Options{
		Bridge:   evaluation.NewBridge(s.deviceStore(deviceID), r, bridgeOpts...),
		Observer: s.observer(deviceID),
		Rand:     s.NewRand(),
		Clock:    s.Clock,
		ClipBase: s.settings.ClipBase,
		Comparison: evaluation.ComparisonOptions{
			ReferenceID: s.settings.ReferenceMethod,
			Episodes:    s.settings.Comparisons,
		},
		WholisticClips: s.settings.WholisticClips,
	}
}

func (s *SessionService) observer(deviceID string) evaluation.Observer {
	if s.publisher == nil {
		return nil
	}
	return func(v model.View) {
		s.publisher.BroadcastView(deviceID, v)
		if v.Phase != model.PhaseComplete {
			return
		}
		if v.ReviewSummary != nil {
			s.publisher.BroadcastComplete(deviceID, v.Flow, v.ReviewSummary)
		} else if v.ComparisonSummary != nil {
			s.publisher.BroadcastComplete(deviceID, v.Flow, v.ComparisonSummary)
		}
	}
}

// requestPrompter answers the resume protocol from a start request
type requestPrompter struct {
	req *model.StartSessionRequest
}

func (p requestPrompter) Confirm(message string) bool {
	switch message {
	case evaluation.ResumePrompt:
		return p.req == nil || p.req.Resume == nil || *p.req.Resume
	case evaluation.DiscardPrompt:
		return p.req != nil && p.req.Discard != nil && *p.req.Discard
	}
	return false
}

func (s *SessionService) countSubmit(flow model.Flow, action string, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		if errors.Is(err, evaluation.ErrIncompleteAnswer) || errors.Is(err, evaluation.ErrInvalidRating) {
			s.metrics.UnitsRejected.WithLabelValues(string(flow)).Inc()
		}
		return
	}
	s.metrics.UnitsSubmitted.WithLabelValues(string(flow), action).Inc()
}

func (s *SessionService) countStart(flow model.Flow, resumed bool) {
	if s.metrics != nil {
		s.metrics.SessionsStarted.WithLabelValues(string(flow), fmt.Sprintf("%t", resumed)).Inc()
	}
}

// StartComparison opens or resumes the comparison session of a device
func (s *SessionService) StartComparison(ctx context.Context, deviceID string, req *model.StartSessionRequest) (*model.StartSessionResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	d := s.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, resumed, err := evaluation.StartComparison(ctx, s.cfg, s.options(deviceID, s.forwarders.Comparison), requestPrompter{req})
	if err != nil {
		return nil, err
	}
	d.comparison = sess
	s.countStart(model.FlowComparison, resumed)
	s.log.Info().Str("device", deviceID).Str("evaluator", sess.EvaluatorID()).Bool("resumed", resumed).Msg("comparison session started")

	return &model.StartSessionResponse{Resumed: resumed, View: sess.View()}, nil
}

// StartReview opens or resumes the review session of a device
func (s *SessionService) StartReview(ctx context.Context, deviceID string, req *model.StartSessionRequest) (*model.StartSessionResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	d := s.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, resumed, err := evaluation.StartReview(ctx, s.cfg, s.options(deviceID, s.forwarders.Review), requestPrompter{req})
	if err != nil {
		return nil, err
	}
	d.review = sess
	s.countStart(model.FlowReview, resumed)
	s.log.Info().Str("device", deviceID).Str("evaluator", sess.EvaluatorID()).Bool("resumed", resumed).Msg("review session started")

	return &model.StartSessionResponse{Resumed: resumed, View: sess.View()}, nil
}

// SavedProgress describes the resumable snapshot of a flow, if any
func (s *SessionService) SavedProgress(ctx context.Context, deviceID string, flow model.Flow) (*model.SavedProgressResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ds := s.deviceStore(deviceID)

	switch flow {
	case model.FlowComparison:
		var snap model.ComparisonSnapshot
		if err := store.GetJSON(ctx, ds, model.KeyComparisonProgress, &snap); err != nil {
			return savedMissing(err)
		}
		return &model.SavedProgressResponse{
			Exists:         true,
			Message:        evaluation.ResumePrompt,
			Phase:          model.PhaseComparison,
			CompletedUnits: len(snap.Results),
			TotalUnits:     len(snap.Units),
			LastSaveTime:   nonZero(snap.LastSaveTime),
		}, nil

	case model.FlowReview:
		var snap model.ProgressSnapshot
		if err := store.GetJSON(ctx, ds, model.KeyReviewProgress, &snap); err != nil {
			return savedMissing(err)
		}
		return &model.SavedProgressResponse{
			Exists:         true,
			Message:        evaluation.ResumePrompt,
			Phase:          snap.CurrentPhase,
			CompletedUnits: len(snap.EvaluationData.SegmentEvaluations),
			TotalUnits:     snap.TotalTasks,
			LastSaveTime:   nonZero(snap.LastSaveTime),
		}, nil
	}
	return nil, fmt.Errorf("unknown flow %q", flow)
}

// savedMissing reports no progress for an absent or undecodable snapshot.
// Other read failures are returned since the snapshot may still be intact.
func savedMissing(err error) (*model.SavedProgressResponse, error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrCorrupt):
		log.Debug().Err(err).Msg("saved progress unreadable")
	default:
		return nil, fmt.Errorf("%w: %v", evaluation.ErrSnapshotUnavailable, err)
	}
	return &model.SavedProgressResponse{Exists: false}, nil
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ClearProgress removes a flow's snapshot and forgets its in-memory session
func (s *SessionService) ClearProgress(ctx context.Context, deviceID string, flow model.Flow) error {
	if err := s.ready(); err != nil {
		return err
	}
	d := s.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	ds := s.deviceStore(deviceID)
	switch flow {
	case model.FlowComparison:
		d.comparison = nil
		return ds.Delete(ctx, model.KeyComparisonProgress)
	case model.FlowReview:
		d.review = nil
		return ds.Delete(ctx, model.KeyReviewProgress)
	}
	return fmt.Errorf("unknown flow %q", flow)
}

func (s *SessionService) withComparison(deviceID string, fn func(*evaluation.ComparisonSession) (model.View, error)) (model.View, error) {
	if err := s.ready(); err != nil {
		return model.View{}, err
	}
	d := s.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.comparison == nil {
		return model.View{}, ErrNoSession
	}
	return fn(d.comparison)
}

func (s *SessionService) withReview(deviceID string, fn func(*evaluation.ReviewSession) (model.View, error)) (model.View, error) {
	if err := s.ready(); err != nil {
		return model.View{}, err
	}
	d := s.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.review == nil {
		return model.View{}, ErrNoSession
	}
	return fn(d.review)
}

// ComparisonView returns the current comparison view
func (s *SessionService) ComparisonView(deviceID string) (model.View, error) {
	return s.withComparison(deviceID, func(c *evaluation.ComparisonSession) (model.View, error) {
		return c.View(), nil
	})
}

// SubmitComparison records the answers of the current comparison unit
func (s *SessionService) SubmitComparison(ctx context.Context, deviceID string, answers map[model.ComparisonQuestion]model.Slot) (model.View, error) {
	return s.withComparison(deviceID, func(c *evaluation.ComparisonSession) (model.View, error) {
		v, err := c.Submit(ctx, answers)
		s.countSubmit(model.FlowComparison, "answer", err)
		return v, err
	})
}

// ReviewView returns the current review view
func (s *SessionService) ReviewView(deviceID string) (model.View, error) {
	return s.withReview(deviceID, func(r *evaluation.ReviewSession) (model.View, error) {
		return r.View(), nil
	})
}

// SubmitRating records a star rating for the current segment task
func (s *SessionService) SubmitRating(ctx context.Context, deviceID string, req *model.RatingSubmitRequest) (model.View, error) {
	return s.withReview(deviceID, func(r *evaluation.ReviewSession) (model.View, error) {
		v, err := r.SubmitRating(ctx, req.Rating, req.Comments)
		s.countSubmit(model.FlowReview, "rate", err)
		return v, err
	})
}

// SkipTask skips the current segment task
func (s *SessionService) SkipTask(ctx context.Context, deviceID string) (model.View, error) {
	return s.withReview(deviceID, func(r *evaluation.ReviewSession) (model.View, error) {
		v, err := r.SkipTask(ctx)
		s.countSubmit(model.FlowReview, "skip", err)
		return v, err
	})
}

// SubmitReview records the wholistic review of the current method
func (s *SessionService) SubmitReview(ctx context.Context, deviceID string, req *model.ReviewSubmitRequest) (model.View, error) {
	return s.withReview(deviceID, func(r *evaluation.ReviewSession) (model.View, error) {
		v, err := r.SubmitReview(ctx, req.Ratings, req.Comments, req.AcceptPartial)
		s.countSubmit(model.FlowReview, "review", err)
		return v, err
	})
}

// SkipReview skips the wholistic review of the current method
func (s *SessionService) SkipReview(ctx context.Context, deviceID string) (model.View, error) {
	return s.withReview(deviceID, func(r *evaluation.ReviewSession) (model.View, error) {
		v, err := r.SkipReview(ctx)
		s.countSubmit(model.FlowReview, "skip_review", err)
		return v, err
	})
}

// PreviousVideo moves the wholistic player back one clip
func (s *SessionService) PreviousVideo(deviceID string) (model.View, error) {
	return s.withReview(deviceID, func(r *evaluation.ReviewSession) (model.View, error) {
		return r.PreviousVideo()
	})
}

// NextVideo moves the wholistic player forward one clip
func (s *SessionService) NextVideo(deviceID string) (model.View, error) {
	return s.withReview(deviceID, func(r *evaluation.ReviewSession) (model.View, error) {
		return r.NextVideo()
	})
}

// ComparisonResults returns the comparison batch of a device, from memory
// when a session is open and from the saved results otherwise. The batch is
// forwarded to the sink as well.
func (s *SessionService) ComparisonResults(ctx context.Context, deviceID string) (*model.ComparisonBatch, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	d := s.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	var batch model.ComparisonBatch
	if d.comparison != nil {
		batch = d.comparison.Batch()
	} else if err := store.GetJSON(ctx, s.deviceStore(deviceID), model.KeyComparisonResults, &batch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoResults
		}
		return nil, err
	}
	if len(batch.Comparisons) == 0 {
		return nil, ErrNoResults
	}

	s.forwarders.Comparison.Forward(batch)
	return &batch, nil
}

// ReviewResults holds what a review export needs
type ReviewResults struct {
	Data     model.EvaluationData
	Summary  model.ReviewSummary
	Criteria []model.Criterion
}

// ReviewResults returns the review answers of a device, from memory when a
// session is open and from the finalized payload otherwise.
func (s *SessionService) ReviewResults(ctx context.Context, deviceID string) (*ReviewResults, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	d := s.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	var criteria []model.Criterion
	if s.cfg != nil {
		criteria = s.cfg.WholisticCriteria
	}

	if d.review != nil {
		return &ReviewResults{Data: d.review.Data(), Summary: d.review.Summary(), Criteria: criteria}, nil
	}

	var data model.EvaluationData
	if err := store.GetJSON(ctx, s.deviceStore(deviceID), model.KeyReviewData, &data); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoResults
		}
		return nil, err
	}
	return &ReviewResults{Data: data, Summary: summarize(data), Criteria: criteria}, nil
}

// summarize rebuilds statistics from a finalized payload, where every task
// has a record
func summarize(data model.EvaluationData) model.ReviewSummary {
	rated := 0
	for _, e := range data.SegmentEvaluations {
		if !e.Skipped() {
			rated++
		}
	}
	total := len(data.SegmentEvaluations)
	sum := model.ReviewSummary{
		SegmentEvaluations: total,
		PapersReviewed:     len(data.WholisticEvaluations),
		TotalQuestions:     total,
		CompletedSegments:  rated,
		SkippedSegments:    total - rated,
	}
	if total > 0 {
		sum.CompletionRate = int(math.Round(float64(rated) / float64(total) * 100))
	}
	return sum
}
