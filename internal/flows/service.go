package flows

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"fridgechef/internal/chefapi"
	"fridgechef/internal/ingredients"
	"fridgechef/internal/shared/metrics"
	"fridgechef/internal/shared/server/middleware"
	"fridgechef/internal/shared/storage/object"
	"fridgechef/internal/shared/telemetry"
	"fridgechef/internal/uploads"
)

const (
	defaultTTL      = 30 * time.Minute
	maxSaveAttempts = 5
	resolveTimeout  = 10 * time.Second

	requestDetect    = "detect"
	requestRecommend = "recommend"

	detectFailedMessage    = "Failed to analyze the photo."
	recommendFailedMessage = "Failed to generate recipes."
)

// errNoChange lets an update skip the write.
var errNoChange = errors.New("no change")

// Service drives flows through capture, confirm, results and detail.
type Service struct {
	Repo    Repo
	Uploads *uploads.Service
	Chef    chefapi.Client
	Hub     *Hub
	TTL     time.Duration
	Now     func() time.Time

	mu       sync.Mutex
	inflight map[string]map[uint64]context.CancelFunc
	nextTok  uint64
	wg       sync.WaitGroup
}

// Create starts a new flow on the capture stage.
func (s *Service) Create(ctx context.Context) (Flow, error) {
	flow := newFlow(uuid.NewString(), s.now(), s.ttl())
	if err := s.Repo.Create(ctx, flow); err != nil {
		return Flow{}, err
	}
	flow.Version = 1
	metrics.AddActiveFlows(1)
	telemetry.Info("flow.created", map[string]any{
		"request_id": middleware.RequestIDFrom(ctx),
		"flow_id":    flow.ID,
	})
	return flow, nil
}

// Get returns a live flow.
func (s *Service) Get(ctx context.Context, id string) (Flow, error) {
	if id == "" {
		return Flow{}, ErrNotFound
	}
	flow, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Flow{}, err
	}
	if flow.expired(s.now()) {
		return Flow{}, ErrNotFound
	}
	return flow, nil
}

// View renders the current stage payload of a flow.
func (s *Service) View(ctx context.Context, id string) (View, error) {
	flow, err := s.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return ViewOf(flow), nil
}

// SelectImage stores an uploaded photo on the capture stage. Non-images are a
// no-op: the flow is returned unchanged with accepted=false.
func (s *Service) SelectImage(ctx context.Context, id, fileName, contentType string, r io.Reader) (Flow, bool, error) {
	flow, err := s.Get(ctx, id)
	if err != nil {
		return Flow{}, false, err
	}
	if flow.Stage != StageCapture {
		return flow, false, ErrNotInteractive
	}

	photo, accepted, err := s.Uploads.Accept(ctx, id, fileName, contentType, r)
	if err != nil {
		return flow, false, err
	}
	if !accepted {
		return flow, false, nil
	}

	var previous *uploads.Photo
	saved, err := s.update(ctx, id, func(f *Flow) error {
		if f.Stage != StageCapture {
			return ErrNotInteractive
		}
		previous = f.Photo
		p := photo
		f.Photo = &p
		return nil
	})
	if err != nil {
		s.deletePhoto(ctx, id, &photo)
		return saved, false, err
	}
	if previous != nil && previous.StorageKey != photo.StorageKey {
		s.deletePhoto(ctx, id, previous)
	}
	return saved, true, nil
}

// OpenImage streams the flow's photo.
func (s *Service) OpenImage(ctx context.Context, id string) (io.ReadCloser, *uploads.Photo, error) {
	flow, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.Uploads.Open(ctx, flow.Photo)
	if errors.Is(err, uploads.ErrNoPhoto) || errors.Is(err, object.ErrNotFound) {
		return nil, nil, ErrMissingPayload
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, flow.Photo, nil
}

// StartDetect moves the flow to confirm and issues the one detection request.
// Repeated calls return the current flow and issue nothing.
func (s *Service) StartDetect(ctx context.Context, id string) (Flow, bool, error) {
	issued := false
	flow, err := s.update(ctx, id, func(f *Flow) error {
		if f.Photo == nil {
			return ErrMissingPayload
		}
		if f.Detect.State != RequestIdle {
			return errNoChange
		}
		now := s.now()
		f.Stage = StageConfirm
		f.Detect = Request{State: RequestSubmitting, Generation: f.Generation, IssuedAt: &now}
		issued = true
		return nil
	})
	if err != nil || !issued {
		return flow, false, err
	}

	s.logStatus(ctx, flow, requestDetect, "idle->submitting")
	photo := *flow.Photo
	gen := flow.Generation
	s.launch(ctx, id, func(rctx context.Context) {
		s.runDetect(rctx, id, gen, photo)
	})
	return flow, true, nil
}

func (s *Service) runDetect(ctx context.Context, id string, gen int64, photo uploads.Photo) {
	defer func() {
		if r := recover(); r != nil {
			s.resolveDetect(ctx, id, gen, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	rc, err := s.Uploads.Open(ctx, &photo)
	if err != nil {
		s.resolveDetect(ctx, id, gen, nil, fmt.Errorf("open photo: %w", err))
		return
	}
	defer rc.Close()

	res, err := s.Chef.Analyze(ctx, chefapi.Image{
		FileName:    photo.FileName,
		ContentType: photo.MimeType,
		Data:        rc,
	})
	if err == nil && res == nil {
		err = chefapi.ErrMalformedPayload
	}
	s.resolveDetect(ctx, id, gen, res, err)
}

func (s *Service) resolveDetect(ctx context.Context, id string, gen int64, res chefapi.DetectionResult, callErr error) {
	applyCtx, cancel := context.WithTimeout(middleware.Detached(ctx), resolveTimeout)
	defer cancel()

	outcome := metrics.OutcomeFailed
	flow, err := s.update(applyCtx, id, func(f *Flow) error {
		if f.Generation != gen || f.Detect.State != RequestSubmitting {
			return errStale
		}
		now := s.now()
		f.Detect.ResolvedAt = &now
		if callErr != nil {
			f.Detect.State = RequestFailed
			f.Detect.Message = chefapi.UserMessage(callErr, detectFailedMessage)
			return nil
		}
		chefapi.SwitchDetection(res,
			func(ok chefapi.DetectionSuccess) {
				f.storeList(ingredients.FromNames(ok.IngredientNames))
				f.Detect.State = RequestSucceeded
				f.Detect.Message = ok.Message
				outcome = metrics.OutcomeSuccess
			},
			func(insufficient chefapi.DetectionInsufficient) {
				f.storeList(ingredients.FromNames(nil))
				f.Detect.State = RequestSucceeded
				f.Detect.Insufficient = true
				f.Detect.Message = insufficient.Message
				outcome = metrics.OutcomeInsufficient
			},
		)
		return nil
	})
	if s.dropped(ctx, id, gen, requestDetect, err) {
		return
	}
	metrics.IncDetect(outcome)
	fields := map[string]any{}
	if callErr != nil {
		fields["error"] = callErr.Error()
	}
	s.logStatus(ctx, flow, requestDetect, "submitting->"+string(flow.Detect.State), fields)
}

// AddIngredient appends a trimmed name. A blank name leaves the flow unchanged.
func (s *Service) AddIngredient(ctx context.Context, id, name string) (Flow, error) {
	return s.edit(ctx, id, func(l *ingredients.List) error {
		l.Add(name)
		return nil
	})
}

// BeginEdit opens edit mode for one ingredient.
func (s *Service) BeginEdit(ctx context.Context, id, ingredientID string) (Flow, error) {
	return s.edit(ctx, id, func(l *ingredients.List) error {
		return l.BeginEdit(ingredientID)
	})
}

// CommitEdit applies the open edit. A blank value discards it.
func (s *Service) CommitEdit(ctx context.Context, id, value string) (Flow, error) {
	return s.edit(ctx, id, func(l *ingredients.List) error {
		l.CommitEdit(value)
		return nil
	})
}

// CancelEdit closes edit mode.
func (s *Service) CancelEdit(ctx context.Context, id string) (Flow, error) {
	return s.edit(ctx, id, func(l *ingredients.List) error {
		l.CancelEdit()
		return nil
	})
}

// RenameIngredient renames one ingredient in a single step.
func (s *Service) RenameIngredient(ctx context.Context, id, ingredientID, name string) (Flow, error) {
	return s.edit(ctx, id, func(l *ingredients.List) error {
		_, err := l.Rename(ingredientID, name)
		return err
	})
}

// RemoveIngredient deletes one ingredient.
func (s *Service) RemoveIngredient(ctx context.Context, id, ingredientID string) (Flow, error) {
	return s.edit(ctx, id, func(l *ingredients.List) error {
		return l.Remove(ingredientID)
	})
}

func (s *Service) edit(ctx context.Context, id string, fn func(*ingredients.List) error) (Flow, error) {
	return s.update(ctx, id, func(f *Flow) error {
		if !f.interactive() {
			return ErrNotInteractive
		}
		l := f.list()
		if err := fn(l); err != nil {
			return err
		}
		if sameList(f.Ingredients, f.EditingID, l) {
			return errNoChange
		}
		f.storeList(l)
		return nil
	})
}

// Proceed submits the confirmed names for recommendations. An empty list is
// rejected. Repeated calls after submission return the current flow.
func (s *Service) Proceed(ctx context.Context, id string) (Flow, bool, error) {
	issued := false
	var names []string
	flow, err := s.update(ctx, id, func(f *Flow) error {
		switch {
		case f.Stage == StageResults:
			return errNoChange
		case f.Stage != StageConfirm:
			return ErrMissingPayload
		case !f.interactive():
			return ErrNotInteractive
		case len(f.Ingredients) == 0:
			return ErrNoIngredients
		}
		names = f.list().Names()
		now := s.now()
		f.EditingID = ""
		f.Stage = StageResults
		f.Submitted = names
		f.Recommend = Request{State: RequestSubmitting, Generation: f.Generation, IssuedAt: &now}
		issued = true
		return nil
	})
	if err != nil || !issued {
		return flow, false, err
	}

	s.logStatus(ctx, flow, requestRecommend, "idle->submitting")
	gen := flow.Generation
	s.launch(ctx, id, func(rctx context.Context) {
		s.runRecommend(rctx, id, gen, names)
	})
	return flow, true, nil
}

func (s *Service) runRecommend(ctx context.Context, id string, gen int64, names []string) {
	defer func() {
		if r := recover(); r != nil {
			s.resolveRecommend(ctx, id, gen, nil, fmt.Errorf("panic: %v", r))
		}
	}()
	res, err := s.Chef.Recommend(ctx, names)
	if err == nil && res == nil {
		err = chefapi.ErrMalformedPayload
	}
	s.resolveRecommend(ctx, id, gen, res, err)
}

func (s *Service) resolveRecommend(ctx context.Context, id string, gen int64, res chefapi.RecommendationResult, callErr error) {
	applyCtx, cancel := context.WithTimeout(middleware.Detached(ctx), resolveTimeout)
	defer cancel()

	outcome := metrics.OutcomeFailed
	flow, err := s.update(applyCtx, id, func(f *Flow) error {
		if f.Generation != gen || f.Recommend.State != RequestSubmitting {
			return errStale
		}
		now := s.now()
		f.Recommend.ResolvedAt = &now
		if callErr != nil {
			f.Recommend.State = RequestFailed
			f.Recommend.Message = chefapi.UserMessage(callErr, recommendFailedMessage)
			return nil
		}
		chefapi.SwitchRecommendation(res,
			func(ok chefapi.RecommendationSuccess) {
				f.Recommend.State = RequestSucceeded
				f.Recommend.Message = ok.Message
				f.Recommendations = ok.Recommendations
				f.Details = ok.Details
				outcome = metrics.OutcomeSuccess
			},
			func(insufficient chefapi.RecommendationInsufficient) {
				// Recipes cannot be added by hand, so this ends the flow.
				f.Recommend.State = RequestFailed
				f.Recommend.Insufficient = true
				f.Recommend.Message = insufficient.Message
				outcome = metrics.OutcomeInsufficient
			},
		)
		return nil
	})
	if s.dropped(ctx, id, gen, requestRecommend, err) {
		return
	}
	metrics.IncRecommend(outcome)
	fields := map[string]any{}
	if callErr != nil {
		fields["error"] = callErr.Error()
	}
	s.logStatus(ctx, flow, requestRecommend, "submitting->"+string(flow.Recommend.State), fields)
}

// Recipe returns the detail view for dishName. A recommendation without a
// matching detailed recipe yields ErrDetailsUnavailable.
func (s *Service) Recipe(ctx context.Context, id, dishName string) (DetailView, error) {
	flow, err := s.Get(ctx, id)
	if err != nil {
		return DetailView{}, err
	}
	if flow.Stage != StageResults || flow.Recommend.State != RequestSucceeded {
		return DetailView{}, ErrMissingPayload
	}
	detail, ok := chefapi.FindDetail(flow.Details, dishName)
	if !ok {
		return DetailView{}, ErrDetailsUnavailable
	}
	return DetailView{
		ID:      flow.ID,
		Stage:   StageDetail,
		Recipe:  detail,
		Actions: []string{ActionRestart, ActionAbandon},
	}, nil
}

// Restart returns the flow to capture. Requests still in flight are
// cancelled and their results ignored.
func (s *Service) Restart(ctx context.Context, id string) (Flow, error) {
	var previous *uploads.Photo
	flow, err := s.update(ctx, id, func(f *Flow) error {
		previous = f.Photo
		f.reset()
		return nil
	})
	if err != nil {
		return flow, err
	}
	s.cancelInflight(id)
	s.deletePhoto(ctx, id, previous)
	telemetry.Info("flow.restarted", map[string]any{
		"request_id": middleware.RequestIDFrom(ctx),
		"flow_id":    id,
		"generation": flow.Generation,
	})
	return flow, nil
}

// Abandon retires the flow's generation and deletes it.
func (s *Service) Abandon(ctx context.Context, id string) error {
	var photo *uploads.Photo
	if _, err := s.update(ctx, id, func(f *Flow) error {
		photo = f.Photo
		f.Generation++
		return nil
	}); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		// A concurrent Abandon or Sweep removed the row and retired it.
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	s.retire(ctx, id, photo)
	telemetry.Info("flow.abandoned", map[string]any{
		"request_id": middleware.RequestIDFrom(ctx),
		"flow_id":    id,
	})
	return nil
}

// Sweep deletes flows that expired at or before now.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.Repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, flow := range expired {
		s.retire(ctx, flow.ID, flow.Photo)
	}
	if len(expired) > 0 {
		telemetry.Info("flow.sweep", map[string]any{"expired": len(expired)})
	}
	return len(expired), nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx, s.now()); err != nil && ctx.Err() == nil {
				telemetry.Error("flow.sweep_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// CancelAll cancels every in-flight backend call. Cancelled calls still
// resolve, so follow it with Wait.
func (s *Service) CancelAll() {
	s.mu.Lock()
	var cancels []context.CancelFunc
	for _, byTok := range s.inflight {
		for _, cancel := range byTok {
			cancels = append(cancels, cancel)
		}
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Wait blocks until every in-flight backend call has resolved.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) update(ctx context.Context, id string, fn func(*Flow) error) (Flow, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		flow, err := s.Get(ctx, id)
		if err != nil {
			return Flow{}, err
		}
		if err := fn(&flow); err != nil {
			if errors.Is(err, errNoChange) {
				return flow, nil
			}
			return flow, err
		}
		now := s.now()
		flow.UpdatedAt = now
		flow.ExpiresAt = now.Add(s.ttl())
		saved, err := s.Repo.Save(ctx, flow)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Flow{}, err
		}
		if s.Hub != nil {
			s.Hub.Publish(ViewOf(saved))
		}
		return saved, nil
	}
	return Flow{}, ErrConflict
}

// dropped reports whether a resolution was discarded, logging why.
func (s *Service) dropped(ctx context.Context, id string, gen int64, request string, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errStale) || errors.Is(err, ErrNotFound) {
		metrics.IncStaleResponse()
		telemetry.Info("flow.stale_response", map[string]any{
			"request_id": middleware.RequestIDFrom(ctx),
			"flow_id":    id,
			"request":    request,
			"generation": gen,
		})
		return true
	}
	telemetry.Error("flow.resolve_failed", map[string]any{
		"request_id": middleware.RequestIDFrom(ctx),
		"flow_id":    id,
		"request":    request,
		"error":      err.Error(),
	})
	return true
}

func (s *Service) launch(ctx context.Context, id string, run func(context.Context)) {
	rctx, cancel := context.WithCancel(middleware.Detached(ctx))
	tok := s.track(id, cancel)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(id, tok)
		defer cancel()
		run(rctx)
	}()
}

func (s *Service) track(id string, cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == nil {
		s.inflight = make(map[string]map[uint64]context.CancelFunc)
	}
	if s.inflight[id] == nil {
		s.inflight[id] = make(map[uint64]context.CancelFunc)
	}
	s.nextTok++
	s.inflight[id][s.nextTok] = cancel
	return s.nextTok
}

func (s *Service) untrack(id string, tok uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight[id], tok)
	if len(s.inflight[id]) == 0 {
		delete(s.inflight, id)
	}
}

func (s *Service) cancelInflight(id string) {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.inflight[id]))
	for _, cancel := range s.inflight[id] {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// retire releases everything held for a flow that no longer exists.
func (s *Service) retire(ctx context.Context, id string, photo *uploads.Photo) {
	s.cancelInflight(id)
	s.deletePhoto(ctx, id, photo)
	if s.Hub != nil {
		s.Hub.Close(id)
	}
	metrics.AddActiveFlows(-1)
}

func (s *Service) deletePhoto(ctx context.Context, id string, photo *uploads.Photo) {
	if photo == nil || s.Uploads == nil {
		return
	}
	if err := s.Uploads.Delete(ctx, photo); err != nil {
		telemetry.Warn("flow.photo_delete_failed", map[string]any{
			"flow_id":     id,
			"storage_key": photo.StorageKey,
			"error":       err.Error(),
		})
	}
}

func (s *Service) logStatus(ctx context.Context, flow Flow, request, transition string, extra ...map[string]any) {
	fields := map[string]any{
		"request_id":        middleware.RequestIDFrom(ctx),
		"flow_id":           flow.ID,
		"request":           request,
		"stage":             string(flow.Stage),
		"generation":        flow.Generation,
		"status_transition": transition,
	}
	for _, m := range extra {
		for k, v := range m {
			fields[k] = v
		}
	}
	telemetry.Info("flow.status", fields)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return defaultTTL
	}
	return s.TTL
}

func sameList(items []ingredients.Ingredient, editing string, l *ingredients.List) bool {
	if editing != l.Editing() || len(items) != l.Len() {
		return false
	}
	for i, item := range l.Items() {
		if items[i] != item {
			return false
		}
	}
	return true
}
