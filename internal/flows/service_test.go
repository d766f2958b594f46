package flows

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fridgechef/internal/chefapi"
)

func tomatoOnionFake() *chefapi.FakeClient {
	fake := chefapi.NewFakeClient()
	fake.AnalyzeFn = func(context.Context, chefapi.Image) (chefapi.DetectionResult, error) {
		return chefapi.DetectionSuccess{Message: "Found two", IngredientNames: []string{"Tomato", "Onion"}}, nil
	}
	return fake
}

var tomatoSoup = chefapi.DetailedRecipe{
	DishName: "Tomato Soup",
	RequiredIngredients: chefapi.RequiredIngredients{
		FromFridge:    []string{"Tomato", "Onion"},
		PantryStaples: []string{"Salt"},
	},
	Instructions: []chefapi.InstructionStep{
		{Step: 1, Description: "Chop"},
		{Step: 2, Description: "Simmer", ChefTip: "Low heat"},
	},
}

func TestCreateStartsOnCapture(t *testing.T) {
	svc, clock := newTestService(t, chefapi.NewFakeClient())
	flow, err := svc.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageCapture, flow.Stage)
	assert.Equal(t, RequestIdle, flow.Detect.State)
	assert.Equal(t, clock.now.Add(30*time.Minute), flow.ExpiresAt)

	view := ViewOf(flow)
	assert.Equal(t, []string{ActionSelectImage, ActionAbandon}, view.Actions)
}

func TestSelectImageRejectsNonImage(t *testing.T) {
	svc, _ := newTestService(t, chefapi.NewFakeClient())
	ctx := context.Background()
	flow := flowWithPhoto(t, svc)

	after, accepted, err := svc.SelectImage(ctx, flow.ID, "list.txt", "text/plain", strings.NewReader("eggs, milk"))
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, flow.Photo, after.Photo)
	assert.Equal(t, flow.Version, after.Version)
}

func TestStartDetectRequiresPhoto(t *testing.T) {
	svc, _ := newTestService(t, chefapi.NewFakeClient())
	flow, err := svc.Create(context.Background())
	require.NoError(t, err)

	_, _, err = svc.StartDetect(context.Background(), flow.ID)
	assert.ErrorIs(t, err, ErrMissingPayload)
}

func TestDetectSuccessSeedsEditableRows(t *testing.T) {
	fake := tomatoOnionFake()
	svc, _ := newTestService(t, fake)

	flow := confirmedFlow(t, svc)

	assert.Equal(t, StageConfirm, flow.Stage)
	assert.Equal(t, RequestSucceeded, flow.Detect.State)
	require.Len(t, flow.Ingredients, 2)
	assert.Equal(t, "Tomato", flow.Ingredients[0].Name)
	assert.Equal(t, "Onion", flow.Ingredients[1].Name)
	assert.NotEqual(t, flow.Ingredients[0].ID, flow.Ingredients[1].ID)
	assert.Contains(t, ViewOf(flow).Actions, ActionProceed)
	assert.Equal(t, 1, fake.AnalyzeCalls())
}

func TestDetectIssuesExactlyOneRequest(t *testing.T) {
	g := newGate()
	fake := chefapi.NewFakeClient()
	fake.AnalyzeFn = func(context.Context, chefapi.Image) (chefapi.DetectionResult, error) {
		g.wait()
		return chefapi.DetectionSuccess{IngredientNames: []string{"Egg"}}, nil
	}
	svc, _ := newTestService(t, fake)
	flow := flowWithPhoto(t, svc)

	_, issued, err := svc.StartDetect(context.Background(), flow.ID)
	require.NoError(t, err)
	require.True(t, issued)
	g.awaitStart(t)

	again, issued, err := svc.StartDetect(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.False(t, issued)
	assert.Equal(t, RequestSubmitting, again.Detect.State)

	close(g.release)
	svc.Wait()

	_, issued, err = svc.StartDetect(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.False(t, issued)
	assert.Equal(t, 1, fake.AnalyzeCalls())
}

func TestEditsWaitForDetection(t *testing.T) {
	g := newGate()
	fake := chefapi.NewFakeClient()
	fake.AnalyzeFn = func(context.Context, chefapi.Image) (chefapi.DetectionResult, error) {
		g.wait()
		return chefapi.DetectionSuccess{IngredientNames: []string{"Egg"}}, nil
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := flowWithPhoto(t, svc)

	_, err := svc.AddIngredient(ctx, flow.ID, "Milk")
	assert.ErrorIs(t, err, ErrNotInteractive, "capture stage is not editable")

	_, _, err = svc.StartDetect(ctx, flow.ID)
	require.NoError(t, err)
	g.awaitStart(t)

	_, err = svc.AddIngredient(ctx, flow.ID, "Milk")
	assert.ErrorIs(t, err, ErrNotInteractive, "submitting detect is not editable")
	_, _, err = svc.Proceed(ctx, flow.ID)
	assert.ErrorIs(t, err, ErrNotInteractive)

	close(g.release)
	svc.Wait()

	flow, err = svc.AddIngredient(ctx, flow.ID, "Milk")
	require.NoError(t, err)
	assert.Len(t, flow.Ingredients, 2)
}

func TestDetectNon2xxInsufficientShowsMessageAndStaysEditable(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"status":"FAILURE_INSUFFICIENT_INGREDIENTS","chefMessage":"No food found"}`)
	}))
	defer backend.Close()

	svc, _ := newTestService(t, chefapi.NewHTTPClient(backend.URL, 5*time.Second))
	flow := confirmedFlow(t, svc)

	assert.Equal(t, RequestSucceeded, flow.Detect.State)
	assert.True(t, flow.Detect.Insufficient)
	assert.Equal(t, "No food found", flow.Detect.Message)
	assert.Empty(t, flow.Ingredients)

	view := ViewOf(flow)
	assert.Contains(t, view.Actions, ActionAdd)
	assert.NotContains(t, view.Actions, ActionProceed)

	flow, err := svc.AddIngredient(context.Background(), flow.ID, "  Rice ")
	require.NoError(t, err)
	require.Len(t, flow.Ingredients, 1)
	assert.Equal(t, "Rice", flow.Ingredients[0].Name)
}

func TestDetectFailureIsTerminal(t *testing.T) {
	fake := chefapi.NewFakeClient()
	fake.AnalyzeFn = func(context.Context, chefapi.Image) (chefapi.DetectionResult, error) {
		return nil, errors.New("connection reset")
	}
	svc, _ := newTestService(t, fake)
	flow := confirmedFlow(t, svc)

	assert.Equal(t, RequestFailed, flow.Detect.State)
	assert.Equal(t, detectFailedMessage, flow.Detect.Message)
	assert.Equal(t, []string{ActionRestart, ActionAbandon}, ViewOf(flow).Actions)

	_, err := svc.AddIngredient(context.Background(), flow.ID, "Egg")
	assert.ErrorIs(t, err, ErrNotInteractive)
	_, issued, err := svc.StartDetect(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.False(t, issued, "failed detect is not retried")
	assert.Equal(t, 1, fake.AnalyzeCalls())
}

func TestProceedWithZeroIngredientsRejected(t *testing.T) {
	fake := chefapi.NewFakeClient()
	fake.AnalyzeFn = func(context.Context, chefapi.Image) (chefapi.DetectionResult, error) {
		return chefapi.DetectionInsufficient{Message: "Nothing here"}, nil
	}
	svc, _ := newTestService(t, fake)
	flow := confirmedFlow(t, svc)

	after, issued, err := svc.Proceed(context.Background(), flow.ID)
	assert.ErrorIs(t, err, ErrNoIngredients)
	assert.False(t, issued)
	assert.Equal(t, StageConfirm, after.Stage)
	assert.Equal(t, 0, fake.RecommendCalls())
}

func TestProceedAfterRemovingEverythingRejected(t *testing.T) {
	svc, _ := newTestService(t, tomatoOnionFake())
	ctx := context.Background()
	flow := confirmedFlow(t, svc)
	for _, item := range flow.Ingredients {
		var err error
		flow, err = svc.RemoveIngredient(ctx, flow.ID, item.ID)
		require.NoError(t, err)
	}
	_, _, err := svc.Proceed(ctx, flow.ID)
	assert.ErrorIs(t, err, ErrNoIngredients)
}

func TestRecommendAndOpenDetail(t *testing.T) {
	fake := tomatoOnionFake()
	fake.RecommendFn = func(_ context.Context, names []string) (chefapi.RecommendationResult, error) {
		return chefapi.RecommendationSuccess{
			Message: "Soup time",
			Recommendations: []chefapi.RecipeRecommendation{
				{DishName: "Tomato Soup", Description: "warm", EstimatedTimeMin: 20, Difficulty: "Easy"},
				{DishName: "Onion Tart", Description: "flaky", EstimatedTimeMin: 50, Difficulty: "Hard"},
			},
			Details: []chefapi.DetailedRecipe{tomatoSoup},
		}, nil
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := confirmedFlow(t, svc)

	_, issued, err := svc.Proceed(ctx, flow.ID)
	require.NoError(t, err)
	require.True(t, issued)
	svc.Wait()

	assert.Equal(t, []string{"Tomato", "Onion"}, fake.LastIngredients())
	flow, err = svc.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, StageResults, flow.Stage)
	assert.Equal(t, RequestSucceeded, flow.Recommend.State)
	assert.Equal(t, "Soup time", flow.Recommend.Message)
	assert.Len(t, flow.Recommendations, 2)

	detail, err := svc.Recipe(ctx, flow.ID, "Tomato Soup")
	require.NoError(t, err)
	assert.Equal(t, StageDetail, detail.Stage)
	assert.Equal(t, tomatoSoup, detail.Recipe)

	_, err = svc.Recipe(ctx, flow.ID, "Onion Tart")
	assert.ErrorIs(t, err, ErrDetailsUnavailable)
}

func TestProceedSendsEditedNamesInOrder(t *testing.T) {
	fake := tomatoOnionFake()
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := confirmedFlow(t, svc)

	flow, err := svc.BeginEdit(ctx, flow.ID, flow.Ingredients[1].ID)
	require.NoError(t, err)
	flow, err = svc.CommitEdit(ctx, flow.ID, " Red onion ")
	require.NoError(t, err)
	flow, err = svc.AddIngredient(ctx, flow.ID, "Basil")
	require.NoError(t, err)

	_, _, err = svc.Proceed(ctx, flow.ID)
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, []string{"Tomato", "Red onion", "Basil"}, fake.LastIngredients())
}

func TestRecommendInsufficientIsTerminal(t *testing.T) {
	fake := tomatoOnionFake()
	fake.RecommendFn = func(context.Context, []string) (chefapi.RecommendationResult, error) {
		return chefapi.RecommendationInsufficient{Message: "Not enough for a meal"}, nil
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := confirmedFlow(t, svc)

	_, _, err := svc.Proceed(ctx, flow.ID)
	require.NoError(t, err)
	svc.Wait()

	flow, err = svc.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestFailed, flow.Recommend.State)
	assert.True(t, flow.Recommend.Insufficient)
	assert.Equal(t, "Not enough for a meal", flow.Recommend.Message)
	assert.Equal(t, []string{ActionRestart, ActionAbandon}, ViewOf(flow).Actions)

	_, err = svc.Recipe(ctx, flow.ID, "anything")
	assert.ErrorIs(t, err, ErrMissingPayload)
	_, issued, err := svc.Proceed(ctx, flow.ID)
	require.NoError(t, err)
	assert.False(t, issued)
	assert.Equal(t, 1, fake.RecommendCalls())
}

func TestRecommendErrorUsesChefMessage(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == chefapi.AnalyzePath {
			_, _ = io.WriteString(w, `{"status":"SUCCESS","ingredients":["Tomato"]}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"chefMessage":"Chef is on break"}`)
	}))
	defer backend.Close()

	svc, _ := newTestService(t, chefapi.NewHTTPClient(backend.URL, 5*time.Second))
	ctx := context.Background()
	flow := confirmedFlow(t, svc)
	_, _, err := svc.Proceed(ctx, flow.ID)
	require.NoError(t, err)
	svc.Wait()

	flow, err = svc.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestFailed, flow.Recommend.State)
	assert.Equal(t, "Chef is on break", flow.Recommend.Message)
}

func TestRecipeRequiresResults(t *testing.T) {
	svc, _ := newTestService(t, tomatoOnionFake())
	flow := confirmedFlow(t, svc)
	_, err := svc.Recipe(context.Background(), flow.ID, "Tomato Soup")
	assert.ErrorIs(t, err, ErrMissingPayload)
}

func TestLateDetectResponseAfterRestartIgnored(t *testing.T) {
	g := newGate()
	fake := chefapi.NewFakeClient()
	fake.AnalyzeFn = func(context.Context, chefapi.Image) (chefapi.DetectionResult, error) {
		// Ignore cancellation so the response really arrives late.
		g.wait()
		return chefapi.DetectionSuccess{IngredientNames: []string{"Ghost pepper"}}, nil
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := flowWithPhoto(t, svc)

	_, _, err := svc.StartDetect(ctx, flow.ID)
	require.NoError(t, err)
	g.awaitStart(t)

	restarted, err := svc.Restart(ctx, flow.ID)
	require.NoError(t, err)
	assert.Greater(t, restarted.Generation, flow.Generation)

	close(g.release)
	svc.Wait()

	flow, err = svc.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCapture, flow.Stage)
	assert.Equal(t, RequestIdle, flow.Detect.State)
	assert.Empty(t, flow.Ingredients)
	assert.Nil(t, flow.Photo)
}

func TestLateRecommendResponseAfterAbandonIgnored(t *testing.T) {
	g := newGate()
	fake := tomatoOnionFake()
	fake.RecommendFn = func(context.Context, []string) (chefapi.RecommendationResult, error) {
		g.wait()
		return chefapi.RecommendationSuccess{Recommendations: []chefapi.RecipeRecommendation{{DishName: "Late"}}}, nil
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := confirmedFlow(t, svc)

	_, _, err := svc.Proceed(ctx, flow.ID)
	require.NoError(t, err)
	g.awaitStart(t)

	require.NoError(t, svc.Abandon(ctx, flow.ID))
	close(g.release)
	svc.Wait()

	_, err = svc.Get(ctx, flow.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestartCancelsInflightRequest(t *testing.T) {
	cancelled := make(chan struct{})
	started := make(chan struct{})
	fake := chefapi.NewFakeClient()
	fake.AnalyzeFn = func(ctx context.Context, _ chefapi.Image) (chefapi.DetectionResult, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := flowWithPhoto(t, svc)

	_, _, err := svc.StartDetect(ctx, flow.ID)
	require.NoError(t, err)
	<-started
	_, err = svc.Restart(ctx, flow.ID)
	require.NoError(t, err)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected in-flight request to be cancelled")
	}
	svc.Wait()

	flow, err = svc.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestIdle, flow.Detect.State, "cancelled response must not mark the new generation failed")
}

func TestCancelAllResolvesInflightAsFailed(t *testing.T) {
	started := make(chan struct{})
	fake := chefapi.NewFakeClient()
	fake.AnalyzeFn = func(ctx context.Context, _ chefapi.Image) (chefapi.DetectionResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := flowWithPhoto(t, svc)

	_, _, err := svc.StartDetect(ctx, flow.ID)
	require.NoError(t, err)
	<-started

	svc.CancelAll()
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("in-flight request outlived CancelAll")
	}

	flow, err = svc.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestFailed, flow.Detect.State)
}

func TestRestartAllowsNewRun(t *testing.T) {
	fake := tomatoOnionFake()
	svc, _ := newTestService(t, fake)
	ctx := context.Background()
	flow := confirmedFlow(t, svc)

	_, err := svc.Restart(ctx, flow.ID)
	require.NoError(t, err)

	_, accepted, err := svc.SelectImage(ctx, flow.ID, "again.png", "image/png", bytes.NewReader(testPNG))
	require.NoError(t, err)
	require.True(t, accepted)
	_, issued, err := svc.StartDetect(ctx, flow.ID)
	require.NoError(t, err)
	assert.True(t, issued)
	svc.Wait()
	assert.Equal(t, 2, fake.AnalyzeCalls())
}

func TestSelectImageAfterCaptureNotAllowed(t *testing.T) {
	svc, _ := newTestService(t, tomatoOnionFake())
	flow := confirmedFlow(t, svc)
	_, _, err := svc.SelectImage(context.Background(), flow.ID, "b.png", "image/png", bytes.NewReader(testPNG))
	assert.ErrorIs(t, err, ErrNotInteractive)
}

func TestExpiredFlowIsGoneAndSwept(t *testing.T) {
	svc, clock := newTestService(t, chefapi.NewFakeClient())
	ctx := context.Background()
	flow, err := svc.Create(ctx)
	require.NoError(t, err)

	clock.now = clock.now.Add(31 * time.Minute)
	_, err = svc.Get(ctx, flow.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := svc.Sweep(ctx, clock.now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenImageWithoutPhotoIsMissing(t *testing.T) {
	svc, _ := newTestService(t, chefapi.NewFakeClient())
	flow, err := svc.Create(context.Background())
	require.NoError(t, err)

	_, _, err = svc.OpenImage(context.Background(), flow.ID)
	assert.ErrorIs(t, err, ErrMissingPayload)
}

func TestAbandonRacingSweepRetiresOnce(t *testing.T) {
	svc, clock := newTestService(t, chefapi.NewFakeClient())
	ctx := context.Background()
	store := &countingStore{ObjectStore: svc.Uploads.Store}
	svc.Uploads.Store = store
	flow := flowWithPhoto(t, svc)

	repo := &hookRepo{Repo: svc.Repo}
	svc.Repo = repo
	repo.beforeDelete = func() {
		n, err := svc.Sweep(ctx, clock.now.Add(time.Hour))
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	require.NoError(t, svc.Abandon(ctx, flow.ID))
	assert.Equal(t, 1, store.Deletes(), "photo released once")
	_, err := svc.Get(ctx, flow.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivityExtendsTTL(t *testing.T) {
	svc, clock := newTestService(t, chefapi.NewFakeClient())
	ctx := context.Background()
	flow := flowWithPhoto(t, svc)

	clock.now = clock.now.Add(20 * time.Minute)
	_, err := svc.Restart(ctx, flow.ID)
	require.NoError(t, err)

	clock.now = clock.now.Add(20 * time.Minute)
	_, err = svc.Get(ctx, flow.ID)
	assert.NoError(t, err)
}

func TestHubReceivesResolution(t *testing.T) {
	svc, _ := newTestService(t, tomatoOnionFake())
	ctx := context.Background()
	flow := flowWithPhoto(t, svc)

	updates, cancel := svc.Hub.Subscribe(flow.ID)
	defer cancel()

	_, _, err := svc.StartDetect(ctx, flow.ID)
	require.NoError(t, err)
	svc.Wait()

	var last View
	for {
		select {
		case v := <-updates:
			last = v
			continue
		default:
		}
		break
	}
	assert.Equal(t, RequestSucceeded, last.Detect.State)
	assert.Len(t, last.Ingredients, 2)
}
