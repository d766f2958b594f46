package flows

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fridgechef/internal/chefapi"
)

func TestEventsStreamsViews(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r, svc := setupFlowRouter(t, tomatoOnionFake())
	srv := httptest.NewServer(r)
	defer srv.Close()

	flow := flowWithPhoto(t, svc)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/flows/" + flow.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var first View
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, StageCapture, first.Stage)

	_, _, err = svc.StartDetect(ctx, flow.ID)
	require.NoError(t, err)
	svc.Wait()

	for {
		var v View
		require.NoError(t, conn.ReadJSON(&v))
		if v.Detect.State == RequestSucceeded {
			assert.Len(t, v.Ingredients, 2)
			break
		}
	}

	require.NoError(t, svc.Abandon(ctx, flow.ID))
	for {
		var v View
		if err := conn.ReadJSON(&v); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}
}

func TestEventsChangeDuringHandshakeIsStreamed(t *testing.T) {
	r, svc := setupFlowRouter(t, tomatoOnionFake())
	flow := flowWithPhoto(t, svc)

	// Detection resolves right after the handler reads the first view.
	repo := &hookRepo{Repo: svc.Repo}
	svc.Repo = repo
	repo.afterGet = func() {
		_, _, err := svc.StartDetect(context.Background(), flow.ID)
		assert.NoError(t, err)
		svc.Wait()
	}

	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/flows/" + flow.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var first View
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, StageCapture, first.Stage)

	last := first
	for last.Detect.State != RequestSucceeded {
		var v View
		require.NoError(t, conn.ReadJSON(&v), "last streamed view: stage=%s detect=%s", last.Stage, last.Detect.State)
		assert.Greater(t, v.Version, last.Version)
		last = v
	}
	assert.Equal(t, StageConfirm, last.Stage)
	assert.Len(t, last.Ingredients, 2)
}

func TestEventsUnknownFlow(t *testing.T) {
	r, svc := setupFlowRouter(t, chefapi.NewFakeClient())
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/flows/nope/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, 0, svc.Hub.Subscribers("nope"))
}
