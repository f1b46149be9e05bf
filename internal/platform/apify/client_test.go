package apify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

const testBaseURL = "https://apify.test"

func newTestClient(t *testing.T, pageSize int) Client {
	t.Helper()
	hc := &http.Client{Timeout: 5 * time.Second}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	c, err := NewClientWithConfig(logger.Nop(), Config{
		Token:      "apify-token",
		BaseURL:    testBaseURL,
		MaxRetries: 1,
		PageSize:   pageSize,
	}, hc)
	require.NoError(t, err)
	return c
}

func TestStartActorSendsInput(t *testing.T) {
	c := newTestClient(t, 10)

	var got map[string]any
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v2/acts/scraper~photos/runs",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer apify-token", req.Header.Get("Authorization"))
			b, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(b, &got))
			return httpmock.NewJsonResponse(http.StatusCreated, map[string]any{
				"data": map[string]any{"id": "run-1", "actId": "act-9", "status": "READY"},
			})
		})

	run, err := c.StartActor(context.Background(), "scraper/photos", map[string]any{
		"resultsLimit": 10,
		"startUrls":    []StartURL{{URL: "https://fb.test/acme", UserData: map[string]any{"id_scraping": "7"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.False(t, run.Terminal())
	assert.Contains(t, run.MonitorURL(), "act-9/runs/run-1")
	assert.EqualValues(t, 10, got["resultsLimit"])
	urls := got["startUrls"].([]any)
	require.Len(t, urls, 1)
	assert.Equal(t, "https://fb.test/acme", urls[0].(map[string]any)["url"])
}

func TestGetRunRetriesRateLimit(t *testing.T) {
	c := newTestClient(t, 10)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/v2/actor-runs/run-1",
		httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down").Times(1).
			Then(httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
				"data": map[string]any{"id": "run-1", "status": "SUCCEEDED", "defaultDatasetId": "ds-1"},
			})))

	run, err := c.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "ds-1", run.DefaultDatasetID)
	assert.True(t, run.Terminal())
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestIterateDatasetPages(t *testing.T) {
	c := newTestClient(t, 2)

	pages := map[string][]map[string]any{
		"0": {{"n": 1}, {"n": 2}},
		"2": {{"n": 3}},
	}
	httpmock.RegisterResponder(http.MethodGet, `=~^`+testBaseURL+`/v2/datasets/ds-1/items`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "2", req.URL.Query().Get("limit"))
			return httpmock.NewJsonResponse(http.StatusOK, pages[req.URL.Query().Get("offset")])
		})

	var seen []float64
	err := c.IterateDataset(context.Background(), "ds-1", func(item map[string]any) error {
		seen = append(seen, item["n"].(float64))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, seen)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestIterateDatasetStopsOnCallbackError(t *testing.T) {
	c := newTestClient(t, 2)
	httpmock.RegisterResponder(http.MethodGet, `=~^`+testBaseURL+`/v2/datasets/ds-1/items`,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, []map[string]any{{"n": 1}, {"n": 2}}))

	stop := errors.New("stop")
	calls := 0
	err := c.IterateDataset(context.Background(), "ds-1", func(map[string]any) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStartActorClientErrorIsNotRetried(t *testing.T) {
	c := newTestClient(t, 10)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v2/acts/a~b/runs",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":{"type":"user-or-token-not-found"}}`))

	_, err := c.StartActor(context.Background(), "a/b", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
