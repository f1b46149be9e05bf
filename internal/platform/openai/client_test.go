package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

const testBaseURL = "https://llm.test"

func newTestClient(t *testing.T, maxRetries int) (Client, *http.Client) {
	t.Helper()
	hc := &http.Client{Timeout: 5 * time.Second}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	c, err := NewClientWithConfig(logger.Nop(), Config{
		APIKey:     "sk-test",
		BaseURL:    testBaseURL,
		Model:      "gpt-test",
		MaxRetries: maxRetries,
	}, hc)
	require.NoError(t, err)
	return c, hc
}

func outputTextResponse(text string) map[string]any {
	return map[string]any{
		"model": "gpt-test-2025",
		"output": []any{
			map[string]any{
				"type": "message",
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "output_text", "text": text},
				},
			},
		},
		"usage": map[string]any{"input_tokens": 812, "output_tokens": 64},
	}
}

var testSchema = map[string]any{"type": "object", "properties": map[string]any{}}

func TestGenerateJSONWithImagesParsesOutput(t *testing.T) {
	c, _ := newTestClient(t, 0)

	var captured map[string]any
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/responses",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
			body, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(body, &captured))
			return httpmock.NewJsonResponse(http.StatusOK, outputTextResponse(`{"products":[{"product_name":"Cemento"}]}`))
		})

	res, err := c.GenerateJSONWithImages(context.Background(), "sys", "describe", []ImageInput{
		{ImageURL: "https://cdn.test/1_image1.jpg", Detail: "low"},
		{ImageURL: "  "},
	}, "products", testSchema)
	require.NoError(t, err)

	assert.Equal(t, "gpt-test-2025", res.Model)
	assert.Equal(t, 812, res.Usage.InputTokens)
	assert.Equal(t, 64, res.Usage.OutputTokens)
	products, ok := res.Object["products"].([]any)
	require.True(t, ok)
	assert.Len(t, products, 1)

	assert.Equal(t, "gpt-test", captured["model"])
	assert.EqualValues(t, 0, captured["temperature"])
	input := captured["input"].([]any)
	require.Len(t, input, 2)
	userContent := input[1].(map[string]any)["content"].([]any)
	require.Len(t, userContent, 2, "blank image urls are dropped")
	img := userContent[1].(map[string]any)
	assert.Equal(t, "input_image", img["type"])
	assert.Equal(t, "low", img["detail"])
	format := captured["text"].(map[string]any)["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "products", format["name"])
}

func TestGenerateJSONWithImagesRetriesServerErrors(t *testing.T) {
	c, _ := newTestClient(t, 2)

	var calls int32
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/responses",
		func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				resp := httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy")
				resp.Header.Set("Retry-After", "0")
				return resp, nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, outputTextResponse(`{"products":[]}`))
		})

	res, err := c.GenerateJSONWithImages(context.Background(), "sys", "u", nil, "products", testSchema)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Empty(t, res.Object["products"])
}

func TestGenerateJSONWithImagesDoesNotRetryClientErrors(t *testing.T) {
	c, _ := newTestClient(t, 3)

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/responses",
		httpmock.NewStringResponder(http.StatusBadRequest, `{"error":{"message":"bad image"}}`))

	_, err := c.GenerateJSONWithImages(context.Background(), "sys", "u", nil, "products", testSchema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestGenerateJSONWithImagesKeepsTemperaturePinned(t *testing.T) {
	c, _ := newTestClient(t, 2)

	var withoutTemp int32
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/responses",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			var payload map[string]any
			require.NoError(t, json.Unmarshal(body, &payload))
			temp, ok := payload["temperature"]
			if !ok {
				atomic.AddInt32(&withoutTemp, 1)
				return httpmock.NewJsonResponse(http.StatusOK, outputTextResponse(`{"products":[]}`))
			}
			assert.EqualValues(t, 0, temp)
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`), nil
		})

	for i := 0; i < 2; i++ {
		_, err := c.GenerateJSONWithImages(context.Background(), "sys", "u", nil, "products", testSchema)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTemperatureUnsupported)
	}
	assert.Zero(t, atomic.LoadInt32(&withoutTemp), "requests are never sent without temperature")
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestGenerateJSONWithImagesRejectsInvalidJSON(t *testing.T) {
	c, _ := newTestClient(t, 0)

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/responses",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, outputTextResponse(`not json`)))

	res, err := c.GenerateJSONWithImages(context.Background(), "sys", "u", nil, "products", testSchema)
	require.Error(t, err)
	assert.Equal(t, 812, res.Usage.InputTokens, "usage survives a parse failure")
}

func TestGenerateJSONWithImagesStopsOnCancelledContext(t *testing.T) {
	c, _ := newTestClient(t, 5)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/v1/responses",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "busy"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GenerateJSONWithImages(ctx, "sys", "u", nil, "products", testSchema)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClientWithConfig(logger.Nop(), Config{Model: "m"}, nil)
	require.Error(t, err)
}

func TestExtractUsageFromRawFallsBackToChatFields(t *testing.T) {
	in, out := extractUsageFromRaw([]byte(`{"usage":{"prompt_tokens":"12","completion_tokens":3}}`))
	assert.Equal(t, 12, in)
	assert.Equal(t, 3, out)
}
