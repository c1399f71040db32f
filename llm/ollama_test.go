package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func TestClientGenerate(t *testing.T) {
	client := NewClient("http://fake", "test")
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			assert.Equal(t, "/api/generate", req.URL.Path)
			var payload map[string]interface{}
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			assert.Equal(t, "hello", payload["prompt"])
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"text":"response"}`)),
				Header:     make(http.Header),
			}
		}),
	}

	resp, err := client.Generate(context.Background(), "hello", &Options{})
	assert.NoError(t, err)
	assert.Equal(t, "response", resp.Text)
}

func TestClientChat(t *testing.T) {
	client := NewClient("http://fake", "chat-model")
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			assert.Equal(t, "/api/chat", req.URL.Path)
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"text":"ok"}`)),
				Header:     make(http.Header),
			}
		}),
	}

	resp, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "ping"}}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestClientCompleteSendsSystemPrompt(t *testing.T) {
	client := NewClient("http://fake", "model")
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			assert.Equal(t, "/api/chat", req.URL.Path)
			var payload struct {
				Messages []Message `json:"messages"`
			}
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			if assert.Len(t, payload.Messages, 2) {
				assert.Equal(t, "system", payload.Messages[0].Role)
				assert.Equal(t, "you fix plans", payload.Messages[0].Content)
				assert.Equal(t, "user", payload.Messages[1].Role)
			}
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"message":{"role":"assistant","content":"{\"actions\":[]}"}}`)),
				Header:     make(http.Header),
			}
		}),
	}

	text, err := client.Complete(context.Background(), "you fix plans", "the plan failed")
	assert.NoError(t, err)
	assert.Equal(t, `{"actions":[]}`, text)
}

func TestClientSurfacesServerError(t *testing.T) {
	client := NewClient("http://fake", "model")
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			return &http.Response{
				StatusCode: 500,
				Status:     "500 Internal Server Error",
				Body:       io.NopCloser(strings.NewReader(`model not loaded`)),
				Header:     make(http.Header),
			}
		}),
	}

	_, err := client.Generate(context.Background(), "hello", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}
