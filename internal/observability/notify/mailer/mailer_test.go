package mailer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	if cfg.EndpointURL == "" {
		cfg.EndpointURL = "https://mail.example.test/send"
	}
	if len(cfg.To) == 0 {
		cfg.To = []string{"ops@example.test"}
	}
	cfg.Client = hc

	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestSendPostsMessage(t *testing.T) {
	client := newMockedClient(t, Config{From: "bot@example.test", APIKey: "mail-key"})

	var got map[string]any
	var gotAuth string
	httpmock.RegisterResponder(http.MethodPost, "https://mail.example.test/send",
		func(r *http.Request) (*http.Response, error) {
			gotAuth = r.Header.Get("Authorization")
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &got))
			return httpmock.NewStringResponse(http.StatusAccepted, `{"status":"queued"}`), nil
		})

	err := client.Send(context.Background(), core.AlertMessage{
		Subject: "Profitable: Widget Pro 2000",
		Body:    "Buy at $20.00, sell at $35.00, profit $9.75 (27.9%).",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer mail-key", gotAuth)
	assert.Equal(t, "bot@example.test", got["from"])
	assert.Equal(t, "Profitable: Widget Pro 2000", got["subject"])
	assert.Contains(t, got["text"], "$9.75")
}

func TestSendRetriesFailures(t *testing.T) {
	client := newMockedClient(t, Config{RetryLimit: 2})

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, "https://mail.example.test/send",
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusBadGateway, "bad gateway"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	err := client.Send(context.Background(), core.AlertMessage{Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSendReturnsLastErrorWhenExhausted(t *testing.T) {
	client := newMockedClient(t, Config{RetryLimit: 1})

	httpmock.RegisterResponder(http.MethodPost, "https://mail.example.test/send",
		httpmock.NewStringResponder(http.StatusInternalServerError, "broken"))

	err := client.Send(context.Background(), core.AlertMessage{Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestSendRequiresSubject(t *testing.T) {
	client := newMockedClient(t, Config{})
	err := client.Send(context.Background(), core.AlertMessage{Body: "no subject"})
	assert.Error(t, err)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{To: []string{"ops@example.test"}})
	assert.Error(t, err, "missing endpoint")

	_, err = NewClient(Config{EndpointURL: "https://mail.example.test/send"})
	assert.Error(t, err, "missing recipients")

	_, err = NewClient(Config{EndpointURL: "https://mail.example.test/send", To: []string{"   "}})
	assert.Error(t, err, "blank recipients")
}
