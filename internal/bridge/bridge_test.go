package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/api/apitest"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/internal/models"
	"github.com/tmpim/krist/internal/switches"
)

type chanConn struct {
	msgs chan map[string]interface{}
}

func (c *chanConn) Write(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.msgs <- m
	return nil
}

func (c *chanConn) Close() error { return nil }

func (c *chanConn) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case m := <-c.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func newBridge(t *testing.T) (*Client, *api.Services, *httptest.Server) {
	t.Helper()

	services, _ := apitest.New(t)
	srv := httptest.NewServer(NewServer(services.Bus, services.Motd, services.Switches).Handler())
	t.Cleanup(srv.Close)

	return NewClient(srv.URL), services, srv
}

func TestPublishBlock(t *testing.T) {
	client, services, _ := newBridge(t)
	ctx := context.Background()

	conn := &chanConn{msgs: make(chan map[string]interface{}, 10)}
	services.Bus.AddConnection(conn, "t1", "", "")

	n, err := client.Publish(ctx, events.BlockEvent{
		Block:   models.BlockJSON{Height: 7, Address: "k8juvewcui", Hash: "abc"},
		NewWork: 4321,
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	msg := conn.next(t)
	require.Equal(t, "event", msg["type"])
	require.Equal(t, "block", msg["event"])
	require.Equal(t, float64(4321), msg["new_work"])
	block := msg["block"].(map[string]interface{})
	require.Equal(t, float64(7), block["height"])
}

func TestPublishFiltersOwnTransactions(t *testing.T) {
	client, services, _ := newBridge(t)
	ctx := context.Background()

	// Default levels carry own transactions only.
	mine := &chanConn{msgs: make(chan map[string]interface{}, 10)}
	services.Bus.AddConnection(mine, "t1", "k8juvewcui", "a")
	other := &chanConn{msgs: make(chan map[string]interface{}, 10)}
	services.Bus.AddConnection(other, "t2", "k74tq2hsh6", "test")

	n, err := client.Publish(ctx, events.TransactionEvent{
		Transaction: models.TransactionJSON{ID: 3, To: "k8juvewcui", Value: 5, Type: "transfer"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	msg := mine.next(t)
	require.Equal(t, "transaction", msg["event"])
	require.Len(t, other.msgs, 0)
}

func TestPublishRejectsBadEvents(t *testing.T) {
	_, _, srv := newBridge(t)

	cases := []struct {
		body      string
		code      string
		parameter string
	}{
		{`{}`, "invalid_parameter", "event"},
		{`{"event":"party","party":{}}`, "invalid_parameter", "event"},
		{`{"event":"name"}`, "invalid_parameter", "name"},
		{`{"event":"name","name":{}}`, "invalid_parameter", "name"},
		{`{"event":"transaction","transaction":[1]}`, "invalid_parameter", "transaction"},
		{`{"event":"block","block":null,"new_work":100}`, "invalid_parameter", "block"},
		{`{"event":"block","block":{},"new_work":100}`, "invalid_parameter", "block"},
		{`{"event":"block","block":{"height":"two"},"new_work":100}`, "invalid_parameter", "block"},
		{`{"event":"block","block":{"height":2}}`, "missing_parameter", "new_work"},
		{`{"event":"block","block":{"height":2},"new_work":0}`, "invalid_parameter", "new_work"},
		{`{"event":"block","block":{"height":2},"new_work":-5}`, "invalid_parameter", "new_work"},
		{`not json`, "invalid_parameter", "event"},
	}

	for _, tc := range cases {
		resp, err := http.Post(srv.URL+"/publish", "application/json", strings.NewReader(tc.body))
		require.NoError(t, err)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()

		require.Equal(t, http.StatusBadRequest, resp.StatusCode, tc.body)
		require.Equal(t, tc.code, body["error"], tc.body)
		require.Equal(t, tc.parameter, body["parameter"], tc.body)
	}
}

func TestPublishForwardsPayloadUnchanged(t *testing.T) {
	_, services, srv := newBridge(t)

	conn := &chanConn{msgs: make(chan map[string]interface{}, 10)}
	services.Bus.AddConnection(conn, "t1", "k8juvewcui", "a")

	body := `{"event":"transaction","transaction":{"id":9,"to":"k8juvewcui","value":3,"extra_field":"keep-me"}}`
	resp, err := http.Post(srv.URL+"/publish", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := conn.next(t)
	require.Equal(t, "transaction", msg["event"])
	require.Equal(t, map[string]interface{}{
		"id":          float64(9),
		"to":          "k8juvewcui",
		"value":       float64(3),
		"extra_field": "keep-me",
	}, msg["transaction"])
}

func TestSetMotd(t *testing.T) {
	client, services, _ := newBridge(t)
	ctx := context.Background()

	conn := &chanConn{msgs: make(chan map[string]interface{}, 10)}
	services.Bus.AddConnection(conn, "t1", "", "")

	require.NoError(t, client.SetMotd(ctx, "Welcome back"))

	m, err := services.Motd.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "Welcome back", m.Text)

	msg := conn.next(t)
	require.Equal(t, "motd", msg["event"])
}

func TestSetSwitch(t *testing.T) {
	client, services, _ := newBridge(t)
	ctx := context.Background()

	require.NoError(t, client.SetSwitch(ctx, switches.Mining, false))
	enabled, err := services.Switches.MiningEnabled(ctx)
	require.NoError(t, err)
	require.False(t, enabled)

	require.NoError(t, client.SetSwitch(ctx, switches.Mining, true))
	enabled, err = services.Switches.MiningEnabled(ctx)
	require.NoError(t, err)
	require.True(t, enabled)

	err = client.SetSwitch(ctx, "gravity", true)
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "invalid_parameter", apiErr.Code)
	require.Equal(t, "name", apiErr.Parameter)
}
