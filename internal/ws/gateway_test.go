package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/api/apitest"
	"github.com/tmpim/krist/internal/ledger"
)

func newServer(t *testing.T) (*httptest.Server, *api.Services) {
	t.Helper()

	services, _ := apitest.New(t)
	engine := gin.New()
	NewGateway(services).SetupRoutes(engine)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, services
}

func startSession(t *testing.T, srv *httptest.Server, form string) *websocket.Conn {
	t.Helper()

	resp, err := http.Post(srv.URL+"/ws/start", "application/x-www-form-urlencoded", strings.NewReader(form))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OK      bool   `json:"ok"`
		URL     string `json:"url"`
		Expires int    `json:"expires"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.OK)
	require.Equal(t, 30, body.Expires)
	require.True(t, strings.HasPrefix(body.URL, "ws://"), body.URL)

	conn, _, err := websocket.DefaultDialer.Dial(body.URL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := read(t, conn)
	require.Equal(t, "hello", hello["type"])
	require.Equal(t, float64(100000), hello["work"])

	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// request sends msg and returns the reply to it, collecting any events
// that arrive first
func request(t *testing.T, conn *websocket.Conn, msg map[string]interface{}) (map[string]interface{}, []map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))

	var evs []map[string]interface{}
	for {
		got := read(t, conn)
		switch got["type"] {
		case "event":
			evs = append(evs, got)
		case "keepalive":
		default:
			return got, evs
		}
	}
}

func TestGatewayGuestSession(t *testing.T) {
	srv, _ := newServer(t)
	conn := startSession(t, srv, "")

	reply, _ := request(t, conn, map[string]interface{}{"id": 1, "type": "me"})
	require.Equal(t, true, reply["ok"])
	require.Equal(t, "response", reply["type"])
	require.Equal(t, "me", reply["responding_to"])
	require.Equal(t, float64(1), reply["id"])
	require.Equal(t, true, reply["isGuest"])

	reply, _ = request(t, conn, map[string]interface{}{"id": 2, "type": "work"})
	require.Equal(t, float64(100000), reply["work"])

	reply, _ = request(t, conn, map[string]interface{}{"id": 3, "type": "get_valid_subscription_levels"})
	require.Len(t, reply["valid_subscription_levels"], 7)

	reply, _ = request(t, conn, map[string]interface{}{"id": 4, "type": "subscribe", "event": "transactions"})
	require.Contains(t, reply["subscription_level"], "transactions")

	reply, _ = request(t, conn, map[string]interface{}{"id": 5, "type": "unsubscribe", "event": "blocks"})
	require.NotContains(t, reply["subscription_level"], "blocks")

	reply, _ = request(t, conn, map[string]interface{}{"id": 6, "type": "subscribe", "event": "everything"})
	require.Equal(t, false, reply["ok"])
	require.Equal(t, "error", reply["type"])
	require.Equal(t, "invalid_parameter", reply["error"])
	require.Equal(t, "event", reply["parameter"])

	reply, _ = request(t, conn, map[string]interface{}{"id": 7, "type": "dance"})
	require.Equal(t, "invalid_parameter", reply["error"])
	require.Equal(t, "type", reply["parameter"])

	reply, _ = request(t, conn, map[string]interface{}{"id": 8, "type": "address", "address": "k8juvewcui"})
	require.Equal(t, "address_not_found", reply["error"])
}

func TestGatewayLoginAndMine(t *testing.T) {
	srv, services := newServer(t)
	conn := startSession(t, srv, "privatekey=a")

	reply, _ := request(t, conn, map[string]interface{}{"id": 1, "type": "me"})
	require.Equal(t, false, reply["isGuest"])
	addr := reply["address"].(map[string]interface{})
	require.Equal(t, "k8juvewcui", addr["address"])

	reply, evs := request(t, conn, map[string]interface{}{"id": 2, "type": "submit_block", "nonce": "%#DEQ'#+UX)"})
	require.Equal(t, true, reply["ok"], "reply %v", reply)
	require.Equal(t, true, reply["success"])
	block := reply["block"].(map[string]interface{})
	require.Equal(t, float64(2), block["height"])
	require.Equal(t, float64(25), block["value"])
	require.Less(t, reply["work"].(float64), float64(100000))

	// Default levels deliver the block and the own mined transaction.
	require.Len(t, evs, 2)
	require.Equal(t, "block", evs[0]["event"])
	require.Equal(t, "transaction", evs[1]["event"])

	// The same nonce no longer solves, and the reply echoes what was hashed.
	reply, _ = request(t, conn, map[string]interface{}{"id": 5, "type": "submit_block", "nonce": "%#DEQ'#+UX)"})
	require.Equal(t, true, reply["ok"])
	require.Equal(t, false, reply["success"])
	require.Equal(t, "solution_incorrect", reply["error"])
	input := "k8juvewcui" + block["hash"].(string)[:12] + "%#DEQ'#+UX)"
	require.Equal(t, input, reply["input"])
	require.Equal(t, ledger.Sha256Hex(input), reply["hash"])

	a, err := services.Ledger.GetAddress(context.Background(), "k8juvewcui")
	require.NoError(t, err)
	require.Equal(t, int64(25), a.Balance)

	reply, _ = request(t, conn, map[string]interface{}{"id": 3, "type": "logout"})
	require.Equal(t, true, reply["isGuest"])

	reply, _ = request(t, conn, map[string]interface{}{"id": 4, "type": "login", "privatekey": "a"})
	require.Equal(t, false, reply["isGuest"])
	addr = reply["address"].(map[string]interface{})
	require.Equal(t, float64(25), addr["balance"])
}

func TestGatewayRejections(t *testing.T) {
	srv, services := newServer(t)

	resp, err := http.Get(srv.URL + "/ws/gateway/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := startSession(t, srv, "")
	reply, _ := request(t, conn, map[string]interface{}{"id": 1, "type": "submit_block", "address": "nope", "nonce": "x"})
	require.Equal(t, "invalid_address", reply["error"])
	require.Equal(t, "address", reply["parameter"])

	require.NoError(t, services.Switches.Set(context.Background(), "mining", false))
	reply, _ = request(t, conn, map[string]interface{}{"id": 2, "type": "submit_block", "address": "k8juvewcui", "nonce": "x"})
	require.Equal(t, "mining_disabled", reply["error"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	reply = read(t, conn)
	require.Equal(t, "syntax_error", reply["error"])
}
