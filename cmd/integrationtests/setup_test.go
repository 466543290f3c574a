package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bidding-live/internal/auth"
	bidding "bidding-live/internal/biddingService"
	"bidding-live/internal/fanout"
	model "bidding-live/internal/models"
	"bidding-live/internal/repository"
	"bidding-live/internal/server"
	"bidding-live/internal/subscriptions"
	"bidding-live/internal/wsclient"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var (
	seller = model.Identity{UserID: "seller-1", Name: "Sam Seller", Role: model.RoleSeller}
	alice  = model.Identity{UserID: "buyer-alice", Name: "Alice", Role: model.RoleBuyer}
	bob    = model.Identity{UserID: "buyer-bob", Name: "Bob", Role: model.RoleBuyer}
)

// TestEnv is a running server on the in-memory store
type TestEnv struct {
	Server    *httptest.Server
	Repo      *repository.MemoryRepo
	Directory *subscriptions.Directory
	Signer    *auth.Signer
}

// SetupTestServer starts the full router with in-memory repository for integration testing.
func SetupTestServer(t *testing.T) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	dir := subscriptions.NewDirectory()
	signer, err := auth.NewSigner("integration-secret", "bidding-live")
	require.NoError(t, err)

	service := bidding.NewBiddingService(repo, fanout.New(dir))
	router := server.SetupRouter(server.Deps{
		Service:   service,
		Directory: dir,
		Tokens:    signer,
		Stream:    wsclient.Options{SendBuffer: 16, PingInterval: time.Minute, WriteTimeout: 5 * time.Second},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &TestEnv{Server: srv, Repo: repo, Directory: dir, Signer: signer}
}

// Token issues a bearer token for id
func (e *TestEnv) Token(t *testing.T, id model.Identity) string {
	t.Helper()
	token, err := e.Signer.IssueToken(id, time.Hour)
	require.NoError(t, err)
	return token
}

// Do executes an HTTP request and parses the JSON response body
func (e *TestEnv) Do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, e.Server.URL+path, bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := e.Server.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var resp map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	return res.StatusCode, resp
}

// PostBid places a bid and reports only the status. It is safe to call from any goroutine.
func (e *TestEnv) PostBid(auctionID, token, amount string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, e.Server.URL+"/auctions/"+auctionID+"/bids",
		strings.NewReader(`{"amount":"`+amount+`"}`))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := e.Server.Client().Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	return res.StatusCode, nil
}

// CreateAuction creates and activates an auction owned by seller and returns its id
func (e *TestEnv) CreateAuction(t *testing.T, startingPrice, increment string) string {
	t.Helper()
	status, resp := e.Do(t, http.MethodPost, "/auctions", e.Token(t, seller), map[string]any{
		"title":          "Vintage camera",
		"starting_price": startingPrice,
		"bid_increment":  increment,
		"end_time":       time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"activate":       true,
	})
	require.Equal(t, http.StatusCreated, status, resp)
	return resp["data"].(map[string]any)["auction_id"].(string)
}

// Dial opens a websocket to path. A non-empty token is passed as query parameter.
func (e *TestEnv) Dial(t *testing.T, path, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.Server.URL, "http") + path
	if token != "" {
		url += "?token=" + token
	}
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, res, err
}

// ReadEvent reads the next envelope from conn
func ReadEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env map[string]any
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// WatchAuction opens a watch stream and waits until it is subscribed
func (e *TestEnv) WatchAuction(t *testing.T, auctionID, token string) *websocket.Conn {
	t.Helper()
	before := e.Directory.WatcherCount(auctionID)
	conn, _, err := e.Dial(t, "/ws/auctions/"+auctionID, token)
	require.NoError(t, err)

	ack := ReadEvent(t, conn)
	require.Equal(t, "connected", ack["type"])
	require.Eventually(t, func() bool {
		return e.Directory.WatcherCount(auctionID) == before+1
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

// UserStream opens the user's direct stream and waits until it is bound
func (e *TestEnv) UserStream(t *testing.T, id model.Identity) *websocket.Conn {
	t.Helper()
	conn, _, err := e.Dial(t, "/ws", e.Token(t, id))
	require.NoError(t, err)

	ack := ReadEvent(t, conn)
	require.Equal(t, "connected", ack["type"])
	require.Equal(t, id.UserID, ack["data"].(map[string]any)["user_id"])
	require.Eventually(t, func() bool {
		_, ok := e.Directory.ConnectionOf(id.UserID)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}
