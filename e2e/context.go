package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"hie-gateway/internal/app"
	"hie-gateway/internal/platform/config"
	"hie-gateway/internal/transfer/dispatch"
	id "hie-gateway/pkg/domain"
)

const (
	adminToken    = "e2e-admin-token"
	webhookSecret = "e2e-webhook-secret"
)

// entities that get a webhook endpoint on the fake receiver.
var entities = []string{"hip-1", "hip-2", "hiu-1", "hiu-2"}

// Clock is the gateway's time source; steps move it forward explicitly.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Webhook is one call received by the fake entity server.
type Webhook struct {
	Entity     string
	Kind       string
	TransferID string
	TokenValid bool
}

// EntityServer stands in for every holder and requester. Each entity is
// served under /<entity>/webhooks/<kind>.
type EntityServer struct {
	server *httptest.Server
	signer *dispatch.Signer

	mu        sync.Mutex
	received  []Webhook
	rejecting map[string]bool
}

func newEntityServer() (*EntityServer, error) {
	signer, err := dispatch.NewSigner([]byte(webhookSecret), nil)
	if err != nil {
		return nil, err
	}
	es := &EntityServer{signer: signer, rejecting: map[string]bool{}}
	es.server = httptest.NewServer(http.HandlerFunc(es.serve))
	return es, nil
}

func (es *EntityServer) serve(w http.ResponseWriter, r *http.Request) {
	entity, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	kind := strings.TrimPrefix(rest, "webhooks/")

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := es.signer.Verify(token, id.EntityID(entity))
	valid := err == nil && claims.Subject == r.Header.Get(dispatch.TransferIDHeader)

	es.mu.Lock()
	es.received = append(es.received, Webhook{
		Entity:     entity,
		Kind:       kind,
		TransferID: r.Header.Get(dispatch.TransferIDHeader),
		TokenValid: valid,
	})
	reject := es.rejecting[entity]
	es.mu.Unlock()

	if reject {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (es *EntityServer) directory() string {
	pairs := make([]string, 0, len(entities))
	for _, e := range entities {
		pairs = append(pairs, e+"="+es.server.URL+"/"+e)
	}
	return strings.Join(pairs, ",")
}

func (es *EntityServer) SetRejecting(entity string, reject bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.rejecting[entity] = reject
}

func (es *EntityServer) Received() []Webhook {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]Webhook(nil), es.received...)
}

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	TransferID       string
	ConsentID        string

	clock    *Clock
	entities *EntityServer
	gateway  *app.App
	server   *httptest.Server
}

// NewTestContext starts an in-process gateway backed by in-memory stores.
// The scheduler loop is not started; steps drive ticks explicitly.
func NewTestContext(ctx context.Context) (*TestContext, error) {
	es, err := newEntityServer()
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.AdminToken = adminToken
	cfg.WebhookSecret = webhookSecret
	cfg.EntityEndpoints = es.directory()
	cfg.WebhookTimeout = 2 * time.Second
	cfg.Transfer.MaxRetries = 3
	cfg.Scheduler.BackoffBase = time.Second
	cfg.Scheduler.BackoffCap = time.Minute

	clock := &Clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	gateway, err := app.New(ctx, cfg, slog.New(slog.DiscardHandler), app.WithClock(clock.Now))
	if err != nil {
		es.server.Close()
		return nil, err
	}
	server := httptest.NewServer(gateway.Handler)

	return &TestContext{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clock,
		entities:   es,
		gateway:    gateway,
		server:     server,
	}, nil
}

// Close stops the gateway and the fake entity server.
func (tc *TestContext) Close() error {
	tc.server.Close()
	err := tc.gateway.Close()
	tc.entities.server.Close()
	return err
}

// POST makes a POST request and stores the response
func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.POSTWithHeaders(path, body, nil)
}

// POSTWithHeaders makes a POST request with optional headers
func (tc *TestContext) POSTWithHeaders(path string, body interface{}, headers map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return tc.POSTRaw(path, data, headers)
}

// POSTRaw sends body bytes unchanged.
func (tc *TestContext) POSTRaw(path string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, tc.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return nil
}

// GetResponseField extracts a field from the JSON response
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}

	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}

	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err == nil {
		if _, ok := data[text]; ok {
			return true
		}
	}

	return false
}

// Getter methods for step package interfaces

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) GetTransferID() string { return tc.TransferID }

func (tc *TestContext) SetTransferID(v string) { tc.TransferID = v }

func (tc *TestContext) GetConsentID() string { return tc.ConsentID }

func (tc *TestContext) SetConsentID(v string) { tc.ConsentID = v }

func (tc *TestContext) AdminToken() string { return adminToken }

// RunScheduler runs one scheduler tick at the current clock.
func (tc *TestContext) RunScheduler(ctx context.Context) error {
	_, err := tc.gateway.Scheduler.Tick(ctx)
	return err
}

func (tc *TestContext) Advance(d time.Duration) { tc.clock.Advance(d) }

func (tc *TestContext) SetRejecting(entity string, reject bool) {
	tc.entities.SetRejecting(entity, reject)
}

// WebhooksFor counts calls of kind received by entity.
func (tc *TestContext) WebhooksFor(entity, kind string) int {
	n := 0
	for _, w := range tc.entities.Received() {
		if w.Entity == entity && w.Kind == kind {
			n++
		}
	}
	return n
}

// InvalidWebhooks lists calls whose bearer token did not verify for the
// receiving entity and transfer.
func (tc *TestContext) InvalidWebhooks() []string {
	var bad []string
	for _, w := range tc.entities.Received() {
		if !w.TokenValid {
			bad = append(bad, w.Entity+"/"+w.Kind)
		}
	}
	return bad
}
