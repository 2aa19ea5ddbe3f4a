package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	consentservice "hie-gateway/internal/consent/service"
	consentstore "hie-gateway/internal/consent/store"
	subjectservice "hie-gateway/internal/subject/service"
	subjectstore "hie-gateway/internal/subject/store"
	"hie-gateway/internal/transfer/codec"
	"hie-gateway/internal/transfer/models"
	"hie-gateway/internal/transfer/scheduler"
	"hie-gateway/internal/transfer/service"
	"hie-gateway/internal/transfer/store"
	id "hie-gateway/pkg/domain"
)

const bundleJSON = `{"records":[{"type":"IMMUNIZATION","vaccines":[{"name":"Tdap","dose":"booster"}]}]}`

type HandlerSuite struct {
	suite.Suite
	router    chi.Router
	store     *store.InMemoryStore
	processor *forwardingProcessor
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	now := func() time.Time { return time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC) }
	s.store = store.New(store.WithClock(now))
	s.processor = &forwardingProcessor{store: s.store}

	c, err := codec.New([]byte("0123456789abcdef-test-secret"))
	s.Require().NoError(err)
	subjects := subjectservice.New(subjectstore.New(), logger)
	consents := consentservice.New(consentstore.New(), subjects, logger)
	svc := service.New(s.store, consents, c, s.processor, logger, service.WithClock(now))

	s.router = chi.NewRouter()
	h := New(svc, logger)
	h.Register(s.router)
	h.RegisterAdmin(s.router)
}

func (s *HandlerSuite) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		s.Require().NoError(json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequestWithContext(context.Background(), method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (s *HandlerSuite) request() string {
	rec, body := s.do(http.MethodPost, "/v1/health-information/request", map[string]any{
		"subjectId":      "pt-1",
		"hipId":          "hip-1",
		"hiuId":          "hiu-1",
		"careContextIds": []string{"cc-1"},
		"dataTypes":      []string{"immunization"},
	})
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	return body["requestId"].(string)
}

func (s *HandlerSuite) TestRequest() {
	rec, body := s.do(http.MethodPost, "/v1/health-information/request", map[string]any{
		"subjectId": "pt-1",
		"hipId":     "hip-1",
		"hiuId":     "hiu-1",
		"dataTypes": []string{"prescription"},
	})
	s.Require().Equal(http.StatusAccepted, rec.Code)
	s.Equal("FORWARDED", body["status"])
	s.NotEmpty(body["consentId"])
	s.True(strings.HasPrefix(body["requestId"].(string), "req-"))
	s.Equal("request forwarded to data holder", body["message"])
}

func (s *HandlerSuite) TestRequestValidation() {
	cases := map[string]map[string]any{
		"missing subject":         {"hipId": "hip-1", "hiuId": "hiu-1", "dataTypes": []string{"LAB_REPORT"}},
		"no data types":           {"subjectId": "pt-1", "hipId": "hip-1", "hiuId": "hiu-1"},
		"holder is the requester": {"subjectId": "pt-1", "hipId": "hip-1", "hiuId": "hip-1", "dataTypes": []string{"LAB_REPORT"}},
		"only blank data types":   {"subjectId": "pt-1", "hipId": "hip-1", "hiuId": "hiu-1", "dataTypes": []string{" ", ""}},
		"care context too long":   {"subjectId": "pt-1", "hipId": "hip-1", "hiuId": "hiu-1", "dataTypes": []string{"LAB_REPORT"}, "careContextIds": []string{strings.Repeat("c", 129)}},
	}
	for name, body := range cases {
		s.Run(name, func() {
			rec, _ := s.do(http.MethodPost, "/v1/health-information/request", body)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestSubmitData() {
	tid := s.request()

	rec, body := s.do(http.MethodPost, "/v1/health-information/transfers/"+tid+"/data", bundleJSON)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("READY", body["status"])
	s.Equal(1, s.processor.kicks)

	rec, _ = s.do(http.MethodPost, "/v1/health-information/transfers/"+tid+"/data", bundleJSON)
	s.Equal(http.StatusConflict, rec.Code, "a transfer accepts one bundle")

	rec, body = s.do(http.MethodGet, "/v1/health-information/transfers/"+tid, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(true, body["dataStored"])
	s.EqualValues(1, body["itemCount"])
	s.NotContains(body, "encryptedPayload")
}

func (s *HandlerSuite) TestSubmitDataErrors() {
	tid := s.request()

	rec, body := s.do(http.MethodPost, "/v1/health-information/transfers/"+tid+"/data", `{"records":[{"type":"PRESCRIPTION","medicines":"oops"}]}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("decode_failed", body["error"])

	rec, _ = s.do(http.MethodPost, "/v1/health-information/transfers/req-missing/data", bundleJSON)
	s.Equal(http.StatusNotFound, rec.Code)

	rec, _ = s.do(http.MethodPost, "/v1/health-information/transfers/"+tid+"/data", strings.Repeat("x", maxPayloadBytes+1))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestAcknowledge() {
	tid := s.request()

	rec, body := s.do(http.MethodPost, "/v1/health-information/transfers/"+tid+"/ack", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("PROCESSING", body["status"])

	rec, _ = s.do(http.MethodPost, "/v1/health-information/transfers/"+tid+"/data", bundleJSON)
	s.Equal(http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodPost, "/v1/health-information/transfers/"+tid+"/ack", nil)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *HandlerSuite) TestRedrive() {
	tid := s.request()

	rec, _ := s.do(http.MethodPost, "/admin/transfers/"+tid+"/redrive", nil)
	s.Equal(http.StatusConflict, rec.Code, "forwarded transfers cannot be redriven")

	_, err := s.store.Transition(context.Background(), id.TransferID(tid), []models.Status{models.StatusForwarded}, models.StatusFailed, func(t *models.Transfer) error {
		t.RetryCount = t.MaxRetries
		return nil
	})
	s.Require().NoError(err)

	rec, body := s.do(http.MethodPost, "/admin/transfers/"+tid+"/redrive", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("REQUESTED", body["status"])
	s.EqualValues(0, body["retryCount"])
}

func (s *HandlerSuite) TestStatusNotFound() {
	rec, body := s.do(http.MethodGet, "/v1/health-information/transfers/req-unknown", nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not_found", body["error"])
}

// forwardingProcessor stands in for the scheduler: the first attempt always
// reaches the holder.
type forwardingProcessor struct {
	store *store.InMemoryStore
	kicks int
}

func (p *forwardingProcessor) ProcessOne(ctx context.Context, transferID id.TransferID) (scheduler.Outcome, error) {
	_, err := p.store.Transition(ctx, transferID, []models.Status{models.StatusRequested}, models.StatusForwarded, nil)
	return scheduler.OutcomeForwarded, err
}

func (p *forwardingProcessor) Kick(context.Context) { p.kicks++ }
