package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	POSTRaw(path string, body []byte, headers map[string]string) error
	POSTWithHeaders(path string, body interface{}, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseBody() []byte
	GetTransferID() string
	SetTransferID(v string)
	GetConsentID() string
	AdminToken() string
	RunScheduler(ctx context.Context) error
	Advance(d time.Duration)
	SetRejecting(entity string, reject bool)
	WebhooksFor(entity, kind string) int
	InvalidWebhooks() []string
}

const labReport = `{"records":[{"type":"LAB_REPORT","testName":"Lipid panel","result":"normal"}]}`

// RegisterSteps registers transfer-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &transferSteps{tc: tc}

	// Request steps
	ctx.Step(`^requester "([^"]*)" requests "([^"]*)" for subject "([^"]*)" from holder "([^"]*)"$`, steps.request)
	ctx.Step(`^requester "([^"]*)" requests "([^"]*)" for subject "([^"]*)" from holder "([^"]*)" under that consent$`, steps.requestUnderConsent)
	ctx.Step(`^the holder acknowledges the transfer$`, steps.acknowledge)
	ctx.Step(`^the holder submits a lab report for the transfer$`, steps.submitLabReport)
	ctx.Step(`^the holder submits the body '([^']*)' for the transfer$`, steps.submitRaw)
	ctx.Step(`^I fetch the transfer$`, steps.fetch)
	ctx.Step(`^I redrive the transfer$`, steps.redrive)
	ctx.Step(`^I redrive the transfer without the admin token$`, steps.redriveWithoutToken)

	// Environment steps
	ctx.Step(`^the scheduler runs$`, steps.schedulerRuns)
	ctx.Step(`^(\d+) minutes pass$`, steps.minutesPass)
	ctx.Step(`^(\d+) hours pass$`, steps.hoursPass)
	ctx.Step(`^entity "([^"]*)" rejects webhooks$`, steps.rejects)
	ctx.Step(`^entity "([^"]*)" accepts webhooks$`, steps.accepts)

	// Assertion steps
	ctx.Step(`^the transfer status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^the transfer field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the transfer field "([^"]*)" should contain "([^"]*)"$`, steps.fieldShouldContain)
	ctx.Step(`^entity "([^"]*)" should have received (\d+) "([^"]*)" webhooks?$`, steps.shouldHaveReceived)
	ctx.Step(`^every webhook should carry a valid token for its receiver$`, steps.tokensValid)
}

type transferSteps struct {
	tc TestContext
}

func (s *transferSteps) path(suffix string) string {
	p := "/v1/health-information/transfers/" + s.tc.GetTransferID()
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (s *transferSteps) request(ctx context.Context, requester, dataTypes, subject, holder string) error {
	return s.send(requester, dataTypes, subject, holder, "")
}

func (s *transferSteps) requestUnderConsent(ctx context.Context, requester, dataTypes, subject, holder string) error {
	return s.send(requester, dataTypes, subject, holder, s.tc.GetConsentID())
}

func (s *transferSteps) send(requester, dataTypes, subject, holder, consentID string) error {
	body := map[string]interface{}{
		"subjectId":      subject,
		"hipId":          holder,
		"hiuId":          requester,
		"careContextIds": []string{"visit-1"},
		"dataTypes":      strings.Split(dataTypes, ","),
	}
	if consentID != "" {
		body["consentId"] = consentID
	}
	if err := s.tc.POST("/v1/health-information/request", body); err != nil {
		return err
	}
	if requestID, err := s.tc.GetResponseField("requestId"); err == nil {
		if v, ok := requestID.(string); ok {
			s.tc.SetTransferID(v)
		}
	}
	return nil
}

func (s *transferSteps) acknowledge(ctx context.Context) error {
	return s.tc.POST(s.path("ack"), map[string]interface{}{})
}

func (s *transferSteps) submitLabReport(ctx context.Context) error {
	return s.tc.POSTRaw(s.path("data"), []byte(labReport), nil)
}

func (s *transferSteps) submitRaw(ctx context.Context, body string) error {
	return s.tc.POSTRaw(s.path("data"), []byte(body), nil)
}

func (s *transferSteps) fetch(ctx context.Context) error {
	return s.tc.GET(s.path(""), nil)
}

func (s *transferSteps) redrive(ctx context.Context) error {
	return s.tc.POSTWithHeaders("/admin/transfers/"+s.tc.GetTransferID()+"/redrive", map[string]interface{}{},
		map[string]string{"X-Admin-Token": s.tc.AdminToken()})
}

func (s *transferSteps) redriveWithoutToken(ctx context.Context) error {
	return s.tc.POST("/admin/transfers/"+s.tc.GetTransferID()+"/redrive", map[string]interface{}{})
}

func (s *transferSteps) schedulerRuns(ctx context.Context) error {
	return s.tc.RunScheduler(ctx)
}

func (s *transferSteps) minutesPass(ctx context.Context, n int) error {
	s.tc.Advance(time.Duration(n) * time.Minute)
	return nil
}

func (s *transferSteps) hoursPass(ctx context.Context, n int) error {
	s.tc.Advance(time.Duration(n) * time.Hour)
	return nil
}

func (s *transferSteps) rejects(ctx context.Context, entity string) error {
	s.tc.SetRejecting(entity, true)
	return nil
}

func (s *transferSteps) accepts(ctx context.Context, entity string) error {
	s.tc.SetRejecting(entity, false)
	return nil
}

func (s *transferSteps) statusShouldBe(ctx context.Context, expected string) error {
	return s.fieldShouldEqual(ctx, "status", expected)
}

func (s *transferSteps) fieldShouldEqual(ctx context.Context, field, expected string) error {
	if err := s.fetch(ctx); err != nil {
		return err
	}
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return fmt.Errorf("%w\nResponse: %s", err, string(s.tc.GetLastResponseBody()))
	}
	if fmt.Sprint(value) != expected {
		return fmt.Errorf("transfer %s: expected %s but got %v", field, expected, value)
	}
	return nil
}

func (s *transferSteps) fieldShouldContain(ctx context.Context, field, substring string) error {
	if err := s.fetch(ctx); err != nil {
		return err
	}
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return fmt.Errorf("%w\nResponse: %s", err, string(s.tc.GetLastResponseBody()))
	}
	if !strings.Contains(fmt.Sprint(value), substring) {
		return fmt.Errorf("transfer %s: expected to contain %q but got %v", field, substring, value)
	}
	return nil
}

func (s *transferSteps) shouldHaveReceived(ctx context.Context, entity string, n int, kind string) error {
	if got := s.tc.WebhooksFor(entity, kind); got != n {
		return fmt.Errorf("entity %s: expected %d %s webhooks but got %d", entity, n, kind, got)
	}
	return nil
}

func (s *transferSteps) tokensValid(ctx context.Context) error {
	if bad := s.tc.InvalidWebhooks(); len(bad) > 0 {
		return fmt.Errorf("webhooks with invalid tokens: %s", strings.Join(bad, ", "))
	}
	return nil
}
