package consent

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetConsentID() string
	SetConsentID(v string)
}

// RegisterSteps registers consent-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &consentSteps{tc: tc}

	ctx.Step(`^I initiate consent for subject "([^"]*)" with holder "([^"]*)"$`, steps.initiate)
	ctx.Step(`^I notify consent status "([^"]*)"$`, steps.notify)
	ctx.Step(`^I notify status "([^"]*)" for consent "([^"]*)"$`, steps.notifyFor)
	ctx.Step(`^I fetch the consent$`, steps.fetch)
}

type consentSteps struct {
	tc TestContext
}

func (s *consentSteps) initiate(ctx context.Context, subject, holder string) error {
	body := map[string]interface{}{
		"subjectId": subject,
		"holderId":  holder,
		"purpose": map[string]string{
			"code": "CAREMGT",
			"text": "Care management",
		},
	}
	if err := s.tc.POST("/v1/consent/init", body); err != nil {
		return err
	}
	consentID, err := s.tc.GetResponseField("consentRequestId")
	if err != nil {
		return err
	}
	v, ok := consentID.(string)
	if !ok {
		return fmt.Errorf("consentRequestId is %T", consentID)
	}
	s.tc.SetConsentID(v)
	return nil
}

func (s *consentSteps) notify(ctx context.Context, status string) error {
	return s.notifyFor(ctx, status, s.tc.GetConsentID())
}

func (s *consentSteps) notifyFor(ctx context.Context, status, consentID string) error {
	return s.tc.POST("/v1/consent/notify", map[string]string{
		"consentRequestId": consentID,
		"status":           status,
	})
}

func (s *consentSteps) fetch(ctx context.Context) error {
	return s.tc.GET("/v1/consent/"+s.tc.GetConsentID(), nil)
}
