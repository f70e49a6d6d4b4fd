package common

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, body string) error
	Status() int
	Field(path string) (any, error)
	Save(field, name string) error
	Body() string
}

// RegisterSteps registers generic request and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &commonSteps{tc: tc}
	ctx.Step(`^I (GET|DELETE) "([^"]*)"$`, s.request)
	ctx.Step(`^I (POST|PUT) "([^"]*)" with:$`, s.requestWithBody)
	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the field "([^"]*)" should equal "([^"]*)"$`, s.fieldShouldEqual)
	ctx.Step(`^the field "([^"]*)" should exist$`, s.fieldShouldExist)
	ctx.Step(`^I save the field "([^"]*)" as "([^"]*)"$`, tc.Save)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) request(method, path string) error {
	return s.tc.Do(method, path, "")
}

func (s *commonSteps) requestWithBody(method, path string, body *godog.DocString) error {
	return s.tc.Do(method, path, body.Content)
}

func (s *commonSteps) statusShouldBe(want int) error {
	if got := s.tc.Status(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, strings.TrimSpace(s.tc.Body()))
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(path, want string) error {
	v, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("field %q: expected %q, got %q", path, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldExist(path string) error {
	_, err := s.tc.Field(path)
	return err
}
