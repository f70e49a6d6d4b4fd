package entity

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, body string) error
	Status() int
	Field(path string) (any, error)
	Save(field, name string) error
}

// RegisterSteps registers entity lifecycle steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &entitySteps{tc: tc}
	ctx.Step(`^an? (bulletin|actor|incident) "([^"]*)" saved as "([^"]*)"$`, s.create)
	ctx.Step(`^"([^"]*)" has (\d+) revisions?$`, s.revisionCount)
}

type entitySteps struct {
	tc TestContext
}

// titleField is the display field each class is created with.
var titleField = map[string]string{"bulletin": "title", "actor": "name", "incident": "title"}

func (s *entitySteps) create(class, title, name string) error {
	body := fmt.Sprintf(`{%q:%q}`, titleField[class], title)
	if err := s.tc.Do("POST", "/api/"+class+"/", body); err != nil {
		return err
	}
	if s.tc.Status() != 201 {
		return fmt.Errorf("create %s: status %d", class, s.tc.Status())
	}
	if err := s.tc.Save("id", name); err != nil {
		return err
	}
	return s.tc.Save("class", name+"_class")
}

func (s *entitySteps) revisionCount(name string, want int) error {
	if err := s.tc.Do("GET", "/api/{"+name+"_class}/{"+name+"}/history", ""); err != nil {
		return err
	}
	items, err := s.tc.Field("items")
	if err != nil {
		return err
	}
	list, ok := items.([]any)
	if !ok {
		return fmt.Errorf("history items is not a list")
	}
	if len(list) != want {
		return fmt.Errorf("expected %d revisions of %s, got %d", want, name, len(list))
	}
	return nil
}
