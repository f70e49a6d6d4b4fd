// Package e2e drives a running server through Gherkin scenarios.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// TestContext carries one scenario's HTTP state.
type TestContext struct {
	BaseURL string
	Token   string

	client *http.Client
	status int
	body   []byte
	saved  map[string]string
}

// NewTestContext reads BAYANAT_E2E_URL and BAYANAT_E2E_TOKEN.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL: strings.TrimRight(os.Getenv("BAYANAT_E2E_URL"), "/"),
		Token:   os.Getenv("BAYANAT_E2E_TOKEN"),
		client:  &http.Client{Timeout: 30 * time.Second},
		saved:   make(map[string]string),
	}
}

// Reset clears the previous scenario's response and saved values.
func (tc *TestContext) Reset() {
	tc.status, tc.body = 0, nil
	tc.saved = make(map[string]string)
}

// Expand replaces {name} with saved values.
func (tc *TestContext) Expand(s string) string {
	for k, v := range tc.saved {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

// Do sends a request to the API. An empty body sends none.
func (tc *TestContext) Do(method, path, body string) error {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(tc.Expand(body))
	}
	req, err := http.NewRequest(method, tc.BaseURL+tc.Expand(path), r)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.Token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) Status() int { return tc.status }

// Field resolves a dotted path such as "items.0.id" in the last JSON response.
func (tc *TestContext) Field(path string) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(tc.body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w (%s)", err, tc.body)
	}
	for _, part := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", path, tc.body)
			}
			v = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %q", part, path)
			}
			v = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %q of %q", part, path)
		}
	}
	return v, nil
}

// Save stores a response field for later {name} expansion.
func (tc *TestContext) Save(field, name string) error {
	v, err := tc.Field(field)
	if err != nil {
		return err
	}
	tc.saved[name] = fmt.Sprint(v)
	return nil
}

func (tc *TestContext) Body() string { return string(tc.body) }
