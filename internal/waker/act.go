package waker

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/talgya/swift-dreams/internal/agents"
)

// ErrMissed is returned when the target woke up before the strike landed.
var ErrMissed = errors.New("target is not asleep")

// Actor strikes agents via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Interrupt sends POST /api/v1/agent/{id}/interrupt.
func (a *Actor) Interrupt(id agents.AgentID) error {
	url := fmt.Sprintf("%s/api/v1/agent/%d/interrupt", a.BaseURL, id)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST interrupt: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: agent %d", ErrMissed, id)
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("interrupt failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
