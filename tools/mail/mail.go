package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pamudu-ranasinghe/virtualme/tools"
)

const apiURL = "https://api.brevo.com/v3/smtp/email"

// Sender dispatches transactional email through the Brevo API. It refuses to
// send unless the caller set approved=true in the arguments; the approval
// handshake happens upstream in conversation, the flag just arrives here.
type Sender struct {
	APIKey           string
	SenderEmail      string
	SenderName       string
	DefaultRecipient string
	APIURL           string // overrides the brevo endpoint, used in tests
	HTTPClient       *http.Client
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	Sender      address   `json:"sender"`
	To          []address `json:"to"`
	CC          []address `json:"cc,omitempty"`
	Subject     string    `json:"subject"`
	TextContent string    `json:"textContent"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

func (s *Sender) Name() string { return tools.SendEmail }

func (s *Sender) url() string {
	if s.APIURL != "" {
		return s.APIURL
	}
	return apiURL
}

func (s *Sender) http() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

func (s *Sender) Invoke(ctx context.Context, args map[string]string) (string, error) {
	if strings.ToLower(strings.TrimSpace(args["approved"])) != "true" {
		return "", fmt.Errorf("email not approved: refusing to send without approved=true")
	}

	to := strings.TrimSpace(args["to"])
	if to == "" {
		to = s.DefaultRecipient
	}
	if to == "" {
		return "", fmt.Errorf("missing required argument: to")
	}
	subject := strings.TrimSpace(args["subject"])
	if subject == "" {
		subject = "Message from the assistant"
	}
	body := args["body"]
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("missing required argument: body")
	}

	reqBody := sendRequest{
		Sender:      address{Email: s.SenderEmail, Name: s.SenderName},
		To:          []address{{Email: to}},
		Subject:     subject,
		TextContent: body,
	}
	if cc := strings.TrimSpace(args["cc"]); cc != "" {
		reqBody.CC = []address{{Email: cc}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", s.url(), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", s.APIKey)

	resp, err := s.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("brevo API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return fmt.Sprintf("email sent to %s (subject: %s, message id: %s)", to, subject, out.MessageID), nil
}
