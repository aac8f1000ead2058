package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com"

// Dialer places outbound calls at the telephony provider.
type Dialer interface {
	// PlaceCall dials `to` and returns the provider call id.
	PlaceCall(ctx context.Context, to string) (string, error)
}

// statusCallbackEvents is the full lifecycle set registered on placement.
var statusCallbackEvents = []string{
	"initiated", "ringing", "answered", "completed", "busy", "no-answer", "failed",
}

// TwilioDialer drives the Twilio Calls REST resource directly. Keeping the
// adapter on plain HTTP avoids a provider SDK dependency at this boundary.
type TwilioDialer struct {
	httpc *http.Client
	log   *slog.Logger

	accountSID string
	authToken  string
	from       string

	apiBase string

	// voiceURL is the webhook Twilio fetches for flow TwiML; statusURL
	// receives lifecycle callbacks.
	voiceURL  string
	statusURL string
}

func NewTwilioDialer(accountSID, authToken, from, voiceURL, statusURL string, log *slog.Logger) *TwilioDialer {
	if log == nil {
		log = slog.Default()
	}
	return &TwilioDialer{
		httpc:      &http.Client{Timeout: 15 * time.Second},
		log:        log,
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		apiBase:    twilioAPIBase,
		voiceURL:   voiceURL,
		statusURL:  statusURL,
	}
}

// WithAPIBase overrides the provider endpoint, for tests.
func (d *TwilioDialer) WithAPIBase(base string) *TwilioDialer {
	d.apiBase = strings.TrimRight(base, "/")
	return d
}

func (d *TwilioDialer) PlaceCall(ctx context.Context, to string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", d.from)
	form.Set("Url", d.voiceURL)
	form.Set("StatusCallback", d.statusURL)
	form.Set("StatusCallbackMethod", "POST")
	for _, ev := range statusCallbackEvents {
		form.Add("StatusCallbackEvent", ev)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", d.apiBase, d.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.accountSID, d.authToken)

	resp, err := d.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("telephony: place call: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("telephony: place call: provider returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var out struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("telephony: decode place call response: %w", err)
	}
	if out.Sid == "" {
		return "", fmt.Errorf("telephony: provider response missing call sid")
	}

	d.log.Info("call placed", "call_id", out.Sid, "to", to)
	return out.Sid, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
