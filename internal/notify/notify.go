// Package notify delivers out-of-band completion notices for long-running
// analyses via SMS.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/RinkLab/ShotScope/internal/models"
)

// phoneNumberRegex strips everything but digits when canonicalizing recipients.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Notifier sends a completion notice for a finished analysis.
type Notifier interface {
	NotifyAnalysisComplete(ctx context.Context, to string, result models.AnalysisResult) error
}

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// TwilioNotifier sends completion SMS via the Twilio REST API.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioNotifier creates a notifier, falling back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioNotifier{client: client, from: cfg.FromNumber}, nil
}

// ValidateAndCanonicalizeRecipient strips non-numeric characters and requires
// at least 6 digits.
func ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// NotifyAnalysisComplete sends a completion SMS for the finished analysis.
func (n *TwilioNotifier) NotifyAnalysisComplete(ctx context.Context, to string, result models.AnalysisResult) error {
	canonical, err := ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Your ShotScope analysis is ready: overall score %d/100. Open the app to see the full breakdown.", result.OverallScore)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("+" + canonical)
	params.SetFrom(n.from)
	params.SetBody(body)

	if _, err := n.client.Api.CreateMessage(params); err != nil {
		slog.Error("Twilio NotifyAnalysisComplete failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send completion notice to %s: %w", canonical, err)
	}
	slog.Debug("Twilio completion notice sent", "to", canonical, "analysisID", result.ID)
	return nil
}

// NoopNotifier drops notifications; used when no SMS credentials are configured.
type NoopNotifier struct{}

// NotifyAnalysisComplete does nothing.
func (NoopNotifier) NotifyAnalysisComplete(ctx context.Context, to string, result models.AnalysisResult) error {
	slog.Debug("NoopNotifier dropping completion notice", "analysisID", result.ID)
	return nil
}
