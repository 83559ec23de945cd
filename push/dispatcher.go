package push

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	mail "gopkg.in/mail.v2"

	"tracking-api/domain"
)

// Destination is one of the closed set of push targets.
type Destination string

const (
	DestWebhook  Destination = "upcoach"
	DestCalendly Destination = "calendly"
	DestEmail    Destination = "email"
	DestOther    Destination = "other"
)

// Outcome is the per-destination result of one dispatch. It is surfaced
// to the operator and never persisted.
type Outcome struct {
	Destination Destination `json:"destination"`
	Success     bool        `json:"success"`
	Detail      string      `json:"detail"`
}

const detailNotConfigured = "not configured"

// Rendered is a would-be body produced by Preview.
type Rendered struct {
	Destination Destination `json:"destination"`
	ContentType string      `json:"contentType"`
	Body        string      `json:"body"`
}

// Dispatcher fans a payload out to destinations independently: one
// failing or unconfigured destination never stops the others. Every
// destination attempt is bounded by the per-destination timeout so an
// unreachable endpoint cannot stall the rest.
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *log.Logger

	// sendMail is swapped out in tests; the default dials real SMTP.
	sendMail func(integ domain.Integrations, to []string, subject, html string) error
}

// NewDispatcher creates a Dispatcher with the given per-destination
// timeout. A zero timeout falls back to 8 seconds.
func NewDispatcher(timeout time.Duration, logger *log.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		logger:   logger,
		sendMail: smtpSend,
	}
}

// Dispatch pushes the payload to each destination in order and collects
// one outcome per destination. emailTo applies to the email destination
// only; empty recipients fall back to the configured from-address.
func (d *Dispatcher) Dispatch(ctx context.Context, p *domain.BusinessProfile, pl Payload, dests []Destination, emailTo []string) []Outcome {
	outcomes := make([]Outcome, 0, len(dests))
	for _, dest := range dests {
		var out Outcome
		switch dest {
		case DestWebhook:
			out = d.sendWebhook(ctx, p.Integrations, pl)
		case DestCalendly:
			out = surfaceCalendly(p.Integrations)
		case DestEmail:
			out = d.sendEmail(p.Integrations, pl, emailTo)
		case DestOther:
			out = Outcome{Destination: DestOther, Success: true, Detail: "no-op (reserved)"}
		default:
			out = Outcome{Destination: dest, Success: false, Detail: "unknown destination"}
		}
		d.logger.WithFields(log.Fields{
			"business":    p.Name,
			"event":       pl.Event,
			"destination": out.Destination,
			"success":     out.Success,
			"detail":      out.Detail,
		}).Info("push.dispatch")
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// Preview renders the body each destination would receive without
// touching the network. It backs the manual Push Sync preview and the
// webhook "Send Test" dry run.
func (d *Dispatcher) Preview(p *domain.BusinessProfile, pl Payload, dests []Destination) ([]Rendered, error) {
	rendered := make([]Rendered, 0, len(dests))
	for _, dest := range dests {
		switch dest {
		case DestWebhook:
			body, err := pl.EncodeJSON()
			if err != nil {
				return nil, err
			}
			rendered = append(rendered, Rendered{Destination: DestWebhook, ContentType: "application/json", Body: string(body)})
		case DestEmail:
			body, err := pl.RenderHTML()
			if err != nil {
				return nil, err
			}
			rendered = append(rendered, Rendered{Destination: DestEmail, ContentType: "text/html", Body: body})
		case DestCalendly:
			rendered = append(rendered, Rendered{Destination: DestCalendly, ContentType: "text/plain", Body: p.Integrations.CalendlyURL})
		case DestOther:
			rendered = append(rendered, Rendered{Destination: DestOther, ContentType: "text/plain", Body: ""})
		}
	}
	return rendered, nil
}

func (d *Dispatcher) sendWebhook(ctx context.Context, integ domain.Integrations, pl Payload) Outcome {
	if integ.WebhookURL == "" {
		return Outcome{Destination: DestWebhook, Success: false, Detail: detailNotConfigured}
	}
	body, err := pl.EncodeJSON()
	if err != nil {
		return Outcome{Destination: DestWebhook, Success: false, Detail: "encode: " + err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, integ.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Destination: DestWebhook, Success: false, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return Outcome{Destination: DestWebhook, Success: false, Detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{Destination: DestWebhook, Success: false, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return Outcome{Destination: DestWebhook, Success: true, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
}

// surfaceCalendly is not a real push: it hands the configured link back
// to the operator to share.
func surfaceCalendly(integ domain.Integrations) Outcome {
	if integ.CalendlyURL == "" {
		return Outcome{Destination: DestCalendly, Success: false, Detail: detailNotConfigured}
	}
	return Outcome{Destination: DestCalendly, Success: true, Detail: integ.CalendlyURL + " (share this link)"}
}

func (d *Dispatcher) sendEmail(integ domain.Integrations, pl Payload, to []string) Outcome {
	if integ.SMTPHost == "" || integ.SMTPFrom == "" || integ.SMTPUser == "" || integ.SMTPPass == "" {
		return Outcome{Destination: DestEmail, Success: false, Detail: detailNotConfigured}
	}
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if a := strings.TrimSpace(addr); a != "" {
			recipients = append(recipients, a)
		}
	}
	if len(recipients) == 0 {
		recipients = []string{integ.SMTPFrom}
	}
	html, err := pl.RenderHTML()
	if err != nil {
		return Outcome{Destination: DestEmail, Success: false, Detail: "render: " + err.Error()}
	}
	subject := fmt.Sprintf("Tracking Success — %s — %s", pl.Business, pl.Event)
	if err := d.sendMail(integ, recipients, subject, html); err != nil {
		return Outcome{Destination: DestEmail, Success: false, Detail: err.Error()}
	}
	return Outcome{Destination: DestEmail, Success: true, Detail: fmt.Sprintf("sent to %d recipient(s)", len(recipients))}
}

func smtpSend(integ domain.Integrations, to []string, subject, html string) error {
	m := mail.NewMessage()
	m.SetHeader("From", integ.SMTPFrom)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	port := integ.SMTPPort
	if port == 0 {
		port = 587
	}
	dialer := mail.NewDialer(integ.SMTPHost, port, integ.SMTPUser, integ.SMTPPass)
	dialer.StartTLSPolicy = mail.MandatoryStartTLS
	return dialer.DialAndSend(m)
}
