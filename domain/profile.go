package domain

// Integrations holds the optional push destinations configured for a
// profile. Absence of a field degrades that destination to a
// not-configured outcome, it never blocks the others.
type Integrations struct {
	WebhookURL  string `json:"webhookUrl,omitempty"`
	AppBaseURL  string `json:"appBaseUrl,omitempty"`
	CalendlyURL string `json:"calendlyUrl,omitempty"`
	SMTPHost    string `json:"smtpHost,omitempty"`
	SMTPPort    int    `json:"smtpPort,omitempty"`
	SMTPUser    string `json:"smtpUser,omitempty"`
	SMTPPass    string `json:"smtpPass,omitempty"`
	SMTPFrom    string `json:"smtpFrom,omitempty"`
}

// RevenueStream is a planned income line for the tracked year.
type RevenueStream struct {
	Name   string  `json:"name"`
	Target float64 `json:"target"`
	Notes  string  `json:"notes,omitempty"`
}

// NextSession records the agreed next coaching session, free-form.
type NextSession struct {
	When  string `json:"when,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// BusinessProfile is the root aggregate: one coached business for one
// tracked year. It is loaded and saved wholesale; tasks and their
// completion tokens must survive round trips byte-for-byte.
type BusinessProfile struct {
	Name           string          `json:"name"`
	Year           int             `json:"year"`
	Integrations   Integrations    `json:"integrations"`
	RevenueStreams []RevenueStream `json:"revenueStreams,omitempty"`
	NextSession    NextSession     `json:"nextSession,omitempty"`
	Tasks          []Task          `json:"tasks"`
}

// TaskByID returns a pointer into the profile's task slice, or nil.
func (p *BusinessProfile) TaskByID(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// StreamsTotal sums the revenue stream targets for the summary rollup.
func (p *BusinessProfile) StreamsTotal() float64 {
	total := 0.0
	for _, s := range p.RevenueStreams {
		total += s.Target
	}
	return total
}
