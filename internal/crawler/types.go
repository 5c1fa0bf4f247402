package crawler

import (
	"net/http"
	"time"
)

// Marketplace identifies the site being crawled.
type Marketplace struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
	URL     string `json:"url"`
}

// Product is a persisted catalog entry scoped to a Marketplace.
type Product struct {
	ID            int64     `json:"id"`
	MarketplaceID int64     `json:"marketplace_id"`
	Name          string    `json:"name"`
	Image         string    `json:"image"`
	URL           string    `json:"url"`
	Price         string    `json:"price"`
	Currency      string    `json:"currency"`
	Code          string    `json:"code"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stage names the extraction strategy that produced a Candidate.
type Stage string

// Extraction stages, in the order the pipeline tries them.
const (
	StageMicrodata Stage = "microdata"
	StageSocial    Stage = "social"
	StageAssisted  Stage = "assisted"
)

// Field is a Candidate attribute that a validation gate can require.
type Field string

// Candidate fields.
const (
	FieldName        Field = "name"
	FieldPrice       Field = "price"
	FieldCurrency    Field = "currency"
	FieldImage       Field = "image"
	FieldURL         Field = "url"
	FieldCode        Field = "code"
	FieldDescription Field = "description"
)

// Candidate is an unvalidated product guess produced by one extraction stage.
// An empty string means the field was not found.
type Candidate struct {
	Name        string `json:"name,omitempty"`
	Price       string `json:"price,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Image       string `json:"image,omitempty"`
	URL         string `json:"url,omitempty"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Source      Stage  `json:"source,omitempty"`
}

// Value returns the value held for f.
func (c Candidate) Value(f Field) string {
	switch f {
	case FieldName:
		return c.Name
	case FieldPrice:
		return c.Price
	case FieldCurrency:
		return c.Currency
	case FieldImage:
		return c.Image
	case FieldURL:
		return c.URL
	case FieldCode:
		return c.Code
	case FieldDescription:
		return c.Description
	default:
		return ""
	}
}

// Missing lists the required fields that are empty.
func (c Candidate) Missing(required []Field) []Field {
	var out []Field
	for _, f := range required {
		if c.Value(f) == "" {
			out = append(out, f)
		}
	}
	return out
}

// Complete reports whether every required field is present.
func (c Candidate) Complete(required []Field) bool {
	return len(c.Missing(required)) == 0
}

// Page is a rendered document returned by a Renderer.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	UsedJS     bool
}

// State is the orchestrator lifecycle.
type State string

// Orchestrator states.
const (
	StateInit    State = "INIT"
	StateRunning State = "RUNNING"
	StateDrained State = "DRAINED"
)

// Progress is a point-in-time view of a crawl run.
type Progress struct {
	RunID    string `json:"run_id"`
	State    State  `json:"state"`
	Visited  int    `json:"visited"`
	Pending  int    `json:"pending"`
	Rendered int    `json:"rendered"`
	Products int    `json:"products"`
	Failures int    `json:"failures"`
}

// Summary is returned when a crawl run drains.
type Summary struct {
	RunID       string        `json:"run_id"`
	Marketplace Marketplace   `json:"marketplace"`
	Visited     int           `json:"visited"`
	Rendered    int           `json:"rendered"`
	Skipped     int           `json:"skipped"`
	Products    int           `json:"products"`
	Failures    int           `json:"failures"`
	Duration    time.Duration `json:"duration"`
}
