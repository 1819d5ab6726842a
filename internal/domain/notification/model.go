package notification

import (
	"encoding/json"
	"maps"
	"time"
)

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

// Recipient is a person that can be reached on zero or more channels.
// A recipient without any usable address is valid but undeliverable.
type Recipient struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

// Address returns the recipient's contact address for the given channel,
// or an empty string when none is set.
func (r Recipient) Address(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.Phone
	case ChannelTelegram:
		return r.TelegramChatID
	default:
		return ""
	}
}

// Message is a notification template: a subject, a body and optional
// placeholder data. It is immutable once constructed.
type Message struct {
	subject string
	body    string
	data    map[string]string
}

// NewMessage creates a Message. The data map is copied.
func NewMessage(subject, body string, data map[string]string) Message {
	var d map[string]string
	if len(data) > 0 {
		d = maps.Clone(data)
	}
	return Message{subject: subject, body: body, data: d}
}

// Subject returns the subject template.
func (m Message) Subject() string { return m.subject }

// Body returns the body template.
func (m Message) Body() string { return m.body }

// Data returns a copy of the substitution data, nil when there is none.
func (m Message) Data() map[string]string {
	if m.data == nil {
		return nil
	}
	return maps.Clone(m.data)
}

type messageJSON struct {
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{Subject: m.subject, Body: m.body, Data: m.data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = NewMessage(raw.Subject, raw.Body, raw.Data)
	return nil
}

// RenderedMessage is the literal text handed to a provider.
type RenderedMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Outcome is the result of a single provider send invocation.
type Outcome struct {
	Success  bool              `json:"success"`
	Channel  Channel           `json:"channel"`
	Status   string            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Succeeded builds a successful outcome.
func Succeeded(ch Channel, status string, metadata map[string]string) Outcome {
	return Outcome{Success: true, Channel: ch, Status: status, Metadata: metadata}
}

// Failed builds a failed outcome.
func Failed(ch Channel, status, errMsg string) Outcome {
	return Outcome{Success: false, Channel: ch, Status: status, Error: errMsg}
}

// Attempt records one provider invocation within a delivery.
type Attempt struct {
	Provider  string    `json:"provider"`
	Channel   Channel   `json:"channel"`
	Number    int       `json:"number"` // 1-based, per provider
	Outcome   Outcome   `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the aggregate result of delivering one message to one recipient.
type Report struct {
	ID            string        `json:"id"`
	Recipient     Recipient     `json:"recipient"`
	Message       Message       `json:"message"`
	Success       bool          `json:"success"`
	Attempts      []Attempt     `json:"attempts"`
	FinalOutcome  *Outcome      `json:"final_outcome,omitempty"`
	TotalAttempts int           `json:"total_attempts"`
	Elapsed       time.Duration `json:"-"`
}

// SuccessfulProviders lists the provider name of every successful attempt,
// in attempt order.
func (r *Report) SuccessfulProviders() []string {
	return r.providersWhere(true)
}

// FailedProviders lists the provider name of every failed attempt, in
// attempt order.
func (r *Report) FailedProviders() []string {
	return r.providersWhere(false)
}

func (r *Report) providersWhere(success bool) []string {
	names := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		if a.Outcome.Success == success {
			names = append(names, a.Provider)
		}
	}
	return names
}

// MarshalJSON adds the derived provider lists and the elapsed time in
// milliseconds.
func (r *Report) MarshalJSON() ([]byte, error) {
	type plain Report
	attempts := r.Attempts
	if attempts == nil {
		attempts = []Attempt{}
	}
	p := plain(*r)
	p.Attempts = attempts
	return json.Marshal(struct {
		plain
		SuccessfulProviders []string `json:"successful_providers"`
		FailedProviders     []string `json:"failed_providers"`
		ElapsedMS           int64    `json:"elapsed_ms"`
	}{
		plain:               p,
		SuccessfulProviders: r.SuccessfulProviders(),
		FailedProviders:     r.FailedProviders(),
		ElapsedMS:           r.Elapsed.Milliseconds(),
	})
}

// BulkSummary counts the outcome of a bulk delivery.
type BulkSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summarize computes a BulkSummary over reports.
func Summarize(reports []*Report) BulkSummary {
	s := BulkSummary{Total: len(reports)}
	for _, r := range reports {
		if r != nil && r.Success {
			s.Succeeded++
		}
	}
	s.Failed = s.Total - s.Succeeded
	return s
}

// SendRequest is the API request payload for a single synchronous delivery.
type SendRequest struct {
	Recipient   *Recipient    `json:"recipient"`
	RecipientID string        `json:"recipient_id"`
	Message     Message       `json:"message"`
	Policy      *PolicyParams `json:"policy"`
}

// BulkSendRequest is the API request payload for a bulk delivery. It is also
// the queue task payload for asynchronous deliveries.
type BulkSendRequest struct {
	Recipients     []Recipient   `json:"recipients,omitempty"`
	RecipientIDs   []string      `json:"recipient_ids,omitempty"`
	Message        Message       `json:"message"`
	Policy         *PolicyParams `json:"policy,omitempty"`
	MaxConcurrent  int           `json:"max_concurrent,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// BulkResponse is returned by a synchronous bulk delivery.
type BulkResponse struct {
	Summary BulkSummary `json:"summary"`
	Reports []*Report   `json:"reports"`
}

// EnqueueResponse is returned after an asynchronous delivery is queued.
type EnqueueResponse struct {
	TaskID         string `json:"task_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Recipients     int    `json:"recipients"`
	Duplicate      bool   `json:"duplicate"`
}
