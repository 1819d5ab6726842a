package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"courier/internal/common"
	"courier/internal/domain/notification"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const tableName = "recipients"

// maxLookupIDs bounds a single directory query. Larger lookups are split
// into several requests.
const maxLookupIDs = 100

var _ notification.RecipientDirectory = (*SupabaseDirectory)(nil)

// SupabaseDirectory implements RecipientDirectory using the Supabase Go SDK.
type SupabaseDirectory struct {
	client *supa.Client
}

// NewSupabaseDirectory creates a new Supabase-backed recipient directory.
func NewSupabaseDirectory(supabaseURL, serviceKey string) (*SupabaseDirectory, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseDirectory{client: client}, nil
}

// recipientRow is the PostgREST representation of a recipient.
type recipientRow struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	TelegramChatID *string `json:"telegram_chat_id"`
}

// Lookup fetches the recipients for ids and returns them in the same order.
// Duplicate ids yield duplicate recipients. Any unknown id fails the whole
// lookup with a NotFoundError.
func (d *SupabaseDirectory) Lookup(ctx context.Context, ids []string) ([]notification.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byID := make(map[string]notification.Recipient, len(ids))
	unique := uniqueIDs(ids)

	for start := 0; start < len(unique); start += maxLookupIDs {
		end := min(start+maxLookupIDs, len(unique))
		rows, err := d.fetch(unique[start:end])
		if err != nil {
			return nil, err
		}
		for i := range rows {
			byID[rows[i].ID] = rowToRecipient(&rows[i])
		}
	}

	recipients := make([]notification.Recipient, 0, len(ids))
	var missing []string
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		recipients = append(recipients, r)
	}
	if len(missing) > 0 {
		return nil, common.NewNotFoundError("recipient", strings.Join(missing, ","))
	}

	return recipients, nil
}

func (d *SupabaseDirectory) fetch(ids []string) ([]recipientRow, error) {
	data, _, err := d.client.From(tableName).
		Select("id,name,email,phone,telegram_chat_id", "exact", false).
		In("id", ids).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching recipients: %w", err)
	}

	var rows []recipientRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing recipients: %w", err)
	}
	return rows, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// rowToRecipient converts a recipientRow to a Recipient.
func rowToRecipient(row *recipientRow) notification.Recipient {
	r := notification.Recipient{
		ID:   row.ID,
		Name: row.Name,
	}
	if row.Email != nil {
		r.Email = *row.Email
	}
	if row.Phone != nil {
		r.Phone = *row.Phone
	}
	if row.TelegramChatID != nil {
		r.TelegramChatID = *row.TelegramChatID
	}
	return r
}
