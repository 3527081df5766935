package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/property-catalog/internal/models"
)

// LeadStore persists enquiries.
type LeadStore struct {
	pool *pgxpool.Pool
}

func NewLeadStore(pool *pgxpool.Pool) *LeadStore {
	return &LeadStore{pool: pool}
}

// InsertLead stores a validated lead and fills in its id and creation time.
func (s *LeadStore) InsertLead(ctx context.Context, lead *models.Lead) error {
	if err := lead.Validate(); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO leads (name, phone, email, category, property_id, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`,
		lead.Name,
		lead.Phone,
		nullable(lead.Email),
		nullable(string(lead.Category)),
		nullable(lead.PropertyID),
		nullable(lead.Message),
	).Scan(&lead.ID, &lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// RecentLeads returns the newest leads first.
func (s *LeadStore) RecentLeads(ctx context.Context, limit int) ([]models.Lead, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, phone, COALESCE(email, ''), COALESCE(category, ''),
		       COALESCE(property_id, ''), COALESCE(message, ''), created_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	leads := []models.Lead{}
	for rows.Next() {
		var l models.Lead
		var category string
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &category, &l.PropertyID, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		l.Category = models.Category(category)
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// LeadCounts returns the number of leads per category since the given time.
// Leads without a category are counted under "".
func (s *LeadStore) LeadCounts(ctx context.Context, since time.Time) (map[models.Category]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(category, ''), COUNT(*)
		FROM leads
		WHERE created_at >= $1
		GROUP BY 1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Category]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scan lead count: %w", err)
		}
		counts[models.Category(category)] = n
	}
	return counts, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
