package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/models"
)

// ErrVenueNotFound is returned by GetVenue for an unknown id.
var ErrVenueNotFound = errors.New("venue not found")

const (
	listVenuesQuery = `SELECT id, name, fee_rate::text, gas_per_swap, enabled FROM venues ORDER BY id`
	getVenueQuery   = `SELECT id, name, fee_rate::text, gas_per_swap, enabled FROM venues WHERE id = $1`
	setEnabledQuery = `UPDATE venues SET enabled = $2, updated_at = NOW() WHERE id = $1`
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// VenueRepository reads the venue registry from the venues table. It serves
// as the engine's VenueRegistry.
type VenueRepository struct {
	pool   DatabasePool
	logger *logrus.Logger
}

func NewVenueRepository(pool DatabasePool, logger *logrus.Logger) *VenueRepository {
	if logger == nil {
		logger = logrus.New()
	}
	return &VenueRepository{pool: pool, logger: logger}
}

// ListVenues returns every venue, enabled or not, ordered by id.
func (r *VenueRepository) ListVenues(ctx context.Context) ([]models.Venue, error) {
	rows, err := r.pool.Query(ctx, listVenuesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query venues: %w", err)
	}
	defer rows.Close()

	var venues []models.Venue
	for rows.Next() {
		venue, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, venue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate venues: %w", err)
	}

	r.logger.WithField("count", len(venues)).Debug("Loaded venues")
	return venues, nil
}

// GetVenue returns one venue by id.
func (r *VenueRepository) GetVenue(ctx context.Context, id string) (models.Venue, error) {
	venue, err := scanVenue(r.pool.QueryRow(ctx, getVenueQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Venue{}, fmt.Errorf("%w: %s", ErrVenueNotFound, id)
	}
	return venue, err
}

// SetEnabled toggles a venue in or out of route search.
func (r *VenueRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := r.pool.Exec(ctx, setEnabledQuery, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to update venue %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrVenueNotFound, id)
	}
	r.logger.WithFields(logrus.Fields{
		"venue":   id,
		"enabled": enabled,
	}).Info("Venue availability changed")
	return nil
}

func scanVenue(row pgx.Row) (models.Venue, error) {
	var (
		venue   models.Venue
		feeRate string
		gas     int64
	)
	if err := row.Scan(&venue.ID, &venue.Name, &feeRate, &gas, &venue.Enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Venue{}, err
		}
		return models.Venue{}, fmt.Errorf("failed to scan venue: %w", err)
	}

	rate, err := decimal.NewFromString(feeRate)
	if err != nil {
		return models.Venue{}, fmt.Errorf("venue %s has invalid fee rate %q: %w", venue.ID, feeRate, err)
	}
	if gas < 0 {
		return models.Venue{}, fmt.Errorf("venue %s has negative gas per swap %d", venue.ID, gas)
	}
	venue.FeeRate = rate
	venue.GasPerSwap = uint64(gas)
	return venue, nil
}
