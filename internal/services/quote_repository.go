package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/pkg/models"
)

// DatabaseQuerier is the subset of pgxpool.Pool the repositories depend on,
// satisfied by pgxmock in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const quoteColumns = `id, origin_city, origin_state, origin_country,
		destination_city, destination_state, destination_country,
		service_type, cargo_description, cargo_weight, weight_unit, pieces,
		hazmat, container_type, final_agreed_price, initial_quote_amount,
		created_at, updated_at`

// HistoricalQuoteOptions filters the candidate pool fetch.
type HistoricalQuoteOptions struct {
	Limit         int
	OnlyWithPrice bool
}

type QuoteRepository struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewQuoteRepository(db DatabaseQuerier, logger *logrus.Logger) *QuoteRepository {
	return &QuoteRepository{db: db, logger: logger}
}

// GetQuoteForMatching returns the quote, or nil when no quote with that id
// exists.
func (r *QuoteRepository) GetQuoteForMatching(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`

	quote, err := scanQuote(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quote %s: %w", id, err)
	}

	return quote, nil
}

// GetHistoricalQuotesForMatching returns the candidate pool for scoring,
// newest first. Excluded ids (typically the query quotes themselves) never
// appear in the result.
func (r *QuoteRepository) GetHistoricalQuotesForMatching(ctx context.Context, excludeIDs []uuid.UUID, opts HistoricalQuoteOptions) ([]*models.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE 1=1`

	args := []interface{}{}
	argCount := 0

	if len(excludeIDs) > 0 {
		argCount++
		query += fmt.Sprintf(" AND id != ALL($%d)", argCount)
		args = append(args, excludeIDs)
	}

	if opts.OnlyWithPrice {
		query += " AND (final_agreed_price > 0 OR initial_quote_amount > 0)"
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		argCount++
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, opts.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*models.Quote
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, quote)
	}

	return quotes, rows.Err()
}

func scanQuote(row rowScanner) (*models.Quote, error) {
	var quote models.Quote
	err := row.Scan(
		&quote.ID,
		&quote.OriginCity,
		&quote.OriginState,
		&quote.OriginCountry,
		&quote.DestinationCity,
		&quote.DestinationState,
		&quote.DestinationCountry,
		&quote.ServiceType,
		&quote.CargoDescription,
		&quote.CargoWeight,
		&quote.WeightUnit,
		&quote.Pieces,
		&quote.Hazmat,
		&quote.ContainerType,
		&quote.FinalAgreedPrice,
		&quote.InitialQuoteAmount,
		&quote.CreatedAt,
		&quote.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}
