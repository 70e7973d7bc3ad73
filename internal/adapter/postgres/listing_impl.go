package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// dimensionColumns maps each dimension table to its foreign key on listings.
var dimensionColumns = map[entity.DimensionKind]string{
	entity.DimensionSource:       "source_id",
	entity.DimensionTransaction:  "transaction_id",
	entity.DimensionPropertyType: "property_type_id",
	entity.DimensionCity:         "city_id",
	entity.DimensionNeighborhood: "neighborhood_id",
	entity.DimensionHeating:      "heating_id",
	entity.DimensionKitchen:      "kitchen_id",
}

// ListingRepoImpl provides a concrete implementation for the ListingRepository interface using PostgreSQL.
type ListingRepoImpl struct {
	db *pgxpool.Pool
}

// NewListingRepo creates a new instance of ListingRepoImpl.
func NewListingRepo(db *pgxpool.Pool) *ListingRepoImpl {
	return &ListingRepoImpl{db: db}
}

// Migrate creates the listing and dimension tables when missing.
func (r *ListingRepoImpl) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *ListingRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

const selectListing = `
	SELECT id, created_at, data,
		source_id, transaction_id, property_type_id, city_id, neighborhood_id, heating_id, kitchen_id
	FROM listings
`

func (r *ListingRepoImpl) FindListing(ctx context.Context, source, externalID, url string) (*entity.StoredListing, error) {
	var row pgx.Row
	if externalID != "" {
		row = r.db.QueryRow(ctx, selectListing+`WHERE source = $1 AND external_id = $2`, source, externalID)
	} else {
		row = r.db.QueryRow(ctx, selectListing+`WHERE source = $1 AND url = $2 ORDER BY id LIMIT 1`, source, url)
	}

	stored, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return stored, err
}

// GetOrCreateDimension inserts the name unless present. Concurrent callers
// racing on the same name all receive the id of the single row.
func (r *ListingRepoImpl) GetOrCreateDimension(ctx context.Context, kind entity.DimensionKind, name string) (int64, error) {
	if _, ok := dimensionColumns[kind]; !ok {
		return 0, fmt.Errorf("unknown dimension %q", kind)
	}

	var id int64
	insert := fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`, kind)
	err := r.db.QueryRow(ctx, insert, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = r.db.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE name = $1`, kind), name).Scan(&id)
	return id, err
}

func (r *ListingRepoImpl) CreateListing(ctx context.Context, listing *entity.ExtractedListing, dims entity.DimensionIDs) (*entity.StoredListing, error) {
	data, err := json.Marshal(listing)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO listings (source, external_id, url, price, currency, data,
			source_id, transaction_id, property_type_id, city_id, neighborhood_id, heating_id, kitchen_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at;
	`
	stored := &entity.StoredListing{ExtractedListing: *listing, Dimensions: dims}
	err = r.db.QueryRow(ctx, query,
		listing.Source,
		listing.ExternalID,
		listing.URL,
		listing.Price,
		listing.Currency,
		data,
		dimensionID(dims, entity.DimensionSource),
		dimensionID(dims, entity.DimensionTransaction),
		dimensionID(dims, entity.DimensionPropertyType),
		dimensionID(dims, entity.DimensionCity),
		dimensionID(dims, entity.DimensionNeighborhood),
		dimensionID(dims, entity.DimensionHeating),
		dimensionID(dims, entity.DimensionKitchen),
	).Scan(&stored.ID, &stored.CreatedAt)
	if isUniqueViolation(err) {
		return nil, entity.ErrPersistenceConflict
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *ListingRepoImpl) ListKeys(ctx context.Context, source string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT url, external_id FROM listings WHERE source = $1`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var url, externalID string
		if err := rows.Scan(&url, &externalID); err != nil {
			return nil, err
		}
		if url != "" {
			keys = append(keys, url)
		}
		if externalID != "" {
			keys = append(keys, externalID)
		}
	}
	return keys, rows.Err()
}

// scanListing reads a row of selectListing. Dimension columns follow entity.DimensionKinds.
func scanListing(row pgx.Row) (*entity.StoredListing, error) {
	var (
		stored entity.StoredListing
		data   []byte
	)
	ids := make([]*int64, len(entity.DimensionKinds))
	dest := []any{&stored.ID, &stored.CreatedAt, &data}
	for i := range ids {
		dest = append(dest, &ids[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &stored.ExtractedListing); err != nil {
		return nil, fmt.Errorf("decode listing %d: %w", stored.ID, err)
	}
	stored.Dimensions = entity.DimensionIDs{}
	for i, kind := range entity.DimensionKinds {
		if ids[i] != nil {
			stored.Dimensions[kind] = *ids[i]
		}
	}
	return &stored, nil
}

func dimensionID(dims entity.DimensionIDs, kind entity.DimensionKind) *int64 {
	id, ok := dims[kind]
	if !ok {
		return nil
	}
	return &id
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation
}
