package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/repository/live"
	"go-candidate-tracker/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const candidateColumns = `id, first_name, last_name, phone_number, email, birth_date,
	expected_salary, notes, is_favorite, photo_uri`

type candidateRepository struct {
	db  *pgxpool.Pool
	hub *live.Hub[[]domain.Candidate]
	log *slog.Logger

	// writeMu serialises writes with snapshot publication so subscribers
	// observe snapshots in commit order.
	writeMu sync.Mutex
}

func NewCandidateRepository(db *pgxpool.Pool) domain.CandidateStore {
	return &candidateRepository{
		db:  db,
		hub: live.NewHub[[]domain.Candidate](),
		log: logger.Component("candidate_repository"),
	}
}

func (r *candidateRepository) Upsert(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if c.IsNew() {
		query := `
			INSERT INTO candidates (first_name, last_name, phone_number, email, birth_date,
				expected_salary, notes, is_favorite, photo_uri, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			RETURNING id`
		err := r.db.QueryRow(ctx, query,
			c.FirstName, c.LastName, c.PhoneNumber, c.Email, c.BirthDate,
			c.ExpectedSalary, c.Notes, c.IsFavorite, c.PhotoURI,
		).Scan(&c.ID)
		if err != nil {
			return domain.Candidate{}, storageError("insert candidate", err)
		}
	} else {
		if err := r.upsertWithID(ctx, c); err != nil {
			return domain.Candidate{}, err
		}
	}

	r.publishLocked(ctx)
	return c, nil
}

// upsertWithID overwrites the row for c.ID, inserting it when missing, and
// keeps the id sequence ahead of explicitly supplied ids.
func (r *candidateRepository) upsertWithID(ctx context.Context, c domain.Candidate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return storageError("begin upsert", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO candidates (id, first_name, last_name, phone_number, email, birth_date,
			expected_salary, notes, is_favorite, photo_uri, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone_number = EXCLUDED.phone_number,
			email = EXCLUDED.email,
			birth_date = EXCLUDED.birth_date,
			expected_salary = EXCLUDED.expected_salary,
			notes = EXCLUDED.notes,
			is_favorite = EXCLUDED.is_favorite,
			photo_uri = EXCLUDED.photo_uri,
			updated_at = NOW()`
	_, err = tx.Exec(ctx, query,
		c.ID, c.FirstName, c.LastName, c.PhoneNumber, c.Email, c.BirthDate,
		c.ExpectedSalary, c.Notes, c.IsFavorite, c.PhotoURI,
	)
	if err != nil {
		return storageError("upsert candidate", err)
	}

	seq := `SELECT setval(pg_get_serial_sequence('candidates', 'id'),
		GREATEST((SELECT MAX(id) FROM candidates), 1))`
	if _, err := tx.Exec(ctx, seq); err != nil {
		return storageError("advance candidate sequence", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageError("commit upsert", err)
	}
	return nil
}

func (r *candidateRepository) GetByID(ctx context.Context, id int64) (*domain.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id = $1`

	c, err := scanCandidate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("get candidate", err)
	}
	return &c, nil
}

func (r *candidateRepository) StreamAll(ctx context.Context) (<-chan []domain.Candidate, error) {
	if err := r.prime(ctx); err != nil {
		return nil, err
	}
	return r.hub.Subscribe(ctx, nil), nil
}

func (r *candidateRepository) StreamFavorites(ctx context.Context) (<-chan []domain.Candidate, error) {
	if err := r.prime(ctx); err != nil {
		return nil, err
	}
	return r.hub.Subscribe(ctx, onlyFavorites), nil
}

func (r *candidateRepository) SetFavorite(ctx context.Context, id int64, value bool) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tag, err := r.db.Exec(ctx,
		`UPDATE candidates SET is_favorite = $1, updated_at = NOW() WHERE id = $2`, value, id)
	if err != nil {
		return storageError("set favorite", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	r.publishLocked(ctx)
	return nil
}

func (r *candidateRepository) Delete(ctx context.Context, c domain.Candidate) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tag, err := r.db.Exec(ctx, `DELETE FROM candidates WHERE id = $1`, c.ID)
	if err != nil {
		return storageError("delete candidate", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	r.publishLocked(ctx)
	return nil
}

// prime loads the first snapshot so a new subscriber always starts from the
// current list.
func (r *candidateRepository) prime(ctx context.Context) error {
	if r.hub.Primed() {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.hub.Primed() {
		return nil
	}

	list, err := r.listAll(ctx)
	if err != nil {
		return err
	}
	r.hub.Publish(list)
	return nil
}

// publishLocked must be called with writeMu held, after the write committed.
func (r *candidateRepository) publishLocked(ctx context.Context) {
	// The snapshot is read detached from the caller so a cancelled request
	// still lets subscribers see its committed write.
	list, err := r.listAll(context.WithoutCancel(ctx))
	if err != nil {
		r.log.Warn("Failed to load candidate snapshot", "error", err)
		return
	}
	r.hub.Publish(list)
}

func (r *candidateRepository) listAll(ctx context.Context) ([]domain.Candidate, error) {
	rows, err := r.db.Query(ctx, `SELECT `+candidateColumns+` FROM candidates ORDER BY id`)
	if err != nil {
		return nil, storageError("list candidates", err)
	}
	defer rows.Close()

	list := []domain.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, storageError("scan candidate", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate candidates", err)
	}
	return list, nil
}

func scanCandidate(row pgx.Row) (domain.Candidate, error) {
	var c domain.Candidate
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.PhoneNumber, &c.Email, &c.BirthDate,
		&c.ExpectedSalary, &c.Notes, &c.IsFavorite, &c.PhotoURI,
	)
	return c, err
}

func onlyFavorites(in []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(in))
	for _, c := range in {
		if c.IsFavorite {
			out = append(out, c)
		}
	}
	return out
}

func storageError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s: %s (sqlstate %s)", domain.ErrStorage, op, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}
