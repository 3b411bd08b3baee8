package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account_service/internal/config"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*Storage, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := migrate(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to apply migrations: %w", op, err)
	}

	return &Storage{pool: pool}, nil
}

// Accounts returns a repository bound to one account namespace. Admin
// and staff repos share the pool and differ only in table names.
func (s *Storage) Accounts(kind models.Kind) *AccountRepo {
	return &AccountRepo{pool: s.pool, kind: kind}
}

func (s *Storage) Close() {
	s.pool.Close()
}

type AccountRepo struct {
	pool *pgxpool.Pool
	kind models.Kind
}

// SaveAccount inserts the account together with its verification code
// in one transaction, so a crash cannot leave an account with no code.
func (r *AccountRepo) SaveAccount(ctx context.Context, acc models.Account, codeID, code string) (models.Account, error) {
	const op = "storage.postgres.SaveAccount"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: failed to begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx)

	accountQuery := fmt.Sprintf(`
		INSERT INTO %s (id, email, username, password_hash, is_verified, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, now(), now())
		RETURNING created_at, updated_at;
	`, r.kind.AccountsTable)

	err = tx.QueryRow(ctx, accountQuery,
		acc.ID, acc.Email, acc.Username, string(acc.PassHash), acc.Roles,
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.Account{}, storage.ErrAccountExists
		}

		return models.Account{}, fmt.Errorf("%s: failed to save account: %w", op, err)
	}

	codeQuery := fmt.Sprintf(`
		INSERT INTO %s (id, account_id, code, created_at)
		VALUES ($1, $2, $3, now());
	`, r.kind.CodesTable)

	if _, err := tx.Exec(ctx, codeQuery, codeID, acc.ID, code); err != nil {
		return models.Account{}, fmt.Errorf("%s: failed to save access code: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Account{}, fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return acc, nil
}

func (r *AccountRepo) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	query := fmt.Sprintf(`
		SELECT id, email, username, password_hash, is_verified, roles, created_at, updated_at
		FROM %s
		WHERE email = $1;
	`, r.kind.AccountsTable)

	return r.scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepo) AccountByID(ctx context.Context, id string) (models.Account, error) {
	query := fmt.Sprintf(`
		SELECT id, email, username, password_hash, is_verified, roles, created_at, updated_at
		FROM %s
		WHERE id = $1;
	`, r.kind.AccountsTable)

	return r.scanAccount(r.pool.QueryRow(ctx, query, id))
}

// ConsumeAccessCode redeems the code matching both account id and code:
// the row is deleted and the account flipped to verified in one
// transaction, making redemption at-most-once. A missing or stale row
// yields ErrCodeNotFound and no state change.
func (r *AccountRepo) ConsumeAccessCode(ctx context.Context, accountID, code string, maxAge time.Duration) error {
	const op = "storage.postgres.ConsumeAccessCode"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx)

	deleteQuery := fmt.Sprintf(`
		DELETE FROM %s
		WHERE account_id = $1 AND code = $2
		RETURNING id;
	`, r.kind.CodesTable)
	args := []any{accountID, code}

	if maxAge > 0 {
		deleteQuery = fmt.Sprintf(`
			DELETE FROM %s
			WHERE account_id = $1 AND code = $2
			  AND created_at > now() - ($3 * interval '1 second')
			RETURNING id;
		`, r.kind.CodesTable)
		args = append(args, maxAge.Seconds())
	}

	var codeID string
	if err := tx.QueryRow(ctx, deleteQuery, args...).Scan(&codeID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrCodeNotFound
		}

		return fmt.Errorf("%s: failed to consume code: %w", op, err)
	}

	updateQuery := fmt.Sprintf(`
		UPDATE %s SET is_verified = TRUE, updated_at = now() WHERE id = $1;
	`, r.kind.AccountsTable)

	if _, err := tx.Exec(ctx, updateQuery, accountID); err != nil {
		return fmt.Errorf("%s: failed to mark account verified: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return nil
}

func (r *AccountRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1);`, r.kind.AccountsTable)

	return r.exists(ctx, query, id)
}

func (r *AccountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE email = $1);`, r.kind.AccountsTable)

	return r.exists(ctx, query, email)
}

func (r *AccountRepo) exists(ctx context.Context, query string, arg any) (bool, error) {
	const op = "storage.postgres.exists"

	var exists bool
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func (r *AccountRepo) scanAccount(row pgx.Row) (models.Account, error) {
	var (
		a        models.Account
		passHash string
	)

	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Username,
		&passHash,
		&a.Verified,
		&a.Roles,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, err
	}

	a.PassHash = []byte(passHash)

	return a, nil
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
