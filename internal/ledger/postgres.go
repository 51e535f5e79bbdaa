package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
)

// pgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists holders and bank accounts in the ledger's own schema.
// Row locks (SELECT ... FOR UPDATE) serialize concurrent mutations per account.
type PostgresStore struct {
	db pgxPool
}

func NewPostgresStore(db pgxPool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateHolder(ctx context.Context, holder *models.Holder, account *models.BankAccount) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create holder: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO holders (id, login, name, created_at) VALUES ($1, $2, $3, NOW()) RETURNING created_at`,
		holder.ID, holder.Login, holder.Name,
	).Scan(&holder.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert holder: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO bank_accounts (id, holder_id, account_number, currency, balance, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		account.ID, account.HolderID, account.AccountNumber, account.Currency, account.Balance,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bank account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create holder: %w", err)
	}
	return nil
}

func (s *PostgresStore) HolderByLogin(ctx context.Context, login string) (*models.Holder, error) {
	holder := &models.Holder{}
	err := s.db.QueryRow(ctx,
		`SELECT id, login, name, created_at FROM holders WHERE login = $1`, login,
	).Scan(&holder.ID, &holder.Login, &holder.Name, &holder.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("select holder: %w", err)
	}
	return holder, nil
}

func (s *PostgresStore) AccountsByLogin(ctx context.Context, login string) ([]models.BankAccount, error) {
	rows, err := s.db.Query(ctx,
		`SELECT b.id, b.holder_id, b.account_number, b.currency, b.balance, b.version, b.created_at, b.updated_at
		 FROM bank_accounts b
		 JOIN holders h ON h.id = b.holder_id
		 WHERE h.login = $1
		 ORDER BY b.created_at`, login)
	if err != nil {
		return nil, fmt.Errorf("select bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.BankAccount
	for rows.Next() {
		var acct models.BankAccount
		if err := rows.Scan(&acct.ID, &acct.HolderID, &acct.AccountNumber, &acct.Currency,
			&acct.Balance, &acct.Version, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bank account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank accounts: %w", err)
	}
	return accounts, nil
}

func (s *PostgresStore) Mutate(ctx context.Context, ref AccountRef, apply func(acct *models.BankAccount) error) (*models.BankAccount, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin mutate: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := lockAccount(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	if err := apply(acct); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx,
		`UPDATE bank_accounts SET balance = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING version, updated_at`,
		acct.Balance, acct.ID,
	).Scan(&acct.Version, &acct.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update bank account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit mutate: %w", err)
	}
	return acct, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, ref AccountRef) (*models.BankAccount, error) {
	var row pgx.Row
	if ref.AccountID != nil {
		row = tx.QueryRow(ctx,
			`SELECT id, holder_id, account_number, currency, balance, version, created_at, updated_at
			 FROM bank_accounts WHERE id = $1 FOR UPDATE`, *ref.AccountID)
	} else {
		// Primary account is the oldest one; a policy, not a schema guarantee.
		row = tx.QueryRow(ctx,
			`SELECT b.id, b.holder_id, b.account_number, b.currency, b.balance, b.version, b.created_at, b.updated_at
			 FROM bank_accounts b
			 JOIN holders h ON h.id = b.holder_id
			 WHERE h.login = $1
			 ORDER BY b.created_at
			 LIMIT 1
			 FOR UPDATE OF b`, ref.Login)
	}

	acct := &models.BankAccount{}
	err := row.Scan(&acct.ID, &acct.HolderID, &acct.AccountNumber, &acct.Currency,
		&acct.Balance, &acct.Version, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock bank account: %w", err)
	}
	return acct, nil
}
