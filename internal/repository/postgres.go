// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/lombard-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrLoanNotFound возвращается, если займ не найден в рамках магазина.
var (
	ErrLoanNotFound = errors.New("loan not found")
	// ErrLoanAlreadyClosed возвращается при попытке закрыть уже закрытый займ.
	ErrLoanAlreadyClosed = errors.New("loan already closed")
)

// PostgresRepository предоставляет доступ к хранилищу займов в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlock;
		// переподключением занимается сам pgxpool.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Денежные суммы хранятся в пайсах, вес — в миллиграммах, ставка — в базисных
// пунктах. Десятичные значения конвертируются только на границе репозитория.
func toPaise(d decimal.Decimal) int64 { return d.Round(2).Shift(2).IntPart() }

func fromPaise(v int64) decimal.Decimal { return decimal.New(v, -2) }

func toMilligrams(d decimal.Decimal) int64 { return d.Round(3).Shift(3).IntPart() }

func fromMilligrams(v int64) decimal.Decimal { return decimal.New(v, -3) }

func toBasisPoints(d decimal.Decimal) int64 { return d.Round(2).Shift(2).IntPart() }

func fromBasisPoints(v int64) decimal.Decimal { return decimal.New(v, -2) }

const loanColumns = `id, shop_id, customer_id, ornament_type, gross_weight_mg, stone_weight_mg,
	 purity, gold_rate_paise, principal_paise, interest_rate_bp, tenure_months,
	 start_date, due_date, status, closed_at, created_at`

func scanLoan(row pgx.Row) (*model.Loan, error) {
	var (
		l          model.Loan
		grossMg    int64
		stoneMg    int64
		ratePaise  int64
		principal  int64
		interestBp int64
		status     string
	)
	err := row.Scan(&l.ID, &l.ShopID, &l.CustomerID, &l.OrnamentType, &grossMg, &stoneMg,
		&l.Purity, &ratePaise, &principal, &interestBp, &l.TenureMonths,
		&l.StartDate, &l.DueDate, &status, &l.ClosedAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	l.GrossWeightGrams = fromMilligrams(grossMg)
	l.StoneWeightGrams = fromMilligrams(stoneMg)
	l.GoldRatePerGram = fromPaise(ratePaise)
	l.PrincipalAmount = fromPaise(principal)
	l.InterestRatePercent = fromBasisPoints(interestBp)
	l.Status = model.LoanStatus(status)

	return &l, nil
}

// CreateLoan сохраняет проверенную заявку и возвращает созданный займ.
func (r *PostgresRepository) CreateLoan(ctx context.Context, shopID int64, req model.ValidatedLoanRequest, dueDate time.Time) (*model.Loan, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO loans (shop_id, customer_id, ornament_type, gross_weight_mg, stone_weight_mg,
		                    purity, gold_rate_paise, principal_paise, interest_rate_bp, tenure_months,
		                    start_date, due_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+loanColumns,
		shopID, req.CustomerID, req.OrnamentType,
		toMilligrams(req.GrossWeightGrams), toMilligrams(req.StoneWeightGrams),
		req.Purity, toPaise(req.GoldRatePerGram), toPaise(req.PrincipalAmount),
		toBasisPoints(req.InterestRatePercent), req.TenureMonths,
		req.StartDate, dueDate, string(model.LoanStatusActive),
	)

	loan, err := scanLoan(row)
	if err != nil {
		return nil, fmt.Errorf("insert loan: %w", err)
	}
	return loan, nil
}

// GetLoansByShop возвращает займы магазина, при необходимости фильтруя по статусу.
func (r *PostgresRepository) GetLoansByShop(ctx context.Context, shopID int64, status string) ([]model.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE shop_id = $1 ORDER BY created_at DESC`
	args := []any{shopID}
	if status != "" {
		query = `SELECT ` + loanColumns + ` FROM loans WHERE shop_id = $1 AND status = $2 ORDER BY created_at DESC`
		args = append(args, status)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// GetLoanByID возвращает займ по идентификатору в рамках магазина. Займы чужих
// магазинов неотличимы от несуществующих.
func (r *PostgresRepository) GetLoanByID(ctx context.Context, shopID, loanID int64) (*model.Loan, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE shop_id = $1 AND id = $2`,
		shopID, loanID,
	)

	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("select loan: %w", err)
	}
	return loan, nil
}

// GetLoansByCustomer возвращает займы одного клиента в рамках магазина.
func (r *PostgresRepository) GetLoansByCustomer(ctx context.Context, shopID, customerID int64) ([]model.Loan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE shop_id = $1 AND customer_id = $2 ORDER BY created_at DESC`,
		shopID, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select customer loans: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// GetOverdueLoans возвращает незакрытые займы магазина с истёкшим сроком.
func (r *PostgresRepository) GetOverdueLoans(ctx context.Context, shopID int64, now time.Time) ([]model.Loan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+loanColumns+` FROM loans
		 WHERE shop_id = $1
		   AND (status = $2 OR (status = $3 AND due_date < $4))
		 ORDER BY due_date`,
		shopID, string(model.LoanStatusOverdue), string(model.LoanStatusActive), now,
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue loans: %w", err)
	}
	defer rows.Close()

	return collectLoans(rows)
}

// CloseLoan переводит займ в статус CLOSED. Строка займа блокируется на время
// транзакции, чтобы исключить параллельное двойное закрытие.
func (r *PostgresRepository) CloseLoan(ctx context.Context, shopID, loanID int64, closedAt time.Time) (*model.Loan, error) {
	var loan *model.Loan

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var status string
		err = tx.QueryRow(ctx,
			`SELECT status FROM loans WHERE shop_id = $1 AND id = $2 FOR UPDATE`,
			shopID, loanID,
		).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrLoanNotFound
			}
			return fmt.Errorf("lock loan: %w", err)
		}

		if model.LoanStatus(status) == model.LoanStatusClosed {
			return ErrLoanAlreadyClosed
		}

		row := tx.QueryRow(ctx,
			`UPDATE loans SET status = $3, closed_at = $4
			 WHERE shop_id = $1 AND id = $2
			 RETURNING `+loanColumns,
			shopID, loanID, string(model.LoanStatusClosed), closedAt,
		)

		loan, err = scanLoan(row)
		if err != nil {
			return fmt.Errorf("close loan: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return loan, nil
}

// MarkOverdueLoans помечает активные займы с истёкшим сроком как просроченные
// и возвращает количество обновлённых строк.
func (r *PostgresRepository) MarkOverdueLoans(ctx context.Context, now time.Time) (int64, error) {
	var updated int64

	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE loans SET status = $1 WHERE status = $2 AND due_date < $3`,
			string(model.LoanStatusOverdue), string(model.LoanStatusActive), now,
		)
		if err != nil {
			return fmt.Errorf("mark overdue: %w", err)
		}
		updated = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}

func collectLoans(rows pgx.Rows) ([]model.Loan, error) {
	var loans []model.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, *loan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return loans, nil
}
