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
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/zapshift-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrParcelNotFound возвращается, если посылка не найдена.
var (
	ErrParcelNotFound = errors.New("parcel not found")
	// ErrDuplicateTransaction возвращается при повторной записи оплаты
	// с уже существующим идентификатором транзакции.
	ErrDuplicateTransaction = errors.New("transaction already recorded")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
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

// withRetry повторяет операцию при временных ошибках БД:
// сериализация, дедлоки и обрывы соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateParcel сохраняет новую посылку.
func (r *PostgresRepository) CreateParcel(ctx context.Context, p *model.Parcel) error {
	return r.withRetry(ctx, func() error {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO parcels (id, name, sender_email, cost, payment_status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at`,
			p.ID, p.Name, p.SenderEmail, p.CostCents, string(p.PaymentStatus),
		).Scan(&p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert parcel: %w", err)
		}
		return nil
	})
}

// GetParcelByID возвращает посылку по идентификатору.
func (r *PostgresRepository) GetParcelByID(ctx context.Context, id string) (*model.Parcel, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, sender_email, cost, payment_status, tracking_id, created_at
		 FROM parcels WHERE id = $1`,
		id,
	)

	var p model.Parcel
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.SenderEmail, &p.CostCents, &status, &p.TrackingID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParcelNotFound
		}
		return nil, fmt.Errorf("get parcel: %w", err)
	}
	p.PaymentStatus = model.ParcelStatus(status)

	return &p, nil
}

// ListParcels возвращает посылки в порядке добавления.
// Непустой senderEmail ограничивает выборку точным совпадением отправителя.
func (r *PostgresRepository) ListParcels(ctx context.Context, senderEmail string) ([]model.Parcel, error) {
	query := `SELECT id, name, sender_email, cost, payment_status, tracking_id, created_at
		 FROM parcels`
	args := []any{}
	if senderEmail != "" {
		query += ` WHERE sender_email = $1`
		args = append(args, senderEmail)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select parcels: %w", err)
	}
	defer rows.Close()

	var parcels []model.Parcel
	for rows.Next() {
		var p model.Parcel
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.SenderEmail, &p.CostCents, &status, &p.TrackingID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan parcel: %w", err)
		}
		p.PaymentStatus = model.ParcelStatus(status)
		parcels = append(parcels, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return parcels, nil
}

// DeleteParcel удаляет посылку и возвращает число удалённых записей.
// Ноль для несуществующего идентификатора не считается ошибкой.
func (r *PostgresRepository) DeleteParcel(ctx context.Context, id string) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM parcels WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete parcel: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// ConfirmPayment записывает оплату и помечает посылку оплаченной в одной транзакции.
// Вставка с ON CONFLICT DO NOTHING служит барьером от дублей: ноль вставленных
// строк означает, что транзакция провайдера уже была записана, и возвращается
// ErrDuplicateTransaction без дальнейших изменений. Обновление посылки условное,
// поэтому посылка переходит в статус paid не более одного раза.
func (r *PostgresRepository) ConfirmPayment(ctx context.Context, payment *model.PaymentRecord, trackingID string) (int64, error) {
	var parcelsUpdated int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`INSERT INTO payments (id, transaction_id, parcel_id, parcel_name, amount, currency, customer_email, payment_status, paid_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (transaction_id) DO NOTHING`,
			payment.ID, payment.TransactionID, payment.ParcelID, payment.ParcelName,
			payment.AmountCents, payment.Currency, payment.CustomerEmail,
			payment.PaymentStatus, payment.PaidAt,
		)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			return ErrDuplicateTransaction
		}

		updTag, err := tx.Exec(ctx,
			`UPDATE parcels SET payment_status = $2, tracking_id = $3
			 WHERE id = $1 AND payment_status = $4`,
			payment.ParcelID, string(model.ParcelStatusPaid), trackingID, string(model.ParcelStatusUnpaid),
		)
		if err != nil {
			return fmt.Errorf("update parcel: %w", err)
		}
		parcelsUpdated = updTag.RowsAffected()

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return parcelsUpdated, nil
}

// ListPayments возвращает записи об оплатах, сначала самые свежие.
// Непустой customerEmail ограничивает выборку точным совпадением плательщика.
func (r *PostgresRepository) ListPayments(ctx context.Context, customerEmail string) ([]model.PaymentRecord, error) {
	query := `SELECT id, transaction_id, parcel_id, parcel_name, amount, currency, customer_email, payment_status, paid_at
		 FROM payments`
	args := []any{}
	if customerEmail != "" {
		query += ` WHERE customer_email = $1`
		args = append(args, customerEmail)
	}
	query += ` ORDER BY paid_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var payments []model.PaymentRecord
	for rows.Next() {
		var p model.PaymentRecord
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.ParcelID, &p.ParcelName,
			&p.AmountCents, &p.Currency, &p.CustomerEmail, &p.PaymentStatus, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payments, nil
}
