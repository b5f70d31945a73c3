package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	assignmentsvc "github.com/jshmir7070-sys/helpme-core/internal/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/types/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/types/billing"
	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/policy"
	"github.com/jshmir7070-sys/helpme-core/internal/types/user"
	usersvc "github.com/jshmir7070-sys/helpme-core/internal/user"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &PostgresStorage{db: db}

	if err := s.db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            login TEXT UNIQUE NOT NULL,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS orders (
            id SERIAL PRIMARY KEY,
            number TEXT UNIQUE NOT NULL,
            requester_id INT NOT NULL REFERENCES users(id),
            enterprise_id BIGINT,
            category TEXT NOT NULL,
            courier TEXT NOT NULL,
            urgent BOOLEAN NOT NULL DEFAULT FALSE,
            quantity BIGINT NOT NULL,
            unit_price BIGINT NOT NULL,
            total_amount BIGINT NOT NULL,
            deposit_amount BIGINT NOT NULL,
            final_amount BIGINT,
            commission_rate BIGINT NOT NULL,
            min_applied BOOLEAN NOT NULL DEFAULT FALSE,
            max_helpers INT NOT NULL,
            current_helpers INT NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            scheduled_start TIMESTAMPTZ,
            scheduled_end TIMESTAMPTZ,
            balance_due_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS applications (
            id SERIAL PRIMARY KEY,
            order_id INT NOT NULL REFERENCES orders(id),
            helper_id INT NOT NULL REFERENCES users(id),
            status TEXT NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            expected_arrival TIMESTAMPTZ,
            applied_at TIMESTAMPTZ NOT NULL,
            UNIQUE (order_id, helper_id)
        )`,
		`CREATE TABLE IF NOT EXISTS closing_reports (
            id SERIAL PRIMARY KEY,
            order_id INT NOT NULL REFERENCES orders(id),
            helper_id INT NOT NULL REFERENCES users(id),
            delivered BIGINT NOT NULL,
            returned BIGINT NOT NULL,
            misc BIGINT NOT NULL,
            extra_costs JSONB NOT NULL DEFAULT '[]',
            attachments JSONB NOT NULL DEFAULT '[]',
            status TEXT NOT NULL,
            submitted_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS payments (
            id SERIAL PRIMARY KEY,
            order_id INT NOT NULL REFERENCES orders(id),
            amount BIGINT NOT NULL,
            provider TEXT NOT NULL,
            provider_tx_id TEXT NOT NULL,
            received_at TIMESTAMPTZ NOT NULL,
            UNIQUE (order_id, provider, provider_tx_id)
        )`,
		`CREATE TABLE IF NOT EXISTS settlements (
            id SERIAL PRIMARY KEY,
            order_id INT NOT NULL REFERENCES orders(id),
            helper_id INT NOT NULL REFERENCES users(id),
            amount BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS pricing_policies (
            id SERIAL PRIMARY KEY,
            courier TEXT NOT NULL,
            category TEXT NOT NULL,
            base_price BIGINT NOT NULL,
            min_total BIGINT NOT NULL DEFAULT 0,
            urgent_rate BIGINT NOT NULL DEFAULT 0,
            commission_rate BIGINT NOT NULL DEFAULT 0,
            UNIQUE (courier, category)
        )`,
		`CREATE TABLE IF NOT EXISTS refund_policies (
            stage TEXT PRIMARY KEY,
            refund_rate INT NOT NULL,
            description TEXT NOT NULL DEFAULT ''
        )`,
		`INSERT INTO refund_policies (stage, refund_rate, description) VALUES
            ('before_matching', 100, 'cancelled before any helper was matched'),
            ('after_matching', 50, 'cancelled after matching started')
            ON CONFLICT (stage) DO NOTHING`,
		`INSERT INTO pricing_policies (courier, category, base_price, min_total, urgent_rate, commission_rate) VALUES
            ('*', 'parcel', 1200, 0, 20, 10),
            ('*', 'other', 1500, 0, 20, 10),
            ('*', 'cold', 0, 0, 20, 10)
            ON CONFLICT (courier, category) DO NOTHING`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) Create(ctx context.Context, u *user.User) error {
	q := `INSERT INTO users (login,password_hash,role,created_at) VALUES($1,$2,$3,$4) RETURNING id`
	err := s.db.QueryRowContext(ctx, q, u.Login, u.PasswordHash, u.Role, u.CreatedAt).Scan(&u.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return usersvc.ErrUserExists
	}
	return err
}

func (s *PostgresStorage) FindByLogin(ctx context.Context, login string) (*user.User, error) {
	u := &user.User{}
	q := `SELECT id,login,password_hash,role,created_at FROM users WHERE login=$1`
	if err := s.db.QueryRowContext(ctx, q, login).
		Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

const orderColumns = `id, number, requester_id, enterprise_id, category, courier, urgent,
    quantity, unit_price, total_amount, deposit_amount, final_amount, commission_rate,
    min_applied, max_helpers, current_helpers, status, scheduled_start, scheduled_end,
    balance_due_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o            order.Order
		enterpriseID sql.NullInt64
		finalAmount  sql.NullInt64
		schedStart   sql.NullTime
		schedEnd     sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.RequesterID, &enterpriseID, &o.Category, &o.Courier, &o.Urgent,
		&o.Quantity, &o.UnitPrice, &o.TotalAmount, &o.DepositAmount, &finalAmount, &o.CommissionRate,
		&o.MinApplied, &o.MaxHelpers, &o.CurrentHelpers, &o.Status, &schedStart, &schedEnd,
		&o.BalanceDueAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if enterpriseID.Valid {
		o.EnterpriseID = &enterpriseID.Int64
	}
	if finalAmount.Valid {
		o.FinalAmount = &finalAmount.Int64
	}
	if schedStart.Valid {
		t := schedStart.Time
		o.ScheduledStart = &t
	}
	if schedEnd.Valid {
		t := schedEnd.Time
		o.ScheduledEnd = &t
	}
	return &o, nil
}

func (s *PostgresStorage) collectOrders(rows *sql.Rows) ([]order.Order, error) {
	defer rows.Close()
	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, o *order.Order) error {
	q := `
        INSERT INTO orders (number, requester_id, enterprise_id, category, courier, urgent,
            quantity, unit_price, total_amount, deposit_amount, commission_rate, min_applied,
            max_helpers, current_helpers, status, scheduled_start, scheduled_end,
            balance_due_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
        RETURNING id`
	var enterpriseID sql.NullInt64
	if o.EnterpriseID != nil {
		enterpriseID = sql.NullInt64{Int64: *o.EnterpriseID, Valid: true}
	}
	var schedStart, schedEnd sql.NullTime
	if o.ScheduledStart != nil {
		schedStart = sql.NullTime{Time: *o.ScheduledStart, Valid: true}
	}
	if o.ScheduledEnd != nil {
		schedEnd = sql.NullTime{Time: *o.ScheduledEnd, Valid: true}
	}
	return s.db.QueryRowContext(ctx, q,
		o.Number, o.RequesterID, enterpriseID, o.Category, o.Courier, o.Urgent,
		o.Quantity, o.UnitPrice, o.TotalAmount, o.DepositAmount, o.CommissionRate, o.MinApplied,
		o.MaxHelpers, o.CurrentHelpers, o.Status, schedStart, schedEnd,
		o.BalanceDueAt, o.CreatedAt,
	).Scan(&o.ID)
}

func (s *PostgresStorage) FindOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`
	return scanOrder(s.db.QueryRowContext(ctx, q, number))
}

func (s *PostgresStorage) ListOrdersByRequester(ctx context.Context, requesterID int64) ([]order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE requester_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, requesterID)
	if err != nil {
		return nil, err
	}
	return s.collectOrders(rows)
}

func (s *PostgresStorage) ListOrdersByStatus(ctx context.Context, statuses ...order.Status) ([]order.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = st
	}
	q := `SELECT ` + orderColumns + ` FROM orders WHERE status IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return s.collectOrders(rows)
}

func (s *PostgresStorage) ListOrders(ctx context.Context) ([]order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.collectOrders(rows)
}

func (s *PostgresStorage) UpdateOrderStatus(ctx context.Context, id int64, status order.Status) error {
	q := `UPDATE orders SET status = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, q, status, id)
	return err
}

func (s *PostgresStorage) UpdateOrderAssignment(ctx context.Context, id int64, status order.Status, currentHelpers int) error {
	q := `UPDATE orders SET status = $1, current_helpers = $2 WHERE id = $3`
	_, err := s.db.ExecContext(ctx, q, status, currentHelpers, id)
	return err
}

func (s *PostgresStorage) SetFinalAmount(ctx context.Context, id int64, final int64) error {
	q := `UPDATE orders SET final_amount = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, q, final, id)
	return err
}

func (s *PostgresStorage) ListScheduledDue(ctx context.Context, now time.Time) ([]order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
        WHERE status = $1 AND scheduled_start IS NOT NULL AND scheduled_start <= $2
        ORDER BY scheduled_start`
	rows, err := s.db.QueryContext(ctx, q, order.StatusScheduled, now)
	if err != nil {
		return nil, err
	}
	return s.collectOrders(rows)
}

// activeFilter matches the statuses for which Status.Active reports true.
const activeFilter = `status IN ('approved','scheduled','in_progress')`

func (s *PostgresStorage) CountActiveAssignments(ctx context.Context, orderID int64) (int, error) {
	q := `SELECT COUNT(*) FROM applications WHERE order_id = $1 AND ` + activeFilter
	var n int
	err := s.db.QueryRowContext(ctx, q, orderID).Scan(&n)
	return n, err
}

func scanApplication(row rowScanner) (*assignment.Application, error) {
	var (
		a       assignment.Application
		arrival sql.NullTime
	)
	err := row.Scan(&a.ID, &a.OrderID, &a.HelperID, &a.Status, &a.Message, &arrival, &a.AppliedAt)
	if err != nil {
		return nil, err
	}
	if arrival.Valid {
		t := arrival.Time
		a.ExpectedArrival = &t
	}
	return &a, nil
}

const applicationColumns = `id, order_id, helper_id, status, message, expected_arrival, applied_at`

func (s *PostgresStorage) CreateApplication(ctx context.Context, a *assignment.Application) error {
	q := `
        INSERT INTO applications (order_id, helper_id, status, message, expected_arrival, applied_at)
        VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`
	var arrival sql.NullTime
	if a.ExpectedArrival != nil {
		arrival = sql.NullTime{Time: *a.ExpectedArrival, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, q,
		a.OrderID, a.HelperID, a.Status, a.Message, arrival, a.AppliedAt,
	).Scan(&a.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return assignmentsvc.ErrAlreadyAssigned
	}
	return err
}

func (s *PostgresStorage) FindApplication(ctx context.Context, orderID, helperID int64) (*assignment.Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM applications WHERE order_id = $1 AND helper_id = $2`
	return scanApplication(s.db.QueryRowContext(ctx, q, orderID, helperID))
}

func (s *PostgresStorage) ListApplicationsByStatus(ctx context.Context, orderID int64, status assignment.Status) ([]assignment.Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM applications
        WHERE order_id = $1 AND status = $2 ORDER BY applied_at`
	rows, err := s.db.QueryContext(ctx, q, orderID, status)
	if err != nil {
		return nil, err
	}
	return collectApplications(rows)
}

func (s *PostgresStorage) ListActiveAssignments(ctx context.Context, orderID int64) ([]assignment.Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM applications
        WHERE order_id = $1 AND ` + activeFilter + ` ORDER BY applied_at`
	rows, err := s.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	return collectApplications(rows)
}

func collectApplications(rows *sql.Rows) ([]assignment.Application, error) {
	defer rows.Close()
	var out []assignment.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) UpdateApplicationStatus(ctx context.Context, id int64, status assignment.Status) error {
	q := `UPDATE applications SET status = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, q, status, id)
	return err
}

func (s *PostgresStorage) CreateClosingReport(ctx context.Context, r *billing.ClosingReport) error {
	extras, err := json.Marshal(r.ExtraCosts)
	if err != nil {
		return fmt.Errorf("marshal extra costs: %w", err)
	}
	attachments, err := json.Marshal(r.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	q := `
        INSERT INTO closing_reports (order_id, helper_id, delivered, returned, misc,
            extra_costs, attachments, status, submitted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`
	return s.db.QueryRowContext(ctx, q,
		r.OrderID, r.HelperID, r.Delivered, r.Returned, r.Misc,
		extras, attachments, r.Status, r.SubmittedAt,
	).Scan(&r.ID)
}

func (s *PostgresStorage) FindClosingReport(ctx context.Context, orderID int64) (*billing.ClosingReport, error) {
	q := `
        SELECT id, order_id, helper_id, delivered, returned, misc,
            extra_costs, attachments, status, submitted_at
        FROM closing_reports WHERE order_id = $1
        ORDER BY submitted_at DESC LIMIT 1`
	var (
		r           billing.ClosingReport
		extras      []byte
		attachments []byte
	)
	err := s.db.QueryRowContext(ctx, q, orderID).Scan(
		&r.ID, &r.OrderID, &r.HelperID, &r.Delivered, &r.Returned, &r.Misc,
		&extras, &attachments, &r.Status, &r.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(extras, &r.ExtraCosts); err != nil {
		return nil, fmt.Errorf("unmarshal extra costs: %w", err)
	}
	if err := json.Unmarshal(attachments, &r.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments: %w", err)
	}
	return &r, nil
}

func (s *PostgresStorage) UpdateClosingReportStatus(ctx context.Context, id int64, status billing.ReportStatus) error {
	q := `UPDATE closing_reports SET status = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, q, status, id)
	return err
}

func (s *PostgresStorage) CreatePayment(ctx context.Context, p *billing.Payment) (bool, error) {
	q := `
        INSERT INTO payments (order_id, amount, provider, provider_tx_id, received_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (order_id, provider, provider_tx_id) DO NOTHING
        RETURNING id`
	err := s.db.QueryRowContext(ctx, q,
		p.OrderID, p.Amount, p.Provider, p.ProviderTxID, p.ReceivedAt,
	).Scan(&p.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// conflict: this provider tx has already been recorded for the order
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStorage) CreateSettlements(ctx context.Context, settlements []billing.Settlement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	q := `INSERT INTO settlements (order_id, helper_id, amount, created_at) VALUES ($1,$2,$3,$4)`
	for _, st := range settlements {
		if _, err := tx.ExecContext(ctx, q, st.OrderID, st.HelperID, st.Amount, st.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStorage) FindPricingPolicy(ctx context.Context, courier string, category order.Category) (*policy.PricingPolicy, error) {
	q := `
        SELECT id, courier, category, base_price, min_total, urgent_rate, commission_rate
        FROM pricing_policies
        WHERE category = $2 AND courier IN ($1, '*')
        ORDER BY (courier = $1) DESC LIMIT 1`
	var p policy.PricingPolicy
	err := s.db.QueryRowContext(ctx, q, courier, category).Scan(
		&p.ID, &p.Courier, &p.Category, &p.BasePrice, &p.MinTotal, &p.UrgentSurchargeRate, &p.CommissionRate,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStorage) ListPricingPolicies(ctx context.Context) ([]policy.PricingPolicy, error) {
	q := `
        SELECT id, courier, category, base_price, min_total, urgent_rate, commission_rate
        FROM pricing_policies ORDER BY courier, category`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []policy.PricingPolicy
	for rows.Next() {
		var p policy.PricingPolicy
		if err := rows.Scan(&p.ID, &p.Courier, &p.Category, &p.BasePrice, &p.MinTotal,
			&p.UrgentSurchargeRate, &p.CommissionRate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) FindRefundPolicy(ctx context.Context, stage policy.RefundStage) (*policy.RefundPolicy, error) {
	q := `SELECT stage, refund_rate, description FROM refund_policies WHERE stage = $1`
	var p policy.RefundPolicy
	if err := s.db.QueryRowContext(ctx, q, stage).Scan(&p.Stage, &p.RefundRate, &p.Description); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStorage) UpdateRefundPolicy(ctx context.Context, p *policy.RefundPolicy) error {
	q := `UPDATE refund_policies SET refund_rate = $1, description = $2 WHERE stage = $3`
	res, err := s.db.ExecContext(ctx, q, p.RefundRate, p.Description, p.Stage)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
