package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// PostgresClientRepo はPostgreSQLを使用した顧客リポジトリ。
type PostgresClientRepo struct {
	db *sql.DB
}

// NewPostgresClientRepo はPostgresClientRepoを生成する。
func NewPostgresClientRepo(db *sql.DB) *PostgresClientRepo {
	return &PostgresClientRepo{db: db}
}

// ListByUserID はユーザーの顧客一覧を名前順で返す。
func (r *PostgresClientRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, email, phone, notes, created_at, updated_at
		 FROM clients WHERE user_id = $1 ORDER BY name ASC, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("顧客一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var clients []*model.Client
	for rows.Next() {
		c := &model.Client{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("顧客行の読み取りに失敗しました: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("顧客一覧の走査に失敗しました: %w", err)
	}
	return clients, nil
}

// FindByID は指定ユーザーが所有する顧客を取得する。見つからない場合はnilを返す。
func (r *PostgresClientRepo) FindByID(ctx context.Context, userID, id string) (*model.Client, error) {
	c := &model.Client{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, email, phone, notes, created_at, updated_at
		 FROM clients WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}
	return c, nil
}

// Create は顧客を作成する。
func (r *PostgresClientRepo) Create(ctx context.Context, c *model.Client) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (id, user_id, name, email, phone, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.Name, c.Email, c.Phone, c.Notes, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("顧客の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は顧客を更新する。
func (r *PostgresClientRepo) Update(ctx context.Context, c *model.Client) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE clients SET name = $3, email = $4, phone = $5, notes = $6, updated_at = $7
		 WHERE id = $1 AND user_id = $2`,
		c.ID, c.UserID, c.Name, c.Email, c.Phone, c.Notes, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("顧客の更新に失敗しました: %w", err)
	}
	return requireAffected(result, "顧客", c.ID)
}

// Delete は顧客を削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresClientRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	return deleteOwned(ctx, r.db, "clients", userID, id)
}

// PostgresPropertyRepo はPostgreSQLを使用した物件リポジトリ。
type PostgresPropertyRepo struct {
	db *sql.DB
}

// NewPostgresPropertyRepo はPostgresPropertyRepoを生成する。
func NewPostgresPropertyRepo(db *sql.DB) *PostgresPropertyRepo {
	return &PostgresPropertyRepo{db: db}
}

const propertyColumns = `id, user_id, title, address, price, bedrooms, bathrooms, status, description, created_at, updated_at`

func scanProperty(row rowScanner) (*model.Property, error) {
	p := &model.Property{}
	var status string
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Address, &p.Price, &p.Bedrooms, &p.Bathrooms,
		&status, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.PropertyStatus(status)
	return p, nil
}

// ListByUserID はユーザーの物件一覧を新しい順に返す。
func (r *PostgresPropertyRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Property, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("物件一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var props []*model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("物件行の読み取りに失敗しました: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("物件一覧の走査に失敗しました: %w", err)
	}
	return props, nil
}

// FindByID は指定ユーザーが所有する物件を取得する。見つからない場合はnilを返す。
func (r *PostgresPropertyRepo) FindByID(ctx context.Context, userID, id string) (*model.Property, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("物件の取得に失敗しました: %w", err)
	}
	return p, nil
}

// CountByUserID はユーザーの物件数を返す。
func (r *PostgresPropertyRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM properties WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("物件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create は物件を作成する。
func (r *PostgresPropertyRepo) Create(ctx context.Context, p *model.Property) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO properties (`+propertyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.UserID, p.Title, p.Address, p.Price, p.Bedrooms, p.Bathrooms,
		string(p.Status), p.Description, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("物件の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は物件を更新する。
func (r *PostgresPropertyRepo) Update(ctx context.Context, p *model.Property) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE properties
		 SET title = $3, address = $4, price = $5, bedrooms = $6, bathrooms = $7,
		     status = $8, description = $9, updated_at = $10
		 WHERE id = $1 AND user_id = $2`,
		p.ID, p.UserID, p.Title, p.Address, p.Price, p.Bedrooms, p.Bathrooms,
		string(p.Status), p.Description, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("物件の更新に失敗しました: %w", err)
	}
	return requireAffected(result, "物件", p.ID)
}

// Delete は物件を削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresPropertyRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	return deleteOwned(ctx, r.db, "properties", userID, id)
}

// PostgresAppointmentRepo はPostgreSQLを使用した予定リポジトリ。
type PostgresAppointmentRepo struct {
	db *sql.DB
}

// NewPostgresAppointmentRepo はPostgresAppointmentRepoを生成する。
func NewPostgresAppointmentRepo(db *sql.DB) *PostgresAppointmentRepo {
	return &PostgresAppointmentRepo{db: db}
}

const appointmentColumns = `id, user_id, client_id, property_id, title, starts_at, ends_at, status, notes, created_at, updated_at`

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	a := &model.Appointment{}
	var clientID, propertyID sql.NullString
	var status string
	if err := row.Scan(&a.ID, &a.UserID, &clientID, &propertyID, &a.Title, &a.StartsAt, &a.EndsAt,
		&status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ClientID = clientID.String
	a.PropertyID = propertyID.String
	a.Status = model.AppointmentStatus(status)
	return a, nil
}

// ListByUserID は予定を開始日時の昇順で返す。fromがゼロ値の場合は全件を返す。
func (r *PostgresAppointmentRepo) ListByUserID(ctx context.Context, userID string, from time.Time) ([]*model.Appointment, error) {
	var fromArg sql.NullTime
	if !from.IsZero() {
		fromArg = sql.NullTime{Time: from, Valid: true}
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE user_id = $1 AND ($2::timestamptz IS NULL OR starts_at >= $2)
		 ORDER BY starts_at ASC`,
		userID, fromArg,
	)
	if err != nil {
		return nil, fmt.Errorf("予定一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var appts []*model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("予定行の読み取りに失敗しました: %w", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("予定一覧の走査に失敗しました: %w", err)
	}
	return appts, nil
}

// FindByID は指定ユーザーが所有する予定を取得する。見つからない場合はnilを返す。
func (r *PostgresAppointmentRepo) FindByID(ctx context.Context, userID, id string) (*model.Appointment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("予定の取得に失敗しました: %w", err)
	}
	return a, nil
}

// Create は予定を作成する。
func (r *PostgresAppointmentRepo) Create(ctx context.Context, a *model.Appointment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO appointments (`+appointmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.UserID, nullString(a.ClientID), nullString(a.PropertyID), a.Title, a.StartsAt, a.EndsAt,
		string(a.Status), a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("予定の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は予定を更新する。
func (r *PostgresAppointmentRepo) Update(ctx context.Context, a *model.Appointment) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE appointments
		 SET client_id = $3, property_id = $4, title = $5, starts_at = $6, ends_at = $7,
		     status = $8, notes = $9, updated_at = $10
		 WHERE id = $1 AND user_id = $2`,
		a.ID, a.UserID, nullString(a.ClientID), nullString(a.PropertyID), a.Title, a.StartsAt, a.EndsAt,
		string(a.Status), a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("予定の更新に失敗しました: %w", err)
	}
	return requireAffected(result, "予定", a.ID)
}

// Delete は予定を削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresAppointmentRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	return deleteOwned(ctx, r.db, "appointments", userID, id)
}

// PostgresAnalyticsRepo はCRMデータを集計するリポジトリ。
type PostgresAnalyticsRepo struct {
	db *sql.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sql.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

// Summary はユーザーのCRMデータの集計値を返す。
func (r *PostgresAnalyticsRepo) Summary(ctx context.Context, userID string, now time.Time) (*model.AnalyticsSummary, error) {
	summary := &model.AnalyticsSummary{
		PropertyCountByStatus: make(map[model.PropertyStatus]int),
		AppointmentsByStatus:  make(map[model.AppointmentStatus]int),
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM clients WHERE user_id = $1),
			(SELECT COUNT(*) FROM appointments WHERE user_id = $1 AND status = 'scheduled' AND starts_at >= $2),
			(SELECT COALESCE(SUM(price), 0) FROM properties WHERE user_id = $1 AND status = 'available')`,
		userID, now,
	).Scan(&summary.ClientCount, &summary.UpcomingAppointments, &summary.AvailableInventoryValue)
	if err != nil {
		return nil, fmt.Errorf("集計値の取得に失敗しました: %w", err)
	}

	if err := r.countGrouped(ctx, `SELECT status, COUNT(*) FROM properties WHERE user_id = $1 GROUP BY status`, userID,
		func(status string, n int) { summary.PropertyCountByStatus[model.PropertyStatus(status)] = n }); err != nil {
		return nil, err
	}
	if err := r.countGrouped(ctx, `SELECT status, COUNT(*) FROM appointments WHERE user_id = $1 GROUP BY status`, userID,
		func(status string, n int) { summary.AppointmentsByStatus[model.AppointmentStatus(status)] = n }); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *PostgresAnalyticsRepo) countGrouped(ctx context.Context, query, userID string, fn func(string, int)) error {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("ステータス別集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return fmt.Errorf("集計行の読み取りに失敗しました: %w", err)
		}
		fn(status, n)
	}
	return rows.Err()
}

// requireAffected は更新対象が存在しなかった場合にエラーを返す。
func requireAffected(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%sが見つかりません: %s", resource, id)
	}
	return nil
}

// deleteOwned は所有者を条件に1行削除する。tableは定数のみを渡すこと。
func deleteOwned(ctx context.Context, db *sql.DB, table, userID, id string) (bool, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("%sの削除に失敗しました: %w", table, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface checks
var (
	_ ClientRepository      = (*PostgresClientRepo)(nil)
	_ PropertyRepository    = (*PostgresPropertyRepo)(nil)
	_ AppointmentRepository = (*PostgresAppointmentRepo)(nil)
	_ AnalyticsRepository   = (*PostgresAnalyticsRepo)(nil)
)
