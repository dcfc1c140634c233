package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/storage/models"
	"github.com/hostpilotpro/captain-cortex/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		address TEXT,
		bedrooms INTEGER DEFAULT 0,
		status TEXT DEFAULT 'active',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_properties_org ON properties(organization_id);

	CREATE TABLE IF NOT EXISTS utility_bills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id TEXT NOT NULL,
		property_id INTEGER NOT NULL,
		utility_type TEXT NOT NULL,
		bill_month INTEGER NOT NULL,
		amount REAL NOT NULL,
		currency TEXT DEFAULT 'THB',
		status TEXT NOT NULL,
		due_date INTEGER,
		paid_at INTEGER,
		FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_bills_org ON utility_bills(organization_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id TEXT NOT NULL,
		property_id INTEGER,
		title TEXT NOT NULL,
		task_type TEXT,
		status TEXT NOT NULL,
		priority TEXT DEFAULT 'medium',
		assigned_to TEXT,
		due_date INTEGER,
		FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE SET NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_org ON tasks(organization_id);

	CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id TEXT NOT NULL,
		property_id INTEGER NOT NULL,
		guest_name TEXT,
		check_in_date INTEGER NOT NULL,
		check_out_date INTEGER NOT NULL,
		status TEXT NOT NULL,
		total_amount REAL DEFAULT 0,
		FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_bookings_org ON bookings(organization_id);
	CREATE INDEX IF NOT EXISTS idx_bookings_dates ON bookings(check_in_date, check_out_date);

	CREATE TABLE IF NOT EXISTS finances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id TEXT NOT NULL,
		property_id INTEGER,
		type TEXT NOT NULL,
		category TEXT,
		amount REAL NOT NULL,
		description TEXT,
		date INTEGER NOT NULL,
		FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE SET NULL
	);
	CREATE INDEX IF NOT EXISTS idx_finances_org ON finances(organization_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		organization_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		fingerprint TEXT,
		response TEXT,
		intent TEXT,
		confidence REAL,
		cached INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_user ON query_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS query_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		route TEXT NOT NULL,
		params TEXT,
		records INTEGER DEFAULT 0,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_query ON query_sources(query_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// ==========================
// Domain reads
// ==========================

func (c *Client) GetAllProperties(ctx context.Context, organizationID string) ([]models.Property, error) {
	query := `
		SELECT id, organization_id, name, address, bedrooms, status, created_at
		FROM properties
		WHERE organization_id = ?
		ORDER BY id
	`

	rows, err := c.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get properties: %w", err)
	}
	defer rows.Close()

	properties := []models.Property{}
	for rows.Next() {
		var p models.Property
		var address sql.NullString
		var createdAt int64

		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &address, &p.Bedrooms, &p.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		p.Address = address.String
		p.CreatedAt = time.Unix(createdAt, 0)
		properties = append(properties, p)
	}

	return properties, rows.Err()
}

// GetProperty returns nil when the property does not exist in the tenant.
func (c *Client) GetProperty(ctx context.Context, id int64, organizationID string) (*models.Property, error) {
	query := `
		SELECT id, organization_id, name, address, bedrooms, status, created_at
		FROM properties
		WHERE id = ? AND organization_id = ?
	`

	var p models.Property
	var address sql.NullString
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, id, organizationID).Scan(
		&p.ID,
		&p.OrganizationID,
		&p.Name,
		&address,
		&p.Bedrooms,
		&p.Status,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}

	p.Address = address.String
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

func (c *Client) GetAllUtilityBills(ctx context.Context, organizationID string) ([]models.UtilityBill, error) {
	query := `
		SELECT id, organization_id, property_id, utility_type, bill_month, amount, currency, status, due_date, paid_at
		FROM utility_bills
		WHERE organization_id = ?
		ORDER BY bill_month DESC
	`

	rows, err := c.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get utility bills: %w", err)
	}
	defer rows.Close()

	bills := []models.UtilityBill{}
	for rows.Next() {
		var b models.UtilityBill
		var billMonth int64
		var dueDate, paidAt sql.NullInt64

		err := rows.Scan(&b.ID, &b.OrganizationID, &b.PropertyID, &b.UtilityType, &billMonth,
			&b.Amount, &b.Currency, &b.Status, &dueDate, &paidAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		b.BillMonth = time.Unix(billMonth, 0).UTC()
		b.DueDate = unixPtr(dueDate)
		b.PaidAt = unixPtr(paidAt)
		bills = append(bills, b)
	}

	return bills, rows.Err()
}

func (c *Client) GetAllTasks(ctx context.Context, organizationID string) ([]models.Task, error) {
	query := `
		SELECT id, organization_id, property_id, title, task_type, status, priority, assigned_to, due_date
		FROM tasks
		WHERE organization_id = ?
		ORDER BY id
	`

	rows, err := c.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var t models.Task
		var propertyID, dueDate sql.NullInt64
		var taskType, assignedTo sql.NullString

		err := rows.Scan(&t.ID, &t.OrganizationID, &propertyID, &t.Title, &taskType,
			&t.Status, &t.Priority, &assignedTo, &dueDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if propertyID.Valid {
			id := propertyID.Int64
			t.PropertyID = &id
		}
		t.TaskType = taskType.String
		t.AssignedTo = assignedTo.String
		t.DueDate = unixPtr(dueDate)
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func (c *Client) GetAllBookings(ctx context.Context, organizationID string) ([]models.Booking, error) {
	query := `
		SELECT id, organization_id, property_id, guest_name, check_in_date, check_out_date, status, total_amount
		FROM bookings
		WHERE organization_id = ?
		ORDER BY check_in_date
	`

	rows, err := c.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		var b models.Booking
		var guest sql.NullString
		var checkIn, checkOut int64

		err := rows.Scan(&b.ID, &b.OrganizationID, &b.PropertyID, &guest, &checkIn, &checkOut,
			&b.Status, &b.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		b.GuestName = guest.String
		b.CheckInDate = time.Unix(checkIn, 0).UTC()
		b.CheckOutDate = time.Unix(checkOut, 0).UTC()
		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}

func (c *Client) GetAllFinances(ctx context.Context, organizationID string) ([]models.FinanceRecord, error) {
	query := `
		SELECT id, organization_id, property_id, type, category, amount, description, date
		FROM finances
		WHERE organization_id = ?
		ORDER BY date DESC
	`

	rows, err := c.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get finances: %w", err)
	}
	defer rows.Close()

	records := []models.FinanceRecord{}
	for rows.Next() {
		var f models.FinanceRecord
		var propertyID sql.NullInt64
		var category, description sql.NullString
		var date int64

		err := rows.Scan(&f.ID, &f.OrganizationID, &propertyID, &f.Type, &category, &f.Amount, &description, &date)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if propertyID.Valid {
			id := propertyID.Int64
			f.PropertyID = &id
		}
		f.Category = category.String
		f.Description = description.String
		f.Date = time.Unix(date, 0).UTC()
		records = append(records, f)
	}

	return records, rows.Err()
}

// ==========================
// Query history
// ==========================

// InsertQueryWithSources writes a history record and its sources in one
// transaction; on any failure nothing is kept.
func (c *Client) InsertQueryWithSources(ctx context.Context, record *models.QueryRecord, sources []models.QuerySource) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin query transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertQueryRecord(ctx, tx, record); err != nil {
		return err
	}
	for i := range sources {
		if err := insertQuerySource(ctx, tx, &sources[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("intent", record.Intent),
		zap.Float64("confidence", record.Confidence),
		zap.Int("sources", len(sources)),
	)

	return nil
}

func insertQueryRecord(ctx context.Context, tx *sql.Tx, record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, user_id, organization_id, query_text, fingerprint, response,
			intent, confidence, cached, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	cached := 0
	if record.Cached {
		cached = 1
	}

	_, err := tx.ExecContext(
		ctx,
		query,
		record.ID,
		record.UserID,
		record.OrganizationID,
		record.QueryText,
		record.Fingerprint,
		record.Response,
		record.Intent,
		record.Confidence,
		cached,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	return nil
}

func insertQuerySource(ctx context.Context, tx *sql.Tx, source *models.QuerySource) error {
	query := `INSERT INTO query_sources (query_id, route, params, records) VALUES (?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query, source.QueryID, source.Route, source.Params, source.Records)
	if err != nil {
		return fmt.Errorf("failed to insert query source %s: %w", source.Route, err)
	}

	return nil
}

func (c *Client) GetQueryHistory(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, user_id, organization_id, query_text, response, intent, confidence, cached, latency_ms, created_at
		FROM query_history
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	records := []models.QueryRecord{}
	for rows.Next() {
		var r models.QueryRecord
		var cached int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.UserID, &r.OrganizationID, &r.QueryText, &r.Response, &r.Intent,
			&r.Confidence, &cached, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Cached = cached == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
