package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/butancak6/constructionos/appstate"
	"github.com/butancak6/constructionos/records"
)

type invoiceRow struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Client        string    `gorm:"column:client;not null;default:''"`
	Amount        float64   `gorm:"column:amount;not null;default:0"`
	Status        string    `gorm:"column:status;not null;default:''"`
	Description   string    `gorm:"column:description;not null;default:''"`
	ClientPhone   string    `gorm:"column:client_phone;not null;default:''"`
	ClientCompany string    `gorm:"column:client_company;not null;default:''"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (invoiceRow) TableName() string { return "invoices" }

type taskRow struct {
	ID          string     `gorm:"column:id;primaryKey"`
	Description string     `gorm:"column:description;not null;default:''"`
	Priority    string     `gorm:"column:priority;not null;default:'Medium'"`
	Done        bool       `gorm:"column:done;not null;default:false"`
	DueDate     *time.Time `gorm:"column:due_date"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
}

func (taskRow) TableName() string { return "tasks" }

type contactRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null;default:''"`
	Phone     *string   `gorm:"column:phone"`
	Address   *string   `gorm:"column:address"`
	Company   string    `gorm:"column:company;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (contactRow) TableName() string { return "contacts" }

type eventRow struct {
	ID              string    `gorm:"column:id;primaryKey"`
	Title           string    `gorm:"column:title;not null;default:''"`
	StartTime       time.Time `gorm:"column:start_time"`
	DurationMinutes int       `gorm:"column:duration_minutes;not null;default:60"`
}

func (eventRow) TableName() string { return "calendar_events" }

// Local is the on-device SQLite store.
type Local struct {
	db *gorm.DB
}

// OpenLocal opens (creating if needed) the database at path and migrates
// the schema.
func OpenLocal(path string) (*Local, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&invoiceRow{}, &taskRow{}, &contactRow{}, &eventRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Local{db: db}, nil
}

// DB exposes the handle so other packages can keep tables in the same file.
func (l *Local) DB() *gorm.DB { return l.db }

func (l *Local) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *Local) Name() string { return "local" }

func (l *Local) Ping(ctx context.Context) error {
	return l.db.WithContext(ctx).Exec("SELECT 1").Error
}

// Persist upserts rec. Invoices are always stored as confirmed: a draft
// status is rewritten to GENERATED.
func (l *Local) Persist(ctx context.Context, rec records.Record) error {
	var row any
	switch r := rec.(type) {
	case records.Invoice:
		row = &invoiceRow{
			ID:            r.ID,
			Client:        r.Client,
			Amount:        r.Amount,
			Status:        localStatus(r.Status),
			Description:   r.Description,
			ClientPhone:   r.ClientPhone,
			ClientCompany: r.ClientCompany,
			CreatedAt:     r.CreatedAt,
		}
	case records.Task:
		row = &taskRow{
			ID:          r.ID,
			Description: r.Description,
			Priority:    string(r.Priority),
			Done:        r.Done,
			DueDate:     r.DueDate,
			CreatedAt:   r.CreatedAt,
		}
	case records.Client:
		row = &contactRow{
			ID:        r.ID,
			Name:      r.Name,
			Phone:     r.Phone,
			Address:   r.Address,
			Company:   r.Company,
			CreatedAt: r.CreatedAt,
		}
	case records.CalendarEvent:
		row = &eventRow{
			ID:              r.ID,
			Title:           r.Title,
			StartTime:       r.StartTime,
			DurationMinutes: r.DurationMinutes,
		}
	default:
		return fmt.Errorf("%w: local: unsupported record %T", ErrPersistenceFailed, rec)
	}

	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("%w: local: save %s %s: %w", ErrPersistenceFailed, rec.RecordKind(), rec.RecordID(), err)
	}
	return nil
}

func localStatus(s string) string {
	if strings.EqualFold(s, records.StatusDraft) || s == "" {
		return records.StatusGenerated
	}
	return s
}

// Load reads every table, most recent first.
func (l *Local) Load(ctx context.Context) (appstate.Snapshot, error) {
	db := l.db.WithContext(ctx)
	var snap appstate.Snapshot

	var invoices []invoiceRow
	if err := db.Order("rowid DESC").Find(&invoices).Error; err != nil {
		return snap, fmt.Errorf("failed to load invoices: %w", err)
	}
	for _, r := range invoices {
		snap.Invoices = append(snap.Invoices, records.Invoice{
			ID:            r.ID,
			Intent:        "INVOICE",
			CreatedAt:     r.CreatedAt,
			Client:        r.Client,
			ClientPhone:   r.ClientPhone,
			ClientCompany: r.ClientCompany,
			Amount:        r.Amount,
			Description:   r.Description,
			Status:        r.Status,
		})
	}

	var tasks []taskRow
	if err := db.Order("rowid DESC").Find(&tasks).Error; err != nil {
		return snap, fmt.Errorf("failed to load tasks: %w", err)
	}
	for _, r := range tasks {
		snap.Tasks = append(snap.Tasks, records.Task{
			ID:          r.ID,
			Description: r.Description,
			Priority:    records.Priority(r.Priority),
			Done:        r.Done,
			DueDate:     r.DueDate,
			CreatedAt:   r.CreatedAt,
		})
	}

	var contacts []contactRow
	if err := db.Order("rowid DESC").Find(&contacts).Error; err != nil {
		return snap, fmt.Errorf("failed to load contacts: %w", err)
	}
	for _, r := range contacts {
		snap.Clients = append(snap.Clients, records.Client{
			ID:        r.ID,
			Name:      r.Name,
			Phone:     r.Phone,
			Address:   r.Address,
			Company:   r.Company,
			CreatedAt: r.CreatedAt,
		})
	}

	var events []eventRow
	if err := db.Order("rowid DESC").Find(&events).Error; err != nil {
		return snap, fmt.Errorf("failed to load calendar events: %w", err)
	}
	for _, r := range events {
		snap.Events = append(snap.Events, records.CalendarEvent{
			ID:              r.ID,
			Title:           r.Title,
			StartTime:       r.StartTime,
			DurationMinutes: r.DurationMinutes,
		})
	}
	return snap, nil
}
