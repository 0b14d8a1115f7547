package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoredDocument is the single-row table holding the live document.
type StoredDocument struct {
	Name      string    `gorm:"primaryKey"`
	Body      []byte    `gorm:"type:bytea;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (StoredDocument) TableName() string { return "store_documents" }

// DocumentSnapshot holds backups and quarantined bodies.
type DocumentSnapshot struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"index;not null"`
	Kind      string    `gorm:"not null"` // "backup" or "quarantine"
	Body      []byte    `gorm:"type:bytea;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (DocumentSnapshot) TableName() string { return "store_snapshots" }

// GormBackend stores the document as one row in PostgreSQL. Each Write is a single
// upsert, so a failed write leaves the previous row intact.
type GormBackend struct {
	DB   *gorm.DB
	Name string
}

// NewGormBackend returns a backend for the document called name.
func NewGormBackend(db *gorm.DB, name string) *GormBackend {
	if name == "" {
		name = "main"
	}
	return &GormBackend{DB: db, Name: name}
}

// AutoMigrate creates the backing tables.
func (b *GormBackend) AutoMigrate(ctx context.Context) error {
	return b.DB.WithContext(ctx).AutoMigrate(&StoredDocument{}, &DocumentSnapshot{})
}

func (b *GormBackend) Read(ctx context.Context) ([]byte, error) {
	var doc StoredDocument
	err := b.DB.WithContext(ctx).Where("name = ?", b.Name).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return doc.Body, nil
}

func (b *GormBackend) Write(ctx context.Context, data []byte) error {
	doc := StoredDocument{Name: b.Name, Body: data, UpdatedAt: time.Now()}
	return b.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&doc).Error
}

func (b *GormBackend) Backup(ctx context.Context, data []byte, at time.Time) error {
	return b.snapshot(ctx, "backup", data, at)
}

func (b *GormBackend) Quarantine(ctx context.Context, data []byte, at time.Time) error {
	return b.snapshot(ctx, "quarantine", data, at)
}

func (b *GormBackend) snapshot(ctx context.Context, kind string, data []byte, at time.Time) error {
	return b.DB.WithContext(ctx).Create(&DocumentSnapshot{
		Name:      b.Name,
		Kind:      kind,
		Body:      data,
		CreatedAt: at,
	}).Error
}
