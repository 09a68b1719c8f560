package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/onetoweb/mybusiness-go/client"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StoredCredential struct {
	Account      string `gorm:"primaryKey"`
	AccessToken  string `gorm:"not null"`
	RefreshToken string `gorm:"not null"`
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (StoredCredential) TableName() string {
	return "mybusiness_credentials"
}

// Stores credentials in an SQL database (sqlite or postgres), one row per account.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// Wraps an open database, creating or migrating the credentials table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&StoredCredential{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context, account string) (client.Credential, error) {
	var row StoredCredential
	err := s.db.WithContext(ctx).Where("account = ?", account).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return client.Credential{}, ErrNotFound
	}
	if err != nil {
		return client.Credential{}, err
	}
	return client.NewCredential(row.AccessToken, row.RefreshToken, row.ExpiresAt)
}

func (s *GormStore) Save(ctx context.Context, account string, cred client.Credential) error {
	row := StoredCredential{
		Account:      account,
		AccessToken:  cred.AccessToken(),
		RefreshToken: cred.RefreshToken(),
		ExpiresAt:    cred.ExpiresAt().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) Delete(ctx context.Context, account string) error {
	return s.db.WithContext(ctx).Where("account = ?", account).Delete(&StoredCredential{}).Error
}
