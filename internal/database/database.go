package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gluk-w/shellbridge/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// StatusTerminated marks a record whose instance is gone for good.
const StatusTerminated = "terminated"

// SettingLastInstanceSync holds the RFC 3339 time of the last successful
// instance sync.
const SettingLastInstanceSync = "last_instance_sync"

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := Open(dbPath)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens and migrates the database at path. ":memory:" is accepted.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Instance{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return db, nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func Ping() error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Instance helpers

// RecordInstance inserts inst, or refreshes the existing row with the same
// instance id.
func RecordInstance(inst *Instance) error {
	return DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "status", "public_ip", "public_dns", "launched_at", "updated_at"}),
	}).Create(inst).Error
}

func GetInstance(instanceID string) (*Instance, error) {
	var inst Instance
	if err := DB.Where("instance_id = ?", instanceID).First(&inst).Error; err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListInstances returns every record, newest first.
func ListInstances() ([]Instance, error) {
	var instances []Instance
	if err := DB.Order("created_at DESC, id DESC").Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

// ListActiveInstances returns the records not yet marked terminated.
func ListActiveInstances() ([]Instance, error) {
	var instances []Instance
	if err := DB.Where("status != ?", StatusTerminated).Order("id").Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

// UpdateInstanceState stores the latest observed state and addresses.
// Moving to terminated also stamps TerminatedAt.
func UpdateInstanceState(instanceID, status, publicIP, publicDNS string) error {
	updates := map[string]interface{}{
		"status":     status,
		"public_ip":  publicIP,
		"public_dns": publicDNS,
	}
	if status == StatusTerminated {
		updates["terminated_at"] = time.Now()
	}
	res := DB.Model(&Instance{}).Where("instance_id = ?", instanceID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkInstanceTerminated records that instanceID is gone.
func MarkInstanceTerminated(instanceID string) error {
	return UpdateInstanceState(instanceID, StatusTerminated, "", "")
}

// Settings helpers

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}
