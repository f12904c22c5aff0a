package database

import "time"

// Instance is a launched cloud instance as last seen by this service.
type Instance struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	InstanceID   string     `gorm:"uniqueIndex;not null" json:"instance_id"`
	Name         string     `gorm:"not null;default:''" json:"name"`
	Status       string     `gorm:"not null;default:pending;index" json:"status"`
	PublicIP     string     `json:"public_ip"`
	PublicDNS    string     `json:"public_dns"`
	LaunchedAt   *time.Time `json:"launched_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
