package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Snapshot is one immutable serialization of a canvas document's full
// replicated state. Rows are append-only; the latest row by CreatedAt is
// authoritative for rehydration.
type Snapshot struct {
	ID        string    `json:"id" gorm:"type:char(27);primaryKey"`
	CanvasID  string    `json:"canvas_id" gorm:"type:char(24);not null;index:idx_canvas_time"`
	Data      []byte    `json:"-" gorm:"type:bytea;not null"`
	CreatedBy string    `json:"created_by,omitempty" gorm:"type:char(27)"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_canvas_time"`
}

// BeforeCreate generates a KSUID primary key. KSUIDs are time-ordered, so
// snapshot rows index sequentially.
func (s *Snapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ksuid.New().String()
	}
	return nil
}

func (Snapshot) TableName() string {
	return "snapshots"
}
