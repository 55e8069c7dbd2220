package models

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Permission controls who can open a canvas besides the owner.
type Permission string

const (
	PermissionPrivate Permission = "private"
	PermissionLink    Permission = "link"
	PermissionPublic  Permission = "public"
)

// Canvas is the access-control record for one collaborative canvas. The
// document content itself lives in snapshots, not here.
type Canvas struct {
	ID            string         `json:"id" gorm:"type:char(24);primaryKey"`
	Title         string         `json:"title" gorm:"type:text"`
	Owner         string         `json:"owner" gorm:"type:char(27);not null;index"`
	Collaborators pq.StringArray `json:"collaborators" gorm:"type:text[]"`
	Permission    Permission     `json:"permission" gorm:"type:varchar(16);not null;default:'private'"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate hook generates the canvas id before inserting.
func (c *Canvas) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = NewCanvasID()
	}
	return nil
}

func (Canvas) TableName() string {
	return "canvases"
}

// HasAccess reports whether the user may open a sync session on this canvas.
func (c *Canvas) HasAccess(userID string) bool {
	if c.Owner == userID {
		return true
	}
	for _, id := range c.Collaborators {
		if id == userID {
			return true
		}
	}
	return false
}

var canvasIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// IsValidCanvasID reports whether id matches the 24-hex-character canvas id
// format. Ids failing this check are rejected before any store access.
func IsValidCanvasID(id string) bool {
	return canvasIDPattern.MatchString(id)
}

// NewCanvasID generates a 24-hex-character canvas id: a 4-byte unix
// timestamp prefix followed by 8 random bytes. The timestamp prefix keeps
// ids roughly time-sortable.
func NewCanvasID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	rand.Read(b[4:])
	return hex.EncodeToString(b[:])
}

type CanvasUpdate struct {
	Title         *string     `json:"title,omitempty"`
	Collaborators []string    `json:"collaborators,omitempty"`
	Permission    *Permission `json:"permission,omitempty"`
}
