package gallery

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPreview   = "preview"
	StatusUploading = "uploading"
	StatusStored    = "stored"
	StatusDeleted   = "deleted"

	GuestUser = "guest"
)

type Strip struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	Status      string    `json:"status"`
	FrameCount  int       `json:"frame_count"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	LocalPath   string    `json:"-"`
	StoragePath string    `json:"storage_path,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Filename is the object name the strip is stored under.
func (s *Strip) Filename() string {
	return s.ID + ".png"
}

type PhotoSet struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Photos     []string  `json:"photos"`
	FilterType string    `json:"filterType"`
	CreatedAt  time.Time `json:"createdAt"`
}

func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id could have come from NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func userOrGuest(userID string) string {
	if userID == "" {
		return GuestUser
	}
	return userID
}
