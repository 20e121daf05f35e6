package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/media"
	"github.com/boothbuddy/boothbuddy/internal/storage"
)

var (
	ErrStripNotFound    = booth.E(booth.CodeNotFound, "Local strip not found")
	ErrPhotoSetNotFound = booth.E(booth.CodeNotFound, "photo strip not found")
	ErrObjectNotFound   = booth.E(booth.CodeNotFound, "stored strip not found")
)

type GalleryService interface {
	CreatePreview(ctx context.Context, img image.Image, frameCount int) (*Strip, error)
	GetStrip(ctx context.Context, id string) (*Strip, error)
	Upload(ctx context.Context, stripID, userID string) (*Strip, error)
	ListUserStrips(ctx context.Context, userID string) ([]*Strip, error)
	DeleteStored(ctx context.Context, path string) error
	SavePhotos(ctx context.Context, userID string, photos []string, filterType string) (*PhotoSet, error)
	ListPhotos(ctx context.Context, userID string) ([]*PhotoSet, error)
	DeletePhotos(ctx context.Context, id string) error
	ExpirePreviews(ctx context.Context, maxAge time.Duration) (int, error)
}

type Service struct {
	repo   Repository
	store  storage.Backend
	tmpDir string
	logger *slog.Logger
}

func NewService(repo Repository, store storage.Backend, tmpDir string, logger *slog.Logger) *Service {
	return &Service{repo: repo, store: store, tmpDir: tmpDir, logger: logger}
}

// CreatePreview writes a composed strip to the temp directory and records
// it as an unsaved preview.
func (s *Service) CreatePreview(ctx context.Context, img image.Image, frameCount int) (*Strip, error) {
	data, err := media.EncodePNG(img)
	if err != nil {
		return nil, booth.Wrap(booth.CodeProcessing, "encode strip", err)
	}

	if err := os.MkdirAll(s.tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	now := time.Now()
	b := img.Bounds()
	strip := &Strip{
		ID:         NewID(),
		Status:     StatusPreview,
		FrameCount: frameCount,
		Width:      b.Dx(),
		Height:     b.Dy(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	strip.LocalPath = filepath.Join(s.tmpDir, strip.Filename())

	if err := os.WriteFile(strip.LocalPath, data, 0644); err != nil {
		return nil, fmt.Errorf("write strip: %w", err)
	}

	if err := s.repo.CreateStrip(ctx, strip); err != nil {
		os.Remove(strip.LocalPath)
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("strip composed", "strip_id", strip.ID, "frames", frameCount, "width", strip.Width, "height", strip.Height)
	}
	return strip, nil
}

func (s *Service) GetStrip(ctx context.Context, id string) (*Strip, error) {
	if !ValidID(id) {
		return nil, nil
	}
	return s.repo.GetStrip(ctx, id)
}

// Upload moves a preview into storage under <user>/<strip>.png and deletes
// the local copy. A failed upload leaves the preview in place.
func (s *Service) Upload(ctx context.Context, stripID, userID string) (*Strip, error) {
	userID = userOrGuest(userID)

	strip, err := s.GetStrip(ctx, stripID)
	if err != nil {
		return nil, err
	}
	if strip == nil || strip.Status != StatusPreview || strip.LocalPath == "" {
		return nil, ErrStripNotFound
	}

	f, err := os.Open(strip.LocalPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrStripNotFound
		}
		return nil, fmt.Errorf("open strip: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat strip: %w", err)
	}

	if err := s.repo.UpdateStripStatus(ctx, strip.ID, StatusUploading); err != nil {
		return nil, err
	}

	key := storage.StripKey(userID, strip.Filename())
	obj, err := s.store.Put(ctx, key, f, info.Size(), media.MimePNG)
	if err != nil {
		if rerr := s.repo.UpdateStripStatus(context.WithoutCancel(ctx), strip.ID, StatusPreview); rerr != nil && s.logger != nil {
			s.logger.Error("failed to restore preview status", "strip_id", strip.ID, "error", rerr)
		}
		return nil, booth.Wrap(booth.CodeProcessing, "upload strip", err)
	}

	if err := s.repo.MarkStripStored(ctx, strip.ID, userID, obj.Key, obj.URL); err != nil {
		return nil, err
	}

	f.Close()
	if err := os.Remove(strip.LocalPath); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove local strip", "strip_id", strip.ID, "error", err)
	}

	if s.logger != nil {
		s.logger.Info("strip saved", "strip_id", strip.ID, "user_id", userID, "path", obj.Key)
	}

	return s.repo.GetStrip(ctx, strip.ID)
}

func (s *Service) ListUserStrips(ctx context.Context, userID string) ([]*Strip, error) {
	return s.repo.ListStripsByUser(ctx, userOrGuest(userID), StatusStored)
}

// DeleteStored removes a stored object by its storage path.
func (s *Service) DeleteStored(ctx context.Context, path string) error {
	key, err := storage.CleanKey(path)
	if err != nil {
		return err
	}

	strip, err := s.repo.GetStripByStoragePath(ctx, key)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, key); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return booth.Wrap(booth.CodeProcessing, "delete stored strip", err)
		}
		if strip == nil {
			return ErrObjectNotFound
		}
	}

	if strip != nil {
		if err := s.repo.UpdateStripStatus(ctx, strip.ID, StatusDeleted); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("stored strip deleted", "path", key)
	}
	return nil
}

func (s *Service) SavePhotos(ctx context.Context, userID string, photos []string, filterType string) (*PhotoSet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, booth.E(booth.CodeBadRequest, "userId is required")
	}
	if len(photos) == 0 {
		return nil, booth.E(booth.CodeBadRequest, "photos are required")
	}
	if filterType == "" {
		filterType = "none"
	}

	set := &PhotoSet{
		ID:         NewID(),
		UserID:     userID,
		Photos:     photos,
		FilterType: filterType,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.CreatePhotoSet(ctx, set); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("photo strip saved", "photo_set_id", set.ID, "user_id", userID, "photos", len(photos))
	}
	return set, nil
}

func (s *Service) ListPhotos(ctx context.Context, userID string) ([]*PhotoSet, error) {
	return s.repo.ListPhotoSetsByUser(ctx, userID)
}

func (s *Service) DeletePhotos(ctx context.Context, id string) error {
	set, err := s.repo.GetPhotoSet(ctx, id)
	if err != nil {
		return err
	}
	if set == nil {
		return ErrPhotoSetNotFound
	}
	return s.repo.DeletePhotoSet(ctx, id)
}

// ExpirePreviews drops previews older than maxAge along with their files.
func (s *Service) ExpirePreviews(ctx context.Context, maxAge time.Duration) (int, error) {
	strips, err := s.repo.ListPreviewsBefore(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, strip := range strips {
		if strip.LocalPath != "" {
			if err := os.Remove(strip.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				if s.logger != nil {
					s.logger.Warn("failed to remove expired strip", "strip_id", strip.ID, "error", err)
				}
				continue
			}
		}
		if err := s.repo.DeleteStrip(ctx, strip.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
