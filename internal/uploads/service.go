package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"

	"fridgechef/internal/shared/storage/object"
	"fridgechef/internal/shared/telemetry"
)

// ErrNoPhoto is returned when a flow has no stored photo to open.
var ErrNoPhoto = errors.New("no photo")

// Service runs the capture stage: validate, store, and serve fridge photos.
type Service struct {
	Store object.ObjectStore
}

// Accept stores r as the flow's photo when it is an image. A rejected file is
// a no-op: accepted is false, err is nil and nothing is written.
func (s *Service) Accept(ctx context.Context, flowID, fileName, declaredType string, r io.Reader) (Photo, bool, error) {
	if s.Store == nil {
		return Photo{}, false, errors.New("uploads: object store is not configured")
	}
	body, sniffed, err := object.Sniff(r)
	if err != nil {
		return Photo{}, false, fmt.Errorf("sniff upload: %w", err)
	}
	if !IsImage(declaredType, sniffed) {
		telemetry.Info("upload.rejected", map[string]any{
			"flow_id":       flowID,
			"declared_type": declaredType,
			"sniffed_type":  sniffed,
		})
		return Photo{}, false, nil
	}

	key, size, storedType, err := s.Store.Save(ctx, flowID, fileName, body)
	if err != nil {
		return Photo{}, false, fmt.Errorf("save upload: %w", err)
	}
	mimeType := baseType(declaredType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = baseType(storedType)
	}
	return Photo{
		StorageKey: key,
		FileName:   fileName,
		MimeType:   mimeType,
		SizeBytes:  size,
		PreviewURL: PreviewURL(flowID),
	}, true, nil
}

// Open streams the stored photo.
func (s *Service) Open(ctx context.Context, photo *Photo) (io.ReadCloser, error) {
	if photo == nil || photo.StorageKey == "" {
		return nil, ErrNoPhoto
	}
	return s.Store.Open(ctx, photo.StorageKey)
}

// Delete removes the stored photo. A nil photo is a no-op.
func (s *Service) Delete(ctx context.Context, photo *Photo) error {
	if photo == nil || photo.StorageKey == "" {
		return nil
	}
	return s.Store.Delete(ctx, photo.StorageKey)
}
