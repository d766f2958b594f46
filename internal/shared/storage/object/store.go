package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"fridgechef/internal/shared/util"
)

var (
	// ErrInvalidKey is returned for storage keys that escape the store root.
	ErrInvalidKey = errors.New("invalid storage key")
	// ErrNotFound is returned when a stored object no longer exists.
	ErrNotFound = errors.New("object not found")
)

// ObjectStore saves and serves the binary payloads of a flow (fridge photos).
type ObjectStore interface {
	Save(ctx context.Context, namespace string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}

// SniffLimit is how many leading bytes are inspected to detect content type.
const SniffLimit = 3072

// Sniff reads up to SniffLimit bytes from r and detects their content type.
// The returned reader replays the sniffed bytes followed by the rest of r.
func Sniff(r io.Reader) (io.Reader, string, error) {
	head := make([]byte, SniffLimit)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", err
	}
	head = head[:n]
	mimeType := mimetype.Detect(head).String()
	return io.MultiReader(bytes.NewReader(head), r), mimeType, nil
}

// NewKey builds a fresh storage key for fileName under namespace:
// <hash(namespace)>/<uuid>_<sanitized name>. Keys always use forward slashes.
func NewKey(namespace, fileName string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join(util.HashKey(namespace), uuid.NewString()+"_"+name), nil
}
