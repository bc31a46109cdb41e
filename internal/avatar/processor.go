package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"

	"github.com/weiawesome/focus-room/internal/domain"
	pkglog "github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/storage"
)

var ErrInvalidImage = errors.New("invalid image")

// sizeSpec holds the target edge length of one avatar variant.
type sizeSpec struct {
	name string
	edge int
}

var defaultSizes = []sizeSpec{
	{name: "sm", edge: 48},
	{name: "md", edge: 128},
	{name: "lg", edge: 512},
}

const defaultJPEGQuality = 85

// Processor turns an uploaded image into square JPEG avatars.
type Processor struct {
	store       storage.Storage
	sizes       []sizeSpec
	jpegQuality int
}

func NewProcessor(store storage.Storage) *Processor {
	return &Processor{store: store, sizes: defaultSizes, jpegQuality: defaultJPEGQuality}
}

// Key returns the storage key of one size of a user's avatar.
func Key(userID, size string) string {
	return fmt.Sprintf("avatars/%s/%s.jpg", userID, size)
}

// Process decodes r, writes every size under the user's avatar prefix and
// returns the written keys. Existing objects at those keys are replaced.
func (p *Processor) Process(ctx context.Context, userID string, r io.Reader) (*domain.AvatarObjects, error) {
	l := pkglog.Ctx(ctx)

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	keys := make(map[string]string, len(p.sizes))
	for _, sz := range p.sizes {
		// Square crop centred on the image.
		resized := imaging.Fill(img, sz.edge, sz.edge, imaging.Center, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(p.jpegQuality)); err != nil {
			return nil, fmt.Errorf("encode %s: %w", sz.name, err)
		}

		key := Key(userID, sz.name)
		if err := p.store.Write(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/jpeg"); err != nil {
			return nil, fmt.Errorf("upload %s: %w", sz.name, err)
		}
		keys[sz.name] = key
		l.Debug().Str("size", sz.name).Str("key", key).Msg("uploaded resized avatar")
	}

	return &domain.AvatarObjects{Sm: keys["sm"], Md: keys["md"], Lg: keys["lg"]}, nil
}

// Remove deletes the given avatar objects. Missing objects are ignored.
func (p *Processor) Remove(ctx context.Context, objects *domain.AvatarObjects) error {
	for _, key := range objects.Keys() {
		if err := p.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
