package avatar

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/weiawesome/focus-room/pkg/storage"
)

func newTestStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/media"})
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	return store
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestProcessWritesAllSizes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := NewProcessor(store)

	objects, err := p.Process(ctx, "u1", bytes.NewReader(testPNG(t, 300, 200)))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	want := map[string]int{objects.Sm: 48, objects.Md: 128, objects.Lg: 512}
	for key, edge := range want {
		if !strings.HasPrefix(key, "avatars/u1/") {
			t.Errorf("unexpected key %q", key)
		}
		rc, err := store.Read(ctx, key)
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		img, err := imaging.Decode(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("decode %s: %v", key, err)
		}
		if b := img.Bounds(); b.Dx() != edge || b.Dy() != edge {
			t.Errorf("%s is %dx%d, want %d square", key, b.Dx(), b.Dy(), edge)
		}
	}

	if err := p.Remove(ctx, objects); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := store.Exists(ctx, objects.Md); ok {
		t.Error("md avatar still exists after remove")
	}
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := NewProcessor(newTestStore(t))

	_, err := p.Process(context.Background(), "u1", strings.NewReader("not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("err = %v, want ErrInvalidImage", err)
	}
}
