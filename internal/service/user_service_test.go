package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/weiawesome/focus-room/internal/avatar"
	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
	"github.com/weiawesome/focus-room/pkg/storage"
)

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func readObject(t *testing.T, store storage.Storage, key string) []byte {
	t.Helper()
	rc, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return data
}

func TestAvatarUploadReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/media"})
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	u := f.user(t, "ivy", domain.TierFree)
	svc := NewUserService(f.users, f.users, cache.Noop{}, 0, f.tokens, avatar.NewProcessor(store),
		events.Nop{}, NewPresenter(store, 0))

	if _, err := svc.UploadAvatar(ctx, u.ID, strings.NewReader("not an image")); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("garbage upload: got %v", err)
	}

	resp, err := svc.UploadAvatar(ctx, u.ID, bytes.NewReader(solidPNG(t, color.RGBA{R: 255, A: 255})))
	if err != nil {
		t.Fatalf("UploadAvatar: %v", err)
	}
	if resp.AvatarURLs == nil || resp.AvatarURLs.Sm != "/media/"+avatar.Key(u.ID, "sm") {
		t.Fatalf("avatar urls = %+v", resp.AvatarURLs)
	}

	stored, err := f.users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{avatar.Key(u.ID, "sm"), avatar.Key(u.ID, "md"), avatar.Key(u.ID, "lg")}
	got := stored.AvatarObjects.Keys()
	if len(got) != len(want) {
		t.Fatalf("stored keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stored keys = %v, want %v", got, want)
		}
	}
	first := readObject(t, store, avatar.Key(u.ID, "md"))

	if _, err := svc.UploadAvatar(ctx, u.ID, bytes.NewReader(solidPNG(t, color.RGBA{B: 255, A: 255}))); err != nil {
		t.Fatalf("second UploadAvatar: %v", err)
	}
	if second := readObject(t, store, avatar.Key(u.ID, "md")); bytes.Equal(first, second) {
		t.Fatal("second upload did not replace the stored avatar")
	}

	cleared, err := svc.DeleteAvatar(ctx, u.ID)
	if err != nil {
		t.Fatalf("DeleteAvatar: %v", err)
	}
	if cleared.AvatarURLs != nil {
		t.Fatalf("avatar urls after delete = %+v", cleared.AvatarURLs)
	}
	for _, key := range want {
		if ok, _ := store.Exists(ctx, key); ok {
			t.Errorf("%s still stored after delete", key)
		}
	}
	stored, err = f.users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.AvatarObjects.Keys()) != 0 {
		t.Fatalf("stored objects after delete = %+v", stored.AvatarObjects)
	}
}
