package service

import (
	"context"
	"time"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/storage"
)

// Presenter renders users for API responses, resolving avatar keys to URLs.
type Presenter struct {
	store     storage.Storage
	urlExpiry time.Duration
}

func NewPresenter(store storage.Storage, urlExpiry time.Duration) *Presenter {
	if urlExpiry <= 0 {
		urlExpiry = 24 * time.Hour
	}
	return &Presenter{store: store, urlExpiry: urlExpiry}
}

func (p *Presenter) avatarURLs(ctx context.Context, objects *domain.AvatarObjects) *domain.AvatarURLs {
	if p == nil || p.store == nil || objects == nil || len(objects.Keys()) == 0 {
		return nil
	}
	l := log.Ctx(ctx)

	urls := &domain.AvatarURLs{}
	for _, pair := range []struct {
		key string
		dst *string
	}{
		{objects.Sm, &urls.Sm},
		{objects.Md, &urls.Md},
		{objects.Lg, &urls.Lg},
	} {
		if pair.key == "" {
			continue
		}
		url, err := p.store.GetURL(ctx, pair.key, p.urlExpiry)
		if err != nil {
			l.Warn().Err(err).Str("key", pair.key).Msg("failed to resolve avatar url")
			continue
		}
		*pair.dst = url
	}
	return urls
}

func (p *Presenter) user(ctx context.Context, u *domain.User) domain.UserResponse {
	resp := u.ToResponse()
	resp.AvatarURLs = p.avatarURLs(ctx, u.AvatarObjects)
	return resp
}

func (p *Presenter) summary(ctx context.Context, u *domain.User) domain.UserSummary {
	s := u.ToSummary()
	s.AvatarURLs = p.avatarURLs(ctx, u.AvatarObjects)
	return s
}
