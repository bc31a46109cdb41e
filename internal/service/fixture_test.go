package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/presence"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/pkg/database"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/jwt"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

// fixture wires the gorm repositories over an in-memory sqlite database
// with in-process presence and pubsub.
type fixture struct {
	db       *gorm.DB
	users    *repository.GormUserRepository
	friends  *repository.GormFriendRepository
	rooms    *repository.GormRoomRepository
	sessions *repository.GormSessionRepository
	todos    *repository.GormTodoRepository
	messages *repository.GormMessageRepository
	presence *presence.MemoryStore
	bus      *pubsub.MemoryPubSub
	tokens   *jwt.Manager
	limits   *config.Limits
	present  *Presenter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:          "test-secret",
		AccessDuration:  15 * time.Minute,
		RefreshDuration: 24 * time.Hour,
		Issuer:          "focus-room-test",
	}, nil)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	bus := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { bus.Close() })

	ids := idgen.NewUUIDGenerator()
	return &fixture{
		db:       db,
		users:    repository.NewGormUserRepository(db, ids),
		friends:  repository.NewGormFriendRepository(db, ids),
		rooms:    repository.NewGormRoomRepository(db, ids),
		sessions: repository.NewGormSessionRepository(db, ids),
		todos:    repository.NewGormTodoRepository(db, ids),
		messages: repository.NewGormMessageRepository(db),
		presence: presence.NewMemoryStore(),
		bus:      bus,
		tokens:   tokens,
		limits: config.NewLimits(config.TiersConfig{
			Guest:   config.TierLimit{MaxParticipants: 4},
			Free:    config.TierLimit{MaxParticipants: 2, MaxTodos: 2, MaxOpenRooms: 1},
			Premium: config.TierLimit{MaxParticipants: 25, PrivateRooms: true},
		}),
		present: NewPresenter(nil, 0),
	}
}

func (f *fixture) user(t *testing.T, username, tier string) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "x",
		Tier:         tier,
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return u
}

func (f *fixture) befriend(t *testing.T, a, b *domain.User) {
	t.Helper()
	now := time.Now().UTC()
	fs := &domain.Friendship{
		RequesterID: a.ID,
		AddresseeID: b.ID,
		Status:      domain.FriendshipAccepted,
		CreatedAt:   now,
		RespondedAt: &now,
	}
	if err := f.friends.Create(context.Background(), fs); err != nil {
		t.Fatalf("befriend: %v", err)
	}
}
