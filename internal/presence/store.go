package presence

import (
	"context"
	"time"
)

// Store tracks who is in which room and who has a live connection.
type Store interface {
	// Join adds userID to roomID. A user may be in several rooms at once.
	Join(ctx context.Context, roomID, userID string) error

	// Leave removes userID from roomID.
	Leave(ctx context.Context, roomID, userID string) error

	// Members returns the user IDs currently in roomID.
	Members(ctx context.Context, roomID string) ([]string, error)

	// Count returns the number of users currently in roomID.
	Count(ctx context.Context, roomID string) (int, error)

	// IsMember reports whether userID is in roomID.
	IsMember(ctx context.Context, roomID, userID string) (bool, error)

	// SetOnline marks userID connected for ttl. Calling it again refreshes the TTL.
	SetOnline(ctx context.Context, userID string, ttl time.Duration) error

	// SetOffline clears the connected mark.
	SetOffline(ctx context.Context, userID string) error

	// Online returns which of userIDs are connected.
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)

	// AcquireScreen makes userID the room's screen sharer. It reports false
	// when someone else already holds it.
	AcquireScreen(ctx context.Context, roomID, userID string) (bool, error)

	// ReleaseScreen gives up the screen if userID holds it.
	ReleaseScreen(ctx context.Context, roomID, userID string) error

	// ScreenSharer returns who is sharing in roomID, or "".
	ScreenSharer(ctx context.Context, roomID string) (string, error)
}
