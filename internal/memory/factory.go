package memory

import (
	"context"
	"fmt"
	"strings"
)

// NewJournal builds the configured ciphertext journal. "none" (or empty)
// returns a nil journal and no error.
func NewJournal(ctx context.Context, kind, databaseURL, redisURL string) (Journal, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none":
		return nil, nil
	case "postgres":
		if strings.TrimSpace(databaseURL) == "" {
			return nil, fmt.Errorf("MEMORY_JOURNAL=postgres requires DATABASE_URL")
		}
		j, err := NewPostgresJournal(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return j, nil
	case "redis":
		if strings.TrimSpace(redisURL) == "" {
			return nil, fmt.Errorf("MEMORY_JOURNAL=redis requires REDIS_URL")
		}
		j, err := NewRedisJournal(ctx, redisURL)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unsupported memory journal %q (expected none|postgres|redis)", kind)
	}
}
