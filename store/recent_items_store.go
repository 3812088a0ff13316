package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"

	"gamestore/api/utils"
)

// ErrNoRecentItems means the user has no recorded views. It is an expected
// outcome, not a failure.
var ErrNoRecentItems = errors.New("no recently viewed items")

const DefaultRecentItemsWindow = 10

// RecentItemsStore keeps a bounded list of the games each user viewed most
// recently. The list is stored oldest-first (RPUSH) and returned
// newest-first.
type RecentItemsStore struct {
	rdb    redis.UniversalClient
	window int
	log    *log.Helper
}

func NewRecentItemsStore(rdb redis.UniversalClient, window int, logger log.Logger) *RecentItemsStore {
	if window <= 0 {
		window = DefaultRecentItemsWindow
	}
	return &RecentItemsStore{
		rdb:    rdb,
		window: window,
		log:    log.NewHelper(log.With(logger, "module", "store/recent_items")),
	}
}

func (s *RecentItemsStore) Window() int {
	return s.window
}

// RecordView appends gameID and trims the list to the window in one
// MULTI/EXEC, so the trim never runs without the push.
func (s *RecentItemsStore) RecordView(ctx context.Context, userID, gameID int64) error {
	key := utils.LastViewedKey(userID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, strconv.FormatInt(gameID, 10))
		pipe.LTrim(ctx, key, int64(-s.window), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record view of game %d for user %d: %w", gameID, userID, err)
	}
	return nil
}

// GetRecent returns up to count game ids, most recent first. A count outside
// (0, window] is treated as the full window.
func (s *RecentItemsStore) GetRecent(ctx context.Context, userID int64, count int) ([]int64, error) {
	if count <= 0 || count > s.window {
		count = s.window
	}
	vals, err := s.rdb.LRange(ctx, utils.LastViewedKey(userID), int64(-count), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent items for user %d: %w", userID, err)
	}

	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.log.WithContext(ctx).Warnw("msg", "skipping corrupt recent item", "user_id", userID, "value", v, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoRecentItems
	}
	slices.Reverse(ids)
	return ids, nil
}
