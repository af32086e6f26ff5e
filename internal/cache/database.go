package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campusworks/interndocs/internal/models"
)

// cleanupInterval paces the janitor that evicts expired counter rows.
const cleanupInterval = 5 * time.Minute

// DatabaseStore implements the counter Store using the primary SQL database.
type DatabaseStore struct {
	db       *gorm.DB
	interval time.Duration
	stop     chan struct{}
}

// NewDatabaseStore constructs a database-backed Store and starts its
// cleanup loop. Call Close to stop the loop.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	s := &DatabaseStore{db: db, interval: cleanupInterval, stop: make(chan struct{})}
	go s.cleanupLoop()
	return s
}

func (s *DatabaseStore) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Cleanup(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Close stops the background cleanup loop.
func (s *DatabaseStore) Close() error {
	if s == nil {
		return nil
	}
	close(s.stop)
	return nil
}

// IncrementWithTTL atomically increments a counter for the supplied key.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := time.Now()
	expiry := now.Add(window)

	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter models.RateCounter
		// Acquire row-level lock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&counter, "key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			count = 1
			counter = models.RateCounter{
				Key:       key,
				Count:     count,
				ExpiresAt: expiry,
			}
			return tx.Create(&counter).Error
		}
		if err != nil {
			return err
		}

		if counter.ExpiresAt.Before(now) {
			count = 1
			counter.Count = count
			counter.ExpiresAt = expiry
		} else {
			count = counter.Count + 1
			counter.Count = count
			expiry = counter.ExpiresAt
		}

		return tx.Save(&counter).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, time.Until(expiry), nil
}

// PeekWithTTL reads the current counter value without incrementing.
func (s *DatabaseStore) PeekWithTTL(ctx context.Context, key string) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var counter models.RateCounter
	err := s.db.WithContext(ctx).Take(&counter, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	if counter.ExpiresAt.Before(now) {
		return 0, 0, nil
	}

	return counter.Count, counter.ExpiresAt.Sub(now), nil
}

// Cleanup removes expired counters so the table does not grow unbounded.
func (s *DatabaseStore) Cleanup(ctx context.Context) error {
	if s == nil {
		return errors.New("cache: database store not initialised")
	}
	return s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.RateCounter{}).Error
}
