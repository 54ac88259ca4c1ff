package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/storage"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// Store holds the process-wide settings. Readers always get a consistent
// copy, so the custom priority flag and order are never observed half
// updated.
type Store struct {
	db storage.Database

	// writeMu serializes mutations together with their persistence so the
	// stored copy always matches the last applied change.
	writeMu sync.Mutex

	mu       sync.RWMutex
	settings types.Settings
}

// Configured sets up the Store from flags. Device ratings come from the
// optional device config file, the custom priority is restored from db.
func Configured(db storage.Database) *Store {
	deviceConfig := lflag.String("device-config", "", "Path to a YAML/JSON/TOML file with device ratings and thresholds")

	s := &Store{db: db}

	lflag.Do(func() {
		ctx := context.Background()
		base := types.DefaultSettings()
		if *deviceConfig != "" {
			loaded, err := LoadFile(*deviceConfig, base)
			if err != nil {
				panic(fmt.Sprintf("failed to load device config: %v", err))
			}
			base = loaded
		}
		s.settings = base
		if err := s.Restore(ctx); err != nil {
			panic(fmt.Sprintf("failed to restore settings: %v", err))
		}
	})

	return s
}

// NewStore returns a Store holding settings.
func NewStore(db storage.Database, settings types.Settings) *Store {
	return &Store{
		db:       db,
		settings: settings.Clone(),
	}
}

// Restore loads the persisted custom priority from the database, migrating
// older settings as needed. Nothing persisted is not an error. A stored order
// that does not name every device exactly once is ignored and the current
// pair is kept.
func (s *Store) Restore(ctx context.Context) error {
	stored, version, err := s.db.GetSettings(ctx)
	if errors.Is(err, storage.ErrSettingsNotFound) {
		log.Ctx(ctx).InfoContext(ctx, "no stored settings, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	if version < types.CurrentSettingsVersion {
		log.Ctx(ctx).InfoContext(ctx, "migrating settings", slog.Int("oldVersion", version), slog.Int("newVersion", types.CurrentSettingsVersion))
		migrated, changed, err := types.MigrateSettings(stored, version)
		if err != nil {
			// Log error but use settings as is (best effort)
			log.Ctx(ctx).ErrorContext(ctx, "failed to migrate settings", slog.Int("currentVersion", version), slog.Any("error", err))
		} else if changed {
			stored = migrated
		}
	}

	if err := types.ValidateOrder(stored.CustomPriorityOrder); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "ignoring stored custom priority",
			slog.Any("order", stored.CustomPriorityOrder),
			slog.Any("error", err),
		)
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.settings.CustomPriorityEnabled = stored.CustomPriorityEnabled
	s.settings.CustomPriorityOrder = slices.Clone(stored.CustomPriorityOrder)
	s.mu.Unlock()

	log.Ctx(ctx).InfoContext(ctx, "restored custom priority",
		slog.Bool("enabled", stored.CustomPriorityEnabled),
		slog.Any("order", stored.CustomPriorityOrder),
	)
	return nil
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() types.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Priority returns the custom priority pair as one snapshot.
func (s *Store) Priority() types.PriorityConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Priority()
}

// SetCustomPriority validates priorities and, only if they are valid,
// replaces the custom priority pair.
func (s *Store) SetCustomPriority(ctx context.Context, enabled bool, priorities map[string]int) (types.PriorityConfig, error) {
	order, err := types.PrioritiesToOrder(priorities)
	if err != nil {
		return types.PriorityConfig{}, err
	}
	return s.update(ctx, func(st *types.Settings) {
		st.CustomPriorityEnabled = enabled
		st.CustomPriorityOrder = order
	}), nil
}

// ToggleCustom enables or disables custom mode without changing the order.
func (s *Store) ToggleCustom(ctx context.Context, enabled bool) types.PriorityConfig {
	return s.update(ctx, func(st *types.Settings) {
		st.CustomPriorityEnabled = enabled
	})
}

func (s *Store) update(ctx context.Context, fn func(*types.Settings)) types.PriorityConfig {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := s.settings.Clone()
	fn(&next)
	s.settings = next
	s.mu.Unlock()

	if err := s.db.SetSettings(ctx, next, types.CurrentSettingsVersion); err != nil {
		// the in-memory change stands so the running loop follows it
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist settings", slog.Any("error", err))
	}
	log.Ctx(ctx).InfoContext(ctx, "custom priority updated",
		slog.Bool("enabled", next.CustomPriorityEnabled),
		slog.Any("order", next.CustomPriorityOrder),
	)
	return next.Priority()
}
