package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db/models"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore persists the state in postgres through gorm. Update holds a row lock on
// the singleton state row for the duration of the transaction.
type PostgresStore struct {
	client *gorm.DB
}

func NewPostgresStore(client *gorm.DB) *PostgresStore {
	return &PostgresStore{client: client}
}

func (p *PostgresStore) Bootstrap(ctx context.Context, seed *state.RelayerState) (uint32, error) {
	var from uint32
	err := p.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := load(tx)
		if errors.Is(err, ErrNotInitialized) {
			log.Info().Msg("[PostgresStore] [Bootstrap] no relayer state found, storing seed")
			return save(tx, seed)
		}
		if err != nil {
			return err
		}
		if from, err = upgrade(current); err != nil {
			return err
		}
		return save(tx, current)
	})
	return from, err
}

func (p *PostgresStore) Update(ctx context.Context, fn func(*state.RelayerState) error) error {
	return p.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := load(tx)
		if err != nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}
		return save(tx, current)
	})
}

func (p *PostgresStore) View(ctx context.Context, fn func(*state.RelayerState) error) error {
	current, err := load(p.client.WithContext(ctx))
	if err != nil {
		return err
	}
	return fn(current)
}

func (p *PostgresStore) Close() error {
	db, err := p.client.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func load(tx *gorm.DB) (*state.RelayerState, error) {
	rows := &stateRows{}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Limit(1).Find(&rows.root, stateRowID)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load relayer state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotInitialized
	}
	if err := tx.Find(&rows.nonces).Error; err != nil {
		return nil, fmt.Errorf("failed to load processed nonces: %w", err)
	}
	if err := tx.Order("position").Find(&rows.failed).Error; err != nil {
		return nil, fmt.Errorf("failed to load failed transactions: %w", err)
	}
	if err := tx.Find(&rows.auth).Error; err != nil {
		return nil, fmt.Errorf("failed to load auth accounts: %w", err)
	}
	if err := tx.Find(&rows.chains).Error; err != nil {
		return nil, fmt.Errorf("failed to load chain mappings: %w", err)
	}
	if err := tx.Find(&rows.contract).Error; err != nil {
		return nil, fmt.Errorf("failed to load whitelist: %w", err)
	}
	return fromRows(rows)
}

func save(tx *gorm.DB, s *state.RelayerState) error {
	rows, err := toRows(s)
	if err != nil {
		return err
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rows.root).Error
	if err != nil {
		return fmt.Errorf("failed to save relayer state: %w", err)
	}
	// watermarks only grow, so nonces are upserted and never deleted
	if len(rows.nonces) > 0 {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sender"}},
			DoUpdates: clause.AssignmentColumns([]string{"nonce", "updated_at"}),
		}).Create(&rows.nonces).Error
		if err != nil {
			return fmt.Errorf("failed to save processed nonces: %w", err)
		}
	}
	if err := replaceAll(tx, &models.FailedTransaction{}, rows.failed); err != nil {
		return fmt.Errorf("failed to save failed transactions: %w", err)
	}
	if err := replaceAll(tx, &models.AuthAccount{}, rows.auth); err != nil {
		return fmt.Errorf("failed to save auth accounts: %w", err)
	}
	if err := replaceAll(tx, &models.ChainMpcMapping{}, rows.chains); err != nil {
		return fmt.Errorf("failed to save chain mappings: %w", err)
	}
	if err := replaceAll(tx, &models.WhitelistedContract{}, rows.contract); err != nil {
		return fmt.Errorf("failed to save whitelist: %w", err)
	}
	return nil
}

// replaceAll swaps the whole content of a small table.
func replaceAll[T any](tx *gorm.DB, model *T, rows []T) error {
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}
