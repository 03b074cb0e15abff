package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fundwatch/internal/instrument"
)

var (
	// ErrNotConfigured indicates the store was not initialised.
	ErrNotConfigured = errors.New("storage: database not configured")
)

const (
	upsertObservationSQL = `INSERT INTO price_history (
        instrument_key,
        price,
        price_date,
        fetched_at,
        performances_json,
        ongoing_charges
    ) VALUES (?,?,?,?,?,?)
    ON CONFLICT (instrument_key, price_date) DO UPDATE
    SET
        price             = excluded.price,
        fetched_at        = excluded.fetched_at,
        performances_json = excluded.performances_json,
        ongoing_charges   = excluded.ongoing_charges;`

	observationColumns = `id, instrument_key, price, price_date, fetched_at, performances_json, ongoing_charges`

	latestObservationSQL = `SELECT ` + observationColumns + `
    FROM price_history
    WHERE instrument_key = ?
    ORDER BY fetched_at DESC, id DESC
    LIMIT 1;`

	earliestObservationSQL = `SELECT ` + observationColumns + `
    FROM price_history
    WHERE instrument_key = ?
    ORDER BY fetched_at ASC, id ASC
    LIMIT 1;`

	observationHistorySQL = `SELECT ` + observationColumns + `
    FROM price_history
    WHERE instrument_key = ?
    ORDER BY fetched_at DESC, id DESC
    LIMIT ?;`

	observationPricesSQL = `SELECT price FROM price_history WHERE instrument_key = ?;`

	addSubscriptionSQL = `INSERT OR IGNORE INTO subscriptions (
        instrument_key,
        guild_id,
        channel_id,
        subscribed_at
    ) VALUES (?,?,?,?);`

	removeSubscriptionSQL = `DELETE FROM subscriptions
    WHERE instrument_key = ? AND guild_id = ? AND channel_id = ?;`

	listAllSubscriptionsSQL = `SELECT id, instrument_key, guild_id, channel_id, subscribed_at
    FROM subscriptions
    ORDER BY id;`

	listSubscriptionsByKeySQL = `SELECT id, instrument_key, guild_id, channel_id, subscribed_at
    FROM subscriptions
    WHERE instrument_key = ?
    ORDER BY id;`

	isSubscribedSQL = `SELECT EXISTS(
        SELECT 1 FROM subscriptions
        WHERE instrument_key = ? AND guild_id = ? AND channel_id = ?
    );`

	getPingRoleSQL = `SELECT ping_role_id FROM guild_settings WHERE guild_id = ?;`

	setPingRoleSQL = `INSERT INTO guild_settings (guild_id, ping_role_id)
    VALUES (?,?)
    ON CONFLICT (guild_id) DO UPDATE SET ping_role_id = excluded.ping_role_id;`

	deletePingRoleSQL = `DELETE FROM guild_settings WHERE guild_id = ?;`
)

// ObservationStore defines operations for price history persistence.
type ObservationStore interface {
	UpsertObservation(ctx context.Context, obs Observation) error
	GetLatestObservation(ctx context.Context, key instrument.Key) (*Observation, error)
	GetObservationHistory(ctx context.Context, key instrument.Key, limit int) ([]Observation, error)
	GetStatistics(ctx context.Context, key instrument.Key) (Statistics, error)
}

// SubscriptionStore defines operations on delivery-target registrations.
type SubscriptionStore interface {
	AddSubscription(ctx context.Context, sub Subscription) (inserted bool, err error)
	RemoveSubscription(ctx context.Context, key instrument.Key, guildID, channelID string) (found bool, err error)
	ListSubscriptions(ctx context.Context, key *instrument.Key) ([]Subscription, error)
	IsSubscribed(ctx context.Context, key instrument.Key, guildID, channelID string) (bool, error)
}

// GuildSettingStore defines per-guild notification settings.
type GuildSettingStore interface {
	GetPingRole(ctx context.Context, guildID string) (*string, error)
	SetPingRole(ctx context.Context, guildID string, roleID *string) error
}

// Store aggregates access to observations, subscriptions and guild settings.
type Store struct {
	db *sql.DB
}

// NewStore wires an opened database handle into a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close flushes and releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// UpsertObservation inserts an observation, overwriting an existing row with
// the same instrument and price date. Rows with a NULL price date never
// collide (SQL NULLs compare distinct) and therefore accumulate per fetch.
func (s *Store) UpsertObservation(ctx context.Context, obs Observation) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	performances, err := encodePerformances(obs.Performances)
	if err != nil {
		return err
	}

	var priceDate interface{}
	if obs.PriceDate != nil {
		priceDate = *obs.PriceDate
	}
	var charges interface{}
	if obs.OngoingCharges != nil {
		charges = obs.OngoingCharges.String()
	}

	fetchedAt := obs.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	if _, execErr := db.ExecContext(ctx, upsertObservationSQL,
		string(obs.InstrumentKey),
		obs.Price.String(),
		priceDate,
		fetchedAt,
		performances,
		charges,
	); execErr != nil {
		return fmt.Errorf("upsert observation: %w", execErr)
	}
	return nil
}

// GetLatestObservation returns the most recently stored observation for an
// instrument, or nil when none exists.
func (s *Store) GetLatestObservation(ctx context.Context, key instrument.Key) (*Observation, error) {
	return s.queryOneObservation(ctx, latestObservationSQL, key)
}

// GetObservationHistory lists stored observations most-recent-first.
func (s *Store) GetObservationHistory(ctx context.Context, key instrument.Key, limit int) ([]Observation, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.QueryContext(ctx, observationHistorySQL, string(key), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list observation history: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]Observation, 0, limit)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// GetStatistics aggregates the stored history for an instrument.
func (s *Store) GetStatistics(ctx context.Context, key instrument.Key) (Statistics, error) {
	db, err := s.getDB()
	if err != nil {
		return Statistics{}, err
	}

	rows, queryErr := db.QueryContext(ctx, observationPricesSQL, string(key))
	if queryErr != nil {
		return Statistics{}, fmt.Errorf("list observation prices: %w", queryErr)
	}
	defer rows.Close()

	var (
		count int64
		sum   decimal.Decimal
		min   decimal.Decimal
		max   decimal.Decimal
	)
	for rows.Next() {
		var priceStr string
		if scanErr := rows.Scan(&priceStr); scanErr != nil {
			return Statistics{}, scanErr
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return Statistics{}, fmt.Errorf("parse stored price: %w", convErr)
		}

		if count == 0 {
			min, max = price, price
		} else {
			if price.LessThan(min) {
				min = price
			}
			if price.GreaterThan(max) {
				max = price
			}
		}
		sum = sum.Add(price)
		count++
	}
	if rows.Err() != nil {
		return Statistics{}, rows.Err()
	}

	if count == 0 {
		return Statistics{Count: 0}, nil
	}

	mean := sum.Div(decimal.NewFromInt(count))
	stats := Statistics{
		Count:     count,
		MinPrice:  &min,
		MaxPrice:  &max,
		MeanPrice: &mean,
	}

	latest, err := s.GetLatestObservation(ctx, key)
	if err != nil {
		return Statistics{}, err
	}
	stats.Latest = latest

	earliest, err := s.queryOneObservation(ctx, earliestObservationSQL, key)
	if err != nil {
		return Statistics{}, err
	}
	stats.Earliest = earliest

	return stats, nil
}

// AddSubscription registers a delivery target. The insert is idempotent:
// a duplicate (instrument, guild, channel) reports inserted=false.
func (s *Store) AddSubscription(ctx context.Context, sub Subscription) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	subscribedAt := sub.SubscribedAt
	if subscribedAt.IsZero() {
		subscribedAt = time.Now().UTC()
	}

	res, execErr := db.ExecContext(ctx, addSubscriptionSQL,
		string(sub.InstrumentKey),
		sub.GuildID,
		sub.ChannelID,
		subscribedAt,
	)
	if execErr != nil {
		return false, fmt.Errorf("add subscription: %w", execErr)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add subscription result: %w", err)
	}
	return affected > 0, nil
}

// RemoveSubscription deletes a delivery target. found reports whether a row
// existed.
func (s *Store) RemoveSubscription(ctx context.Context, key instrument.Key, guildID, channelID string) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	res, execErr := db.ExecContext(ctx, removeSubscriptionSQL, string(key), guildID, channelID)
	if execErr != nil {
		return false, fmt.Errorf("remove subscription: %w", execErr)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove subscription result: %w", err)
	}
	return affected > 0, nil
}

// ListSubscriptions lists delivery targets, optionally filtered by instrument.
func (s *Store) ListSubscriptions(ctx context.Context, key *instrument.Key) ([]Subscription, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var queryErr error
	if key != nil {
		rows, queryErr = db.QueryContext(ctx, listSubscriptionsByKeySQL, string(*key))
	} else {
		rows, queryErr = db.QueryContext(ctx, listAllSubscriptionsSQL)
	}
	if queryErr != nil {
		return nil, fmt.Errorf("list subscriptions: %w", queryErr)
	}
	defer rows.Close()

	subscriptions := make([]Subscription, 0)
	for rows.Next() {
		var sub Subscription
		var keyStr string
		if scanErr := rows.Scan(&sub.ID, &keyStr, &sub.GuildID, &sub.ChannelID, &sub.SubscribedAt); scanErr != nil {
			return nil, scanErr
		}
		sub.InstrumentKey = instrument.Key(keyStr)
		subscriptions = append(subscriptions, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subscriptions, nil
}

// IsSubscribed reports whether a delivery target is registered.
func (s *Store) IsSubscribed(ctx context.Context, key instrument.Key, guildID, channelID string) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	var exists bool
	if scanErr := db.QueryRowContext(ctx, isSubscribedSQL, string(key), guildID, channelID).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("check subscription: %w", scanErr)
	}
	return exists, nil
}

// GetPingRole returns the configured ping role for a guild, or nil when the
// guild has none.
func (s *Store) GetPingRole(ctx context.Context, guildID string) (*string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var role sql.NullString
	scanErr := db.QueryRowContext(ctx, getPingRoleSQL, guildID).Scan(&role)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("get ping role: %w", scanErr)
	}
	if !role.Valid {
		return nil, nil
	}
	value := role.String
	return &value, nil
}

// SetPingRole stores the guild's ping role. A nil role deletes the row.
func (s *Store) SetPingRole(ctx context.Context, guildID string, roleID *string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	if roleID == nil {
		if _, execErr := db.ExecContext(ctx, deletePingRoleSQL, guildID); execErr != nil {
			return fmt.Errorf("clear ping role: %w", execErr)
		}
		return nil
	}

	if _, execErr := db.ExecContext(ctx, setPingRoleSQL, guildID, *roleID); execErr != nil {
		return fmt.Errorf("set ping role: %w", execErr)
	}
	return nil
}

func (s *Store) queryOneObservation(ctx context.Context, query string, key instrument.Key) (*Observation, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.QueryContext(ctx, query, string(key))
	if queryErr != nil {
		return nil, fmt.Errorf("query observation: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	obs, scanErr := scanObservation(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &obs, nil
}

func scanObservation(rows *sql.Rows) (Observation, error) {
	var (
		id           int64
		keyStr       string
		priceStr     string
		priceDate    sql.NullString
		fetchedAt    time.Time
		performances string
		charges      sql.NullString
	)

	if err := rows.Scan(&id, &keyStr, &priceStr, &priceDate, &fetchedAt, &performances, &charges); err != nil {
		return Observation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return Observation{}, fmt.Errorf("parse stored price: %w", err)
	}

	obs := Observation{
		ID:            id,
		InstrumentKey: instrument.Key(keyStr),
		Price:         price,
		FetchedAt:     fetchedAt,
	}

	if priceDate.Valid {
		date := priceDate.String
		obs.PriceDate = &date
	}

	obs.Performances, err = decodePerformances(performances)
	if err != nil {
		return Observation{}, err
	}

	if charges.Valid {
		value, convErr := decimal.NewFromString(charges.String)
		if convErr != nil {
			return Observation{}, fmt.Errorf("parse stored charges: %w", convErr)
		}
		obs.OngoingCharges = &value
	}

	return obs, nil
}

func encodePerformances(performances map[int]decimal.Decimal) (string, error) {
	if performances == nil {
		performances = map[int]decimal.Decimal{}
	}
	raw, err := json.Marshal(performances)
	if err != nil {
		return "", fmt.Errorf("encode performances: %w", err)
	}
	return string(raw), nil
}

func decodePerformances(raw string) (map[int]decimal.Decimal, error) {
	performances := map[int]decimal.Decimal{}
	if raw == "" {
		return performances, nil
	}
	if err := json.Unmarshal([]byte(raw), &performances); err != nil {
		return nil, fmt.Errorf("decode performances: %w", err)
	}
	return performances, nil
}
