package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundwatch/internal/alerting"
	"fundwatch/internal/extract"
	"fundwatch/internal/fetcher"
	"fundwatch/internal/instrument"
	"fundwatch/internal/storage"
)

// Outcome classifies one poll of one instrument.
type Outcome string

const (
	// OutcomeChanged means a new observation was persisted and broadcast.
	OutcomeChanged Outcome = "changed"
	// OutcomeUnchanged means the fetched price matches the stored one.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeFetchFailed means the page could not be retrieved or carried no price.
	OutcomeFetchFailed Outcome = "fetch_failed"
)

// changeThreshold is the minimum absolute price delta treated as a real move.
// Fund prices carry four decimals; anything below this is float round-trip
// noise from the page, not a price change.
var changeThreshold = decimal.New(1, -4)

// PollResult reports the outcome of polling a single instrument.
type PollResult struct {
	Outcome     Outcome
	Observation *storage.Observation
	Reason      string
}

// StatusReport bundles the current observation with history statistics.
type StatusReport struct {
	Instrument  instrument.Instrument
	Observation *storage.Observation
	Statistics  storage.Statistics
}

// Service orchestrates fetching, change detection, persistence, and fan-out.
type Service struct {
	pages         fetcher.PageFetcher
	observations  storage.ObservationStore
	subscriptions storage.SubscriptionStore
	settings      storage.GuildSettingStore
	notifier      alerting.Notifier
	logger        zerolog.Logger
}

// New constructs the polling service.
func New(pages fetcher.PageFetcher, observations storage.ObservationStore, subscriptions storage.SubscriptionStore, settings storage.GuildSettingStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		pages:         pages,
		observations:  observations,
		subscriptions: subscriptions,
		settings:      settings,
		notifier:      notifier,
		logger:        logger.With().Str("component", "service").Logger(),
	}
}

// RunPollCycle polls every registered instrument strictly sequentially.
// Per-instrument failures are logged and do not stop the cycle.
func (s *Service) RunPollCycle(ctx context.Context) {
	for _, inst := range instrument.All() {
		select {
		case <-ctx.Done():
			s.logger.Warn().Err(ctx.Err()).Msg("poll cycle cancelled")
			return
		default:
		}

		result, err := s.PollInstrument(ctx, inst.Key)
		if err != nil {
			s.logger.Error().Err(err).Str("instrument", string(inst.Key)).Msg("poll failed")
			continue
		}

		event := s.logger.Info().Str("instrument", string(inst.Key)).Str("outcome", string(result.Outcome))
		if result.Observation != nil {
			event = event.Str("price", result.Observation.Price.String())
		}
		if result.Reason != "" {
			event = event.Str("reason", result.Reason)
		}
		event.Msg("instrument polled")
	}
}

// PollInstrument fetches one instrument's page, extracts an observation, and
// compares it against the last stored one. On a material change the new
// observation is persisted and broadcast to all subscribers.
//
// Transport and extraction failures are reported in the result, not as an
// error; an error means the store itself failed.
func (s *Service) PollInstrument(ctx context.Context, key instrument.Key) (PollResult, error) {
	inst, err := instrument.Get(key)
	if err != nil {
		return PollResult{}, err
	}

	text, err := s.pages.FetchPage(ctx, inst.SourceURL)
	if err != nil {
		return PollResult{Outcome: OutcomeFetchFailed, Reason: err.Error()}, nil
	}

	draft := extract.FromText(text)
	if draft.Price == nil {
		return PollResult{Outcome: OutcomeFetchFailed, Reason: "no price found"}, nil
	}

	prior, err := s.observations.GetLatestObservation(ctx, key)
	if err != nil {
		return PollResult{}, fmt.Errorf("load prior observation: %w", err)
	}

	obs := storage.Observation{
		InstrumentKey:  key,
		Price:          *draft.Price,
		PriceDate:      draft.PriceDate,
		FetchedAt:      time.Now().UTC(),
		Performances:   draft.Performances,
		OngoingCharges: draft.OngoingCharges,
	}

	if prior != nil && obs.Price.Sub(prior.Price).Abs().LessThan(changeThreshold) {
		return PollResult{Outcome: OutcomeUnchanged, Observation: prior}, nil
	}

	if err := s.observations.UpsertObservation(ctx, obs); err != nil {
		return PollResult{}, fmt.Errorf("persist observation: %w", err)
	}

	var previous *decimal.Decimal
	if prior != nil {
		price := prior.Price
		previous = &price
	}

	if err := s.fanOut(ctx, inst, obs, previous); err != nil {
		return PollResult{}, err
	}

	return PollResult{Outcome: OutcomeChanged, Observation: &obs}, nil
}

// fanOut delivers the update to every subscriber of the instrument. A failure
// for one recipient is logged and does not block the others.
func (s *Service) fanOut(ctx context.Context, inst instrument.Instrument, obs storage.Observation, previous *decimal.Decimal) error {
	if s.notifier == nil {
		return nil
	}

	key := inst.Key
	subs, err := s.subscriptions.ListSubscriptions(ctx, &key)
	if err != nil {
		return fmt.Errorf("resolve subscribers: %w", err)
	}

	pingRoles := map[string]string{}
	for _, sub := range subs {
		roleID, ok := pingRoles[sub.GuildID]
		if !ok {
			role, err := s.settings.GetPingRole(ctx, sub.GuildID)
			if err != nil {
				s.logger.Error().Err(err).Str("guild_id", sub.GuildID).Msg("failed to resolve ping role")
			} else if role != nil {
				roleID = *role
			}
			pingRoles[sub.GuildID] = roleID
		}

		update := alerting.PriceUpdate{
			Instrument:    inst,
			Observation:   obs,
			PreviousPrice: previous,
			PingRoleID:    roleID,
		}
		if err := s.notifier.Notify(ctx, sub.ChannelID, update); err != nil {
			s.logger.Error().Err(err).
				Str("instrument", string(inst.Key)).
				Str("guild_id", sub.GuildID).
				Str("channel_id", sub.ChannelID).
				Msg("failed to deliver price update")
		}
	}

	return nil
}

// Follow registers a delivery channel for an instrument. It reports whether
// the channel was already subscribed.
func (s *Service) Follow(ctx context.Context, key instrument.Key, guildID, channelID string) (alreadySubscribed bool, err error) {
	if _, err := instrument.Get(key); err != nil {
		return false, err
	}

	inserted, err := s.subscriptions.AddSubscription(ctx, storage.Subscription{
		InstrumentKey: key,
		GuildID:       guildID,
		ChannelID:     channelID,
		SubscribedAt:  time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("add subscription: %w", err)
	}
	return !inserted, nil
}

// Unfollow removes a delivery channel. It reports whether the subscription
// existed.
func (s *Service) Unfollow(ctx context.Context, key instrument.Key, guildID, channelID string) (found bool, err error) {
	if _, err := instrument.Get(key); err != nil {
		return false, err
	}

	found, err = s.subscriptions.RemoveSubscription(ctx, key, guildID, channelID)
	if err != nil {
		return false, fmt.Errorf("remove subscription: %w", err)
	}
	return found, nil
}

// Status polls the instrument on demand, then returns the freshest stored
// observation and the history statistics. A fetch failure is not fatal: the
// stored state is still reported.
func (s *Service) Status(ctx context.Context, key instrument.Key) (StatusReport, error) {
	inst, err := instrument.Get(key)
	if err != nil {
		return StatusReport{}, err
	}

	result, err := s.PollInstrument(ctx, key)
	if err != nil {
		return StatusReport{}, err
	}
	if result.Outcome == OutcomeFetchFailed {
		s.logger.Warn().Str("instrument", string(key)).Str("reason", result.Reason).Msg("on-demand poll failed; serving stored state")
	}

	stats, err := s.observations.GetStatistics(ctx, key)
	if err != nil {
		return StatusReport{}, fmt.Errorf("load statistics: %w", err)
	}

	return StatusReport{
		Instrument:  inst,
		Observation: stats.Latest,
		Statistics:  stats,
	}, nil
}

// History lists stored observations for an instrument, most recent first.
func (s *Service) History(ctx context.Context, key instrument.Key, limit int) ([]storage.Observation, error) {
	if _, err := instrument.Get(key); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return s.observations.GetObservationHistory(ctx, key, limit)
}

// SetPingRole stores the role to mention in a guild's notifications. A nil
// role clears the setting.
func (s *Service) SetPingRole(ctx context.Context, guildID string, roleID *string) error {
	return s.settings.SetPingRole(ctx, guildID, roleID)
}

// PingRole returns a guild's configured notification role, if any.
func (s *Service) PingRole(ctx context.Context, guildID string) (*string, error) {
	return s.settings.GetPingRole(ctx, guildID)
}
