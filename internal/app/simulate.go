package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundwatch/internal/alerting"
	"fundwatch/internal/bot"
	"fundwatch/internal/fetcher"
	"fundwatch/internal/instrument"
	"fundwatch/internal/service"
	"fundwatch/internal/storage"
)

// Simulate pushes a synthetic price through the full poll-and-notify path:
// extraction, change detection, and Discord delivery to the given channel.
// Nothing is persisted.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.ChannelID == "" {
		return errors.New("--channel is required")
	}

	if opts.Instrument == "" {
		return errors.New("--fund is required")
	}
	instruments, err := resolveInstruments(opts.Instrument)
	if err != nil {
		return err
	}
	inst := instruments[0]

	session, err := bot.NewSession(a.Config.Discord)
	if err != nil {
		return err
	}
	notifier := alerting.NewDiscordNotifier(session, a.Logger)

	pages := &staticPageFetcher{price: opts.Price.StringFixed(4), date: time.Now().Format("02-01-2006")}
	observations := &transientObservationStore{}
	subscriptions := &staticSubscriptionStore{
		sub: storage.Subscription{
			InstrumentKey: inst.Key,
			ChannelID:     opts.ChannelID,
			SubscribedAt:  time.Now().UTC(),
		},
	}

	svc := service.New(pages, observations, subscriptions, &noGuildSettings{}, notifier, a.Logger)

	result, err := svc.PollInstrument(ctx, inst.Key)
	if err != nil {
		return err
	}
	if result.Outcome != service.OutcomeChanged {
		return fmt.Errorf("simulated poll did not trigger a notification: %s (%s)", result.Outcome, result.Reason)
	}

	a.Logger.Info().
		Str("instrument", string(inst.Key)).
		Str("channel_id", opts.ChannelID).
		Str("price", opts.Price.String()).
		Msg("simulated notification sent")
	return nil
}

type staticPageFetcher struct {
	price string
	date  string
}

func (s *staticPageFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	return fmt.Sprintf("Koers € %s (%s)", s.price, s.date), nil
}

type transientObservationStore struct{}

func (t *transientObservationStore) UpsertObservation(ctx context.Context, obs storage.Observation) error {
	return nil
}

func (t *transientObservationStore) GetLatestObservation(ctx context.Context, key instrument.Key) (*storage.Observation, error) {
	return nil, nil
}

func (t *transientObservationStore) GetObservationHistory(ctx context.Context, key instrument.Key, limit int) ([]storage.Observation, error) {
	return nil, nil
}

func (t *transientObservationStore) GetStatistics(ctx context.Context, key instrument.Key) (storage.Statistics, error) {
	return storage.Statistics{}, nil
}

type staticSubscriptionStore struct {
	sub storage.Subscription
}

func (s *staticSubscriptionStore) AddSubscription(ctx context.Context, sub storage.Subscription) (bool, error) {
	return false, nil
}

func (s *staticSubscriptionStore) RemoveSubscription(ctx context.Context, key instrument.Key, guildID, channelID string) (bool, error) {
	return false, nil
}

func (s *staticSubscriptionStore) ListSubscriptions(ctx context.Context, key *instrument.Key) ([]storage.Subscription, error) {
	return []storage.Subscription{s.sub}, nil
}

func (s *staticSubscriptionStore) IsSubscribed(ctx context.Context, key instrument.Key, guildID, channelID string) (bool, error) {
	return key == s.sub.InstrumentKey && channelID == s.sub.ChannelID, nil
}

type noGuildSettings struct{}

func (n *noGuildSettings) GetPingRole(ctx context.Context, guildID string) (*string, error) {
	return nil, nil
}

func (n *noGuildSettings) SetPingRole(ctx context.Context, guildID string, roleID *string) error {
	return nil
}

var _ fetcher.PageFetcher = (*staticPageFetcher)(nil)
var _ storage.ObservationStore = (*transientObservationStore)(nil)
var _ storage.SubscriptionStore = (*staticSubscriptionStore)(nil)
var _ storage.GuildSettingStore = (*noGuildSettings)(nil)
