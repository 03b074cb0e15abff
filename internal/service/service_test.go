package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundwatch/internal/alerting"
	"fundwatch/internal/instrument"
	"fundwatch/internal/storage"
)

type fakePages struct {
	text string
	err  error
}

func (f *fakePages) FetchPage(ctx context.Context, url string) (string, error) {
	return f.text, f.err
}

type memObservations struct {
	rows    []storage.Observation
	loadErr error
}

func (m *memObservations) UpsertObservation(ctx context.Context, obs storage.Observation) error {
	m.rows = append(m.rows, obs)
	return nil
}

func (m *memObservations) GetLatestObservation(ctx context.Context, key instrument.Key) (*storage.Observation, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].InstrumentKey == key {
			obs := m.rows[i]
			return &obs, nil
		}
	}
	return nil, nil
}

func (m *memObservations) GetObservationHistory(ctx context.Context, key instrument.Key, limit int) ([]storage.Observation, error) {
	history := make([]storage.Observation, 0)
	for i := len(m.rows) - 1; i >= 0 && len(history) < limit; i-- {
		if m.rows[i].InstrumentKey == key {
			history = append(history, m.rows[i])
		}
	}
	return history, nil
}

func (m *memObservations) GetStatistics(ctx context.Context, key instrument.Key) (storage.Statistics, error) {
	latest, _ := m.GetLatestObservation(ctx, key)
	var count int64
	for _, row := range m.rows {
		if row.InstrumentKey == key {
			count++
		}
	}
	return storage.Statistics{Count: count, Latest: latest}, nil
}

type memSubscriptions struct {
	subs []storage.Subscription
}

func (m *memSubscriptions) AddSubscription(ctx context.Context, sub storage.Subscription) (bool, error) {
	for _, existing := range m.subs {
		if existing.InstrumentKey == sub.InstrumentKey && existing.GuildID == sub.GuildID && existing.ChannelID == sub.ChannelID {
			return false, nil
		}
	}
	m.subs = append(m.subs, sub)
	return true, nil
}

func (m *memSubscriptions) RemoveSubscription(ctx context.Context, key instrument.Key, guildID, channelID string) (bool, error) {
	for i, existing := range m.subs {
		if existing.InstrumentKey == key && existing.GuildID == guildID && existing.ChannelID == channelID {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memSubscriptions) ListSubscriptions(ctx context.Context, key *instrument.Key) ([]storage.Subscription, error) {
	if key == nil {
		return m.subs, nil
	}
	filtered := make([]storage.Subscription, 0)
	for _, sub := range m.subs {
		if sub.InstrumentKey == *key {
			filtered = append(filtered, sub)
		}
	}
	return filtered, nil
}

func (m *memSubscriptions) IsSubscribed(ctx context.Context, key instrument.Key, guildID, channelID string) (bool, error) {
	for _, sub := range m.subs {
		if sub.InstrumentKey == key && sub.GuildID == guildID && sub.ChannelID == channelID {
			return true, nil
		}
	}
	return false, nil
}

type memSettings struct {
	roles map[string]string
}

func (m *memSettings) GetPingRole(ctx context.Context, guildID string) (*string, error) {
	if role, ok := m.roles[guildID]; ok {
		return &role, nil
	}
	return nil, nil
}

func (m *memSettings) SetPingRole(ctx context.Context, guildID string, roleID *string) error {
	if m.roles == nil {
		m.roles = map[string]string{}
	}
	if roleID == nil {
		delete(m.roles, guildID)
		return nil
	}
	m.roles[guildID] = *roleID
	return nil
}

type recordingNotifier struct {
	delivered []string
	updates   []alerting.PriceUpdate
	failFor   string
}

func (r *recordingNotifier) Notify(ctx context.Context, channelID string, update alerting.PriceUpdate) error {
	if channelID == r.failFor {
		return errors.New("delivery refused")
	}
	r.delivered = append(r.delivered, channelID)
	r.updates = append(r.updates, update)
	return nil
}

func newTestService(pages *fakePages, obs *memObservations, subs *memSubscriptions, settings *memSettings, notifier *recordingNotifier) *Service {
	return New(pages, obs, subs, settings, notifier, zerolog.Nop())
}

func subscribed(channels ...string) *memSubscriptions {
	subs := &memSubscriptions{}
	for _, ch := range channels {
		subs.subs = append(subs.subs, storage.Subscription{
			InstrumentKey: instrument.KeyWorldTotal,
			GuildID:       "guild-1",
			ChannelID:     ch,
			SubscribedAt:  time.Now().UTC(),
		})
	}
	return subs
}

func TestPollInstrumentFirstObservationIsChanged(t *testing.T) {
	pages := &fakePages{text: `Koers € 96,6307 (09-01-2026)`}
	obs := &memObservations{}
	notifier := &recordingNotifier{}
	svc := newTestService(pages, obs, subscribed("channel-1"), &memSettings{}, notifier)

	result, err := svc.PollInstrument(context.Background(), instrument.KeyWorldTotal)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.Outcome != OutcomeChanged {
		t.Fatalf("expected changed, got %s", result.Outcome)
	}
	if len(obs.rows) != 1 {
		t.Fatalf("expected one persisted observation, got %d", len(obs.rows))
	}
	if len(notifier.delivered) != 1 || notifier.delivered[0] != "channel-1" {
		t.Fatalf("expected delivery to channel-1, got %v", notifier.delivered)
	}
	if notifier.updates[0].PreviousPrice != nil {
		t.Fatal("first observation carries no previous price")
	}
}

func TestPollInstrumentBelowThresholdIsUnchanged(t *testing.T) {
	obs := &memObservations{rows: []storage.Observation{{
		InstrumentKey: instrument.KeyWorldTotal,
		Price:         decimal.RequireFromString("100.0000"),
		FetchedAt:     time.Now().UTC(),
	}}}
	pages := &fakePages{text: `€ 100.00005`}
	notifier := &recordingNotifier{}
	svc := newTestService(pages, obs, subscribed("channel-1"), &memSettings{}, notifier)

	result, err := svc.PollInstrument(context.Background(), instrument.KeyWorldTotal)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.Outcome != OutcomeUnchanged {
		t.Fatalf("delta below threshold should be unchanged, got %s", result.Outcome)
	}
	if len(obs.rows) != 1 {
		t.Fatal("unchanged polls must not persist")
	}
	if len(notifier.delivered) != 0 {
		t.Fatal("unchanged polls must not notify")
	}
}

func TestPollInstrumentAtThresholdIsChanged(t *testing.T) {
	obs := &memObservations{rows: []storage.Observation{{
		InstrumentKey: instrument.KeyWorldTotal,
		Price:         decimal.RequireFromString("100.0000"),
		FetchedAt:     time.Now().UTC(),
	}}}
	pages := &fakePages{text: `€ 100.0002 (09-01-2026)`}
	notifier := &recordingNotifier{}
	svc := newTestService(pages, obs, subscribed("channel-1"), &memSettings{}, notifier)

	result, err := svc.PollInstrument(context.Background(), instrument.KeyWorldTotal)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.Outcome != OutcomeChanged {
		t.Fatalf("delta above threshold should be changed, got %s", result.Outcome)
	}
	if len(obs.rows) != 2 {
		t.Fatalf("changed polls must persist, got %d rows", len(obs.rows))
	}
	if notifier.updates[0].PreviousPrice == nil || !notifier.updates[0].PreviousPrice.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("previous price should ride along: %v", notifier.updates[0].PreviousPrice)
	}
}

func TestPollInstrumentTransportFailure(t *testing.T) {
	pages := &fakePages{err: errors.New("connection refused")}
	svc := newTestService(pages, &memObservations{}, subscribed(), &memSettings{}, &recordingNotifier{})

	result, err := svc.PollInstrument(context.Background(), instrument.KeyWorldTotal)
	if err != nil {
		t.Fatalf("transport failures are not store errors: %v", err)
	}
	if result.Outcome != OutcomeFetchFailed {
		t.Fatalf("expected fetch_failed, got %s", result.Outcome)
	}
}

func TestPollInstrumentNoPriceFound(t *testing.T) {
	pages := &fakePages{text: `<html>maintenance page</html>`}
	svc := newTestService(pages, &memObservations{}, subscribed(), &memSettings{}, &recordingNotifier{})

	result, err := svc.PollInstrument(context.Background(), instrument.KeyWorldTotal)
	if err != nil {
		t.Fatalf("extraction failures are not store errors: %v", err)
	}
	if result.Outcome != OutcomeFetchFailed {
		t.Fatalf("expected fetch_failed, got %s", result.Outcome)
	}
	if result.Reason != "no price found" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestFanOutIsolatesRecipientFailures(t *testing.T) {
	pages := &fakePages{text: `€ 96,6307 (09-01-2026)`}
	notifier := &recordingNotifier{failFor: "channel-1"}
	svc := newTestService(pages, &memObservations{}, subscribed("channel-1", "channel-2"), &memSettings{}, notifier)

	result, err := svc.PollInstrument(context.Background(), instrument.KeyWorldTotal)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.Outcome != OutcomeChanged {
		t.Fatalf("expected changed, got %s", result.Outcome)
	}
	if len(notifier.delivered) != 1 || notifier.delivered[0] != "channel-2" {
		t.Fatalf("one failing recipient must not block the rest: %v", notifier.delivered)
	}
}

func TestFanOutAppliesPingRole(t *testing.T) {
	pages := &fakePages{text: `€ 96,6307 (09-01-2026)`}
	notifier := &recordingNotifier{}
	settings := &memSettings{roles: map[string]string{"guild-1": "role-9"}}
	svc := newTestService(pages, &memObservations{}, subscribed("channel-1"), settings, notifier)

	if _, err := svc.PollInstrument(context.Background(), instrument.KeyWorldTotal); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if notifier.updates[0].PingRoleID != "role-9" {
		t.Fatalf("expected guild ping role, got %q", notifier.updates[0].PingRoleID)
	}
}

func TestFollowUnfollowBooleans(t *testing.T) {
	svc := newTestService(&fakePages{}, &memObservations{}, &memSubscriptions{}, &memSettings{}, &recordingNotifier{})
	ctx := context.Background()

	already, err := svc.Follow(ctx, instrument.KeyWorldTotal, "guild-1", "channel-1")
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if already {
		t.Fatal("first follow should not report already subscribed")
	}

	already, err = svc.Follow(ctx, instrument.KeyWorldTotal, "guild-1", "channel-1")
	if err != nil {
		t.Fatalf("second follow: %v", err)
	}
	if !already {
		t.Fatal("second follow should report already subscribed")
	}

	found, err := svc.Unfollow(ctx, instrument.KeyWorldTotal, "guild-1", "channel-1")
	if err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if !found {
		t.Fatal("unfollow should find the subscription")
	}

	found, err = svc.Unfollow(ctx, instrument.KeyWorldTotal, "guild-1", "channel-1")
	if err != nil {
		t.Fatalf("second unfollow: %v", err)
	}
	if found {
		t.Fatal("second unfollow should report not found")
	}
}

func TestStatusServesStoredStateOnFetchFailure(t *testing.T) {
	stored := storage.Observation{
		InstrumentKey: instrument.KeyWorldTotal,
		Price:         decimal.RequireFromString("96.6307"),
		FetchedAt:     time.Now().UTC(),
	}
	obs := &memObservations{rows: []storage.Observation{stored}}
	pages := &fakePages{err: errors.New("timeout")}
	svc := newTestService(pages, obs, &memSubscriptions{}, &memSettings{}, &recordingNotifier{})

	report, err := svc.Status(context.Background(), instrument.KeyWorldTotal)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Observation == nil || !report.Observation.Price.Equal(stored.Price) {
		t.Fatalf("status should fall back to stored state: %+v", report.Observation)
	}
	if report.Statistics.Count != 1 {
		t.Fatalf("unexpected statistics %+v", report.Statistics)
	}
}

func TestRunPollCycleContinuesPastFailures(t *testing.T) {
	// The fake page yields a price, so every instrument polls successfully;
	// the store error path is covered separately. Here the point is that a
	// cycle touches every registered instrument.
	pages := &fakePages{text: `€ 50,25 (09-01-2026)`}
	obs := &memObservations{}
	svc := newTestService(pages, obs, &memSubscriptions{}, &memSettings{}, &recordingNotifier{})

	svc.RunPollCycle(context.Background())

	if len(obs.rows) != len(instrument.All()) {
		t.Fatalf("expected one observation per instrument, got %d", len(obs.rows))
	}
}

func TestPollInstrumentStoreFailure(t *testing.T) {
	pages := &fakePages{text: `€ 50,25`}
	obs := &memObservations{loadErr: storage.ErrNotConfigured}
	svc := newTestService(pages, obs, &memSubscriptions{}, &memSettings{}, &recordingNotifier{})

	if _, err := svc.PollInstrument(context.Background(), instrument.KeyWorldTotal); !errors.Is(err, storage.ErrNotConfigured) {
		t.Fatalf("store failures must propagate, got %v", err)
	}
}
