package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundwatch/internal/instrument"
	"fundwatch/internal/storage"
)

// PriceUpdate carries everything a delivery channel needs to render one
// price-change notification.
type PriceUpdate struct {
	Instrument    instrument.Instrument
	Observation   storage.Observation
	PreviousPrice *decimal.Decimal
	PingRoleID    string
}

// Notifier delivers a price update to a single channel.
type Notifier interface {
	Notify(ctx context.Context, channelID string, update PriceUpdate) error
}

// channelSender is the slice of discordgo.Session the notifier needs.
type channelSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier pushes price updates as Discord embeds.
type DiscordNotifier struct {
	sender channelSender
	logger zerolog.Logger
}

// NewDiscordNotifier wraps a Discord session (or compatible sender).
func NewDiscordNotifier(sender channelSender, logger zerolog.Logger) *DiscordNotifier {
	return &DiscordNotifier{
		sender: sender,
		logger: logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Notify sends the rendered update to one channel.
func (n *DiscordNotifier) Notify(ctx context.Context, channelID string, update PriceUpdate) error {
	if n.sender == nil {
		return fmt.Errorf("discord session not configured")
	}

	msg := RenderUpdate(update)
	if _, err := n.sender.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}

	n.logger.Info().
		Str("instrument", string(update.Instrument.Key)).
		Str("channel_id", channelID).
		Str("price", update.Observation.Price.String()).
		Msg("price update delivered")
	return nil
}

const (
	colorUp      = 0x2ecc71
	colorDown    = 0xe74c3c
	colorNeutral = 0x95a5a6
)

// RenderUpdate builds the Discord payload for a price update.
func RenderUpdate(update PriceUpdate) *discordgo.MessageSend {
	obs := update.Observation

	embed := &discordgo.MessageEmbed{
		Title: update.Instrument.DisplayName,
		Color: colorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Price", Value: "€ " + obs.Price.StringFixed(4), Inline: true},
		},
	}

	if obs.PriceDate != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Price date", Value: *obs.PriceDate, Inline: true,
		})
	}

	if update.PreviousPrice != nil {
		delta := obs.Price.Sub(*update.PreviousPrice)
		arrow := "→"
		switch delta.Sign() {
		case 1:
			arrow = "▲"
			embed.Color = colorUp
		case -1:
			arrow = "▼"
			embed.Color = colorDown
		}
		value := fmt.Sprintf("%s € %s", arrow, delta.Abs().StringFixed(4))
		if !update.PreviousPrice.IsZero() {
			pct := delta.Div(*update.PreviousPrice).Mul(decimal.NewFromInt(100))
			value = fmt.Sprintf("%s (%s%%)", value, pct.StringFixed(2))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Change", Value: value, Inline: true,
		})
	}

	if obs.OngoingCharges != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Ongoing charges", Value: obs.OngoingCharges.StringFixed(2) + "% per year", Inline: true,
		})
	}

	if len(obs.Performances) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Returns", Value: formatPerformances(obs.Performances),
		})
	}

	if update.Instrument.ISIN != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: update.Instrument.ISIN}
	}

	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	if update.PingRoleID != "" {
		msg.Content = fmt.Sprintf("<@&%s>", update.PingRoleID)
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{
			Roles: []string{update.PingRoleID},
		}
	}
	return msg
}

func formatPerformances(performances map[int]decimal.Decimal) string {
	years := make([]int, 0, len(performances))
	for year := range performances {
		years = append(years, year)
	}
	sort.Ints(years)

	lines := make([]string, 0, len(years))
	for _, year := range years {
		pct := performances[year]
		sign := ""
		if pct.Sign() > 0 {
			sign = "+"
		}
		lines = append(lines, fmt.Sprintf("%d: %s%s%%", year, sign, pct.String()))
	}
	return strings.Join(lines, "\n")
}

var _ Notifier = (*DiscordNotifier)(nil)
