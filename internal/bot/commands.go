package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"fundwatch/internal/alerting"
	"fundwatch/internal/instrument"
)

const (
	cmdFollow   = "follow"
	cmdUnfollow = "unfollow"
	cmdPrice    = "price"
	cmdHistory  = "history"
	cmdPingRole = "pingrole"
)

func fundOption() *discordgo.ApplicationCommandOption {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0)
	for _, inst := range instrument.All() {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  inst.DisplayName,
			Value: string(inst.Key),
		})
	}
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "fund",
		Description: "The fund to operate on",
		Required:    true,
		Choices:     choices,
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	historyMin := float64(1)
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdFollow,
			Description: "Post price changes of a fund in this channel",
			Options:     []*discordgo.ApplicationCommandOption{fundOption()},
		},
		{
			Name:        cmdUnfollow,
			Description: "Stop posting price changes of a fund in this channel",
			Options:     []*discordgo.ApplicationCommandOption{fundOption()},
		},
		{
			Name:        cmdPrice,
			Description: "Show the current price and statistics of a fund",
			Options:     []*discordgo.ApplicationCommandOption{fundOption()},
		},
		{
			Name:        cmdHistory,
			Description: "List recent price observations of a fund",
			Options: []*discordgo.ApplicationCommandOption{
				fundOption(),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "Number of observations to list",
					MinValue:    &historyMin,
				},
			},
		},
		{
			Name:        cmdPingRole,
			Description: "Set or clear the role mentioned in price notifications",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Role to mention; omit to clear",
				},
			},
		},
	}
}

// Handle dispatches a slash-command interaction and builds the response. It
// never returns nil; failures turn into an ephemeral error message.
func (b *Bot) Handle(ctx context.Context, interaction *discordgo.Interaction) *discordgo.InteractionResponse {
	data := interaction.ApplicationCommandData()
	opts := optionMap(data)

	var (
		content string
		embeds  []*discordgo.MessageEmbed
		files   []*discordgo.File
		err     error
	)

	switch data.Name {
	case cmdFollow:
		content, err = b.handleFollow(ctx, opts, interaction.GuildID, interaction.ChannelID)
	case cmdUnfollow:
		content, err = b.handleUnfollow(ctx, opts, interaction.GuildID, interaction.ChannelID)
	case cmdPrice:
		embeds, content, err = b.handlePrice(ctx, opts)
	case cmdHistory:
		content, files, err = b.handleHistory(ctx, opts)
	case cmdPingRole:
		content, err = b.handlePingRole(ctx, opts, interaction.GuildID)
	default:
		content = fmt.Sprintf("Unknown command `%s`.", data.Name)
	}

	if err != nil {
		b.logger.Error().Err(err).Str("command", data.Name).Msg("command failed")
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "Something went wrong, please try again later.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		}
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Embeds:  embeds,
			Files:   files,
		},
	}
}

func optionMap(data discordgo.ApplicationCommandInteractionData) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, opt := range data.Options {
		m[opt.Name] = opt
	}
	return m
}

func fundArg(opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (instrument.Key, instrument.Instrument, error) {
	opt, ok := opts["fund"]
	if !ok {
		return "", instrument.Instrument{}, fmt.Errorf("missing fund option")
	}
	key, err := instrument.Parse(opt.StringValue())
	if err != nil {
		return "", instrument.Instrument{}, err
	}
	inst, err := instrument.Get(key)
	return key, inst, err
}

func (b *Bot) handleFollow(ctx context.Context, opts map[string]*discordgo.ApplicationCommandInteractionDataOption, guildID, channelID string) (string, error) {
	key, inst, err := fundArg(opts)
	if err != nil {
		return "", err
	}

	already, err := b.svc.Follow(ctx, key, guildID, channelID)
	if err != nil {
		return "", err
	}
	if already {
		return fmt.Sprintf("This channel already follows **%s**.", inst.DisplayName), nil
	}
	return fmt.Sprintf("Now following **%s**. Price changes will be posted here.", inst.DisplayName), nil
}

func (b *Bot) handleUnfollow(ctx context.Context, opts map[string]*discordgo.ApplicationCommandInteractionDataOption, guildID, channelID string) (string, error) {
	key, inst, err := fundArg(opts)
	if err != nil {
		return "", err
	}

	found, err := b.svc.Unfollow(ctx, key, guildID, channelID)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("This channel was not following **%s**.", inst.DisplayName), nil
	}
	return fmt.Sprintf("Stopped following **%s**.", inst.DisplayName), nil
}

func (b *Bot) handlePrice(ctx context.Context, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) ([]*discordgo.MessageEmbed, string, error) {
	key, inst, err := fundArg(opts)
	if err != nil {
		return nil, "", err
	}

	report, err := b.svc.Status(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if report.Observation == nil {
		return nil, fmt.Sprintf("No price recorded yet for **%s**.", inst.DisplayName), nil
	}

	msg := alerting.RenderUpdate(alerting.PriceUpdate{
		Instrument:  report.Instrument,
		Observation: *report.Observation,
	})
	embed := msg.Embeds[0]

	stats := report.Statistics
	if stats.MinPrice != nil && stats.MaxPrice != nil && stats.MeanPrice != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "History",
			Value: fmt.Sprintf("%d observations\nlow € %s · high € %s · mean € %s",
				stats.Count,
				stats.MinPrice.StringFixed(4),
				stats.MaxPrice.StringFixed(4),
				stats.MeanPrice.StringFixed(4)),
		})
	}

	return []*discordgo.MessageEmbed{embed}, "", nil
}

func (b *Bot) handleHistory(ctx context.Context, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (string, []*discordgo.File, error) {
	key, inst, err := fundArg(opts)
	if err != nil {
		return "", nil, err
	}

	limit := 0
	if opt, ok := opts["limit"]; ok {
		limit = int(opt.IntValue())
	}

	observations, err := b.svc.History(ctx, key, limit)
	if err != nil {
		return "", nil, err
	}
	if len(observations) == 0 {
		return fmt.Sprintf("No observations recorded yet for **%s**.", inst.DisplayName), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recent prices for **%s**:\n", inst.DisplayName)
	for _, obs := range observations {
		date := obs.FetchedAt.Format("2006-01-02")
		if obs.PriceDate != nil {
			date = *obs.PriceDate
		}
		fmt.Fprintf(&sb, "`%s`  € %s\n", date, obs.Price.StringFixed(4))
	}

	var files []*discordgo.File
	if len(observations) >= 2 {
		buf, chartErr := historyChartPNG(inst.DisplayName, observations)
		if chartErr != nil {
			b.logger.Warn().Err(chartErr).Str("instrument", string(key)).Msg("failed to render history chart")
		} else {
			files = append(files, &discordgo.File{
				Name:        fmt.Sprintf("%s-history.png", key),
				ContentType: "image/png",
				Reader:      buf,
			})
		}
	}

	return sb.String(), files, nil
}

func (b *Bot) handlePingRole(ctx context.Context, opts map[string]*discordgo.ApplicationCommandInteractionDataOption, guildID string) (string, error) {
	opt, ok := opts["role"]
	if !ok {
		if err := b.svc.SetPingRole(ctx, guildID, nil); err != nil {
			return "", err
		}
		return "Notification role cleared.", nil
	}

	roleID, ok := opt.Value.(string)
	if !ok || roleID == "" {
		return "", fmt.Errorf("unexpected role option value %v", opt.Value)
	}

	if err := b.svc.SetPingRole(ctx, guildID, &roleID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Price notifications will mention <@&%s>.", roleID), nil
}
