// Package discord exposes the game as Discord slash commands.
package discord

import (
	"context"
	"time"

	"fruitbot/internal/game"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Game is the slice of the game service the bot drives.
type Game interface {
	PerformPulls(ctx context.Context, in game.PullInput) (game.PullResult, error)
	Collect(ctx context.Context, playerID string) (game.CollectResult, error)
	AccruePassive(ctx context.Context, playerID string) (game.IncomeResult, error)
	Balance(ctx context.Context, playerID string) game.BalanceView
	PityInfo(ctx context.Context, playerID string) game.PityInfo
	Collection(ctx context.Context, playerID string) ([]game.CollectionItem, error)
	Settings() game.Settings
}

// User identifies the invoking Discord member.
type User struct {
	ID       string
	Username string
}

// PlayerID namespaces Discord users in the shared player registry.
func (u User) PlayerID() string { return "discord:" + u.ID }

type Bot struct {
	game    Game
	log     *zap.Logger
	session *discordgo.Session
	appID   string
	guildID string
	timeout time.Duration
}

func New(token, appID, guildID string, g Game, log *zap.Logger) (*Bot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "create discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	b := &Bot{
		game:    g,
		log:     log.Named("discord"),
		session: session,
		appID:   appID,
		guildID: guildID,
		timeout: 10 * time.Second,
	}
	session.AddHandler(b.onInteraction)
	return b, nil
}

// Start connects to the gateway and registers the command set. An empty
// guild id registers the commands globally.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "open gateway")
	}
	cmds, err := b.session.ApplicationCommandBulkOverwrite(b.appID, b.guildID, Commands(b.game.Settings()))
	if err != nil {
		_ = b.session.Close()
		return errors.Wrap(err, "register commands")
	}
	b.log.Info("discord bot ready", zap.Int("commands", len(cmds)), zap.String("guild_id", b.guildID))
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

// Commands is the slash-command set.
func Commands(settings game.Settings) []*discordgo.ApplicationCommand {
	minCount := 1.0
	return []*discordgo.ApplicationCommand{
		{
			Name:        "summon",
			Description: "Pull devil fruits",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "count",
				Description: "How many fruits to pull",
				Required:    false,
				MinValue:    &minCount,
				MaxValue:    float64(settings.MaxPulls),
			}},
		},
		{Name: "balance", Description: "Show your berries and stats"},
		{Name: "income", Description: "Collect passive and manual income"},
		{Name: "pity", Description: "Show your pity progress"},
		{Name: "collection", Description: "List your devil fruits"},
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	var u *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		u = i.Member.User
	case i.User != nil:
		u = i.User
	default:
		return
	}
	data := i.ApplicationCommandData()
	options := make(map[string]int64, len(data.Options))
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionInteger {
			options[opt.Name] = opt.IntValue()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	resp := b.Dispatch(ctx, data.Name, User{ID: u.ID, Username: u.Username}, options)
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: resp,
	})
	if err != nil {
		b.log.Warn("interaction response failed", zap.String("command", data.Name), zap.Error(err))
	}
}

// Dispatch runs one command and renders the reply.
func (b *Bot) Dispatch(ctx context.Context, name string, u User, options map[string]int64) *discordgo.InteractionResponseData {
	id := u.PlayerID()
	switch name {
	case "summon":
		count := 1
		if n, ok := options["count"]; ok {
			count = int(n)
		}
		res, err := b.game.PerformPulls(ctx, game.PullInput{PlayerID: id, Username: u.Username, Count: count})
		if err != nil {
			return errorResponse(err)
		}
		return &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{summonEmbed(res)}}
	case "balance":
		if _, err := b.game.AccruePassive(ctx, id); err != nil {
			b.log.Warn("accrue before balance failed", zap.String("player_id", id), zap.Error(err))
		}
		return &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{balanceEmbed(b.game.Balance(ctx, id))}}
	case "income":
		res, err := b.game.Collect(ctx, id)
		if err != nil {
			return errorResponse(err)
		}
		return &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{incomeEmbed(res)}}
	case "pity":
		return &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{pityEmbed(b.game.PityInfo(ctx, id))}}
	case "collection":
		items, err := b.game.Collection(ctx, id)
		if err != nil {
			return errorResponse(err)
		}
		return &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{collectionEmbed(items)},
			Flags:  discordgo.MessageFlagsEphemeral,
		}
	}
	return &discordgo.InteractionResponseData{Content: "Unknown command.", Flags: discordgo.MessageFlagsEphemeral}
}
