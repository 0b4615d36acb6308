package discord

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fruitbot/internal/catalog"
	"fruitbot/internal/gacha"
	"fruitbot/internal/game"
	"fruitbot/internal/store/sqlite"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type zeroRNG struct{}

func (zeroRNG) Float64() float64 { return 0 }

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	log := zaptest.NewLogger(t)
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "bot.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	cat, err := catalog.Default(log)
	require.NoError(t, err)
	svc, err := game.NewService(st, cat, gacha.DefaultConfig(), game.DefaultSettings(),
		game.WithLogger(log), game.WithRandom(zeroRNG{}))
	require.NoError(t, err)
	return &Bot{game: svc, log: log, timeout: time.Second}
}

var luffy = User{ID: "1234", Username: "luffy"}

func TestCommandsDefinition(t *testing.T) {
	cmds := Commands(game.DefaultSettings())
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"summon", "balance", "income", "pity", "collection"}, names)
	require.Len(t, cmds[0].Options, 1)
	assert.Equal(t, float64(100), cmds[0].Options[0].MaxValue)
}

func TestSummonAndViews(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t)

	resp := b.Dispatch(ctx, "summon", luffy, map[string]int64{"count": 3})
	require.Len(t, resp.Embeds, 1)
	embed := resp.Embeds[0]
	assert.Equal(t, "🍈 3x Devil Fruit Results!", embed.Title)
	assert.Contains(t, embed.Description, "✨ New!")
	assert.Contains(t, embed.Description, "x3")
	assert.Contains(t, embed.Description, "Remaining Berries:** 2000")
	assert.Equal(t, tierColors[gacha.Common], embed.Color)

	resp = b.Dispatch(ctx, "balance", luffy, nil)
	require.Len(t, resp.Embeds, 1)
	assert.Equal(t, "2000", resp.Embeds[0].Fields[0].Value)

	resp = b.Dispatch(ctx, "pity", luffy, nil)
	require.Len(t, resp.Embeds, 1)
	assert.True(t, strings.HasPrefix(resp.Embeds[0].Description, "3/1500"))

	resp = b.Dispatch(ctx, "collection", luffy, nil)
	require.Len(t, resp.Embeds, 1)
	assert.Contains(t, resp.Embeds[0].Title, "1 unique")
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Flags)
}

func TestSummonErrorsAreEphemeral(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t)

	resp := b.Dispatch(ctx, "summon", luffy, map[string]int64{"count": 6})
	assert.Empty(t, resp.Embeds)
	assert.Contains(t, resp.Content, "You need 6000 berries but only have 5000.")
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Flags)
}

func TestIncomeFlow(t *testing.T) {
	ctx := context.Background()
	b := newTestBot(t)

	resp := b.Dispatch(ctx, "income", luffy, nil)
	assert.Contains(t, resp.Content, "/summon")

	b.Dispatch(ctx, "summon", luffy, nil)
	resp = b.Dispatch(ctx, "income", luffy, nil)
	require.Len(t, resp.Embeds, 1)
	assert.Equal(t, "💸 Income Collected", resp.Embeds[0].Title)

	resp = b.Dispatch(ctx, "income", luffy, nil)
	assert.Contains(t, resp.Content, "seconds")
}

func TestLongBatchIsTruncated(t *testing.T) {
	res := game.PullResult{Balance: 0}
	item := catalog.Item{ID: "gomu", Name: "Gomu Gomu no Mi", Tier: gacha.Mythical, Category: "Zoan"}
	for i := 0; i < 100; i++ {
		res.Results = append(res.Results, game.PullOutcome{Item: item, Tier: gacha.Mythical, Power: 500, CopyCount: i + 1})
	}
	embed := summonEmbed(res)
	assert.LessOrEqual(t, len(embed.Description), 4096)
	assert.Contains(t, embed.Description, "more")
	assert.Contains(t, embed.Description, "Mythical: 100")
}

func TestUnknownCommand(t *testing.T) {
	b := newTestBot(t)
	resp := b.Dispatch(context.Background(), "steal", luffy, nil)
	assert.Equal(t, "Unknown command.", resp.Content)
}
