package discord

import (
	"fmt"
	"strings"
	"time"

	"fruitbot/internal/gacha"
	"fruitbot/internal/game"
	"fruitbot/internal/ledger"

	"github.com/bwmarrin/discordgo"
)

// Discord rejects descriptions past 4096 characters.
const maxDescription = 3800

var tierColors = map[gacha.Tier]int{
	gacha.Common:    0x95A5A6,
	gacha.Uncommon:  0x2ECC71,
	gacha.Rare:      0x3498DB,
	gacha.Epic:      0x9B59B6,
	gacha.Legendary: 0xF1C40F,
	gacha.Mythical:  0xE67E22,
	gacha.Divine:    0xFF0000,
}

var tierSquares = map[gacha.Tier]string{
	gacha.Common:    "⬜",
	gacha.Uncommon:  "🟩",
	gacha.Rare:      "🟦",
	gacha.Epic:      "🟪",
	gacha.Legendary: "🟨",
	gacha.Mythical:  "🟧",
	gacha.Divine:    "🟥",
}

func tierLabel(t gacha.Tier) string {
	s := t.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func errorResponse(err error) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content: "⚠️ " + ledger.PublicMessage(err),
		Flags:   discordgo.MessageFlagsEphemeral,
	}
}

func summonEmbed(res game.PullResult) *discordgo.MessageEmbed {
	var (
		b       strings.Builder
		best    = gacha.Common
		counts  = make(map[gacha.Tier]int, gacha.NumTiers)
		omitted int
	)
	b.WriteString("🎉 **Summoning Complete!**\n\n")
	for i, r := range res.Results {
		counts[r.Tier]++
		if r.Tier.Rank() > best.Rank() {
			best = r.Tier
		}
		status := fmt.Sprintf("x%d", r.CopyCount)
		if r.IsFirstCopy {
			status = "✨ New!"
		}
		pity := ""
		if r.PityConsumed {
			pity = " 🎯"
		}
		line := fmt.Sprintf("**%d.** %s **%s**%s\n      %s | %s | 💪 %d\n",
			i+1, tierSquares[r.Tier], r.Item.Name, pity, status, r.Item.Category, r.Power)
		if b.Len()+len(line) > maxDescription-600 {
			omitted++
			continue
		}
		b.WriteString(line)
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "…and %d more\n", omitted)
	}

	b.WriteString("\n📊 **Rarity Summary:**\n")
	for i := len(gacha.Tiers) - 1; i >= 0; i-- {
		t := gacha.Tiers[i]
		if n := counts[t]; n > 0 {
			fmt.Fprintf(&b, "%s %s: %d\n", tierSquares[t], tierLabel(t), n)
		}
	}
	fmt.Fprintf(&b, "\n💰 **Remaining Berries:** %d\n", res.Balance)
	fmt.Fprintf(&b, "🎯 **Pity:** %d", res.PityCounter)

	footer := "🏴‍☠️ Your legend grows on the Grand Line!"
	if res.PityUsedInSession {
		footer = "✨ PITY ACTIVATED THIS SESSION! | Your legend grows on the Grand Line!"
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🍈 %dx Devil Fruit Results!", len(res.Results)),
		Description: b.String(),
		Color:       tierColors[best],
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

func balanceEmbed(v game.BalanceView) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "💰 Berry Balance",
		Color: tierColors[gacha.Legendary],
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Berries", Value: fmt.Sprintf("%d", v.Balance), Inline: true},
			{Name: "Level", Value: fmt.Sprintf("%d", v.Level), Inline: true},
			{Name: "Total Power", Value: fmt.Sprintf("%d", v.AggregatePower), Inline: true},
			{Name: "Unique Fruits", Value: fmt.Sprintf("%d", v.UniqueItems), Inline: true},
			{Name: "Hourly Income", Value: fmt.Sprintf("%d/h", v.HourlyRate), Inline: true},
			{Name: "Total Pulls", Value: fmt.Sprintf("%d", v.TotalPulls), Inline: true},
		},
	}
}

func incomeEmbed(res game.CollectResult) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Manual Claim", Value: fmt.Sprintf("+%d", res.Manual.Granted), Inline: true},
		{Name: "Hourly Rate", Value: fmt.Sprintf("%d/h", res.Manual.HourlyRate), Inline: true},
		{Name: "Balance", Value: fmt.Sprintf("%d", res.Manual.Balance), Inline: true},
	}
	if res.Passive.Granted > 0 {
		fields = append([]*discordgo.MessageEmbedField{{
			Name:   "Passive Income",
			Value:  fmt.Sprintf("+%d over %.0fh", res.Passive.Granted, res.Passive.HoursAccumulated),
			Inline: true,
		}}, fields...)
	}
	return &discordgo.MessageEmbed{
		Title:  "💸 Income Collected",
		Color:  tierColors[gacha.Uncommon],
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Next manual claim in %s", res.Manual.Cooldown.Round(time.Second)),
		},
	}
}

func pityEmbed(p game.PityInfo) *discordgo.MessageEmbed {
	status := "💤 Pity Inactive"
	if p.Current >= p.SoftPity {
		status = "🔥 Pity Active!"
	}
	desc := fmt.Sprintf("%d/%d pulls (%.1f%%)\n%s\n%d pulls until a guaranteed Mythical or Divine fruit.",
		p.Current, p.HardPity, p.Percentage, status, p.Remaining)
	if p.Degraded {
		desc += "\n_Pity data is temporarily unavailable._"
	}
	return &discordgo.MessageEmbed{
		Title:       "🎯 Pity Progress",
		Description: desc,
		Color:       tierColors[gacha.Mythical],
	}
}

func collectionEmbed(items []game.CollectionItem) *discordgo.MessageEmbed {
	if len(items) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "📦 Devil Fruit Collection",
			Description: "No fruits yet. Use /summon to start collecting!",
			Color:       tierColors[gacha.Common],
		}
	}
	var (
		b       strings.Builder
		omitted int
	)
	for _, it := range items {
		line := fmt.Sprintf("%s **%s** x%d | 💪 %d\n", tierSquares[it.Tier], it.ItemName, it.Copies, it.BestPower)
		if b.Len()+len(line) > maxDescription {
			omitted++
			continue
		}
		b.WriteString(line)
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "…and %d more", omitted)
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("📦 Devil Fruit Collection (%d unique)", len(items)),
		Description: b.String(),
		Color:       tierColors[items[0].Tier],
	}
}
