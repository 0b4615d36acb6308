package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"fruitbot/internal/catalog"
	"fruitbot/internal/gacha"
	"fruitbot/internal/game"
	"fruitbot/internal/ledger"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

var tierColors = map[gacha.Tier]*color.Color{
	gacha.Common:    color.New(color.FgWhite),
	gacha.Uncommon:  color.New(color.FgGreen),
	gacha.Rare:      color.New(color.FgBlue),
	gacha.Epic:      color.New(color.FgMagenta),
	gacha.Legendary: color.New(color.FgYellow, color.Bold),
	gacha.Mythical:  color.New(color.FgHiRed, color.Bold),
	gacha.Divine:    color.New(color.FgRed, color.Bold, color.Underline),
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Fprintln(os.Stderr, msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptConfirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func tierText(t gacha.Tier) string {
	c, ok := tierColors[t]
	if !ok {
		return string(t)
	}
	return c.Sprint(strings.ToUpper(string(t)))
}

func formatBerries(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func colorizeDelta(v int64) string {
	switch {
	case v > 0:
		return success.Sprint("+" + formatBerries(v))
	case v < 0:
		return danger.Sprint(formatBerries(v))
	default:
		return "0"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func renderPulls(out game.PullResult) {
	accent.Printf("\n== SUMMON x%d ==\n", len(out.Results))
	counts := make(map[gacha.Tier]int, gacha.NumTiers)
	for i, r := range out.Results {
		counts[r.Tier]++
		tags := make([]string, 0, 2)
		if r.IsFirstCopy {
			tags = append(tags, success.Sprint("NEW"))
		} else {
			tags = append(tags, fmt.Sprintf("x%d", r.CopyCount))
		}
		if r.PityKind != "" {
			tags = append(tags, warn.Sprint("PITY:"+strings.ToUpper(r.PityKind)))
		}
		fmt.Printf("%3d. %-12s %-28s power %-5d %s\n", i+1, tierText(r.Tier), truncate(r.Item.Name, 28), r.Power, strings.Join(tags, " "))
	}
	fmt.Println()
	parts := make([]string, 0, gacha.NumTiers)
	for i := gacha.NumTiers - 1; i >= 0; i-- {
		t := gacha.Tiers[i]
		if n := counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", tierText(t), n))
		}
	}
	fmt.Printf("Rarity:     %s\n", strings.Join(parts, "  "))
	fmt.Printf("Spent:      %s berries\n", formatBerries(out.TotalCost))
	fmt.Printf("Remaining:  %s berries\n", formatBerries(out.Balance))
	fmt.Printf("Pity:       %d\n", out.PityCounter)
	if out.PityUsedInSession {
		warn.Println("Pity was consumed during this summon.")
	}
}

func renderBalance(b game.BalanceView) {
	accent.Printf("\n== %s ==\n", b.PlayerID)
	if b.Degraded {
		printWarn("Some values could not be loaded.")
	}
	fmt.Printf("Berries:        %s\n", formatBerries(b.Balance))
	fmt.Printf("Level:          %d\n", b.Level)
	fmt.Printf("Total Pulls:    %d\n", b.TotalPulls)
	fmt.Printf("Unique Fruits:  %d\n", b.UniqueItems)
	fmt.Printf("Hourly Income:  %s berries\n", formatBerries(b.HourlyRate))
	fmt.Printf("Total Power:    %d\n", b.AggregatePower)
	fmt.Printf("Earned/Spent:   %s / %s\n", formatBerries(b.TotalEarned), formatBerries(b.TotalSpent))
}

func renderIncome(title string, r game.IncomeResult) {
	accent.Printf("\n== %s ==\n", title)
	if r.Granted == 0 {
		printInfo(fmt.Sprintf("Nothing to collect yet. Next at %s.", r.NextAt.Local().Format("15:04:05")))
		return
	}
	fmt.Printf("Granted:   %s berries\n", colorizeDelta(r.Granted))
	if r.PeriodsElapsed > 0 {
		fmt.Printf("Hours:     %.1f\n", r.HoursAccumulated)
	}
	fmt.Printf("Rate:      %s berries/h (%d unique)\n", formatBerries(r.HourlyRate), r.UniqueItems)
	fmt.Printf("Balance:   %s berries\n", formatBerries(r.Balance))
	fmt.Printf("Next:      %s\n", r.NextAt.Local().Format("15:04:05"))
}

func renderPity(p game.PityInfo) {
	accent.Println("\n== PITY ==")
	if p.Degraded {
		printWarn("Pity could not be loaded, showing defaults.")
	}
	const width = 30
	filled := 0
	if p.HardPity > 0 {
		filled = p.Current * width / p.HardPity
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	fmt.Printf("[%s] %d/%d (%.1f%%)\n", bar, p.Current, p.HardPity, p.Percentage)
	fmt.Printf("Soft pity at %d, guaranteed in %d pulls.\n", p.SoftPity, p.Remaining)
}

func renderCollection(items []game.CollectionItem) {
	accent.Printf("\n== COLLECTION (%d) ==\n", len(items))
	if len(items) == 0 {
		printInfo("No fruits yet. Try `fruitctl pull`.")
		return
	}
	fmt.Printf("%-12s %-28s %-10s %-10s %6s %6s\n", "TIER", "NAME", "TYPE", "ELEMENT", "COPIES", "BEST")
	for _, it := range items {
		fmt.Printf("%-12s %-28s %-10s %-10s %6d %6d\n",
			tierText(it.Tier), truncate(it.ItemName, 28), it.Category, it.Element, it.Copies, it.BestPower)
	}
}

func renderHistory(entries []ledger.Entry) {
	accent.Println("\n== HISTORY ==")
	if len(entries) == 0 {
		printInfo("No ledger entries.")
		return
	}
	fmt.Printf("%-19s %-17s %14s %14s  %s\n", "TIME", "REASON", "DELTA", "BALANCE", "NOTE")
	for _, e := range entries {
		fmt.Printf("%-19s %-17s %14s %14s  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Reason, colorizeDelta(e.Delta), formatBerries(e.BalanceAfter), e.Note)
	}
}

func renderStats(s ledger.Stats) {
	accent.Println("\n== ECONOMY ==")
	fmt.Printf("Players:      %d\n", s.Players)
	fmt.Printf("Circulation:  %s berries\n", formatBerries(s.Circulation))
	fmt.Printf("Total Pulls:  %d\n", s.TotalPulls)
	for i := gacha.NumTiers - 1; i >= 0; i-- {
		t := gacha.Tiers[i]
		fmt.Printf("  %-12s %d\n", tierText(t), s.GrantsByTier[t])
	}
}

func renderCatalog(c *catalog.Catalog) {
	accent.Printf("\n== CATALOG (%d items) ==\n", c.Len())
	rates := c.Rates()
	for i := gacha.NumTiers - 1; i >= 0; i-- {
		t := gacha.Tiers[i]
		fmt.Printf("%-12s %7.3f%%  %d items\n", tierText(t), rates.Weight(t), c.TierSize(t))
	}
	if empty := c.EmptyTiers(); len(empty) > 0 {
		names := make([]string, len(empty))
		for i, t := range empty {
			names[i] = string(t)
		}
		printWarn("Tiers without items will draw generated placeholders: " + strings.Join(names, ", "))
	}
	printSuccess("Catalog is valid.")
}

func renderSimulation(r gacha.SimulationReport) {
	accent.Printf("\n== SIMULATION (%d pulls) ==\n", r.Pulls)
	tiers := make([]gacha.Tier, 0, len(r.TierCounts))
	for t := range r.TierCounts {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Rank() > tiers[j].Rank() })
	for _, t := range tiers {
		n := r.TierCounts[t]
		fmt.Printf("%-12s %8d  %7.3f%%\n", tierText(t), n, float64(n)*100/float64(max(r.Pulls, 1)))
	}
	fmt.Printf("Hard pity hits:      %d\n", r.HardPityHits)
	fmt.Printf("Forced pity hits:    %d\n", r.ForcedHits)
	fmt.Printf("Longest drought:     %d\n", r.LongestDrought)
	fmt.Printf("Mean top-two gap:    %.1f\n", r.MeanTopTwoInterval)
}
