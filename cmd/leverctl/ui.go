package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	cl "leverclick/internal/cli"
	"leverclick/internal/game"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
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

func promptPlayerName(label string) (string, error) {
	for {
		name, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		if err := game.ValidatePlayerName(name); err != nil {
			printWarn(err.Error())
			continue
		}
		return name, nil
	}
}

func renderMatch(view game.MatchView) {
	accent.Printf("\n== MATCH %s ==\n", view.ID)
	fmt.Printf("Status:    %s\n", statusLabel(view.Status))
	fmt.Printf("Players:   %s\n", strings.Join(view.Players, ", "))
	fmt.Printf("Positions: %d\n", view.Positions)
	fmt.Printf("Tick:      %d\n", view.Tick)
	fmt.Printf("Duration:  %s\n", view.Duration)
	if view.Status == game.MatchRunning {
		fmt.Printf("Remaining: %s\n", view.Remaining.Truncate(time.Second))
	}
	fmt.Println()
}

func renderMatches(views []game.MatchView) {
	accent.Println("\n== MATCHES ==")
	if len(views) == 0 {
		printInfo("No matches yet. Create one with `leverctl match create`.")
		return
	}
	fmt.Printf("%-36s %-9s %7s %9s %10s\n", "ID", "STATUS", "PLAYERS", "POSITIONS", "REMAINING")
	for _, v := range views {
		fmt.Printf("%-36s %-9s %7d %9d %10s\n",
			v.ID, v.Status, len(v.Players), v.Positions, v.Remaining.Truncate(time.Second))
	}
	fmt.Println()
}

func renderAccount(view game.AccountView) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(view.Name))
	if view.Bankrupt {
		danger.Println("BANKRUPT")
	}
	fmt.Printf("Balance:      %s\n", colorizeAmount(view.Balance))
	fmt.Printf("Available:    %s\n", formatAmount(view.Available))
	fmt.Printf("Locked stake: %s\n", formatAmount(view.LockedStake))
	fmt.Printf("Collateral:   %s\n", formatAmount(view.Collateral))
	fmt.Printf("Net worth:    %s\n", colorizeAmount(view.NetWorth))
	fmt.Printf("Production:   %s/s\n", view.ProductionRate.StringFixed(2))
	fmt.Printf("Click power:  %s (upgrade %s)\n", view.ClickPower.String(), formatAmount(view.ClickUpgradeCost))

	if len(view.Generators) > 0 {
		accent.Println("\nGenerators")
		fmt.Printf("%-14s %6s %14s %14s\n", "KIND", "COUNT", "PAID", "NEXT")
		for _, h := range view.Generators {
			fmt.Printf("%-14s %6d %14s %14s\n", h.Kind, h.Count, formatAmount(h.Paid), formatAmount(h.NextCost))
		}
	}
	if len(view.OpenPositions) > 0 {
		accent.Println("\nYour positions")
		renderPositions(view.OpenPositions, true)
	}
	if len(view.PositionsAgainstMe) > 0 {
		accent.Println("\nPositions on you")
		renderPositions(view.PositionsAgainstMe, false)
	}
	fmt.Println()
}

func renderPositions(rows []game.PositionView, mine bool) {
	who := "OWNER"
	if mine {
		who = "TARGET"
	}
	fmt.Printf("%-36s %-12s %-5s %10s %5s %10s %10s %12s\n", "ID", who, "DIR", "STAKE", "LEV", "ENTRY", "LIQ", "PNL")
	for _, p := range rows {
		name := p.Owner
		if mine {
			name = p.Target
		}
		fmt.Printf("%-36s %-12s %-5s %10s %4dx %10s %10s %12s\n",
			p.ID,
			truncate(name, 12),
			p.Direction,
			formatAmount(p.Stake),
			p.Leverage,
			formatAmount(p.EntryPrice),
			formatAmount(p.LiquidationPrice),
			colorizeAmount(p.UnrealizedPNL),
		)
	}
}

func renderStandings(rows []game.StandingRow) {
	accent.Println("\n== STANDINGS ==")
	if len(rows) == 0 {
		printInfo("No players yet.")
		return
	}
	fmt.Printf("%-6s %-18s %14s %14s\n", "RANK", "PLAYER", "NET WORTH", "BALANCE")
	for _, row := range rows {
		name := truncate(row.Name, 18)
		if row.Bankrupt {
			name = danger.Sprintf("%-18s", name)
		} else {
			name = fmt.Sprintf("%-18s", name)
		}
		fmt.Printf("%-6d %s %14s %14s\n", row.Rank, name, formatAmount(row.NetWorth), formatAmount(row.Balance))
	}
	fmt.Println()
}

// renderRanking prints the final views of a live feed ordered by net worth.
func renderRanking(views []game.AccountView) {
	rows := make([]game.StandingRow, 0, len(views))
	for _, v := range views {
		rows = append(rows, game.StandingRow{Name: v.Name, NetWorth: v.NetWorth, Balance: v.Balance, Bankrupt: v.Bankrupt})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].NetWorth.GreaterThan(rows[j].NetWorth) })
	for i := range rows {
		rows[i].Rank = int64(i + 1)
	}
	renderStandings(rows)
}

func renderLeaderboard(lb cl.Leaderboard) {
	accent.Println("\n== LEADERBOARD ==")
	if len(lb.Players) == 0 {
		printInfo("No finished matches yet.")
		return
	}
	fmt.Printf("%-6s %-18s %8s %6s %14s %8s\n", "RANK", "PLAYER", "MATCHES", "WINS", "BEST", "BUSTS")
	for i, row := range lb.Players {
		fmt.Printf("%-6d %-18s %8d %6d %14s %8d\n",
			i+1, truncate(row.Name, 18), row.Matches, row.Wins, formatAmount(row.BestNetWorth), row.Bankruptcies)
	}
	if len(lb.Recent) > 0 {
		accent.Println("\nRecent matches")
		for _, r := range lb.Recent {
			winner := "-"
			if len(r.Standings) > 0 {
				winner = r.Standings[0].Name + " " + formatAmount(r.Standings[0].NetWorth)
			}
			fmt.Printf("%s  %s  %d ticks  winner %s\n", r.FinishedAt.Format(time.DateTime), r.MatchID, r.Ticks, winner)
		}
	}
	fmt.Println()
}

func renderGenerators(rows []game.GeneratorView) {
	accent.Println("\n== GENERATORS ==")
	fmt.Printf("%-14s %-16s %12s %10s\n", "KIND", "NAME", "BASE COST", "RATE/S")
	for _, g := range rows {
		fmt.Printf("%-14s %-16s %12s %10s\n", g.Kind, g.DisplayName, formatAmount(g.BaseCost), g.Rate.String())
	}
	fmt.Println()
}

func renderOpen(out game.OpenResult) {
	verb := "Opened"
	if out.Merged {
		verb = "Merged into"
	}
	p := out.Position
	printSuccess(fmt.Sprintf("%s %s %s on %s: stake %s at %dx, entry %s, liquidation %s",
		verb, p.ID, p.Direction, p.Target, formatAmount(p.Stake), p.Leverage,
		formatAmount(p.EntryPrice), formatAmount(p.LiquidationPrice)))
}

func renderClose(out game.CloseResult) {
	msg := fmt.Sprintf("Closed %s at %s: pnl %s, transferred %s, balance %s",
		out.PositionID, formatAmount(out.ClosePrice), colorizeAmount(out.PNL),
		formatAmount(out.Transfer), formatAmount(out.Balance))
	if out.Bankruptcy {
		printWarn(msg + " (counterparty bankrupt)")
		return
	}
	printSuccess(msg)
}

func renderBuy(out game.BuyResult) {
	printSuccess(fmt.Sprintf("Bought %s #%d for %s. Balance %s",
		out.Kind, out.NewCount, formatAmount(out.Cost), formatAmount(out.Balance)))
}

func renderEvents(events []game.Event) {
	for _, e := range events {
		renderEvent(e)
	}
}

func renderEvent(e game.Event) {
	line := fmt.Sprintf("[%04d] %-19s %s", e.Seq, e.Type, eventSummary(e))
	switch e.Type {
	case game.EventPositionLiquidated, game.EventBankruptcy:
		printError(line)
	case game.EventMatchStarted, game.EventMatchFinished:
		accent.Println(line)
	default:
		printInfo(line)
	}
}

func eventSummary(e game.Event) string {
	parts := make([]string, 0, 4)
	if e.Player != "" {
		parts = append(parts, e.Player)
	}
	if e.Counterparty != "" {
		parts = append(parts, "-> "+e.Counterparty)
	}
	if !e.Amount.IsZero() {
		parts = append(parts, formatAmount(e.Amount))
	}
	if e.Detail != "" {
		parts = append(parts, "("+e.Detail+")")
	}
	return strings.Join(parts, " ")
}

func statusLabel(s game.MatchStatus) string {
	switch s {
	case game.MatchRunning:
		return success.Sprint(s)
	case game.MatchFinished:
		return neutral.Sprint(s)
	default:
		return warn.Sprint(s)
	}
}

func colorizeAmount(v decimal.Decimal) string {
	text := formatAmount(v)
	switch v.Sign() {
	case 1:
		return success.Sprint(text)
	case -1:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatAmount(v decimal.Decimal) string {
	sign := ""
	if v.Sign() < 0 {
		sign = "-"
		v = v.Neg()
	}
	fixed := v.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + comma(whole) + "." + frac
}

func comma(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
