package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"leverclick/internal/game"
)

// eventPrinter renders every update of the local tutorial match.
type eventPrinter struct{}

func (eventPrinter) Name() string { return "terminal" }

func (eventPrinter) Publish(_ context.Context, update game.MatchUpdate) error {
	renderEvents(update.Events)
	return nil
}

func newTutorialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tutorial",
		Short: "Play a scripted two player match locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTutorial(cmd.Context())
		},
	}
}

func runTutorial(ctx context.Context) error {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := game.NewManualClock(time.Now())
	m := game.NewMatch(game.MatchConfig{Rules: game.DefaultRules(), Duration: 5 * time.Second}, quiet, clock.Now())
	runner := game.NewRunner(m, game.RunnerConfig{
		Clock:      clock,
		Publishers: []game.Publisher{eventPrinter{}},
	}, quiet)

	step := func(title string) {
		accent.Printf("\n-- %s --\n", title)
	}
	tick := func(d time.Duration) bool {
		clock.Advance(d)
		_, done := runner.Step(ctx)
		return done
	}

	step("alice and bob join with 500 each")
	for _, name := range []string{"alice", "bob"} {
		if _, err := m.Join(name, clock.Now()); err != nil {
			return err
		}
	}
	if _, err := m.Start(clock.Now()); err != nil {
		return err
	}
	tick(0)

	step("alice goes long on bob: stake 100 at 5x")
	opened, err := m.OpenPosition(game.OpenInput{
		Owner: "alice", Target: "bob", Direction: game.Long,
		Stake: decimal.NewFromInt(100), Leverage: 5,
	}, clock.Now())
	if err != nil {
		return err
	}
	renderOpen(opened)
	printInfo("Bob's balance is the price. Below the liquidation price alice forfeits her stake to bob.")

	step("bob spends on generators and drags his own price down")
	for i := 0; i < 2; i++ {
		bought, err := m.BuyGenerator("bob", "intern", clock.Now())
		if err != nil {
			return err
		}
		renderBuy(bought)
	}
	tick(100 * time.Millisecond)

	step("alice shorts bob after the drop: stake 50 at 2x")
	short, err := m.OpenPosition(game.OpenInput{
		Owner: "alice", Target: "bob", Direction: game.Short,
		Stake: decimal.NewFromInt(50), Leverage: 2,
	}, clock.Now())
	if err != nil {
		return err
	}
	renderOpen(short)

	step("bob clicks a few times and alice takes profit or loss")
	for i := 0; i < 10; i++ {
		if _, err := m.Click("bob"); err != nil {
			return err
		}
	}
	tick(time.Second)
	closed, err := m.ClosePosition("alice", short.Position.ID, clock.Now())
	if err != nil {
		return err
	}
	renderClose(closed)

	step("the clock runs out")
	for !tick(time.Second) {
	}
	renderStandings(m.Standings())
	fmt.Println("Run `leverctl match create` against a server to play for real.")
	return nil
}
