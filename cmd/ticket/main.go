package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"hl-order-engine/internal/app"
	"hl-order-engine/internal/asset"
	"hl-order-engine/internal/config"
	"hl-order-engine/internal/logging"
	"hl-order-engine/internal/order"
	"hl-order-engine/internal/payload"
	"hl-order-engine/internal/transfer"
	"hl-order-engine/internal/txflow"

	"go.uber.org/zap"
)

const usage = `usage: ticket [global flags] <command> [flags]

commands:
  run        stream market and account data, serve metrics
  order      open an order (perp or spot)
  close      close a perp position at market
  tpsl       replace the take-profit / stop-loss on a position
  withdraw   withdraw USDC to the bridge chain
  transfer   move USDC between spot and perps
  stake      delegate to a validator
  unstake    undelegate from a validator
  deposit    deposit USDC through the bridge
  prefs      show or set confirmation-skip preferences
`

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to .env file")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *metricsAddr != "" {
		enabled := true
		cfg.Metrics.Enabled = &enabled
		cfg.Metrics.Address = *metricsAddr
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := application.Start(ctx); err != nil {
		log.Error("failed to start app", zap.Error(err))
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := dispatch(ctx, application, cmd, args); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("command failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "run":
		return a.Run(ctx)
	case "order":
		return runOrder(ctx, a, args)
	case "close":
		return runClose(ctx, a, args)
	case "tpsl":
		return runTpsl(ctx, a, args)
	case "withdraw":
		return runWithdraw(ctx, a, args)
	case "transfer":
		return runTransfer(ctx, a, args)
	case "stake", "unstake":
		return runStake(ctx, a, args, cmd == "unstake")
	case "deposit":
		return runDeposit(ctx, a, args)
	case "prefs":
		return runPrefs(ctx, a, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type instrumentFlags struct {
	symbol *string
	venue  *string
	spot   *bool
}

func addInstrumentFlags(fs *flag.FlagSet) instrumentFlags {
	return instrumentFlags{
		symbol: fs.String("symbol", "", "market symbol (BTC, HYPE/USDC, xyz:GOLD)"),
		venue:  fs.String("venue", "", "alternate perp venue"),
		spot:   fs.Bool("spot", false, "spot market"),
	}
}

func (f instrumentFlags) resolve(a *app.App) (asset.Instrument, error) {
	kind := asset.KindPerp
	if *f.spot {
		kind = asset.KindSpot
	}
	return a.Market().Instrument(strings.TrimSpace(*f.symbol), kind, strings.TrimSpace(*f.venue))
}

func runOrder(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("order", flag.ExitOnError)
	inst := addInstrumentFlags(fs)
	side := fs.String("side", "buy", "buy or sell")
	kind := fs.String("type", "market", "market or limit")
	tif := fs.String("tif", "", "Gtc, Ioc or Alo for limit orders")
	price := fs.String("price", "", "limit price")
	margin := fs.String("margin", "", "perp margin in USDC")
	leverage := fs.Int("leverage", 0, "perp leverage (defaults to the position or last used)")
	mode := fs.String("mode", "", "cross or isolated")
	size := fs.String("size", "", "spot size in base token")
	percent := fs.String("percent", "", "spot size as percent of balance")
	tp := fs.String("tp", "", "take-profit trigger price")
	sl := fs.String("sl", "", "stop-loss trigger price")
	reduceOnly := fs.Bool("reduce-only", false, "reduce-only")
	yes := fs.Bool("yes", false, "submit without prompting")
	dryRun := fs.Bool("dry-run", false, "print the submission plan and exit")
	_ = fs.Parse(args)

	instrument, err := inst.resolve(a)
	if err != nil {
		return err
	}
	d := a.NewDraft(ctx, instrument, order.Side(strings.ToLower(*side)))
	d.Kind = order.Kind(strings.ToLower(*kind))
	d.Tif = order.Tif(*tif)
	d.Price = *price
	d.Margin = *margin
	d.Size = *size
	d.Percent = *percent
	d.TakeProfit = *tp
	d.StopLoss = *sl
	d.ReduceOnly = *reduceOnly
	if *leverage > 0 {
		d.Leverage = *leverage
	}
	if *mode != "" {
		d.MarginMode = order.MarginMode(strings.ToLower(*mode))
	}

	t, err := a.Ticket(ctx, d)
	if err != nil {
		return err
	}
	stats, err := a.Preview(t)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s @ %s  notional %s  margin %s  tif %s\n", instrument, d.Side, stats.Size, stats.Price, stats.Notional, stats.Margin, stats.Tif)
	if stats.TPSL.TakeProfit.Set {
		fmt.Printf("  take profit %.2f%% move\n", stats.TPSL.TakeProfit.Percent)
	}
	if stats.TPSL.StopLoss.Set {
		fmt.Printf("  stop loss %.2f%% move\n", stats.TPSL.StopLoss.Percent)
	}
	if *dryRun {
		plan, err := a.OpenPlan(t)
		if err != nil {
			return err
		}
		printPlan(plan)
		return nil
	}
	return drive(ctx, a.OrderFlow(ctx, t), *yes)
}

func runClose(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	inst := addInstrumentFlags(fs)
	yes := fs.Bool("yes", false, "submit without prompting")
	_ = fs.Parse(args)
	instrument, err := inst.resolve(a)
	if err != nil {
		return err
	}
	return drive(ctx, a.CloseFlow(ctx, instrument), *yes)
}

func runTpsl(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("tpsl", flag.ExitOnError)
	inst := addInstrumentFlags(fs)
	tp := fs.String("tp", "", "take-profit trigger price (empty removes it)")
	sl := fs.String("sl", "", "stop-loss trigger price (empty removes it)")
	yes := fs.Bool("yes", false, "submit without prompting")
	_ = fs.Parse(args)
	instrument, err := inst.resolve(a)
	if err != nil {
		return err
	}
	return drive(ctx, a.TpslFlow(ctx, instrument, *tp, *sl), *yes)
}

func runWithdraw(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	to := fs.String("to", "", "destination address")
	amount := fs.String("amount", "", "USDC amount")
	yes := fs.Bool("yes", false, "submit without prompting")
	_ = fs.Parse(args)
	return drive(ctx, a.WithdrawFlow(ctx, transfer.WithdrawRequest{Destination: *to, Amount: *amount}), *yes)
}

func runTransfer(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	amount := fs.String("amount", "", "USDC amount")
	toPerp := fs.Bool("to-perp", false, "move from spot to perps (default perps to spot)")
	yes := fs.Bool("yes", false, "submit without prompting")
	_ = fs.Parse(args)
	return drive(ctx, a.TransferFlow(ctx, transfer.ClassTransferRequest{Amount: *amount, ToPerp: *toPerp}), *yes)
}

func runStake(ctx context.Context, a *app.App, args []string, unstake bool) error {
	fs := flag.NewFlagSet("stake", flag.ExitOnError)
	validator := fs.String("validator", "", "validator address")
	amount := fs.String("amount", "", "token amount")
	yes := fs.Bool("yes", false, "submit without prompting")
	_ = fs.Parse(args)
	req := transfer.StakeRequest{Validator: *validator, Amount: *amount, Unstake: unstake}
	return drive(ctx, a.StakeFlow(ctx, req), *yes)
}

func runDeposit(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	amount := fs.String("amount", "", "USDC amount")
	yes := fs.Bool("yes", false, "submit without prompting")
	_ = fs.Parse(args)
	return drive(ctx, a.DepositFlow(ctx, transfer.DepositRequest{Amount: *amount}), *yes)
}

func runPrefs(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("prefs", flag.ExitOnError)
	class := fs.String("class", "", "action class")
	skip := fs.String("skip-confirmation", "", "true or false")
	_ = fs.Parse(args)
	if *class != "" {
		switch *skip {
		case "true", "false":
			if err := a.SetSkipConfirmation(ctx, txflow.ActionClass(*class), *skip == "true"); err != nil {
				return err
			}
		default:
			return errors.New("-skip-confirmation must be true or false")
		}
	}
	all := a.Prefs().All()
	classes := make([]string, 0, len(txflow.Classes()))
	for _, c := range txflow.Classes() {
		classes = append(classes, string(c))
	}
	sort.Strings(classes)
	for _, c := range classes {
		fmt.Printf("%-15s skip_confirmation=%v\n", c, all[txflow.ActionClass(c)])
	}
	return nil
}

// drive walks a flow from form to a terminal step, prompting at confirm
// unless yes is set.
func drive(ctx context.Context, m *txflow.Machine, yes bool) error {
	defer m.Dispose()
	if err := m.Continue(ctx); err != nil {
		return report(m, err)
	}
	if m.Step() == txflow.StepConfirm {
		if !yes && !confirm() {
			m.Back()
			fmt.Println("cancelled")
			return nil
		}
		if err := m.Submit(ctx); err != nil {
			return report(m, err)
		}
	}
	fmt.Println("submitted")
	return nil
}

func report(m *txflow.Machine, err error) error {
	var verr *order.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("invalid %s: %s", verr.Field, verr.Message)
	}
	if f, ok := m.Failure(); ok {
		switch {
		case f.Unprotected:
			fmt.Println("WARNING: previous TP/SL orders were cancelled and the position is now unprotected")
		case f.Partial:
			fmt.Println("WARNING: the submission completed only partially")
		}
		if f.Retryable {
			fmt.Println("the action can be retried")
		}
	}
	return err
}

func confirm() bool {
	fmt.Print("submit? [y/N] ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printPlan(plan payload.Plan) {
	for i, step := range plan.Steps {
		switch {
		case step.Leverage != nil:
			fmt.Printf("%d. %s asset=%d leverage=%d cross=%v\n", i+1, step.Kind, step.Leverage.Asset, step.Leverage.Leverage, step.Leverage.IsCross)
		case len(step.Cancels) > 0:
			fmt.Printf("%d. %s %d orders\n", i+1, step.Kind, len(step.Cancels))
		case step.Order != nil:
			o := step.Order
			fmt.Printf("%d. %s asset=%d %s %s @ %s reduce_only=%v\n", i+1, step.Kind, o.Asset, o.Side, o.Size, o.Price, o.ReduceOnly)
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
