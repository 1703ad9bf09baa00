package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	applog "fintrack/internal/log"

	"github.com/google/uuid"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	var (
		userFlag   = flag.String("user", "", "user id (UUID)")
		budgetFlag = flag.String("budget", "", "evaluate one budget")
		rulesFlag  = flag.Bool("rules", false, "evaluate the user's active rules")
		txFlag     = flag.String("transaction", "", "apply one transaction to the user's goals")
		alertsFlag = flag.Bool("alerts", false, "list the user's unread alerts")
		readFlag   = flag.String("mark-read", "", "mark one alert read")
		atFlag     = flag.String("at", "", "evaluation date (YYYY-MM-DD), default today")
		syncFlag   = flag.Bool("sync", false, "evaluate in-process instead of queueing for the worker")
	)
	flag.Parse()

	logger := cli.SetupLogger(cfg, applog.ComponentEval)

	cmd, err := parseCommand(*userFlag, *budgetFlag, *rulesFlag, *txFlag, *alertsFlag, *readFlag, *atFlag, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	queued := !*syncFlag && cmd.kind != "" && cfg.AMQPURL != ""
	res := cli.InitBackend(ctx, logger, cfg, queued)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", "error", err)
		}
	}()

	if queued {
		err = enqueue(ctx, res.Backend.AMQP, cmd)
	} else {
		err = run(ctx, os.Stdout, res.Backend, cmd)
	}
	if err != nil {
		logger.Error("Evaluation failed", "error", err, applog.FieldOperation, applog.OpEvaluate)
		os.Exit(1)
	}
}

func enqueue(ctx context.Context, client *amqp.Client, cmd command) error {
	req := amqp.NewEvaluationRequest(cmd.kind, cmd.user, cmd.entity)
	req.At = cmd.at
	return client.PublishEvaluationRequest(ctx, req)
}

// run executes cmd against the in-process services and prints the outcome.
func run(ctx context.Context, w io.Writer, b *backend.Backend, cmd command) error {
	switch {
	case cmd.markRead != uuid.Nil:
		if err := b.Alerts.MarkRead(ctx, cmd.markRead); err != nil {
			return err
		}
		fmt.Fprintf(w, "alert %s marked read\n", cmd.markRead)
		return nil

	case cmd.listAlerts:
		alerts, err := b.Alerts.List(ctx, cmd.user, true)
		if err != nil {
			return err
		}
		for _, a := range alerts {
			fmt.Fprintf(w, "%s  %-6s %s  %s\n", a.ID, a.SourceType, a.PeriodKey, a.Message)
		}
		fmt.Fprintf(w, "%d unread alert(s)\n", len(alerts))
		return nil
	}

	switch cmd.kind {
	case amqp.EvaluateBudget:
		ev, err := b.Budgets.EvaluateBudget(ctx, cmd.entity)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "budget %s: %s (alert created: %t)\n", ev.BudgetID, ev.Status, ev.AlertCreated)
		for _, id := range ev.ExceededCategories {
			fmt.Fprintf(w, "  exceeded category %s\n", id)
		}
	case amqp.EvaluateRules:
		sweep, err := b.Rules.EvaluateRulesForUser(ctx, cmd.user, cmd.at)
		if err != nil {
			return err
		}
		for _, r := range sweep.Results {
			fmt.Fprintf(w, "rule %q %s: spent %s threshold %s breached %t\n", r.Name, r.PeriodKey, r.Spent, r.Threshold, r.Breached)
		}
		for _, e := range sweep.Errors {
			fmt.Fprintf(w, "error: %v\n", e)
		}
	case amqp.EvaluateTransaction:
		upd, err := b.Goals.UpdateGoalsForTransaction(ctx, cmd.entity)
		if err != nil {
			return err
		}
		for _, g := range upd.Goals {
			fmt.Fprintf(w, "goal %s: +%s now %s completed %t\n", g.GoalID, g.Contributed, g.CurrentAmount, g.Completed)
		}
		for _, e := range upd.Errors {
			fmt.Fprintf(w, "error: %v\n", e)
		}
	case amqp.EvaluateUser:
		report := b.Sweeper.SweepUser(ctx, cmd.user, cmd.at)
		fmt.Fprintf(w, "budgets %d, rules %d, alerts created %d, failures %d\n",
			report.BudgetsEvaluated, report.RulesEvaluated, report.AlertsCreated, report.Failures)
	}
	return nil
}
