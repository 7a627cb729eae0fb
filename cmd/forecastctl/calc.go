package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"finora/internal/amqp"
	"finora/internal/cli"
	"finora/internal/core"
)

var (
	flagMonth  string
	flagNow    string
	flagExtras []string
	flagRemote bool
	flagOutput string
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Print the projected end-of-month balance as JSON",
	Example: `  forecastctl calc --month 2024-03 --now 2024-03-15
  forecastctl calc --month 2024-03 --extra expense:120.50 --extra income:40
  forecastctl calc --month 2024-03 --remote`,
	RunE: runCalc,
}

func init() {
	calcCmd.Flags().StringVar(&flagMonth, "month", "", "Target month (YYYY-MM, default current month)")
	calcCmd.Flags().StringVar(&flagNow, "now", "", "Reference instant (RFC3339 or YYYY-MM-DD, default now)")
	calcCmd.Flags().StringArrayVar(&flagExtras, "extra", nil, "Hypothetical adjustment as type:amount, repeatable")
	calcCmd.Flags().BoolVar(&flagRemote, "remote", false, "Send the request to the forecast worker over AMQP")
	calcCmd.Flags().StringVarP(&flagOutput, "output", "o", "json", "Output format: json or text")
	rootCmd.AddCommand(calcCmd)
}

// parseExtra parses "expense:12.50" or "income:40" into an Extra.
func parseExtra(s string) (core.Extra, error) {
	typ, amount, ok := strings.Cut(s, ":")
	if !ok {
		return core.Extra{}, fmt.Errorf("extra %q: expected type:amount", s)
	}
	t := core.ExtraType(strings.ToLower(strings.TrimSpace(typ)))
	if t != core.ExtraExpense && t != core.ExtraIncome {
		return core.Extra{}, fmt.Errorf("extra %q: type must be expense or income", s)
	}
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return core.Extra{}, fmt.Errorf("extra %q: %w", s, err)
	}
	return core.Extra{Type: t, AmountCts: cents}, nil
}

func buildRequest(month, now string, extras []string) (core.ForecastRequest, error) {
	if month == "" {
		month = core.MonthKeyOf(time.Now()).String()
	}
	req := core.ForecastRequest{Month: month, NowISO: now}
	for _, raw := range extras {
		e, err := parseExtra(raw)
		if err != nil {
			return core.ForecastRequest{}, err
		}
		req.Extras = append(req.Extras, e)
	}
	return req, nil
}

func runCalc(cmd *cobra.Command, _ []string) error {
	if flagOutput != "json" && flagOutput != "text" {
		return fmt.Errorf("unknown output format %q", flagOutput)
	}
	req, err := buildRequest(flagMonth, flagNow, flagExtras)
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var result core.ForecastResult
	if flagRemote {
		result, err = calcRemote(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.ForecastTimeout, req)
	} else {
		provider, res, openErr := cli.OpenBackend(ctx, cfg, logger)
		if openErr != nil {
			return openErr
		}
		defer provider.Close()
		engine, buildErr := cli.NewEngine(cfg, res, nil, logger)
		if buildErr != nil {
			return buildErr
		}
		result, err = engine.Calculate(ctx, req)
	}
	if err != nil {
		return err
	}

	return renderForecast(os.Stdout, result, flagOutput)
}

func renderForecast(w io.Writer, res core.ForecastResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	c := res.Components
	rows := []struct {
		label string
		cts   int64
	}{
		{"Baseline", c.BudgetBaseCts},
		{"Realized incomes", c.RealizedIncomesCts},
		{"Realized expenses", -c.RealizedExpensesCts},
		{"Recurring remaining", c.RecurringRemainingCts},
		{"Fixed remaining", -c.FixedRemainingCts},
		{"Extra incomes", c.ExtrasIncomeCts},
		{"Extra expenses", -c.ExtrasExpenseCts},
	}
	fmt.Fprintf(w, "Forecast %s\n", res.Month)
	for _, r := range rows {
		fmt.Fprintf(w, "  %-20s %12s\n", r.label, core.FormatCents(r.cts))
	}
	_, err := fmt.Fprintf(w, "  %-20s %12s\n", "Projected balance", core.FormatCents(res.ProjectedBalanceCts))
	return err
}

func calcRemote(ctx context.Context, url, exchange, queue string, timeout time.Duration, req core.ForecastRequest) (core.ForecastResult, error) {
	if url == "" {
		return core.ForecastResult{}, errors.New("--remote requires AMQP_URL")
	}
	client, err := amqp.NewClient(url, exchange, queue)
	if err != nil {
		return core.ForecastResult{}, err
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	reply, err := client.Call(ctx, req)
	if err != nil {
		return core.ForecastResult{}, fmt.Errorf("remote forecast: %w", err)
	}
	if !reply.OK || reply.Result == nil {
		return core.ForecastResult{}, fmt.Errorf("remote forecast failed (%s): %s", reply.Code, reply.Error)
	}
	return *reply.Result, nil
}
