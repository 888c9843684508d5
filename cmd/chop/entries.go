package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"data-chopper/internal/app"
	"data-chopper/internal/models/entities"
	"data-chopper/internal/models/ports"
	"data-chopper/internal/pkg/config"
	"data-chopper/internal/pkg/logger"
	"data-chopper/internal/pkg/metrics"
	"data-chopper/internal/usecase"
)

// newApp подключается к хранилищу и применяет схему
var newApp = app.New

type entriesOptions struct {
	sections    string
	statuses    string
	percent     int
	minEntries  int
	skipConfirm bool
	dryRun      bool
	verbose     bool
	wait        bool
}

func newEntriesCmd() *cobra.Command {
	opts := &entriesOptions{}

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Randomly delete entries from sections while preserving status distribution",
		Long: `Randomly delete entries from sections while preserving status distribution.

Every (section, status) pair loses the requested percentage of its entries,
rounded up, but never drops below the minimum entries floor. Deletions run
asynchronously in batches on the task queue.

SAFETY:
- Refuses to run outside the allowed environments (CHOP_ALLOWED_ENVIRONMENTS)
- Shows a per-partition summary and asks for confirmation (skip with --yes)
- Use --dry-run to log what would be deleted without deleting anything

EXAMPLES:
  chop entries --sections blog,news --percent 50
  chop entries -s blog -S live,disabled -p 80 -m 10 --dry-run
  chop entries --sections all --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntries(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.sections, "sections", "s", "", "Comma-separated section handles to target (\"all\" for every section)")
	flags.StringVarP(&opts.statuses, "statuses", "S", "", "Comma-separated entry statuses to target (\"all\" for every status)")
	flags.IntVarP(&opts.percent, "percent", "p", 0, "Percentage of entries to delete (1-100)")
	flags.IntVarP(&opts.minEntries, "min-entries", "m", 0, "Minimum number of entries to keep per section and status")
	flags.BoolVarP(&opts.skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	flags.BoolVarP(&opts.dryRun, "dry-run", "d", false, "Log what would be deleted without deleting")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show detailed planning output")
	flags.BoolVar(&opts.wait, "wait", false, "Process the queued tasks in this process and wait for them to finish")

	return cmd
}

func runEntries(cmd *cobra.Command, opts *entriesOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	level := cfg.Settings.LogLevel
	if opts.verbose && level != config.LogLevelNone {
		level = config.LogLevelVerbose
	}
	l, err := logger.NewLogger(true, level)
	if err != nil {
		return err
	}
	defer l.Sync()
	log := l.Named("cli")

	// Проверка окружения выполняется до подключения к базе и миграций
	if err := checkEnvironmentLock(cfg, l.Named("gate"), cmd.ErrOrStderr()); err != nil {
		return err
	}

	application, err := newApp(ctx, cfg, prometheus.NewRegistry(), l)
	if err != nil {
		return err
	}
	defer application.Close()

	uc := application.UseCase

	plan := uc.DefaultPlan(entities.OriginCLI)
	applyFlags(cmd, opts, &plan)

	log.Info("Starting chop operation via CLI", zap.String("plan", plan.Summary()))

	if plan.DryRun {
		fmt.Println(infoStyle.Render("DRY RUN MODE: No entries will actually be deleted."))
	}

	if err := plan.Validate(); err != nil {
		var verr *entities.ValidationError
		if errors.As(err, &verr) {
			printValidationErrors(verr)
			return errReported
		}
		return err
	}

	if !opts.skipConfirm {
		confirmed, err := confirmDeletion(ctx, uc, plan)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println(warnStyle.Render("Operation cancelled."))
			log.Info("CLI operation cancelled by user")
			return nil
		}
	}

	report, err := uc.PlanChop(ctx, plan)
	if err != nil {
		return err
	}

	suffix := ""
	if plan.DryRun {
		suffix = " (DRY RUN)"
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("Chop operation has been queued successfully%s: %d tasks, %d entries (run %s).",
		suffix, report.TasksQueued, report.EntriesQueued, report.RunID)))

	// Очередь в памяти не переживет процесс, поэтому ждем выполнения здесь
	if opts.wait || cfg.StoreDriver == config.StoreDriverMemory {
		return waitForRun(ctx, application, report.RunID)
	}
	return nil
}

func applyFlags(cmd *cobra.Command, opts *entriesOptions, plan *entities.ChopPlan) {
	flags := cmd.Flags()

	if flags.Changed("sections") {
		plan.CollectionHandles = config.NormalizeFilter(config.SplitList(opts.sections))
	}
	if flags.Changed("statuses") {
		plan.Statuses = config.NormalizeFilter(config.SplitList(opts.statuses))
	}
	if flags.Changed("percent") {
		plan.Percent = opts.percent
	}
	if flags.Changed("min-entries") {
		plan.MinimumRetained = opts.minEntries
	}

	plan.DryRun = opts.dryRun
	plan.Verbose = opts.verbose
}

// confirmDeletion выводит сводку по разделам и спрашивает подтверждение
func confirmDeletion(ctx context.Context, uc ports.ChopUseCase, plan entities.ChopPlan) (bool, error) {
	previews, err := uc.Preview(ctx, plan)
	if err != nil {
		return false, err
	}

	if len(previews) == 0 {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: No matching sections or statuses found."))
		return false, errReported
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Deletion Summary:"))
	fmt.Println(strings.Repeat("=", 60))

	sort.SliceStable(previews, func(i, j int) bool {
		return previews[i].Collection < previews[j].Collection
	})

	total := 0
	for _, p := range previews {
		line := fmt.Sprintf("Section '%s' (status: %s): %d of %d entries", p.Collection, p.Status, p.Quota, p.Total)
		if p.LimitedByFloor {
			line += warnStyle.Render(fmt.Sprintf(" (limited by minimum: %d)", plan.MinimumRetained))
		}
		fmt.Println(line)
		total += p.Quota
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(warnStyle.Render(fmt.Sprintf("About to delete %d%% of entries (%d in total) from the selected sections.", plan.Percent, total)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("Minimum entries per section and status: %d", plan.MinimumRetained)))
	fmt.Println(infoStyle.Render("Delete mode: " + strings.ToUpper(plan.DeleteMode()) + " DELETE"))
	if plan.DryRun {
		fmt.Println(infoStyle.Render("DRY RUN: No entries will actually be deleted"))
	}
	fmt.Println(infoStyle.Render("Configuration: " + plan.Summary()))
	fmt.Println()

	var confirmed bool
	err = huh.NewConfirm().
		Title("Are you sure you want to proceed?").
		Affirmative("Proceed").
		Negative("Cancel").
		Value(&confirmed).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}

	return confirmed, nil
}

// waitForRun выполняет задачи запуска в этом процессе до их завершения
func waitForRun(ctx context.Context, application *app.App, runID string) error {
	poolCtx, cancel := context.WithCancel(ctx)
	poolDone := make(chan error, 1)
	go func() {
		poolDone <- application.Pool.Run(poolCtx)
	}()
	defer func() {
		cancel()
		<-poolDone
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		tasks, err := application.UseCase.GetRun(ctx, runID)
		if err != nil {
			return err
		}

		done, failed := 0, 0
		var outcome entities.TaskOutcome
		for _, task := range tasks {
			if task.State.Terminal() {
				done++
			}
			if task.State == entities.TaskFailed {
				failed++
			}
			outcome.Deleted += task.Outcome.Deleted
			outcome.Missing += task.Outcome.Missing
			outcome.Simulated += task.Outcome.Simulated
		}

		if done < len(tasks) {
			continue
		}

		fmt.Println(okStyle.Render(fmt.Sprintf("Run finished: %d deleted, %d already gone, %d simulated.",
			outcome.Deleted, outcome.Missing, outcome.Simulated)))
		if failed > 0 {
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("%d tasks failed permanently, see logs for details.", failed)))
			return errReported
		}
		return nil
	}
}

// checkEnvironmentLock выводит баннер и возвращает errReported, если окружение запрещено
func checkEnvironmentLock(cfg *config.Config, log *zap.Logger, w io.Writer) error {
	gate := usecase.NewEnvironmentGate(cfg.Environment, cfg.Settings.AllowedEnvironments, metrics.NewNop(), log)

	err := gate.Check()
	var denied *entities.EnvironmentDenied
	if errors.As(err, &denied) {
		printEnvironmentLock(w, denied)
		return errReported
	}
	return err
}

func printEnvironmentLock(w io.Writer, denied *entities.EnvironmentDenied) {
	banner := strings.Repeat("!", 60)

	fmt.Fprintln(w)
	fmt.Fprintln(w, errorStyle.Render(banner))
	fmt.Fprintln(w, errorStyle.Render("ENVIRONMENT LOCK: chopping is not allowed in this environment!"))
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Current environment: '%s'", denied.Environment)))
	fmt.Fprintln(w, errorStyle.Render("Allowed environments: "+strings.Join(denied.Allowed, ", ")))

	if denied.ProductionLike {
		fmt.Fprintln(w)
		fmt.Fprintln(w, boldStyle.Inherit(errorStyle).Render("DANGER: This appears to be a PRODUCTION environment!"))
		fmt.Fprintln(w, errorStyle.Render("Chopping entries in production could cause irreversible data loss!"))
	}

	fmt.Fprintln(w, errorStyle.Render(banner))
	fmt.Fprintln(w)
	fmt.Fprintln(w, infoStyle.Render("Configure CHOP_ALLOWED_ENVIRONMENTS to enable chopping."))
}

func printValidationErrors(verr *entities.ValidationError) {
	fields := make([]string, 0, len(verr.Fields))
	for field := range verr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		for _, msg := range verr.Fields[field] {
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error in %s: %s", field, msg)))
		}
	}
}
