package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tutoring_backend/internals/configs"
	database "tutoring_backend/internals/databases"
	"tutoring_backend/internals/features/billing/ledger"
	billingService "tutoring_backend/internals/features/billing/service"
	calModel "tutoring_backend/internals/features/calendar/model"
	calService "tutoring_backend/internals/features/calendar/service"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	tutService "tutoring_backend/internals/features/tutoring/service"
	"tutoring_backend/internals/helpers/dbtime"
	"tutoring_backend/internals/seeds"
)

var errUsage = errors.New("usage")

// Env is what every subcommand runs against.
type Env struct {
	DB     *gorm.DB
	Ledger ledger.Gateway // nil when STRIPE_SECRET_KEY is unset
	Clock  dbtime.Clock
	Loc    *time.Location
	Config configs.AppConfig
	Out    io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"migrate":                  {"migrate", cmdMigrate},
	"seed":                     {"seed [-file roster.json]", cmdSeed},
	"create-year":              {"create-year -index N", cmdCreateYear},
	"create-term":              {"create-term -year N -index N [-previous TERM]", cmdCreateTerm},
	"anchor-term":              {"anchor-term -term TERM -date YYYY-MM-DD", cmdAnchorTerm},
	"delete-week":              {"delete-week -term TERM -index N", cmdDeleteWeek},
	"schedule-term":            {"schedule-term -date YYYY-MM-DD [-term TERM]", cmdScheduleTerm},
	"schedule-student":         {"schedule-student -date YYYY-MM-DD -term TERM -student UUID", cmdScheduleStudent},
	"generate-invoices":        {"generate-invoices -cadence weekly|fortnightly|half-termly|termly", cmdGenerateInvoices},
	"generate-basket-invoices": {"generate-basket-invoices -cadence weekly|fortnightly|half-termly|termly", cmdGenerateBasket},
	"reconcile":                {"reconcile [-budget 2m]", cmdReconcile},
}

// Run returns the process exit code. open is only called for a known command.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, open func() (*Env, error)) int {
	if len(args) == 0 {
		usage(stderr)
		return 1
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 1
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintf(stderr, "usage: tutorctl %s\n", cmd.usage) }

	env, err := open()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if env.Out == nil {
		env.Out = stdout
	}

	if err := cmd.run(ctx, env, fs, args[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fs.Usage()
			return 1
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: tutorctl <command> [flags]")
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", commands[n].usage)
	}
}

/* ===================== CALENDAR ===================== */

func cmdMigrate(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	return database.AutoMigrate(env.DB.WithContext(ctx))
}

func cmdSeed(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	file := fs.String("file", seeds.DefaultRosterFile, "catalogue and roster JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rep, err := seeds.RunAllSeeds(ctx, env.DB, *file)
	if err != nil {
		return err
	}
	return printJSON(env.Out, rep)
}

func cmdCreateYear(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	index := fs.Int("index", -1, "year index, e.g. 25")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *index < 0 {
		return errUsage
	}
	y, err := calService.NewService(env.DB).CreateYear(ctx, *index)
	if err != nil {
		return err
	}
	return printJSON(env.Out, y)
}

func cmdCreateTerm(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	year := fs.Int("year", -1, "year index")
	index := fs.Int("index", 0, "term index within the year")
	previous := fs.String("previous", "", "previous term, code (24T3) or id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *year < 0 || *index < 1 {
		return errUsage
	}
	cal := calService.NewService(env.DB)
	in := calService.CreateTermInput{YearIndex: *year, Index: *index}
	if *previous != "" {
		prev, err := resolveTerm(ctx, cal, *previous)
		if err != nil {
			return err
		}
		in.PreviousTermID = &prev.TermID
	}
	t, err := cal.CreateTerm(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "created term %s (%s)\n", t.Code(), t.TermID)
	return nil
}

func cmdAnchorTerm(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	term := fs.String("term", "", "term code (24T3) or id")
	date := fs.String("date", "", "first Monday, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *term == "" || *date == "" {
		return errUsage
	}
	monday, err := dbtime.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("-date: %w", err)
	}
	cal := calService.NewService(env.DB)
	t, err := resolveTerm(ctx, cal, *term)
	if err != nil {
		return err
	}
	n, err := cal.AnchorTerm(ctx, t.TermID, monday)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "anchored %d weeks of %s from %s\n", n, t.Code(), monday.Format(dbtime.DateLayout))
	return nil
}

// cmdDeleteWeek trims the term's trailing week, e.g. when a term runs nine weeks.
func cmdDeleteWeek(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	term := fs.String("term", "", "term code (24T3) or id")
	index := fs.Int("index", 0, "week index; must be the term's last week")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *term == "" || *index < 1 {
		return errUsage
	}
	cal := calService.NewService(env.DB)
	t, err := resolveTerm(ctx, cal, *term)
	if err != nil {
		return err
	}
	if err := cal.DeleteWeek(ctx, t.TermID, *index); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "deleted week %d of %s\n", *index, t.Code())
	return nil
}

/* ===================== SCHEDULING ===================== */

func cmdScheduleTerm(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	term := fs.String("term", "", "term code (24T3) or id; defaults to the latest term")
	date := fs.String("date", "", "first Monday, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *date == "" {
		return errUsage
	}
	monday, err := dbtime.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("-date: %w", err)
	}
	sched := tutService.NewScheduler(env.DB, env.Clock, env.Loc)
	t, err := resolveTerm(ctx, sched.Calendar, *term)
	if err != nil {
		return err
	}
	res, err := sched.ScheduleTerm(ctx, t.TermID, monday)
	if err != nil {
		return err
	}
	return printJSON(env.Out, res)
}

func cmdScheduleStudent(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	term := fs.String("term", "", "term code (24T3) or id")
	date := fs.String("date", "", "first Monday, YYYY-MM-DD")
	student := fs.String("student", "", "student id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *term == "" || *date == "" || *student == "" {
		return errUsage
	}
	monday, err := dbtime.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("-date: %w", err)
	}
	studentID, err := uuid.Parse(*student)
	if err != nil {
		return fmt.Errorf("-student: %w", err)
	}
	sched := tutService.NewScheduler(env.DB, env.Clock, env.Loc)
	t, err := resolveTerm(ctx, sched.Calendar, *term)
	if err != nil {
		return err
	}
	res, err := sched.ScheduleTermForStudent(ctx, t.TermID, monday, studentID)
	if err != nil {
		return err
	}
	return printJSON(env.Out, res)
}

/* ===================== BILLING ===================== */

func cmdGenerateInvoices(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	return generate(ctx, env, fs, args, (*billingService.Service).GenerateInvoices)
}

func cmdGenerateBasket(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	return generate(ctx, env, fs, args, (*billingService.Service).GenerateBasketInvoices)
}

func generate(ctx context.Context, env *Env, fs *flag.FlagSet, args []string,
	run func(*billingService.Service, context.Context, tutModel.Cadence) (billingService.GenerateReport, error)) error {
	raw := fs.String("cadence", "", "weekly, fortnightly, half-termly or termly")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cadence, ok := tutModel.ParseCadence(*raw)
	if !ok {
		return errUsage
	}
	svc, err := billing(env)
	if err != nil {
		return err
	}
	report, err := run(svc, ctx, cadence)
	if err != nil {
		return err
	}
	issued, skipped, failed := report.Count()
	fmt.Fprintf(env.Out, "%s %q: issued=%d skipped=%d failed=%d\n", cadence, report.Period, issued, skipped, failed)
	for _, c := range report.Customers {
		if c.Error != "" {
			fmt.Fprintf(env.Out, "  %s: %s\n", c.LedgerID, c.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d customer(s) failed", failed)
	}
	return nil
}

func cmdReconcile(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	budget := fs.Duration("budget", 2*time.Minute, "how long to keep retrying pending tasks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r := billingService.NewReconciler(env.DB, env.Clock, env.Config.ReconcileMaxAttempts,
		env.Config.ReconcileBaseDelay, env.Config.ReconcileMaxDelay)
	stats, err := r.Drain(ctx, *budget)
	if err != nil {
		return err
	}
	return printJSON(env.Out, stats)
}

func billing(env *Env) (*billingService.Service, error) {
	if env.Ledger == nil {
		return nil, errors.New("STRIPE_SECRET_KEY is not set")
	}
	return billingService.NewService(env.DB, env.Ledger, billingService.Options{
		Clock:                env.Clock,
		Loc:                  env.Loc,
		Currency:             env.Config.Currency,
		Workers:              env.Config.InvoiceWorkers,
		CustomerTimeout:      env.Config.CustomerTimeout,
		ReconcileMaxAttempts: env.Config.ReconcileMaxAttempts,
		ReconcileBaseDelay:   env.Config.ReconcileBaseDelay,
		ReconcileMaxDelay:    env.Config.ReconcileMaxDelay,
	}), nil
}

/* ===================== HELPERS ===================== */

// resolveTerm accepts a term code, a term id, or "" for the latest term.
func resolveTerm(ctx context.Context, cal *calService.Service, s string) (*calModel.TermModel, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return cal.LatestTerm(ctx)
	}
	if id, err := uuid.Parse(s); err == nil {
		return cal.GetTerm(ctx, id)
	}
	return cal.FindTermByCode(ctx, s)
}

func printJSON(w io.Writer, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
