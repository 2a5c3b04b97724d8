package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/and161185/medalert/internal/config"
	"github.com/and161185/medalert/internal/model"
	"github.com/and161185/medalert/internal/reminder"
)

type cli struct {
	v   *viper.Viper
	in  io.Reader
	out io.Writer
}

type runFunc func(ctx context.Context, a *app, args []string) error

// run wires the client stack and bounds fn by the request timeout.
func (c *cli) run(fn runFunc) func(*cobra.Command, []string) error {
	return c.runWith(true, fn)
}

func (c *cli) runWith(timeout bool, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(c.v)
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		return fn(ctx, a, args)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{v: config.NewClientViper(), in: in, out: out}
	root := &cobra.Command{
		Use:           "medalert",
		Short:         "MedAlert patient client",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.String("api-url", "", "backend base URL (env MEDALERT_API_URL)")
	pf.String("config-dir", "", "session cache directory (env MEDALERT_CONFIG_DIR)")
	pf.Duration("timeout", 0, "request timeout (env MEDALERT_TIMEOUT)")
	pf.Bool("insecure", false, "skip TLS verification, dev only (env MEDALERT_INSECURE)")
	pf.String("ca-cert", "", "CA certificate PEM (env MEDALERT_CA_CERT)")
	pf.String("log-level", "", "debug|info|warn|error (env MEDALERT_LOG_LEVEL)")
	for _, name := range []string{"api-url", "config-dir", "timeout", "insecure", "ca-cert", "log-level"} {
		_ = c.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), pf.Lookup(name))
	}

	root.AddCommand(
		c.loginCmd(), c.registerCmd(), c.logoutCmd(), c.statusCmd(),
		c.profileCmd(), c.medsCmd(), c.updateMedCmd(), c.rmMedCmd(),
		c.setTimesCmd(), c.notificationsCmd(), c.adhereCmd(),
		c.caretakersCmd(), c.assignCmd(), c.remindCmd(),
	)
	return root
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as a patient and cache the session",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.holder.Login(ctx, email, password); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "logged in as %s\n", a.holder.State().Patient.Name)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var req model.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a patient account and cache the session",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.holder.Register(ctx, req); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "registered %s\n", req.Email)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "full name")
	f.StringVarP(&req.Email, "email", "e", "", "email")
	f.StringVarP(&req.Password, "password", "p", "", "password")
	f.StringVar(&req.PhoneNumber, "phone", "", "phone number")
	f.StringVar(&req.DateOfBirth, "dob", "", "date of birth (YYYY-MM-DD)")
	f.IntVar(&req.Age, "age", 0, "age")
	f.StringVar(&req.Gender, "gender", "", "gender")
	for _, n := range []string{"name", "email", "password"} {
		_ = cmd.MarkFlagRequired(n)
	}
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the cached session",
		Args:  cobra.NoArgs,
		RunE: c.run(func(_ context.Context, a *app, _ []string) error {
			if err := a.holder.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "logged out")
			return nil
		}),
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached session",
		Args:  cobra.NoArgs,
		RunE: c.run(func(_ context.Context, a *app, _ []string) error {
			sess, ok := a.store.Session()
			if !ok || !a.repo.IsLoggedIn() {
				fmt.Fprintln(c.out, "not logged in")
				return nil
			}
			fmt.Fprintf(c.out, "logged in as %s <%s>\n", sess.Patient.Name, sess.Patient.Email)
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(c.out, "token expires %s\n", sess.ExpiresAt.Local().Format(time.RFC3339))
			}
			return nil
		}),
	}
}

func (c *cli) profileCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Fetch and show the patient profile",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.holder.LoadPatientData(ctx); err != nil {
				return err
			}
			p := *a.holder.State().Patient
			if asJSON {
				return printJSON(c.out, p)
			}
			printProfile(c.out, p)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func (c *cli) medsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "meds",
		Short: "List current medications",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.holder.LoadPatientData(ctx); err != nil {
				return err
			}
			return printMeds(c.out, a.holder.State().Medications)
		}),
	}
}

func (c *cli) updateMedCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "update-med MEDICATION_ID key=value...",
		Short:   "Update fields of one medication",
		Example: "  medalert update-med 6f1c... dosage=200mg timing=08:00,20:00",
		Args:    cobra.MinimumNArgs(2),
		RunE: c.run(func(ctx context.Context, a *app, args []string) error {
			fields, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			if err := a.holder.UpdateMedicine(ctx, args[0], fields); err != nil {
				return err
			}
			return printMeds(c.out, a.holder.State().Medications)
		}),
	}
}

func (c *cli) rmMedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-med MEDICATION_ID",
		Short: "Delete one medication",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, a *app, args []string) error {
			if err := a.holder.DeleteMedicine(ctx, args[0]); err != nil {
				return err
			}
			return printMeds(c.out, a.holder.State().Medications)
		}),
	}
}

func (c *cli) setTimesCmd() *cobra.Command {
	var (
		req           model.SetTimingsRequest
		times, labels string
	)
	cmd := &cobra.Command{
		Use:   "set-times",
		Short: "Store reminder times for a medicine",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ []string) error {
			rts, err := parseTimes(times, labels)
			if err != nil {
				return err
			}
			req.NotificationTimes = rts
			if err := a.holder.SetReminderTimes(ctx, req); err != nil {
				return err
			}
			return printNotifications(c.out, a.holder.State().Notifications)
		}),
	}
	f := cmd.Flags()
	f.StringVar(&req.MedicineName, "medicine", "", "medicine name")
	f.StringVar(&req.Dosage, "dosage", "", "dosage")
	f.StringVar(&times, "times", "", "comma separated HH:MM list")
	f.StringVar(&labels, "labels", "", "comma separated labels, one per time")
	f.StringVar(&req.Instructions, "instructions", "", "instructions")
	f.StringVar(&req.FoodTiming, "food-timing", "", "before/after food")
	f.StringVar(&req.Frequency, "frequency", "", "frequency")
	f.StringVar(&req.Duration, "duration", "", "duration")
	_ = cmd.MarkFlagRequired("medicine")
	_ = cmd.MarkFlagRequired("times")
	return cmd
}

func (c *cli) notificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "List reminder configurations",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.holder.LoadReminderData(ctx); err != nil {
				return err
			}
			return printNotifications(c.out, a.holder.State().Notifications)
		}),
	}
}

func (c *cli) adhereCmd() *cobra.Command {
	var (
		missed bool
		note   string
	)
	cmd := &cobra.Command{
		Use:   "adhere MEDICATION_ID",
		Short: "Record a dose as taken (or --missed)",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, a *app, args []string) error {
			if err := a.holder.RecordAdherence(ctx, args[0], !missed, note); err != nil {
				return err
			}
			return printMeds(c.out, a.holder.State().Medications)
		}),
	}
	cmd.Flags().BoolVar(&missed, "missed", false, "record the dose as missed")
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func (c *cli) caretakersCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "caretakers",
		Short: "Search caretakers available for assignment",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.holder.LoadCaretakers(ctx, search); err != nil {
				return err
			}
			return printCaretakers(c.out, a.holder.State().Caretakers)
		}),
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "name or email fragment")
	return cmd
}

func (c *cli) assignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign CARETAKER_USER_ID",
		Short: "Request a caretaker",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, a *app, args []string) error {
			if err := a.holder.AssignCaretaker(ctx, args[0]); err != nil {
				return err
			}
			printProfile(c.out, *a.holder.State().Patient)
			return nil
		}),
	}
}

func (c *cli) remindCmd() *cobra.Command {
	var runFor time.Duration
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run local medication reminders and answer them from stdin",
		Long: `Arms a reminder for every medication timing and prints each one when due.
Answer with "taken [KEY]" or "missed [KEY]"; KEY may be left out when one reminder is open.
"list" shows armed reminders, "quit" exits.`,
		Args: cobra.NoArgs,
		RunE: c.runWith(false, func(ctx context.Context, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if runFor > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runFor)
				defer cancel()
			}
			return c.remind(ctx, a)
		}),
	}
	cmd.Flags().DurationVar(&runFor, "for", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func (c *cli) remind(ctx context.Context, a *app) error {
	// Timer goroutines print through con, so the loop writes only through it too.
	con := reminder.NewConsole(c.out)
	sched := reminder.NewScheduler(con, a.repo, reminder.WithLogger(a.log))
	defer sched.Close()
	a.withReminders(sched)

	loadCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	err := a.holder.LoadPatientData(loadCtx)
	cancel()
	if err != nil {
		p, ok := a.repo.CachedPatient()
		if !ok {
			return err
		}
		a.log.Warn("using cached profile", zap.Error(err))
		sched.Sync(p)
	}
	if err := writeEntries(con, sched.Entries()); err != nil {
		return err
	}

	lines := scanLines(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sched.Events():
			verb := "missed"
			if ev.Taken {
				verb = "taken"
			}
			fmt.Fprintf(con, "Marked %s as %s\n", ev.MedicineName, verb)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if quit := answer(ctx, a, con, sched, line); quit {
				return nil
			}
		}
	}
}

// answer handles one stdin command; it reports whether to stop.
func answer(ctx context.Context, a *app, out io.Writer, sched *reminder.Scheduler, line string) bool {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch verb {
	case "":
		return false
	case "quit", "exit":
		return true
	case "list":
		_ = writeEntries(out, sched.Entries())
		return false
	case "taken", "missed":
	default:
		fmt.Fprintf(out, "unknown command %q\n", verb)
		return false
	}

	key, err := pickKey(sched.Entries(), strings.TrimSpace(rest))
	if err != nil {
		fmt.Fprintln(out, err)
		return false
	}
	rctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	if err := sched.Respond(rctx, key, verb == "taken"); err != nil {
		fail(out, err)
	}
	return false
}

// writeEntries renders the table first so it reaches out in a single write.
func writeEntries(out io.Writer, es []reminder.Entry) error {
	var buf bytes.Buffer
	if err := printEntries(&buf, es); err != nil {
		return err
	}
	_, err := out.Write(buf.Bytes())
	return err
}

// pickKey parses key, or picks the only fired reminder when key is empty.
func pickKey(es []reminder.Entry, key string) (uuid.UUID, error) {
	if key != "" {
		return uuid.FromString(key)
	}
	var fired []uuid.UUID
	for _, e := range es {
		if e.State == reminder.Fired {
			fired = append(fired, e.Key)
		}
	}
	switch len(fired) {
	case 0:
		return uuid.Nil, errors.New("no open reminder")
	case 1:
		return fired[0], nil
	default:
		return uuid.Nil, fmt.Errorf("%d open reminders, give a key", len(fired))
	}
}

func scanLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
