package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/speakdrill/internal/console"
	"github.com/pavelanni/speakdrill/internal/gateway"
	"github.com/pavelanni/speakdrill/internal/handler"
	appI18n "github.com/pavelanni/speakdrill/internal/i18n"
	"github.com/pavelanni/speakdrill/internal/model"
	"github.com/pavelanni/speakdrill/internal/review"
	"github.com/pavelanni/speakdrill/internal/sequencer"
	"github.com/pavelanni/speakdrill/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "speakdrill",
		Short: "Spoken role-play drills for language learners",
		PersistentPreRun: func(*cobra.Command, []string) {
			// API keys may live in a .env file next to the binary.
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("load .env", "error", err)
			}
		},
		SilenceUsage: true,
	}
	root.AddCommand(practiceCmd(), reviewCmd(), historyCmd(), exportCmd(), stubGatewayCmd())
	return root
}

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run a gateway-graded session for one scenario",
		RunE:  runPractice,
	}
	f := cmd.Flags()
	f.StringP("scenario", "s", "", "Scenario identifier (required)")
	f.String("gateway-url", "http://localhost:8080", "Grading gateway base URL")
	f.String("gateway-token", "", "Bearer token for the gateway (or set SPEAKDRILL_GATEWAY_TOKEN)")
	f.Duration("gateway-timeout", 15*time.Second, "Timeout for one gateway request")
	f.String("learner", "", "Learner name recorded in exports")

	d := model.DefaultSessionConfig()
	f.Duration("start-delay", d.StartDelay, "Pause before the first turn")
	f.Duration("listen-ceiling", d.ListenCeiling, "Longest wait in a listen phase")
	f.Duration("playback-settle", d.PlaybackSettle, "Pause after a line finishes playing")
	f.Int("countdown", d.CountdownTicks, "Countdown ticks in a speak phase")
	f.Duration("tick", d.TickInterval, "Length of one countdown tick")
	f.Duration("feedback-hold", d.FeedbackHold, "How long a choice verdict stays on screen")
	f.String("timeout-policy", string(d.TimeoutPolicy), "Grading of an expired countdown (local, gateway)")

	addCommonFlags(f)
	addAudioFlags(f)
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Drill archived lines you got wrong",
		RunE:  runReview,
	}
	f := cmd.Flags()
	f.Int("limit", review.DefaultLimit, "Maximum lines per drill")
	f.Int("max-attempts", review.DefaultMaxAttempts, "Attempts before a line leaves the queue")
	f.Uint64("seed", 0, "Seed for simulated grading (0 = time based)")
	f.Float64("p-good", 0.7, "Probability that a spoken attempt is graded GOOD")
	addCommonFlags(f)
	addAudioFlags(f)
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived sessions or show one transcript",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.String("session", "", "Show the transcript of this session")
	addCommonFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(f)
	return cmd
}

func stubGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stub-gateway",
		Short: "Serve scripted scenarios over the gateway protocol",
		RunE:  runStubGateway,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("scenarios", "scenarios", "Directory of scenario JSON files")
	f.String("gateway-token", "", "Bearer token clients must present (empty disables auth)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func addCommonFlags(f *pflag.FlagSet) {
	f.String("db", "speakdrill.db", "SQLite archive path")
	f.StringP("lang", "l", "en", "Console language (en, ko)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SPEAKDRILL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("speakdrill")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/speakdrill")
	v.AddConfigPath("/etc/speakdrill")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// initConsole loads the message catalogs and returns a console for lang.
func initConsole(v *viper.Viper) (*console.Console, error) {
	lang := appI18n.Match(v.GetString("lang"))
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return console.New(os.Stdout, lang), nil
}

func sessionConfig(v *viper.Viper) model.SessionConfig {
	return model.SessionConfig{
		StartDelay:     v.GetDuration("start-delay"),
		ListenCeiling:  v.GetDuration("listen-ceiling"),
		PlaybackSettle: v.GetDuration("playback-settle"),
		CountdownTicks: v.GetInt("countdown"),
		TickInterval:   v.GetDuration("tick"),
		FeedbackHold:   v.GetDuration("feedback-hold"),
		TimeoutPolicy:  model.TimeoutPolicy(strings.ToLower(v.GetString("timeout-policy"))),
	}.Normalize()
}

func runPractice(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	con, err := initConsole(v)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if name := v.GetString("learner"); name != "" {
		if err := db.SetLearner(name); err != nil {
			return fmt.Errorf("save learner: %w", err)
		}
	}

	lock, err := acquireMic(v)
	if err != nil {
		return err
	}
	defer lock.Release()

	cfg := sessionConfig(v)
	player := newPlayer(v, slog.Default())
	runner, err := sequencer.New(sequencer.Options{
		Config:     cfg,
		Gateway:    gateway.New(v.GetString("gateway-url"), v.GetString("gateway-token"), v.GetDuration("gateway-timeout"), slog.Default()),
		Speaker:    player,
		Recorder:   newRecorder(v, slog.Default()),
		Observer:   con,
		OnComplete: db.SaveCompletion,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create sequencer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	scenario := v.GetString("scenario")
	slog.Info("starting session",
		"scenario", scenario,
		"gateway", v.GetString("gateway-url"),
		"timeout_policy", cfg.TimeoutPolicy,
		"tts", v.GetString("tts"),
	)
	con.Header(scenario)
	go func() {
		if con.Drive(ctx, console.Lines(os.Stdin), runner.Dispatch) {
			runner.Close()
		}
	}()

	completion, err := runner.Run(ctx, scenario)
	switch {
	case errors.Is(err, sequencer.ErrUnmounted), errors.Is(err, context.Canceled):
		return nil
	case err != nil:
		return fmt.Errorf("session: %w", err)
	}
	con.Summary(completion)
	return nil
}

func runReview(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	con, err := initConsole(v)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	limit, maxAttempts := v.GetInt("limit"), v.GetInt("max-attempts")
	items, err := db.ReviewQueue(limit, maxAttempts)
	if err != nil {
		return fmt.Errorf("load review queue: %w", err)
	}
	if len(items) == 0 {
		con.Message("ReviewEmpty")
		return nil
	}

	lock, err := acquireMic(v)
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if synth := newSynthesizer(v); synth != nil {
		texts := make([]string, 0, len(items))
		for _, it := range items {
			texts = append(texts, it.Turn.Text)
		}
		if err := prefetch(ctx, synth, texts); err != nil {
			slog.Warn("prefetch review audio", "error", err)
		}
	}

	player := newPlayer(v, slog.Default())
	defer player.Close()
	rec := newRecorder(v, slog.Default())
	defer rec.Close()

	seed := v.GetUint64("seed")
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	drill := review.New(
		db,
		review.NewSimulatedGrader(seed, v.GetFloat64("p-good")),
		console.NewReviewPrompter(con, console.Lines(os.Stdin), player, rec, len(items)),
		review.Config{Limit: limit, MaxAttempts: maxAttempts},
		slog.Default(),
	)
	rep, err := drill.Run(ctx)
	if err != nil && !errors.Is(err, review.ErrStopped) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("review: %w", err)
	}
	con.ReviewReport(rep)
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	con, err := initConsole(v)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if id := v.GetString("session"); id != "" {
		view, err := db.GetSessionView(id)
		if err != nil {
			return fmt.Errorf("load session %s: %w", id, err)
		}
		con.History([]model.SessionRecord{view.Session})
		fmt.Println(console.EntriesTable(view.Entries))
		return nil
	}

	sessions, err := db.ListSessions()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	con.History(sessions)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}
	learner, err := db.Learner()
	if err != nil {
		return fmt.Errorf("read learner: %w", err)
	}

	export := model.ArchiveExport{
		Learner:    learner,
		ExportedAt: time.Now().UTC(),
		Sessions:   results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func runStubGateway(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	scenarios, err := handler.LoadScenarios(v.GetString("scenarios"))
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	h, err := handler.New(scenarios, v.GetString("gateway-token"), slog.Default())
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting stub gateway",
		"addr", addr,
		"scenarios", len(scenarios),
		"auth", v.GetString("gateway-token") != "",
	)
	return http.ListenAndServe(addr, r)
}
