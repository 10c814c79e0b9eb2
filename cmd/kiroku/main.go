// Command kiroku serializes a demo scene, prints component schemas and checks
// that serialization is deterministic.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edwinsyarief/kiroku"
	"github.com/edwinsyarief/kiroku/encoding"
	"github.com/edwinsyarief/kiroku/snapshot"
)

type app struct {
	configPath string
	cfg        Config
	logger     zerolog.Logger
	closeLog   func() error
	out        io.Writer // command output, stdout when nil
}

func main() {
	if err := newApp().execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, eris.ToString(err, false))
		os.Exit(1)
	}
}

func newApp() *app {
	return &app{
		logger:   zerolog.Nop(),
		closeLog: func() error { return nil },
	}
}

// execute runs the command line and closes the log file afterwards, also when
// the command failed.
func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("command failed")
	}
	if cerr := a.closeLog(); cerr != nil && err == nil {
		err = eris.Wrap(cerr, "failed to close log file")
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kiroku",
		Short:         "Serialize ECS scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	if a.out != nil {
		root.SetOut(a.out)
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "KEY=VALUE config file")
	root.AddCommand(a.dumpCmd(), a.schemaCmd(), a.verifyCmd())
	return root
}

func (a *app) setup() error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return eris.Wrapf(err, "bad log level %q", cfg.LogLevel)
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{Filename: cfg.LogFile, MaxSize: 10, MaxBackups: 3, MaxAge: 7}
		out = lj
		a.closeLog = lj.Close
	}
	a.logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

func (a *app) dumpCmd() *cobra.Command {
	var (
		format   string
		output   string
		entities int
		toRedis  bool
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Serialize the demo scene",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("format") {
				format = a.cfg.Format
			}
			if !cmd.Flags().Changed("output") {
				output = a.cfg.Output
			}
			if !cmd.Flags().Changed("entities") {
				entities = a.cfg.Entities
			}
			f, err := encoding.ParseFormat(format)
			if err != nil {
				return err
			}
			snap, err := a.capture(entities, f)
			if err != nil {
				return err
			}
			if err := writeOutput(output, cmd.OutOrStdout(), snap.Data); err != nil {
				return err
			}
			if toRedis {
				return a.save(cmd.Context(), snap)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, yaml or proto")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")
	cmd.Flags().IntVarP(&entities, "entities", "n", 1000, "number of demo entities")
	cmd.Flags().BoolVar(&toRedis, "redis", false, "also store the snapshot in redis")
	return cmd
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of every demo component",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := newRegistry(a.logger)
			for _, r := range reg.Registrations() {
				schema, err := r.Schema()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", r.Name, schema)
			}
			return nil
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	var entities int
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Serialize the demo scene twice and compare the output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("entities") {
				entities = a.cfg.Entities
			}
			scene := buildScene(entities)
			reg := newRegistry(a.logger)
			first, err := snapshot.Capture(scene, reg, encoding.JSON, kiroku.WithLogger(a.logger))
			if err != nil {
				return err
			}
			second, err := snapshot.Capture(scene, reg, encoding.JSON, kiroku.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if snapshot.Equal(first, second) {
				a.logger.Info().
					Int("entities", first.Entities).
					Str("checksum", fmt.Sprintf("%x", first.Checksum)).
					Msg("serialization is deterministic")
				return nil
			}
			patch, err := snapshot.Diff(first, second)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), patch.String())
			return eris.New("passes over the same scene differ")
		},
	}
	cmd.Flags().IntVarP(&entities, "entities", "n", 1000, "number of demo entities")
	return cmd
}

func (a *app) capture(entities int, f encoding.Format) (*snapshot.Snapshot, error) {
	scene := buildScene(entities)
	reg := newRegistry(a.logger)
	start := time.Now()
	snap, err := snapshot.Capture(scene, reg, f, kiroku.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.logger.Info().
		Str("format", string(f)).
		Int("entities", snap.Entities).
		Int("bytes", len(snap.Data)).
		Dur("took", time.Since(start)).
		Msg("captured scene")
	return snap, nil
}

func (a *app) save(ctx context.Context, snap *snapshot.Snapshot) error {
	if a.cfg.RedisAddress == "" {
		return eris.New("KIROKU_REDIS_ADDRESS is not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddress,
		Password: a.cfg.RedisPassword,
	})
	defer client.Close()
	store := snapshot.NewRedisStore(client, snapshot.WithStoreLogger(a.logger))
	if err := store.Save(ctx, snap); err != nil {
		return err
	}
	a.logger.Info().Str("snapshot", snap.ID.String()).Msg("stored snapshot")
	return nil
}

func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
