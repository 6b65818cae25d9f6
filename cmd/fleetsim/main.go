package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"fleetsim/internal/config"
	"fleetsim/internal/dashboard"
	"fleetsim/internal/db"
	"fleetsim/internal/engine"
	"fleetsim/internal/events"
	"fleetsim/internal/fleet"
	"fleetsim/internal/migrate"
	"fleetsim/internal/mission"
	"fleetsim/internal/notify"
	"fleetsim/internal/server"
	fleetsimsdk "fleetsim/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "fleetsim",
	Short: "Fleetsim CLI",
	Long: `Fleetsim runs a delivery robot fleet simulator and exposes it over HTTP.
The server owns all state: robots cycle idle -> assigned -> en_route ->
delivering -> completed -> idle, missions are generated on a timer and
matched to available robots, and every status change lands in the event
journal. Client commands talk to a running server.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLEETSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "fleetsim.yml", "config file path")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "fleetsim server base URL")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(robotCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(simCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())
}

func serveCmd() *cobra.Command {
	var workspace string
	var autostart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the simulator and HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("config"))
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			journal := events.Writer{DB: conn}

			broker := notify.NewBroker(logger.Named("notify"))
			fl := fleet.NewRegistry(logger.Named("fleet"), broker)
			if err := fl.Init(cfg.Fleet.Size); err != nil {
				return err
			}
			ms := mission.NewRegistry(logger.Named("mission"), broker, mission.EstimateRange{
				Min: cfg.Simulation.EstimatedDuration.Min(),
				Max: cfg.Simulation.EstimatedDuration.Max(),
			})
			eng := engine.New(timingFromConfig(cfg), fl, ms, broker, logger.Named("engine"))
			agg := dashboard.New(fl, ms)

			handler, err := server.New(server.Config{
				Fleet:     fl,
				Missions:  ms,
				Engine:    eng,
				Dashboard: agg,
				Broker:    broker,
				Journal:   &journal,
				BasePath:  cfg.Server.BasePath,
				Logger:    logger.Named("server"),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if autostart {
				if err := eng.Start(); err != nil {
					return err
				}
				defer eng.Stop()
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				recorderCh, cancelSub := broker.SubscribeBuffered(256)
				defer cancelSub()
				events.NewRecorder(journal, logger.Named("journal")).Run(gctx, recorderCh)
				return nil
			})
			g.Go(func() error {
				server.NewWebhookDispatcher(journal, cfg.Webhooks, logger.Named("webhooks")).Run(gctx)
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutCtx)
			})
			g.Go(func() error {
				logger.Info("serving fleetsim API",
					zap.String("addr", cfg.Server.Addr),
					zap.String("base_path", cfg.Server.BasePath),
					zap.Int("fleet_size", cfg.Fleet.Size))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory for the event journal")
	cmd.Flags().BoolVar(&autostart, "autostart", true, "start the simulation timers immediately")
	return cmd
}

func robotCmd() *cobra.Command {
	robot := &cobra.Command{Use: "robot", Short: "Inspect and control robots"}
	robot.AddCommand(robotListCmd())
	robot.AddCommand(robotShowCmd())
	robot.AddCommand(robotCancelCmd())
	return robot
}

func robotListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List robots",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := client().Robots(cmd.Context(), status)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Status", "Mission", "Battery", "Lat", "Lng"})
			for _, r := range items {
				tw.AppendRow(table.Row{r.ID, r.Status, deref(r.MissionID), fmt.Sprintf("%.1f%%", r.Battery),
					fmt.Sprintf("%.4f", r.Lat), fmt.Sprintf("%.4f", r.Lng)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (idle, assigned, en_route, delivering, completed)")
	return cmd
}

func robotShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <robot-id>",
		Short: "Show one robot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := client().Robot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(r)
		},
	}
}

func robotCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <robot-id>",
		Short: "Cancel the robot's current mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cancelled, err := client().CancelRobotMission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cancelled {
				fmt.Printf("cancelled mission on %s\n", args[0])
			} else {
				fmt.Printf("%s has no active mission\n", args[0])
			}
			return nil
		},
	}
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "Inspect and create missions"}
	m.AddCommand(missionListCmd())
	m.AddCommand(missionActiveCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionCreateCmd())
	return m
}

func missionListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := client().Missions(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			return printMissions(items)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the result count")
	return cmd
}

func missionActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List assigned and in-progress missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := client().ActiveMissions(cmd.Context())
			if err != nil {
				return err
			}
			return printMissions(items)
		},
	}
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show one mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := client().Mission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(m)
		},
	}
}

func missionCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a mission and attempt assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := client().CreateMission(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(m)
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Composed fleet snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := client().Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(d)
			}
			fmt.Printf("snapshot at %s\n", d.Timestamp)
			printStatsTable(d.Stats)
			fmt.Printf("active missions: %d\n", len(d.ActiveMissions))
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Fleet statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(s)
			}
			printStatsTable(s)
			return nil
		},
	}
}

func simCmd() *cobra.Command {
	sim := &cobra.Command{Use: "sim", Short: "Control the simulation timers"}
	sim.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Arm the simulation timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().StartSimulation(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("simulation started")
			return nil
		},
	})
	sim.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Disarm the simulation timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().StopSimulation(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("simulation stopped")
			return nil
		},
	})
	return sim
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event journal"}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := client().Events(cmd.Context(), n)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "TS", "Type", "Robot", "Mission", "Status"})
			for _, e := range items {
				tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.RobotID, e.MissionID, e.Status})
			}
			tw.Render()
			return nil
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	log.AddCommand(tail)
	return log
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	})
	return cfg
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("fleetsim 0.1.0")
		},
	}
}

func client() *fleetsimsdk.Client {
	return fleetsimsdk.New(viper.GetString("server"))
}

func timingFromConfig(cfg *config.Config) engine.Timing {
	sim := cfg.Simulation
	return engine.Timing{
		MissionInterval: time.Duration(sim.MissionIntervalMs) * time.Millisecond,
		MissionsPerTick: sim.MissionsPerTick,
		SweepInterval:   time.Duration(sim.SweepIntervalMs) * time.Millisecond,
		CleanupInterval: time.Duration(sim.CleanupIntervalMs) * time.Millisecond,
		Retention:       time.Duration(sim.RetentionMs) * time.Millisecond,
		DwellAssigned:   engine.Window{Min: sim.Dwell.Assigned.Min(), Max: sim.Dwell.Assigned.Max()},
		DwellEnRoute:    engine.Window{Min: sim.Dwell.EnRoute.Min(), Max: sim.Dwell.EnRoute.Max()},
		DwellDelivering: engine.Window{Min: sim.Dwell.Delivering.Min(), Max: sim.Dwell.Delivering.Max()},
		DwellCompleted:  engine.Window{Min: sim.Dwell.Completed.Min(), Max: sim.Dwell.Completed.Max()},
	}
}

func buildLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func printMissions(items []fleetsimsdk.Mission) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Status", "Robot", "Est", "Created"})
	for _, m := range items {
		est := time.Duration(m.EstimatedMs) * time.Millisecond
		tw.AppendRow(table.Row{m.ID, m.Status, deref(m.RobotID), est.String(), m.CreatedAt})
	}
	tw.Render()
	return nil
}

func printStatsTable(s fleetsimsdk.FleetStats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Status", "Count"})
	for _, status := range []string{"idle", "assigned", "en_route", "delivering", "completed"} {
		tw.AppendRow(table.Row{status, s.ByStatus[status]})
	}
	tw.AppendFooter(table.Row{"total", s.Total})
	tw.Render()
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
