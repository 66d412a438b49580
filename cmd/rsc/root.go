package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/op/go-logging"
	"github.com/spf13/cobra"

	"github.com/robot-control/rsc/internal/api"
	"github.com/robot-control/rsc/internal/audit"
	"github.com/robot-control/rsc/internal/auth"
	"github.com/robot-control/rsc/internal/channel"
	"github.com/robot-control/rsc/internal/config"
	"github.com/robot-control/rsc/internal/sequence"
	"github.com/robot-control/rsc/internal/telemetry"
	"github.com/robot-control/rsc/internal/transport"
)

var log = logging.MustGetLogger("rsc")

var rootCmd = &cobra.Command{
	Use:   "rsc",
	Short: "Serial controller for a small legged robot",
	Long: `rsc owns the robot's serial link: it queues and paces outbound commands,
runs the timed reward sequence with emergency stop, and exposes status,
commands and a live log stream over a small HTTP API.`,
	RunE: runController,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().String("config", "", "Path to the YAML configuration file")
	rootCmd.Flags().String("port", "", "Serial port path (overrides configuration)")
	rootCmd.Flags().String("addr", "", "HTTP listen address (overrides configuration)")
	rootCmd.Flags().Bool("no-connect", false, "Start without opening the serial port")

	rootCmd.AddCommand(portsCmd)

	format := logging.MustStringFormatter(`%{time:15:04:05.000} %{level:-7s} %{module}: %{message}`)
	logging.SetBackend(logging.NewBackendFormatter(logging.NewLogBackend(os.Stderr, "", 0), format))
}

func runController(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	portFlag, _ := cmd.Flags().GetString("port")
	addrFlag, _ := cmd.Flags().GetString("addr")
	noConnect, _ := cmd.Flags().GetBool("no-connect")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if portFlag != "" {
		cfg.Serial.Port = portFlag
	}
	if addrFlag != "" {
		cfg.API.Addr = addrFlag
	}

	hub := telemetry.NewHub(cfg.RecentLogSize)

	auditLog, err := audit.NewLogger(cfg.AuditDir)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	link := transport.NewManager(hub, transport.DefaultOpener)
	queue := channel.NewQueue(link, hub, cfg.Timing.SettleDelay)
	queue.SetAuditLogger(auditLog)

	sequencer := sequence.NewController(queue, link, hub, cfg)
	sequencer.SetAuditLogger(auditLog)

	// Mirror the operator log onto stderr.
	hub.Subscribe(func(e telemetry.Entry) {
		switch e.Kind {
		case telemetry.KindError:
			log.Errorf("[%s] %s", e.Kind, e.Message)
		default:
			log.Infof("[%s] %s", e.Kind, e.Message)
		}
	})

	if !noConnect {
		if err := link.Connect(cfg.Serial.Port); err != nil {
			// The API can retry the connect; starting degraded beats not
			// starting at all.
			log.Errorf("initial connect failed: %v", err)
		}
	}

	server := api.NewServer(hub, link, queue, sequencer, auth.NewMiddleware(cfg.API.JWTSecret))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.API.Addr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case sig := <-shutdown:
		log.Infof("received %s, shutting down", sig)
	}

	// An active run must settle and leave the motor off before the link goes.
	sequencer.Abort()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}

	link.Disconnect()
	return nil
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports on this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}
