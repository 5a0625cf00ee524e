package coremain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ar-io/observer-core/internal/assess"
	"github.com/ar-io/observer-core/mlog"
)

var rootCmd = &cobra.Command{
	Use:   "observerd",
	Short: "ArNS gateway observer",
}

func init() {
	var configFile string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate one report and print it to stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportOnce(configFile)
		},
		SilenceUsage: true,
	}
	reportCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file")
	rootCmd.AddCommand(reportCmd)

	var initOut string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeDefaultConfig(initOut)
		},
		SilenceUsage: true,
	}
	initCmd.Flags().StringVarP(&initOut, "out", "o", "config.yaml", "path to write")
	rootCmd.AddCommand(initCmd)

	rf := new(runFlags)
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the observer as a long-lived process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rf.asService {
				svc, err := service.New(&observerService{f: rf}, svcConfig(rf))
				if err != nil {
					return fmt.Errorf("failed to init service: %w", err)
				}
				return svc.Run()
			}
			return startDaemon(rf.configFile)
		},
		SilenceUsage: true,
	}
	runCmd.Flags().StringVarP(&rf.configFile, "config", "c", "", "config file")
	runCmd.Flags().BoolVar(&rf.asService, "as-service", false, "start as a service")
	_ = runCmd.Flags().MarkHidden("as-service")
	rootCmd.AddCommand(runCmd)

	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the observer as a system service.",
	}
	serviceCmd.PersistentFlags().StringVarP(&rf.configFile, "config", "c", "", "config file")
	serviceCmd.AddCommand(
		newServiceActionCmd(rf, "install", "install this observer as a system service"),
		newServiceActionCmd(rf, "uninstall", "uninstall the service"),
		newServiceActionCmd(rf, "start", "start the installed service"),
		newServiceActionCmd(rf, "stop", "stop the running service"),
		newServiceActionCmd(rf, "restart", "restart the running service"),
		newServiceActionCmd(rf, "status", "report the service status"),
	)
	rootCmd.AddCommand(serviceCmd)
}

// Run executes the cobra root command. Exposed so cmd/observerd's main
// can stay a one-line wrapper, matching the teacher's coremain.Run shape.
func Run() error {
	return rootCmd.Execute()
}

// writeDefaultConfig marshals a minimal starter Config to out, failing if
// the file already exists so `init` never clobbers a real deployment.
func writeDefaultConfig(out string) error {
	if _, err := os.Stat(out); err == nil {
		return fmt.Errorf("%s already exists", out)
	}

	cfg := Config{
		ReferenceGatewayHost:         "arweave.net",
		GatewayAssessmentConcurrency: 8,
		NameAssessmentConcurrency:    8,
		EpochPollInterval:            30 * time.Second,
		PrescribedNames:              []string{"ardrive"},
		ChosenNames:                  []string{},
		GatewayHosts: []GatewayHostEntry{
			{FQDN: "example-gateway.net", Wallet: "wallet-address-here"},
		},
		Metrics: MetricsConfig{Addr: ":9274"},
		Cache:   CacheConfig{Backend: "memory", Size: 4096},
		Log:     mlog.Config{Level: "info", Format: "console"},
	}
	setConfigDefaults(&cfg)

	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}

func runReportOnce(configFile string) error {
	cfg, _, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	lg, err := mlog.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	metrics := assess.NewMetrics(prometheus.NewRegistry())
	builder, _ := newReportBuilder(cfg, lg, metrics)

	report, err := builder.GenerateReport(context.Background())
	if err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func startDaemon(configFile string) error {
	cfg, v, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := RunObserver(cfg, v); err != nil {
		return fmt.Errorf("observer exited: %w", err)
	}
	return nil
}

type runFlags struct {
	configFile string
	asService  bool
}

// observerService adapts startDaemon to the kardianos/service.Interface
// contract so `run --as-service` and the `service` subcommand group can
// install/start/stop the daemon as a native OS service.
type observerService struct {
	f *runFlags
}

func (s *observerService) Start(svc service.Service) error {
	go func() {
		if err := startDaemon(s.f.configFile); err != nil {
			mlog.L().Error("observer service exited with error", zap.Error(err))
		}
	}()
	return nil
}

func (s *observerService) Stop(svc service.Service) error {
	return nil
}

func svcConfig(f *runFlags) *service.Config {
	return &service.Config{
		Name:        "arns-observer",
		DisplayName: "ArNS Gateway Observer",
		Description: "Audits ArNS gateway compliance once per epoch.",
		Arguments:   []string{"run", "--as-service", "-c", f.configFile},
	}
}

func newServiceActionCmd(f *runFlags, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.New(&observerService{f: f}, svcConfig(f))
			if err != nil {
				return fmt.Errorf("failed to init service: %w", err)
			}
			return service.Control(svc, action)
		},
		SilenceUsage: true,
	}
}

