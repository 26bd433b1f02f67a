package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mensylisir/sshbridge/bridge"
	"github.com/mensylisir/sshbridge/common"
	"github.com/mensylisir/sshbridge/config"
	"github.com/mensylisir/sshbridge/logger"
	"github.com/mensylisir/sshbridge/server"
)

var flags = struct {
	configFile   string
	host         string
	port         int
	user         string
	password     string
	keyFile      string
	suPassword   string
	sudoPassword string
	timeoutMs    int64
	maxChars     string
	disableSudo  bool
	logDir       string
	verbose      bool
}{}

var rootCmd = &cobra.Command{
	Use:           common.AppName,
	Short:         "Persistent SSH command-execution bridge speaking JSON-RPC on stdio",
	Long:          "sshbridge keeps one authenticated SSH session to a remote host and exposes\nexec, sudo-exec and file-transfer tools over stdio. Optional `su` elevation\nruns privileged commands through a reused root shell.",
	Version:       common.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML config file")
	rootCmd.Flags().StringVar(&flags.host, "host", "", "SSH host to connect to")
	rootCmd.Flags().IntVar(&flags.port, "port", 0, "SSH port (default 22)")
	rootCmd.Flags().StringVar(&flags.user, "user", "", "SSH username")
	rootCmd.Flags().StringVar(&flags.password, "password", "", "SSH password (alternative to --key)")
	rootCmd.Flags().StringVar(&flags.keyFile, "key", "", "Path to SSH private key file (alternative to --password)")
	rootCmd.Flags().StringVar(&flags.suPassword, "su-password", "", "Password for su elevation to root")
	rootCmd.Flags().StringVar(&flags.sudoPassword, "sudo-password", "", "Password for sudo commands")
	rootCmd.Flags().Int64Var(&flags.timeoutMs, "timeout", 0, "Command execution timeout in milliseconds (default 60000)")
	rootCmd.Flags().StringVar(&flags.maxChars, "max-chars", "", "Maximum command length; \"none\" or 0 disables the limit (default 1000)")
	rootCmd.Flags().BoolVar(&flags.disableSudo, "disable-sudo", false, "Disable the sudo-exec tool")
	rootCmd.Flags().StringVar(&flags.logDir, "log-dir", "", "Directory for rotating log files (console only when unset)")
	rootCmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogDir, cfg.Verbose); err != nil {
		return err
	}

	log := logger.Log.WithField(common.ComponentName, "main")
	log.Infof("%s v%s starting...", common.AppName, common.Version)
	log.Infof("Target: %s@%s:%d", cfg.User, cfg.Host, cfg.Port)
	log.Infof("Timeout: %dms, Max chars: %s", cfg.TimeoutMs, maxCharsLabel(cfg.MaxCommandChars()))
	if cfg.DisableSudo {
		log.Info("sudo-exec tool is disabled")
	}

	connCfg, err := cfg.ConnectionConfig()
	if err != nil {
		return err
	}

	manager, err := bridge.NewManager(connCfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	srv := server.New(manager, cfg.Timeout(), cfg.MaxCommandChars(), cfg.DisableSudo, os.Stdin, os.Stdout)
	srv.SetInstructions(fmt.Sprintf("%s v%s - Execute commands on %s@%s:%d",
		common.AppName, common.Version, cfg.User, cfg.Host, cfg.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(ctx)
	}()

	log.Infof("%s running on stdio", common.AppName)

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal, shutting down...")
	case err := <-serveDone:
		if err != nil && err != context.Canceled {
			log.Errorf("Server error: %v", err)
			return err
		}
	}

	log.Infof("%s stopped", common.AppName)
	return nil
}

// buildConfig assembles configuration with flags taking precedence over
// environment variables, which take precedence over the config file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader(flags.configFile).Load()
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("host") {
		cfg.Host = flags.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flags.port
	}
	if cmd.Flags().Changed("user") {
		cfg.User = flags.user
	}
	if cmd.Flags().Changed("password") {
		cfg.Password = flags.password
	}
	if cmd.Flags().Changed("key") {
		cfg.KeyFile = flags.keyFile
	}
	if cmd.Flags().Changed("su-password") {
		cfg.SuPassword = flags.suPassword
	}
	if cmd.Flags().Changed("sudo-password") {
		cfg.SudoPassword = flags.sudoPassword
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutMs = flags.timeoutMs
	}
	if cmd.Flags().Changed("max-chars") {
		cfg.MaxChars = flags.maxChars
	}
	if cmd.Flags().Changed("disable-sudo") {
		cfg.DisableSudo = flags.disableSudo
	}
	if cmd.Flags().Changed("log-dir") {
		cfg.LogDir = flags.logDir
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = flags.verbose
	}

	config.SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func maxCharsLabel(maxChars int) string {
	if maxChars <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", maxChars)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
