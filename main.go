package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jetrmm/sysprobe/agent"
	"github.com/jetrmm/sysprobe/agent/common"
	"github.com/jetrmm/sysprobe/agent/config"
	_ "github.com/jetrmm/sysprobe/agent/windows"
)

var (
	version = "0.1.0"
	log     = logrus.New()
	logFile *os.File

	cfgFile string
	cfg     *config.Config
	a       agent.Agent
)

var rootCmd = &cobra.Command{
	Use:           "sysprobe",
	Short:         "Windows system inventory probe",
	Long:          `SysProbe collects OS, processor and graphics details over WMI and the registry, prints them and optionally reports them to an RMM server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(cfgFile, cmd.Flags()); err != nil {
			return err
		}
		if err = cfg.Validate(); err != nil {
			return err
		}
		setupLogging(cfg.LogLevel, cfg.LogTo)

		a, err = agent.New(log, cfg, version)
		return err
	},
	RunE: runSysInfo,
}

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Collect the system report, print it and send it to the configured reporters",
	Args:  cobra.NoArgs,
	RunE:  runSysInfo,
}

var wmiCmd = &cobra.Command{
	Use:     "wmi <class> [fields]",
	Short:   "Run a raw WMI query and print every row",
	Example: `  sysprobe wmi Win32_Processor "Name, NumberOfCores, ThreadCount"`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fields []string
		if len(args) == 2 {
			fields = common.SplitFields(args[1])
		}
		return a.Query(cmd.OutOrStdout(), args[0], fields)
	},
}

var regCmd = &cobra.Command{
	Use:     "reg <path> <name>",
	Short:   "Read a string value below HKEY_LOCAL_MACHINE",
	Example: `  sysprobe reg "SOFTWARE/Microsoft/Windows NT/CurrentVersion" DisplayVersion`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := a.ReadValue(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check WMI and registry access",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a.ShowStatus(version)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// no agent needed
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		agent.ShowVersionInfo(version)
	},
}

func runSysInfo(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return a.SysInfo(ctx, cmd.OutOrStdout())
}

func init() {
	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", `config file (default is %ProgramData%\SysProbe\sysprobe.yaml, then ./sysprobe.yaml)`)
	pf.String("log", d.LogLevel, "Log level: INFO*, WARN, ERROR, DEBUG")
	pf.String("logto", d.LogTo, "Log destination: stderr*, stdout, file")
	pf.String("namespace", d.Namespace, "WMI namespace for raw queries")
	pf.String("policy", d.FieldErrorPolicy, "Unreadable WMI property: skip*, empty, fail")
	pf.StringP("output", "o", d.Output, "Output format: text*, json, yaml")
	pf.String("agent-id", d.AgentID, "Agent ID sent with reports")
	pf.String("server", d.ServerURL, "RMM server URL to PATCH the report to")
	pf.String("token", d.Token, "Agent's authorization token")
	pf.String("cert", d.Cert, "Path to the Certificate Authority's .pem")
	pf.String("nats", d.NatsURL, "NATS URL to publish the report to")
	pf.String("subject", d.NatsSubject, "NATS subject")
	pf.Duration("timeout", d.Timeout, "Reporting timeout")

	rootCmd.AddCommand(sysinfoCmd)
	rootCmd.AddCommand(wmiCmd)
	rootCmd.AddCommand(regCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if a != nil {
		if cerr := a.Close(); cerr != nil {
			log.Errorln("Close:", cerr)
		}
	}
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging(level, to string) {
	ll, err := logrus.ParseLevel(level)
	if err != nil {
		ll = logrus.InfoLevel
	}
	log.SetLevel(ll)

	switch to {
	case "stdout":
		log.SetOutput(os.Stdout)
	case "file":
		var path string
		switch runtime.GOOS {
		case "windows":
			path = filepath.Join(os.Getenv("ProgramFiles"), common.AGENT_FOLDER, common.AGENT_LOG_FILE)
		default:
			path = filepath.Join(os.TempDir(), common.AGENT_LOG_FILE)
		}
		logFile, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
		if err != nil {
			log.SetOutput(os.Stderr)
			log.Warnln("Unable to open log file, logging to stderr:", err)
			return
		}
		log.SetOutput(logFile)
	default:
		log.SetOutput(os.Stderr)
	}
}
