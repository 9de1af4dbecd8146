package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/virtlab/netlab/pkg/config"
	"github.com/virtlab/netlab/pkg/datastore/statedir"
	"github.com/virtlab/netlab/pkg/environment"
	"github.com/virtlab/netlab/pkg/netenv"
)

const appName = "netlab"

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})

	conf, err := config.Load(appName)
	if err != nil {
		fail(fmt.Errorf("failed to initialize config: %w", err))
	}

	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		fail(fmt.Errorf("invalid log level %s: %w", conf.LogLevel, err))
	}
	logrus.SetLevel(level)

	repository, err := statedir.NewRepository(conf.StateDir)
	if err != nil {
		fail(err)
	}

	service := environment.NewService(repository, netenv.NewProvisioner(), conf)

	if err := newRootCommand(service).Execute(); err != nil {
		// A command run inside an environment reports its own exit code.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
	os.Exit(1)
}

func newRootCommand(service environment.Service) *cobra.Command {
	var (
		name   string
		genNew bool
	)

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Manage isolated virtual network test environments",
		Long:          "netlab creates and tracks named network namespaces, each connected to the host by a veth pair with its own address prefix.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&name, "name", "n", "", "environment name")
	rootCmd.PersistentFlags().BoolVarP(&genNew, "gen-new", "g", false, "generate a new environment name even if one is selected")

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Create and select a new environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := service.ResolveName(name, genNew)
			if err != nil {
				return err
			}
			env, err := service.Create(cmd.Context(), resolved, "")
			if err != nil {
				return err
			}
			fmt.Printf("environment %s ready, prefix %s\n", env.Name, env.Prefix)
			return nil
		},
	}

	teardownCmd := &cobra.Command{
		Use:   "teardown",
		Short: "Destroy the selected environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return service.Destroy(cmd.Context(), name)
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Destroy and re-create the selected environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := service.Reset(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Printf("environment %s ready, prefix %s\n", env.Name, env.Prefix)
			return nil
		},
	}

	execCmd := &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Run a command inside the selected environment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return service.Exec(cmd.Context(), name, args)
		},
	}
	// Flags after the command name belong to the wrapped command.
	execCmd.Flags().SetInterspersed(false)

	enterCmd := &cobra.Command{
		Use:   "enter",
		Short: "Open an interactive shell inside the selected environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return service.Exec(cmd.Context(), name, nil)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current selection and registry listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := service.Status(cmd.Context(), name)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(enterCmd)
	rootCmd.AddCommand(statusCmd)
	return rootCmd
}

func printReport(report *environment.Report) {
	if report.Current == "" {
		fmt.Println("no environment selected")
	} else {
		fmt.Printf("current: %s (%s)\n", report.Current, report.Prefix)
		printInterface("host", report.Host)
		printInterface("namespace", report.Namespace)
	}

	if len(report.Known) == 0 {
		fmt.Println("no environments")
		return
	}
	fmt.Println("environments:")
	for _, known := range report.Known {
		fmt.Printf("  %s\n", known)
	}
}

func printInterface(side string, iface *netenv.Interface) {
	if iface == nil {
		fmt.Printf("  %s interface: missing\n", side)
		return
	}
	fmt.Printf("  %s interface: %s %s [%s]\n", side, iface.Name, iface.State, strings.Join(iface.Addresses, " "))
}
