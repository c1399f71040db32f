package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/replanify/internal/replanify/runtime"
	"github.com/lexcodex/replanify/replan"
)

var cfg = runtimesvc.DefaultConfig()

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "replanify",
		Short:         "Turn model output into validated, executed action plans",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Normalize()
		},
	}
	root.PersistentFlags().StringVar(&cfg.Workspace, "workspace", cfg.Workspace, "Project root actions are confined to")
	root.PersistentFlags().StringVar(&cfg.OllamaEndpoint, "ollama-endpoint", cfg.OllamaEndpoint, "Ollama endpoint URL")
	root.PersistentFlags().StringVar(&cfg.OllamaModel, "ollama-model", cfg.OllamaModel, "Ollama model name")
	root.PersistentFlags().StringVar(&cfg.RolesDir, "roles-dir", cfg.RolesDir, "Directory with role definition YAML files")
	root.PersistentFlags().StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "Run journal database path (empty disables)")
	root.PersistentFlags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Replanning budget before halting")
	root.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "Log prompts and model payloads")

	root.AddCommand(newRunCmd(), newServeCmd(), newRolesCmd(), newHistoryCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "run [text]",
		Short: "Run one piece of model output through the pipeline",
		Long: "Extracts an action plan from the given text (argument, --file, or stdin),\n" +
			"validates it against the role's policy, and executes it in the workspace,\n" +
			"replanning on failure up to the retry budget.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, filePath)
			if err != nil {
				return err
			}
			rt, err := runtimesvc.New(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.RunOnce(cmd.Context(), cfg.RoleName, text, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			printReport(cmd, report)
			if report.Status == replan.StatusHalted {
				return fmt.Errorf("run halted: %s", report.HaltReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.RoleName, "role", cfg.RoleName, "Role policy to validate against")
	cmd.Flags().StringVar(&cfg.Mode, "mode", cfg.Mode, "Execution mode (captured or streaming)")
	cmd.Flags().StringVar(&filePath, "file", "", "Read the model output from a file instead of the argument")
	return cmd
}

func readInput(cmd *cobra.Command, args []string, filePath string) (string, error) {
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("no input: pass text, --file, or pipe to stdin")
	}
	return string(data), nil
}

func printReport(cmd *cobra.Command, report *replan.Report) {
	cmd.Printf("status: %s", report.Status)
	if report.HaltReason != "" {
		cmd.Printf(" (%s)", report.HaltReason)
	}
	cmd.Printf(" after %d attempt(s), strategy %s\n", report.Attempts, report.Strategy)
	for _, rejection := range report.Rejections {
		cmd.Printf("rejected action %d: %s (%s)\n", rejection.Index, rejection.Message, rejection.Reason)
	}
	for _, outcome := range report.Outcome.Outcomes {
		line := fmt.Sprintf("  [%d] %s", outcome.Index, outcome.Action.Kind)
		if outcome.Action.Path != "" {
			line += " " + outcome.Action.Path
		}
		if outcome.Action.CommandLine != "" {
			line += " `" + outcome.Action.CommandLine + "`"
		}
		line += " -> " + string(outcome.Status)
		if outcome.Message != "" {
			line += ": " + outcome.Message
		}
		cmd.Println(line)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP and JSON-RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimesvc.New(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			cmd.Printf("HTTP on %s, RPC on %s, workspace %s\n", cfg.ServerAddr, cfg.RPCAddr, cfg.Workspace)
			err = rt.Serve(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "HTTP listen address")
	cmd.Flags().StringVar(&cfg.RPCAddr, "rpc-addr", cfg.RPCAddr, "JSON-RPC listen address")
	return cmd
}

func newRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List the effective role policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimesvc.New(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			for _, name := range rt.Roles.Names() {
				role, ok := rt.Roles.Get(name)
				if !ok {
					continue
				}
				kinds := make([]string, 0, len(role.AllowedKinds))
				for _, kind := range role.AllowedKinds {
					kinds = append(kinds, string(kind))
				}
				cmd.Printf("%-10s %s\n", role.Name, strings.Join(kinds, ", "))
				if role.RestrictPath != "" {
					cmd.Printf("%-10s   paths restricted to %s\n", "", role.RestrictPath)
				}
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	var showRun int64
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect journaled runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimesvc.New(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.Journal == nil {
				return errors.New("journaling is disabled (set --journal)")
			}
			if showRun > 0 {
				attempts, err := rt.Journal.Attempts(cmd.Context(), showRun)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(attempts)
			}
			runs, err := rt.Journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, run := range runs {
				status := run.Status
				if run.HaltReason != "" {
					status += " (" + run.HaltReason + ")"
				}
				cmd.Printf("%d\t%s\t%s\t%s\n", run.ID, run.Role, status, run.StartedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	cmd.Flags().Int64Var(&showRun, "run", 0, "Show the attempts of one run as JSON")
	return cmd
}
