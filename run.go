package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"

	"github.com/bulk-data-tools/bulk-export-contract-tests/bulktests"
	"github.com/bulk-data-tools/bulk-export-contract-tests/config"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework/testtree"

	"github.com/spf13/cobra"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

func newRunCommand() *cobra.Command {
	var params commandParams
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the contract tests against a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := params.validate(); err != nil {
				return err
			}
			ok, err := runTests(cmd.Context(), &params)
			if err != nil {
				return err
			}
			if !ok {
				os.Exit(1)
			}
			return nil
		},
	}
	params.bind(cmd)
	return cmd
}

func runTests(ctx context.Context, params *commandParams) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	loggers := ldlog.NewDefaultLoggers()
	if params.debugAll {
		loggers.SetMinLevel(ldlog.Debug)
	}

	cfg, err := config.Load(params.configPath)
	if err != nil {
		return false, err
	}
	versionString := cfg.APIVersion
	if params.apiVersion != "" {
		versionString = params.apiVersion
	}
	var version framework.Version
	if versionString != "" {
		if version, err = framework.ParseVersion(versionString); err != nil {
			return false, fmt.Errorf("invalid API version: %w", err)
		}
	}

	tree, err := bulktests.BuildTree()
	if err != nil {
		return false, err
	}

	if version.IsDefined() {
		loggers.Infof("Testing %s (API version %s, authentication %s)", cfg.BaseURL, version, cfg.Authentication.Type)
	} else {
		loggers.Infof("Testing %s (authentication %s)", cfg.BaseURL, cfg.Authentication.Type)
	}
	fmt.Println()
	framework.PrintFilterDescription(os.Stdout, params.filters)

	reporter := &ConsoleTestLogger{
		Out:                  os.Stdout,
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	results, err := testtree.Run(ctx, tree, testtree.RunOptions{
		Config:     &bulktests.Environment{Config: cfg},
		APIVersion: version,
		Filter:     params.filters.AsFilter,
		Bail:       params.bail,
		Path:       params.path,
		Listeners:  []testtree.Listener{reporter},
		Logger:     loggers.ForLevel(ldlog.Debug),
	})
	if err != nil {
		return false, err
	}

	fmt.Println()
	statuses := make([]string, 0, len(testtree.TerminalStatuses))
	for _, s := range testtree.TerminalStatuses {
		statuses = append(statuses, string(s))
	}
	framework.PrintResults(os.Stdout, results, statuses)

	if params.jsonOutput != "" {
		if err := writeJSONOutput(params.jsonOutput, tree); err != nil {
			loggers.Errorf("Could not write %s: %s", params.jsonOutput, err)
		}
	}

	if !results.OK() {
		fmt.Println()
		fmt.Println("To rerun the failed tests with debug output:")
		ids := make([]framework.TestID, 0, len(results.Failures))
		for _, f := range results.Failures {
			ids = append(ids, f.TestID)
		}
		fmt.Printf("  %s\n", params.rerunCommand(os.Args[0], ids...))
	}
	return results.OK(), nil
}

func writeJSONOutput(path string, tree *testtree.Tree) error {
	data, err := json.MarshalIndent(testtree.Project(tree.Root), "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0o644)
}
