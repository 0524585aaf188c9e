package main

import (
	"errors"
	"regexp"
	"strings"

	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"

	"github.com/alessio/shellescape"
	"github.com/spf13/cobra"
)

type commandParams struct {
	configPath string
	filters    framework.RegexFilters
	path       string
	bail       bool
	apiVersion string
	debug      bool
	debugAll   bool
	jsonOutput string
}

func (c *commandParams) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&c.configPath, "config", "c", "", "YAML configuration file describing the server under test")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.StringVar(&c.path, "path", "", "run only the suite or test at this dot-separated index path")
	fs.BoolVar(&c.bail, "bail", false, "stop after the first failed test")
	fs.StringVar(&c.apiVersion, "api-version", "", "bulk data API version of the server (overrides apiVersion in the configuration)")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")
	fs.StringVar(&c.jsonOutput, "json-output", "", "write the test tree with results to this JSON file")
}

func (c *commandParams) validate() error {
	if c.configPath == "" {
		return errors.New("--config is required")
	}
	return nil
}

// rerunCommand returns a command line that repeats the run for the given tests only.
func (c *commandParams) rerunCommand(program string, ids ...framework.TestID) string {
	var b commandBuilder
	b.add(program, "run", "--config", c.configPath)
	if c.apiVersion != "" {
		b.add("--api-version", c.apiVersion)
	}
	patterns := make([]string, 0, len(ids))
	for _, id := range ids {
		patterns = append(patterns, regexp.QuoteMeta(id.String()))
	}
	b.add("--run", "^("+strings.Join(patterns, "|")+")$", "--debug")
	return b.String()
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
