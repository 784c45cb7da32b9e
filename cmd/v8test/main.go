package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/qtproject/qtjsbackend/pkg/config"
	"github.com/qtproject/qtjsbackend/pkg/driver"
	"github.com/qtproject/qtjsbackend/pkg/v8test"
)

func main() {
	var (
		configFlag  = flag.String("config", "", "Path to a YAML configuration file")
		runFlag     = flag.String("run", "", "Comma-separated test names to run (default: all)")
		skipFlag    = flag.String("skip", "", "Comma-separated test names to skip")
		timeoutFlag = flag.Duration("timeout", 0, "Timeout per test (e.g. 30s); overrides the config")
		listFlag    = flag.Bool("list", false, "List the registered tests and exit")
		verbose     = flag.Bool("verbose", false, "Print passing tests and durations")
	)
	flag.Parse()

	if *listFlag {
		for _, t := range v8test.Tests() {
			fmt.Println(t.Name)
		}
		return
	}

	cfg := config.Default()
	if *configFlag != "" {
		var err error
		cfg, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(64)
		}
	}

	suite := &v8test.Suite{
		Logger:  cfg.Logger(os.Stderr),
		Include: cfg.Suite.Include,
		Exclude: cfg.Suite.Exclude,
		Timeout: cfg.SuiteTimeout(),
	}
	if *runFlag != "" {
		suite.Include = splitNames(*runFlag)
	}
	if *skipFlag != "" {
		suite.Exclude = append(suite.Exclude, splitNames(*skipFlag)...)
	}
	if *timeoutFlag > 0 {
		suite.Timeout = *timeoutFlag
	}
	if cfg.MaxCallDepth > 0 {
		suite.Isolate = append(suite.Isolate, driver.WithMaxCallDepth(cfg.MaxCallDepth))
	}

	for _, name := range suite.Include {
		if _, ok := v8test.Lookup(name); !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown test %q (see -list)\n", name)
			os.Exit(64)
		}
	}

	start := time.Now()
	results := suite.Run()
	for _, r := range results {
		if !r.Passed {
			fmt.Fprintln(os.Stderr, r)
		} else if *verbose {
			fmt.Printf("%s (%v)\n", r, r.Duration.Round(time.Millisecond))
		}
	}

	failed := v8test.Failed(results)
	fmt.Printf("%d passed, %d failed in %v\n",
		len(results)-len(failed), len(failed), time.Since(start).Round(time.Millisecond))
	if len(failed) > 0 {
		os.Exit(1)
	}
}

func splitNames(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
