package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sriram-PR/web2text/pkg/config"
	"github.com/Sriram-PR/web2text/pkg/crawler"
	"github.com/Sriram-PR/web2text/pkg/extract"
	"github.com/Sriram-PR/web2text/pkg/orchestrate"
	"github.com/Sriram-PR/web2text/pkg/scope"
	"github.com/Sriram-PR/web2text/pkg/sink"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// rootOptions holds the raw flag values. Only flags the user actually set
// override the config file.
type rootOptions struct {
	selector   string
	sleep      float64
	avoid      []string
	focus      []string
	lines      string
	files      string
	badRobot   bool
	configFile string
	engine     string
	logLevel   string
	workers    int
	maxDepth   int
	maxPages   int
	visitedLog string
}

// NewRootCmd creates the web2text command. Logs go to log; line output
// without a file goes to stdout.
func NewRootCmd(log *logrus.Logger, stdout io.Writer) *cobra.Command {
	return newRootCmd(log, stdout, &rootOptions{})
}

func newRootCmd(log *logrus.Logger, stdout io.Writer, o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "web2text [flags] URL",
		Short: "Crawl a website and convert its pages to plain text",
		Long: `web2text crawls a website starting at URL, stays on the seed's host,
and writes the plain text of every page it visits.

Output is either one line per page (--lines, stdout by default) or one file
per page under a directory that mirrors the site's paths (--files).`,
		Example: `  web2text --lines https://example.com/docs/
  web2text -q article -s --avoid /blog,/tags --files out https://example.com/
  web2text --focus /docs --lines=docs.txt https://example.com/`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: expected exactly one URL, got %d arguments", utils.ErrConfig, len(args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), cmd.Flags(), o, args[0], log, stdout)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.selector, "query", "q", "", "CSS selector of the element(s) to extract (default \"body\")")
	f.StringVar(&o.selector, "css", "", "Alias for --query")
	f.Float64VarP(&o.sleep, "sleep", "s", 0, "Seconds to wait after each page; bare -s waits 1 second (use --sleep=N)")
	f.Lookup("sleep").NoOptDefVal = "1"
	f.StringSliceVar(&o.avoid, "avoid", nil, "Comma-separated URL prefixes never to follow (absolute or relative to URL)")
	f.StringSliceVar(&o.focus, "focus", nil, "Comma-separated URL prefixes whose pages are written (default all)")
	f.StringVar(&o.lines, "lines", "", "Write one line per page to a file; bare --lines writes to stdout (use --lines=FILE)")
	f.Lookup("lines").NoOptDefVal = "-"
	f.StringVar(&o.files, "files", "", "Write one file per page under this directory")
	f.BoolVar(&o.badRobot, "bad-robot", false, "Ignore robots.txt")
	f.StringVar(&o.configFile, "config", "", "Path to a YAML config file; flags override it")
	f.StringVar(&o.engine, "engine", "", "Fetch engine: native or colly (default \"native\")")
	f.StringVar(&o.logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error)")
	f.IntVar(&o.workers, "workers", 0, "Number of concurrent fetch workers")
	f.IntVar(&o.maxDepth, "max-depth", 0, "Maximum link depth from URL (0 = unlimited)")
	f.IntVar(&o.maxPages, "max-pages", 0, "Maximum number of pages to fetch (0 = unlimited)")
	f.StringVar(&o.visitedLog, "visited-log", "", "Write every visited URL and its status to this file")

	return cmd
}

// buildConfig layers defaults, the optional config file and the flags that
// were set, in that order
func buildConfig(flags *pflag.FlagSet, o *rootOptions, seedURL string) (*config.Config, error) {
	if flags.Changed("lines") && flags.Changed("files") {
		return nil, fmt.Errorf("%w: --lines and --files cannot be used together", utils.ErrConfig)
	}

	cfg := config.Default()
	if o.configFile != "" {
		loaded, err := config.LoadFile(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.SeedURL = seedURL

	if flags.Changed("query") || flags.Changed("css") {
		cfg.Selector = o.selector
	}
	if flags.Changed("sleep") {
		cfg.Delay = time.Duration(o.sleep * float64(time.Second))
	}
	if flags.Changed("avoid") {
		cfg.Avoid = o.avoid
	}
	if flags.Changed("focus") {
		cfg.Focus = o.focus
	}
	if flags.Changed("lines") {
		cfg.Output = config.OutputConfig{Mode: config.OutputLines, Path: o.lines}
	}
	if flags.Changed("files") {
		cfg.Output = config.OutputConfig{Mode: config.OutputFiles, Path: o.files}
	}
	if flags.Changed("bad-robot") {
		cfg.IgnoreRobotsTxt = o.badRobot
	}
	if flags.Changed("engine") {
		cfg.Engine = config.EngineKind(o.engine)
	}
	if flags.Changed("workers") {
		cfg.NumWorkers = o.workers
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth = o.maxDepth
	}
	if flags.Changed("max-pages") {
		cfg.MaxPages = o.maxPages
	}
	if flags.Changed("visited-log") {
		cfg.VisitedLog = o.visitedLog
	}
	return cfg, nil
}

func runCrawl(ctx context.Context, flags *pflag.FlagSet, o *rootOptions, seedURL string, log *logrus.Logger, stdout io.Writer) error {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", o.logLevel, err)
	} else {
		log.SetLevel(level)
	}

	cfg, err := buildConfig(flags, o, seedURL)
	if err != nil {
		return err
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return err
	}

	entry := logrus.NewEntry(log)
	entry.WithFields(logrus.Fields{
		"seed":     cfg.SeedURL,
		"selector": cfg.Selector,
		"output":   cfg.Output.Mode,
		"engine":   cfg.Engine,
		"robots":   cfg.ObeyRobotsTxt(),
		"delay":    cfg.Delay,
	}).Info("Starting crawl")

	if cfg.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.GlobalCrawlTimeout)
		defer cancel()
	}

	filter, err := scope.New(cfg.SeedURL, cfg.Avoid, cfg.Focus)
	if err != nil {
		return err
	}
	engine, err := crawler.New(cfg, entry)
	if err != nil {
		return err
	}
	out, err := sink.New(cfg.Output, cfg.FallbackFilename, stdout, entry)
	if err != nil {
		return err
	}

	orc, err := orchestrate.New(orchestrate.Params{
		Filter:        filter,
		Extractor:     extract.NewTextExtractor(cfg.Selector),
		Sink:          out,
		Delay:         cfg.Delay,
		ObeyRobotsTxt: cfg.ObeyRobotsTxt(),
		SeedURL:       cfg.SeedURL,
		Log:           entry,
	})
	if err != nil {
		out.Close()
		return err
	}
	return orc.Run(ctx, engine)
}

// placeOptionalValues rewrites "--lines FILE" and "-s SECS" into their
// attached forms so flags with an optional value can also take it as the
// next argument. The next argument is only taken when it looks like a value
// and a positional argument still follows, so "--lines URL" keeps meaning
// stdout.
func placeOptionalValues(flags *pflag.FlagSet, args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		out = append(out, arg)

		f := lookupFlag(flags, arg)
		if f == nil || f.NoOptDefVal == "" || f.Value.Type() == "bool" {
			continue
		}
		if i+1 >= len(args) || !isValue(args[i+1]) {
			continue
		}
		if f.Value.Type() == "float64" {
			if _, err := strconv.ParseFloat(args[i+1], 64); err != nil {
				continue
			}
		}
		if countPositionals(flags, args[i+2:]) == 0 {
			continue
		}
		out[len(out)-1] = arg + "=" + args[i+1]
		i++
	}
	return out
}

// lookupFlag resolves "--name" and "-x" tokens without an attached value
func lookupFlag(flags *pflag.FlagSet, arg string) *pflag.Flag {
	switch {
	case strings.HasPrefix(arg, "--") && !strings.Contains(arg, "="):
		return flags.Lookup(arg[2:])
	case len(arg) == 2 && arg[0] == '-' && arg[1] != '-':
		return flags.ShorthandLookup(arg[1:])
	}
	return nil
}

func isValue(arg string) bool {
	return arg == "-" || !strings.HasPrefix(arg, "-")
}

// countPositionals counts the non-flag arguments in args, skipping the
// values of flags that require one
func countPositionals(flags *pflag.FlagSet, args []string) int {
	n := 0
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return n + len(args) - i - 1
		case isValue(arg):
			n++
		default:
			if f := lookupFlag(flags, arg); f != nil && f.NoOptDefVal == "" {
				i++
			}
		}
	}
	return n
}
