package main

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/mutt-ldap/internal/cache"
	"github.com/sonroyaalmerol/mutt-ldap/internal/config"
	"github.com/sonroyaalmerol/mutt-ldap/internal/directory"
	"github.com/sonroyaalmerol/mutt-ldap/internal/format"
	"github.com/sonroyaalmerol/mutt-ldap/internal/logging"
	"github.com/sonroyaalmerol/mutt-ldap/internal/query"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var errNoQuery = errors.New("no search string given")

type options struct {
	configPath string
	logLevel   string
	noCache    bool
}

// session is an open directory connection that can be searched.
type session interface {
	query.DirectorySearcher
	Close() error
}

type liveSession struct {
	*directory.Session
	*directory.Searcher
}

// openSession is replaced in tests.
var openSession = func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (session, error) {
	s, err := directory.Open(ctx, cfg, logging.Component(logger, "session"))
	if err != nil {
		return nil, err
	}
	searcher := directory.NewSearcher(s, directory.SearchOptions{
		Attributes: query.Attributes(cfg),
		SizeLimit:  cfg.Query.SizeLimit,
		TimeLimit:  cfg.Query.TimeLimit,
	}, logging.Component(logger, "search"))
	return liveSession{Session: s, Searcher: searcher}, nil
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "mutt-ldap [flags] <query words...>",
		Short: "LDAP address searches for mutt",
		Long: `Search an LDAP directory for addresses and print them in the format
mutt's query_command expects. Add to .muttrc:

  set query_command = "mutt-ldap '%s'"

Flags are only read before the first query word. A leading word that starts
with "-" but is not one of the flags below is taken as query text; use "--"
to pass a query that looks like a flag.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		// flags are split off by hand so "-foo" can be a query
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			n := leadingFlags(flags, args)
			if err := flags.Parse(args[:n]); err != nil {
				return err
			}
			if help, _ := flags.GetBool("help"); help {
				return cmd.Help()
			}
			words := args[n:]
			if len(words) > 0 && words[0] == "--" {
				words = words[1:]
			}
			if len(words) == 0 {
				return errNoQuery
			}
			return run(cmd.Context(), opts, strings.Join(words, " "), stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path (default $MUTT_LDAP_CONFIG or "+config.DefaultPath+")")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Bypass the result cache for this run")
	cmd.InitDefaultHelpFlag()

	return cmd
}

// leadingFlags counts the args at the front that are flags of this command,
// values included. The first arg that is not a known flag starts the query.
func leadingFlags(flags *pflag.FlagSet, args []string) int {
	i := 0
	for i < len(args) {
		a := args[i]
		if len(a) < 2 || a[0] != '-' || a == "--" {
			return i
		}
		name, _, inline := strings.Cut(strings.TrimLeft(a, "-"), "=")
		var f *pflag.Flag
		switch {
		case strings.HasPrefix(a, "--"):
			f = flags.Lookup(name)
		case len(name) == 1:
			f = flags.ShorthandLookup(name)
		}
		if f == nil {
			return i
		}
		i++
		if !inline && f.NoOptDefVal == "" {
			i++
		}
	}
	return min(i, len(args))
}

// run answers q and prints the result block. The session is unbound and
// the cache saved on every return path once they have been acquired.
func run(ctx context.Context, opts options, q string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.noCache {
		cfg.Cache.Enable = false
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger := logging.New(cfg.Log.Level, stderr)

	var store *cache.Store
	if cfg.Cache.Enable {
		store = cache.Load(cfg.Cache.Path, cfg.CacheLongevity(), logging.Component(logger, "cache"))
		defer func() {
			if serr := store.Save(); serr != nil {
				logger.Warn().Err(serr).Str("path", cfg.Cache.Path).Msg("failed to save cache")
			}
		}()
	}

	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("unbind failed")
		}
	}()

	searcher := query.New(cfg, sess, store, logging.Component(logger, "query"))
	rows, err := query.Addresses(ctx, searcher, format.Formatter{OptionalColumn: cfg.Results.OptionalColumn}, q)
	if err != nil {
		return err
	}
	return format.Write(stdout, rows)
}
