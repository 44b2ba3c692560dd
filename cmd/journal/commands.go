package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spacesedan/moodjournal/config"
	"github.com/spacesedan/moodjournal/internal/clients"
	"github.com/spacesedan/moodjournal/internal/connection"
	"github.com/spacesedan/moodjournal/internal/journal"
	"github.com/spacesedan/moodjournal/internal/sentiment"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	markdown bool
	json     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "journal",
		Short:         "Score journal entries and keep a mood history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flags.markdown, "markdown", false, "strip markdown formatting and links before scoring")
	root.PersistentFlags().BoolVar(&flags.json, "json", false, "print results as JSON")

	root.AddCommand(
		newAnalyzeCmd(flags),
		newClassifyCmd(flags),
		newRecordCmd(flags),
		newImportCmd(flags),
		newHistoryCmd(flags),
	)
	return root
}

func (f *rootFlags) analyzer() *sentiment.Analyzer {
	if f.markdown {
		return sentiment.NewAnalyzer(sentiment.WithMarkdown())
	}
	return sentiment.NewAnalyzer()
}

func newAnalyzeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <text>",
		Short: "Print the compound sentiment score and mood of a text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis := flags.analyzer().Analyze(strings.Join(args, " "))
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), analysis)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", formatScore(analysis.Score), analysis.Mood)
			return err
		},
	}
}

// classify parses its own arguments so negative scores such as -0.5 are
// not mistaken for shorthand flags.
func newClassifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:                "classify [score]",
		Short:              "Map a compound score to a mood; no score means unknown",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseClassifyArgs(args)
			if err != nil {
				return err
			}
			if in.help {
				return cmd.Help()
			}

			mood := sentiment.ClassifyMood(in.score)
			if flags.json || in.json {
				return writeJSON(cmd.OutOrStdout(), classifyResult{Score: jsonScore(in.score), Mood: mood})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), mood)
			return err
		},
	}
}

type classifyInput struct {
	score *float64
	json  bool
	help  bool
}

type classifyResult struct {
	Score *float64       `json:"score"`
	Mood  sentiment.Mood `json:"mood"`
}

func parseClassifyArgs(args []string) (classifyInput, error) {
	var in classifyInput
	for _, arg := range args {
		switch arg {
		case "--":
			continue
		case "--json":
			in.json = true
			continue
		case "--markdown":
			continue
		case "-h", "--help":
			in.help = true
			continue
		}

		if in.score != nil {
			return classifyInput{}, fmt.Errorf("classify takes at most one score, got %q", arg)
		}
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return classifyInput{}, fmt.Errorf("invalid score %q: %w", arg, err)
		}
		in.score = &v
	}
	return in, nil
}

// jsonScore drops scores encoding/json cannot represent.
func jsonScore(score *float64) *float64 {
	if score == nil || math.IsNaN(*score) || math.IsInf(*score, 0) {
		return nil
	}
	return score
}

func newRecordCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "record <text>",
		Short: "Analyse a text and store it as a journal entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := connect(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer closeFn()

			entry, err := svc.Record(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), entry)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", entry.EntryID, formatScore(entry.SentimentScore), entry.Mood)
			return err
		},
	}
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Record every non-empty line of a file as an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			texts, err := readLines(in)
			if err != nil {
				return err
			}

			svc, closeFn, err := connect(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := svc.Import(cmd.Context(), texts)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", len(entries))
			return err
		},
	}
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List stored entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := connect(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := svc.History(cmd.Context())
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			for _, e := range entries {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04"), formatScore(e.SentimentScore), e.Mood, e.Text); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// connect signs in and wires the journal service. The returned func releases
// the session cache connection.
func connect(ctx context.Context, flags *rootFlags) (*journal.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}

	var opts []connection.Option
	if cfg.Valkey.Enabled() {
		cache, err := clients.NewValkeySessionCache(cfg.Valkey)
		if err != nil {
			slog.Warn("[Main] Session cache unavailable, sessions will not be resumed",
				slog.String("error", err.Error()))
		} else {
			opts = append(opts, connection.WithSessionCache(cache))
			closeFn = cache.Close
		}
	}

	conn, err := connection.InitWithRetry(ctx, cfg, cfg.SignInRetries+1, cfg.SignInRetryDelay, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	return journal.NewService(flags.analyzer(), conn.Store(), conn.Session()), closeFn, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return strconv.FormatFloat(*score, 'f', 4, 64)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
