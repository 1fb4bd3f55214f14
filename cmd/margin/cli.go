package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/errors"
	"github.com/hpungsan/margin/internal/keyword"
	"github.com/hpungsan/margin/internal/logger"
	"github.com/hpungsan/margin/internal/ops"
	"github.com/hpungsan/margin/internal/study"
	"github.com/hpungsan/margin/internal/web"
)

// maxStdinBytes bounds text piped to create, update and tokenize.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, log *logger.Logger) *cli.App {
	app := &cli.App{
		Name:    "margin",
		Usage:   "Study annotations for course summaries",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(db, cfg, log),
			sessionCmd(cfg, log),
			createCmd(db, cfg),
			fetchCmd(db),
			updateCmd(db, cfg),
			deleteCmd(db),
			restoreCmd(db),
			listCmd(db),
			tokenizeCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the annotation and study document API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Interface to listen on (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			serveCfg := *cfg
			if c.IsSet("bind") {
				serveCfg.Bind = c.String("bind")
			}
			if c.IsSet("port") {
				serveCfg.Port = c.Int("port")
			}
			return web.Run(web.NewServer(db, &serveCfg, log), log)
		},
	}
}

// createCmd creates the create command.
func createCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Annotate a passage (text from args or stdin)",
		ArgsUsage: "[text...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Required: true, Usage: "Summary (subject) id"},
			&cli.StringFlag{Name: "student", Aliases: []string{"u"}, Required: true, Usage: "Student id"},
			&cli.StringFlag{Name: "id", Usage: "Annotation id (generated when omitted)"},
			&cli.StringFlag{Name: "color", Aliases: []string{"c"}, Usage: "yellow|blue|green|pink"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "highlight|note|question"},
			&cli.StringFlag{Name: "note", Aliases: []string{"n"}, Usage: "Note or question text"},
		},
		Action: func(c *cli.Context) error {
			text, err := argsOrStdin(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Create(c.Context, db, cfg, ops.CreateInput{
				ID:           c.String("id"),
				SubjectID:    c.String("subject"),
				StudentID:    c.String("student"),
				OriginalText: text,
				Color:        annotation.Color(strings.ToLower(c.String("color"))),
				Kind:         annotation.Kind(strings.ToLower(c.String("type"))),
				Note:         c.String("note"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch an annotation by id",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted annotations"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Get(c.Context, db, ops.GetInput{
				ID:             c.Args().First(),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update an active annotation (new passage text optionally read from stdin)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "color", Aliases: []string{"c"}, Usage: "New color"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "New type"},
			&cli.StringFlag{Name: "note", Aliases: []string{"n"}, Usage: "New note"},
			&cli.StringFlag{Name: "bot-reply", Usage: "Assistant reply"},
		},
		Action: func(c *cli.Context) error {
			input := ops.UpdateInput{ID: c.Args().First()}

			if stdinHasData() {
				text, err := readStdin(maxStdinBytes)
				if err != nil {
					return outputError(err)
				}
				if text != "" {
					input.OriginalText = &text
				}
			}

			if c.IsSet("color") {
				color := annotation.Color(strings.ToLower(c.String("color")))
				input.Color = &color
			}
			if c.IsSet("type") {
				kind := annotation.Kind(strings.ToLower(c.String("type")))
				input.Kind = &kind
			}
			if c.IsSet("note") {
				note := c.String("note")
				input.Note = &note
			}
			if c.IsSet("bot-reply") {
				reply := c.String("bot-reply")
				input.BotReply = &reply
			}

			output, err := ops.Update(c.Context, db, cfg, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete an annotation",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.SoftDelete(c.Context, db, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore a soft-deleted annotation",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Restore(c.Context, db, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List a student's active annotations on a summary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Required: true, Usage: "Summary (subject) id"},
			&cli.StringFlag{Name: "student", Aliases: []string{"u"}, Required: true, Usage: "Student id"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListActive(c.Context, db, ops.ListInput{
				SubjectID: c.String("subject"),
				StudentID: c.String("student"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// tokenizeOutput is the result of the tokenize command.
type tokenizeOutput struct {
	Version  string         `json:"version"`
	Spans    []keyword.Span `json:"spans"`
	Keywords []string       `json:"keywords"`
}

// tokenizeCmd creates the tokenize command.
func tokenizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "tokenize",
		Usage:     "Split text into plain and keyword spans (text from args or stdin)",
		ArgsUsage: "[text...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "terms", Usage: "Comma-separated keyword terms"},
			&cli.StringFlag{Name: "glossary", Aliases: []string{"g"}, Usage: "Glossary JSON file"},
			&cli.BoolFlag{Name: "markdown", Aliases: []string{"m"}, Usage: "Strip markdown before tokenizing"},
		},
		Action: func(c *cli.Context) error {
			text, err := argsOrStdin(c)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("markdown") {
				text = study.PlainText(text)
			}

			terms, err := loadTerms(c.String("glossary"))
			if err != nil {
				return outputError(err)
			}
			terms = append(terms, keyword.TermsFromStrings(parseList(c.String("terms"))...)...)

			ix := keyword.NewIndex(terms)
			spans := ix.Tokenize(text)
			keywords := keyword.Keywords(spans)
			if keywords == nil {
				keywords = []string{}
			}
			return outputJSON(tokenizeOutput{Version: ix.Version(), Spans: spans, Keywords: keywords})
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	mErr := errors.As(err)
	if mErr.Code == errors.ErrValidation {
		if fields, ok := mErr.Details["fields"].(map[string]string); ok && len(fields) > 0 {
			return cli.Exit(fmt.Sprintf("[%s] %s %v", mErr.Code, mErr.Message, fields), 1)
		}
	}
	return cli.Exit(fmt.Sprintf("[%s] %s", mErr.Code, mErr.Message), 1)
}

// argsOrStdin joins the positional arguments, or reads piped stdin when there are none.
func argsOrStdin(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", errors.NewValidation("text is required (pass it as arguments or pipe it via stdin)",
			map[string]string{"text": "required"})
	}
	return readStdin(maxStdinBytes)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewValidation(fmt.Sprintf("stdin exceeds %d bytes", limit), map[string]string{"text": "max"})
	}
	return strings.TrimSpace(string(data)), nil
}

// loadTerms reads a glossary file; an empty path yields no terms.
func loadTerms(path string) ([]keyword.Term, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewBadRequest(fmt.Sprintf("open glossary: %v", err))
	}
	defer f.Close()

	terms, err := keyword.LoadGlossary(f)
	if err != nil {
		return nil, errors.NewValidation(err.Error(), map[string]string{"glossary": "json"})
	}
	return terms, nil
}

// parseList splits a comma-separated string, dropping blanks.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
