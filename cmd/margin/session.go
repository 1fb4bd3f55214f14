package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/autosave"
	"github.com/hpungsan/margin/internal/client"
	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/errors"
	"github.com/hpungsan/margin/internal/keyword"
	"github.com/hpungsan/margin/internal/logger"
	"github.com/hpungsan/margin/internal/study"
)

// sessionCmd creates the session command.
func sessionCmd(cfg *config.Config, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Study a summary interactively; changes are autosaved to the API server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Required: true, Usage: "Summary (subject) id"},
			&cli.StringFlag{Name: "student", Aliases: []string{"u"}, Required: true, Usage: "Student id"},
			&cli.StringFlag{Name: "summary", Required: true, Usage: "Markdown file with the summary text"},
			&cli.StringFlag{Name: "glossary", Aliases: []string{"g"}, Usage: "Glossary JSON file"},
			&cli.StringFlag{Name: "server", Usage: "API base URL (overrides config server_url)"},
		},
		Action: func(c *cli.Context) error {
			summary, err := os.ReadFile(c.String("summary"))
			if err != nil {
				return outputError(errors.NewBadRequest(fmt.Sprintf("read summary: %v", err)))
			}
			terms, err := loadTerms(c.String("glossary"))
			if err != nil {
				return outputError(err)
			}
			serverURL := cfg.ServerURL
			if c.IsSet("server") {
				serverURL = c.String("server")
			}

			return runSession(c.Context, sessionOptions{
				Key:       autosave.Key{StudentID: c.String("student"), SubjectID: c.String("subject")},
				ServerURL: serverURL,
				Summary:   string(summary),
				Terms:     terms,
				Config:    cfg,
				Logger:    log,
			}, os.Stdin, os.Stdout)
		},
	}
}

type sessionOptions struct {
	Key       autosave.Key
	ServerURL string
	Summary   string
	Terms     []keyword.Term
	Config    *config.Config
	Logger    *logger.Logger
}

// repl drives one study session from line-oriented commands.
type repl struct {
	session  *study.Session
	saver    *autosave.Coordinator
	keywords *keyword.Index
	summary  string
	out      io.Writer
}

// runSession loads the saved document, reads commands from in until EOF or
// quit, then records the elapsed study time and performs the final save.
func runSession(ctx context.Context, opts sessionOptions, in io.Reader, out io.Writer) error {
	cfg := opts.Config
	log := logger.OrNop(opts.Logger)

	manager := annotation.NewManager(annotation.Options{ReplyDelay: cfg.ReplyDelay()})
	session := study.NewSession(manager)
	saver := autosave.New(opts.Key, client.New(opts.ServerURL, nil), session, autosave.Options{
		Debounce:     cfg.AutosaveDebounce(),
		SavedDisplay: cfg.SavedDisplay(),
		ErrorDisplay: cfg.ErrorDisplay(),
		Logger:       log,
	})
	saver.OnStatus(func(s autosave.Status) {
		log.Debug("autosave status", "status", s)
	})

	started := time.Now()
	saver.Mount(ctx)

	r := &repl{
		session:  session,
		saver:    saver,
		keywords: keyword.NewIndex(opts.Terms),
		summary:  opts.Summary,
		out:      out,
	}
	fmt.Fprintf(out, "%d annotation(s) loaded. Type \"help\" for commands.\n", len(manager.Annotations()))

	err := r.loop(in)

	session.AddElapsed(int(time.Since(started).Seconds()))
	saver.Unmount()
	saver.Wait()
	return err
}

func (r *repl) loop(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := r.exec(cmd, strings.TrimSpace(rest)); err != nil {
			fmt.Fprintf(r.out, "error: %s\n", errors.As(err).Message)
		}
	}
	return scanner.Err()
}

const replHelp = `Commands:
  show                          render the summary; [keyword] and {annotated}
  ls                            list annotations
  hl <text>                     highlight a passage
  note <text> | <note>          attach a note to a passage
  ask <text> | <question>       ask about a passage
  color <yellow|blue|green|pink> pick the highlight color
  rm <id>                       remove an annotation
  keywords                      list keywords found in the summary with mastery
  mastery <term> | <0-100>      set keyword mastery
  sections                      list summary sections with personal notes
  pnote <section> | <text>      set a personal note (empty text removes it)
  status                        show autosave status
  save                          save now
  quit                          save and exit`

func (r *repl) exec(cmd, arg string) error {
	m := r.session.Annotations
	switch cmd {
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "show":
		r.show()
	case "ls":
		r.list()
	case "hl":
		return r.create(annotation.KindHighlight, arg)
	case "note":
		return r.create(annotation.KindNote, arg)
	case "ask":
		return r.create(annotation.KindQuestion, arg)
	case "color":
		c, err := annotation.ParseColor(arg)
		if err != nil {
			return errors.NewValidation(err.Error(), map[string]string{"color": "oneof"})
		}
		m.SetColor(c)
	case "rm":
		if _, ok := m.Get(arg); !ok {
			return errors.NewNotFound(arg)
		}
		m.Delete(arg)
	case "keywords":
		r.listKeywords()
	case "mastery":
		term, score, ok := splitPair(arg)
		if !ok {
			return errors.NewValidation("usage: mastery <term> | <score>", map[string]string{"mastery": "format"})
		}
		n, err := strconv.Atoi(score)
		if err != nil {
			return errors.NewValidation("score must be a number", map[string]string{"mastery": "number"})
		}
		return r.session.SetMastery(term, n)
	case "pnote":
		section, text, _ := splitPair(arg)
		if section == "" {
			return errors.NewValidation("usage: pnote <section> | <text>", map[string]string{"section": "required"})
		}
		if sections := study.Sections(r.summary); len(sections) > 0 && !slices.Contains(sections, section) {
			return errors.NewBadRequest(fmt.Sprintf("no section %q in the summary (see \"sections\")", section))
		}
		r.session.SetNote(section, text)
	case "sections":
		r.listSections()
	case "status":
		r.status()
	case "save":
		r.saver.Flush()
		r.saver.Wait()
		r.status()
	default:
		return errors.NewBadRequest(fmt.Sprintf("unknown command %q (try \"help\")", cmd))
	}
	return nil
}

func (r *repl) create(kind annotation.Kind, arg string) error {
	text, note := arg, ""
	if kind != annotation.KindHighlight {
		var ok bool
		text, note, ok = splitPair(arg)
		if !ok || note == "" {
			return errors.NewValidation(fmt.Sprintf("usage: %s <text> | <%s>", cmdFor(kind), kind), map[string]string{"note": "required"})
		}
	}
	if !strings.Contains(study.PlainText(r.summary), text) {
		return errors.NewBadRequest(fmt.Sprintf("%q does not occur in the summary", text))
	}
	if !study.Anchors(r.summary, r.keywords, text) {
		return errors.NewBadRequest(fmt.Sprintf("%q crosses a keyword boundary and would never be shown", text))
	}
	a, ok := r.session.Annotations.Create(text, kind, note, "")
	if !ok {
		return errors.NewValidation("text is required", map[string]string{"text": "required"})
	}
	fmt.Fprintf(r.out, "%s %s %q\n", a.ID, a.Kind, a.DisplayText)
	return nil
}

func cmdFor(kind annotation.Kind) string {
	if kind == annotation.KindQuestion {
		return "ask"
	}
	return string(kind)
}

func (r *repl) show() {
	var b strings.Builder
	for _, seg := range r.session.Render(r.summary, r.keywords) {
		content := seg.Content
		if seg.Kind == keyword.SpanKeyword {
			content = "[" + content + "]"
		}
		if seg.Annotation != nil {
			content = "{" + content + "}"
		}
		b.WriteString(content)
	}
	fmt.Fprintln(r.out, b.String())
}

func (r *repl) list() {
	list := r.session.Annotations.Annotations()
	if len(list) == 0 {
		fmt.Fprintln(r.out, "no annotations")
		return
	}
	for _, a := range list {
		fmt.Fprintf(r.out, "%s  %-9s %-6s %q", a.ID, a.Kind, a.Color, a.DisplayText)
		if a.Note != "" {
			fmt.Fprintf(r.out, "  note: %s", a.Note)
		}
		if a.BotReply != nil {
			fmt.Fprintf(r.out, "  reply: %s", *a.BotReply)
		}
		fmt.Fprintln(r.out)
	}
}

func (r *repl) listKeywords() {
	doc := r.session.Snapshot()
	found := keyword.Keywords(r.keywords.Tokenize(study.PlainText(r.summary)))
	if len(found) == 0 {
		fmt.Fprintln(r.out, "no keywords")
		return
	}
	for _, k := range found {
		line := fmt.Sprintf("%s  %d%%", k, doc.KeywordMastery[k])
		if t, ok := r.keywords.Lookup(k); ok && t.Definition != "" {
			line += "  " + t.Definition
		}
		fmt.Fprintln(r.out, line)
	}
}

func (r *repl) listSections() {
	notes := r.session.Snapshot().PersonalNotes
	sections := study.Sections(r.summary)
	if len(sections) == 0 {
		fmt.Fprintln(r.out, "no sections")
		return
	}
	for _, title := range sections {
		if note, ok := notes[title]; ok {
			fmt.Fprintf(r.out, "%s: %s\n", title, note)
			continue
		}
		fmt.Fprintln(r.out, title)
	}
}

func (r *repl) status() {
	if err := r.saver.Err(); err != nil && r.saver.Status() == autosave.StatusError {
		fmt.Fprintf(r.out, "%s: %s\n", r.saver.Status(), errors.As(err).Message)
		return
	}
	fmt.Fprintln(r.out, r.saver.Status())
}

// splitPair splits "a | b" into its trimmed halves.
func splitPair(s string) (string, string, bool) {
	a, b, ok := strings.Cut(s, "|")
	return strings.TrimSpace(a), strings.TrimSpace(b), ok
}
