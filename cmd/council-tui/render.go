// ABOUTME: Terminal rendering of council turns: stage progress lines and final answers
// ABOUTME: Markdown in model output is flattened to styled plain text via the goldmark AST

package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/2389/council-chat/internal/council"
	"github.com/2389/council-chat/internal/store"
	"github.com/2389/council-chat/internal/transcript"
)

var (
	dim     = color.New(color.Faint)
	bold    = color.New(color.Bold)
	heading = color.New(color.FgCyan, color.Bold)
	accent  = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
)

var markdown = goldmark.New()

// renderMarkdown flattens markdown to terminal text. Emphasis and headings
// are styled; code is kept verbatim; links keep their label only.
func renderMarkdown(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	listDepth := 0

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Document:
		case *ast.Heading:
			if !entering {
				buf.WriteString("\n\n")
				return ast.WalkContinue, nil
			}
			buf.WriteString(heading.Sprint(plainText(node, source)))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			if !entering {
				if listDepth > 0 {
					buf.WriteString("\n")
				} else {
					buf.WriteString("\n\n")
				}
			}
		case *ast.List:
			if entering {
				listDepth++
			} else {
				listDepth--
				if listDepth == 0 {
					buf.WriteString("\n")
				}
			}
		case *ast.ListItem:
			if entering {
				buf.WriteString(strings.Repeat("  ", listDepth-1))
				if list, ok := node.Parent().(*ast.List); ok && list.IsOrdered() {
					fmt.Fprintf(&buf, "%d. ", list.Start+indexInParent(node))
				} else {
					buf.WriteString("• ")
				}
			}
		case *ast.Emphasis:
			if entering {
				style := bold
				if node.Level == 1 {
					style = color.New(color.Italic)
				}
				buf.WriteString(style.Sprint(plainText(node, source)))
				return ast.WalkSkipChildren, nil
			}
		case *ast.CodeSpan:
			if entering {
				buf.WriteString(accent.Sprint(plainText(node, source)))
				return ast.WalkSkipChildren, nil
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.WriteString("    ")
					buf.WriteString(accent.Sprint(strings.TrimRight(string(seg.Value(source)), "\n")))
					buf.WriteString("\n")
				}
				buf.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.HardLineBreak() || node.SoftLineBreak() {
					buf.WriteString("\n")
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.Label(source))
				return ast.WalkSkipChildren, nil
			}
		case *ast.ThematicBreak:
			if entering {
				buf.WriteString(dim.Sprint(strings.Repeat("─", 40)))
				buf.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimRight(buf.String(), "\n")
}

// plainText concatenates the text under n without styling.
func plainText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteString(" ")
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func indexInParent(n ast.Node) int {
	i := 0
	for c := n.PreviousSibling(); c != nil; c = c.PreviousSibling() {
		i++
	}
	return i
}

// progressPrinter announces stage transitions of assistant entries as
// snapshots arrive. Each transition is printed once per assistant entry.
type progressPrinter struct {
	out     io.Writer
	seen    map[string]uint8 // assistant ID -> announced steps
	version uint64
}

const (
	stepStage1Start uint8 = 1 << iota
	stepStage1Done
	stepStage2Start
	stepStage2Done
	stepStage3Start
	stepStage3Done

	stepAll = stepStage3Done<<1 - 1
)

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, seen: make(map[string]uint8)}
}

// reset forgets announced steps, e.g. after switching conversations.
func (p *progressPrinter) reset() {
	p.seen = make(map[string]uint8)
	p.version = 0
}

// observe prints the steps newly visible in snap. Snapshots older than the
// last one observed are ignored.
func (p *progressPrinter) observe(snap *transcript.Snapshot) {
	if snap.Version < p.version {
		return
	}
	p.version = snap.Version

	last, ok := snap.Last()
	if !ok || !last.IsAssistant() {
		return
	}
	steps, tracked := p.seen[last.ID]
	if !tracked {
		// Only placeholders seen before their first stage are announced;
		// entries loaded with a conversation are history.
		if last.Loading.Any() || last.HasStage(1) || last.HasStage(2) || last.HasStage(3) {
			p.seen[last.ID] = stepAll
		} else {
			p.seen[last.ID] = 0
		}
		return
	}
	announce := func(step uint8, cond bool, line string) {
		if cond && steps&step == 0 {
			steps |= step
			fmt.Fprintln(p.out, line)
		}
	}

	announce(stepStage1Start, last.Loading.Stage1 || last.HasStage(1), dim.Sprint("Stage 1: collecting individual responses..."))
	announce(stepStage1Done, last.HasStage(1), fmt.Sprintf("Stage 1: %s", summarizeStage1(last)))
	announce(stepStage2Start, last.Loading.Stage2 || last.HasStage(2), dim.Sprint("Stage 2: peer rankings..."))
	announce(stepStage2Done, last.HasStage(2), fmt.Sprintf("Stage 2: %s", summarizeStage2(last)))
	announce(stepStage3Start, last.Loading.Stage3 || last.HasStage(3), dim.Sprint("Stage 3: final synthesis..."))
	announce(stepStage3Done, last.HasStage(3), "Stage 3: done")

	p.seen[last.ID] = steps
}

func summarizeStage1(msg transcript.Message) string {
	responses, err := council.DecodeStage1(msg.Stage1)
	if err != nil {
		return "done"
	}
	models := make([]string, 0, len(responses))
	for _, r := range responses {
		models = append(models, r.Model)
	}
	return fmt.Sprintf("%d responses (%s)", len(responses), strings.Join(models, ", "))
}

func summarizeStage2(msg transcript.Message) string {
	rankings, err := council.DecodeStage2(msg.Stage2)
	if err != nil {
		return "done"
	}
	return fmt.Sprintf("%d rankings", len(rankings))
}

// printAssistant writes the final answer and, when verbose, every stage in full.
func printAssistant(w io.Writer, msg transcript.Message, verbose bool) {
	if verbose && msg.HasStage(1) {
		if responses, err := council.DecodeStage1(msg.Stage1); err == nil {
			fmt.Fprintln(w, heading.Sprint("Stage 1: individual responses"))
			for _, r := range responses {
				fmt.Fprintf(w, "%s\n%s\n\n", bold.Sprint(r.Model), renderMarkdown(r.Response))
			}
		}
	}

	if msg.HasStage(2) {
		printRankings(w, msg, verbose)
	}

	if !msg.HasStage(3) {
		if msg.Loading.Any() {
			fmt.Fprintln(w, dim.Sprint("(in progress)"))
		} else {
			fmt.Fprintln(w, failure.Sprint("(no final answer)"))
		}
		return
	}

	final, err := council.DecodeStage3(msg.Stage3)
	if err != nil {
		fmt.Fprintln(w, failure.Sprintf("(unreadable final answer: %v)", err))
		return
	}
	fmt.Fprintf(w, "%s %s\n", heading.Sprint("Chairman"), dim.Sprintf("(%s)", final.Model))
	fmt.Fprintln(w, renderMarkdown(final.Response))
}

func printRankings(w io.Writer, msg transcript.Message, verbose bool) {
	if len(msg.Metadata) == 0 {
		return
	}
	md, err := council.DecodeMetadata(msg.Metadata)
	if err != nil || len(md.AggregateRankings) == 0 {
		return
	}

	fmt.Fprintln(w, heading.Sprint("Aggregate rankings"))
	for i, r := range md.AggregateRankings {
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, r.Model, dim.Sprintf("(avg %.2f, %d votes)", r.AverageRank, r.RankingsCount))
	}

	if verbose {
		if rankings, err := council.DecodeStage2(msg.Stage2); err == nil {
			for _, r := range rankings {
				labels := make([]string, 0, len(r.ParsedRanking))
				for _, label := range r.ParsedRanking {
					labels = append(labels, md.ModelForLabel(label))
				}
				fmt.Fprintf(w, "  %s: %s\n", bold.Sprint(r.Model), strings.Join(labels, " > "))
			}
		}
	}
	fmt.Fprintln(w)
}

// printTranscript writes a whole conversation.
func printTranscript(w io.Writer, snap *transcript.Snapshot) {
	title := snap.Title
	if title == "" {
		title = snap.ConversationID
	}
	fmt.Fprintln(w, heading.Sprint(title))
	fmt.Fprintln(w, dim.Sprint(strings.Repeat("─", 60)))

	if snap.Len() == 0 {
		fmt.Fprintln(w, dim.Sprint("(empty conversation)"))
		return
	}
	for _, msg := range snap.Messages {
		if msg.IsAssistant() {
			printAssistant(w, msg, false)
		} else {
			fmt.Fprintf(w, "%s %s\n", color.BlueString("→"), msg.Content)
		}
		fmt.Fprintln(w)
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// printLedgerEvent writes one ledger row. With payloads set, stage rows also
// show the size of the recorded payload.
func printLedgerEvent(w io.Writer, evt *store.LedgerEvent, payloads bool) {
	prefix := "  "
	switch evt.Direction {
	case store.EventDirectionOutbound:
		prefix = color.BlueString("→ ")
	case store.EventDirectionInbound:
		prefix = color.GreenString("← ")
	}

	ts := dim.Sprint(evt.Timestamp.Local().Format("15:04:05"))
	switch evt.Type {
	case store.EventTypeTurnStarted:
		fmt.Fprintf(w, "%s%s %s\n", prefix, ts, truncate(deref(evt.Text), 70))
	case store.EventTypeError:
		fmt.Fprintf(w, "%s%s %s\n", prefix, ts, failure.Sprint("[error] "+deref(evt.Text)))
	case store.EventTypeTitle:
		fmt.Fprintf(w, "%s%s [title] %s\n", prefix, ts, deref(evt.Text))
	default:
		line := dim.Sprint("[" + evt.Name + "]")
		if payloads && evt.Payload != nil {
			line += dim.Sprintf(" %d bytes", len(*evt.Payload))
		}
		if evt.Type == store.EventTypeTurnFinished && evt.Text != nil {
			line += " " + failure.Sprint(*evt.Text)
		}
		fmt.Fprintf(w, "%s%s %s\n", prefix, ts, line)
	}
}
