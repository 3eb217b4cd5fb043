package webview

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Document summarizes an entry page loaded into a renderer.
type Document struct {
	Title   string   `json:"title"`
	Scripts int      `json:"scripts"`
	Skipped []string `json:"skipped,omitempty"` // External sources that were not run
}

// ScriptError reports a page script that threw or timed out.
type ScriptError struct {
	Index int // Position among the page's script elements
	Err   error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %d: %v", e.Index, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// ScriptResolver returns the source of an external script.
type ScriptResolver func(src string) ([]byte, error)

// LoadDocument runs the classic scripts of an HTML page in document order.
// Inline scripts run as written; external ones are read through resolve
// and skipped when resolve is nil or fails. Markup is otherwise ignored.
//
// Each script is loaded with Load, so a Reload replays the page.
func (r *Renderer) LoadDocument(ctx context.Context, page io.Reader, resolve ScriptResolver) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		return Document{}, fmt.Errorf("parse document: %w", err)
	}

	out := Document{Title: strings.TrimSpace(doc.Find("head title").First().Text())}
	var loadErr error
	doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if !isClassicScript(s.AttrOr("type", "")) {
			return true
		}
		code := s.Text()
		if src, ok := s.Attr("src"); ok {
			if resolve == nil {
				out.Skipped = append(out.Skipped, src)
				return true
			}
			b, err := resolve(src)
			if err != nil {
				r.log.Debug("Skipping external script", zap.String("src", src), zap.Error(err))
				out.Skipped = append(out.Skipped, src)
				return true
			}
			code = string(b)
		}
		if strings.TrimSpace(code) == "" {
			return true
		}
		if err := r.Load(ctx, code); err != nil {
			loadErr = &ScriptError{Index: i, Err: err}
			return false
		}
		out.Scripts++
		return true
	})
	return out, loadErr
}

// isClassicScript reports whether a script type attribute denotes plain
// JavaScript. Modules, JSON blocks and templates are not run.
func isClassicScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "text/ecmascript":
		return true
	}
	return false
}
