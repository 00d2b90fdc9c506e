package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"folio/internal/config"
	"folio/internal/ics"
	appLog "folio/internal/log"
	"folio/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

// views holds one template set per page, each sharing the layout.
type views struct {
	pages map[string]*template.Template
}

func loadViews(funcs template.FuncMap) (*views, error) {
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	v := &views{pages: make(map[string]*template.Template, len(files))}
	for _, f := range files {
		if f == layoutFile {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		v.pages[strings.TrimSuffix(path.Base(f), ".html")] = t
	}
	return v, nil
}

// pageData is what every template receives.
type pageData struct {
	Site  config.SiteConfig
	Title string
	Now   time.Time
	Data  any
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"date": func(t time.Time) string {
			return t.In(s.loc).Format("January 2, 2006")
		},
		"isoDate": func(t time.Time) string {
			return t.In(s.loc).Format(time.RFC3339)
		},
		"dateRange": func(start, end time.Time) string {
			return dateRange(start.In(s.loc), end.In(s.loc))
		},
		"relative": func(t, ref time.Time) string {
			return humanize.RelTime(t, ref, "ago", "from now")
		},
		"place": func(l model.Location) string {
			return l.Place()
		},
		"eventLink": func(ev model.Event) string {
			return ics.EventLink(s.cfg.BaseURL, ev)
		},
	}
}

// dateRange prints a single date or a compact range within one year.
func dateRange(start, end time.Time) string {
	if end.IsZero() || sameDay(start, end) {
		return start.Format("January 2, 2006")
	}
	switch {
	case start.Year() != end.Year():
		return start.Format("January 2, 2006") + " – " + end.Format("January 2, 2006")
	case start.Month() != end.Month():
		return start.Format("January 2") + " – " + end.Format("January 2, 2006")
	default:
		return start.Format("January 2") + " – " + end.Format("2, 2006")
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// render executes the named page into a buffer so a template error never
// produces a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	t, ok := s.views.pages[name]
	if !ok {
		appLog.Error("unknown template", fmt.Errorf("template %q not found", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pd := pageData{
		Site:  s.cfg.Site,
		Title: title,
		Now:   s.clock.Now(),
		Data:  data,
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", pd); err != nil {
		appLog.Error("template render failed", err, "template", name, "path", r.URL.Path)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	const contentType = "text/html; charset=utf-8"
	if status == http.StatusOK {
		writeCached(w, r, contentType, buf.Bytes())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
