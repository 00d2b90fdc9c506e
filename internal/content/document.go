package content

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"folio/internal/model"
)

const wordsPerMinute = 200

// dateLayouts are tried in order for every date-like frontmatter field.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

// rawDate keeps the literal scalar so dates are parsed in the site
// timezone rather than the YAML decoder's default of UTC.
type rawDate string

func (d *rawDate) UnmarshalYAML(n *yaml.Node) error {
	*d = rawDate(strings.TrimSpace(n.Value))
	return nil
}

type frontMatter struct {
	Title       string   `yaml:"title"`
	Heading     string   `yaml:"heading"`
	Lead        string   `yaml:"lead"`
	Meta        string   `yaml:"meta"`
	Description string   `yaml:"description"`
	PublishedAt rawDate  `yaml:"publishedAt"`
	Tags        []string `yaml:"tags"`
	Abstract    string   `yaml:"abstract"`
	Curriculum  string   `yaml:"curriculum"`
	Draft       bool     `yaml:"draft"`

	// Appearance fields.
	Name      string         `yaml:"name"`
	StartDate rawDate        `yaml:"startDate"`
	EndDate   rawDate        `yaml:"endDate"`
	Location  model.Location `yaml:"location"`
	URL       string         `yaml:"url"`
	Talk      string         `yaml:"talk"`
	Workshop  string         `yaml:"workshop"`
	RRule     string         `yaml:"rrule"`
}

// errDraft marks posts that parse fine but must not be published.
var errDraft = errors.New("draft")

// parseDocument turns one content file into a Document. rel is the path
// relative to the kind directory and determines the slug.
func parseDocument(kind model.Kind, rel string, data []byte, r *Renderer, loc *time.Location) (*model.Document, error) {
	var fm frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(data), &fm, yamlFormat)
	if err != nil {
		return nil, fmt.Errorf("parsing frontmatter: %w", err)
	}

	doc := &model.Document{
		Kind:        kind,
		Slug:        slugFromPath(rel),
		Title:       strings.TrimSpace(fm.Title),
		Heading:     fm.Heading,
		Lead:        fm.Lead,
		Meta:        fm.Meta,
		Description: fm.Description,
		Tags:        fm.Tags,
		Raw:         string(body),
	}
	if doc.Slug == "" {
		return nil, errors.New("empty slug")
	}

	if doc.Body, err = r.Render(body); err != nil {
		return nil, err
	}
	if doc.Abstract, err = r.RenderString(fm.Abstract); err != nil {
		return nil, fmt.Errorf("abstract: %w", err)
	}
	if doc.Curriculum, err = r.RenderString(fm.Curriculum); err != nil {
		return nil, fmt.Errorf("curriculum: %w", err)
	}

	if fm.PublishedAt != "" {
		t, err := parseDate(string(fm.PublishedAt), loc)
		if err != nil {
			return nil, fmt.Errorf("publishedAt: %w", err)
		}
		doc.PublishedAt = &t
	}

	switch kind {
	case model.KindPage:
		if doc.Title == "" {
			return nil, errors.New("missing required field title")
		}
	case model.KindPost:
		if doc.Title == "" {
			return nil, errors.New("missing required field title")
		}
		if strings.TrimSpace(doc.Description) == "" {
			return nil, errors.New("missing required field description")
		}
		doc.ReadingTime = estimateReadingTime(doc.Raw)
		if fm.Draft || doc.PublishedAt == nil {
			return doc, errDraft
		}
	case model.KindAppearance:
		ev, err := appearanceFields(&fm, loc)
		if err != nil {
			return nil, err
		}
		doc.Event = ev
		if doc.Title == "" {
			doc.Title = ev.Name
		}
	}

	if doc.Title == "" {
		doc.Title = titleFromSlug(doc.Slug)
	}
	return doc, nil
}

func appearanceFields(fm *frontMatter, loc *time.Location) (*model.AppearanceFields, error) {
	name := strings.TrimSpace(fm.Name)
	if name == "" {
		name = strings.TrimSpace(fm.Title)
	}
	if name == "" {
		return nil, errors.New("missing required field name")
	}
	if fm.StartDate == "" {
		return nil, errors.New("missing required field startDate")
	}
	start, err := parseDate(string(fm.StartDate), loc)
	if err != nil {
		return nil, fmt.Errorf("startDate: %w", err)
	}

	ev := &model.AppearanceFields{
		Name:      name,
		StartDate: start,
		Location:  fm.Location,
		URL:       fm.URL,
		Talk:      fm.Talk,
		Workshop:  fm.Workshop,
		RRule:     strings.TrimPrefix(strings.TrimSpace(fm.RRule), "RRULE:"),
	}
	if fm.EndDate != "" {
		end, err := parseDate(string(fm.EndDate), loc)
		if err != nil {
			return nil, fmt.Errorf("endDate: %w", err)
		}
		if end.Before(start) {
			return nil, errors.New("endDate is before startDate")
		}
		ev.EndDate = end
	}
	return ev, nil
}

// parseDate accepts RFC3339 and a few common local layouts. Values without
// an offset are interpreted in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q, use YYYY-MM-DD or RFC3339", s)
}

// slugFromPath strips the extension and normalises separators:
// "2023/hello-world.md" -> "2023/hello-world".
func slugFromPath(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	rel = strings.TrimSuffix(rel, "/index")
	return strings.Trim(rel, "/")
}

func titleFromSlug(slug string) string {
	base := slug
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return cases.Title(language.English).String(base)
}

func estimateReadingTime(raw string) model.ReadingTime {
	words := len(strings.Fields(raw))
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if words > 0 && minutes == 0 {
		minutes = 1
	}
	return model.ReadingTime{
		Words:   words,
		Minutes: minutes,
		Text:    fmt.Sprintf("%d min read", minutes),
	}
}
