package model

import (
	"html/template"
	"strings"
	"time"
)

// Location is where an appearance takes place. State is optional; when it
// is empty the country is shown instead.
type Location struct {
	City    string `yaml:"city" json:"city"`
	State   string `yaml:"state,omitempty" json:"state,omitempty"`
	Country string `yaml:"country,omitempty" json:"country,omitempty"`
}

// Place composes the short "City, State" label used in feeds, falling
// back to "City, Country".
func (l Location) Place() string {
	region := l.State
	if region == "" {
		region = l.Country
	}
	switch {
	case l.City == "":
		return region
	case region == "":
		return l.City
	default:
		return l.City + ", " + region
	}
}

func (l Location) IsZero() bool {
	return l.City == "" && l.State == "" && l.Country == ""
}

// Event is a single appearance (talk, workshop, meetup) as shown on the
// site. StartDate is the only field the timeline logic looks at.
type Event struct {
	// ID is unique within one listing: the content slug for local
	// appearances, derived from the iCalendar UID for feed events.
	ID   string `json:"id"`
	Name string `json:"name"`

	StartDate time.Time `json:"start_date"`
	// EndDate is zero when unknown. For all-day events it is the last
	// day of the event, not the day after.
	EndDate time.Time `json:"end_date,omitzero"`

	Location Location `json:"location"`

	URL string `json:"url,omitempty"`
	// Talk and Workshop are slugs of linked documents, if any.
	Talk     string `json:"talk,omitempty"`
	Workshop string `json:"workshop,omitempty"`

	// SourceID is "content" for local files or the feed ID.
	SourceID string `json:"source_id"`
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string
	URL         string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

// Kind names a content collection.
type Kind string

const (
	KindPage       Kind = "page"
	KindPost       Kind = "post"
	KindTalk       Kind = "talk"
	KindWorkshop   Kind = "workshop"
	KindAppearance Kind = "appearance"
)

// Kinds lists every collection in load order.
var Kinds = []Kind{KindPage, KindPost, KindTalk, KindWorkshop, KindAppearance}

// Dir is the directory under the content root holding documents of k.
func (k Kind) Dir() string {
	switch k {
	case KindPage:
		return "pages"
	case KindPost:
		return "posts"
	case KindTalk:
		return "talks"
	case KindWorkshop:
		return "workshops"
	case KindAppearance:
		return "appearances"
	default:
		return strings.ToLower(string(k)) + "s"
	}
}

// ReadingTime estimates how long a post takes to read.
type ReadingTime struct {
	Words   int
	Minutes int
	Text    string
}

// Document is one parsed content file. Optional frontmatter fields are
// left at their zero value when absent.
type Document struct {
	Kind       Kind
	Slug       string
	SourcePath string

	Title       string
	Heading     string
	Lead        string
	Meta        string
	Description string
	Tags        []string

	// PublishedAt is nil for drafts.
	PublishedAt *time.Time

	Abstract   template.HTML
	Curriculum template.HTML
	Body       template.HTML
	Raw        string

	ReadingTime ReadingTime

	// Event is set for appearance documents.
	Event *AppearanceFields
}

// DisplayHeading prefers the explicit heading over the title.
func (d *Document) DisplayHeading() string {
	if d.Heading != "" {
		return d.Heading
	}
	return d.Title
}

// AppearanceFields carries the event data parsed from an appearance file.
type AppearanceFields struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Location  Location
	URL       string
	Talk      string
	Workshop  string
	// RRule is a raw RFC 5545 recurrence rule; empty for one-off events.
	RRule string
}
