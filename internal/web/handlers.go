package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"folio/internal/content"
	"folio/internal/ics"
	appLog "folio/internal/log"
	"folio/internal/model"
	"folio/internal/timeline"
)

// notFoundSlug is an optional page whose content replaces the default 404 text.
const notFoundSlug = "not-found"

type homeData struct {
	Posts   []*model.Document
	Preview timeline.Preview
}

type partitionData struct {
	Upcoming []model.Event
	Past     []model.Event
}

type documentData struct {
	Doc      *model.Document
	Upcoming []model.Event
	Past     []model.Event
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ListEvents(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	posts := s.docs.List(model.KindPost)
	if n := s.cfg.RecentPosts; n >= 0 && len(posts) > n {
		posts = posts[:n]
	}

	data := homeData{
		Posts:   posts,
		Preview: timeline.PreviewUpcoming(events, s.clock.Now(), s.cfg.PreviewSize),
	}
	s.render(w, r, http.StatusOK, "home", s.cfg.Site.Title, data)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "posts", "Posts", s.docs.List(model.KindPost))
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		http.Redirect(w, r, "/posts", http.StatusMovedPermanently)
		return
	}
	doc, ok := s.find(w, r, model.KindPost, slug)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "post", doc.Title, doc)
}

func (s *Server) handleTalks(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "talks", "Talks", s.docs.List(model.KindTalk))
}

func (s *Server) handleTalk(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		http.Redirect(w, r, "/talks", http.StatusMovedPermanently)
		return
	}
	doc, ok := s.find(w, r, model.KindTalk, slug)
	if !ok {
		return
	}
	events, err := s.events.ForTalk(r.Context(), doc.Slug)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "talk", doc.Title, s.documentData(doc, events))
}

func (s *Server) handleWorkshop(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.find(w, r, model.KindWorkshop, r.PathValue("slug"))
	if !ok {
		return
	}
	events, err := s.events.ForWorkshop(r.Context(), doc.Slug)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "workshop", doc.Title, s.documentData(doc, events))
}

func (s *Server) handleAppearances(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ListEvents(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	upcoming, past := timeline.Partition(events, s.clock.Now())
	s.render(w, r, http.StatusOK, "appearances", "Appearances", partitionData{Upcoming: upcoming, Past: past})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "api" || strings.HasPrefix(slug, "api/") {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if slug == notFoundSlug {
		s.notFound(w, r)
		return
	}
	doc, ok := s.find(w, r, model.KindPage, slug)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "page", doc.Title, doc)
}

// handleCalendar publishes every appearance as an iCalendar feed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ListEvents(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	name := s.cfg.Site.Name
	if name == "" {
		name = s.cfg.Site.Title
	}
	body := ics.Export(events, ics.ExportOptions{
		Name:    strings.TrimSpace(name + " Appearances"),
		BaseURL: s.cfg.BaseURL,
		Stamp:   s.docs.LoadedAt(),
	})
	writeCached(w, r, "text/calendar; charset=utf-8", []byte(body))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Upcoming  []model.Event `json:"upcoming"`
	Past      []model.Event `json:"past"`
	Reference time.Time     `json:"reference"`
}

// handleEvents returns appearances classified against the current time.
//
// GET /api/events?preview=5
//   - preview: if set, only the N events nearest to now are classified
//     (the home page view); otherwise every event is partitioned.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ref := s.clock.Now()

	preview := -1
	if raw := r.URL.Query().Get("preview"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_preview", "preview must be a non-negative integer")
			return
		}
		preview = n
	}

	events, err := s.events.ListEvents(r.Context())
	if err != nil {
		appLog.Error("api events: list failed", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list events")
		return
	}

	resp := eventsResponse{Reference: ref}
	if preview >= 0 {
		p := timeline.PreviewUpcoming(events, ref, preview)
		resp.Upcoming, resp.Past = p.Upcoming, p.Past
	} else {
		resp.Upcoming, resp.Past = timeline.Partition(events, ref)
	}

	appLog.Debug("api events request",
		"preview", preview,
		"upcoming", len(resp.Upcoming),
		"past", len(resp.Past),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) documentData(doc *model.Document, events []model.Event) documentData {
	upcoming, past := timeline.Partition(events, s.clock.Now())
	return documentData{Doc: doc, Upcoming: upcoming, Past: past}
}

// find looks up a document and writes the 404 page when it is missing.
func (s *Server) find(w http.ResponseWriter, r *http.Request, kind model.Kind, slug string) (*model.Document, bool) {
	doc, err := s.docs.Find(kind, slug)
	if err == nil {
		return doc, true
	}
	if errors.Is(err, content.ErrNotFound) {
		s.notFound(w, r)
		return nil, false
	}
	s.serverError(w, r, err)
	return nil, false
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Find(model.KindPage, notFoundSlug)
	if err != nil {
		doc = &model.Document{
			Kind:    model.KindPage,
			Slug:    notFoundSlug,
			Title:   "Page not found",
			Heading: "Page not found.",
			Lead:    "The page you are looking for does not exist or has been moved.",
		}
	}
	s.render(w, r, http.StatusNotFound, "page", doc.Title, doc)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	appLog.Error("request failed", err, "path", r.URL.Path)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
