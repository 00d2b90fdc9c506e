// Package content loads the site's markdown documents and answers lookups
// by kind and slug.
//
// Documents live under one directory per kind:
//
//	content/
//	  pages/about.md         -> /about
//	  posts/2023/hello.md    -> /posts/2023/hello
//	  talks/…                -> /talks/…
//	  workshops/…            -> /workshops/…
//	  appearances/…          -> merged into the appearances feed
//
// Reload builds a complete snapshot off to the side and swaps it in, so
// readers never see a half-loaded collection.
package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	appLog "folio/internal/log"
	"folio/internal/model"
)

// ErrNotFound is returned by Find when no published document has the slug.
var ErrNotFound = errors.New("content: not found")

var extensions = map[string]bool{".md": true, ".mdx": true, ".markdown": true}

type snapshot struct {
	bySlug map[model.Kind]map[string]*model.Document
	lists  map[model.Kind][]*model.Document
	loaded time.Time
}

func emptySnapshot() *snapshot {
	return &snapshot{
		bySlug: make(map[model.Kind]map[string]*model.Document),
		lists:  make(map[model.Kind][]*model.Document),
	}
}

// Store holds the current snapshot of all documents.
type Store struct {
	dir      string
	loc      *time.Location
	renderer *Renderer

	mu   sync.RWMutex
	snap *snapshot
}

// NewStore creates an empty store rooted at dir. Date-only frontmatter
// values are interpreted in loc. Call Reload to read the files.
func NewStore(dir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		dir:      dir,
		loc:      loc,
		renderer: NewRenderer(),
		snap:     emptySnapshot(),
	}
}

// Dir is the content root.
func (s *Store) Dir() string {
	return s.dir
}

// Reload reads every document from disk and replaces the snapshot. On error
// the previous snapshot stays in place.
func (s *Store) Reload() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("content directory %s: %w", s.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("content directory %s is not a directory", s.dir)
	}

	next := emptySnapshot()
	for _, kind := range model.Kinds {
		docs, err := s.loadKind(kind)
		if err != nil {
			return err
		}
		index := make(map[string]*model.Document, len(docs))
		for _, doc := range docs {
			if prev, dup := index[doc.Slug]; dup {
				appLog.Warn("duplicate slug; keeping first", "kind", kind, "slug", doc.Slug,
					"kept", prev.SourcePath, "skipped", doc.SourcePath)
				continue
			}
			index[doc.Slug] = doc
		}
		list := make([]*model.Document, 0, len(index))
		for _, doc := range index {
			list = append(list, doc)
		}
		sortDocuments(kind, list)
		next.bySlug[kind] = index
		next.lists[kind] = list
	}
	next.loaded = time.Now()

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	appLog.Info("content loaded",
		"dir", s.dir,
		"pages", len(next.lists[model.KindPage]),
		"posts", len(next.lists[model.KindPost]),
		"talks", len(next.lists[model.KindTalk]),
		"workshops", len(next.lists[model.KindWorkshop]),
		"appearances", len(next.lists[model.KindAppearance]),
	)
	return nil
}

func (s *Store) loadKind(kind model.Kind) ([]*model.Document, error) {
	root := filepath.Join(s.dir, kind.Dir())
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var docs []*model.Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("error accessing path '%s' during walk: %w", path, walkErr)
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !extensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file '%s': %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		doc, err := parseDocument(kind, rel, data, s.renderer, s.loc)
		switch {
		case errors.Is(err, errDraft):
			appLog.Debug("skipping draft", "path", path)
			return nil
		case err != nil:
			appLog.Warn("skipping invalid document", "path", path, "err", err)
			return nil
		}
		doc.SourcePath = path
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", kind.Dir(), err)
	}
	return docs, nil
}

func (s *Store) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Find looks up a published document by slug.
func (s *Store) Find(kind model.Kind, slug string) (*model.Document, error) {
	slug = strings.Trim(slug, "/")
	doc, ok := s.current().bySlug[kind][slug]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", kind, slug, ErrNotFound)
	}
	return doc, nil
}

// List returns all published documents of a kind in display order. The
// returned slice is a copy; the documents themselves are shared and must
// not be modified.
func (s *Store) List(kind model.Kind) []*model.Document {
	list := s.current().lists[kind]
	out := make([]*model.Document, len(list))
	copy(out, list)
	return out
}

// LoadedAt reports when the current snapshot was built.
func (s *Store) LoadedAt() time.Time {
	return s.current().loaded
}

// sortDocuments orders posts newest first, appearances by start date
// (newest first) and everything else by title.
func sortDocuments(kind model.Kind, docs []*model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		switch kind {
		case model.KindPost:
			if !a.PublishedAt.Equal(*b.PublishedAt) {
				return a.PublishedAt.After(*b.PublishedAt)
			}
		case model.KindAppearance:
			if !a.Event.StartDate.Equal(b.Event.StartDate) {
				return a.Event.StartDate.After(b.Event.StartDate)
			}
		default:
			if a.Title != b.Title {
				return a.Title < b.Title
			}
		}
		return a.Slug < b.Slug
	})
}
