package core

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/eddb-ingest/internal/dump"
	"github.com/JonMunkholm/eddb-ingest/internal/store"
)

// testDefs mirrors the production registrations without touching the
// global registry.
func testDefs() []ResourceDefinition {
	return []ResourceDefinition{
		{Kind: KindBody, File: "bodies_recently.jsonl", Format: dump.FormatJSON, Table: "eddb_bodies"},
		{Kind: KindCommodity, File: "commodities.json", Format: dump.FormatJSON, Table: "eddb_commodities"},
		{Kind: KindFaction, File: "factions.jsonl", Format: dump.FormatJSON, Table: "eddb_factions"},
		{Kind: KindStation, File: "stations.jsonl", Format: dump.FormatJSON, Table: "eddb_stations",
			LowerFields: []string{"government", "economies"}},
		{Kind: KindPopulatedSystem, File: "systems_populated.jsonl", Format: dump.FormatJSON, Table: "eddb_populated_systems"},
		{Kind: KindSystem, File: "systems_recently.csv", Format: dump.FormatCSV, Table: "eddb_systems"},
	}
}

func testDef(kind Kind) ResourceDefinition {
	for _, d := range testDefs() {
		if d.Kind == kind {
			return d
		}
	}
	panic("no test definition for " + string(kind))
}

func newTestStore() (*store.Store, *store.Memory) {
	mem := store.NewMemory()
	defs := testDefs()
	cols := make([]store.Collection, len(defs))
	for i, d := range defs {
		cols[i] = d.Collection()
	}
	return store.New(mem, cols...), mem
}

// dumpServer serves dump files by name and records every request.
type dumpServer struct {
	*httptest.Server

	mu     sync.Mutex
	files  map[string]string
	status map[string]int
	hold   map[string]chan struct{}
	hits   []string
}

func newDumpServer(t *testing.T) *dumpServer {
	t.Helper()
	s := &dumpServer{
		files:  make(map[string]string),
		status: make(map[string]int),
		hold:   make(map[string]chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *dumpServer) serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")

	s.mu.Lock()
	s.hits = append(s.hits, name)
	hold := s.hold[name]
	code := s.status[name]
	body, ok := s.files[name]
	s.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if code != 0 {
		w.WriteHeader(code)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte(body))
}

func (s *dumpServer) set(name, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = body
}

func (s *dumpServer) fail(name string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[name] = code
}

// block holds responses for name until the returned channel is closed.
func (s *dumpServer) block(name string) chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold[name] = ch
	return ch
}

func (s *dumpServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

// serveEmpty publishes an empty dump for every kind.
func (s *dumpServer) serveEmpty() {
	for _, d := range testDefs() {
		if d.Format == dump.FormatCSV {
			s.set(d.File, "id,name\n")
		} else {
			s.set(d.File, "")
		}
	}
}

// eventLog collects observer events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) states(jobID string) []JobState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []JobState
	for _, ev := range l.events {
		if ev.JobID == jobID {
			out = append(out, ev.State)
		}
	}
	return out
}

func newTestDownloader(t *testing.T, srv *dumpServer, st RecordWriter, kind Kind, deps Deps) *Downloader {
	t.Helper()
	deps.BaseURL = srv.URL
	deps.Client = srv.Client()
	deps.Store = st

	d, err := NewDownloader(testDef(kind), deps)
	if err != nil {
		t.Fatalf("NewDownloader: %v", err)
	}
	return d
}
