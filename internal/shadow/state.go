// Package shadow implements the repository and deployment operation
// contracts entirely in memory. Every synthesized artifact is recorded in
// a shared State ledger so tests can assert on what a run actually did,
// and every operation can be made to fail on demand.
package shadow

import (
	"fmt"
	"sync"
	"time"

	"github.com/ramparte/deployotron/internal/ops"
)

// ImageBuild records one synthesized image build.
type ImageBuild struct {
	Tag        string
	SourcePath string
	Framework  ops.Framework
	BuiltAt    time.Time
	Pushed     bool
	PushedTo   string
}

// ServiceRecord tracks the simulated task counts of one service.
type ServiceRecord struct {
	Running    int
	Pending    int
	Desired    int
	RevisionID string
}

// State is the ledger shared by the shadow backends. It is the only
// resource shared across concurrent deployment runs in shadow mode, so
// every map behind it is guarded by one mutex. The orchestrator never
// touches it; only the shadow backends mutate it, and tests read it
// through the exported accessors.
type State struct {
	mu         sync.Mutex
	registries map[string]string
	images     map[string]*ImageBuild
	families   map[string]int
	services   map[string]*ServiceRecord
	logs       map[string][]string
	clones     map[string]string
}

// NewState returns an empty ledger.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset empties the ledger. Intended for use between test cases.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registries = make(map[string]string)
	s.images = make(map[string]*ImageBuild)
	s.families = make(map[string]int)
	s.services = make(map[string]*ServiceRecord)
	s.logs = make(map[string][]string)
	s.clones = make(map[string]string)
}

func serviceKey(cluster, service string) string { return cluster + "/" + service }
func streamKey(group, stream string) string     { return group + "/" + stream }

// ensureRegistry returns the URI for name, creating it on first use.
func (s *State) ensureRegistry(name, uri string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.registries[name]; ok {
		return existing
	}
	s.registries[name] = uri
	return uri
}

// Registry reports the recorded URI for a registry name.
func (s *State) Registry(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uri, ok := s.registries[name]
	return uri, ok
}

// RegistryCount reports how many registries exist.
func (s *State) RegistryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registries)
}

func (s *State) recordBuild(b ImageBuild) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[b.Tag] = &b
}

// markPushed flags a built tag as pushed. It reports false when no build
// ever recorded the tag, which is how push-before-build surfaces.
func (s *State) markPushed(tag, destination string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	build, ok := s.images[tag]
	if !ok {
		return false
	}
	build.Pushed = true
	build.PushedTo = destination
	return true
}

// Image reports the build record for a tag.
func (s *State) Image(tag string) (ImageBuild, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	build, ok := s.images[tag]
	if !ok {
		return ImageBuild{}, false
	}
	return *build, true
}

// ImageCount reports how many images were built.
func (s *State) ImageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// nextRevision bumps the revision counter for a family and returns the
// new revision identifier.
func (s *State) nextRevision(family string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families[family]++
	return fmt.Sprintf("arn:aws:ecs:%s:%s:task-definition/%s:%d",
		mockRegion, mockAccountID, family, s.families[family])
}

// RevisionCount reports how many revisions a family has registered.
func (s *State) RevisionCount(family string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.families[family]
}

// putService (re)seeds a service after an update: nothing running yet,
// everything pending.
func (s *State) putService(cluster, service, revisionID string, desired int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[serviceKey(cluster, service)] = &ServiceRecord{
		Running:    0,
		Pending:    desired,
		Desired:    desired,
		RevisionID: revisionID,
	}
}

// sampleService returns the current snapshot of a service and then
// promotes one pending task to running, so health is observed to progress
// across polls instead of being immediate.
func (s *State) sampleService(cluster, service string) (ServiceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.services[serviceKey(cluster, service)]
	if !ok {
		return ServiceRecord{}, false
	}
	snapshot := *rec
	if rec.Pending > 0 {
		rec.Pending--
		rec.Running++
	}
	return snapshot, true
}

// Service reports the current record for a service without advancing it.
func (s *State) Service(cluster, service string) (ServiceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.services[serviceKey(cluster, service)]
	if !ok {
		return ServiceRecord{}, false
	}
	return *rec, true
}

// ServiceCount reports how many services exist.
func (s *State) ServiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.services)
}

func (s *State) appendLogs(group, stream string, lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := streamKey(group, stream)
	s.logs[key] = append(s.logs[key], lines...)
}

// Logs returns a copy of the recorded lines for a stream, oldest first.
func (s *State) Logs(group, stream string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.logs[streamKey(group, stream)]
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

func (s *State) recordClone(path, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clones[path] = url
}

func (s *State) cloneURL(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.clones[path]
	return url, ok
}

func (s *State) removeClone(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clones, path)
}

// CloneCount reports how many checkouts are still live.
func (s *State) CloneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clones)
}
