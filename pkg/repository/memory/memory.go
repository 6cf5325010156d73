// Package memory is an in-process implementation of repository.Repository.
// Transactions run on a copy of the data that replaces the original on
// commit; one transaction runs at a time.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
)

type link struct {
	stationID uuid.UUID
	personID  uuid.UUID
}

type store struct {
	stations   []models.Station
	components []models.Component
	batches    []models.MeasurementBatch
	errors     []models.Error
	persons    []models.Person
	links      []link
	statuses   []models.Status
	rules      []models.StatusRule
}

func (s *store) clone() *store {
	return &store{
		stations:   append([]models.Station(nil), s.stations...),
		components: append([]models.Component(nil), s.components...),
		batches:    append([]models.MeasurementBatch(nil), s.batches...),
		errors:     append([]models.Error(nil), s.errors...),
		persons:    append([]models.Person(nil), s.persons...),
		links:      append([]link(nil), s.links...),
		statuses:   append([]models.Status(nil), s.statuses...),
		rules:      append([]models.StatusRule(nil), s.rules...),
	}
}

// Repository is a mutex-guarded in-memory station graph
type Repository struct {
	mu   sync.Mutex
	data *store
}

var _ repository.Repository = (*Repository)(nil)

// New creates an empty repository
func New() *Repository {
	return &Repository{data: &store{}}
}

// InTx runs fn against a copy of the data and keeps the copy when fn
// succeeds. Other calls wait until the transaction finishes.
func (r *Repository) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := r.data.clone()
	if err := fn(tx); err != nil {
		return err
	}
	r.data = tx
	return nil
}

func (r *Repository) with(fn func(s *store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.data)
}

// --- stations ---

func (s *store) stationIndex(networkID string) int {
	for i, st := range s.stations {
		if st.NetworkID == networkID {
			return i
		}
	}
	return -1
}

func (s *store) CreateStation(_ context.Context, station *models.Station) error {
	if s.stationIndex(station.NetworkID) >= 0 {
		return fmt.Errorf("station %s already exists", station.NetworkID)
	}
	if station.ID == uuid.Nil {
		station.ID = uuid.New()
	}
	if station.CreatedAt.IsZero() {
		station.CreatedAt = time.Now().UTC()
	}
	s.stations = append(s.stations, *station)
	return nil
}

func (s *store) GetStation(_ context.Context, networkID string) (*models.Station, error) {
	i := s.stationIndex(networkID)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	st := s.stations[i]
	return &st, nil
}

func (s *store) GetStationForUpdate(ctx context.Context, networkID string) (*models.Station, error) {
	return s.GetStation(ctx, networkID)
}

func (s *store) UpdateStation(_ context.Context, station *models.Station) error {
	for i := range s.stations {
		if s.stations[i].ID == station.ID {
			s.stations[i] = *station
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *store) DeleteStation(_ context.Context, id uuid.UUID) error {
	found := false
	stations := s.stations[:0:0]
	for _, st := range s.stations {
		if st.ID == id {
			found = true
			continue
		}
		stations = append(stations, st)
	}
	if !found {
		return repository.ErrNotFound
	}
	s.stations = stations

	removed := make(map[uuid.UUID]bool)
	components := s.components[:0:0]
	for _, c := range s.components {
		if c.StationID == id {
			removed[c.ID] = true
			continue
		}
		components = append(components, c)
	}
	s.components = components

	batches := s.batches[:0:0]
	for _, b := range s.batches {
		if !removed[b.ComponentID] {
			batches = append(batches, b)
		}
	}
	s.batches = batches

	errs := s.errors[:0:0]
	for _, e := range s.errors {
		if e.StationID != id {
			errs = append(errs, e)
		}
	}
	s.errors = errs

	links := s.links[:0:0]
	for _, l := range s.links {
		if l.stationID != id {
			links = append(links, l)
		}
	}
	s.links = links
	return nil
}

func (s *store) ListStations(_ context.Context, approved bool) ([]models.Station, error) {
	var out []models.Station
	for _, st := range s.stations {
		if st.Approved == approved {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *store) CountStations(_ context.Context, approved bool) (int, error) {
	n := 0
	for _, st := range s.stations {
		if st.Approved == approved {
			n++
		}
	}
	return n, nil
}

// --- components and batches ---

func (s *store) ListComponents(_ context.Context, stationID uuid.UUID) ([]models.Component, error) {
	var out []models.Component
	for _, c := range s.components {
		if c.StationID == stationID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *store) CreateComponent(_ context.Context, component *models.Component) error {
	if component.ID == uuid.Nil {
		component.ID = uuid.New()
	}
	s.components = append(s.components, *component)
	return nil
}

func (s *store) UpdateComponent(_ context.Context, component *models.Component) error {
	for i := range s.components {
		if s.components[i].ID == component.ID {
			s.components[i] = *component
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *store) CreateBatch(_ context.Context, batch *models.MeasurementBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	b := *batch
	b.Measurements = append([]models.Measurement(nil), batch.Measurements...)
	s.batches = append(s.batches, b)
	return nil
}

func (s *store) ListBatches(_ context.Context, componentID uuid.UUID, since time.Time) ([]models.MeasurementBatch, error) {
	var out []models.MeasurementBatch
	for _, b := range s.batches {
		if b.ComponentID == componentID && b.Timestamp.After(since) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *store) DeleteBatchesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	batches := s.batches[:0:0]
	for _, b := range s.batches {
		if b.Timestamp.Before(cutoff) {
			n++
			continue
		}
		batches = append(batches, b)
	}
	s.batches = batches
	return n, nil
}

// --- errors ---

func (s *store) CreateError(_ context.Context, e *models.Error) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.errors = append(s.errors, *e)
	return nil
}

func (s *store) ListErrors(_ context.Context, stationID uuid.UUID) ([]models.Error, error) {
	var out []models.Error
	for _, e := range s.errors {
		if e.StationID == stationID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *store) DeleteError(_ context.Context, id uuid.UUID) error {
	for i, e := range s.errors {
		if e.ID == id {
			s.errors = append(s.errors[:i:i], s.errors[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// --- maintainers ---

// LockMaintainers is a no-op: transactions already run one at a time.
func (s *store) LockMaintainers(context.Context) error {
	return nil
}

func (s *store) person(id uuid.UUID) (models.Person, bool) {
	for _, p := range s.persons {
		if p.ID == id {
			return p, true
		}
	}
	return models.Person{}, false
}

func (s *store) ListMaintainers(_ context.Context, stationID uuid.UUID) ([]models.Person, error) {
	var out []models.Person
	for _, l := range s.links {
		if l.stationID != stationID {
			continue
		}
		if p, ok := s.person(l.personID); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *store) ListPersons(context.Context) ([]models.Person, error) {
	return append([]models.Person(nil), s.persons...), nil
}

func (s *store) CreatePerson(_ context.Context, person *models.Person) error {
	if person.ID == uuid.Nil {
		person.ID = uuid.New()
	}
	s.persons = append(s.persons, *person)
	return nil
}

func (s *store) AttachMaintainer(_ context.Context, stationID, personID uuid.UUID) error {
	for _, l := range s.links {
		if l.stationID == stationID && l.personID == personID {
			return nil
		}
	}
	s.links = append(s.links, link{stationID: stationID, personID: personID})
	return nil
}

func (s *store) DetachMaintainer(_ context.Context, stationID, personID uuid.UUID) error {
	for i, l := range s.links {
		if l.stationID == stationID && l.personID == personID {
			s.links = append(s.links[:i:i], s.links[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *store) CountPersonStations(_ context.Context, personID uuid.UUID) (int, error) {
	n := 0
	for _, l := range s.links {
		if l.personID == personID {
			n++
		}
	}
	return n, nil
}

func (s *store) DeletePerson(_ context.Context, personID uuid.UUID) error {
	for i, p := range s.persons {
		if p.ID == personID {
			s.persons = append(s.persons[:i:i], s.persons[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// --- statuses and rules ---

func (s *store) SeedStatuses(_ context.Context, statuses []models.Status) error {
	if len(s.statuses) > 0 {
		return nil
	}
	for i, st := range statuses {
		st.ID = i + 1
		s.statuses = append(s.statuses, st)
	}
	return nil
}

func (s *store) ListStatuses(context.Context) ([]models.Status, error) {
	return append([]models.Status(nil), s.statuses...), nil
}

func (s *store) CreateRule(_ context.Context, rule *models.StatusRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	s.rules = append(s.rules, *rule)
	return nil
}

func (s *store) ListRules(context.Context) ([]models.StatusRule, error) {
	return append([]models.StatusRule(nil), s.rules...), nil
}

func (s *store) DeleteRule(_ context.Context, id uuid.UUID) error {
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i:i], s.rules[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}
