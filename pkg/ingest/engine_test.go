package ingest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository/memory"
	"github.com/petnica-meteor-group/meteornet-server/pkg/status"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingClassifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingClassifier) ClassifyStation(_ context.Context, networkID string) (*status.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, networkID)
	return &status.Decision{}, nil
}

type fixture struct {
	repo       *memory.Repository
	table      models.StatusTable
	classifier *recordingClassifier
	engine     *Engine
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	repo := memory.New()
	table, err := repository.LoadStatusTable(context.Background(), repo)
	require.NoError(t, err)

	classifier := &recordingClassifier{}
	engine := NewEngine(repo, table, cfg, zerolog.Nop(),
		WithClassifier(classifier),
		WithClock(func() time.Time { return now }),
	)
	return &fixture{repo: repo, table: table, classifier: classifier, engine: engine}
}

func payload(t *testing.T, format string, args ...any) Payload {
	t.Helper()
	p, err := DecodePayloadString(fmt.Sprintf(format, args...))
	require.NoError(t, err)
	return p
}

// registerApproved registers and approves a station
func (f *fixture) registerApproved(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.engine.Register(ctx, Payload{"name": "Station"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, f.engine.Approve(ctx, id))
	return id
}

func (f *fixture) submit(t *testing.T, format string, args ...any) bool {
	t.Helper()
	ok, err := f.engine.Submit(context.Background(), payload(t, format, args...))
	require.NoError(t, err)
	return ok
}

func (f *fixture) station(t *testing.T, networkID string) *models.Station {
	t.Helper()
	s, err := f.repo.GetStation(context.Background(), networkID)
	require.NoError(t, err)
	return s
}

func (f *fixture) components(t *testing.T, networkID string) []models.Component {
	t.Helper()
	c, err := f.repo.ListComponents(context.Background(), f.station(t, networkID).ID)
	require.NoError(t, err)
	return c
}

func (f *fixture) maintainers(t *testing.T, networkID string) []models.Person {
	t.Helper()
	m, err := f.repo.ListMaintainers(context.Background(), f.station(t, networkID).ID)
	require.NoError(t, err)
	return m
}

func (f *fixture) persons(t *testing.T) []models.Person {
	t.Helper()
	p, err := f.repo.ListPersons(context.Background())
	require.NoError(t, err)
	return p
}

func TestRegister(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	id, err := f.engine.Register(ctx, payload(t, `{"name": "Petnica", "latitude": "north", "longitude": 20.1, "approved": true, "timestamp": 1700000000}`))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)

	station := f.station(t, id)
	assert.Equal(t, "Petnica", station.Name)
	assert.Zero(t, station.Latitude)
	assert.Equal(t, 20.1, station.Longitude)
	assert.False(t, station.Approved)
	assert.Equal(t, f.table.Lowest().ID, station.StatusID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), station.LastUpdated)

	other, err := f.engine.Register(ctx, Payload{})
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
	assert.Equal(t, now, f.station(t, other).LastUpdated)
}

func TestRegister_PendingCap(t *testing.T) {
	f := newFixture(t, Config{MaxUnapproved: 2})
	ctx := context.Background()

	first, err := f.engine.Register(ctx, Payload{})
	require.NoError(t, err)
	_, err = f.engine.Register(ctx, Payload{})
	require.NoError(t, err)

	refused, err := f.engine.Register(ctx, Payload{})
	require.NoError(t, err)
	assert.Empty(t, refused)

	require.NoError(t, f.engine.Approve(ctx, first))
	accepted, err := f.engine.Register(ctx, Payload{})
	require.NoError(t, err)
	assert.NotEmpty(t, accepted)
}

func TestSubmit_UnknownStation(t *testing.T) {
	f := newFixture(t, Config{})

	assert.False(t, f.submit(t, `{"network_id": "nope"}`))
	assert.False(t, f.submit(t, `{"components": []}`))
	assert.Empty(t, f.classifier.calls)
}

func TestSubmit_UnapprovedStationIsIgnored(t *testing.T) {
	f := newFixture(t, Config{})
	id, err := f.engine.Register(context.Background(), Payload{"name": "Pending"})
	require.NoError(t, err)

	ok := f.submit(t, `{"network_id": %q, "name": "Renamed", "timestamp": 1, "components": [{"name": "S", "measurements": {"t": "1"}}]}`, id)
	assert.True(t, ok)
	assert.Equal(t, "Pending", f.station(t, id).Name)
	assert.Empty(t, f.components(t, id))
	assert.Empty(t, f.classifier.calls)
}

func TestSubmit_TwoUpdatesOneComponent(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)

	require.True(t, f.submit(t, `{"network_id": %q, "timestamp": 1000, "components": [{"name": "Sensor1", "measurements": {"t": "22C"}}]}`, id))
	require.True(t, f.submit(t, `{"network_id": %q, "timestamp": 2000, "components": [{"name": "Sensor1", "measurements": {"t": "23C"}}]}`, id))

	components := f.components(t, id)
	require.Len(t, components, 1)
	assert.Equal(t, "Sensor1", components[0].Name)

	batches, err := f.repo.ListBatches(context.Background(), components[0].ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, int64(1000), batches[0].Timestamp.Unix())
	v, _ := batches[1].Value("t")
	assert.Equal(t, "23C", v)

	assert.Equal(t, int64(2000), f.station(t, id).LastUpdated.Unix())
	assert.Equal(t, []string{id, id}, f.classifier.calls)
}

func TestSubmit_OldFlag(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)

	require.True(t, f.submit(t, `{"network_id": %q, "components": [{"name": "A"}, {"name": "B"}]}`, id))
	require.True(t, f.submit(t, `{"network_id": %q, "components": [{"name": "A"}, {"name": "C"}]}`, id))

	old := make(map[string]bool)
	for _, c := range f.components(t, id) {
		old[c.Name] = c.Old
	}
	assert.Equal(t, map[string]bool{"A": false, "B": true, "C": false}, old)
}

func TestSubmit_NoBatchWithoutTimestamp(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)

	require.True(t, f.submit(t, `{"network_id": %q, "components": [{"name": "S", "measurements": {"t": "1"}}]}`, id))

	components := f.components(t, id)
	require.Len(t, components, 1)
	batches, err := f.repo.ListBatches(context.Background(), components[0].ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestSubmit_MalformedFieldsAreSkipped(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)

	require.True(t, f.submit(t, `{"network_id": %q, "latitude": 44.2, "elevation": "high", "timestamp": "soon", "comment": "ok"}`, id))

	station := f.station(t, id)
	assert.Equal(t, 44.2, station.Latitude)
	assert.Zero(t, station.Elevation)
	assert.Equal(t, "ok", station.Comment)
	assert.Equal(t, now, station.LastUpdated)
}

func TestSubmit_UnchangedMaintainersAreNotDuplicated(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)
	update := `{"network_id": %q, "maintainers": [{"name": "A", "phone": "1", "email": "a@x"}]}`

	require.True(t, f.submit(t, update, id))
	first := f.maintainers(t, id)
	require.Len(t, first, 1)

	require.True(t, f.submit(t, update, id))
	second := f.maintainers(t, id)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Len(t, f.persons(t), 1)
}

func TestSubmit_MaintainersAreSharedBetweenStations(t *testing.T) {
	f := newFixture(t, Config{})
	a := f.registerApproved(t)
	b := f.registerApproved(t)
	update := `{"network_id": %q, "maintainers": [{"name": "A", "phone": "1", "email": "a@x"}]}`

	require.True(t, f.submit(t, update, a))
	require.True(t, f.submit(t, update, b))
	assert.Len(t, f.persons(t), 1)
	assert.Equal(t, f.maintainers(t, a)[0].ID, f.maintainers(t, b)[0].ID)

	// detaching from one station keeps the person alive for the other
	require.True(t, f.submit(t, `{"network_id": %q, "maintainers": []}`, a))
	assert.Empty(t, f.maintainers(t, a))
	assert.Len(t, f.maintainers(t, b), 1)
	assert.Len(t, f.persons(t), 1)
}

func TestSubmit_EmptyMaintainersDeletesOrphans(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)

	require.True(t, f.submit(t, `{"network_id": %q, "maintainers": [{"name": "A", "email": "a@x"}, {"name": "B", "email": "b@x"}]}`, id))
	require.Len(t, f.maintainers(t, id), 2)

	require.True(t, f.submit(t, `{"network_id": %q, "maintainers": []}`, id))
	assert.Empty(t, f.maintainers(t, id))
	assert.Empty(t, f.persons(t))
}

func TestSubmit_ChangedMaintainerIsReplaced(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)

	require.True(t, f.submit(t, `{"network_id": %q, "maintainers": [{"name": "A", "phone": "1"}, {"name": "B"}]}`, id))
	require.True(t, f.submit(t, `{"network_id": %q, "maintainers": [{"name": "A", "phone": "2"}, {"name": "B"}]}`, id))

	maintainers := f.maintainers(t, id)
	require.Len(t, maintainers, 2)
	phones := map[string]string{}
	for _, m := range maintainers {
		phones[m.Name] = m.Phone
	}
	assert.Equal(t, map[string]string{"A": "2", "B": ""}, phones)
	assert.Len(t, f.persons(t), 2)
}

func TestSubmit_AbsentMaintainersAreKept(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)

	require.True(t, f.submit(t, `{"network_id": %q, "maintainers": [{"name": "A"}]}`, id))
	require.True(t, f.submit(t, `{"network_id": %q, "name": "Renamed"}`, id))
	assert.Len(t, f.maintainers(t, id), 1)
}

func TestSubmit_ErrorReport(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.registerApproved(t)
	require.True(t, f.submit(t, `{"network_id": %q, "timestamp": 50, "components": [{"name": "Camera", "measurements": {"fps": "25"}}]}`, id))
	ctx := context.Background()

	require.True(t, f.submit(t, `{"network_id": %q, "error": "lens fogged", "component": "Camera", "timestamp": 100, "name": "ignored"}`, id))
	require.True(t, f.submit(t, `{"network_id": %q, "error": "no power", "component": "Battery"}`, id))
	assert.False(t, f.submit(t, `{"network_id": %q, "error": "orphan"}`, id))

	station := f.station(t, id)
	assert.Equal(t, "Station", station.Name)
	assert.Equal(t, int64(50), station.LastUpdated.Unix())

	errs, err := f.repo.ListErrors(ctx, station.ID)
	require.NoError(t, err)
	require.Len(t, errs, 2)

	assert.Equal(t, "lens fogged", errs[0].Message)
	assert.Equal(t, int64(100), errs[0].Timestamp.Unix())
	require.NotNil(t, errs[0].ComponentID)
	assert.Equal(t, f.components(t, id)[0].ID, *errs[0].ComponentID)

	assert.Equal(t, "no power", errs[1].Message)
	assert.Equal(t, "Battery", errs[1].Component)
	assert.Nil(t, errs[1].ComponentID)
	assert.Equal(t, now, errs[1].Timestamp)

	assert.Len(t, f.classifier.calls, 3)
}

func TestApprove_UnknownStation(t *testing.T) {
	f := newFixture(t, Config{})
	assert.ErrorIs(t, f.engine.Approve(context.Background(), "nope"), ErrUnknownStation)
}

func TestReject(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	pending, err := f.engine.Register(ctx, Payload{})
	require.NoError(t, err)
	require.NoError(t, f.engine.Reject(ctx, pending))
	_, err = f.repo.GetStation(ctx, pending)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	approved := f.registerApproved(t)
	assert.ErrorIs(t, f.engine.Reject(ctx, approved), ErrAlreadyApproved)
	assert.ErrorIs(t, f.engine.Reject(ctx, "nope"), ErrUnknownStation)
}

func TestDeleteStation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	a := f.registerApproved(t)
	b := f.registerApproved(t)

	require.True(t, f.submit(t, `{"network_id": %q, "timestamp": 10, "components": [{"name": "S", "measurements": {"t": "1"}}], "maintainers": [{"name": "Shared"}, {"name": "Only A"}]}`, a))
	require.True(t, f.submit(t, `{"network_id": %q, "maintainers": [{"name": "Shared"}]}`, b))
	require.True(t, f.submit(t, `{"network_id": %q, "error": "x", "component": "S"}`, a))

	require.NoError(t, f.engine.DeleteStation(ctx, a))

	_, err := f.repo.GetStation(ctx, a)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	persons := f.persons(t)
	require.Len(t, persons, 1)
	assert.Equal(t, "Shared", persons[0].Name)

	assert.ErrorIs(t, f.engine.DeleteStation(ctx, a), ErrUnknownStation)
}

func TestResolveError(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	id := f.registerApproved(t)
	require.True(t, f.submit(t, `{"network_id": %q, "error": "x", "component": "S"}`, id))

	errs, err := f.repo.ListErrors(ctx, f.station(t, id).ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)

	require.NoError(t, f.engine.ResolveError(ctx, errs[0].ID))
	errs, err = f.repo.ListErrors(ctx, f.station(t, id).ID)
	require.NoError(t, err)
	assert.Empty(t, errs)

	assert.ErrorIs(t, f.engine.ResolveError(ctx, uuid.New()), repository.ErrNotFound)
}

func TestSubmit_ConcurrentStations(t *testing.T) {
	f := newFixture(t, Config{})
	ids := []string{f.registerApproved(t), f.registerApproved(t), f.registerApproved(t)}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				p := Payload{
					FieldNetworkID:   id,
					FieldTimestamp:   int64(1000 + i),
					FieldComponents:  []any{map[string]any{"name": "S", "measurements": map[string]any{"t": "1"}}},
					FieldMaintainers: []any{map[string]any{"name": "Shared", "email": "s@x"}},
				}
				ok, err := f.engine.Submit(context.Background(), p)
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}(id)
	}
	wg.Wait()

	assert.Len(t, f.persons(t), 1)
	for _, id := range ids {
		assert.Len(t, f.components(t, id), 1)
	}
}

var errInjected = errors.New("injected write failure")

// faultyRepo fails the named write inside transactions
type faultyRepo struct {
	*memory.Repository
	failOn string
}

func (r *faultyRepo) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return r.Repository.InTx(ctx, func(q repository.Queries) error {
		return fn(faultyQueries{Queries: q, failOn: r.failOn})
	})
}

type faultyQueries struct {
	repository.Queries
	failOn string
}

func (q faultyQueries) CreateBatch(ctx context.Context, b *models.MeasurementBatch) error {
	if q.failOn == "CreateBatch" {
		return errInjected
	}
	return q.Queries.CreateBatch(ctx, b)
}

func (q faultyQueries) AttachMaintainer(ctx context.Context, stationID, personID uuid.UUID) error {
	if q.failOn == "AttachMaintainer" {
		return errInjected
	}
	return q.Queries.AttachMaintainer(ctx, stationID, personID)
}

func (q faultyQueries) UpdateStation(ctx context.Context, s *models.Station) error {
	if q.failOn == "UpdateStation" {
		return errInjected
	}
	return q.Queries.UpdateStation(ctx, s)
}

func TestSubmit_FailedWriteRollsBackUpdate(t *testing.T) {
	testCases := []string{"CreateBatch", "AttachMaintainer", "UpdateStation"}

	for _, failOn := range testCases {
		t.Run(failOn, func(t *testing.T) {
			ctx := context.Background()
			repo := &faultyRepo{Repository: memory.New()}
			table, err := repository.LoadStatusTable(ctx, repo)
			require.NoError(t, err)

			f := &fixture{repo: repo.Repository, table: table, classifier: &recordingClassifier{}}
			f.engine = NewEngine(repo, table, Config{}, zerolog.Nop(),
				WithClassifier(f.classifier),
				WithClock(func() time.Time { return now }),
			)

			id := f.registerApproved(t)
			require.True(t, f.submit(t, `{
				"network_id": %q, "timestamp": %d, "comment": "before",
				"components": [{"name": "dht22", "measurements": {"t": "20C"}}],
				"maintainers": [{"name": "Ana"}]
			}`, id, now.Unix()))
			calls := len(f.classifier.calls)

			repo.failOn = failOn
			ok, err := f.engine.Submit(ctx, payload(t, `{
				"network_id": %q, "timestamp": %d, "comment": "after",
				"components": [{"name": "gps", "measurements": {"sats": "7"}}],
				"maintainers": [{"name": "Bob"}]
			}`, id, now.Add(time.Hour).Unix()))
			require.ErrorIs(t, err, errInjected)
			assert.False(t, ok)

			station := f.station(t, id)
			assert.Equal(t, "before", station.Comment)
			assert.True(t, station.LastUpdated.Equal(now))

			components := f.components(t, id)
			require.Len(t, components, 1)
			assert.Equal(t, "dht22", components[0].Name)
			assert.False(t, components[0].Old)

			batches, err := f.repo.ListBatches(ctx, components[0].ID, time.Time{})
			require.NoError(t, err)
			assert.Len(t, batches, 1)

			maintainers := f.maintainers(t, id)
			require.Len(t, maintainers, 1)
			assert.Equal(t, "Ana", maintainers[0].Name)
			assert.Len(t, f.persons(t), 1)

			assert.Len(t, f.classifier.calls, calls, "failed update must not reclassify")
		})
	}
}
