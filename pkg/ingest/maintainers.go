package ingest

import (
	"context"
	"fmt"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
)

// MaintainerFieldsVersion changes whenever MaintainerFields changes, since
// that changes which stored persons a record matches.
const MaintainerFieldsVersion = 1

// MaintainerField is one comparable attribute of a maintainer
type MaintainerField struct {
	Name   string
	MaxLen int
	Get    func(p models.Person) string
	Set    func(p *models.Person, v string)
}

// MaintainerFields is the fixed list of attributes persons are matched on.
var MaintainerFields = []MaintainerField{
	{
		Name:   "name",
		MaxLen: 64,
		Get:    func(p models.Person) string { return p.Name },
		Set:    func(p *models.Person, v string) { p.Name = v },
	},
	{
		Name:   "phone",
		MaxLen: 64,
		Get:    func(p models.Person) string { return p.Phone },
		Set:    func(p *models.Person, v string) { p.Phone = v },
	},
	{
		Name:   "email",
		MaxLen: 64,
		Get:    func(p models.Person) string { return p.Email },
		Set:    func(p *models.Person, v string) { p.Email = v },
	},
}

func maintainerField(name string) (MaintainerField, bool) {
	for _, f := range MaintainerFields {
		if f.Name == name {
			return f, true
		}
	}
	return MaintainerField{}, false
}

// MatchesPerson reports whether every field of record equals the person's
// field after coercion. A key that is not a maintainer field, or a value
// that does not coerce, makes the record unequal. Fields the record omits
// are not compared.
func MatchesPerson(p models.Person, record map[string]any) bool {
	for key, raw := range record {
		field, ok := maintainerField(key)
		if !ok {
			return false
		}
		v, ok := toString(raw)
		if !ok || field.Get(p) != v {
			return false
		}
	}
	return true
}

// NewPerson builds a person from the coercible maintainer fields of record.
func NewPerson(record map[string]any) models.Person {
	var p models.Person
	for _, field := range MaintainerFields {
		raw, ok := record[field.Name]
		if !ok {
			continue
		}
		v, ok := toString(raw)
		if !ok || len([]rune(v)) > field.MaxLen {
			continue
		}
		field.Set(&p, v)
	}
	return p
}

// reconcileMaintainers recomputes the maintainer set of a station from
// records. The caller must hold the maintainer lock.
func reconcileMaintainers(ctx context.Context, q repository.Queries, station *models.Station, records []map[string]any) error {
	existing, err := q.ListMaintainers(ctx, station.ID)
	if err != nil {
		return fmt.Errorf("failed to list maintainers: %w", err)
	}

	kept := make(map[models.Person]bool)
	var unmatched []map[string]any
	for _, record := range records {
		found := false
		for _, person := range existing {
			if MatchesPerson(person, record) {
				kept[person] = true
				found = true
				break
			}
		}
		if !found {
			unmatched = append(unmatched, record)
		}
	}

	for _, person := range existing {
		if kept[person] {
			continue
		}
		if err := q.DetachMaintainer(ctx, station.ID, person.ID); err != nil {
			return fmt.Errorf("failed to detach maintainer: %w", err)
		}
		if err := deleteIfOrphaned(ctx, q, person); err != nil {
			return err
		}
	}

	if len(unmatched) == 0 {
		return nil
	}

	pool, err := q.ListPersons(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}
	for _, record := range unmatched {
		var match *models.Person
		for i := range pool {
			if MatchesPerson(pool[i], record) {
				match = &pool[i]
				break
			}
		}
		if match == nil {
			person := NewPerson(record)
			if err := q.CreatePerson(ctx, &person); err != nil {
				return fmt.Errorf("failed to create person: %w", err)
			}
			pool = append(pool, person)
			match = &pool[len(pool)-1]
		}
		if err := q.AttachMaintainer(ctx, station.ID, match.ID); err != nil {
			return fmt.Errorf("failed to attach maintainer: %w", err)
		}
	}

	return nil
}

func deleteIfOrphaned(ctx context.Context, q repository.Queries, person models.Person) error {
	n, err := q.CountPersonStations(ctx, person.ID)
	if err != nil {
		return fmt.Errorf("failed to count maintainer stations: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := q.DeletePerson(ctx, person.ID); err != nil {
		return fmt.Errorf("failed to delete orphaned person: %w", err)
	}
	return nil
}
