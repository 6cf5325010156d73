package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/petnica-meteor-group/meteornet-server/pkg/api"
	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
	"github.com/petnica-meteor-group/meteornet-server/pkg/series"
)

func (rm *RouteManager) summaries(stations []models.Station) []api.StationSummary {
	out := make([]api.StationSummary, 0, len(stations))
	for _, s := range stations {
		st, _ := rm.Table.ByID(s.StatusID)
		out = append(out, api.NewStationSummary(s, st))
	}
	return out
}

// getStationsHandler returns the approved stations with their status
func (rm *RouteManager) getStationsHandler(w http.ResponseWriter, r *http.Request) {
	stations, err := rm.Repo.ListStations(r.Context(), true)
	if err != nil {
		rm.logger.Error().Err(err).Msg("Failed to query stations")
		writeError(w, http.StatusInternalServerError, "Failed to query stations")
		return
	}
	writeJSON(w, http.StatusOK, rm.summaries(stations))
}

// getRegistrationsHandler returns the pending registrations
func (rm *RouteManager) getRegistrationsHandler(w http.ResponseWriter, r *http.Request) {
	stations, err := rm.Repo.ListStations(r.Context(), false)
	if err != nil {
		rm.logger.Error().Err(err).Msg("Failed to query registrations")
		writeError(w, http.StatusInternalServerError, "Failed to query registrations")
		return
	}
	writeJSON(w, http.StatusOK, rm.summaries(stations))
}

// getStationHandler returns the detail of an approved station
func (rm *RouteManager) getStationHandler(w http.ResponseWriter, r *http.Request) {
	rm.serveStation(w, r, true)
}

// getAnyStationHandler returns the detail of any station, pending or not
func (rm *RouteManager) getAnyStationHandler(w http.ResponseWriter, r *http.Request) {
	rm.serveStation(w, r, false)
}

func (rm *RouteManager) serveStation(w http.ResponseWriter, r *http.Request, approvedOnly bool) {
	networkID := mux.Vars(r)["network_id"]

	station, err := rm.Repo.GetStation(r.Context(), networkID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Station not found")
			return
		}
		rm.logger.Error().Err(err).Str("network_id", networkID).Msg("Failed to query station")
		writeError(w, http.StatusInternalServerError, "Failed to query station")
		return
	}
	if approvedOnly && !station.Approved {
		writeError(w, http.StatusNotFound, "Station not found")
		return
	}

	detail, err := rm.stationDetail(r.Context(), *station)
	if err != nil {
		rm.logger.Error().Err(err).Str("network_id", networkID).Msg("Failed to build station detail")
		writeError(w, http.StatusInternalServerError, "Failed to query station")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// stationDetail assembles maintainers, errors, component views and the
// currently broken rules of a station
func (rm *RouteManager) stationDetail(ctx context.Context, station models.Station) (*api.StationDetail, error) {
	now := rm.now()
	st, _ := rm.Table.ByID(station.StatusID)

	detail := &api.StationDetail{
		StationSummary: api.NewStationSummary(station, st),
		Comment:        station.Comment,
		Maintainers:    []models.Person{},
		Errors:         []models.Error{},
		Components:     []series.ComponentView{},
		BrokenRules:    []api.BrokenRule{},
	}

	maintainers, err := rm.Repo.ListMaintainers(ctx, station.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintainers: %w", err)
	}
	detail.Maintainers = append(detail.Maintainers, maintainers...)

	stationErrors, err := rm.Repo.ListErrors(ctx, station.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list errors: %w", err)
	}
	detail.Errors = append(detail.Errors, stationErrors...)

	components, err := rm.Repo.ListComponents(ctx, station.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	for _, c := range components {
		batches, err := rm.Repo.ListBatches(ctx, c.ID, now.Add(-rm.History))
		if err != nil {
			return nil, fmt.Errorf("failed to list batches of %s: %w", c.Name, err)
		}
		detail.Components = append(detail.Components,
			series.BuildComponentView(station.NetworkID, c, batches, now, rm.Recency))
	}

	if station.Approved {
		broken, err := rm.Status.BrokenRules(ctx, station)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate rules: %w", err)
		}
		for _, rule := range broken {
			s, _ := rm.Table.ByID(rule.StatusID)
			detail.BrokenRules = append(detail.BrokenRules, api.BrokenRule{Message: rule.Message, Status: s.Name})
		}
	}

	return detail, nil
}
