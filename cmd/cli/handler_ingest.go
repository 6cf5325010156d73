package main

import (
	"net/http"

	"github.com/petnica-meteor-group/meteornet-server/pkg/api"
	"github.com/petnica-meteor-group/meteornet-server/pkg/ingest"
)

const maxPayloadBytes = 1 << 20

// readPayload decodes the JSON form field of a station request
func (rm *RouteManager) readPayload(w http.ResponseWriter, r *http.Request) (ingest.Payload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)
	if err := r.ParseForm(); err != nil {
		rm.logger.Debug().Err(err).Msg("Failed to parse station form")
		return nil, false
	}

	raw, ok := r.PostForm[api.PayloadField]
	if !ok || len(raw) == 0 {
		return nil, false
	}

	p, err := ingest.DecodePayloadString(raw[0])
	if err != nil {
		rm.logger.Debug().Err(err).Msg("Failed to decode station payload")
		return nil, false
	}
	return p, true
}

// stationRegisterHandler creates a pending station and replies with its
// network id, or an empty body when registration is closed
func (rm *RouteManager) stationRegisterHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := rm.readPayload(w, r)
	if !ok {
		rm.Metrics.RecordIngest("register", "malformed")
		writeText(w, http.StatusBadRequest, api.ResponseFailure)
		return
	}

	networkID, err := rm.Engine.Register(r.Context(), p)
	if err != nil {
		rm.logger.Error().Err(err).Msg("Failed to register station")
		writeText(w, http.StatusInternalServerError, api.ResponseFailure)
		return
	}

	writeText(w, http.StatusOK, networkID)
}

// stationDataHandler applies a data or error report
func (rm *RouteManager) stationDataHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := rm.readPayload(w, r)
	if !ok {
		rm.Metrics.RecordIngest("data", "malformed")
		writeText(w, http.StatusBadRequest, api.ResponseFailure)
		return
	}

	accepted, err := rm.Engine.Submit(r.Context(), p)
	if err != nil {
		networkID, _ := p.String(ingest.FieldNetworkID)
		rm.logger.Error().Err(err).Str("network_id", networkID).Msg("Failed to apply station data")
		writeText(w, http.StatusInternalServerError, api.ResponseFailure)
		return
	}

	if !accepted {
		writeText(w, http.StatusOK, api.ResponseFailure)
		return
	}
	writeText(w, http.StatusOK, api.ResponseSuccess)
}
