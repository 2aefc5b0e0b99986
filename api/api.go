// Copyright 2025 The Rouse Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the engine over HTTP: webhook ingestion, the alert
// lifecycle, schedule and policy management, and the noise report.
//
// Handlers translate transport concerns only. Domain decisions stay in the
// services; the clock is read once per request and passed down.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/rouselabs/rouse/alerts"
	"github.com/rouselabs/rouse/escalation"
	"github.com/rouselabs/rouse/noise"
	"github.com/rouselabs/rouse/parse"
	"github.com/rouselabs/rouse/provider"
	"github.com/rouselabs/rouse/schedule"
	"github.com/rouselabs/rouse/types"
)

// maxBodySize bounds inbound webhook payloads.
const maxBodySize = 1 << 20

// API wires the services into an HTTP handler tree.
type API struct {
	alerts    *alerts.Service
	schedules *schedule.Service
	noise     *noise.Service
	policies  provider.PolicyRepository
	users     provider.UserRepository
	teams     provider.TeamRepository
	events    provider.EventLog
	parsers   parse.Registry

	clock  quartz.Clock
	logger *slog.Logger
}

// New creates the API.
func New(
	alertSvc *alerts.Service,
	scheduleSvc *schedule.Service,
	noiseSvc *noise.Service,
	policies provider.PolicyRepository,
	users provider.UserRepository,
	teams provider.TeamRepository,
	events provider.EventLog,
	parsers parse.Registry,
	clock quartz.Clock,
	logger *slog.Logger,
) *API {
	return &API{
		alerts:    alertSvc,
		schedules: scheduleSvc,
		noise:     noiseSvc,
		policies:  policies,
		users:     users,
		teams:     teams,
		events:    events,
		parsers:   parsers,
		clock:     clock,
		logger:    logger.With("component", "api"),
	}
}

// Handler returns the routed handler with CORS applied.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	a.Register(r.PathPrefix("/api/v1").Subrouter())
	return cors.Default().Handler(r)
}

// Register mounts every route on the router.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/alerts", a.receiveAlerts).Methods(http.MethodPost)
	r.HandleFunc("/alerts", a.listAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}", a.getAlert).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}/ack", a.ackAlert).Methods(http.MethodPost)
	r.HandleFunc("/alerts/{id}/resolve", a.resolveAlert).Methods(http.MethodPost)

	r.HandleFunc("/schedules", a.createSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedules", a.listSchedules).Methods(http.MethodGet)
	r.HandleFunc("/schedules/{id}", a.getSchedule).Methods(http.MethodGet)
	r.HandleFunc("/schedules/{id}", a.deleteSchedule).Methods(http.MethodDelete)
	r.HandleFunc("/schedules/{id}/oncall", a.onCall).Methods(http.MethodGet)
	r.HandleFunc("/schedules/{id}/overrides", a.addOverride).Methods(http.MethodPost)
	r.HandleFunc("/schedules/{id}/overrides/{override_id}", a.removeOverride).Methods(http.MethodDelete)

	r.HandleFunc("/policies", a.createPolicy).Methods(http.MethodPost)
	r.HandleFunc("/policies", a.listPolicies).Methods(http.MethodGet)
	r.HandleFunc("/policies/{id}", a.getPolicy).Methods(http.MethodGet)
	r.HandleFunc("/policies/{id}", a.deletePolicy).Methods(http.MethodDelete)

	r.HandleFunc("/users", a.createUser).Methods(http.MethodPost)
	r.HandleFunc("/users", a.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/teams", a.createTeam).Methods(http.MethodPost)

	r.HandleFunc("/noise", a.noisyAlerts).Methods(http.MethodGet)
	r.HandleFunc("/events", a.listEvents).Methods(http.MethodGet)
}

func (a *API) receiveAlerts(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing source query parameter"))
		return
	}
	parser, ok := a.parsers.For(source)
	if !ok {
		a.respondError(w, http.StatusNotFound, errors.New("unknown source "+source))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	raws, err := parser.Parse(payload, r.Header)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}

	now := a.clock.Now().UTC()
	ids := make([]types.AlertID, 0, len(raws))
	for _, raw := range raws {
		id, err := a.alerts.Receive(r.Context(), raw, now)
		if err != nil {
			a.respondError(w, errStatus(err), err)
			return
		}
		ids = append(ids, id)
	}
	a.respond(w, http.StatusAccepted, map[string]any{"alert_ids": ids})
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := types.AlertFilter{
		Status:   types.Status(q.Get("status")),
		Severity: types.Severity(q.Get("severity")),
		Source:   q.Get("source"),
		Search:   q.Get("search"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	list, err := a.alerts.List(r.Context(), f)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"alerts": list})
}

func (a *API) getAlert(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseAlertID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	alert, err := a.alerts.Get(r.Context(), id)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, alert)
}

func (a *API) ackAlert(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseAlertID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		UserID types.UserID `json:"user_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.alerts.Acknowledge(r.Context(), id, body.UserID, a.clock.Now().UTC()); err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (a *API) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseAlertID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		ResolvedBy string `json:"resolved_by"`
	}
	// The body is optional for manual resolution.
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	if body.ResolvedBy == "" {
		body.ResolvedBy = "api"
	}
	if err := a.alerts.Resolve(r.Context(), id, body.ResolvedBy, a.clock.Now().UTC()); err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (a *API) createSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string            `json:"name"`
		Timezone     string            `json:"timezone"`
		Rotation     schedule.Rotation `json:"rotation"`
		Participants []types.UserID    `json:"participants"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	sched, err := a.schedules.Create(r.Context(), body.Name, body.Timezone, body.Rotation, body.Participants)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusCreated, sched)
}

func (a *API) listSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := a.schedules.List(r.Context())
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"schedules": list})
}

func (a *API) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseScheduleID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	sched, err := a.schedules.Get(r.Context(), id)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, sched)
}

func (a *API) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseScheduleID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.schedules.Delete(r.Context(), id); err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) onCall(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseScheduleID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	at := a.clock.Now().UTC()
	if s := r.URL.Query().Get("at"); s != "" {
		at, err = time.Parse(time.RFC3339, s)
		if err != nil {
			a.respondError(w, http.StatusBadRequest, err)
			return
		}
	}
	userID, err := a.schedules.OnCall(r.Context(), id, at)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"user_id": userID, "at": at})
}

func (a *API) addOverride(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseScheduleID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		UserID types.UserID `json:"user_id"`
		Start  time.Time    `json:"start"`
		End    time.Time    `json:"end"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	o, err := a.schedules.AddOverride(r.Context(), id, body.UserID, body.Start, body.End, a.clock.Now().UTC())
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusCreated, o)
}

func (a *API) removeOverride(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := types.ParseScheduleID(vars["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	overrideID, err := types.ParseOverrideID(vars["override_id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.schedules.RemoveOverride(r.Context(), id, overrideID, a.clock.Now().UTC()); err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createPolicy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string            `json:"name"`
		Steps       []escalation.Step `json:"steps"`
		RepeatCount int               `json:"repeat_count"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	p, err := escalation.NewPolicy(body.Name, body.Steps, body.RepeatCount)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	if err := a.policies.Save(r.Context(), p); err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusCreated, p)
}

func (a *API) listPolicies(w http.ResponseWriter, r *http.Request) {
	list, err := a.policies.List(r.Context())
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"policies": list})
}

func (a *API) getPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParsePolicyID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	p, err := a.policies.Get(r.Context(), id)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, p)
}

func (a *API) deletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParsePolicyID(mux.Vars(r)["id"])
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.policies.Delete(r.Context(), id); err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username   string     `json:"username"`
		Email      string     `json:"email"`
		Role       types.Role `json:"role"`
		SlackID    string     `json:"slack_id"`
		DiscordID  string     `json:"discord_id"`
		TelegramID string     `json:"telegram_id"`
		WhatsAppID string     `json:"whatsapp_id"`
		Phone      string     `json:"phone"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	u := types.NewUser(body.Username, body.Email, body.Role)
	u.SlackID = body.SlackID
	u.DiscordID = body.DiscordID
	u.TelegramID = body.TelegramID
	u.WhatsAppID = body.WhatsAppID
	if body.Phone != "" {
		phone, err := types.ParsePhone(body.Phone)
		if err != nil {
			a.respondError(w, errStatus(err), err)
			return
		}
		u.Phone = &phone
	}
	if err := a.users.Save(r.Context(), u); err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusCreated, u)
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := a.users.List(r.Context())
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"users": list})
}

func (a *API) createTeam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string         `json:"name"`
		Members []types.UserID `json:"members"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	team, err := types.NewTeam(body.Name, body.Members)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	if err := a.teams.Save(r.Context(), team); err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusCreated, team)
}

func (a *API) noisyAlerts(w http.ResponseWriter, r *http.Request) {
	minFires := uint64(5)
	if s := r.URL.Query().Get("min_fires"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			a.respondError(w, http.StatusBadRequest, err)
			return
		}
		minFires = v
	}
	scores, err := a.noise.NoisyAlerts(r.Context(), minFires)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"noise_scores": scores})
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			a.respondError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = v
	}
	list, err := a.events.Recent(r.Context(), limit)
	if err != nil {
		a.respondError(w, errStatus(err), err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"events": list})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(v)
}

func (a *API) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response", "err", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		a.logger.Error("request failed", "err", err)
	}
	a.respond(w, status, map[string]string{"error": err.Error()})
}

// errStatus maps domain and port errors onto HTTP statuses.
func errStatus(err error) int {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAlertAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, parse.ErrInvalidPayload),
		errors.Is(err, schedule.ErrInvalidTimezone),
		errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrInvalidPhoneFormat),
		errors.Is(err, types.ErrInvalidOverridePeriod),
		errors.Is(err, types.ErrScheduleRequiresParticipant),
		errors.Is(err, types.ErrPolicyRequiresStep),
		errors.Is(err, types.ErrStepRequiresTarget),
		errors.Is(err, types.ErrStepRequiresChannel),
		errors.Is(err, types.ErrTeamRequiresMember):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
