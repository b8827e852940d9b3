package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/afroash/vpd-monitor/internal/advisory"
	"github.com/afroash/vpd-monitor/internal/greenhouse"
	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/afroash/vpd-monitor/internal/vpd"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Greenhouse is the controller surface the API drives
type Greenhouse interface {
	Snapshot() models.Snapshot
	SetStage(stage models.GrowthStage) models.Snapshot
	SetMode(mode models.ControlMode) (models.Snapshot, error)
	ToggleActuator(which models.Actuator) (models.Snapshot, error)
	HistoryStats() greenhouse.HistoryStats
}

// AdvisoryService runs advisory reports
type AdvisoryService interface {
	Enabled() bool
	Request(snap models.Snapshot) (models.AdvisoryReport, error)
	Report() models.AdvisoryReport
}

// ActionRecorder counts accepted operator actions
type ActionRecorder interface {
	OperatorAction(action string)
}

// APIHandler handles HTTP API requests for the dashboard
type APIHandler struct {
	greenhouse Greenhouse
	advisor    AdvisoryService
	enclosure  *models.EnclosureInfo
	recorder   ActionRecorder
	logger     zerolog.Logger
}

// NewAPIHandler creates a new API handler. recorder may be nil.
func NewAPIHandler(gh Greenhouse, advisor AdvisoryService, enclosure *models.EnclosureInfo, recorder ActionRecorder, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		greenhouse: gh,
		advisor:    advisor,
		enclosure:  enclosure,
		recorder:   recorder,
		logger:     logger,
	}
}

// CurrentResponse is the latest reading with its interpretation
type CurrentResponse struct {
	Reading        models.SensorReading  `json:"reading"`
	Classification models.Classification `json:"classification"`
	Actuators      models.ActuatorState  `json:"actuators"`
	Mode           models.ControlMode    `json:"mode"`
	Stage          models.GrowthStage    `json:"stage"`
	Tick           int64                 `json:"tick"`
}

// HandleCurrent returns the current reading, classification and actuator state
func (api *APIHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	snap := api.greenhouse.Snapshot()
	writeJSON(w, http.StatusOK, CurrentResponse{
		Reading:        snap.Reading,
		Classification: snap.Classification,
		Actuators:      snap.Actuators,
		Mode:           snap.Mode,
		Stage:          snap.Stage,
		Tick:           snap.Tick,
	})
}

// HandleHistory returns recent readings, oldest first.
// ?limit=N returns only the newest N.
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	history := api.greenhouse.Snapshot().History

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(history) {
			history = history[len(history)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, history)
}

// DashboardData contains all data for the dashboard
type DashboardData struct {
	Snapshot   models.Snapshot       `json:"snapshot"`
	Advisory   models.AdvisoryReport `json:"advisory"`
	Advisor    bool                  `json:"advisor_enabled"`
	Enclosure  *models.EnclosureInfo `json:"enclosure,omitempty"`
	Stages     []vpd.StageTarget     `json:"stages"`
	LastUpdate time.Time             `json:"last_update"`
}

// HandleDashboardData returns combined data for the dashboard
func (api *APIHandler) HandleDashboardData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DashboardData{
		Snapshot:   api.greenhouse.Snapshot(),
		Advisory:   api.advisor.Report(),
		Advisor:    api.advisor.Enabled(),
		Enclosure:  api.enclosure,
		Stages:     vpd.StageCatalog(),
		LastUpdate: time.Now(),
	})
}

// HandleStages returns every stage with its target range
func (api *APIHandler) HandleStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, vpd.StageCatalog())
}

// StageRequest is the body of PUT /api/stage
type StageRequest struct {
	Stage models.GrowthStage `json:"stage"`
}

// HandleSetStage changes the growth stage. Unknown stages are accepted.
func (api *APIHandler) HandleSetStage(w http.ResponseWriter, r *http.Request) {
	var req StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Stage == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "stage is required")
		return
	}

	snap := api.greenhouse.SetStage(req.Stage)
	api.record("stage")
	writeJSON(w, http.StatusOK, snap)
}

// ModeRequest is the body of PUT /api/mode
type ModeRequest struct {
	Mode string `json:"mode"`
}

// HandleSetMode switches between Automatic and Manual
func (api *APIHandler) HandleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	mode, err := models.ParseControlMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}

	snap, err := api.greenhouse.SetMode(mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}
	api.record("mode")
	writeJSON(w, http.StatusOK, snap)
}

// HandleToggleActuator flips the fan or the mister in Manual mode
func (api *APIHandler) HandleToggleActuator(w http.ResponseWriter, r *http.Request) {
	which := models.Actuator(mux.Vars(r)["name"])

	snap, err := api.greenhouse.ToggleActuator(which)
	switch {
	case errors.Is(err, greenhouse.ErrAutomaticMode):
		writeError(w, http.StatusConflict, "automatic_mode", err.Error())
		return
	case errors.Is(err, greenhouse.ErrUnknownActuator):
		writeError(w, http.StatusNotFound, "unknown_actuator", err.Error())
		return
	case err != nil:
		api.logger.Error().Err(err).Str("actuator", string(which)).Msg("Toggle failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	api.record("toggle_" + string(which))
	writeJSON(w, http.StatusOK, snap)
}

// HandleRequestAdvisory starts an advisory report for the current snapshot
func (api *APIHandler) HandleRequestAdvisory(w http.ResponseWriter, r *http.Request) {
	report, err := api.advisor.Request(api.greenhouse.Snapshot())
	switch {
	case errors.Is(err, advisory.ErrRequestPending):
		writeJSON(w, http.StatusConflict, report)
		return
	case errors.Is(err, advisory.ErrAdvisoryDisabled), errors.Is(err, advisory.ErrAdvisorClosed):
		writeError(w, http.StatusServiceUnavailable, "advisory_unavailable", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	api.record("advisory")
	writeJSON(w, http.StatusAccepted, report)
}

// HandleAdvisory returns the current advisory state
func (api *APIHandler) HandleAdvisory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.advisor.Report())
}

// VPDResponse is the calculator output for arbitrary inputs
type VPDResponse struct {
	Temperature    float64               `json:"temperature"`
	Humidity       float64               `json:"humidity"`
	Stage          models.GrowthStage    `json:"stage"`
	VPD            float64               `json:"vpd"`
	Classification models.Classification `json:"classification"`
	Actuators      models.ActuatorState  `json:"recommended_actuators"`
}

// HandleVPD computes and classifies VPD for ?temperature=&humidity=&stage=.
// stage defaults to the session's current stage.
func (api *APIHandler) HandleVPD(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	temperature, err := strconv.ParseFloat(q.Get("temperature"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "temperature must be a number")
		return
	}
	humidity, err := strconv.ParseFloat(q.Get("humidity"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "humidity must be a number")
		return
	}
	if !finite(temperature) || !finite(humidity) {
		writeError(w, http.StatusBadRequest, "bad_request", "temperature and humidity must be finite")
		return
	}
	stage := models.GrowthStage(q.Get("stage"))
	if stage == "" {
		stage = api.greenhouse.Snapshot().Stage
	}

	value := vpd.CalculateVPD(temperature, humidity)
	writeJSON(w, http.StatusOK, VPDResponse{
		Temperature:    temperature,
		Humidity:       humidity,
		Stage:          stage,
		VPD:            value,
		Classification: vpd.Classify(value, stage),
		Actuators:      vpd.DecideActuators(value, vpd.TargetRangeFor(stage)),
	})
}

func (api *APIHandler) record(action string) {
	if api.recorder != nil {
		api.recorder.OperatorAction(action)
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorMessage{Code: code, Message: message})
}
