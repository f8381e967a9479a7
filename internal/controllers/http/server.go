package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
	"github.com/Agrid-Dev/cracfuzzy/internal/fuzzy"
	"github.com/Agrid-Dev/cracfuzzy/internal/ports"
	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
	"github.com/Agrid-Dev/cracfuzzy/internal/station"
)

type Server struct {
	svc      ports.CoolingService
	srv      *http.Server
	deviceID string
	log      *zap.Logger
}

// New returns a runnable server. A nil gatherer leaves /metrics unrouted.
func New(svc ports.CoolingService, addr string, deviceID string, g prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	s := &Server{svc: svc, deviceID: deviceID, log: log}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)
	mux.HandleFunc("GET /v1/rulebase", s.handleRuleBase)

	// Write: one endpoint per variable
	mux.HandleFunc("POST /v1/setpoint", s.handlePostSetpoint)
	mux.HandleFunc("POST /v1/running", s.handlePostRunning)

	// Controller
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/explain", s.handleExplain)
	mux.HandleFunc("POST /v1/simulate", s.handleSimulate)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if g != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type snapshotDTO struct {
	DeviceID            string  `json:"device_id"`
	Running             bool    `json:"running"`
	Setpoint            float64 `json:"setpoint"`
	SetpointMin         float64 `json:"setpoint_min"`
	SetpointMax         float64 `json:"setpoint_max"`
	Minute              int     `json:"minute"`
	Elapsed             int     `json:"elapsed"`
	Temperature         float64 `json:"temperature"`
	ExternalTemperature float64 `json:"external_temperature"`
	Load                float64 `json:"load"`
	Raw                 float64 `json:"raw_output"`
	Control             float64 `json:"crac_power"`
	NoRuleFired         bool    `json:"no_rule_fired"`
	Alert               bool    `json:"alert"`
	Comfortable         bool    `json:"comfortable"`
}

func toDTO(s station.Snapshot) snapshotDTO {
	return snapshotDTO{
		Running:             s.Running,
		Setpoint:            s.Setpoint,
		SetpointMin:         s.SetpointMin,
		SetpointMax:         s.SetpointMax,
		Minute:              s.Minute,
		Elapsed:             s.Elapsed,
		Temperature:         s.Temperature,
		ExternalTemperature: s.ExternalTemperature,
		Load:                s.Load,
		Raw:                 s.Raw,
		Control:             s.Control,
		NoRuleFired:         s.NoRuleFired,
		Alert:               s.Alert,
		Comfortable:         s.Comfortable,
	}
}

type evaluateReq struct {
	Error               *float64 `json:"error"`
	Derivative          *float64 `json:"derivative"`
	ExternalTemperature *float64 `json:"external_temperature"`
	Load                *float64 `json:"load"`
	Previous            *float64 `json:"previous"`
}

func (r evaluateReq) inputs() (crac.Inputs, error) {
	if r.Error == nil || r.Derivative == nil || r.ExternalTemperature == nil || r.Load == nil {
		return crac.Inputs{}, errors.New("fields 'error', 'derivative', 'external_temperature' and 'load' are required")
	}
	return crac.Inputs{
		Error:               *r.Error,
		Derivative:          *r.Derivative,
		ExternalTemperature: *r.ExternalTemperature,
		Load:                *r.Load,
	}, nil
}

// evaluateResp flags a one-off evaluation whose error exceeds crac.ManualAlertError.
type evaluateResp struct {
	crac.Output
	Alert bool `json:"alert"`
}

type termDTO struct {
	Name  string     `json:"name"`
	Shape [3]float64 `json:"shape"`
}

type variableDTO struct {
	Name    string    `json:"name"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Samples int       `json:"samples"`
	Terms   []termDTO `json:"terms"`
}

type ruleBaseDTO struct {
	Inputs []variableDTO `json:"inputs"`
	Output variableDTO   `json:"output"`
	Rules  []string      `json:"rules"`
}

func toVariableDTO(v *fuzzy.Variable) variableDTO {
	u := v.Universe()
	dto := variableDTO{Name: v.Name(), Min: u.Min, Max: u.Max, Samples: u.Samples}
	for _, t := range v.Terms() {
		dto.Terms = append(dto.Terms, termDTO{Name: t.Name, Shape: [3]float64{t.MF.A, t.MF.B, t.MF.C}})
	}
	return dto
}

func toRuleBaseDTO(rb *fuzzy.RuleBase) ruleBaseDTO {
	dto := ruleBaseDTO{Output: toVariableDTO(rb.Output())}
	for _, v := range rb.Inputs() {
		dto.Inputs = append(dto.Inputs, toVariableDTO(v))
	}
	for _, r := range rb.Rules() {
		dto.Rules = append(dto.Rules, r.String())
	}
	return dto
}

type simulateReq struct {
	Setpoint *float64 `json:"setpoint"`
	Steps    *int     `json:"steps"`
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handleRuleBase(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toRuleBaseDTO(s.svc.RuleBase()))
}

func (s *Server) handlePostSetpoint(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		return s.svc.SetSetpoint(v)
	})
}

func (s *Server) handlePostRunning(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v bool) error {
		s.svc.SetRunning(v)
		return nil
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateReq
	if !decodeStrict(w, r, &req) {
		return
	}
	in, err := req.inputs()
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	previous := simulation.DefaultInitialOutput
	if req.Previous != nil {
		previous = *req.Previous
	}
	out, err := s.svc.Evaluate(in, previous)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, evaluateResp{Output: out, Alert: in.Error > crac.ManualAlertError})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req evaluateReq
	if !decodeStrict(w, r, &req) {
		return
	}
	in, err := req.inputs()
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	ex, err := s.svc.Explain(in)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	req := simulateReq{}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	// An absent body keeps every default.
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	setpoint := s.svc.Get().Setpoint
	if req.Setpoint != nil {
		setpoint = *req.Setpoint
	}
	steps := simulation.MinutesPerDay
	if req.Steps != nil {
		steps = *req.Steps
	}

	sum, err := s.svc.Simulate(r.Context(), setpoint, steps)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sum)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, station.ErrInvalidSteps) || errors.Is(err, station.ErrInvalidSetpoint):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("simulation failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

// ---- generic helpers ----
func (s *Server) respondSnapshot(w http.ResponseWriter) {
	dto := toDTO(s.svc.Get())
	dto.DeviceID = s.deviceID
	writeJSON(w, http.StatusOK, dto)
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondSnapshot(w)
}

func decodeStrict(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
