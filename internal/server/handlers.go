package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/aggregate"
	"github.com/sells-group/hazard-engine/internal/model"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, model.ErrIssueNotFound):
		status = http.StatusNotFound
	case eris.Is(err, model.ErrInvalidCoordinate),
		eris.Is(err, model.ErrUnscoredIssue):
		status = http.StatusBadRequest
	case eris.Is(err, model.ErrNoRoutableNode),
		eris.Is(err, model.ErrNoPath):
		status = http.StatusUnprocessableEntity
	case eris.Is(err, model.ErrPlanningTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  s.engine.Stats(),
	})
}

func (s *Server) handleSubmitIssue(w http.ResponseWriter, r *http.Request) {
	var issue model.Issue
	if err := json.NewDecoder(r.Body).Decode(&issue); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	a, err := s.engine.SubmitIssue(r.Context(), &issue)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"issue":      issue,
		"assessment": a,
	})
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, a, err := s.engine.GetIssue(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issue":      issue,
		"assessment": a,
	})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.IssueStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	switch req.Status {
	case model.IssueStatusOpen, model.IssueStatusInProgress, model.IssueStatusClosed:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status"})
		return
	}

	a, err := s.engine.UpdateIssueStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessment": a})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.RecomputeIssue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessment": a})
}

func (s *Server) handleBatchAssess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "ids required"})
		return
	}

	out, errs := s.engine.BatchAssess(r.Context(), req.IDs)
	failed := make(map[string]string, len(errs))
	for id, err := range errs {
		failed[id] = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": out,
		"failed":      failed,
	})
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	lat, ok1 := floatParam(r, "lat")
	lng, ok2 := floatParam(r, "lng")
	if !ok1 || !ok2 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "lat and lng required"})
		return
	}
	radius, ok := floatParam(r, "radius_m")
	if !ok {
		radius = 500
	}
	limit, _ := intParam(r, "limit")

	writeJSON(w, http.StatusOK, map[string]any{
		"issues": s.engine.Nearby(lat, lng, radius, limit),
	})
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	zoom, ok := intParam(r, "zoom")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "zoom required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clusters": s.engine.Clusters(zoom, s.boundsParam(r)),
	})
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	mode := aggregate.HeatmapIndividual
	if v := r.URL.Query().Get("mode"); v != "" {
		switch aggregate.HeatmapMode(v) {
		case aggregate.HeatmapIndividual, aggregate.HeatmapNeighborhood:
			mode = aggregate.HeatmapMode(v)
		default:
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown heatmap mode"})
			return
		}
	}
	daysBack, _ := intParam(r, "days_back")

	writeJSON(w, http.StatusOK, map[string]any{
		"points": s.engine.Heatmap(mode, daysBack, s.boundsParam(r)),
	})
}

func (s *Server) handleNeighborhoods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"neighborhoods": s.engine.Neighborhoods(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": s.engine.PredictiveAlerts(),
	})
}

func (s *Server) handlePlanRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Origin      model.LatLng      `json:"origin"`
		Destination model.LatLng      `json:"destination"`
		RouteType   model.RouteType   `json:"route_type"`
		Avoid       []model.RiskLevel `json:"avoid,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.RouteType == "" {
		req.RouteType = model.RouteTypeWalking
	}
	switch req.RouteType {
	case model.RouteTypeWalking, model.RouteTypeCycling, model.RouteTypeDriving, model.RouteTypeEmergency:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown route type"})
		return
	}

	route, err := s.engine.PlanRoute(r.Context(), req.Origin, req.Destination, req.RouteType, req.Avoid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"route": route})
}

// boundsParam reads a viewport from query params, falling back to the
// configured service bounds.
func (s *Server) boundsParam(r *http.Request) model.BBox {
	minLat, ok1 := floatParam(r, "min_lat")
	minLng, ok2 := floatParam(r, "min_lng")
	maxLat, ok3 := floatParam(r, "max_lat")
	maxLng, ok4 := floatParam(r, "max_lng")
	if ok1 && ok2 && ok3 && ok4 {
		return model.BBox{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}
	}
	return s.cfg.Bounds
}

func floatParam(r *http.Request, name string) (float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func intParam(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
