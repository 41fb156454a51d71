package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ptmflow/ptmflow/internal/app/cancel"
	"github.com/ptmflow/ptmflow/internal/app/create"
	"github.com/ptmflow/ptmflow/internal/app/history"
	"github.com/ptmflow/ptmflow/internal/app/list"
	"github.com/ptmflow/ptmflow/internal/app/remove"
	"github.com/ptmflow/ptmflow/internal/app/start"
	"github.com/ptmflow/ptmflow/internal/app/status"
	"github.com/ptmflow/ptmflow/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req apiCreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := s.createSvc.Create(r.Context(), create.CreateOptions{
		Config: model.OrderConfig{Code: req.Code, ProjectName: req.ProjectName},
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, mapOrder(*order))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := s.listSvc.Run(r.Context(), list.Request{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := apiOrderList{Orders: make([]apiOrder, 0, len(orders))}
	for _, o := range orders {
		out.Orders = append(out.Orders, mapOrder(o))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.statusSvc.Run(r.Context(), status.Request{CodeOrID: r.PathValue("ref")})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, mapOrder(*order))
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	order, err := s.removeSvc.Run(r.Context(), remove.Request{
		CodeOrID: r.PathValue("ref"),
		Force:    force,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, mapOrder(*order))
}

func (s *Server) handleStartOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.startSvc.Run(r.Context(), start.Request{CodeOrID: r.PathValue("ref")})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// The pipeline runs asynchronously from here.
	s.writeJSON(w, http.StatusAccepted, mapOrder(*order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.cancelSvc.Run(r.Context(), cancel.Request{CodeOrID: r.PathValue("ref")})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, mapOrder(*order))
}

func (s *Server) handleOrderEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.historySvc.Run(r.Context(), history.Request{
		CodeOrID: r.PathValue("ref"),
		Stage:    r.URL.Query().Get("stage"),
		Limit:    limit,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, apiOrderEvents{
		Order:  mapOrder(res.Order),
		Events: mapEvents(res.Events),
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Could not encode response: %s", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, apiError{Error: msg})
}

// writeServiceError maps application errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrAlreadyExists):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrNotValid):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Errorf("Request failed: %s", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
