package api

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	defaultGenerateMin   = 100
	defaultGenerateMax   = 1000
	defaultGenerateCount = 100
)

type generateResponse struct {
	Message        string `json:"message"`
	TotalGenerated int    `json:"totalGenerated"`
}

type clearResponse struct {
	Message      string `json:"message"`
	TotalRemoved int    `json:"totalRemoved"`
}

func (h *Handler) generateRange(w http.ResponseWriter, r *http.Request) {
	minCount, err := intQuery(r, "min", defaultGenerateMin)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	maxCount, err := intQuery(r, "max", defaultGenerateMax)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	created, err := h.generator.GenerateRange(r.Context(), minCount, maxCount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Message:        fmt.Sprintf("Generated %d bookings", len(created)),
		TotalGenerated: len(created),
	})
}

func (h *Handler) generateExact(w http.ResponseWriter, r *http.Request) {
	count, err := intQuery(r, "count", defaultGenerateCount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	created, err := h.generator.GenerateExact(r.Context(), count)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Message:        fmt.Sprintf("Generated %d of %d requested bookings", len(created), count),
		TotalGenerated: len(created),
	})
}

func (h *Handler) clearAll(w http.ResponseWriter, r *http.Request) {
	removed, err := h.generator.ClearAll(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{
		Message:      "All bookings cleared",
		TotalRemoved: removed,
	})
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ValidationErrors{{Field: name, Message: name + " must be an integer"}}
	}
	return v, nil
}
