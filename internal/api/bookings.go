package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"classbook/internal/export"
	"classbook/internal/models"

	"github.com/go-chi/chi/v5"
)

type createBookingRequest struct {
	ID       string `json:"id" validate:"required,max=64"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Time     string `json:"time" validate:"required,datetime=15:04"`
	Room     string `json:"room" validate:"required,max=32"`
	Priority int    `json:"priority"`
}

func (req createBookingRequest) toModel() (*models.Booking, error) {
	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return nil, ValidationErrors{{Field: "date", Message: "invalid date"}}
	}
	tod, err := models.ParseTimeOfDay(req.Time)
	if err != nil {
		return nil, ValidationErrors{{Field: "time", Message: "invalid time"}}
	}
	return &models.Booking{
		ID:       req.ID,
		Date:     date,
		Time:     tod,
		Room:     req.Room,
		Priority: req.Priority,
	}, nil
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.ListAll(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bookings))
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := h.validator.decode(r, &req); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	candidate, err := req.toModel()
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	b, err := h.bookings.CreateBooking(r.Context(), candidate)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// deleteBooking removes a booking and answers with the bookings that remain.
func (h *Handler) deleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.bookings.DeleteBooking(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	h.listBookings(w, r)
}

func (h *Handler) makeReservation(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.MakeReservation(r.Context(), chi.URLParam(r, "id"), callerFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) cancelReservation(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.CancelReservation(r.Context(), chi.URLParam(r, "id"), callerFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) myReservations(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.ListByOwner(r.Context(), callerFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bookings))
}

func (h *Handler) exportBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.ListAll(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, h.sheetName, bookings); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	fileName := fmt.Sprintf("bookings_%s.xlsx", h.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func nonNil(bookings []*models.Booking) []*models.Booking {
	if bookings == nil {
		return []*models.Booking{}
	}
	return bookings
}
