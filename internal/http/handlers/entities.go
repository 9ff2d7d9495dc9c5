package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiakap/travel-planner-v1/internal/planner"
)

func (a *App) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var in planner.TripInput
	if !a.decode(w, r, &in) {
		return
	}
	trip, err := a.Planner.CreateTrip(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, trip)
}

func (a *App) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := a.Planner.GetTrip(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, trip)
}

func (a *App) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	var in planner.TripInput
	if !a.decode(w, r, &in) {
		return
	}
	trip, err := a.Planner.UpdateTrip(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, trip)
}

func (a *App) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var in planner.SegmentInput
	if !a.decode(w, r, &in) {
		return
	}
	seg, err := a.Planner.CreateSegment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, seg)
}

func (a *App) GetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := a.Planner.GetSegment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, seg)
}

func (a *App) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	var in planner.SegmentInput
	if !a.decode(w, r, &in) {
		return
	}
	seg, err := a.Planner.UpdateSegment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, seg)
}

func (a *App) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var in planner.ReservationInput
	if !a.decode(w, r, &in) {
		return
	}
	res, err := a.Planner.CreateReservation(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, res)
}

func (a *App) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := a.Planner.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) UpdateReservation(w http.ResponseWriter, r *http.Request) {
	var in planner.ReservationInput
	if !a.decode(w, r, &in) {
		return
	}
	res, err := a.Planner.UpdateReservation(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
