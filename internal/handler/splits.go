package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/splitbill/internal/service"
	"github.com/mmynk/splitbill/internal/validator"
)

type recognizeRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *Handler) calculateSplit(w http.ResponseWriter, r *http.Request) {
	req, err := validator.Decode[service.SplitRequest](r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	calc, err := h.splits.Calculate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (h *Handler) saveSplit(w http.ResponseWriter, r *http.Request) {
	req, err := validator.Decode[service.SplitRequest](r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.splits.Save(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) listSplits(w http.ResponseWriter, r *http.Request) {
	splits, err := h.splits.History(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"splits": splits})
}

func (h *Handler) getSplit(w http.ResponseWriter, r *http.Request) {
	split, err := h.splits.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}

func (h *Handler) deleteSplit(w http.ResponseWriter, r *http.Request) {
	if err := h.splits.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) shareSplit(w http.ResponseWriter, r *http.Request) {
	split, err := h.splits.Share(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}

func (h *Handler) recognizeReceipt(w http.ResponseWriter, r *http.Request) {
	req, err := validator.Decode[recognizeRequest](r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	draft, err := h.splits.Recognize(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}
