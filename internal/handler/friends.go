package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/splitbill/internal/models"
	"github.com/mmynk/splitbill/internal/validator"
)

func (h *Handler) listFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.friends.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": friends})
}

func (h *Handler) addFriend(w http.ResponseWriter, r *http.Request) {
	req, err := validator.Decode[models.Friend](r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	friend, err := h.friends.Add(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, friend)
}

func (h *Handler) getOwner(w http.ResponseWriter, r *http.Request) {
	friend, err := h.friends.Owner(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friend)
}

func (h *Handler) getFriend(w http.ResponseWriter, r *http.Request) {
	friend, err := h.friends.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friend)
}

func (h *Handler) updateFriend(w http.ResponseWriter, r *http.Request) {
	req, err := validator.Decode[models.FriendUpdate](r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	friend, err := h.friends.Update(r.Context(), chi.URLParam(r, "id"), *req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friend)
}

func (h *Handler) deleteFriend(w http.ResponseWriter, r *http.Request) {
	if err := h.friends.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
