/*
Package handler provides HTTP handler functions for rooms, membership, and
the per-room message log.
*/
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/req"
	"parley/internal/pkg/resp"
)

type CreateRoomInput struct {
	Name string `json:"name" validate:"required"`
}

// HandleCreateRoom creates a room with a unique name and empty membership.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateRoomInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, customErr := deps.Chat.CreateRoom(r.Context(), input.Name)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondCreated(w, r, map[string]any{"room": room})
	}
}

// HandleListRooms returns every room with its membership.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, customErr := deps.Chat.ListRooms(r.Context())
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"rooms": rooms})
	}
}

// HandleGetRoom returns one room's detail, member ids included.
func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, customErr := deps.Chat.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"room": room})
	}
}

// HandleJoinRoom adds the authenticated caller to the room's member set and
// subscribes their open sessions. Joining twice is a no-op success.
func HandleJoinRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomID := chi.URLParam(r, "roomID")

		if customErr := deps.Chat.JoinRoom(r.Context(), roomID, identity.ID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"room_id": roomID,
			"user_id": identity.ID,
		})
	}
}

type PostMessageInput struct {
	Text string `json:"text"`
}

// HandlePostMessage appends a message to the room's log. The sender becomes
// a member of the room as a side effect, and the message fans out to every
// subscribed session.
func HandlePostMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PostMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, customErr := deps.Chat.PostMessage(r.Context(), chi.URLParam(r, "roomID"), identity.ID, input.Text)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondCreated(w, r, map[string]any{"message": msg})
	}
}

// HandleListMessages returns the room's most recent messages, newest first.
// An optional limit query parameter narrows the window below the 50 cap.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = parsed
		}

		messages, customErr := deps.Chat.ListMessages(r.Context(), chi.URLParam(r, "roomID"), limit)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": messages})
	}
}
