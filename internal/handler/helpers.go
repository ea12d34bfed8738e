package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeChatError переводит *chat.Error в HTTP-статус; причина сбоя хранилища клиенту не отдаётся.
func writeChatError(w http.ResponseWriter, op string, err error) {
	ce := chat.AsError(err)
	status := chatStatus(ce.Code)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s: %v", op, err)
	}
	writeJSON(w, status, errorResponse{Error: ce.Message, Code: string(ce.Code)})
}

func chatStatus(code chat.Code) int {
	switch code {
	case chat.CodeAuthRequired, chat.CodeInvalidCredential:
		return http.StatusUnauthorized
	case chat.CodeAccessDenied:
		return http.StatusForbidden
	case chat.CodeRoomNotFound:
		return http.StatusNotFound
	case chat.CodeAlreadyClosed:
		return http.StatusConflict
	case chat.CodeRateLimited:
		return http.StatusTooManyRequests
	case chat.CodeNotJoined, chat.CodeEmptyMessage, chat.CodeInvalidPayload, chat.CodeUnknownEvent:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

var errBadRoomID = errors.New("invalid room id")

func roomIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roomId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadRoomID
	}
	return id, nil
}
