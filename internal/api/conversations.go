package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/parleychat/parley/internal/api/response"
	"github.com/parleychat/parley/internal/core"
	"go.uber.org/zap"
)

const defaultListLimit = 50

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)

	convs, err := s.store.ListConversations(r.Context(), limit, offset)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, convs)
}

type createConversationRequest struct {
	Title    string `json:"title"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var body createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}

	conv := &core.Conversation{
		Title:    body.Title,
		Provider: core.ParseProvider(body.Provider, s.cfg.DefaultProvider()),
		Model:    body.Model,
	}
	if err := s.store.CreateConversation(r.Context(), conv); err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	if s.registry != nil {
		s.registry.RecordConversationCreated()
	}
	response.JSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetConversation(r.Context(), id); err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	msgs, err := s.store.Messages(r.Context(), id)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, msgs)
}

func (s *Server) handleArchiveConversation(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		response.Error(w, http.StatusInternalServerError,
			core.Errorf(core.ErrArchiveFailed, "archive backend not configured"))
		return
	}

	id := r.PathValue("id")
	path, err := s.exporter.Export(r.Context(), id)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	s.logger.Info("archived conversation",
		zap.String("conversation_id", id),
		zap.String("path", path),
	)
	response.JSON(w, http.StatusOK, map[string]string{"path": path})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
