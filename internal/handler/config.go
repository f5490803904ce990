package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/RobertDiep/dify-slackbot/internal/middleware"
	"github.com/RobertDiep/dify-slackbot/internal/service"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
	"github.com/RobertDiep/dify-slackbot/pkg/metrics"
)

// ConfigStore reads and replaces the raw channel configuration.
type ConfigStore interface {
	Raw(ctx context.Context) ([]byte, bool, error)
	Save(ctx context.Context, raw []byte) error
}

// ConfigHandler serves the channel configuration over the admin API.
type ConfigHandler struct {
	store  ConfigStore
	logger *logger.Logger
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(s ConfigStore, log *logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		store:  s,
		logger: log,
	}
}

// Get handles GET /api/v1/config
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw, ok, err := h.store.Raw(r.Context())
	if err != nil {
		h.logger.Error("failed to read config", zap.Error(err))
		metrics.RecordAdminCommand("get_config", "error")
		writeError(w, http.StatusInternalServerError, "failed to read config")
		return
	}
	if !ok || len(raw) == 0 {
		metrics.RecordAdminCommand("get_config", "empty")
		writeError(w, http.StatusNotFound, "no config found")
		return
	}

	metrics.RecordAdminCommand("get_config", "ok")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// Put handles PUT /api/v1/config
func (h *ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, middleware.MaxConfigSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := middleware.ValidateConfigPayload(body); err != nil {
		metrics.RecordAdminCommand("set_config", "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.store.Save(r.Context(), body)
	var invalid *service.InvalidConfigError
	switch {
	case errors.As(err, &invalid):
		metrics.RecordAdminCommand("set_config", "invalid")
		writeError(w, http.StatusBadRequest, "invalid JSON: "+invalid.Err.Error())
		return
	case err != nil:
		h.logger.Error("failed to save config", zap.Error(err))
		metrics.RecordAdminCommand("set_config", "error")
		writeError(w, http.StatusInternalServerError, "failed to save config")
		return
	}

	h.logger.Info("config replaced over admin API",
		zap.String("subject", middleware.GetSubject(r.Context())),
		zap.Int("bytes", len(body)),
	)
	metrics.RecordAdminCommand("set_config", "ok")
	w.WriteHeader(http.StatusNoContent)
}
