package http

import (
	"encoding/json"
	"net/http"

	"github.com/hibiken/asynq"

	"sftpush/pkg/logger"
)

type TaskPublisher interface {
	PublishUploadTask(settingsPath, keyPath string) (*asynq.TaskInfo, error)
}

type HTTPHandler struct {
	publisher TaskPublisher
	logger    *logger.Logger
}

type PublishRequest struct {
	SettingsFilePath    string `json:"settings_file_path"`
	SettingsKeyFilePath string `json:"settings_key_file_path"`
}

type PublishResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewHTTPHandler(publisher TaskPublisher, log *logger.Logger) *HTTPHandler {
	if log == nil {
		log = logger.NewDefault()
	}
	return &HTTPHandler{
		publisher: publisher,
		logger:    log,
	}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/publish", h.PublishHandler)
}

func (h *HTTPHandler) PublishHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if req.SettingsFilePath == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "settings_file_path is required")
		return
	}

	info, err := h.publisher.PublishUploadTask(req.SettingsFilePath, req.SettingsKeyFilePath)
	if err != nil {
		h.logger.Error("failed to publish task", err, map[string]any{
			"settings_file": req.SettingsFilePath,
		})
		h.sendErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("task published via HTTP", map[string]any{
		"settings_file": req.SettingsFilePath,
		"task_id":       info.ID,
	})

	h.sendResponse(w, http.StatusOK, PublishResponse{
		Success: true,
		Message: "task published successfully",
		TaskID:  info.ID,
	})
}

func (h *HTTPHandler) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.sendResponse(w, statusCode, PublishResponse{
		Success: false,
		Error:   message,
	})
}

func (h *HTTPHandler) sendResponse(w http.ResponseWriter, statusCode int, response PublishResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", err, nil)
	}
}
