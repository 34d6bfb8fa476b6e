package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phishguard/risk-engine/internal/ports"
)

func modelStatus(m ports.ModelAdmin) gin.H {
	return gin.H{
		"loaded":          m.Loaded(),
		"current_version": m.CurrentVersion(),
		"versions":        m.ListVersions(),
	}
}

func (h *Handler) byModelType(modelType string) (ports.ModelAdmin, bool) {
	switch modelType {
	case "url":
		return h.urlModel, true
	case "email":
		return h.emailModel, true
	}
	return nil, false
}

func (h *Handler) ModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"url":   modelStatus(h.urlModel),
		"email": modelStatus(h.emailModel),
	})
}

type switchRequest struct {
	ModelType string `json:"model_type"`
	Version   string `json:"version"`
}

func (h *Handler) SwitchModel(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	model, ok := h.byModelType(req.ModelType)
	if !ok {
		badRequest(c, "model_type must be \"url\" or \"email\"")
		return
	}
	if req.Version == "" {
		badRequest(c, "version is required")
		return
	}

	if err := model.SwitchVersion(req.Version); err != nil {
		// The active model is untouched on failure, so this is a client
		// problem (unknown or broken version), not a server fault.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"model_type":      req.ModelType,
		"current_version": model.CurrentVersion(),
	})
}

type retrainRequest struct {
	ModelType   string `json:"model_type"`
	DatasetPath string `json:"dataset_path"`
}

// RetrainModel starts training in the background and returns immediately.
// The new model is only activated after its artifacts are fully written, so
// in-flight requests keep using the current snapshot throughout.
func (h *Handler) RetrainModel(c *gin.Context) {
	var req retrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	model, ok := h.byModelType(req.ModelType)
	if !ok {
		badRequest(c, "model_type must be \"url\" or \"email\"")
		return
	}
	if req.DatasetPath == "" {
		badRequest(c, "dataset_path is required")
		return
	}

	go func() {
		report, err := model.Train(req.DatasetPath)
		if err != nil {
			slog.Error("model retraining failed",
				"model_type", req.ModelType,
				"dataset", req.DatasetPath,
				"error", err)
			return
		}
		slog.Info("model retraining complete",
			"model_type", req.ModelType,
			"version", report.Version,
			"accuracy", report.Accuracy)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "training started",
		"model_type": req.ModelType,
	})
}
