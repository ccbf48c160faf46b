package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Skufu/symptomcheck/internal/classifier"
	"github.com/Skufu/symptomcheck/internal/dataset"
	"github.com/Skufu/symptomcheck/internal/logging"
)

type PredictRequest struct {
	Symptoms []string `json:"symptoms" binding:"required,min=1"`
}

type SymptomInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type DiseaseInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// bindPredictRequest reports a missing or empty symptom list as the client
// error the frontend expects, and anything else as an invalid payload.
func bindPredictRequest(c *gin.Context) (PredictRequest, bool) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No symptoms provided"})
			return req, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return req, false
	}
	return req, true
}

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"message":      "Medical ML API is running",
		"model_loaded": a.pipeline.Ready(),
		"model_state":  a.pipeline.State().String(),
	})
}

// breakerReporter is implemented by history backends guarded by a circuit
// breaker.
type breakerReporter interface {
	BreakerState() string
}

func (a *api) readyz(c *gin.Context) {
	modelStatus := "ok"
	if !a.pipeline.Ready() {
		modelStatus = a.pipeline.State().String()
	}

	dbStatus := "disabled"
	if a.history != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus = "ok"
		if err := a.history.Ping(ctx); err != nil {
			dbStatus = fmt.Sprintf("unhealthy: %v", err)
		}
	}

	body := gin.H{
		"status": "ok",
		"model":  modelStatus,
		"db":     dbStatus,
	}
	if b, ok := a.history.(breakerReporter); ok {
		body["history_breaker"] = b.BreakerState()
	}

	if modelStatus != "ok" || (dbStatus != "ok" && dbStatus != "disabled") {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (a *api) predict(c *gin.Context) {
	req, ok := bindPredictRequest(c)
	if !ok {
		return
	}

	snapshot := a.pipeline.Snapshot()
	predictions, err := a.pipeline.PredictWith(snapshot, req.Symptoms)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Prediction failed: %v", err)})
		return
	}

	if a.history != nil && len(predictions) > 0 {
		a.recordPrediction(c.Request.Context(), req.Symptoms, predictions[0], snapshot.Generation)
	}

	c.JSON(http.StatusOK, gin.H{
		"predictions":             predictions,
		"input_symptoms":          req.Symptoms,
		"total_symptoms_in_model": len(a.pipeline.Vocabulary()),
		"model_type":              classifier.ModelType,
	})
}

// recordPrediction is best effort; history failures never fail a prediction.
func (a *api) recordPrediction(parent context.Context, symptoms []string, top classifier.Prediction, generation string) {
	ctx, cancel := context.WithTimeout(parent, time.Second)
	defer cancel()

	if _, err := a.history.Record(ctx, symptoms, top.Disease, top.Confidence, generation); err != nil {
		logging.Warn().Err(err).Msg("prediction history write failed")
	}
}

func (a *api) match(c *gin.Context) {
	req, ok := bindPredictRequest(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"predictions":    dataset.Match(req.Symptoms),
		"input_symptoms": req.Symptoms,
		"model_type":     "Symptom Overlap",
	})
}

func (a *api) symptoms(c *gin.Context) {
	vocab := a.pipeline.Vocabulary()
	out := make([]SymptomInfo, 0, len(vocab))
	for _, s := range vocab {
		out = append(out, SymptomInfo{ID: s, Name: dataset.SymptomName(s), Category: dataset.SymptomCategory})
	}

	c.JSON(http.StatusOK, gin.H{
		"symptoms":    out,
		"total_count": len(out),
	})
}

func (a *api) diseases(c *gin.Context) {
	names := dataset.DiseaseNames()
	out := make([]DiseaseInfo, 0, len(names))
	for _, n := range names {
		out = append(out, DiseaseInfo{ID: dataset.DiseaseID(n), Name: n, Category: dataset.DiseaseCategory})
	}

	c.JSON(http.StatusOK, gin.H{
		"diseases":    out,
		"total_count": len(out),
	})
}

func (a *api) modelInfo(c *gin.Context) {
	info, err := a.pipeline.ModelInfo()
	if errors.Is(err, classifier.ErrModelNotReady) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Model not loaded"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to get model info: %v", err)})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (a *api) datasetStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.pipeline.Dataset().Stats())
}

func (a *api) recentPredictions(c *gin.Context) {
	if a.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prediction history is disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	entries, err := a.history.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load history: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"predictions": entries,
		"total_count": len(entries),
	})
}

func (a *api) retrain(c *gin.Context) {
	result, err := a.pipeline.Retrain(c.Request.Context())
	if err != nil {
		logging.Error().Err(err).Msg("retrain failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Retraining failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Model retrained successfully",
		"accuracy":      result.Accuracy,
		"total_samples": result.TotalSamples,
	})
}
