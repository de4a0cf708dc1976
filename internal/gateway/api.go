package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/CosmoTheDev/procwatch/internal/comparator"
	"github.com/CosmoTheDev/procwatch/internal/queue"
	"github.com/CosmoTheDev/procwatch/internal/repository"
	"github.com/CosmoTheDev/procwatch/models"
)

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (gw *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"uptime_seconds": int64(time.Since(gw.startedAt).Seconds()),
		"queue_length":   gw.queue.Len(),
		"queue_capacity": gw.queue.Cap(),
		"tenants":        len(gw.cfg.Tenants),
	}
	if logs, err := gw.store.ListRecentScanLogs(r.Context(), 1); err == nil && len(logs) > 0 {
		status["last_scan"] = logs[0]
	}
	writeJSON(w, http.StatusOK, status)
}

// handleEnqueueScan queues an on-demand scan. A full queue is the caller's
// problem: 429, no waiting.
func (gw *Gateway) handleEnqueueScan(w http.ResponseWriter, r *http.Request) {
	var req queue.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if gw.cfg.Tenant(req.TenantID) == nil {
		writeError(w, http.StatusNotFound, "unknown tenant")
		return
	}
	if req.Environment != "" && !models.ValidEnvironment(req.Environment) {
		writeError(w, http.StatusBadRequest, "unknown environment "+req.Environment)
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "api"
	}
	if err := gw.queue.Enqueue(req); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":       true,
		"queue_length": gw.queue.Len(),
	})
}

func (gw *Gateway) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	logs, err := gw.store.ListRecentScanLogs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": logs, "count": len(logs)})
}

func (gw *Gateway) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log, err := gw.store.GetScanLog(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entries, err := gw.store.ListScanEntries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scan": log, "entries": entries})
}

func (gw *Gateway) handleScanChanges(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	changes, err := gw.store.ListChanges(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": changes, "count": len(changes)})
}

func (gw *Gateway) handleCompare(w http.ResponseWriter, r *http.Request) {
	sideA := comparator.Side{
		TenantID:    queryInt(r, "tenant_a", 0),
		Environment: strings.TrimSpace(r.URL.Query().Get("env_a")),
	}
	sideB := comparator.Side{
		TenantID:    queryInt(r, "tenant_b", 0),
		Environment: strings.TrimSpace(r.URL.Query().Get("env_b")),
	}
	for _, side := range []*comparator.Side{&sideA, &sideB} {
		tenant := gw.cfg.Tenant(side.TenantID)
		if tenant == nil {
			writeError(w, http.StatusNotFound, "unknown tenant")
			return
		}
		side.TenantCode = tenant.Code
		if !models.ValidEnvironment(side.Environment) {
			writeError(w, http.StatusBadRequest, "unknown environment "+side.Environment)
			return
		}
	}
	summary, err := gw.comp.Compare(r.Context(), sideA, sideB, strings.TrimSpace(r.URL.Query().Get("kind")))
	if err != nil {
		if errors.Is(err, repository.ErrInvariant) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (gw *Gateway) handleDiff(w http.ResponseWriter, r *http.Request) {
	idA := queryInt(r, "snapshot_a", 0)
	idB := queryInt(r, "snapshot_b", 0)
	if idA <= 0 || idB <= 0 {
		writeError(w, http.StatusBadRequest, "snapshot_a and snapshot_b are required")
		return
	}
	diff, err := gw.comp.DiffSnapshots(r.Context(), int64(idA), int64(idB))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identical":     diff.Identical,
		"lines_added":   diff.LinesAdded,
		"lines_removed": diff.LinesRemoved,
		"html":          diff.HTML(),
	})
}

func (gw *Gateway) handleListBaselines(w http.ResponseWriter, r *http.Request) {
	baselines, err := gw.baselines.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": baselines, "count": len(baselines)})
}

func (gw *Gateway) handleCreateBaseline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		TenantID    int    `json:"tenant_id"`
		Environment string `json:"environment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	b, err := gw.baselines.Create(r.Context(), req.Name, req.Description, req.TenantID, req.Environment, "api")
	switch {
	case errors.Is(err, repository.ErrDuplicateBaselineName):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrInvariant):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		// Covers the empty-target case: the caller must scan first.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeJSON(w, http.StatusCreated, b)
	}
}

func (gw *Gateway) handleGetBaseline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, objects, err := gw.baselines.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "baseline not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"baseline": b, "objects": objects})
}

func (gw *Gateway) handleDeleteBaseline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.baselines.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "baseline not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (gw *Gateway) handleCompareBaseline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := gw.baselines.CompareToLive(r.Context(), id,
		queryInt(r, "tenant_id", 0), strings.TrimSpace(r.URL.Query().Get("environment")))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "baseline not found")
	case errors.Is(err, repository.ErrInvariant):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}
