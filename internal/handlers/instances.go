package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gluk-w/shellbridge/internal/database"
	"github.com/gluk-w/shellbridge/internal/logutil"
	"github.com/gluk-w/shellbridge/internal/orchestrator"
	"github.com/gluk-w/shellbridge/internal/resolver"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// MsgInstanceTerminated is sent to live sessions of a destroyed instance.
const MsgInstanceTerminated = "Instance terminated"

type spawnRequest struct {
	Name string `json:"name"`
}

type spawnResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"`
	PublicDNS  string `json:"publicDns"`
}

type destroyResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	InstanceID string `json:"instanceId"`
	State      string `json:"state"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func writeFailure(w http.ResponseWriter, message string, err error) {
	writeJSON(w, http.StatusInternalServerError, failureResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

// SpawnInstance launches one instance. The body is optional.
func SpawnInstance(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	orch := orchestrator.Get()
	if orch == nil {
		writeFailure(w, "Failed to spawn EC2 instance", errors.New("no orchestrator available"))
		return
	}

	log.Printf("[orchestrator] spawning instance for %s", logutil.SanitizeForLog(r.RemoteAddr))
	inst, err := orch.CreateInstance(r.Context(), orchestrator.CreateParams{Name: req.Name})
	if err != nil {
		log.Printf("[orchestrator] spawn failed: %s", logutil.SanitizeForLog(err.Error()))
		writeFailure(w, "Failed to spawn EC2 instance", err)
		return
	}

	if database.DB != nil {
		rec := &database.Instance{
			InstanceID: inst.ID,
			Name:       inst.Name,
			Status:     inst.State,
			PublicIP:   inst.PublicIP,
			PublicDNS:  inst.PublicDNS,
		}
		if !inst.LaunchedAt.IsZero() {
			t := inst.LaunchedAt
			rec.LaunchedAt = &t
		}
		if err := database.RecordInstance(rec); err != nil {
			log.Printf("[orchestrator] recording instance %s: %v", inst.ID, err)
		}
	}

	publicDNS := inst.PublicDNS
	if publicDNS == "" {
		publicDNS = orchestrator.StatePending
	}
	writeJSON(w, http.StatusOK, spawnResponse{
		Success:    true,
		Message:    "EC2 instance spawned successfully",
		InstanceID: inst.ID,
		Status:     orchestrator.StatePending,
		PublicDNS:  publicDNS,
	})
}

// DestroyInstance terminates an instance and ends its live sessions.
func DestroyInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "id")

	orch := orchestrator.Get()
	if orch == nil {
		writeFailure(w, "Failed to terminate instance", errors.New("no orchestrator available"))
		return
	}

	state, err := orch.DeleteInstance(r.Context(), instanceID)
	if err != nil {
		log.Printf("[orchestrator] terminate %s failed: %s", logutil.SanitizeForLog(instanceID), logutil.SanitizeForLog(err.Error()))
		writeFailure(w, "Failed to terminate instance", err)
		return
	}

	if database.DB != nil {
		if err := database.MarkInstanceTerminated(instanceID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[orchestrator] marking %s terminated: %v", logutil.SanitizeForLog(instanceID), err)
		}
	}

	if Sessions != nil {
		for _, snap := range Sessions.ForInstance(instanceID) {
			if s, ok := Sessions.Get(snap.ConnID); ok {
				go s.Close(MsgInstanceTerminated)
			}
		}
	}

	writeJSON(w, http.StatusOK, destroyResponse{
		Success:    true,
		Message:    "EC2 instance terminated successfully",
		InstanceID: instanceID,
		State:      state,
	})
}

type instanceResponse struct {
	InstanceID   string     `json:"instanceId"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	PublicIP     string     `json:"publicIp,omitempty"`
	PublicDNS    string     `json:"publicDns,omitempty"`
	Sessions     int        `json:"sessions"`
	LaunchedAt   *time.Time `json:"launchedAt,omitempty"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ListInstances returns the recorded instances, newest first.
func ListInstances(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Database not available")
		return
	}
	instances, err := database.ListInstances()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances")
		return
	}

	result := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		live := 0
		if Sessions != nil {
			live = len(Sessions.ForInstance(inst.InstanceID))
		}
		result = append(result, instanceResponse{
			InstanceID:   inst.InstanceID,
			Name:         inst.Name,
			Status:       inst.Status,
			PublicIP:     inst.PublicIP,
			PublicDNS:    inst.PublicDNS,
			Sessions:     live,
			LaunchedAt:   inst.LaunchedAt,
			TerminatedAt: inst.TerminatedAt,
			CreatedAt:    inst.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// InstanceIP reports the public address of a running instance.
func InstanceIP(w http.ResponseWriter, r *http.Request) {
	if Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "Resolver not available")
		return
	}
	res, err := Resolver.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, resolveStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func resolveStatus(err error) int {
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resolver.ErrNotRunning), errors.Is(err, resolver.ErrAddressUnavailable):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
