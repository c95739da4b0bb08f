// Command mock-settlement stands in for the external settlement network.
// The outcome is chosen by the destination account number:
//
//	ending in 0000  declined
//	ending in 9999  503, the network is unavailable
//	anything else   accepted
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/settlement"
)

func main() {
	logging.Init("mock-settlement", "info", os.Getenv("APP_ENV"))

	var latency time.Duration
	if v := os.Getenv("MOCK_LATENCY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid MOCK_LATENCY", "error", err)
			os.Exit(1)
		}
		latency = d
	}

	slog.Info("mock settlement started", "addr", ":8081", "latency", latency)
	if err := http.ListenAndServe(":8081", newMux(latency)); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newMux(latency time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /settle", func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		settle(w, r)
	})
	return mux
}

func settle(w http.ResponseWriter, r *http.Request) {
	var req settlement.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountNumber == "" {
		writeJSON(w, http.StatusBadRequest, settlement.Response{Status: string(settlement.OutcomeDeclined), Reason: "malformed request"})
		return
	}

	log := slog.With("transfer_id", req.TransferID, "account_number", req.AccountNumber)

	switch {
	case strings.HasSuffix(req.AccountNumber, "9999"):
		log.Info("settlement unavailable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "network unavailable"})
	case strings.HasSuffix(req.AccountNumber, "0000"):
		log.Info("settlement declined")
		writeJSON(w, http.StatusOK, settlement.Response{Status: string(settlement.OutcomeDeclined), Reason: "beneficiary account closed"})
	default:
		ref := "STL-" + strings.ToUpper(uuid.NewString()[:8])
		log.Info("settlement accepted", "reference", ref, "amount", req.Amount.String())
		writeJSON(w, http.StatusOK, settlement.Response{Status: string(settlement.OutcomeAccepted), Reference: ref})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
