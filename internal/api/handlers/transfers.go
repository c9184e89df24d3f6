package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/transfer"
)

// TransfersHandler serves transfer detection and linking endpoints.
type TransfersHandler struct {
	detector *transfer.Detector
	log      zerolog.Logger
}

// NewTransfersHandler creates a transfers handler.
func NewTransfersHandler(detector *transfer.Detector, log zerolog.Logger) *TransfersHandler {
	return &TransfersHandler{detector: detector, log: log}
}

// Detect handles POST /api/transfers/detect
func (h *TransfersHandler) Detect(w http.ResponseWriter, r *http.Request) {
	detected, err := h.detector.Detect(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Transfer detection failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Transfer detection failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transfers": detected,
		"count":     len(detected),
	})
}

// Link handles POST /api/transfers/link
func (h *TransfersHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OutgoingID string `json:"outgoing_id"`
		IncomingID string `json:"incoming_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OutgoingID == "" || req.IncomingID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "outgoing_id and incoming_id are required")
		return
	}

	if err := h.detector.LinkAsTransfer(r.Context(), req.OutgoingID, req.IncomingID); err != nil {
		h.log.Error().Err(err).
			Str("outgoing_id", req.OutgoingID).
			Str("incoming_id", req.IncomingID).
			Msg("Transfer link failed")
		writeStoreError(w, err, "Transfer link failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"outgoing_id": req.OutgoingID,
		"incoming_id": req.IncomingID,
		"status":      "linked",
	})
}

// Unlink handles POST /api/transfers/unlink
func (h *TransfersHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	if err := h.detector.UnlinkTransfer(r.Context(), req.TransactionID); err != nil {
		writeStoreError(w, err, "Transfer unlink failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"transaction_id": req.TransactionID,
		"status":         "unlinked",
	})
}
