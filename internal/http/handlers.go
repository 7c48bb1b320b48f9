package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pesa/internal/amqp"
	"pesa/internal/core"
	"pesa/internal/ingest"
	"pesa/internal/ledger"
	"pesa/internal/log"
	"pesa/internal/services"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		writeUnavailable(w, r, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleIngestMessage queues the SMS when a publisher is configured and
// ingests it inline otherwise, or when publishing fails.
func (s *Server) handleIngestMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Body = strings.TrimSpace(sanitizeInput(req.Body))
	if req.Body == "" {
		writeError(w, r, http.StatusBadRequest, "body is required")
		return
	}
	raw := core.RawMessage{Body: req.Body, Timestamp: req.Timestamp, TransportID: req.TransportID}
	ctx := r.Context()
	logger := log.FromContext(ctx)

	if s.publisher != nil {
		msg := amqp.NewSMSReceivedMessage(raw)
		err := s.publisher.PublishSMS(ctx, msg)
		if err == nil {
			writeJSON(w, r, http.StatusAccepted, MessageResponse{Queued: true, ID: msg.ID})
			return
		}
		logger.WarnContext(ctx, "Publish failed, ingesting inline",
			log.FieldTransportID, raw.TransportID,
			log.FieldError, err)
	}

	outcome, err := s.ledger.Ingest(ctx, raw)
	if err != nil {
		if ingest.IsRetryable(err) {
			logger.ErrorContext(ctx, "Ingest failed", log.FieldError, err)
			writeUnavailable(w, r, "storage unavailable, retry later")
			return
		}
		writeInternal(w, r, log.OpIngest, err)
		return
	}

	status := http.StatusOK
	switch outcome {
	case core.Inserted:
		status = http.StatusCreated
	case core.Rejected:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, r, status, MessageResponse{Outcome: outcome.String()})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.ledger.Scan(r.Context(), req.LookbackMonths)
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, toScanResponse(res))
	case errors.Is(err, services.ErrNoInbox):
		writeError(w, r, http.StatusNotImplemented, err.Error())
	case errors.Is(err, ingest.ErrInvalidLookback):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case ingest.IsRetryable(err):
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Scan interrupted",
			log.FieldOperation, log.OpScan,
			log.FieldError, err,
			"inserted", res.Inserted)
		writeUnavailable(w, r, "storage unavailable, retry later")
	default:
		writeInternal(w, r, log.OpScan, err)
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, hasFrom, err := parseTimeParam(q, "from", false)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	to, hasTo, err := parseTimeParam(q, "to", true)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var txs []core.Transaction
	if hasFrom || hasTo {
		if !hasTo {
			to = s.now().UTC()
		}
		if to.Before(from) {
			writeError(w, r, http.StatusBadRequest, "to must not be before from")
			return
		}
		txs, err = s.ledger.ListBetween(r.Context(), from, to)
	} else {
		txs, err = s.ledger.List(r.Context())
	}
	if err != nil {
		writeInternal(w, r, log.OpList, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTransactionDTOs(txs))
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query(), "limit", defaultRecentLimit, 1, maxRecentLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	txs, err := s.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		writeInternal(w, r, log.OpList, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTransactionDTOs(txs))
}

func (s *Server) handleCountTransactions(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.Count(r.Context())
	if err != nil {
		writeInternal(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.Get(r.Context(), r.PathValue("receipt"))
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		writeInternal(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTransactionDTO(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.Delete(r.Context(), r.PathValue("receipt"))
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		writeInternal(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteAllTransactions clears the ledger; ?confirm=true is required.
func (s *Server) handleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, r, http.StatusBadRequest, "add confirm=true to delete every transaction")
		return
	}
	n, err := s.ledger.DeleteAll(r.Context())
	if err != nil {
		writeInternal(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := s.ledger.Insights(r.Context())
	if err != nil {
		writeInternal(w, r, "insights", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toInsightsDTO(insights))
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	minCount, err := parseIntParam(r.URL.Query(), "min_count", 0, 1, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.ledger.Suggestions(r.Context(), minCount)
	if err != nil {
		writeInternal(w, r, "suggestions", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSuggestionDTOs(out))
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.ListOverrides(r.Context())
	if err != nil {
		writeInternal(w, r, log.OpList, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOverrideDTOs(list))
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideDTO
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	o, err := s.ledger.SetOverride(r.Context(), core.Override{
		Scope:    core.OverrideScope(strings.ToLower(req.Scope)),
		Key:      sanitizeInput(req.Key),
		Category: sanitizeInput(req.Category),
	})
	if errors.Is(err, core.ErrInvalidOverride) {
		writeError(w, r, http.StatusBadRequest, "scope must be receipt or merchant, key and category are required")
		return
	}
	if err != nil {
		writeInternal(w, r, "set override", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOverrideDTOs([]core.Override{o})[0])
}

func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	scope := core.OverrideScope(strings.ToLower(r.PathValue("scope")))
	if scope != core.ScopeReceipt && scope != core.ScopeMerchant {
		writeError(w, r, http.StatusBadRequest, "scope must be receipt or merchant")
		return
	}
	err := s.ledger.DeleteOverride(r.Context(), scope, r.PathValue("key"))
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "override not found")
		return
	}
	if err != nil {
		writeInternal(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
