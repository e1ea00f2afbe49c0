// Package ingress exposes the webhook listener that feeds normalized alert
// events into the lifecycle tracker. It parses Grafana's Alertmanager-shaped
// webhook payloads; everything stateful happens behind the Processor.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"alertbridge/internal/alert"
	"alertbridge/internal/tracker"
	logx "alertbridge/pkg/logx"
)

// Processor applies one normalized event; implemented by tracker.Tracker.
type Processor interface {
	Process(ctx context.Context, ev alert.Event) (tracker.Transition, error)
}

type Server struct {
	proc Processor
	log  logx.Logger
}

func NewServer(proc Processor, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{proc: proc, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/webhook/grafana", s.handleWebhook)
	// Alias kept for plain Alertmanager senders; same payload shape.
	r.Post("/webhook/alertmanager", s.handleWebhook)

	return r
}

type webhookResponse struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
	Rejected  int `json:"rejected"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		s.log.Warn("webhook body undecodable", logx.Err(err))
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	resp := webhookResponse{Received: len(payload.Alerts)}
	for _, raw := range payload.Alerts {
		ev, err := normalizeAlert(raw)
		if err != nil {
			// Malformed alerts are rejected and logged; the rest of the
			// batch still goes through.
			resp.Rejected++
			s.log.Warn("rejecting webhook alert", logx.Err(err))
			continue
		}

		tran, err := s.proc.Process(r.Context(), ev)
		if err != nil {
			if errors.Is(err, alert.ErrMissingFingerprint) {
				resp.Rejected++
				continue
			}
			// Storage or notification failure: surface loudly, the sender
			// redelivers.
			s.log.Error("processing alert event failed",
				logx.String("fingerprint", ev.Fingerprint),
				logx.String("status", string(ev.Status)),
				logx.Err(err),
			)
			http.Error(w, "processing failed", http.StatusInternalServerError)
			return
		}
		resp.Processed++
		s.log.Debug("webhook alert processed",
			logx.String("fingerprint", ev.Fingerprint),
			logx.String("transition", string(tran)),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
