package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/snapbet/decision-engine/internal/engine"
	"github.com/snapbet/decision-engine/internal/metrics"
	"github.com/snapbet/decision-engine/internal/model"
	"github.com/snapbet/decision-engine/internal/position"
	"github.com/snapbet/decision-engine/internal/predict"
	"github.com/snapbet/decision-engine/internal/risk"
	"github.com/snapbet/decision-engine/internal/store"
)

const maxUploadBytes = 10 << 20 // 10 MiB screenshot cap

// Submitter submits prediction requests to the model service.
type Submitter interface {
	Submit(ctx context.Context, req predict.SubmitRequest) (string, error)
}

// JobPoller waits for a submitted job to reach a terminal state.
type JobPoller interface {
	Poll(ctx context.Context, jobID string) (*model.PredictionJob, error)
}

// QuoteFetcher supplies market snapshots for ticket construction.
type QuoteFetcher interface {
	Fetch(ctx context.Context, ticker string) *model.MarketQuote
}

// Service wires the HTTP surface to the engine packages. Submitted jobs are
// polled server-side on a context tied to the service lifetime, not the
// originating request, so clients can disconnect and come back.
type Service struct {
	store     store.Store
	submitter Submitter
	poller    JobPoller
	quotes    QuoteFetcher
	positions *position.Service
	hub       *WSHub
	logger    *slog.Logger

	lifeCtx context.Context
	polls   sync.WaitGroup
}

// NewService creates the API service. lifeCtx bounds background polling;
// cancel it during shutdown. hub may be nil.
func NewService(lifeCtx context.Context, st store.Store, submitter Submitter, poller JobPoller, quotes QuoteFetcher, positions *position.Service, hub *WSHub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		submitter: submitter,
		poller:    poller,
		quotes:    quotes,
		positions: positions,
		hub:       hub,
		logger:    logger,
		lifeCtx:   lifeCtx,
	}
}

// Routes mounts all API routes on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/predictions", s.SubmitPrediction)
	r.Get("/predictions", s.ListPredictions)
	r.Get("/predictions/{jobID}", s.GetPrediction)
	r.Patch("/predictions/{jobID}", s.UpdatePrediction)
	r.Post("/predictions/{jobID}/ticket", s.BuildTicket)

	r.Post("/positions", s.AcceptPosition)
	r.Get("/positions", s.ListPositions)
	r.Get("/positions/{positionID}", s.GetPosition)
	r.Post("/positions/{positionID}/refresh", s.RefreshPosition)
	r.Delete("/positions/{positionID}", s.DeletePosition)
}

// Wait blocks until all background poll flows have finished. Call after
// cancelling lifeCtx.
func (s *Service) Wait() {
	s.polls.Wait()
}

// SubmitPrediction handles POST /api/v1/predictions (multipart).
// Responds 202 with the job ID; the terminal result arrives via polling
// GET /predictions/{id} or the WebSocket.
func (s *Service) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	image, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, "image file is required", http.StatusBadRequest)
		return
	}
	defer image.Close()

	modelName := r.FormValue("model")
	userCtx := r.FormValue("context")

	jobID, err := s.submitter.Submit(r.Context(), predict.SubmitRequest{
		Image:    image,
		Filename: header.Filename,
		UserID:   userID,
		Context:  userCtx,
		Model:    modelName,
	})
	if err != nil {
		var subErr *predict.SubmissionError
		if errors.As(err, &subErr) && subErr.StatusCode >= 400 && subErr.StatusCode < 500 {
			writeError(w, subErr.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}

	job := &model.PredictionJob{
		JobID:     jobID,
		UserID:    userID,
		Model:     modelName,
		Context:   userCtx,
		Status:    model.JobSubmitted,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		writeError(w, "failed to record job", http.StatusInternalServerError)
		return
	}

	metrics.PredictionsSubmitted.WithLabelValues(modelName).Inc()

	s.polls.Add(1)
	go func() {
		defer s.polls.Done()
		s.trackJob(jobID)
	}()

	s.logger.Info("prediction submitted", "job_id", jobID, "user", userID, "model", modelName)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": jobID,
		"status": string(model.JobSubmitted),
	})
}

// trackJob polls the model service until the job is terminal, then enriches
// the result with a market quote and persists it.
func (s *Service) trackJob(jobID string) {
	start := time.Now()

	job, err := s.poller.Poll(s.lifeCtx, jobID)
	if err != nil {
		if s.lifeCtx.Err() != nil {
			return // shutting down; the job can be re-fetched later
		}
		s.logger.Error("prediction polling failed", "job_id", jobID, "err", err)
		s.markJobFailed(jobID, err)
		return
	}

	stored, getErr := s.store.GetJob(s.lifeCtx, jobID)
	if getErr != nil {
		s.logger.Error("terminal job not in store", "job_id", jobID, "err", getErr)
		return
	}

	now := time.Now().UTC()
	stored.Status = job.Status
	stored.Rec = job.Rec
	stored.ErrorMessage = job.ErrorMessage
	stored.CompletedAt = &now

	if job.Status == model.JobCompleted && job.Rec != nil {
		if job.Rec.NoBet {
			metrics.NoBetRecommendations.Inc()
		} else if job.Rec.Ticker != "" {
			quote := s.quotes.Fetch(s.lifeCtx, job.Rec.Ticker)
			metrics.QuoteFetches.WithLabelValues(string(quote.Status)).Inc()
			stored.Quote = quote
		}
	}

	if err := s.store.UpdateJob(s.lifeCtx, stored); err != nil {
		s.logger.Error("failed to persist terminal job", "job_id", jobID, "err", err)
		return
	}

	metrics.PredictionsCompleted.WithLabelValues(string(stored.Status)).Inc()
	metrics.PollDuration.Observe(time.Since(start).Seconds())

	if s.hub != nil {
		s.hub.NotifyJobCompleted(stored)
	}
	s.logger.Info("prediction terminal",
		"job_id", jobID, "status", string(stored.Status),
		"elapsed", time.Since(start).Round(time.Millisecond).String())
}

func (s *Service) markJobFailed(jobID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stored, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	stored.Status = model.JobFailed
	stored.ErrorMessage = cause.Error()
	stored.CompletedAt = &now
	if err := s.store.UpdateJob(ctx, stored); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", jobID, "err", err)
		return
	}
	metrics.PredictionsCompleted.WithLabelValues(string(model.JobFailed)).Inc()
	if s.hub != nil {
		s.hub.NotifyJobCompleted(stored)
	}
}

// GetPrediction handles GET /api/v1/predictions/{jobID}.
func (s *Service) GetPrediction(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, "prediction not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ListPredictions handles GET /api/v1/predictions?user_id=.
func (s *Service) ListPredictions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	jobs, err := s.store.ListJobsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list predictions", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []model.PredictionJob{}
	}

	writeJSON(w, http.StatusOK, jobs)
}

// UpdatePrediction handles PATCH /api/v1/predictions/{jobID}: annotation
// edits only, never the recommendation or status.
func (s *Service) UpdatePrediction(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var body struct {
		UserNotes *string `json:"user_notes"`
		ModelIdea *string `json:"model_idea"`
		Context   *string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ann := store.Annotations{
		UserNotes: body.UserNotes,
		ModelIdea: body.ModelIdea,
		Context:   body.Context,
	}

	job, err := s.store.UpdateJobAnnotations(r.Context(), jobID, ann)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "prediction not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to update prediction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// TicketRequest is the JSON body for POST /predictions/{jobID}/ticket.
type TicketRequest struct {
	Bankroll decimal.Decimal `json:"bankroll"`
}

// TicketResponse wraps an order ticket with the quote it was priced from.
// NoBet responses carry no ticket at all.
type TicketResponse struct {
	NoBet       bool               `json:"no_bet"`
	NoBetReason string             `json:"no_bet_reason,omitempty"`
	Ticket      *model.OrderTicket `json:"ticket,omitempty"`
	Quote       *model.MarketQuote `json:"quote,omitempty"`
}

// BuildTicket handles POST /api/v1/predictions/{jobID}/ticket. The ticket
// is priced from a quote fetched now, not the snapshot stored at job
// completion, so it is safe to rebuild after any delay.
func (s *Service) BuildTicket(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var req TicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Bankroll.LessThanOrEqual(decimal.Zero) {
		writeError(w, "bankroll must be positive", http.StatusBadRequest)
		return
	}

	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, "prediction not found", http.StatusNotFound)
		return
	}
	if job.Status != model.JobCompleted || job.Rec == nil {
		writeError(w, "prediction has no recommendation to size", http.StatusConflict)
		return
	}

	var quote *model.MarketQuote
	if job.Rec.Ticker != "" {
		quote = s.quotes.Fetch(r.Context(), job.Rec.Ticker)
		metrics.QuoteFetches.WithLabelValues(string(quote.Status)).Inc()
	}

	ticket, err := engine.BuildOrderTicket(job.Rec, quote, req.Bankroll)
	if err != nil {
		var noBet *engine.NoBetError
		if errors.As(err, &noBet) {
			metrics.NoBetRecommendations.Inc()
			writeJSON(w, http.StatusOK, TicketResponse{
				NoBet:       true,
				NoBetReason: noBet.Reason,
			})
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	mode := "priced"
	if ticket.Estimated {
		mode = "estimated"
	}
	metrics.TicketsBuilt.WithLabelValues(mode).Inc()

	writeJSON(w, http.StatusOK, TicketResponse{Ticket: ticket, Quote: quote})
}

// AcceptPosition handles POST /api/v1/positions.
func (s *Service) AcceptPosition(w http.ResponseWriter, r *http.Request) {
	var req position.AcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pos, err := s.positions.Accept(r.Context(), req)
	if err != nil {
		if errors.Is(err, risk.ErrPerMarketLimitExceeded) || errors.Is(err, risk.ErrCorrelatedLimitExceeded) {
			metrics.RiskRejections.Inc()
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	metrics.ActivePositions.Inc()

	writeJSON(w, http.StatusCreated, pos)
}

// ListPositions handles GET /api/v1/positions?user_id=.
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	positions, err := s.positions.List(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.TrackedPosition{}
	}

	writeJSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /api/v1/positions/{positionID}.
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	pos, err := s.positions.Get(r.Context(), positionID)
	if err != nil {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// RefreshPosition handles POST /api/v1/positions/{positionID}/refresh:
// on-demand mark to market outside the monitor's cadence.
func (s *Service) RefreshPosition(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	pos, err := s.positions.Refresh(r.Context(), positionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "position not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to refresh position", http.StatusInternalServerError)
		return
	}

	if pos.Status.Settled() {
		metrics.PositionsSettled.WithLabelValues(string(pos.Status)).Inc()
	}

	writeJSON(w, http.StatusOK, pos)
}

// DeletePosition handles DELETE /api/v1/positions/{positionID}. Only active
// positions can be removed; settled ones are history and return 409.
func (s *Service) DeletePosition(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	if err := s.positions.Close(r.Context(), positionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "position not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, position.ErrInvalidState) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, "failed to delete position", http.StatusInternalServerError)
		return
	}

	metrics.ActivePositions.Dec()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
