package bot

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/domain"
	"github.com/med-timely/bot/internal/dosing"
	"github.com/med-timely/bot/internal/service"
)

type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ScheduleResponse struct {
	ID           int64    `json:"id"`
	DrugName     string   `json:"drug_name"`
	Dose         string   `json:"dose"`
	DosesPerDay  int      `json:"doses_per_day"`
	DurationDays *int     `json:"duration_days,omitempty"`
	Comment      string   `json:"comment,omitempty"`
	StartAt      string   `json:"start_at"`
	EndAt        *string  `json:"end_at,omitempty"`
	DoseTimes    []string `json:"dose_times"`
	NextDose     *string  `json:"next_dose,omitempty"`
}

type AdherenceResponse struct {
	ScheduleID int64  `json:"schedule_id"`
	DrugName   string `json:"drug_name"`
	Dose       string `json:"dose"`
	Total      int    `json:"total"`
	Taken      int    `json:"taken"`
	OnTime     int    `json:"on_time"`
	Late       int    `json:"late"`
	Missed     int    `json:"missed"`
	Percentage int    `json:"percentage"`
}

// Router serves the webhook, health and metrics endpoints, and the JSON
// API when credentials are configured.
func (b *Bot) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", b.health)
	r.Handle("/metrics", b.metrics.Handler())

	if b.cfg.WebhookURL != "" {
		r.Post(webhookPath, b.webhook)
	}

	if b.cfg.APIEnabled() {
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.BasicAuth("medtimely", map[string]string{
				b.cfg.APIUsername: b.cfg.APIPassword,
			}))
			r.Get("/users/{telegramID}/schedules", b.apiSchedules)
			r.Get("/users/{telegramID}/adherence", b.apiAdherence)
		})
	}
	return r
}

func (b *Bot) health(w http.ResponseWriter, r *http.Request) {
	if err := b.storage.Ping(r.Context()); err != nil {
		b.log.Error("health check failed", zap.Error(err))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (b *Bot) webhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.log.Warn("bad webhook update", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case b.updates <- *update:
		w.WriteHeader(http.StatusOK)
	case <-r.Context().Done():
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (b *Bot) apiSchedules(w http.ResponseWriter, r *http.Request) {
	user, ok := b.apiUser(w, r)
	if !ok {
		return
	}
	loc, err := user.Location()
	if err != nil {
		b.apiError(w, err)
		return
	}

	views, err := b.schedules.Overview(r.Context(), user)
	if err != nil {
		b.apiError(w, err)
		return
	}

	resp := make([]ScheduleResponse, 0, len(views))
	for _, v := range views {
		sc := v.Schedule
		times := dosing.DoseTimes(user.Window(), sc.DosesPerDay)
		item := ScheduleResponse{
			ID:           sc.ID,
			DrugName:     sc.DrugName,
			Dose:         sc.Dose,
			DosesPerDay:  sc.DosesPerDay,
			DurationDays: sc.Duration,
			Comment:      sc.Comment,
			StartAt:      sc.StartAt.In(loc).Format(time.RFC3339),
			DoseTimes:    make([]string, 0, len(times)),
		}
		for _, t := range times {
			item.DoseTimes = append(item.DoseTimes, t.String())
		}
		if sc.EndAt != nil {
			end := sc.EndAt.In(loc).Format(time.RFC3339)
			item.EndAt = &end
		}
		if v.HasNext {
			next := v.Next.In(loc).Format(time.RFC3339)
			item.NextDose = &next
		}
		resp = append(resp, item)
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (b *Bot) apiAdherence(w http.ResponseWriter, r *http.Request) {
	user, ok := b.apiUser(w, r)
	if !ok {
		return
	}

	days, err := service.ParseHistoryDays(r.URL.Query().Get("days"))
	if err != nil {
		b.apiError(w, err)
		return
	}

	reports, err := b.schedules.AdherenceStats(r.Context(), user, days)
	if err != nil {
		b.apiError(w, err)
		return
	}

	resp := make([]AdherenceResponse, 0, len(reports))
	for _, a := range reports {
		resp = append(resp, AdherenceResponse{
			ScheduleID: a.ScheduleID,
			DrugName:   a.DrugName,
			Dose:       a.Dose,
			Total:      a.Total,
			Taken:      a.Taken,
			OnTime:     a.OnTime,
			Late:       a.Late,
			Missed:     a.Missed,
			Percentage: a.Percentage,
		})
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (b *Bot) apiUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Error: "invalid telegram id"})
		return nil, false
	}
	user, err := b.users.Get(r.Context(), telegramID)
	if err != nil {
		b.apiError(w, err)
		return nil, false
	}
	return user, true
}

func (b *Bot) apiError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	switch {
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrNotFound):
		errors.As(err, &appErr)
		writeJSON(w, http.StatusNotFound, APIResponse{Error: appErr.Message})
	case errors.Is(err, domain.ErrValidation):
		errors.As(err, &appErr)
		writeJSON(w, http.StatusBadRequest, APIResponse{Error: appErr.Message})
	default:
		b.log.Error("api request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, APIResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
