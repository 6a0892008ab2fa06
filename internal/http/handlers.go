package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"spending/internal/core"
	applog "spending/internal/log"
)

const storeUnavailableMessage = "The spending ledger cannot be reached right now. Nothing was lost; please try again shortly."

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rl := s.limiter.GetMetrics()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
		"requests":  s.tracer.TotalRequests(),
		"rate_limit": map[string]any{
			"limited": rl.TotalHits,
			"clients": rl.ClientCount,
		},
		"suspicious_requests": s.detector.SuspiciousRequests(),
	})
}

// handleReady checks that the ledger store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, httpStatus := "ready", http.StatusOK
	checks := map[string]any{
		"templates":    "ok",
		"rate_limiter": map[string]any{"active_clients": s.limiter.ActiveClients()},
	}
	if s.ready == nil {
		checks["store"] = "ok"
	} else if err := s.ready(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleIndex renders the whole page: entry form plus dashboard.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Categories: s.ledger.Categories(),
		Form:       s.defaultForm(),
	}
	s.renderPage(w, r, http.StatusOK, data, r.URL.Query().Get("category"))
}

// renderPage fills the dashboard into data. A store failure replaces the
// dashboard with the blocking panel and answers 503.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, data pageData, category string) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	dash, err := s.ledger.Dashboard(ctx, category)
	if err != nil {
		s.logStoreError(r, "Dashboard unavailable", err)
		data.StoreError = storeUnavailableMessage
		status = http.StatusServiceUnavailable
	} else {
		data.Dashboard = newDashboardView(dash)
	}
	s.render(w, r, status, "index.html", data)
}

// handleDashboard returns the dashboard partial, reloaded after each submission.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	dash, err := s.ledger.Dashboard(ctx, r.URL.Query().Get("category"))
	if err != nil {
		s.logStoreError(r, "Dashboard unavailable", err)
		StoreUnavailableError(storeUnavailableMessage).Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard", newDashboardView(dash))
}

// handleLastBought returns the last-bought table for one category.
func (s *Server) handleLastBought(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	category, rows, err := s.ledger.LastBought(ctx, r.URL.Query().Get("category"))
	if err != nil {
		s.logStoreError(r, "Last bought unavailable", err)
		StoreUnavailableError(storeUnavailableMessage).Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "last_bought", lastBoughtView{
		Category:   category,
		Categories: s.ledger.Categories(),
		Rows:       rows,
	})
}

// handleCategoryOptions re-renders the category <option> list with the
// category last used for the typed item preselected.
func (s *Server) handleCategoryOptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	item := sanitizeInput(r.URL.Query().Get(fieldItem))
	predicted, err := s.ledger.PredictCategory(ctx, item)
	if err != nil {
		// The prediction is a convenience; the list still renders without it.
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Category prediction failed",
			applog.FieldOperation, applog.OpPredict,
			applog.FieldItem, item,
			applog.FieldError, err)
		predicted = ""
	}
	s.render(w, r, http.StatusOK, "category_options", categoryOptionsView{
		Predicted:  predicted,
		Categories: s.ledger.Categories(),
	})
}

// handleSubmit validates and records one transaction. HTMX requests get a
// status fragment plus HX-Trigger events; plain form posts are redirected
// or, on failure, shown the page again with the form filled in.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	form := readFormValues(r.Form)

	sub, err := ParseSubmission(r.Form, s.now())
	if err != nil {
		s.rejectSubmission(w, r, form, "Date must be a valid calendar date.")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	tx, err := s.ledger.Submit(ctx, sub)
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		s.rejectSubmission(w, r, form, verr.Message())
		return
	case err != nil && isStoreError(err):
		s.logStoreError(r, "Submission not recorded", err)
		if isHTMX(r) {
			StoreUnavailableError(storeUnavailableMessage).Write(w)
			return
		}
		s.render(w, r, http.StatusServiceUnavailable, "index.html", pageData{
			Categories: s.ledger.Categories(),
			Form:       form,
			StoreError: storeUnavailableMessage,
		})
		return
	case err != nil:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(), "Submission failed", err, applog.OpSubmit, nil)
		InternalServerError("Could not record the transaction.").Write(w)
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	msg := fmt.Sprintf("Recorded #%d for %s: %s (%s) %s",
		tx.Seq, tx.Date, tx.Item, tx.Category, core.FormatNaira(tx.SpentAmount()))
	NewHTMXResponse().
		TriggerTransactionCreated(tx.Date, tx.Seq).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success" role="status">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

// rejectSubmission answers 422 and keeps what the user typed.
func (s *Server) rejectSubmission(w http.ResponseWriter, r *http.Request, form formValues, message string) {
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Submission rejected",
		applog.FieldOperation, applog.OpValidate,
		applog.FieldReason, message,
		applog.FieldItem, form.Item)
	if isHTMX(r) {
		ValidationWarning(message).Write(w)
		return
	}
	s.renderPage(w, r, http.StatusUnprocessableEntity, pageData{
		Categories: s.ledger.Categories(),
		Form:       form,
		Warning:    message,
	}, "")
}

func (s *Server) defaultForm() formValues {
	now := s.now()
	return formValues{
		Date:     now.Format("2006-01-02"),
		Time:     now.Format("15:04"),
		Quantity: "1",
	}
}

func (s *Server) logStoreError(r *http.Request, msg string, err error) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), msg,
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldError, err)
}
