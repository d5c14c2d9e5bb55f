package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"courses/internal/core"
	applog "courses/internal/log"
)

const exportFilename = "courses-export.json"

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	if resp := ParseFormOrFail(r); resp != nil {
		resp.Send(w)
		return
	}

	form, err := ParsePurchaseForm(r.PostForm)
	if err != nil {
		Fail(http.StatusUnprocessableEntity, "Date invalide").Send(w)
		return
	}

	p, err := s.svc.Save(ctx, form.Date, form.Items)
	if errors.Is(err, core.ErrNoItems) {
		Fail(http.StatusUnprocessableEntity, "Ajoutez au moins un produit valide").Send(w)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to save purchase",
			applog.FieldOperation, applog.OpSave,
			applog.FieldError, err)
		Fail(http.StatusInternalServerError, "Erreur lors de l'enregistrement").Send(w)
		return
	}

	s.invalidateStats()
	atomic.AddInt64(&s.appMetrics.purchasesSaved, 1)

	msg := fmt.Sprintf("Achat du %s enregistré (%s)", p.Date, p.Amount())
	NewReply().
		Status(http.StatusCreated).
		Changed().
		ResetForm().
		Notify(NoticeSuccess, msg).
		Send(w)
}

func (s *Server) handleDeletePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if id == "" {
		Fail(http.StatusBadRequest, "Identifiant manquant").Send(w)
		return
	}

	if err := s.svc.Remove(ctx, id); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to remove purchase",
			applog.FieldOperation, applog.OpRemove,
			applog.FieldPurchaseID, id,
			applog.FieldError, err)
		Fail(http.StatusInternalServerError, "Erreur lors de la suppression").Send(w)
		return
	}

	s.invalidateStats()
	// empty body: the hx-target row is swapped out
	NewReply().
		Changed().
		Send(w)
}

// handleExport downloads every purchase as indented JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	purchases, err := s.svc.Export(ctx)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to export purchases",
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err)
		Fail(http.StatusInternalServerError, "Erreur lors de l'export").Send(w)
		return
	}

	body, err := json.MarshalIndent(purchases, "", "  ")
	if err != nil {
		Fail(http.StatusInternalServerError, "Erreur lors de l'export").Send(w)
		return
	}

	NewReply().
		Header("Content-Type", "application/json").
		Header("Content-Disposition", `attachment; filename="`+exportFilename+`"`).
		Body(body).
		Send(w)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	if s.exporter == nil {
		Fail(http.StatusNotFound, "Export Google Sheets non configuré").Send(w)
		return
	}

	purchases, err := s.svc.Export(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load purchases for sheets export",
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err)
		Fail(http.StatusInternalServerError, "Erreur lors de l'export").Send(w)
		return
	}

	ref, err := s.exporter.ExportPurchases(ctx, purchases)
	if err != nil {
		logger.ErrorContext(ctx, "Google Sheets export failed",
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err)
		NewReply().
			Status(http.StatusBadGateway).
			Notify(NoticeError, "Export Google Sheets impossible").
			Send(w)
		return
	}

	logger.InfoContext(ctx, "Purchases exported to Google Sheets",
		applog.FieldComponent, applog.ComponentSheets,
		"range", ref,
		"count", len(purchases))
	NewReply().
		Notify(NoticeSuccess, fmt.Sprintf("Export Google Sheets terminé (%d achats)", len(purchases))).
		Send(w)
}

// handleImport replaces all purchases with the uploaded JSON array.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		Fail(http.StatusBadRequest, "Erreur de lecture du fichier").Send(w)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		Fail(http.StatusBadRequest, "Erreur de lecture du fichier").Send(w)
		return
	}

	n, err := s.svc.Import(ctx, data)
	if errors.Is(err, core.ErrInvalidImport) {
		Fail(http.StatusBadRequest, "Fichier invalide").Send(w)
		return
	}
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to import purchases",
			applog.FieldOperation, applog.OpImport,
			applog.FieldError, err)
		Fail(http.StatusInternalServerError, "Erreur lors de l'import").Send(w)
		return
	}

	s.invalidateStats()
	NewReply().
		Changed().
		Notify(NoticeSuccess, fmt.Sprintf("Import OK (%d achats)", n)).
		Send(w)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.svc.Clear(ctx); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to clear purchases",
			applog.FieldOperation, applog.OpClear,
			applog.FieldError, err)
		Fail(http.StatusInternalServerError, "Erreur lors de la suppression des données").Send(w)
		return
	}

	s.invalidateStats()
	NewReply().
		Changed().
		Notify(NoticeSuccess, "Toutes les données ont été supprimées").
		Send(w)
}
