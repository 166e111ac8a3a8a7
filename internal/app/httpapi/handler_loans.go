package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/services/checklists"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/internal/httputil"
	"github.com/coopfund/backoffice/internal/middleware"
)

func (h *handler) listCoopPrograms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := coopprogram.Filter{
		CooperativeID: q.Get("cooperative_id"),
		ProgramID:     q.Get("program_id"),
	}
	for _, s := range strings.Split(q.Get("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			filter.Statuses = append(filter.Statuses, coopprogram.Status(s))
		}
	}
	items, err := h.app.CoopPrograms.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *handler) enroll(w http.ResponseWriter, r *http.Request) {
	var cp coopprogram.CoopProgram
	if err := httputil.DecodeJSON(r.Body, &cp); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	created, err := h.app.CoopPrograms.Enroll(r.Context(), cp)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getCoopProgram(w http.ResponseWriter, r *http.Request) {
	cp, err := h.app.CoopPrograms.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cp)
}

func (h *handler) updateCoopProgram(w http.ResponseWriter, r *http.Request) {
	var cp coopprogram.CoopProgram
	if err := httputil.DecodeJSON(r.Body, &cp); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	cp.ID = mux.Vars(r)["id"]
	updated, err := h.app.CoopPrograms.Update(r.Context(), cp)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteCoopProgram(w http.ResponseWriter, r *http.Request) {
	if err := h.app.CoopPrograms.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	cp, err := h.app.CoopPrograms.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cp)
}

func (h *handler) release(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ReleasedAt time.Time `json:"released_at"`
	}
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}
	cp, err := h.app.CoopPrograms.Release(r.Context(), mux.Vars(r)["id"], payload.ReleasedAt)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cp)
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	cp, err := h.app.CoopPrograms.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cp)
}

func (h *handler) archiveCoopProgram(w http.ResponseWriter, r *http.Request) {
	cp, err := h.app.CoopPrograms.Archive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cp)
}

func (h *handler) listUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.app.Checklists.ListUploads(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, uploads)
}

// upload accepts multipart/form-data with a checklist_id field and a file part.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, r, svcerrors.FieldError("file", "file exceeds the upload size limit"))
			return
		}
		httputil.WriteError(w, r, svcerrors.Validationf("invalid multipart body: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, r, svcerrors.FieldError("file", "file is required"))
		return
	}
	defer file.Close()

	u, err := h.app.Checklists.Upload(r.Context(), checklists.UploadRequest{
		CoopProgramID: mux.Vars(r)["id"],
		ChecklistID:   r.FormValue("checklist_id"),
		FileName:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		UploadedBy:    middleware.GetUserID(r.Context()),
		Body:          file,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, u)
}

func (h *handler) downloadUpload(w http.ResponseWriter, r *http.Request) {
	u, body, err := h.app.Checklists.OpenUpload(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	defer body.Close()

	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", u.FileName))
	if u.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprint(u.Size))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.WithContext(r.Context()).WithError(err).WithField("upload_id", u.ID).Warn("stream upload")
	}
}

func (h *handler) removeUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Checklists.RemoveUpload(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) completion(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Checklists.Completion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) schedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	summary, err := h.app.Amortization.Summary(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	items, err := h.app.Amortization.List(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		Summary      amortization.Summary       `json:"summary"`
		Installments []amortization.Installment `json:"installments"`
	}{summary, items})
}

func (h *handler) amortizationCSV(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cp, err := h.app.CoopPrograms.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	// Validate before headers go out so errors still render as JSON.
	if _, err := h.app.Amortization.List(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "amortization-"+cp.ReferenceNo+".csv"))
	if err := h.app.Amortization.ExportCSV(r.Context(), id, w); err != nil {
		h.log.WithContext(r.Context()).WithError(err).WithField("coop_program_id", id).Warn("export amortization")
	}
}

func (h *handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64     `json:"amount"`
		PaidAt time.Time `json:"paid_at"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	payment, err := h.app.Amortization.RecordPayment(r.Context(), mux.Vars(r)["id"], payload.Amount, payload.PaidAt)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, payment)
}
