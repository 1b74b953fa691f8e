package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/nsstatus/internal/api/response"
	"github.com/kiranshivaraju/nsstatus/internal/status"
	"github.com/kiranshivaraju/nsstatus/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageFuncs = template.FuncMap{
	"statusColor": func(s models.AnalysisStatus) string {
		switch s {
		case models.StatusPassed:
			return "green"
		case models.StatusFailed:
			return "red"
		case models.StatusPending, models.StatusSubmitting:
			return "blue"
		case models.StatusDraft:
			return "gray"
		default:
			return "orange"
		}
	},
	"modifiedDate": func(ts string) string {
		date, _, _ := strings.Cut(ts, "T")
		return date
	},
	"bannerClass": func(k status.BannerKind) string {
		return "banner-" + string(k)
	},
}

var pageTemplate = template.Must(
	template.New("status.html").Funcs(pageFuncs).ParseFS(templateFS, "templates/status.html"),
)

// Page handles GET /analyses/{id} with an HTML rendering of the view.
func (h *Analyses) Page(w http.ResponseWriter, r *http.Request) {
	o, ok := h.observe(w, r)
	if !ok {
		return
	}
	view := h.renderer.Render(o.props, h.snapshot(r.Context(), o), nil)

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		slog.Error("render status page", "analysis_id", view.AnalysisID, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	response.HTML(w, http.StatusOK, &buf)
}
