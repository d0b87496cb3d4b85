package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/pdf2text/constants"
	"github.com/joseph-ayodele/pdf2text/internal/common"
	"github.com/joseph-ayodele/pdf2text/internal/convert"
	"github.com/joseph-ayodele/pdf2text/internal/entity"
	"github.com/joseph-ayodele/pdf2text/internal/export"
	"github.com/joseph-ayodele/pdf2text/internal/repository"
	"github.com/joseph-ayodele/pdf2text/internal/staging"
)

//go:embed templates/index.html
var templatesFS embed.FS

var pageTmpl = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"ago": humanize.Time,
	"minutes": func(ms int64) string {
		return convert.Minutes(time.Duration(ms) * time.Millisecond)
	},
}).ParseFS(templatesFS, "templates/index.html"))

const (
	formFileField     = "file"
	recentConversions = 10
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type HTTPConfig struct {
	SamplePDF      string
	MaxUploadBytes int64
	RateLimitRPS   float64 // <= 0 disables limiting
	RateLimitBurst int
}

type HTTPServer struct {
	svc      *convert.Service
	exporter *export.Service
	ledger   repository.ConversionRepository
	cfg      HTTPConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewHTTPServer wires the web front end. exporter and ledger may be nil.
func NewHTTPServer(svc *convert.Service, exporter *export.Service, ledger repository.ConversionRepository, cfg HTTPConfig, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	return &HTTPServer{
		svc:      svc,
		exporter: exporter,
		ledger:   ledger,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.RateLimitBurst),
		logger:   logger,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("POST /convert", s.rateLimit(http.HandlerFunc(s.handleConvertForm)))
	mux.Handle("POST /api/convert", s.rateLimit(http.HandlerFunc(s.handleConvertAPI)))
	mux.HandleFunc("GET /download/{name}", s.handleDownload)
	mux.HandleFunc("GET /history.xlsx", s.handleHistory)
	mux.HandleFunc("GET /conversions/{id}", s.handleConversion)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return s.requestID(s.logRequests(mux))
}

type pageData struct {
	SampleName string
	MaxPages   int
	MaxCap     int
	Language   string
	MaxUpload  string
	Outcome    *convert.Outcome
	Recent     []*entity.Conversion
}

func (s *HTTPServer) newPage(ctx context.Context) pageData {
	return pageData{
		SampleName: filepath.Base(s.cfg.SamplePDF),
		MaxPages:   s.svc.DefaultMaxPages(),
		MaxCap:     s.svc.DefaultMaxPages(),
		Language:   s.svc.DefaultLanguage(),
		MaxUpload:  humanize.IBytes(uint64(s.cfg.MaxUploadBytes)),
		Recent:     s.recent(ctx),
	}
}

func (s *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, s.newPage(r.Context()))
}

func (s *HTTPServer) handleConvertForm(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := s.parseConvertRequest(w, r)
	defer cleanup()
	page := s.newPage(r.Context())
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		page.Outcome = &convert.Outcome{Text: err.Error(), StatusHTML: errorHTML(err.Error())}
		s.render(w, r, code, page)
		return
	}
	page.MaxPages = req.MaxPages
	page.Language = req.Language

	out, err := s.svc.Convert(r.Context(), req)
	if err != nil {
		s.logger.Error("conversion failed", "request_id", requestIDOf(r), "error", err)
	}
	page.Outcome = &out
	page.Recent = s.recent(r.Context())
	s.render(w, r, http.StatusOK, page)
}

type convertResponse struct {
	ConversionID   string  `json:"conversion_id,omitempty"`
	Text           string  `json:"text"`
	StatusHTML     string  `json:"status_html"`
	Artifact       string  `json:"artifact,omitempty"`
	DownloadURL    string  `json:"download_url,omitempty"`
	PagesProcessed int     `json:"pages_processed"`
	TotalPages     int     `json:"total_pages"`
	Truncated      bool    `json:"truncated"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Error          string  `json:"error,omitempty"`
}

func (s *HTTPServer) handleConvertAPI(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := s.parseConvertRequest(w, r)
	defer cleanup()
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, code, convertResponse{Error: err.Error()})
		return
	}

	out, err := s.svc.Convert(r.Context(), req)
	resp := convertResponse{Text: out.Text, StatusHTML: string(out.StatusHTML)}
	if out.ConversionID != uuid.Nil {
		resp.ConversionID = out.ConversionID.String()
	}
	if name := out.ArtifactName(); name != "" {
		resp.Artifact = name
		resp.DownloadURL = "/download/" + name
	}
	if out.Result != nil {
		resp.PagesProcessed = out.Result.PagesProcessed
		resp.TotalPages = out.Result.TotalPages
		resp.Truncated = out.Result.Truncated
		resp.ElapsedSeconds = out.Result.ElapsedSeconds()
	}
	code := http.StatusOK
	if err != nil {
		s.logger.Error("conversion failed", "request_id", requestIDOf(r), "error", err)
		resp.Error = err.Error()
		code = http.StatusBadGateway
	}
	writeJSON(w, code, resp)
}

// parseConvertRequest reads the multipart form. The returned cleanup removes
// any temp files the form parser created and is always safe to call.
func (s *HTTPServer) parseConvertRequest(w http.ResponseWriter, r *http.Request) (convert.Request, func(), error) {
	cleanup := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return convert.Request{}, cleanup, fmt.Errorf("invalid upload: %w", err)
	}
	if r.MultipartForm != nil {
		form := r.MultipartForm
		cleanup = func() { _ = form.RemoveAll() }
	}

	u := firstUpload(r.MultipartForm, formFileField)
	if u == nil {
		u = staging.FileUpload{Path: s.cfg.SamplePDF}
	}
	req := s.svc.NewRequest(u)
	if v := strings.TrimSpace(r.FormValue("max_pages")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return convert.Request{}, cleanup, fmt.Errorf("max_pages must be an integer, got %q", v)
		}
		// the form never asks for more than the configured cap
		req.MaxPages = min(n, s.svc.DefaultMaxPages())
	}
	if v := strings.TrimSpace(r.FormValue("lang")); v != "" {
		req.Language = v
	}
	return req, cleanup, nil
}

func (s *HTTPServer) handleConversion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversion id"})
		return
	}
	if s.ledger == nil {
		http.NotFound(w, r)
		return
	}
	c, err := s.ledger.Get(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversion not found"})
		return
	}
	if err != nil {
		s.logger.Error("conversion lookup failed", "request_id", requestIDOf(r), "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// firstUpload normalizes "one file or a list of files" to the first file.
func firstUpload(form *multipart.Form, field string) staging.Upload {
	if form == nil {
		return nil
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil
	}
	return staging.MultipartUpload{Header: files[0]}
}

func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !constants.IsArtifactName(name) {
		http.NotFound(w, r)
		return
	}
	dir, err := filepath.Abs(s.outputDir())
	if err != nil {
		http.Error(w, "output directory unavailable", http.StatusInternalServerError)
		return
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, fi.ModTime(), f)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		http.NotFound(w, r)
		return
	}
	data, err := s.exporter.ExportConversionsXLSX(r.Context(), 0)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "request_id", requestIDOf(r), "err", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="conversions.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *HTTPServer) outputDir() string {
	if d := s.svc.OutputDir(); d != "" {
		return d
	}
	return "."
}

func (s *HTTPServer) recent(ctx context.Context) []*entity.Conversion {
	if s.ledger == nil {
		return nil
	}
	rows, err := s.ledger.ListRecent(ctx, recentConversions)
	if err != nil {
		s.logger.Warn("listing recent conversions failed", "error", err)
		return nil
	}
	return rows
}

func (s *HTTPServer) render(w http.ResponseWriter, r *http.Request, code int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := pageTmpl.Execute(w, data); err != nil {
		s.logger.Error("render page failed", "request_id", requestIDOf(r), "error", err)
	}
}

func errorHTML(msg string) template.HTML {
	return template.HTML(`<div style="color: red; font-weight: bold;">` + template.HTMLEscapeString(msg) + `</div>`)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
