package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

const (
	askTimeout    = 30 * time.Second
	ingestTimeout = 2 * time.Minute
	maxBodyBytes  = 1 << 20
)

type AskRequest struct {
	Question string `json:"question"`
}

type PromptRequest struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

type URLRequest struct {
	Question string `json:"question"`
	URL      string `json:"url"`
	SaveAs   string `json:"save_as,omitempty"`
}

type PDFRequest struct {
	Question string `json:"question"`
	Path     string `json:"path"`
	SaveAs   string `json:"save_as,omitempty"`
}

type IndexRequest struct {
	Question string `json:"question"`
	Name     string `json:"name,omitempty"`
}

// SaveRequest persists an index built from exactly one of URL or PDF.
type SaveRequest struct {
	URL  string `json:"url,omitempty"`
	PDF  string `json:"pdf,omitempty"`
	Name string `json:"name,omitempty"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

type SearchRequest struct {
	Question string `json:"question"`
	Name     string `json:"name,omitempty"`
}

type SourceRef struct {
	SegmentID string  `json:"segment_id"`
	Title     string  `json:"title,omitempty"`
	Source    string  `json:"source"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
}

type SearchResponse struct {
	Sources []SourceRef `json:"sources"`
}

type SaveResponse struct {
	Name string `json:"name"`
}

type ListResponse struct {
	Indexes []rag.IndexInfo `json:"indexes"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type Handler struct {
	ragService *rag.Service
}

func NewHandler(ragService *rag.Service) *Handler {
	return &Handler{ragService: ragService}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), askTimeout)
	defer cancel()

	answer, err := h.ragService.Ask(ctx, req.Question)
	respond(w, answer, err)
}

func (h *Handler) AskFromPrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), askTimeout)
	defer cancel()

	answer, err := h.ragService.AskFromPrompt(ctx, req.Question, req.Context)
	respond(w, answer, err)
}

func (h *Handler) AskFromURL(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ingestTimeout)
	defer cancel()

	answer, err := h.ragService.AskFromURL(ctx, req.Question, req.URL, req.SaveAs)
	respond(w, answer, err)
}

func (h *Handler) AskFromPDF(w http.ResponseWriter, r *http.Request) {
	var req PDFRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ingestTimeout)
	defer cancel()

	answer, err := h.ragService.AskFromPDF(ctx, req.Question, req.Path, req.SaveAs)
	respond(w, answer, err)
}

func (h *Handler) AskFromIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), askTimeout)
	defer cancel()

	answer, err := h.ragService.AskFromEmbedding(ctx, req.Question, req.Name)
	respond(w, answer, err)
}

// Search devolve os trechos que seriam usados como contexto, sem chamar o chat.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), askTimeout)
	defer cancel()

	hits, err := h.ragService.Retrieve(ctx, req.Question, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	sources := make([]SourceRef, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, SourceRef{
			SegmentID: hit.ID,
			Title:     hit.Title,
			Source:    hit.Source,
			Content:   hit.Content,
			Score:     hit.Score,
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Sources: sources})
}

func (h *Handler) SaveIndex(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decode(w, r, &req) {
		return
	}
	src, err := sourceFromRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ingestTimeout)
	defer cancel()

	if err := h.ragService.SaveEmbedding(ctx, src, req.Name); err != nil {
		writeError(w, err)
		return
	}
	name := req.Name
	if name == "" {
		name = rag.DefaultIndexName
	}
	writeJSON(w, http.StatusCreated, SaveResponse{Name: name})
}

func (h *Handler) ListIndexes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), askTimeout)
	defer cancel()

	infos, err := h.ragService.ListIndexes(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if infos == nil {
		infos = []rag.IndexInfo{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Indexes: infos})
}

func sourceFromRequest(req SaveRequest) (rag.Source, error) {
	u, p := strings.TrimSpace(req.URL), strings.TrimSpace(req.PDF)
	switch {
	case u != "" && p != "":
		return rag.Source{}, rag.Errorf(rag.ErrValidation, "saveEmbedding", "url and pdf are mutually exclusive")
	case u != "":
		return rag.FromURL(u), nil
	case p != "":
		return rag.FromPDF(p), nil
	default:
		return rag.Source{}, rag.Errorf(rag.ErrValidation, "saveEmbedding", "a url or a pdf path is required")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return false
	}
	return true
}

func respond(w http.ResponseWriter, answer string, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	if k := rag.KindOf(err); k != nil {
		resp.Kind = k.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrSource):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
