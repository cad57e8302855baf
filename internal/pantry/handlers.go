package pantry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/pantry-tracker/internal/extract"
)

// maxUploadSize covers high-resolution phone photos
const maxUploadSize = int64(50 << 20)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps service errors to status codes
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, "Item not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalid):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrUnavailable):
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		slog.Error("Error "+op, "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListItems returns the user's items with their status
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request, userID string) {
	views, err := s.service.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "listing items", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// handleExpiring returns items expiring within three days
func (s *Server) handleExpiring(w http.ResponseWriter, r *http.Request, userID string) {
	views, err := s.service.Expiring(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "listing expiring items", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// handleAddItem adds a manually entered item
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request, userID string) {
	var req NewItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.service.AddItem(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "adding item", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleUpdateItem applies a partial update
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request, userID string) {
	var patch Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	item, err := s.service.Update(r.Context(), userID, r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, "updating item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteItem marks an item as used
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.MarkUsed(r.Context(), userID, r.PathValue("id")); err != nil {
		writeServiceError(w, "deleting item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleFreeze freezes or thaws an item
func (s *Server) handleToggleFreeze(w http.ResponseWriter, r *http.Request, userID string) {
	item, err := s.service.ToggleFreeze(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "toggling freeze", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleClearExpired removes expired items
func (s *Server) handleClearExpired(w http.ResponseWriter, r *http.Request, userID string) {
	removed, err := s.service.ClearExpired(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "clearing expired items", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleReceiptText ingests OCR text
func (s *Server) handleReceiptText(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.service.IngestText(r.Context(), userID, req.Text)
	if err != nil {
		writeServiceError(w, "ingesting receipt text", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleReceiptStructured ingests a receipt already split into line items
func (s *Server) handleReceiptStructured(w http.ResponseWriter, r *http.Request, userID string) {
	var receipt extract.StructuredReceipt
	if !decodeBody(w, r, &receipt) {
		return
	}
	result, err := s.service.IngestStructured(r.Context(), userID, receipt)
	if err != nil {
		writeServiceError(w, "ingesting structured receipt", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleReceiptScan ingests an uploaded receipt image or PDF
func (s *Server) handleReceiptScan(w http.ResponseWriter, r *http.Request, userID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	result, err := s.service.IngestScan(r.Context(), userID, data, contentType(header.Header.Get("Content-Type"), header.Filename))
	if err != nil {
		writeServiceError(w, "ingesting scanned receipt", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// contentType falls back to the file extension when the upload has no type
func contentType(declared, filename string) string {
	if declared = strings.ToLower(strings.TrimSpace(declared)); declared != "" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleSuggestRecipes generates and saves recipe suggestions
func (s *Server) handleSuggestRecipes(w http.ResponseWriter, r *http.Request, userID string) {
	var prefs RecipePreferences
	if r.ContentLength != 0 && !decodeBody(w, r, &prefs) {
		return
	}
	recipes, err := s.service.SuggestRecipes(r.Context(), userID, prefs)
	if err != nil {
		writeServiceError(w, "suggesting recipes", err)
		return
	}
	writeJSON(w, http.StatusCreated, recipes)
}

// handleListRecipes returns recently saved recipes
func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request, userID string) {
	recipes, err := s.service.ListRecipes(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "listing recipes", err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

// handleRecipeClick records that a user opened a recipe
func (s *Server) handleRecipeClick(w http.ResponseWriter, r *http.Request, userID string) {
	var req RecipeClickRequest
	if !decodeBody(w, r, &req) {
		return
	}
	click, err := s.service.RecordRecipeClick(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "recording recipe click", err)
		return
	}
	writeJSON(w, http.StatusCreated, click)
}
