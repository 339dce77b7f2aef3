package utils

import (
	"encoding/json"
	"net/http"

	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warn("failed to write response", zap.Error(err))
	}
}

func WriteJSONError(w http.ResponseWriter, message string, code int) {
	WriteJSON(w, code, map[string]string{"error": message})
}

// WriteJSONErrors reports several reasons at once, e.g. every missing
// checkout precondition.
func WriteJSONErrors(w http.ResponseWriter, message string, reasons []string, code int) {
	WriteJSON(w, code, map[string]any{"error": message, "reasons": reasons})
}

func StrPtr(s string) *string {
	return &s
}
