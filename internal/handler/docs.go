package handler

import "net/http"

// DocsHandler serves the machine-readable API description.
type DocsHandler struct {
	baseURL string
}

// NewDocsHandler creates a DocsHandler.
func NewDocsHandler(baseURL string) *DocsHandler {
	return &DocsHandler{baseURL: baseURL}
}

// Docs handles GET /api/docs. Public, no auth.
func (h *DocsHandler) Docs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "Open Always API",
		"version":  "1.0",
		"base_url": h.baseURL,
		"authentication": map[string]string{
			"type":   "Bearer Token",
			"header": "Authorization: Bearer OPEN_ALWAYS_API_KEY",
		},
		"endpoints": map[string]any{
			"chat": map[string]any{
				"url":    "/api/chat",
				"method": "POST",
				"headers": map[string]string{
					"Authorization": "Bearer YOUR_API_KEY",
					"Content-Type":  "application/json",
				},
				"body": map[string]string{
					"model":   "gpt4 | claude | gemini | llama | okitakoy | ...",
					"message": "Your message here",
				},
			},
			"models": map[string]string{
				"url":    "/api/models",
				"method": "GET",
			},
			"keys": map[string]string{
				"url":    "/api/keys",
				"method": "GET",
			},
		},
	})
}
