package api

import (
	"bytes"
	"embed"
	"net/http"
	"time"
)

//go:embed static/openapi.yaml
var docsFS embed.FS

// docsPage renders the embedded contract with swagger-ui from a CDN. The
// header links back to the raw document so clients can codegen against it.
const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>RecipeHarvest API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css"/>
  <style>
    body { margin: 0; font-family: sans-serif; }
    header {
      display: flex;
      align-items: baseline;
      gap: 1rem;
      padding: 0.75rem 1.25rem;
      background: #2f3e46;
      color: #fff;
    }
    header h1 { margin: 0; font-size: 1.1rem; }
    header a { color: #cad2c5; font-size: 0.85rem; }
  </style>
</head>
<body>
<header>
  <h1>RecipeHarvest API</h1>
  <a href="/openapi.yaml">openapi.yaml</a>
</header>
<div id="api-docs"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
window.onload = () => {
  SwaggerUIBundle({
    url: '/openapi.yaml',
    dom_id: '#api-docs',
    docExpansion: 'list',
    defaultModelsExpandDepth: 0,
    tryItOutEnabled: true
  });
};
</script>
</body>
</html>`

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	data, err := docsFS.ReadFile("static/openapi.yaml")
	if err != nil {
		http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, "openapi.yaml", time.Time{}, bytes.NewReader(data))
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docsPage))
}
