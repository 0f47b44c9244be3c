package httputils

import (
	"bytes"
	"html/template"
	"log"
	"net/http"
)

// RenderTemplate executes tmpl with data and writes the result as HTML.
// The template is executed into a buffer first so a rendering failure
// produces a clean 500 instead of a half-written page.
func RenderTemplate(w http.ResponseWriter, tmpl *template.Template, data interface{}) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("template %s: %v", tmpl.Name(), err)
		http.Error(w, "internal rendering error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
