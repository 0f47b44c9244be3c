package httputils

import (
	"encoding/json"
	"log"
	"net/http"
)

// HandleAPIResponse writes resp as JSON, or the error with the given status
// if err is non-nil. Errors are logged with the request line for tracing.
func HandleAPIResponse(w http.ResponseWriter, r *http.Request, resp interface{}, err error, status int) {
	if err != nil {
		log.Printf("%s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
		http.Error(w, err.Error(), status)
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		log.Printf("%s %s from %s: encoding response: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
