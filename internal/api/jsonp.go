package api

import (
	"encoding/json"
	"net/http"
	"regexp"
)

// callbackPattern matches the JSONP callback names Express accepts.
var callbackPattern = regexp.MustCompile(`^[\w$.\[\]]+$`)

// writeJSONP writes v as JSON, or as a JSONP call when the request carries a
// valid callback parameter.
func writeJSONP(w http.ResponseWriter, r *http.Request, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}

	if cb := r.URL.Query().Get("callback"); cb != "" && callbackPattern.MatchString(cb) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Write([]byte("/**/ typeof " + cb + " === 'function' && " + cb + "("))
		w.Write(body)
		w.Write([]byte(");"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(body)
}
