package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// decodeStrict decodes a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// WriteJSON encodes v and writes it with the given status. Encoding happens
// before the header is sent so a marshal failure still yields a clean 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorParams describes an API error response.
type ErrorParams struct {
	Code    int    // HTTP status
	ErrCode string // machine-readable error code
	Err     error  // its message becomes the response message
}

// WriteError writes {"error": ErrCode, "message": Err.Error()} with status Code.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	msg := http.StatusText(p.Code)
	if p.Err != nil {
		msg = p.Err.Error()
	}
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": msg})
}
