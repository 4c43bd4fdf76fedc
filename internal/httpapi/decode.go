package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxJSONBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON value into dst. Unknown fields are ignored;
// browser clients send extra form state along with the fields we read.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	empty, err := decodeJSONAllowEmpty(w, r, dst)
	if err != nil {
		return err
	}
	if empty {
		return io.EOF
	}
	return nil
}

// decodeJSONAllowEmpty is like decodeJSON but reports an empty body as
// (true, nil) and leaves dst untouched.
func decodeJSONAllowEmpty(w http.ResponseWriter, r *http.Request, dst any) (bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return false, errors.New("multiple json values")
		}
		return false, err
	}
	return false, nil
}
