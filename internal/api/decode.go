package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeJSON decodes exactly one JSON value from the request body.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errTrailingData
		}
		return err
	}
	return nil
}
