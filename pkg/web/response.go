package web

import (
	"encoding/json"
	"net/http"
)

// JSON encodes any value as an application/json response.
type JSON struct {
	Value  any
	Status int
}

// Encode implements Encoder.
func (j JSON) Encode() ([]byte, string, error) {
	data, err := json.Marshal(j.Value)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus implements the httpStatus interface.
func (j JSON) HTTPStatus() int {
	if j.Status == 0 {
		return http.StatusOK
	}
	return j.Status
}

// Text is a text/plain response.
type Text string

// Encode implements Encoder.
func (t Text) Encode() ([]byte, string, error) {
	return []byte(t), "text/plain; charset=utf-8", nil
}
