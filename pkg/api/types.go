package api

import (
	"bytes"
	"encoding/json"
	"errors"
)

// SubmitRequest is the body of POST /api/values.
type SubmitRequest struct {
	Index IndexValue `json:"index"`
}

// IndexValue accepts both "10" and 10 and keeps the raw text for validation.
type IndexValue string

func (v *IndexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("index is required")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = IndexValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("index must be a string or a number")
	}
	*v = IndexValue(n.String())
	return nil
}

// SubmitResponse is returned once an index was accepted.
type SubmitResponse struct {
	Working bool `json:"working"`
}

// RecordResponse is one element of GET /api/values/all.
type RecordResponse struct {
	Number int `json:"number"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Redis          bool   `json:"redis"`
	RedisPublisher bool   `json:"redisPublisher"`
	Postgres       bool   `json:"postgres"`
	Status         string `json:"status"` // OK | DEGRADED
}

type errorResponse struct {
	Error string `json:"error"`
}
