package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidID          = ValidationError("invalid document id")
)

type (
	ContextKey string
	// ValidationError reports a request input rejected at the api boundary.
	ValidationError   string
	missingFieldError string
)

const (
	RequestIDPrefix         string     = "r"
	RequestIDContextKey     ContextKey = "request.id"
	RequestNumberContextKey ContextKey = "request.number"
)

func (v ValidationError) Error() string {
	return string(v)
}

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

// IsValidationError tells if err (or any error it wraps) was caused by invalid input.
func IsValidationError(err error) bool {
	var ve ValidationError
	var me missingFieldError
	return errors.As(err, &ve) || errors.As(err, &me)
}

// GetValueFromContext returns the value of a given key in the context
// if this key is not available, it returns an empty string.
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	if val := ctx.Value(contextKey); val != nil {
		return val.(string)
	}
	return ""
}

// GetRequestNumberFromContext returns the request number set in
// the context. if not previously set then it returns 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	if val := ctx.Value(RequestNumberContextKey); val != nil {
		return val.(uint64)
	}
	return 0
}

// DecodeRequestBody reads the json content of a creation or update request into doc.
// Any failure is reported as a ValidationError.
func DecodeRequestBody(r *http.Request, doc interface{}) error {
	if r.Body == nil {
		return ValidationError("request body is empty")
	}
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(doc)
	if errors.Is(err, io.EOF) {
		return ValidationError("request body is empty")
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return ValidationError("request body must be a json object")
		}
		return ValidationError(fmt.Sprintf("field %s must be of type %s", typeErr.Field, typeErr.Type.String()))
	}
	if err != nil {
		return ValidationError("malformed json body: " + err.Error())
	}

	// only whitespace may follow the json object.
	var extra json.RawMessage
	if err = dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return ValidationError("request body must contain a single json object")
	}
	return nil
}

// MergeDocument applies the json representation of patch over the json document
// current and decodes the outcome into doc. Fields omitted by patch are kept.
// It returns the json form of the merged document.
func MergeDocument(current []byte, patch interface{}, doc interface{}) ([]byte, error) {
	if err := json.Unmarshal(current, doc); err != nil {
		return nil, err
	}
	patchBytes, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(patchBytes, doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// GetRequestSourceIP helps find the source IP of the caller.
func GetRequestSourceIP(r *http.Request) string {
	// Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip
	}

	// Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	for _, ip := range strings.Split(ips, ",") {
		ip = strings.TrimSpace(ip)
		if netIP = net.ParseIP(ip); netIP != nil {
			return ip
		}
	}

	// Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	if netIP = net.ParseIP(ip); netIP != nil {
		return ip
	}
	return ""
}

// IsAppRunningInDocker checks the existence of the .dockerenv
// file at the root directory and returns a boolean result.
func IsAppRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
