package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"admission-gateway/middleware/ratelimit/domain"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// errorBody é o envelope JSON das respostas 429/503.
type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// setQuotaHeaders escreve a quota; Reset vai em segundos unix.
func setQuotaHeaders(h http.Header, dec domain.Decision) {
	h.Set(HeaderLimit, strconv.Itoa(dec.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(dec.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(dec.ResetAt.Unix(), 10))
}

// writeRejection traduz o *domain.RateLimitExceededError da decisão em 429.
func writeRejection(w http.ResponseWriter, dec domain.Decision) {
	var exceeded *domain.RateLimitExceededError
	if !errors.As(dec.Err(), &exceeded) {
		exceeded = &domain.RateLimitExceededError{Limit: dec.Limit, RetryAfterSeconds: dec.RetryAfterSeconds()}
	}
	retry := exceeded.RetryAfterSeconds

	setQuotaHeaders(w.Header(), dec)
	w.Header().Set(HeaderLimit, strconv.Itoa(exceeded.Limit))
	w.Header().Set(HeaderRemaining, "0")
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retry))

	writeJSONError(w, http.StatusTooManyRequests, errorBody{
		Error:      domain.ErrRateLimitExceeded.Error(),
		Message:    fmt.Sprintf("Too many requests. Please try again in %d seconds.", retry),
		RetryAfter: retry,
	})
}

func writeJSONError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
