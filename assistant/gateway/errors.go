package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/vuai/assistant/model"
)

// ErrorKind classifies a backend failure for logs and metrics.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTimeout
	KindCanceled
	KindRateLimited
	KindAuth
	KindQuota
	KindServer
	KindNetwork
	KindEmpty
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Classify maps an error from a backend to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, errEmptyReply) {
		return KindEmpty
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "billing") || strings.Contains(msg, "quota") {
		return KindQuota
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return KindRateLimited
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return KindAuth
		case apiErr.StatusCode >= 500:
			return KindServer
		}
	}

	switch {
	case strings.Contains(msg, "rate limit"):
		return KindRateLimited
	case strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "no such host"):
		return KindNetwork
	}

	return KindUnknown
}
