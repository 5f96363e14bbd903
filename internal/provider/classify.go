// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider

import (
	"context"
	"errors"
	"net"
	"net/http"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// ClassifyHTTPError maps an upstream HTTP status to a coded error so the
// retry policy can tell transient failures from terminal ones. Adapters
// call this with the status extracted from their SDK's API error type.
func ClassifyHTTPError(providerID string, status int, err error) error {
	code := aegiserr.CodeProviderUpstreamError
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = aegiserr.CodeProviderAuthDenied
	case status == http.StatusTooManyRequests:
		code = aegiserr.CodeProviderRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = aegiserr.CodeProviderCallTimeout
	case status == http.StatusBadRequest ||
		status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		code = aegiserr.CodeProviderRequestInvalid
	}
	return aegiserr.With(
		aegiserr.Wrapf(err, code, "%s: upstream returned %d", providerID, status),
		aegiserr.FieldProvider(providerID), aegiserr.Field("status", status),
	)
}

// ClassifyTransportError maps non-HTTP failures (cancelled contexts,
// DNS/dial errors) to coded errors.
func ClassifyTransportError(providerID string, err error) error {
	code := aegiserr.CodeProviderNetworkError
	msg := "call failed"

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = aegiserr.CodeProviderCallTimeout
		msg = "call deadline exceeded"
	case errors.Is(err, context.Canceled):
		code = aegiserr.CodeProviderCallTimeout
		msg = "call cancelled"
	case errors.As(err, &netErr):
		msg = "network failure"
		if netErr.Timeout() {
			code = aegiserr.CodeProviderCallTimeout
		}
	}
	return aegiserr.With(
		aegiserr.Wrapf(err, code, "%s: %s", providerID, msg),
		aegiserr.FieldProvider(providerID),
	)
}
