// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/pterm/pterm"
)

// ModelErrorType is the category of a failed model API call.
type ModelErrorType int

const (
	ModelErrorUnknown ModelErrorType = iota
	ModelErrorAuth
	ModelErrorRateLimit
	ModelErrorOverloaded
	ModelErrorServer
	ModelErrorTimeout
	ModelErrorDNS
	ModelErrorRefused
	ModelErrorTLS
	ModelErrorBadRequest
)

// ClassifyModelError categorizes an error returned by the model client.
func ClassifyModelError(err error) ModelErrorType {
	if err == nil {
		return ModelErrorUnknown
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return ModelErrorAuth
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ModelErrorRateLimit
		case apiErr.StatusCode == 529:
			return ModelErrorOverloaded
		case apiErr.StatusCode >= 500:
			return ModelErrorServer
		case apiErr.StatusCode >= 400:
			return ModelErrorBadRequest
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ModelErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ModelErrorTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ModelErrorDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ModelErrorRefused
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "connection refused"):
		return ModelErrorRefused
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return ModelErrorTimeout
	case strings.Contains(lower, "tls"), strings.Contains(lower, "certificate"), strings.Contains(lower, "handshake"):
		return ModelErrorTLS
	}
	return ModelErrorUnknown
}

// FormatModelError renders a model API failure for the terminal.
func FormatModelError(err error) string {
	var b strings.Builder

	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Model request failed"))
	b.WriteString("\n\n")

	action := "Please try the question again."
	switch ClassifyModelError(err) {
	case ModelErrorAuth:
		b.WriteString("The model API rejected the API key.\n")
		action = "Run 'querydesk login' to store a valid key, or set ANTHROPIC_API_KEY."
	case ModelErrorRateLimit:
		b.WriteString("The model API is rate limiting this key.\n")
		action = "Wait a moment and ask again."
	case ModelErrorOverloaded:
		b.WriteString("The model API is temporarily overloaded.\n")
		action = "Wait a moment and ask again."
	case ModelErrorServer:
		b.WriteString("The model API returned a server error.\n")
		b.WriteString("This is not a problem with your setup.\n")
	case ModelErrorTimeout:
		b.WriteString("The model API did not answer in time.\n")
		action = "Check your connection or raise model.timeout in the config file."
	case ModelErrorDNS:
		b.WriteString("Cannot resolve the model API address.\n")
		action = "Check your internet connection and ANTHROPIC_BASE_URL."
	case ModelErrorRefused:
		b.WriteString("The model API refused the connection.\n")
		action = "Check ANTHROPIC_BASE_URL and any proxy or firewall settings."
	case ModelErrorTLS:
		b.WriteString("A secure connection to the model API could not be established.\n")
		action = "Check your system clock and proxy settings."
	case ModelErrorBadRequest:
		b.WriteString("The model API rejected the request.\n")
		action = "Check the configured model name."
	default:
		b.WriteString("The call to the model API failed.\n")
	}

	b.WriteString("\n")
	b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ " + action))
	b.WriteString("\n")

	if err != nil {
		details := Mask(err.Error())
		if len(details) > 300 {
			details = details[:300] + "..."
		}
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + details))
	}
	return b.String()
}
