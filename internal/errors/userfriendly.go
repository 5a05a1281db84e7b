package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps transport errors raised while reaching an endpoint.
func WrapNetworkError(err error, endpoint string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with device at %s", endpoint),
		Reason:  extractNetworkReason(err),
		Hint:    "Device may not be an EtherNet/IP device, or there may be a network connectivity issue",
		Try:     fmt.Sprintf("eipcore read --host %s --tag <name> --log-level debug", endpoint),
		Err:     err,
	}
}

// WrapCIPError wraps CIP exchange errors for display at the command line.
func WrapCIPError(err error, operation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("CIP operation failed: %s", operation),
		Reason:  extractCIPReason(err),
		Hint:    "The device may not support this service, or the tag path may be incorrect",
		Try:     "Check the tag name, then rerun with --log-level debug to see the frames",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Every field is optional; unknown keys are rejected",
		Try:     fmt.Sprintf("eipcore read --config %s --log-level verbose", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - device may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - device may not be listening on this port"
	}
	if strings.Contains(errStr, "no such host") {
		return "Host lookup failed - check the device name or address"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or device unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - device closed the connection unexpectedly"
	}

	return "Network communication failed"
}

func extractCIPReason(err error) string {
	if st, ok := AsStatus(err); ok {
		if st.General == 0xFF && len(st.Extended) > 0 {
			return fmt.Sprintf("Device returned general status 0x%02X with extended status 0x%04X", st.General, st.Extended[0])
		}
		return fmt.Sprintf("Device returned general status 0x%02X", st.General)
	}
	if IsDataFormat(err) {
		return "Received an invalid or malformed frame from the device"
	}
	if IsProtocol(err) {
		return "Reply did not match the request that was sent"
	}
	if strings.Contains(err.Error(), "timeout") {
		return "Device did not respond within timeout period"
	}

	return "CIP protocol error occurred"
}
