// Package types defines the JSON envelopes the terminal API answers
// with. Every response is either a SuccessEnvelope or an ErrorEnvelope;
// the register UI switches on which key is present.
package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError mirrors the error taxonomy in pkg/errors: Code is the stable
// machine-readable value, Message the operator-facing text.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
