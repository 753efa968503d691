// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import "chemdash/internal/core/apperror"

// --- List Response ---

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
	Limit int `json:"limit,omitempty"`
}

// NewListResponse creates a list response.
func NewListResponse[T any](items []T, limit int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items), Limit: limit}
}

// --- Error Response ---

// ErrorResponse is the body written by middleware.ErrorHandler.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewErrorResponse renders p for the client.
func NewErrorResponse(p *apperror.AppError) ErrorResponse {
	return ErrorResponse{Code: p.Code, Message: p.Message, Details: p.Details}
}
