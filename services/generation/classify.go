package generation

import (
	"context"
	"errors"
	"strings"

	"github.com/sahilchouksey/study-artifacts/services/extraction"
)

// ErrorType is a general failure category shown to users
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeLLM        ErrorType = "llm"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypePDF        ErrorType = "pdf"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeExtraction ErrorType = "extraction"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// ClassifyError categorizes an error and reports whether retrying could help
func ClassifyError(err error) (ErrorType, bool) {
	if err == nil {
		return ErrorTypeUnknown, false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout, true
	}
	if errors.Is(err, extraction.ErrCorruptDocument) || errors.Is(err, extraction.ErrEmptyDocument) {
		return ErrorTypePDF, false
	}
	if errors.Is(err, ErrNoExtractableDocuments) || errors.Is(err, extraction.ErrAllBatchesFailed) || errors.Is(err, extraction.ErrOCRDisabled) {
		return ErrorTypeExtraction, false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dial") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "reset by peer") {
		return ErrorTypeNetwork, true
	}

	if strings.Contains(errStr, "inference api") ||
		strings.Contains(errStr, "status 429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "status 500") ||
		strings.Contains(errStr, "status 502") ||
		strings.Contains(errStr, "status 503") ||
		strings.Contains(errStr, "status 504") ||
		strings.Contains(errStr, "llm") {
		return ErrorTypeLLM, true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return ErrorTypeTimeout, true
	}

	if strings.Contains(errStr, "database") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "gorm") {
		return ErrorTypeDatabase, false
	}

	if strings.Contains(errStr, "pdf") ||
		strings.Contains(errStr, "extract text") ||
		strings.Contains(errStr, "invalid document") {
		return ErrorTypePDF, false
	}

	if strings.Contains(errStr, "json") ||
		strings.Contains(errStr, "validation") ||
		strings.Contains(errStr, "invalid") ||
		strings.Contains(errStr, "required") {
		return ErrorTypeValidation, false
	}

	return ErrorTypeUnknown, false
}

// UserMessage is the user-facing text for an error category
func UserMessage(t ErrorType) string {
	switch t {
	case ErrorTypeNetwork:
		return "A network problem interrupted generation. Please try again."
	case ErrorTypeLLM:
		return "The AI service is temporarily unavailable. Please try again later."
	case ErrorTypeTimeout:
		return "Generation took too long and was stopped."
	case ErrorTypeDatabase:
		return "The results could not be saved."
	case ErrorTypePDF:
		return "The document could not be read."
	case ErrorTypeValidation:
		return "The generated content was not usable."
	case ErrorTypeExtraction:
		return "No text could be extracted from the uploaded documents."
	}
	return "Something went wrong while generating this content."
}

// DocumentErrorMessage is the user-facing text for a document extraction failure
func DocumentErrorMessage(err error) string {
	switch {
	case errors.Is(err, extraction.ErrEmptyDocument):
		return "The document has no pages."
	case errors.Is(err, extraction.ErrOCRDisabled):
		return "The document is scanned and needs text recognition, which this processing mode does not use."
	case errors.Is(err, extraction.ErrCorruptDocument):
		return "The document is damaged or not in a supported format."
	case errors.Is(err, extraction.ErrAllBatchesFailed):
		return "No text could be extracted from any part of the document."
	}
	t, _ := ClassifyError(err)
	return UserMessage(t)
}
