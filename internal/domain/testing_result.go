package domain

import (
	"time"

	"github.com/spec-kit/change-request-service/internal/checklist"
)

// TestType identifies who produced a testing result.
type TestType string

const (
	TestTypeUAT                   TestType = "UAT"
	TestTypeRequestorConfirmation TestType = "Requestor_Confirmation"
	TestTypeQAValidation          TestType = "QA_Validation"
)

// Valid reports whether the test type is known.
func (t TestType) Valid() bool {
	switch t {
	case TestTypeUAT, TestTypeRequestorConfirmation, TestTypeQAValidation:
		return true
	}
	return false
}

// TestCase is a single scripted test outcome.
type TestCase struct {
	TestCase       string `json:"test_case"`
	ExpectedResult string `json:"expected_result"`
	ActualResult   string `json:"actual_result"`
	Passed         bool   `json:"passed"`
	Remarks        string `json:"remarks,omitempty"`
}

// TestingResult is an insert-only record; the latest of each type is authoritative.
type TestingResult struct {
	ID              string
	ChangeRequestID string
	TestType        TestType
	TestCases       []TestCase
	Checklist       *checklist.Submission
	Summary         *checklist.Summary
	Passed          bool
	Notes           string
	SubmittedBy     string
	CreatedAt       time.Time
}
