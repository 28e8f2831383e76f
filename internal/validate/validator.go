// Package validate classifies candidate upload files against a Policy.
//
// Validation is pure: the same file and policy always produce the same Outcome,
// and nothing is read from or written to the network.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/commons-systems/atelier/internal/files"
)

// ErrTooManyFiles is returned by ValidateBatch when a batch exceeds Policy.MaxFileCount.
var ErrTooManyFiles = errors.New("too many files")

// CountError reports a batch that exceeded the allowed file count.
type CountError struct {
	Count int
	Max   int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("too many files selected: maximum allowed %d, selected %d", e.Max, e.Count)
}

func (e *CountError) Unwrap() error {
	return ErrTooManyFiles
}

// Status classifies a single file.
type Status string

const (
	StatusValid             Status = "valid"
	StatusValidWithWarnings Status = "valid-with-warnings"
	StatusInvalid           Status = "invalid"
)

// Outcome is the result of validating one file.
type Outcome struct {
	Status   Status
	Reason   string   // set when Status is StatusInvalid
	Warnings []string // set when Status is StatusValidWithWarnings
}

// OK reports whether the file may be uploaded.
func (o Outcome) OK() bool {
	return o.Status != StatusInvalid
}

// Accepted is a file that passed validation, possibly with warnings.
type Accepted struct {
	File     files.File
	Warnings []string
}

// Rejection is a file that failed validation.
type Rejection struct {
	File   files.File
	Reason string
}

// Result partitions a batch. Input order is preserved within each slice.
type Result struct {
	Accepted []Accepted
	Rejected []Rejection
}

var dangerousNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[\x00-\x1f\x{7f}-\x{9f}]`),
	regexp.MustCompile(`[<>:"/\\|?*]`),
	regexp.MustCompile(`(?i)^(CON|PRN|AUX|NUL|COM[1-9]|LPT[1-9])(\.|$)`),
}

// Validate applies the policy rules to one file. The first failing rule rejects the file;
// extension and filename problems only add warnings.
func Validate(file files.File, policy Policy) Outcome {
	if file.Size == 0 {
		return invalid(fmt.Sprintf("File %q is empty.", file.Name))
	}

	if policy.MaxSizeBytes > 0 && file.Size > policy.MaxSizeBytes {
		return invalid(fmt.Sprintf("File %q is too large. Maximum size is %s, but file is %s.",
			file.Name, files.FormatSize(policy.MaxSizeBytes), files.FormatSize(file.Size)))
	}

	if !typeAllowed(file, policy.AllowedTypes) {
		declared := file.MimeType
		if declared == "" {
			declared = file.Ext()
		}
		return invalid(fmt.Sprintf("File type %q is not allowed. Allowed types: %s",
			declared, strings.Join(policy.AllowedTypes, ", ")))
	}

	var warnings []string

	if policy.RequireExtensionConsistency {
		if known, ok := extensionMatches(file.MimeType, file.Ext()); known && !ok {
			warnings = append(warnings, fmt.Sprintf(
				"File extension %q does not match declared type %q. This might indicate a renamed file.",
				file.Ext(), file.MimeType))
		}
	}

	for _, pattern := range dangerousNamePatterns {
		if pattern.MatchString(file.Name) {
			warnings = append(warnings, fmt.Sprintf("File name %q contains potentially problematic characters.", file.Name))
			break
		}
	}

	if policy.InspectDocuments && file.MimeType == "application/pdf" && len(file.Data) > 0 {
		if err := inspectPDF(file); err != nil {
			warnings = append(warnings, fmt.Sprintf("PDF %q could not be read: %v", file.Name, err))
		}
	}

	if len(warnings) > 0 {
		return Outcome{Status: StatusValidWithWarnings, Warnings: warnings}
	}
	return Outcome{Status: StatusValid}
}

// ValidateBatch enforces the batch count limit and then validates each file.
func ValidateBatch(batch []files.File, policy Policy) (Result, error) {
	if policy.MaxFileCount > 0 && len(batch) > policy.MaxFileCount {
		return Result{}, &CountError{Count: len(batch), Max: policy.MaxFileCount}
	}

	var result Result
	for _, f := range batch {
		outcome := Validate(f, policy)
		if !outcome.OK() {
			result.Rejected = append(result.Rejected, Rejection{File: f, Reason: outcome.Reason})
			continue
		}
		result.Accepted = append(result.Accepted, Accepted{File: f, Warnings: outcome.Warnings})
	}
	return result, nil
}

// MatchesType reports whether a file satisfies a single allowed-type pattern.
func MatchesType(file files.File, pattern string) bool {
	switch {
	case strings.HasSuffix(pattern, "/*"):
		category := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(file.MimeType, category)
	case strings.HasPrefix(pattern, "."):
		return strings.HasSuffix(strings.ToLower(file.Name), strings.ToLower(pattern))
	default:
		return file.MimeType == pattern
	}
}

func typeAllowed(file files.File, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if MatchesType(file, p) {
			return true
		}
	}
	return false
}

func invalid(reason string) Outcome {
	return Outcome{Status: StatusInvalid, Reason: reason}
}
