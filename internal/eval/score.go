package eval

import (
	"encoding/json"
	"strings"
)

// scoreSample computes the fraction of expected key points present in the
// serialized output. Matching is case-insensitive with underscores
// normalized to spaces on both sides.
func scoreSample(sample Sample, output string) float64 {
	if len(sample.KeyPoints) == 0 {
		return 1
	}
	haystack := normalizeText(output)
	hits := 0
	for _, point := range sample.KeyPoints {
		needle := normalizeText(point)
		if needle == "" {
			hits++
			continue
		}
		if strings.Contains(haystack, needle) {
			hits++
		}
	}
	return float64(hits) / float64(len(sample.KeyPoints))
}

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", " ")
}

// classifyFailure assigns a coarse error class to a failed sample.
func classifyFailure(sample Sample, output string, invokeErr error) FailureClass {
	if invokeErr != nil {
		return FailureExecutionError
	}
	if strings.TrimSpace(output) == "" {
		return FailureNoResponse
	}
	if strings.EqualFold(sample.ExpectedFormat, "json") && !json.Valid([]byte(output)) {
		return FailureFormatError
	}
	return FailureContentMismatch
}
