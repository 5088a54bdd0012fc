package repair

import (
	"fmt"
	"strings"
)

const maxEcho = 400

// GenerateRepairPrompt tells the model why its last answer was rejected.
// missing lists the required keys the answer lacked; otherwise decodeErr
// explains why it could not be decoded.
func GenerateRepairPrompt(output string, decodeErr error, missing []string, required []string) string {
	var sb strings.Builder

	sb.WriteString("Your previous answer could not be accepted.\n\n")
	if trimmed := truncate(strings.TrimSpace(output)); trimmed != "" {
		sb.WriteString("---\n")
		sb.WriteString(trimmed)
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("Issues found:\n")
	switch {
	case len(missing) > 0:
		sb.WriteString(fmt.Sprintf("- Missing required keys: %s.\n", strings.Join(missing, ", ")))
	case decodeErr != nil:
		sb.WriteString(fmt.Sprintf("- The answer is not a usable JSON object (%v).\n", decodeErr))
	default:
		sb.WriteString("- The answer does not match the requested format.\n")
	}

	if len(required) > 0 {
		sb.WriteString(fmt.Sprintf("\nRespond with one JSON object containing the keys: %s.", strings.Join(required, ", ")))
	}
	sb.WriteString("\nDo not add text before or after the JSON object.")

	return sb.String()
}

// GenerateEscalationPrompt is used when the model repeats a rejected answer verbatim.
func GenerateEscalationPrompt(output string, required []string) string {
	var sb strings.Builder

	sb.WriteString("The previous answers are repeating and were rejected each time.\n")
	sb.WriteString("Do NOT repeat the previous output; produce a corrected answer.\n")
	if len(required) > 0 {
		sb.WriteString(fmt.Sprintf("\nThe answer must be one JSON object with the keys: %s.\n", strings.Join(required, ", ")))
	}

	sb.WriteString("\nPrevious output:\n---\n")
	sb.WriteString(truncate(strings.TrimSpace(output)))
	sb.WriteString("\n---\n")

	return sb.String()
}

func truncate(s string) string {
	if len(s) <= maxEcho {
		return s
	}
	return s[:maxEcho] + "..."
}
