package agent

import (
	"fmt"
	"strings"

	"diagflow/internal/workflow"
)

const interpreterSystem = `You are an automotive diagnostic assistant guiding a technician ` +
	`through a step-by-step troubleshooting procedure. Answer the technician's question ` +
	`in the context of the current diagnostic step. Be specific about measurements, ` +
	`expected values, and safety. Keep answers short and practical.`

const plannerSystem = `You are an automotive diagnostic assistant reviewing the outcome of a ` +
	`just-completed diagnostic step. Recommend whether to continue with the next planned ` +
	`step, whether any remaining steps look unnecessary given the findings, or what to ` +
	`watch for next. Respond with a short recommendation paragraph.`

const synthesizerSystem = `You are an automotive diagnostic assistant writing the final ` +
	`diagnosis for a completed troubleshooting session. Weigh every recorded finding, state ` +
	`the most likely root cause, the recommended repair, and the confidence level. Write for ` +
	`the technician who performed the steps.`

// systemPrompt returns the role framing for a collaborator call.
func systemPrompt(role Role) string {
	switch role {
	case RolePlanner:
		return plannerSystem
	case RoleSynthesizer:
		return synthesizerSystem
	default:
		return interpreterSystem
	}
}

// renderContext flattens the ledger snapshot into the prompt body. The
// collaborator is stateless, so everything it needs rides in here.
func renderContext(role Role, snap workflow.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "DTC code: %s\n", snap.DTCCode)
	fmt.Fprintf(&b, "Vehicle: %s\n", snap.Vehicle.String())
	if snap.Vehicle.Mileage != "" {
		fmt.Fprintf(&b, "Mileage: %s\n", snap.Vehicle.Mileage)
	}
	if len(snap.Research) > 0 {
		fmt.Fprintf(&b, "Research notes: %s\n", string(snap.Research))
	}

	fmt.Fprintf(&b, "\nProgress: step %d of %d (%s)\n", snap.CurrentStepIndex+1, snap.TotalSteps, snap.Status)
	if snap.CurrentStep != nil {
		fmt.Fprintf(&b, "Current step: %s\n%s\n", snap.CurrentStep.Title, snap.CurrentStep.Description)
		if snap.CurrentStep.ExpectedValues != "" {
			fmt.Fprintf(&b, "Expected: %s\n", snap.CurrentStep.ExpectedValues)
		}
	}

	if len(snap.History) > 0 {
		b.WriteString("\nCompleted steps:\n")
		for _, rec := range snap.History {
			fmt.Fprintf(&b, "  %d. findings: %s", rec.StepIndex+1, rec.Findings)
			if rec.TestResults != "" {
				fmt.Fprintf(&b, "; tests: %s", rec.TestResults)
			}
			if rec.Notes != "" {
				fmt.Fprintf(&b, "; notes: %s", rec.Notes)
			}
			fmt.Fprintf(&b, " (confidence %d)\n", rec.Confidence)
		}
	}

	if snap.PendingFindings != "" && role != RoleSynthesizer {
		fmt.Fprintf(&b, "\nFindings so far on the current step: %s\n", snap.PendingFindings)
	}

	if len(snap.RecentTurns) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, turn := range snap.RecentTurns {
			fmt.Fprintf(&b, "  [%s] %s\n", turn.Role, turn.Message)
		}
	}

	switch role {
	case RoleInterpreter:
		fmt.Fprintf(&b, "\nTechnician asks: %s\n", snap.UserMessage)
	case RolePlanner:
		b.WriteString("\nThe step above was just completed. Recommend how to proceed.\n")
	case RoleSynthesizer:
		b.WriteString("\nAll steps are complete. Write the final diagnosis.\n")
	}

	return b.String()
}
