package ai

import (
	"fmt"
	"strings"

	"flowtask-backend/internal/tasks"
)

const contextListCap = 5

// BuildTaskContext summarizes the user's task data for the assistant:
// today's counts, global counts, completion rate, and the top pending
// lists, capped so the prompt stays small.
func BuildTaskContext(all []tasks.Task, today string) string {
	var total, completed, todayTotal, todayCompleted int
	var todayPending, highPriority []tasks.Task

	for _, t := range all {
		total++
		if t.Completed {
			completed++
		}
		if t.Date == today {
			todayTotal++
			if t.Completed {
				todayCompleted++
			} else {
				todayPending = append(todayPending, t)
			}
		}
		if !t.Completed && t.Priority == tasks.PriorityHigh {
			highPriority = append(highPriority, t)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current task data:\n")
	fmt.Fprintf(&b, "- Today's date: %s\n", today)
	fmt.Fprintf(&b, "- Today's tasks: %d total (%d completed, %d pending)\n",
		todayTotal, todayCompleted, todayTotal-todayCompleted)
	fmt.Fprintf(&b, "- All tasks: %d total (%d completed, %d pending)\n",
		total, completed, total-completed)
	fmt.Fprintf(&b, "- Completion rate: %.1f%%\n", tasks.CompletionRate(completed, total))
	fmt.Fprintf(&b, "- High priority pending: %d\n", len(highPriority))

	b.WriteString("\nToday's pending tasks:\n")
	writeTaskLines(&b, todayPending, func(t tasks.Task) string {
		return fmt.Sprintf("- %s (%s)", t.Text, t.Priority)
	})

	b.WriteString("\nHigh priority pending tasks:\n")
	writeTaskLines(&b, highPriority, func(t tasks.Task) string {
		return fmt.Sprintf("- %s (due: %s)", t.Text, t.Date)
	})

	return b.String()
}

func writeTaskLines(b *strings.Builder, ts []tasks.Task, line func(tasks.Task) string) {
	if len(ts) == 0 {
		b.WriteString("- None\n")
		return
	}
	for i, t := range ts {
		if i == contextListCap {
			break
		}
		b.WriteString(line(t))
		b.WriteString("\n")
	}
}

// SystemPrompt frames the assistant around the user's actual task data.
func SystemPrompt(taskContext string) string {
	return fmt.Sprintf(`You are FlowAI, an intelligent and helpful task management assistant for FlowTask Pro.
You help users understand their productivity, prioritize tasks, and plan their work effectively.

%s

Guidelines:
- Be concise but helpful
- Provide specific insights based on the user's actual task data
- Suggest actionable improvements
- Use a friendly, encouraging tone
- If asked about specific tasks, reference the actual data
- Format responses with clear sections when appropriate
- Keep responses under 200 words unless more detail is requested`, taskContext)
}
