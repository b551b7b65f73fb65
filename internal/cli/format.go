package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/Displacement/internal/domain"
)

// maxValueWidth — ширина колонки значения результата в таблице.
const maxValueWidth = 60

// FormatEvent форматирует событие pipeline в строку прогресса.
func FormatEvent(ev domain.Event) string {
	switch ev.Type {
	case domain.EventRunStarted:
		return fmt.Sprintf("run %s started (job %s)", shortID(ev.RunID.String()), ev.JobName)

	case domain.EventStepProgress:
		switch ev.StepStatus {
		case domain.StepStatusInFlight:
			return fmt.Sprintf("  %-9s %s", ev.StepStatus, ev.StepLabel)
		default:
			return fmt.Sprintf("  %-9s %s (%s)", ev.StepStatus, ev.StepLabel, roundDuration(ev.Duration))
		}

	case domain.EventStepResult:
		return fmt.Sprintf("  result    %s = %s", ev.StepKey, FormatValue(ev.Result, maxValueWidth))

	case domain.EventStepFailed:
		return fmt.Sprintf("step %q failed: %s", ev.StepLabel, ev.Error)

	case domain.EventRunFinished:
		if ev.Error != "" {
			return fmt.Sprintf("run ABORTED at step %s after %s", ev.StepKey, roundDuration(ev.Duration))
		}
		return fmt.Sprintf("run COMPLETED in %s", roundDuration(ev.Duration))
	}

	return string(ev.Type)
}

// FormatValue сериализует значение результата в JSON и обрезает до width.
func FormatValue(v any, width int) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "-"
	case string:
		s = val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(data)
		}
	}

	if width > 3 && len(s) > width {
		return s[:width-3] + "..."
	}
	return s
}

// stepRows строит строки таблицы шагов.
func stepRows(steps []StepProgress) [][]string {
	rows := make([][]string, len(steps))
	for i, s := range steps {
		rows[i] = []string{fmt.Sprintf("%d", i+1), s.Key, s.Label, s.Status}
	}
	return rows
}

// resultRows строит строки таблицы результатов в порядке шагов.
func resultRows(steps []StepProgress, results map[string]any) [][]string {
	var rows [][]string
	seen := make(map[string]bool, len(results))
	for _, s := range steps {
		if v, ok := results[s.Key]; ok {
			rows = append(rows, []string{s.Key, FormatValue(v, maxValueWidth)})
			seen[s.Key] = true
		}
	}

	// Ключи вне списка шагов (например, архив со старым каталогом)
	var rest []string
	for k := range results {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		rows = append(rows, []string{k, FormatValue(results[k], maxValueWidth)})
	}

	return rows
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(100 * time.Millisecond)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// fromDomainSteps конвертирует прогресс локального run.
func fromDomainSteps(steps []domain.StepProgress) []StepProgress {
	out := make([]StepProgress, len(steps))
	for i, s := range steps {
		out[i] = StepProgress{Key: s.Key, Label: s.Label, Status: string(s.Status)}
	}
	return out
}
