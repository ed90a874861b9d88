package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// writeCSV writes events as CSV with a header row
func writeCSV(w io.Writer, events []Event) error {
	writer := csv.NewWriter(w)

	header := []string{
		"id", "occurred_at", "actor_id", "provider_id", "action",
		"resource_type", "resource_id", "outcome", "status_code", "request_id",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, ev := range events {
		status := ""
		if ev.StatusCode != 0 {
			status = strconv.Itoa(ev.StatusCode)
		}
		row := []string{
			strconv.FormatInt(ev.ID, 10),
			ev.OccurredAt.UTC().Format(time.RFC3339),
			formatUUIDPtr(ev.ActorID),
			formatUUIDPtr(ev.ProviderID),
			string(ev.Action),
			ev.ResourceType,
			ev.ResourceID,
			string(ev.Outcome),
			status,
			ev.RequestID,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func formatUUIDPtr(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
