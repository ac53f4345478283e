package main

import (
	"fmt"
	"time"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	matchesSheet  = "Matches"
	sessionsSheet = "Sessions"
)

// buildReport lays matches and sessions out on one sheet each. Blind-date
// rows carry no participant IDs.
func buildReport(matches []models.Match, sessions []models.Session) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", matchesSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(sessionsSheet); err != nil {
		f.Close()
		return nil, err
	}

	rows := [][]interface{}{{"Match ID", "User A", "User B", "Session ID", "Created At"}}
	for _, m := range matches {
		rows = append(rows, []interface{}{m.ID, m.UserLowID, m.UserHighID, m.SessionID, formatTime(&m.CreatedAt)})
	}
	if err := writeRows(f, matchesSheet, rows); err != nil {
		f.Close()
		return nil, err
	}

	rows = [][]interface{}{{"Session ID", "Kind", "Status", "Participant A", "Participant B", "Created At", "Expires At", "Ended At"}}
	for i := range sessions {
		s := &sessions[i]
		var a, b interface{} = s.ParticipantA, s.ParticipantB
		if s.Kind == models.SessionKindBlindDate {
			a, b = "", ""
		}
		rows = append(rows, []interface{}{s.ID, s.Kind, s.Status, a, b, formatTime(&s.CreatedAt), formatTime(s.ExpiresAt), formatTime(s.EndedAt)})
	}
	if err := writeRows(f, sessionsSheet, rows); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return f.SetColWidth(sheet, "A", "H", 20)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
