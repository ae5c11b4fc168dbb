package xlsxadapter

import (
	"fmt"
	"io"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet    = "Summary"
	candidatesSheet = "Candidates"
)

// ContentType is the MIME type of WriteAggregate output.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteAggregate renders an aggregated result as a two-sheet workbook.
func WriteAggregate(w io.Writer, aggregate entities.AggregatedResult) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	summary := [][]any{
		{"Location", aggregate.LocationID},
		{"Level", string(aggregate.Level)},
		{"Position", string(aggregate.Position)},
		{"Stations reporting", aggregate.StationsReporting},
		{"Total stations", aggregate.TotalStations},
		{"Turnout %", aggregate.TurnoutPercentage},
		{"Registered voters", aggregate.TotalRegisteredVoters},
		{"Votes cast", aggregate.TotalVotesCast},
		{"Valid votes", aggregate.TotalValidVotes},
		{"Rejected votes", aggregate.TotalRejectedVotes},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}

	if _, err := f.NewSheet(candidatesSheet); err != nil {
		return err
	}
	rows := [][]any{{"Rank", "Candidate", "Party", "Votes", "Share %"}}
	for i, candidate := range aggregate.Candidates {
		rows = append(rows, []any{i + 1, candidate.CandidateName, candidate.PartyName, candidate.Votes, candidate.Percentage})
	}
	if err := writeRows(f, candidatesSheet, rows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write aggregate workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
