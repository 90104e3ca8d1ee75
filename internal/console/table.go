package console

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pavelanni/speakdrill/internal/model"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// SessionsTable renders archived sessions, newest first as given.
func SessionsTable(sessions []model.SessionRecord) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID,
			s.ScenarioID,
			s.CompletedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d/%d", s.Correct, s.Total),
			s.Elapsed.Round(time.Second).String(),
		})
	}
	return renderTable(
		[]string{"Session", "Scenario", "Completed", "Score", "Elapsed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

// EntriesTable renders the transcript of one session.
func EntriesTable(entries []model.HistoryEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		outcome := string(e.Verdict.Outcome)
		if e.Verdict.TimedOut {
			outcome += " (timeout)"
		}
		rows = append(rows, []string{
			fmt.Sprint(e.Seq),
			string(e.Turn.Speaker),
			e.Turn.Text,
			e.Response,
			outcome,
			string(e.Result),
		})
	}
	return renderTable(
		[]string{"#", "Speaker", "Line", "Response", "Outcome", "Result"},
		rows,
		[]columnAlignment{alignRight},
	)
}

// History prints the sessions table, or the localized empty message.
func (c *Console) History(sessions []model.SessionRecord) {
	if len(sessions) == 0 {
		c.Message("HistoryEmpty")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.println(SessionsTable(sessions))
}
