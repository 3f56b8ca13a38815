package backup

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/stats"
)

func percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// WriteCSV writes the results report of the current data set
func (s *Service) WriteCSV(ctx context.Context, w io.Writer) error {
	snap, err := s.Export(ctx)
	if err != nil {
		return err
	}
	return WriteReport(w, snap.Statistics)
}

// WriteReport renders st as the three-section CSV report
func WriteReport(w io.Writer, st *stats.ElectionStats) error {
	itoa := strconv.Itoa
	rows := [][]string{
		{"Data", "Count"},
		{"Total Voters", itoa(st.TotalVoters)},
		{"Voted Voters", itoa(st.VotedVoters)},
		{"Not Voted", itoa(st.NotVotedVoters)},
		{"Vote Percentage", percent(st.VotePercentage)},
		{"Total Candidates", itoa(st.TotalCandidates)},
		{},
		{"Candidate Results"},
		{"Number", "Name", "Votes", "Percentage"},
	}
	for _, c := range st.Candidates {
		rows = append(rows, []string{itoa(c.Number), c.Name, itoa(c.Votes), percent(c.Percentage)})
	}

	rows = append(rows, []string{}, []string{"Votes by Class"}, []string{"Class", "Total", "Voted", "Percentage"})
	for _, class := range st.Classes {
		c := st.VotesByClass[class]
		rows = append(rows, []string{class, itoa(c.Total), itoa(c.Voted), percent(c.Percentage())})
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
