package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-dash/internal/model"
	"github.com/sells-group/prospect-dash/internal/store"
)

var importSourceCode string

// bulkCreator is the COPY fast path; the Postgres store implements it.
type bulkCreator interface {
	BulkCreateProspects(ctx context.Context, prospects []model.Prospect) (int64, error)
}

var importCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import prospects from an XLSX workbook",
	Long: `Imports prospect records from the first sheet of an XLSX workbook.
Expected columns: source code, agency, title, description, notice id,
posted date (YYYY-MM-DD). The first row is treated as a header.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		prospects, err := readProspectRows(args[0])
		if err != nil {
			return err
		}
		if len(prospects) == 0 {
			return eris.New("no prospect rows found")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if bulk, ok := st.(bulkCreator); ok {
			n, err := bulk.BulkCreateProspects(ctx, prospects)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d prospect(s)\n", n)
			return nil
		}

		for i := range prospects {
			if _, err := st.CreateProspect(ctx, &prospects[i]); err != nil {
				return eris.Wrapf(err, "import row %d", i+2)
			}
		}
		fmt.Printf("Imported %d prospect(s)\n", len(prospects))
		return nil
	},
}

func readProspectRows(path string) ([]model.Prospect, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open workbook %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("workbook has no sheets")
	}

	var prospects []model.Prospect
	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue // header
		}
		cells := make([]string, 6)
		for j := 0; j < len(cells) && j < len(row.Cells); j++ {
			cells[j] = row.Cells[j].String()
		}
		if cells[0] == "" && cells[2] == "" {
			continue // blank row
		}

		p := model.Prospect{
			SourceCode:  cells[0],
			Agency:      cells[1],
			Title:       cells[2],
			Description: cells[3],
			NoticeID:    cells[4],
		}
		if importSourceCode != "" {
			p.SourceCode = importSourceCode
		}
		if cells[5] != "" {
			posted, err := time.Parse("2006-01-02", cells[5])
			if err != nil {
				return nil, eris.Wrapf(err, "row %d: bad posted date %q", i+1, cells[5])
			}
			p.PostedDate = &posted
		}
		prospects = append(prospects, p)
	}
	return prospects, nil
}

var _ bulkCreator = (*store.PostgresStore)(nil)

func init() {
	importCmd.Flags().StringVar(&importSourceCode, "source", "", "override source code for all imported rows")
	rootCmd.AddCommand(importCmd)
}
