package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/prospect-dash/internal/model"
	"github.com/sells-group/prospect-dash/internal/store"
)

var (
	exportOut      string
	exportSource   string
	exportAgency   string
	exportEnhanced bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export prospects to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		prospects, err := st.ListProspects(ctx, store.ProspectFilter{
			SourceCode:   exportSource,
			Agency:       exportAgency,
			EnhancedOnly: exportEnhanced,
		})
		if err != nil {
			return eris.Wrap(err, "list prospects")
		}

		if err := writeWorkbook(exportOut, prospects); err != nil {
			return err
		}
		fmt.Printf("Exported %d prospect(s) to %s\n", len(prospects), exportOut)
		return nil
	},
}

var exportHeaders = []string{
	"id", "source", "agency", "title", "enhanced title", "notice id",
	"posted date", "estimated value min", "estimated value max",
	"contact name", "contact email", "contact title",
	"naics code", "naics description",
}

func writeWorkbook(path string, prospects []model.Prospect) error {
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Prospects")
	if err != nil {
		return eris.Wrap(err, "add sheet")
	}

	title := cases.Title(language.AmericanEnglish)
	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetString(title.String(h))
	}

	for _, p := range prospects {
		row := sheet.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.SourceCode)
		row.AddCell().SetString(p.Agency)
		row.AddCell().SetString(p.Title)
		row.AddCell().SetString(p.EnhancedTitle)
		row.AddCell().SetString(p.NoticeID)
		row.AddCell().SetString(formatDate(p.PostedDate))
		row.AddCell().SetString(formatValue(p.EstimatedValueMin))
		row.AddCell().SetString(formatValue(p.EstimatedValueMax))
		row.AddCell().SetString(p.ContactName)
		row.AddCell().SetString(p.ContactEmail)
		row.AddCell().SetString(p.ContactTitle)
		row.AddCell().SetString(p.NAICSCode)
		row.AddCell().SetString(p.NAICSDescription)
	}

	if err := wb.Save(path); err != nil {
		return eris.Wrapf(err, "save workbook %s", path)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "prospects.xlsx", "output file path")
	exportCmd.Flags().StringVar(&exportSource, "source", "", "filter by source code")
	exportCmd.Flags().StringVar(&exportAgency, "agency", "", "filter by agency")
	exportCmd.Flags().BoolVar(&exportEnhanced, "enhanced", false, "only fully enhanced prospects")
	rootCmd.AddCommand(exportCmd)
}
