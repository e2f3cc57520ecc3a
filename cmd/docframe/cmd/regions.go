package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/MeKo-Tech/docframe/internal/ocr"
	"github.com/spf13/cobra"
)

// Output formats shared by the document commands.
const (
	formatText = "text"
	formatJSON = "json"
)

// regionsCmd represents the regions command.
var regionsCmd = &cobra.Command{
	Use:   "regions <payload.ocr.json>",
	Short: "List the localizable regions of a recognizer payload",
	Long: `Project every field and line item bounding region of a recognizer payload onto
its page and print the result as percentages of the page size.

Targets without a usable polygon or page size are omitted.

Examples:
  docframe regions invoice.ocr.json
  docframe regions invoice.ocr.json --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != formatText && format != formatJSON {
			return fmt.Errorf("unsupported format: %s", format)
		}

		payload, err := ocr.LoadFile(args[0])
		if err != nil {
			return err
		}
		regions := payload.Regions()

		out := cmd.OutOrStdout()
		if format == formatJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(regions)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "KIND\tTARGET\tPAGE\tX%\tY%\tW%\tH%")
		for _, l := range regions {
			target := l.Name
			if l.Kind == "line_item" {
				target = fmt.Sprintf("#%d", l.Index)
			}
			r := l.Region
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
				l.Kind, target, r.PageNumber, r.XPct, r.YPct, r.WidthPct, r.HeightPct)
		}
		return tw.Flush()
	},
}

// stem returns the file name of path without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func init() {
	rootCmd.AddCommand(regionsCmd)
	regionsCmd.Flags().StringP("format", "f", formatText, "output format: text or json")
}
