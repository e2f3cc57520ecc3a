package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/spf13/cobra"
)

// frameCmd represents the frame command.
var frameCmd = &cobra.Command{
	Use:   "frame <document>",
	Short: "Compute the zoom and pan that frame a field",
	Long: `Rasterize a document, locate a field from its recognizer payload and print the
transform that brings the field into view.

The payload defaults to the document path with its extension replaced by .ocr.json.

Examples:
  docframe frame invoice.pdf --field InvoiceTotal
  docframe frame scan.png --ocr scan-results.json --field VendorName --viewport 1024x768
  docframe frame invoice.pdf --field DueDate --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, _ := cmd.Flags().GetString("field")
		payloadPath, _ := cmd.Flags().GetString("ocr")
		viewport, _ := cmd.Flags().GetString("viewport")
		format, _ := cmd.Flags().GetString("format")
		if format != formatText && format != formatJSON {
			return fmt.Errorf("unsupported format: %s", format)
		}

		cfg, err := configWithViewport(GetConfig(), viewport)
		if err != nil {
			return err
		}
		sess, err := openDocument(cmd.Context(), cfg, args[0], payloadPath)
		if err != nil {
			return fmt.Errorf("failed to open document: %w", err)
		}
		defer sess.Close()

		res := sess.LocateField(field)
		if err := res.Err(); err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}

		out := cmd.OutOrStdout()
		if format == formatJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		return writeFrameText(out, res)
	},
}

func writeFrameText(w io.Writer, res review.Result) error {
	st := res.Viewport
	_, err := fmt.Fprintf(w, "Target:    %s\nPage:      %d\nZoom:      %.4f\nTranslate: %.2f, %.2f\n",
		res.Target, st.FramedPageNumber, st.Zoom, st.TranslateX, st.TranslateY)
	if err != nil {
		return err
	}
	if d := res.Diagnostics; d != nil {
		_, err = fmt.Fprintf(w, "Box:       %.1f x %.1f px, centre %.1f, %.1f\nZoom fit:  width %.4f, height %.4f\n",
			d.BoxWidthPx, d.BoxHeightPx, d.CenterX, d.CenterY, d.ZoomW, d.ZoomH)
		if err == nil && d.Degenerate {
			_, err = fmt.Fprintln(w, "Warning:   degenerate region, minimum zoom applied")
		}
	}
	return err
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.Flags().String("field", "", "field name to frame (case-insensitive)")
	frameCmd.Flags().String("ocr", "", "recognizer payload (default <document>.ocr.json)")
	frameCmd.Flags().String("viewport", "", "framing viewport as WIDTHxHEIGHT (default from config)")
	frameCmd.Flags().StringP("format", "f", formatText, "output format: text or json")
	_ = frameCmd.MarkFlagRequired("field")
}
