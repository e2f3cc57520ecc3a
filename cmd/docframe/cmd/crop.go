package cmd

import (
	"fmt"
	"image"
	"os"
	"strconv"

	"github.com/MeKo-Tech/docframe/internal/utils"
	"github.com/spf13/cobra"
)

// cropCmd represents the crop command.
var cropCmd = &cobra.Command{
	Use:   "crop <document>",
	Short: "Write a cropped preview of a field or line item",
	Long: `Rasterize a document and write the padded region of a field or line item,
cut from the high resolution page raster, as PNG.

Examples:
  docframe crop invoice.pdf --line-item 0
  docframe crop invoice.pdf --field InvoiceTotal -o total.png
  docframe crop scan.png --ocr scan-results.json --line-item 3 -o item-3.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, _ := cmd.Flags().GetString("field")
		payloadPath, _ := cmd.Flags().GetString("ocr")
		output, _ := cmd.Flags().GetString("output")
		lineItem := -1
		if cmd.Flags().Changed("line-item") {
			lineItem, _ = cmd.Flags().GetInt("line-item")
			if lineItem < 0 {
				return fmt.Errorf("invalid line item index: %d", lineItem)
			}
		}

		sess, err := openDocument(cmd.Context(), GetConfig(), args[0], payloadPath)
		if err != nil {
			return fmt.Errorf("failed to open document: %w", err)
		}
		defer sess.Close()

		var (
			img    image.Image
			page   int
			target string
		)
		if lineItem >= 0 {
			res := sess.LocateLineItem(lineItem)
			if err := res.Err(); err != nil {
				return fmt.Errorf("line item %d: %w", lineItem, err)
			}
			img, page, target = res.Crop.Image, res.Crop.PageNumber, "line-item-"+strconv.Itoa(lineItem)
		} else {
			c, err := sess.PreviewField(field)
			if err != nil {
				return fmt.Errorf("field %s: %w", field, err)
			}
			img, page, target = c.Image, c.PageNumber, field
		}

		if output == "" {
			output = fmt.Sprintf("%s-%s.png", stem(args[0]), target)
		}
		if err := writePNGFile(output, img); err != nil {
			return err
		}
		b := img.Bounds()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%dx%d, page %d)\n", output, b.Dx(), b.Dy(), page)
		return nil
	},
}

func writePNGFile(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // G304: output path is chosen by the user
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := utils.EncodePNG(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(cropCmd)
	cropCmd.Flags().String("field", "", "field name to crop (case-insensitive)")
	cropCmd.Flags().Int("line-item", 0, "line item index to crop")
	cropCmd.Flags().String("ocr", "", "recognizer payload (default <document>.ocr.json)")
	cropCmd.Flags().StringP("output", "o", "", "output PNG path (default <document>-<target>.png)")
	cropCmd.MarkFlagsMutuallyExclusive("field", "line-item")
	cropCmd.MarkFlagsOneRequired("field", "line-item")
}
