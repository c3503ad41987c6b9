// Package artifact renders the printable PDF of an issued document and keeps
// it in an object store.
package artifact

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"docverify/internal/document/encoder"
)

// Input is everything printed on the artifact. ApplicantData is only held in
// memory for the duration of the render.
type Input struct {
	DocumentID       string
	DocumentTitle    string
	IssuedAt         time.Time
	IssuerOffice     string
	VerificationCode string
	ContentHash      string
	KeyID            string
	ApplicantData    map[string]string
	Features         encoder.Features
}

const (
	qrImage      = "qr"
	barcodeImage = "barcode"
)

// RenderPDF lays out an A4 page. Output is deterministic for a given input.
func RenderPDF(in Input) ([]byte, error) {
	qrPNG, err := encoder.RenderQRPNG(in.Features.QRPayload, 256)
	if err != nil {
		return nil, err
	}
	barPNG, err := encoder.RenderBarcodePNG(in.Features.BarcodeSymbol, 600, 120)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(in.IssuedAt)
	pdf.SetModificationDate(in.IssuedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(in.DocumentTitle, true)
	pdf.SetCreator("docverify", false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// watermark first so text draws over it
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(225, 225, 225)
	pdf.TransformBegin()
	pdf.TransformRotate(45, 105, 150)
	pdf.Text(12, 150, tr(in.Features.WatermarkText))
	pdf.TransformEnd()

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, tr(in.DocumentTitle), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Issued by "+in.IssuerOffice+" on "+in.IssuedAt.UTC().Format("2 January 2006")), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, k := range slices.Sorted(maps.Keys(in.ApplicantData)) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(60, 8, tr(fieldLabel(k)), "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, tr(in.ApplicantData[k]), "B", 1, "L", false, 0, "")
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(qrImage, opts, bytes.NewReader(qrPNG))
	pdf.RegisterImageOptionsReader(barcodeImage, opts, bytes.NewReader(barPNG))
	pdf.ImageOptions(qrImage, 150, 215, 45, 45, false, opts, 0, "")
	pdf.ImageOptions(barcodeImage, 15, 235, 110, 22, false, opts, 0, "")

	pdf.SetXY(15, 215)
	pdf.SetFont("Courier", "B", 14)
	pdf.CellFormat(120, 8, "Verification code: "+in.VerificationCode, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetX(15)
	pdf.CellFormat(120, 5, "Verify at "+in.Features.QRPayload, "", 1, "L", false, 0, "")

	// microprint band along the bottom edge
	pdf.SetFont("Helvetica", "", 3)
	pdf.SetTextColor(90, 90, 90)
	band := strings.Repeat(in.Features.MicroprintToken+" ", 24)
	pdf.Text(10, 285, band)
	pdf.Text(10, 286.5, band)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Courier", "", 6)
	pdf.Text(10, 290, fmt.Sprintf("doc %s  sha256 %s  key %s", in.DocumentID, in.ContentHash, in.KeyID))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func fieldLabel(k string) string {
	words := strings.Split(k, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
