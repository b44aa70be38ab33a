// Package gatepass renders the printable entry pass for a registered student.
package gatepass

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"

	"gradportal/internal/registration"
)

// Config controls the fixed parts of the pass.
type Config struct {
	EventTitle string
	EventDate  string
	LogoPath   string
	QRPrefix   string
}

// Renderer lays out passes as A4 PDFs.
type Renderer struct {
	cfg Config
}

// NewRenderer creates a renderer.
func NewRenderer(cfg Config) *Renderer {
	if cfg.EventTitle == "" {
		cfg.EventTitle = "Graduation Day"
	}
	if cfg.QRPrefix == "" {
		cfg.QRPrefix = "GD"
	}
	return &Renderer{cfg: cfg}
}

// QRPayload is the text encoded in the pass QR code.
func (r *Renderer) QRPayload(p registration.PassData) string {
	return strings.Join([]string{r.cfg.QRPrefix, p.Student.RollNo, p.Student.Name, p.Student.Branch}, "|")
}

// guestRows is the fixed height of the guest table.
const guestRows = registration.MaxGuests

// Render writes the PDF for p to w.
func (r *Renderer) Render(w io.Writer, p registration.PassData) error {
	png, err := qrcode.Encode(r.QRPayload(p), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("qr encode: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.cfg.EventTitle+" Gate Pass", true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	contentW := pageW - left - right

	if r.cfg.LogoPath != "" {
		if _, err := os.Stat(r.cfg.LogoPath); err == nil {
			pdf.ImageOptions(r.cfg.LogoPath, left, 12, 25, 0, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
			pdf.SetY(40)
		}
	}

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(contentW, 10, tr(r.cfg.EventTitle), "", 1, "C", false, 0, "")
	if r.cfg.EventDate != "" {
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(contentW, 7, tr(r.cfg.EventDate), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 10, "GATE PASS", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	top := pdf.GetY()
	const qrSize = 45.0
	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	pdf.ImageOptions("qr", pageW-right-qrSize, top, qrSize, qrSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	detailW := contentW - qrSize - 5
	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(40, 8, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(detailW-40, 8, tr(value), "", 1, "L", false, 0, "")
	}
	for _, d := range details(p) {
		field(d.label, d.value)
	}

	if y := top + qrSize + 5; pdf.GetY() < y {
		pdf.SetY(y)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 8, "Guest Details", "", 1, "L", false, 0, "")

	cols := []float64{15, contentW * 0.4, contentW * 0.25, contentW - 15 - contentW*0.4 - contentW*0.25}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range []string{"S.No", "Guest Name", "Relationship", "Phone"} {
		pdf.CellFormat(cols[i], 9, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 11)
	for i := 0; i < guestRows; i++ {
		var g registration.Guest
		if i < len(p.Guests) {
			g = p.Guests[i]
		}
		// blank rows stay so guests can be written in by hand
		pdf.CellFormat(cols[0], 9, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(cols[1], 9, tr(g.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[2], 9, tr(g.Relationship), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[3], 9, g.Phone, "1", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(contentW, 5, tr("This pass admits the graduate and the guests listed above. "+
		"Carry a valid photo ID. The QR code is verified at the venue entrance."), "", "L", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf output: %w", err)
	}
	return nil
}

type detail struct {
	label string
	value string
}

// details lists the labelled lines printed beside the QR code.
func details(p registration.PassData) []detail {
	return []detail{
		{"Reference ID", p.Reference.ID},
		{"Roll Number", p.Student.RollNo},
		{"Name", p.Student.Name},
		{"Father / Guardian", p.Student.GuardianName},
		{"Program / Branch", programBranch(p.Student)},
		{"Attendance", attendanceLabel(p.Intent)},
		{"Registered On", p.Reference.CreatedAt.Format("02 Jan 2006")},
	}
}

func programBranch(s registration.Student) string {
	switch {
	case s.Program == "":
		return s.Branch
	case s.Branch == "":
		return s.Program
	}
	return s.Program + " / " + s.Branch
}

func attendanceLabel(i registration.Intent) string {
	switch i {
	case registration.IntentAttending:
		return "Attending"
	case registration.IntentNotAttending:
		return "Not attending"
	default:
		return "Not decided"
	}
}
