// Package ticketpdf renders a printable one-page ticket.
package ticketpdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/kirinyoku/cinetix/internal/domain"
)

type Data struct {
	Ticket     domain.TicketDetails
	HolderName string
	QRPNG      []byte
	Location   *time.Location
}

func Render(d Data) ([]byte, error) {
	const op = "ticketpdf.Render"

	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	t := d.Ticket

	pdf := gofpdf.New("P", "mm", "A5", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Ticket "+t.Number, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.MultiCell(0, 10, tr(t.MovieTitle), "", "C", false)
	pdf.Ln(2)

	if len(d.QRPNG) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		name := "qr_" + t.Number
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(d.QRPNG))

		const side = 70.0
		pageW, _ := pdf.GetPageSize()
		pdf.ImageOptions(name, (pageW-side)/2, pdf.GetY(), side, side, false, opts, 0, "")
		pdf.Ln(side + 4)
	}

	row := func(label, value string) {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(35, 8, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr(value), "", 1, "L", false, 0, "")
	}

	start := t.StartsAt.In(loc)
	row("Theater", t.TheaterName)
	row("Screen", t.ScreenName)
	row("Date", start.Format("Mon, 2 Jan 2006"))
	row("Time", fmt.Sprintf("%s - %s", start.Format("15:04"), t.EndsAt.In(loc).Format("15:04")))
	row("Seat", fmt.Sprintf("%s%d (%s)", t.SeatRow, t.SeatNumber, t.SeatType))
	row("Price", formatCents(t.PriceCents))
	if d.HolderName != "" {
		row("Guest", d.HolderName)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, "Ticket "+t.Number, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Show the QR code at the entrance. It is valid for one entry.", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buf.Bytes(), nil
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d USD", c/100, c%100)
}
