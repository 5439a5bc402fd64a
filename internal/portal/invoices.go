package portal

import (
	"math"
	"sort"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/dto"
)

// GroupInvoices groups bookings by invoice id. Bookings without one form their own group.
// Each invoice totals its amounts and is dated by its earliest booking; newest invoices first.
func GroupInvoices(bookings []*domain.CourseBooking) []*dto.InvoiceResponse {
	byID := make(map[string]*dto.InvoiceResponse)
	var order []string

	for _, b := range bookings {
		key := b.InvoiceID
		if key == "" {
			key = b.ID
		}

		inv, ok := byID[key]
		if !ok {
			inv = &dto.InvoiceResponse{InvoiceID: key, Currency: b.Currency, Date: b.BookedDate}
			byID[key] = inv
			order = append(order, key)
		}

		inv.Total += b.Amount
		if b.BookedDate.Before(inv.Date) {
			inv.Date = b.BookedDate
		}
		inv.Lines = append(inv.Lines, dto.InvoiceLine{
			BookingID:   b.ID,
			CourseTitle: b.CourseTitle,
			Amount:      b.Amount,
			Status:      b.Status,
			BookedDate:  b.BookedDate,
		})
	}

	out := make([]*dto.InvoiceResponse, 0, len(order))
	for _, key := range order {
		inv := byID[key]
		inv.Total = math.Round(inv.Total*100) / 100
		out = append(out, inv)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}
