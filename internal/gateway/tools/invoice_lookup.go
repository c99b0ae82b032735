package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Invoice is one row of the mock billing dataset.
type Invoice struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"` // 'paid' | 'pending' | 'overdue'
	DueDate     string  `json:"due_date"`
	Customer    string  `json:"customer"`
	Description string  `json:"description"`
	PaymentDate string  `json:"payment_date,omitempty"`
}

// companyInvoices is keyed by the tenant's company key; tenants only ever see
// their own company's rows.
var companyInvoices = map[string]map[string]Invoice{
	"techcorp": {
		"INV-TC-001": {
			ID: "INV-TC-001", Amount: 15000.00, Status: "paid", DueDate: "2025-01-15",
			Customer: "Acme Solutions Inc", Description: "Annual Enterprise License - Q1 2025",
			PaymentDate: "2025-01-10",
		},
		"INV-TC-002": {
			ID: "INV-TC-002", Amount: 8500.00, Status: "pending", DueDate: "2025-02-01",
			Customer: "StartupHub Ltd", Description: "Professional Plan - 50 seats",
		},
		"INV-TC-003": {
			ID: "INV-TC-003", Amount: 3200.00, Status: "overdue", DueDate: "2024-12-15",
			Customer: "Global Tech Partners", Description: "Consulting Services - November 2024",
		},
	},
	"healthfirst": {
		"INV-HF-001": {
			ID: "INV-HF-001", Amount: 4200.00, Status: "paid", DueDate: "2025-01-20",
			Customer: "City Medical Group", Description: "Telehealth Platform - January",
			PaymentDate: "2025-01-17",
		},
		"INV-HF-002": {
			ID: "INV-HF-002", Amount: 980.00, Status: "pending", DueDate: "2025-02-05",
			Customer: "Wellness Clinic", Description: "Patient Portal Subscription",
		},
	},
}

// InvoiceLookup resolves an invoice by id within the caller's company data.
type InvoiceLookup struct{}

// NewInvoiceLookup creates the invoice lookup tool.
func NewInvoiceLookup() *InvoiceLookup {
	return &InvoiceLookup{}
}

// Name returns the tool identifier.
func (t *InvoiceLookup) Name() string {
	return "invoice_lookup"
}

// Execute looks up params["invoice_id"] in the caller's company dataset.
func (t *InvoiceLookup) Execute(ctx context.Context, params map[string]any, tc CallContext) (map[string]any, error) {
	invoiceID, ok := params["invoice_id"].(string)
	if !ok || invoiceID == "" {
		return nil, fmt.Errorf("invoice_id parameter is required")
	}

	invoices, ok := companyInvoices[tc.CompanyKey]
	if !ok {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("invoice %s not found", invoiceID),
		}, nil
	}

	invoice, ok := invoices[strings.ToUpper(invoiceID)]
	if !ok {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("invoice %s not found", invoiceID),
		}, nil
	}

	return map[string]any{
		"success": true,
		"invoice": invoice,
	}, nil
}

var (
	invoiceCompanyPattern = regexp.MustCompile(`(?i)INV-[A-Z]+-\d+`)
	invoiceLegacyPattern  = regexp.MustCompile(`(?i)INV-?\d+`)
	invoiceNumberPattern  = regexp.MustCompile(`(?i)(?:invoice|inv|order|id)\s*[:\-#]?\s*(\d+)`)
)

// ExtractInvoiceID pulls an invoice identifier out of free-form text.
// Supports company-scoped ids (INV-TC-001), legacy ids (INV-001, INV001),
// and trailing numbers after invoice-ish keywords. Returns "" when nothing
// matches.
func ExtractInvoiceID(message string) string {
	if m := invoiceCompanyPattern.FindString(message); m != "" {
		return strings.ToUpper(m)
	}
	if m := invoiceLegacyPattern.FindString(message); m != "" {
		id := strings.ToUpper(m)
		if !strings.Contains(id, "-") {
			id = strings.Replace(id, "INV", "INV-", 1)
		}
		return id
	}
	if m := invoiceNumberPattern.FindStringSubmatch(message); m != nil {
		num := m[1]
		for len(num) < 3 {
			num = "0" + num
		}
		return "INV-" + num
	}
	return ""
}

// HasInvoiceIntent reports whether the message looks invoice related.
func HasInvoiceIntent(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "invoice") ||
		strings.Contains(lower, "inv-") ||
		strings.Contains(lower, "inv ")
}
