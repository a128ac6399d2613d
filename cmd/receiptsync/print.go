package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
	"github.com/vocdoni/gofirma/receiptsync/internal/receipt"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)

	// timeNow is overridden in tests.
	timeNow = time.Now
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printSection(w io.Writer, title string) {
	fmt.Fprintln(w)
	headerColor.Fprintln(w, title)
	headerColor.Fprintln(w, strings.Repeat("─", 50))
}

func printField(w io.Writer, label string, value any) {
	labelColor.Fprintf(w, "  %-22s", label+":")
	fmt.Fprintln(w, value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printReceipt(w io.Writer, r *receipt.Receipt) {
	printSection(w, "Receipt")
	printField(w, "Bundle ID", r.BundleID)
	printField(w, "App version", r.AppVersion)
	printField(w, "Original app version", r.OriginalAppVersion)
	printField(w, "Created", formatTime(r.CreationDate))
	if r.ExpirationDate != nil {
		printField(w, "Expires", formatTime(*r.ExpirationDate))
	}
	printField(w, "Opaque value", fmt.Sprintf("%x", r.OpaqueValue))
	printField(w, "SHA-1 hash", fmt.Sprintf("%x", r.SHA1Hash))

	printSection(w, fmt.Sprintf("Purchases (%d)", len(r.Purchases)))
	now := timeNow()
	for i, p := range r.Purchases {
		dimColor.Fprintf(w, "  [%d] ", i+1)
		labelColor.Fprintf(w, "%s", p.ProductID)
		if p.ProductType != nil {
			dimColor.Fprintf(w, " (%s)", p.ProductType)
		}
		if p.IsActiveAt(now) {
			successColor.Fprint(w, " active")
		} else {
			errorColor.Fprint(w, " inactive")
		}
		fmt.Fprintln(w)
		dimColor.Fprintf(w, "       tx=%s qty=%d purchased=%s", p.TransactionID, p.Quantity, formatTime(p.PurchaseDate))
		if p.ExpiresDate != nil {
			dimColor.Fprintf(w, " expires=%s", formatTime(*p.ExpiresDate))
		}
		if p.CancellationDate != nil {
			dimColor.Fprintf(w, " cancelled=%s", formatTime(*p.CancellationDate))
		}
		fmt.Fprintln(w)
	}
}

func printResult(w io.Writer, r *model.ValidationResult) {
	if r == nil {
		errorColor.Fprintln(w, "No validation result")
		return
	}
	printSection(w, "Validation")
	printField(w, "User ID", deref(r.UserID))
	printField(w, "External user ID", deref(r.ExternalUserID))
	printField(w, "Internal user ID", deref(r.InternalUserID))
	printField(w, "User since", deref(r.UserSince))
	printField(w, "Access valid till", deref(r.AccessValidTill))
	if r.HasAccessAt(timeNow()) {
		successColor.Fprintln(w, "  Access granted")
	} else {
		errorColor.Fprintln(w, "  No access")
	}

	subs := r.PaymentData.Subscriptions.All()
	printSection(w, fmt.Sprintf("Subscriptions (%d)", len(subs)))
	for _, s := range subs {
		mark(w, s.Valid)
		fmt.Fprintf(w, " %s %s expires=%s renewing=%t\n", s.ProductID, s.Status, s.Expiration, s.Renewing)
	}
	ncs := r.PaymentData.NonConsumables.All()
	printSection(w, fmt.Sprintf("Non-consumables (%d)", len(ncs)))
	for _, nc := range ncs {
		mark(w, nc.Valid)
		fmt.Fprintf(w, " %s\n", nc.ProductID)
	}
}

func mark(w io.Writer, valid bool) {
	if valid {
		successColor.Fprint(w, "  ✓")
		return
	}
	errorColor.Fprint(w, "  ✗")
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
