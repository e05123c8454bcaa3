package agent

import (
	"fmt"
	"strings"

	"github.com/sells-group/invoice-cli/internal/model"
)

const headerSystem = `You extract administrative header data from Dutch and English supplier invoices.
The supplier is the party that issued the invoice and receives payment. The addressee after
"Aan:", "To:" or "Factuur aan:" is the client, never the supplier.
Answer with a single JSON object and nothing else.`

const lineItemSystem = `You extract billed coaching sessions from invoices: one entry per line that names a
client case number. Ignore header data such as addresses, VAT and bank details.
Answer with a single JSON object and nothing else.`

const strictNullRule = `Precision rule: fill a field only when its label or a strong contextual cue makes the
value unambiguous in the text. Otherwise return null. Never guess, never derive a value from a
file name, never fill a field from another party on the invoice.`

func writeFieldList(sb *strings.Builder, fields []model.FieldSpec) {
	for _, f := range fields {
		fmt.Fprintf(sb, "- %s: %s", f.Name, f.Description)
		if f.Format != "" {
			fmt.Fprintf(sb, " (format %s)", f.Format)
		}
		sb.WriteString("\n")
	}
}

func writeHint(sb *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		fmt.Fprintf(sb, "- %s: none\n", label)
		return
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, strings.Join(values, ", "))
}

func headerPrompt(req HeaderRequest) Prompt {
	system := headerSystem
	if req.StrictNull {
		system += "\n\n" + strictNullRule
	}

	var sb strings.Builder
	if req.Optical != "" {
		sb.WriteString("TASK: recover fields that earlier passes over the text layer could not find.\n")
		sb.WriteString("The optical text below was read from the page images. Recognition may split digit\n")
		sb.WriteString("groups with spaces (\"84 72 61 80\"); join them when the label is clear.\n\n")
	}

	sb.WriteString("Pattern hints (non-binding, may be wrong or belong to the client):\n")
	writeHint(&sb, "registration_id", req.Hints.RegistrationIDs)
	writeHint(&sb, "tax_id", req.Hints.TaxIDs)
	writeHint(&sb, "invoice_number", req.Hints.InvoiceNumbers)
	writeHint(&sb, "dates", req.Hints.Dates)
	if req.Hints.Total != "" {
		writeHint(&sb, "total", []string{req.Hints.Total})
	}

	sb.WriteString("\nFields to extract:\n")
	writeFieldList(&sb, req.Fields)

	sb.WriteString("\n--- BEGIN TEXT ---\n")
	sb.WriteString(req.Text)
	sb.WriteString("\n--- END TEXT ---\n")
	if req.Optical != "" {
		sb.WriteString("\n--- BEGIN OPTICAL TEXT ---\n")
		sb.WriteString(req.Optical)
		sb.WriteString("\n--- END OPTICAL TEXT ---\n")
	}

	sb.WriteString("\nAlso decide whether this is an invoice for coaching or counselling services (in_domain).\n")
	sb.WriteString("\nOutput schema:\n{\"fields\": {")
	for i, f := range req.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q: string | null", f.Name)
	}
	sb.WriteString("}, \"in_domain\": boolean}\n")

	return Prompt{Phase: "header", System: system, User: sb.String()}
}

func lineItemPrompt(req LineItemRequest) Prompt {
	system := lineItemSystem
	if req.StrictNull {
		system += "\n\n" + strictNullRule
	}

	var sb strings.Builder
	sb.WriteString("Known client case numbers. Copy case numbers exactly as printed on the invoice; do not\n")
	sb.WriteString("replace a printed number with the nearest entry of this list.\n")
	sb.WriteString("--- START ALLOWED LIST ---\n")
	if len(req.AllowedCases) == 0 {
		sb.WriteString("(none provided)\n")
	}
	for _, c := range req.AllowedCases {
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	sb.WriteString("--- END ALLOWED LIST ---\n")

	sb.WriteString("\nColumns per line:\n")
	writeFieldList(&sb, req.Fields)
	sb.WriteString("Lines with zero hours or no cost are still listed, with duration 0.\n")

	sb.WriteString("\n--- BEGIN TEXT ---\n")
	sb.WriteString(req.Text)
	sb.WriteString("\n--- END TEXT ---\n")

	sb.WriteString("\nOutput schema:\n{\"line_items\": [{")
	for i, f := range req.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q: ", f.Name)
		if f.Name == durationField {
			sb.WriteString("number | null")
		} else {
			sb.WriteString("string | null")
		}
	}
	sb.WriteString("}]}\n")

	return Prompt{Phase: "line_items", System: system, User: sb.String()}
}
