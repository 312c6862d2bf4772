package extraction

import (
	"strings"

	"github.com/angelmondragon/snapspend-backend/pkg/enums"
)

const systemPromptTemplate = `You extract structured data from photos of paper receipts.
Reply with a single JSON object and nothing else, using exactly these fields:
{
  "store_name": string,
  "store_address": string,
  "receipt_name": string,
  "purchase_date": "YYYY-MM-DD" or "YYYY-MM-DDTHH:MM:SS",
  "total_amount": number,
  "total_tax": number,
  "currency": ISO 4217 code,
  "payment_method": string,
  "logo_search_term": string,
  "items": [
    {
      "name": string,
      "price": number,
      "category": one of {{CATEGORIES}},
      "original_price": number or null,
      "discount_description": string or null,
      "is_discount": boolean
    }
  ]
}
Rules:
- total_amount is the amount actually paid as printed on the receipt.
- price is the amount charged for the line after any discount on that line.
- original_price is only set when the line shows a pre-discount price.
- Discount or coupon lines are separate items with is_discount true and a negative price.
- Use null for values you cannot read. Do not invent items.`

const userPrompt = "Extract the receipt in this image."

const strictRetryPrompt = `Your previous reply could not be parsed.
Reply again with ONLY the JSON object described above: no Markdown fences, no comments, no text before or after it.
Numbers must be plain JSON numbers without currency symbols.`

// SystemPrompt returns the instruction sent with every extraction request.
func SystemPrompt() string {
	labels := make([]string, 0, len(enums.Categories()))
	for _, c := range enums.Categories() {
		labels = append(labels, c.String())
	}
	return strings.Replace(systemPromptTemplate, "{{CATEGORIES}}", strings.Join(labels, ", "), 1)
}
