package notionsync

import (
	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Notion transactions database.
const (
	PropDescription   = "Description"
	PropTransactionID = "Transaction ID"
	PropMerchant      = "Merchant"
	PropAmount        = "Amount"
	PropPaymentMethod = "Payment Method"
	PropCategory      = "Category"
	PropCreatedAt     = "Created At"
)

// TransactionToNotionProperties converts a stored transaction to Notion properties.
// The store id goes into the numeric "Transaction ID" property, which the
// sync uses to recognise pages it already created.
func TransactionToNotionProperties(tx domain.StoredTransaction) notionapi.Properties {
	createdAt := notionapi.Date(tx.CreatedAt)

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.Description,
					},
				},
			},
		},
		PropTransactionID: notionapi.NumberProperty{
			Number: float64(tx.ID),
		},
		PropMerchant: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.Merchant,
					},
				},
			},
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount,
		},
		PropCategory: notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Category,
			},
		},
		PropCreatedAt: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &createdAt,
			},
		},
	}

	// Notion rejects select options with an empty name
	if tx.PaymentMethod != "" {
		props[PropPaymentMethod] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.PaymentMethod,
			},
		}
	}

	return props
}

// extractTransactionID returns the store id recorded on a Notion page, or
// 0 when the page has none.
func extractTransactionID(page notionapi.Page) int64 {
	if prop, ok := page.Properties[PropTransactionID]; ok {
		if num, ok := prop.(*notionapi.NumberProperty); ok {
			return int64(num.Number)
		}
	}
	return 0
}
