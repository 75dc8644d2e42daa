package notionsync

import (
	"context"

	"github.com/dvloznov/smart-budget/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService defines the interface for interacting with Notion API.
// This interface enables mocking and testing of Notion operations.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage archives a Notion page.
	ArchivePage(ctx context.Context, pageID string) error
}

// TransactionLister pages through stored transactions, newest first.
type TransactionLister interface {
	List(ctx context.Context, limit, offset int) ([]domain.StoredTransaction, error)
}
