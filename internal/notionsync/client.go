package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
)

// maxQueryPageSize is the largest page Notion returns per database query.
const maxQueryPageSize = 100

// NotionClient talks to the Notion API with an integration token.
type NotionClient struct {
	api *notionapi.Client
}

// NewNotionClient returns a client authenticated with token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{api: notionapi.NewClient(notionapi.Token(token))}
}

// CreatePage adds a row to the database.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := n.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage in %s: %w", databaseID, err)
	}
	return page, nil
}

// QueryDatabase fetches one page of database rows. A zero PageSize asks for
// the maximum.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if req == nil {
		req = &notionapi.DatabaseQueryRequest{}
	}
	if req.PageSize == 0 {
		req.PageSize = maxQueryPageSize
	}

	resp, err := n.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase %s: %w", databaseID, err)
	}
	return resp, nil
}

// ArchivePage moves a page to the trash.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	if _, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("ArchivePage %s: %w", pageID, err)
	}
	return nil
}

var _ NotionService = (*NotionClient)(nil)
