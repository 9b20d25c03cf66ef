package liststore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/rankstamp/rankstamp/internal/config"
	"github.com/rankstamp/rankstamp/stamp"
)

const cosmosTimeFormat = "2006-01-02T15:04:05.000Z"

// CosmosStore implements the Store interface on an Azure Cosmos DB
// container partitioned by /type. Stamps are stored as lowercase hex in
// stamp_hex; hex preserves byte order, so ORDER BY c.stamp_hex returns
// items in position order and a move replaces one document.
type CosmosStore struct {
	client    *azcosmos.ContainerClient
	database  string
	container string
}

func docIDListCosmos(listID string) string {
	return "list_" + listID
}

func docIDItemCosmos(listID, itemID string) string {
	return "item_" + listID + "_" + itemID
}

func NewCosmosStore(ctx context.Context, cfg *config.CosmosConfig) (*CosmosStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cosmos config is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("cosmos endpoint is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("cosmos database name is required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("cosmos container name is required")
	}

	var cred azcosmos.KeyCredential
	if cfg.Key != "" {
		var err error
		cred, err = azcosmos.NewKeyCredential(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("creating cosmos key credential: %w", err)
		}
	}

	client, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, &azcosmos.ClientOptions{
		ClientOptions: policy.ClientOptions{},
	})
	if err != nil {
		return nil, fmt.Errorf("creating cosmos client: %w", err)
	}

	dbClient, err := client.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("getting database client: %w", err)
	}

	containerClient, err := dbClient.NewContainer(cfg.Container)
	if err != nil {
		return nil, fmt.Errorf("getting container client: %w", err)
	}

	return &CosmosStore{
		client:    containerClient,
		database:  cfg.Database,
		container: cfg.Container,
	}, nil
}

func (s *CosmosStore) Ping(ctx context.Context) error {
	_, err := s.client.Read(ctx, nil)
	return err
}

func (s *CosmosStore) Close() error {
	return nil
}

type cosmosDoc struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	ListID    string `json:"list_id,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Title     string `json:"title,omitempty"`
	StampHex  string `json:"stamp_hex,omitempty"`
	Payload   string `json:"payload,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func cosmosNotFound(err error) bool {
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

func cosmosConflict(err error) bool {
	return strings.Contains(err.Error(), "Conflict") || strings.Contains(err.Error(), "409")
}

// ---- List operations ----

func (s *CosmosStore) CreateList(ctx context.Context, list *ListRecord) error {
	doc := &cosmosDoc{
		ID:        docIDListCosmos(list.ID),
		Type:      "list",
		ListID:    list.ID,
		Title:     list.Title,
		CreatedAt: list.CreatedAt.UTC().Format(cosmosTimeFormat),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling list: %w", err)
	}

	_, err = s.client.CreateItem(ctx, azcosmos.NewPartitionKeyString("list"), data, nil)
	if err != nil {
		if cosmosConflict(err) {
			return fmt.Errorf("%w: %s", ErrListExists, list.ID)
		}
		return fmt.Errorf("creating list: %w", err)
	}
	return nil
}

func (s *CosmosStore) GetList(ctx context.Context, listID string) (*ListRecord, error) {
	resp, err := s.client.ReadItem(ctx, azcosmos.NewPartitionKeyString("list"), docIDListCosmos(listID), nil)
	if err != nil {
		if cosmosNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting list: %w", err)
	}

	var doc cosmosDoc
	if err := json.Unmarshal(resp.Value, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling list: %w", err)
	}
	return docToListCosmos(&doc), nil
}

func (s *CosmosStore) DeleteList(ctx context.Context, listID string) error {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	pager := s.client.NewQueryItemsPager(
		"SELECT c.id FROM c WHERE c.type = 'item' AND c.list_id = @list",
		azcosmos.NewPartitionKeyString("item"),
		&azcosmos.QueryOptions{
			QueryParameters: []azcosmos.QueryParameter{
				{Name: "@list", Value: listID},
			},
		},
	)

	var itemIDs []string
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing items for delete: %w", err)
		}
		for _, raw := range resp.Items {
			var doc cosmosDoc
			if err := json.Unmarshal(raw, &doc); err != nil {
				continue
			}
			itemIDs = append(itemIDs, doc.ID)
		}
	}

	for _, id := range itemIDs {
		_, err := s.client.DeleteItem(ctx, azcosmos.NewPartitionKeyString("item"), id, nil)
		if err != nil && !cosmosNotFound(err) {
			return fmt.Errorf("deleting item %q: %w", id, err)
		}
	}

	_, err = s.client.DeleteItem(ctx, azcosmos.NewPartitionKeyString("list"), docIDListCosmos(listID), nil)
	if err != nil && !cosmosNotFound(err) {
		return fmt.Errorf("deleting list: %w", err)
	}
	return nil
}

func (s *CosmosStore) ListLists(ctx context.Context) ([]*ListRecord, error) {
	pager := s.client.NewQueryItemsPager(
		"SELECT * FROM c WHERE c.type = 'list'",
		azcosmos.NewPartitionKeyString("list"),
		nil,
	)

	var lists []*ListRecord
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing lists: %w", err)
		}
		for _, raw := range resp.Items {
			var doc cosmosDoc
			if err := json.Unmarshal(raw, &doc); err != nil {
				continue
			}
			lists = append(lists, docToListCosmos(&doc))
		}
	}

	sort.Slice(lists, func(i, j int) bool {
		return lists[i].ID < lists[j].ID
	})

	return lists, nil
}

// ---- Item operations ----

func (s *CosmosStore) PutItem(ctx context.Context, item *ItemRecord) error {
	list, err := s.GetList(ctx, item.ListID)
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, item.ListID)
	}

	payload := "{}"
	if item.Payload != nil {
		payload = string(item.Payload)
	}

	doc := &cosmosDoc{
		ID:        docIDItemCosmos(item.ListID, item.ID),
		Type:      "item",
		ListID:    item.ListID,
		ItemID:    item.ID,
		StampHex:  item.Stamp.String(),
		Payload:   payload,
		CreatedAt: item.CreatedAt.UTC().Format(cosmosTimeFormat),
		UpdatedAt: item.UpdatedAt.UTC().Format(cosmosTimeFormat),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = s.client.CreateItem(ctx, azcosmos.NewPartitionKeyString("item"), data, nil)
	if err != nil {
		if cosmosConflict(err) {
			return fmt.Errorf("%w: %s/%s", ErrItemExists, item.ListID, item.ID)
		}
		return fmt.Errorf("putting item: %w", err)
	}
	return nil
}

func (s *CosmosStore) GetItem(ctx context.Context, listID, itemID string) (*ItemRecord, error) {
	resp, err := s.client.ReadItem(ctx, azcosmos.NewPartitionKeyString("item"), docIDItemCosmos(listID, itemID), nil)
	if err != nil {
		if cosmosNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting item: %w", err)
	}

	var doc cosmosDoc
	if err := json.Unmarshal(resp.Value, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	return docToItemCosmos(&doc)
}

func (s *CosmosStore) DeleteItem(ctx context.Context, listID, itemID string) error {
	_, err := s.client.DeleteItem(ctx, azcosmos.NewPartitionKeyString("item"), docIDItemCosmos(listID, itemID), nil)
	if err != nil {
		if cosmosNotFound(err) {
			return s.missingItemErr(ctx, listID, itemID)
		}
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

func (s *CosmosStore) UpdateItemStamp(ctx context.Context, listID, itemID string, st stamp.Stamp, updatedAt time.Time) error {
	return s.replaceItemDoc(ctx, listID, itemID, func(doc *cosmosDoc) {
		doc.StampHex = st.String()
		doc.UpdatedAt = updatedAt.UTC().Format(cosmosTimeFormat)
	})
}

func (s *CosmosStore) UpdateItemPayload(ctx context.Context, listID, itemID string, payload json.RawMessage, updatedAt time.Time) error {
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	return s.replaceItemDoc(ctx, listID, itemID, func(doc *cosmosDoc) {
		doc.Payload = string(payload)
		doc.UpdatedAt = updatedAt.UTC().Format(cosmosTimeFormat)
	})
}

// replaceItemDoc reads an item document, applies mutate, and replaces it.
func (s *CosmosStore) replaceItemDoc(ctx context.Context, listID, itemID string, mutate func(*cosmosDoc)) error {
	docID := docIDItemCosmos(listID, itemID)
	resp, err := s.client.ReadItem(ctx, azcosmos.NewPartitionKeyString("item"), docID, nil)
	if err != nil {
		if cosmosNotFound(err) {
			return s.missingItemErr(ctx, listID, itemID)
		}
		return fmt.Errorf("reading item: %w", err)
	}

	var doc cosmosDoc
	if err := json.Unmarshal(resp.Value, &doc); err != nil {
		return fmt.Errorf("unmarshaling item: %w", err)
	}

	mutate(&doc)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = s.client.ReplaceItem(ctx, azcosmos.NewPartitionKeyString("item"), docID, data, nil)
	if err != nil {
		return fmt.Errorf("replacing item: %w", err)
	}
	return nil
}

func (s *CosmosStore) ListItems(ctx context.Context, listID string, opts ListItemsOptions) (*ListItemsResult, error) {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	pager := s.client.NewQueryItemsPager(
		"SELECT * FROM c WHERE c.type = 'item' AND c.list_id = @list AND c.stamp_hex > @after ORDER BY c.stamp_hex ASC",
		azcosmos.NewPartitionKeyString("item"),
		&azcosmos.QueryOptions{
			QueryParameters: []azcosmos.QueryParameter{
				{Name: "@list", Value: listID},
				{Name: "@after", Value: opts.After.String()},
			},
		},
	)

	items := []*ItemRecord{}
	result := &ListItemsResult{}
	for pager.More() && !result.IsTruncated {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing items: %w", err)
		}
		for _, raw := range resp.Items {
			if opts.Limit > 0 && len(items) == opts.Limit {
				result.IsTruncated = true
				result.NextAfter = items[len(items)-1].Stamp
				break
			}
			var doc cosmosDoc
			if err := json.Unmarshal(raw, &doc); err != nil {
				continue
			}
			item, err := docToItemCosmos(&doc)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}

	result.Items = items
	return result, nil
}

func (s *CosmosStore) NextItem(ctx context.Context, listID string, after stamp.Stamp) (*ItemRecord, error) {
	return s.queryOneItem(ctx,
		"SELECT TOP 1 * FROM c WHERE c.type = 'item' AND c.list_id = @list AND c.stamp_hex > @mark ORDER BY c.stamp_hex ASC",
		listID, after)
}

func (s *CosmosStore) PrevItem(ctx context.Context, listID string, before stamp.Stamp) (*ItemRecord, error) {
	return s.queryOneItem(ctx,
		"SELECT TOP 1 * FROM c WHERE c.type = 'item' AND c.list_id = @list AND c.stamp_hex < @mark ORDER BY c.stamp_hex DESC",
		listID, before)
}

func (s *CosmosStore) queryOneItem(ctx context.Context, query, listID string, mark stamp.Stamp) (*ItemRecord, error) {
	pager := s.client.NewQueryItemsPager(query,
		azcosmos.NewPartitionKeyString("item"),
		&azcosmos.QueryOptions{
			QueryParameters: []azcosmos.QueryParameter{
				{Name: "@list", Value: listID},
				{Name: "@mark", Value: mark.String()},
			},
		},
	)

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying neighbor item: %w", err)
		}
		for _, raw := range resp.Items {
			var doc cosmosDoc
			if err := json.Unmarshal(raw, &doc); err != nil {
				continue
			}
			return docToItemCosmos(&doc)
		}
	}
	return nil, nil
}

func (s *CosmosStore) CountItems(ctx context.Context, listID string) (int64, error) {
	pager := s.client.NewQueryItemsPager(
		"SELECT VALUE COUNT(1) FROM c WHERE c.type = 'item' AND c.list_id = @list",
		azcosmos.NewPartitionKeyString("item"),
		&azcosmos.QueryOptions{
			QueryParameters: []azcosmos.QueryParameter{
				{Name: "@list", Value: listID},
			},
		},
	)

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("counting items: %w", err)
		}
		for _, raw := range resp.Items {
			var count int64
			if err := json.Unmarshal(raw, &count); err != nil {
				return 0, fmt.Errorf("decoding item count: %w", err)
			}
			return count, nil
		}
	}
	return 0, nil
}

// missingItemErr distinguishes a missing list from a missing item.
func (s *CosmosStore) missingItemErr(ctx context.Context, listID, itemID string) error {
	list, err := s.GetList(ctx, listID)
	if err == nil && list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	return fmt.Errorf("%w: %s/%s", ErrItemNotFound, listID, itemID)
}

// ---- Document mappers ----

func docToListCosmos(doc *cosmosDoc) *ListRecord {
	createdAt, _ := time.Parse(cosmosTimeFormat, doc.CreatedAt)
	return &ListRecord{
		ID:        doc.ListID,
		Title:     doc.Title,
		CreatedAt: createdAt,
	}
}

func docToItemCosmos(doc *cosmosDoc) (*ItemRecord, error) {
	st, err := stamp.FromHex(doc.StampHex)
	if err != nil {
		return nil, fmt.Errorf("decoding stamp for %q: %w", doc.ID, err)
	}
	createdAt, _ := time.Parse(cosmosTimeFormat, doc.CreatedAt)
	updatedAt, _ := time.Parse(cosmosTimeFormat, doc.UpdatedAt)
	return &ItemRecord{
		ListID:    doc.ListID,
		ID:        doc.ItemID,
		Stamp:     st,
		Payload:   json.RawMessage(doc.Payload),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
