package liststore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rankstamp/rankstamp/internal/config"
	"github.com/rankstamp/rankstamp/stamp"
)

const firestoreTimeFormat = "2006-01-02T15:04:05.000Z"

// FirestoreStore implements the Store interface on a single Firestore
// collection. Items carry their stamp as a bytes field; Firestore orders
// bytes values bytewise, so an OrderBy("stamp") query returns items in
// position order and a move updates one document.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func docIDList(listID string) string {
	return "list_" + listID
}

func docIDItem(listID, itemID string) string {
	return "item_" + listID + "_" + itemID
}

func NewFirestoreStore(ctx context.Context, cfg *config.FirestoreConfig) (*FirestoreStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore config is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "rankstamp"
	}

	return &FirestoreStore{
		client:     client,
		collection: collection,
	}, nil
}

func (s *FirestoreStore) collectionRef() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.collectionRef().Limit(1).Documents(ctx).Next()
	if err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ---- List operations ----

func (s *FirestoreStore) CreateList(ctx context.Context, list *ListRecord) error {
	docRef := s.collectionRef().Doc(docIDList(list.ID))
	_, err := docRef.Create(ctx, map[string]interface{}{
		"type":       "list",
		"id":         list.ID,
		"title":      list.Title,
		"created_at": list.CreatedAt.UTC().Format(firestoreTimeFormat),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", ErrListExists, list.ID)
		}
		return fmt.Errorf("creating list: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetList(ctx context.Context, listID string) (*ListRecord, error) {
	docRef := s.collectionRef().Doc(docIDList(listID))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting list: %w", err)
	}
	if !doc.Exists() {
		return nil, nil
	}
	return docToList(doc.Data()), nil
}

func (s *FirestoreStore) DeleteList(ctx context.Context, listID string) error {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	docs, err := s.collectionRef().
		Where("type", "==", "item").
		Where("list_id", "==", listID).
		Select().
		Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("listing items for delete: %w", err)
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	batch.Delete(s.collectionRef().Doc(docIDList(listID)))

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("deleting list: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListLists(ctx context.Context) ([]*ListRecord, error) {
	docs, err := s.collectionRef().
		Where("type", "==", "list").
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}

	var lists []*ListRecord
	for _, doc := range docs {
		lists = append(lists, docToList(doc.Data()))
	}

	sort.Slice(lists, func(i, j int) bool {
		return lists[i].ID < lists[j].ID
	})

	return lists, nil
}

// ---- Item operations ----

func (s *FirestoreStore) PutItem(ctx context.Context, item *ItemRecord) error {
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

	docRef := s.collectionRef().Doc(docIDItem(item.ListID, item.ID))
	_, err = docRef.Create(ctx, map[string]interface{}{
		"type":       "item",
		"list_id":    item.ListID,
		"id":         item.ID,
		"stamp":      []byte(item.Stamp),
		"payload":    payload,
		"created_at": item.CreatedAt.UTC().Format(firestoreTimeFormat),
		"updated_at": item.UpdatedAt.UTC().Format(firestoreTimeFormat),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s/%s", ErrItemExists, item.ListID, item.ID)
		}
		return fmt.Errorf("putting item: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetItem(ctx context.Context, listID, itemID string) (*ItemRecord, error) {
	docRef := s.collectionRef().Doc(docIDItem(listID, itemID))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if !doc.Exists() {
		return nil, nil
	}
	return docToItem(doc.Data()), nil
}

func (s *FirestoreStore) DeleteItem(ctx context.Context, listID, itemID string) error {
	item, err := s.GetItem(ctx, listID, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return s.missingItemErr(ctx, listID, itemID)
	}

	docRef := s.collectionRef().Doc(docIDItem(listID, itemID))
	if _, err := docRef.Delete(ctx); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateItemStamp(ctx context.Context, listID, itemID string, st stamp.Stamp, updatedAt time.Time) error {
	docRef := s.collectionRef().Doc(docIDItem(listID, itemID))
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "stamp", Value: []byte(st)},
		{Path: "updated_at", Value: updatedAt.UTC().Format(firestoreTimeFormat)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return s.missingItemErr(ctx, listID, itemID)
		}
		return fmt.Errorf("updating item stamp: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateItemPayload(ctx context.Context, listID, itemID string, payload json.RawMessage, updatedAt time.Time) error {
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	docRef := s.collectionRef().Doc(docIDItem(listID, itemID))
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "payload", Value: string(payload)},
		{Path: "updated_at", Value: updatedAt.UTC().Format(firestoreTimeFormat)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return s.missingItemErr(ctx, listID, itemID)
		}
		return fmt.Errorf("updating item payload: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListItems(ctx context.Context, listID string, opts ListItemsOptions) (*ListItemsResult, error) {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	query := s.collectionRef().
		Where("type", "==", "item").
		Where("list_id", "==", listID).
		OrderBy("stamp", firestore.Asc)

	if opts.After != "" {
		query = query.StartAfter([]byte(opts.After))
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit + 1)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	items := []*ItemRecord{}
	for _, doc := range docs {
		items = append(items, docToItem(doc.Data()))
	}

	result := &ListItemsResult{Items: items}
	if opts.Limit > 0 && len(items) > opts.Limit {
		result.Items = items[:opts.Limit]
		result.IsTruncated = true
		result.NextAfter = result.Items[opts.Limit-1].Stamp
	}
	return result, nil
}

func (s *FirestoreStore) NextItem(ctx context.Context, listID string, after stamp.Stamp) (*ItemRecord, error) {
	query := s.collectionRef().
		Where("type", "==", "item").
		Where("list_id", "==", listID).
		OrderBy("stamp", firestore.Asc)
	if after != "" {
		query = query.StartAfter([]byte(after))
	}

	doc, err := query.Limit(1).Documents(ctx).Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding item after stamp: %w", err)
	}
	return docToItem(doc.Data()), nil
}

func (s *FirestoreStore) PrevItem(ctx context.Context, listID string, before stamp.Stamp) (*ItemRecord, error) {
	if before == "" {
		return nil, nil
	}

	doc, err := s.collectionRef().
		Where("type", "==", "item").
		Where("list_id", "==", listID).
		OrderBy("stamp", firestore.Desc).
		StartAfter([]byte(before)).
		Limit(1).
		Documents(ctx).Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding item before stamp: %w", err)
	}
	return docToItem(doc.Data()), nil
}

func (s *FirestoreStore) CountItems(ctx context.Context, listID string) (int64, error) {
	docs, err := s.collectionRef().
		Where("type", "==", "item").
		Where("list_id", "==", listID).
		Select().
		Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return int64(len(docs)), nil
}

// missingItemErr distinguishes a missing list from a missing item.
func (s *FirestoreStore) missingItemErr(ctx context.Context, listID, itemID string) error {
	list, err := s.GetList(ctx, listID)
	if err == nil && list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	return fmt.Errorf("%w: %s/%s", ErrItemNotFound, listID, itemID)
}

// ---- Document mappers ----

func getStringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBytesFromMap(m map[string]interface{}, key string) []byte {
	if v, ok := m[key]; ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

func docToList(m map[string]interface{}) *ListRecord {
	createdAt, _ := time.Parse(firestoreTimeFormat, getStringFromMap(m, "created_at"))
	return &ListRecord{
		ID:        getStringFromMap(m, "id"),
		Title:     getStringFromMap(m, "title"),
		CreatedAt: createdAt,
	}
}

func docToItem(m map[string]interface{}) *ItemRecord {
	createdAt, _ := time.Parse(firestoreTimeFormat, getStringFromMap(m, "created_at"))
	updatedAt, _ := time.Parse(firestoreTimeFormat, getStringFromMap(m, "updated_at"))
	return &ItemRecord{
		ListID:    getStringFromMap(m, "list_id"),
		ID:        getStringFromMap(m, "id"),
		Stamp:     stamp.Stamp(getBytesFromMap(m, "stamp")),
		Payload:   json.RawMessage(getStringFromMap(m, "payload")),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}
