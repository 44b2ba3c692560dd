package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spacesedan/moodjournal/internal/models"
)

const (
	MAX_BATCH_SIZE  = 25
	MAX_RETRIES     = 3
	INITIAL_BACKOFF = 500 * time.Millisecond
)

var ErrEntryNotFound = errors.New("journal entry not found")

// DynamoDBAPI is the subset of *dynamodb.Client the journal store uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// JournalStore keeps entries in a table keyed by owner_id (partition) and
// entry_id (sort). Entry ids are time ordered, so sort order is creation order.
type JournalStore struct {
	client  DynamoDBAPI
	table   string
	backoff time.Duration
}

func NewJournalStore(client DynamoDBAPI, table string) *JournalStore {
	return &JournalStore{client: client, table: table, backoff: INITIAL_BACKOFF}
}

func (s *JournalStore) Table() string {
	return s.table
}

func (s *JournalStore) SaveEntry(ctx context.Context, entry models.JournalEntry) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to marshal entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to put entry: %w", err)
	}

	slog.Info("[DynamoDB] Stored journal entry",
		slog.String("entry_id", entry.EntryID),
		slog.String("mood", entry.Mood.String()))
	return nil
}

func (s *JournalStore) GetEntry(ctx context.Context, ownerID, entryID string) (models.JournalEntry, error) {
	var entry models.JournalEntry

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"owner_id": &types.AttributeValueMemberS{Value: ownerID},
			"entry_id": &types.AttributeValueMemberS{Value: entryID},
		},
	})
	if err != nil {
		return entry, fmt.Errorf("[DynamoDB] Failed to get entry: %w", err)
	}
	if len(out.Item) == 0 {
		return entry, fmt.Errorf("[DynamoDB] %s: %w", entryID, ErrEntryNotFound)
	}

	if err := attributevalue.UnmarshalMap(out.Item, &entry); err != nil {
		return entry, fmt.Errorf("[DynamoDB] Failed to unmarshal entry: %w", err)
	}
	return entry, nil
}

// ListEntries returns every entry of ownerID, newest first.
func (s *JournalStore) ListEntries(ctx context.Context, ownerID string) ([]models.JournalEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("owner_id = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: ownerID},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var entries []models.JournalEntry
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoDB] Query for entries failed: %w", err)
		}

		var page []models.JournalEntry
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			slog.Error("[DynamoDB] Unable to unmarshal current entry page", slog.String("error", err.Error()))
			return nil, err
		}
		entries = append(entries, page...)
	}

	slog.Info("[DynamoDB] Successfully retrieved entries", slog.Int("count", len(entries)))
	return entries, nil
}

// BatchSaveEntries writes entries in chunks of MAX_BATCH_SIZE, retrying
// unprocessed items with doubling backoff. Items still unprocessed after
// MAX_RETRIES are reported as an error.
func (s *JournalStore) BatchSaveEntries(ctx context.Context, entries []models.JournalEntry) error {
	var unwritten int

	for i := 0; i < len(entries); i += MAX_BATCH_SIZE {
		if err := ctx.Err(); err != nil {
			slog.Warn("[DynamoDB] context canceled")
			return err
		}

		end := i + MAX_BATCH_SIZE
		if end > len(entries) {
			end = len(entries)
		}

		writeRequests := make([]types.WriteRequest, 0, end-i)
		for _, entry := range entries[i:end] {
			item, err := attributevalue.MarshalMap(entry)
			if err != nil {
				return fmt.Errorf("[DynamoDB] Failed to marshal entry %s: %w", entry.EntryID, err)
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		remaining, err := s.batchWrite(ctx, writeRequests)
		if err != nil {
			return err
		}
		unwritten += remaining
	}

	if unwritten > 0 {
		slog.Error("[DynamoDB] Some entries were not written even after retries",
			slog.Int("remaining_items", unwritten))
		return fmt.Errorf("[DynamoDB] %d of %d entries left unprocessed", unwritten, len(entries))
	}

	slog.Info("[DynamoDB] Successfully stored all entries", slog.Int("count", len(entries)))
	return nil
}

func (s *JournalStore) batchWrite(ctx context.Context, writeRequests []types.WriteRequest) (int, error) {
	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			s.table: writeRequests,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("[DynamoDB] Failed to batch write entries: %w", err)
	}

	retryCount := 0
	backoff := s.backoff
	for len(out.UnprocessedItems[s.table]) > 0 && retryCount < MAX_RETRIES {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		slog.Warn("[DynamoDB] Retrying unprocessed items...",
			slog.Int("retry_attempt", retryCount+1),
			slog.Int("remaining_items", len(out.UnprocessedItems[s.table])))

		out, err = s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: out.UnprocessedItems,
		})
		if err != nil {
			return 0, fmt.Errorf("[DynamoDB] Failed to retry batch write: %w", err)
		}
		retryCount++
	}

	return len(out.UnprocessedItems[s.table]), nil
}
