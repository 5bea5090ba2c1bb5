package db

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the part of *dynamodb.Client the status store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

func NewDynamoClient(cfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg)
}

// DynamoStatusStore keeps one item per sheet row:
// PK = SHEET#<spreadsheet>#<sheet>, SK = ROW#<n>.
type DynamoStatusStore struct {
	api   DynamoAPI
	table string
	pk    string
}

func NewDynamoStatusStore(api DynamoAPI, table, spreadsheetID, sheetName string) *DynamoStatusStore {
	return &DynamoStatusStore{
		api:   api,
		table: table,
		pk:    SheetPK(spreadsheetID, sheetName),
	}
}

func (s *DynamoStatusStore) Load(ctx context.Context, rowNumber int) (*MigrationRecord, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: s.pk},
			"SK": &types.AttributeValueMemberS{Value: RowSK(rowNumber)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrap("get", rowNumber, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var rec MigrationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, wrap("unmarshal", rowNumber, err)
	}
	return &rec, nil
}

func (s *DynamoStatusStore) Save(ctx context.Context, rec MigrationRecord) error {
	rec.PK = s.pk
	rec.SK = RowSK(rec.Row)
	rec.UpdatedAt = now()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return wrap("marshal", rec.Row, err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return wrap("put", rec.Row, err)
	}
	return nil
}
