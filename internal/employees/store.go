package employees

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/aws"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// ErrMissingKey is returned when a record lacks part of its primary key.
var ErrMissingKey = errors.New("record is missing employee_id or employee_name")

// Store encapsulates operations on the employees table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	indexName string
}

// NewStore creates a new employees Store.
func NewStore(client aws.DynamoDBAPI, tableName, indexName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		indexName: indexName,
	}
}

// Put writes rec, replacing any item with the same (employeeid, employeename).
// Writing the same record twice leaves the table as writing it once.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.EmployeeID == "" || rec.EmployeeName == "" {
		return fmt.Errorf("%w: %w", pipeline.ErrPersistFailure, ErrMissingKey)
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %w", pipeline.ErrPersistFailure, err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("%w: put item: %w", pipeline.ErrPersistFailure, err)
	}
	return nil
}

// Get fetches one record by primary key. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, employeeID, employeeName string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			attrEmployeeID:   &types.AttributeValueMemberS{Value: employeeID},
			attrEmployeeName: &types.AttributeValueMemberS{Value: employeeName},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// QueryByPartition returns every record sharing employeeID, across all sort keys.
func (s *Store) QueryByPartition(ctx context.Context, employeeID string) ([]Record, error) {
	return s.query(ctx, &dyn.QueryInput{
		TableName:                &s.tableName,
		KeyConditionExpression:   awsString("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": attrEmployeeID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: employeeID},
		},
	})
}

// QueryByIndex reads through the secondary index. The index is updated
// asynchronously, so a record written moments ago may not be visible yet.
func (s *Store) QueryByIndex(ctx context.Context, age, designation string) ([]Record, error) {
	return s.query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              &s.indexName,
		KeyConditionExpression: awsString("#age = :age AND #des = :des"),
		ExpressionAttributeNames: map[string]string{
			"#age": attrEmployeeAge,
			"#des": attrEmployeeDesignation,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":age": &types.AttributeValueMemberS{Value: age},
			":des": &types.AttributeValueMemberS{Value: designation},
		},
	})
}

func (s *Store) query(ctx context.Context, input *dyn.QueryInput) ([]Record, error) {
	var out []Record
	p := dyn.NewQueryPaginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		var recs []Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, fmt.Errorf("unmarshal records: %w", err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

// IsThrottled reports whether err is a DynamoDB capacity or throttling error.
func IsThrottled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return true
	}
	return false
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
