package employees

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// mockDynamo is an in-memory table keyed by employeeid|employeename with a
// naive secondary index evaluated at query time.
type mockDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	putCalls int
	putErr   error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func str(item map[string]types.AttributeValue, k string) string {
	if v, ok := item[k].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return nil, m.putErr
	}
	k := str(params.Item, attrEmployeeID) + "|" + str(params.Item, attrEmployeeName)
	m.items[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := str(params.Key, attrEmployeeID) + "|" + str(params.Key, attrEmployeeName)
	item, ok := m.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k, item := range m.items {
		if params.IndexName == nil {
			if str(item, attrEmployeeID) == str(params.ExpressionAttributeValues, ":pk") {
				keys = append(keys, k)
			}
			continue
		}
		if str(item, attrEmployeeAge) == str(params.ExpressionAttributeValues, ":age") &&
			str(item, attrEmployeeDesignation) == str(params.ExpressionAttributeValues, ":des") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &dyn.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, m.items[k])
	}
	return out, nil
}

func TestPut_IsIdempotent(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "employees", "by-age")
	ctx := context.Background()

	rec := Record{
		EmployeeID:          "e1",
		EmployeeName:        "Ada",
		EmployeeAge:         "36",
		EmployeeDesignation: "Engineer",
		RecordedAt:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Put(ctx, rec))
	first := mock.items["e1|Ada"]

	require.NoError(t, s.Put(ctx, rec))
	assert.Len(t, mock.items, 1)
	assert.Equal(t, first, mock.items["e1|Ada"])

	got, err := s.Get(ctx, "e1", "Ada")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)
}

func TestPut_MissingKey(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "employees", "by-age")

	err := s.Put(context.Background(), Record{EmployeeID: "e1"})
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.ErrorIs(t, err, pipeline.ErrPersistFailure)
	assert.Equal(t, 0, mock.putCalls)
}

func TestPut_ClientError(t *testing.T) {
	mock := newMockDynamo()
	mock.putErr = &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException", Message: "slow down"}
	s := NewStore(mock, "employees", "by-age")

	err := s.Put(context.Background(), Record{EmployeeID: "e1", EmployeeName: "Ada"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrPersistFailure)
	assert.True(t, IsThrottled(err))
	assert.False(t, IsThrottled(errors.New("other")))
}

func TestGet_NotFound(t *testing.T) {
	s := NewStore(newMockDynamo(), "employees", "by-age")
	got, err := s.Get(context.Background(), "nobody", "none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryByPartitionAndIndex(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "employees", "by-age")
	ctx := context.Background()

	recs := []Record{
		{EmployeeID: "e1", EmployeeName: "Ada", EmployeeAge: "36", EmployeeDesignation: "Engineer"},
		{EmployeeID: "e1", EmployeeName: "Alan", EmployeeAge: "41", EmployeeDesignation: "Engineer"},
		{EmployeeID: "e2", EmployeeName: "Grace", EmployeeAge: "36", EmployeeDesignation: "Engineer"},
		{EmployeeID: "e3", EmployeeName: "Edsger", EmployeeAge: "36", EmployeeDesignation: "Manager"},
	}
	for _, r := range recs {
		require.NoError(t, s.Put(ctx, r))
	}

	byID, err := s.QueryByPartition(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, "Ada", byID[0].EmployeeName)
	assert.Equal(t, "Alan", byID[1].EmployeeName)

	byIndex, err := s.QueryByIndex(ctx, "36", "Engineer")
	require.NoError(t, err)
	require.Len(t, byIndex, 2)
	names := []string{byIndex[0].EmployeeName, byIndex[1].EmployeeName}
	assert.ElementsMatch(t, []string{"Ada", "Grace"}, names)

	none, err := s.QueryByIndex(ctx, "99", "Engineer")
	require.NoError(t, err)
	assert.Empty(t, none)
}
