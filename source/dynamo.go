package source

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
)

// DynamoAPI is the part of the DynamoDB client used by [DynamoLibrary].
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoLibrary reads items from a table keyed by the string attribute "id".
type DynamoLibrary struct {
	client DynamoAPI
	table  string
}

// NewDynamoLibrary inits a library on table.
func NewDynamoLibrary(client DynamoAPI, table string) *DynamoLibrary {
	return &DynamoLibrary{client: client, table: table}
}

// Get implements [Library].
func (l *DynamoLibrary) Get(ctx context.Context, id string) (Item, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.table),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return Item{}, errors.Wrapf(err, "get item %q", id)
	}

	if out.Item == nil {
		return Item{}, errors.Wrapf(ErrNotFound, "item %q", id)
	}

	return decodeItem(out.Item)
}

// List implements [Library]. It scans the whole table, libraries are expected to be small.
func (l *DynamoLibrary) List(ctx context.Context, q Query) ([]Item, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(l.table)}
	if q.Kind != "" {
		in.FilterExpression = aws.String("#k = :k")
		in.ExpressionAttributeNames = map[string]string{"#k": "kind"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{":k": &types.AttributeValueMemberS{Value: q.Kind}}
	}

	var items []Item
	for {
		out, err := l.client.Scan(ctx, in)
		if err != nil {
			return nil, errors.Wrap(err, "scan library")
		}

		for _, av := range out.Items {
			it, err := decodeItem(av)
			if err != nil {
				return nil, err
			}

			items = append(items, it)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}

		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	slices.SortFunc(items, func(a, b Item) int { return strings.Compare(a.ID, b.ID) })

	return limit(items, q.Limit), nil
}

func decodeItem(av map[string]types.AttributeValue) (it Item, err error) {
	str := func(name string) string {
		if v, ok := av[name].(*types.AttributeValueMemberS); ok {
			return v.Value
		}

		return ""
	}

	it = Item{ID: str("id"), Title: str("title"), Kind: str("kind"), MIME: str("mime"), Key: str("key")}
	if it.ID == "" {
		return Item{}, errors.New("library record without id")
	}

	if v, ok := av["size"].(*types.AttributeValueMemberN); ok {
		if it.Size, err = strconv.ParseInt(v.Value, 10, 64); err != nil {
			return Item{}, errors.Wrapf(err, "item %q: size", it.ID)
		}
	}

	if v, ok := av["tags"].(*types.AttributeValueMemberSS); ok {
		it.Tags = slices.Sorted(slices.Values(v.Value))
	}

	if s := str("added"); s != "" {
		if it.Added, err = time.Parse(time.RFC3339, s); err != nil {
			return Item{}, errors.Wrapf(err, "item %q: added", it.ID)
		}
	}

	return it, nil
}
