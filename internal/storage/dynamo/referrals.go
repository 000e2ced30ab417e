package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spigell/mutual-match/internal/referral"
)

var _ referral.Store = (*Store)(nil)

type codeItem struct {
	ID              string    `dynamodbav:"id"`
	Code            string    `dynamodbav:"code"`
	InfluencerName  string    `dynamodbav:"influencer_name"`
	DiscountPercent int       `dynamodbav:"discount_percent"`
	Active          bool      `dynamodbav:"is_active"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
	UpdatedAt       time.Time `dynamodbav:"updated_at"`
}

func (it codeItem) toCode() referral.Code {
	return referral.Code(it)
}

func (s *Store) ListCodes(ctx context.Context) ([]referral.Code, error) {
	raw, err := s.scanAll(ctx, &dynamodb.ScanInput{TableName: aws.String(s.referralsTable)})
	if err != nil {
		return nil, err
	}
	return s.decodeCodes(raw)
}

func (s *Store) decodeCodes(raw []map[string]types.AttributeValue) ([]referral.Code, error) {
	var items []codeItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
	}

	codes := make([]referral.Code, 0, len(items))
	for _, it := range items {
		codes = append(codes, it.toCode())
	}
	sort.SliceStable(codes, func(i, j int) bool {
		if !codes[i].CreatedAt.Equal(codes[j].CreatedAt) {
			return codes[i].CreatedAt.After(codes[j].CreatedAt)
		}
		return codes[i].ID < codes[j].ID
	})
	return codes, nil
}

func (s *Store) GetCode(ctx context.Context, id string) (*referral.Code, error) {
	raw, err := s.getItem(ctx, s.referralsTable, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, referral.ErrNotFound
	}

	var item codeItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal referral code: %w", err)
	}
	code := item.toCode()
	return &code, nil
}

func (s *Store) FindCode(ctx context.Context, value string) (*referral.Code, error) {
	raw, err := s.scanAll(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.referralsTable),
		FilterExpression:          aws.String("#code = :code"),
		ExpressionAttributeNames:  map[string]string{"#code": "code"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":code": &types.AttributeValueMemberS{Value: strings.ToUpper(value)}},
	})
	if err != nil {
		return nil, err
	}

	codes, err := s.decodeCodes(raw)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, referral.ErrNotFound
	}
	return &codes[0], nil
}

// ensureUnique rejects a code value already held by another id. DynamoDB has
// no unique secondary constraint, so two concurrent creates can still race.
func (s *Store) ensureUnique(ctx context.Context, c *referral.Code) error {
	existing, err := s.FindCode(ctx, c.Code)
	if err == nil && existing.ID != c.ID {
		return fmt.Errorf("%w: %s", referral.ErrDuplicate, c.Code)
	}
	if err != nil && !errors.Is(err, referral.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Store) putCode(ctx context.Context, c *referral.Code, condition string) error {
	if err := s.ensureUnique(ctx, c); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(codeItem(*c))
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.referralsTable),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	return err
}

func (s *Store) CreateCode(ctx context.Context, c *referral.Code) error {
	err := s.putCode(ctx, c, "attribute_not_exists(id)")
	if isConditionFailed(err) {
		return fmt.Errorf("%w: id %s", referral.ErrDuplicate, c.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to put item in table '%s': %w", s.referralsTable, err)
	}
	return nil
}

func (s *Store) UpdateCode(ctx context.Context, c *referral.Code) error {
	err := s.putCode(ctx, c, "attribute_exists(id)")
	if isConditionFailed(err) {
		return referral.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to put item in table '%s': %w", s.referralsTable, err)
	}
	return nil
}

func (s *Store) DeleteCode(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.referralsTable),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return referral.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete item from table '%s': %w", s.referralsTable, err)
	}
	return nil
}
