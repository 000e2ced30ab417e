package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/matching"
	"github.com/spigell/mutual-match/internal/session"
)

var _ session.Store = (*Store)(nil)

// sessionItem is the stored form of a session. Answers are kept as JSON
// strings so an empty answer set stays distinct from a missing one.
type sessionItem struct {
	ID              string    `dynamodbav:"id"`
	PartnerAName    string    `dynamodbav:"partner_a_name"`
	PartnerBName    string    `dynamodbav:"partner_b_name"`
	PartnerAAnatomy string    `dynamodbav:"partner_a_anatomy"`
	PartnerBAnatomy string    `dynamodbav:"partner_b_anatomy"`
	AnswersA        *string   `dynamodbav:"partner_a_answers,omitempty"`
	AnswersB        *string   `dynamodbav:"partner_b_answers,omitempty"`
	EmailA          string    `dynamodbav:"partner_a_email,omitempty"`
	EmailB          string    `dynamodbav:"partner_b_email,omitempty"`
	Paid            bool      `dynamodbav:"paid"`
	PaymentID       string    `dynamodbav:"stripe_session_id,omitempty"`
	ReferralCode    string    `dynamodbav:"referral_code,omitempty"`
	DiscountApplied int       `dynamodbav:"discount_applied"`
	AmountPaid      int64     `dynamodbav:"amount_paid"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
}

func (it sessionItem) toSession() (*session.Session, error) {
	answersA, err := decodeAnswers(it.AnswersA)
	if err != nil {
		return nil, err
	}
	answersB, err := decodeAnswers(it.AnswersB)
	if err != nil {
		return nil, err
	}

	return &session.Session{
		ID:              it.ID,
		PartnerAName:    it.PartnerAName,
		PartnerBName:    it.PartnerBName,
		PartnerAAnatomy: it.PartnerAAnatomy,
		PartnerBAnatomy: it.PartnerBAnatomy,
		AnswersA:        answersA,
		AnswersB:        answersB,
		EmailA:          it.EmailA,
		EmailB:          it.EmailB,
		Paid:            it.Paid,
		PaymentID:       it.PaymentID,
		ReferralCode:    it.ReferralCode,
		DiscountApplied: it.DiscountApplied,
		AmountPaid:      it.AmountPaid,
		CreatedAt:       it.CreatedAt,
	}, nil
}

func decodeAnswers(raw *string) (matching.Answers, error) {
	if raw == nil {
		return nil, nil
	}
	answers := matching.Answers{}
	if err := json.Unmarshal([]byte(*raw), &answers); err != nil {
		return nil, fmt.Errorf("decoding stored answers: %w", err)
	}
	if answers == nil {
		answers = matching.Answers{}
	}
	return answers, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	item, err := attributevalue.MarshalMap(sessionItem{
		ID:              sess.ID,
		PartnerAName:    sess.PartnerAName,
		PartnerBName:    sess.PartnerBName,
		PartnerAAnatomy: sess.PartnerAAnatomy,
		PartnerBAnatomy: sess.PartnerBAnatomy,
		CreatedAt:       sess.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.sessionsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put item in table '%s': %w", s.sessionsTable, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	raw, err := s.getItem(ctx, s.sessionsTable, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, session.ErrNotFound
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return item.toSession()
}

func (s *Store) SaveAnswers(ctx context.Context, id string, sub session.Submission) error {
	encoded, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}

	var answersAttr, emailAttr, condition string
	switch sub.Partner {
	case session.PartnerA:
		answersAttr, emailAttr = "partner_a_answers", "partner_a_email"
		condition = "attribute_exists(id) AND attribute_not_exists(partner_a_answers)"
	case session.PartnerB:
		answersAttr, emailAttr = "partner_b_answers", "partner_b_email"
		condition = "attribute_exists(id) AND attribute_exists(partner_a_answers) AND attribute_not_exists(partner_b_answers)"
	default:
		return fmt.Errorf("%w: unknown partner %q", session.ErrInvalidRequest, sub.Partner)
	}

	values := map[string]types.AttributeValue{
		":answers": &types.AttributeValueMemberS{Value: string(encoded)},
	}
	update := "SET " + answersAttr + " = :answers"
	if sub.Email != "" {
		update += ", " + emailAttr + " = :email"
		values[":email"] = &types.AttributeValueMemberS{Value: sub.Email}
	}
	if sub.Partner == session.PartnerB && sub.Name != "" {
		update += ", partner_b_name = :name"
		values[":name"] = &types.AttributeValueMemberS{Value: sub.Name}
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.sessionsTable),
		Key:                       idKey(id),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeValues: values,
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return fmt.Errorf("failed to update item in table '%s': %w", s.sessionsTable, err)
	}

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	logger.WithFields(s.logger, logger.QuizFields(id, string(sub.Partner))...).Debug("conditional answer write rejected")
	return session.ClassifyRejected(current, sub.Partner)
}

func (s *Store) AttachReferral(ctx context.Context, id, code string, discount int) error {
	values := map[string]types.AttributeValue{
		":discount": &types.AttributeValueMemberN{Value: fmt.Sprint(discount)},
		":false":    &types.AttributeValueMemberBOOL{Value: false},
	}
	update := "SET discount_applied = :discount"
	if code != "" {
		update += ", referral_code = :code"
		values[":code"] = &types.AttributeValueMemberS{Value: code}
	} else {
		update += " REMOVE referral_code"
	}

	return s.updateUnpaid(ctx, id, update, values)
}

func (s *Store) MarkPaid(ctx context.Context, id string, p session.Payment) error {
	values := map[string]types.AttributeValue{
		":true":   &types.AttributeValueMemberBOOL{Value: true},
		":false":  &types.AttributeValueMemberBOOL{Value: false},
		":amount": &types.AttributeValueMemberN{Value: fmt.Sprint(p.AmountCents)},
	}
	sets := []string{"paid = :true", "amount_paid = :amount"}
	if p.PaymentID != "" {
		sets = append(sets, "stripe_session_id = :payment")
		values[":payment"] = &types.AttributeValueMemberS{Value: p.PaymentID}
	}
	if p.ReferralCode != "" {
		sets = append(sets, "referral_code = :code")
		values[":code"] = &types.AttributeValueMemberS{Value: p.ReferralCode}
	}

	return s.updateUnpaid(ctx, id, "SET "+strings.Join(sets, ", "), values)
}

// updateUnpaid applies update only while the session exists and is unpaid.
func (s *Store) updateUnpaid(ctx context.Context, id, update string, values map[string]types.AttributeValue) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.sessionsTable),
		Key:                       idKey(id),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("attribute_exists(id) AND paid = :false"),
		ExpressionAttributeValues: values,
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return fmt.Errorf("failed to update item in table '%s': %w", s.sessionsTable, err)
	}

	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	return session.ErrAlreadyPaid
}

type usageItem struct {
	ReferralCode string `dynamodbav:"referral_code"`
	Paid         bool   `dynamodbav:"paid"`
	AmountPaid   int64  `dynamodbav:"amount_paid"`
}

func (s *Store) ReferralUsage(ctx context.Context) (map[string]session.ReferralUsage, error) {
	raw, err := s.scanAll(ctx, &dynamodb.ScanInput{
		TableName:            aws.String(s.sessionsTable),
		ProjectionExpression: aws.String("referral_code, paid, amount_paid"),
		FilterExpression:     aws.String("attribute_exists(referral_code)"),
	})
	if err != nil {
		return nil, err
	}

	var items []usageItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
	}

	usage := make(map[string]session.ReferralUsage)
	for _, it := range items {
		code := strings.ToUpper(strings.TrimSpace(it.ReferralCode))
		if code == "" {
			continue
		}
		u := usage[code]
		u.Code = code
		u.Uses++
		if it.Paid {
			u.PaidUses++
			u.RevenueCents += it.AmountPaid
		}
		usage[code] = u
	}

	s.logger.Debug("referral usage loaded", zap.Int("codes", len(usage)), zap.Int("sessions", len(items)))
	return usage, nil
}
