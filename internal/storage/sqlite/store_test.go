package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spigell/mutual-match/internal/matching"
	"github.com/spigell/mutual-match/internal/referral"
	"github.com/spigell/mutual-match/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(memoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createSession(t *testing.T, store *Store, id string) {
	t.Helper()

	err := store.CreateSession(context.Background(), &session.Session{
		ID:              id,
		PartnerAName:    "Alex",
		PartnerBName:    "Sam",
		PartnerAAnatomy: session.DefaultAnatomyA,
		PartnerBAnatomy: session.DefaultAnatomyB,
		CreatedAt:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	createSession(t, store, "quiz-1")

	sess, err := store.GetSession(ctx, "quiz-1")
	require.NoError(t, err)
	require.Equal(t, "Alex", sess.PartnerAName)
	require.Equal(t, session.DefaultAnatomyB, sess.PartnerBAnatomy)
	require.Nil(t, sess.AnswersA)
	require.Nil(t, sess.AnswersB)
	require.False(t, sess.Paid)
	require.True(t, sess.CreatedAt.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))

	_, err = store.GetSession(ctx, "missing")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestSaveAnswersOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	createSession(t, store, "quiz-1")

	answers := matching.Answers{"b1": matching.Enthusiastic, "b2": matching.Never}

	err := store.SaveAnswers(ctx, "quiz-1", session.Submission{Partner: session.PartnerB, Answers: answers})
	require.ErrorIs(t, err, session.ErrPartnerAPending)

	require.NoError(t, store.SaveAnswers(ctx, "quiz-1", session.Submission{Partner: session.PartnerA, Answers: answers, Email: "alex@example.com"}))

	err = store.SaveAnswers(ctx, "quiz-1", session.Submission{Partner: session.PartnerA, Answers: matching.Answers{}})
	require.ErrorIs(t, err, session.ErrAlreadySubmitted)

	require.NoError(t, store.SaveAnswers(ctx, "quiz-1", session.Submission{Partner: session.PartnerB, Answers: matching.Answers{}, Name: "Samantha"}))

	err = store.SaveAnswers(ctx, "quiz-1", session.Submission{Partner: session.PartnerB, Answers: answers})
	require.ErrorIs(t, err, session.ErrAlreadySubmitted)

	err = store.SaveAnswers(ctx, "missing", session.Submission{Partner: session.PartnerA, Answers: answers})
	require.ErrorIs(t, err, session.ErrNotFound)

	sess, err := store.GetSession(ctx, "quiz-1")
	require.NoError(t, err)
	require.Equal(t, answers, sess.AnswersA)
	require.NotNil(t, sess.AnswersB)
	require.Empty(t, sess.AnswersB)
	require.Equal(t, "alex@example.com", sess.EmailA)
	require.Empty(t, sess.EmailB)
	require.Equal(t, "Samantha", sess.PartnerBName)
	require.True(t, sess.Complete())
}

func TestSaveAnswersConcurrentWriters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	createSession(t, store, "quiz-1")

	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			errs <- store.SaveAnswers(ctx, "quiz-1", session.Submission{
				Partner: session.PartnerA,
				Answers: matching.Answers{"b1": matching.Value(v%5 + 1)},
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		require.ErrorIs(t, err, session.ErrAlreadySubmitted)
	}
	require.Equal(t, 1, accepted)
}

func TestMarkPaidAndReferralUsage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"quiz-1", "quiz-2", "quiz-3", "quiz-4"} {
		createSession(t, store, id)
	}

	require.NoError(t, store.AttachReferral(ctx, "quiz-1", "LOVE20", 20))
	require.NoError(t, store.AttachReferral(ctx, "quiz-2", "love20", 20))
	require.NoError(t, store.AttachReferral(ctx, "quiz-3", "OTHER", 10))

	require.NoError(t, store.MarkPaid(ctx, "quiz-1", session.Payment{PaymentID: "cs_1", AmountCents: 799}))
	require.NoError(t, store.MarkPaid(ctx, "quiz-4", session.Payment{PaymentID: "cs_4", AmountCents: 999}))

	err := store.MarkPaid(ctx, "quiz-1", session.Payment{PaymentID: "cs_1", AmountCents: 799})
	require.ErrorIs(t, err, session.ErrAlreadyPaid)
	require.ErrorIs(t, store.AttachReferral(ctx, "quiz-1", "OTHER", 10), session.ErrAlreadyPaid)
	require.ErrorIs(t, store.MarkPaid(ctx, "missing", session.Payment{}), session.ErrNotFound)

	sess, err := store.GetSession(ctx, "quiz-1")
	require.NoError(t, err)
	require.True(t, sess.Paid)
	require.Equal(t, "cs_1", sess.PaymentID)
	require.Equal(t, "LOVE20", sess.ReferralCode)
	require.Equal(t, 20, sess.DiscountApplied)
	require.EqualValues(t, 799, sess.AmountPaid)

	usage, err := store.ReferralUsage(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	require.Equal(t, session.ReferralUsage{Code: "LOVE20", Uses: 2, PaidUses: 1, RevenueCents: 799}, usage["LOVE20"])
	require.Equal(t, session.ReferralUsage{Code: "OTHER", Uses: 1}, usage["OTHER"])
}

func TestReferralCodes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	first := &referral.Code{ID: "r1", Code: "ONE", InfluencerName: "Jules", DiscountPercent: 10, Active: true, CreatedAt: base, UpdatedAt: base}
	second := &referral.Code{ID: "r2", Code: "TWO", InfluencerName: "Robin", Active: false, CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)}

	require.NoError(t, store.CreateCode(ctx, first))
	require.NoError(t, store.CreateCode(ctx, second))
	require.ErrorIs(t, store.CreateCode(ctx, &referral.Code{ID: "r3", Code: "ONE", InfluencerName: "X", CreatedAt: base, UpdatedAt: base}), referral.ErrDuplicate)

	codes, err := store.ListCodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	require.Equal(t, "TWO", codes[0].Code)
	require.False(t, codes[0].Active)

	found, err := store.FindCode(ctx, "one")
	require.NoError(t, err)
	require.Equal(t, "r1", found.ID)
	require.True(t, found.CreatedAt.Equal(base))

	_, err = store.FindCode(ctx, "missing")
	require.ErrorIs(t, err, referral.ErrNotFound)

	found.Code = "TWO"
	require.ErrorIs(t, store.UpdateCode(ctx, found), referral.ErrDuplicate)

	found.Code = "UNO"
	found.DiscountPercent = 25
	require.NoError(t, store.UpdateCode(ctx, found))

	updated, err := store.GetCode(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "UNO", updated.Code)
	require.Equal(t, 25, updated.DiscountPercent)

	require.ErrorIs(t, store.UpdateCode(ctx, &referral.Code{ID: "missing", Code: "NEW"}), referral.ErrNotFound)

	require.NoError(t, store.DeleteCode(ctx, "r1"))
	require.ErrorIs(t, store.DeleteCode(ctx, "r1"), referral.ErrNotFound)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quiz.db")

	store, err := Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	createSession(t, store, "quiz-1")
}
