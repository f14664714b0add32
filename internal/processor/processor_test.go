package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bankmail/internal/imapclient"
	"bankmail/internal/model"
	"bankmail/internal/queue"
)

type fakeConfigStore struct {
	cfg        *model.EmailConfiguration
	findErr    error
	updateErr  error
	checkpoint *time.Time
}

func (f *fakeConfigStore) FindByUserID(ctx context.Context, userID int) (*model.EmailConfiguration, error) {
	return f.cfg, f.findErr
}

func (f *fakeConfigStore) UpdateLastCheckTime(ctx context.Context, userID int, t time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.checkpoint = &t
	return nil
}

type fakeSession struct {
	emails      []imapclient.Email
	fetchErr    error
	markErr     error
	marked      []uint32
	disconnects int
}

func (f *fakeSession) UnreadSince(since time.Time, senders []string) ([]imapclient.Email, error) {
	return f.emails, f.fetchErr
}

func (f *fakeSession) MarkProcessed(uid uint32) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, uid)
	return nil
}

func (f *fakeSession) Disconnect() error {
	f.disconnects++
	return nil
}

type fakeExtractor struct {
	// candidates maps email body to the extraction outcome.
	candidates map[string]*model.TransactionCandidate
	err        error
}

func (f *fakeExtractor) Extract(ctx context.Context, body string, samples []model.SampleEmail) (*model.TransactionCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.candidates[body]; ok {
		return c, nil
	}
	return &model.TransactionCandidate{Amount: model.Unknown}, nil
}

type fakeLedger struct {
	failFor map[string]error // keyed by amount
	posted  []*model.TransactionCandidate
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, userID int, tx *model.TransactionCandidate) error {
	if err, ok := f.failFor[tx.Amount]; ok {
		return err
	}
	f.posted = append(f.posted, tx)
	return nil
}

func okDecrypt(encrypted string) (string, error) { return "app-password", nil }

func enabledConfig() *model.EmailConfiguration {
	return &model.EmailConfiguration{
		UserID:       7,
		IsEnabled:    true,
		IMAPServer:   "imap.example.com",
		IMAPPort:     993,
		EmailAddress: "user@example.com",
		AppPassword:  "encrypted-blob",
	}
}

func jobCtx() context.Context {
	return queue.WithJob(context.Background(), &queue.Job{
		ID:     "email_process_7_1748779200",
		Func:   queue.FuncProcessUserEmails,
		UserID: 7,
	})
}

func newTestProcessor(store *fakeConfigStore, session *fakeSession, ext Extractor, ledger TransactionPoster) (*EmailProcessor, *int) {
	dials := 0
	dial := func(server string, port int, username, password string) (MailSession, error) {
		dials++
		return session, nil
	}
	p := NewEmailProcessor(store, dial, ext, ledger, okDecrypt, nil, zap.NewNop())
	return p, &dials
}

func TestProcessUserEmailsRequiresJobContext(t *testing.T) {
	p, _ := newTestProcessor(&fakeConfigStore{cfg: enabledConfig()}, &fakeSession{}, &fakeExtractor{}, &fakeLedger{})

	result := p.ProcessUserEmails(context.Background(), 7)
	assert.Equal(t, model.StatusError, result.Status)
	assert.Equal(t, "no job context found", result.Error)
}

func TestProcessUserEmailsSkipsMissingConfig(t *testing.T) {
	session := &fakeSession{}
	p, dials := newTestProcessor(&fakeConfigStore{cfg: nil}, session, &fakeExtractor{}, &fakeLedger{})

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusSkipped, result.Status)
	assert.Equal(t, model.ReasonConfigNotFoundOrDisabled, result.Reason)
	assert.Zero(t, *dials, "no connection is opened for a missing configuration")
}

func TestProcessUserEmailsSkipsDisabledConfig(t *testing.T) {
	cfg := enabledConfig()
	cfg.IsEnabled = false
	session := &fakeSession{}
	p, dials := newTestProcessor(&fakeConfigStore{cfg: cfg}, session, &fakeExtractor{}, &fakeLedger{})

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusSkipped, result.Status)
	assert.Equal(t, model.ReasonConfigNotFoundOrDisabled, result.Reason)
	assert.Zero(t, *dials)
}

func TestProcessUserEmailsDecryptFailure(t *testing.T) {
	store := &fakeConfigStore{cfg: enabledConfig()}
	session := &fakeSession{}
	dial := func(server string, port int, username, password string) (MailSession, error) {
		return session, nil
	}
	badDecrypt := func(encrypted string) (string, error) {
		return "", errors.New("invalid key")
	}
	p := NewEmailProcessor(store, dial, &fakeExtractor{}, &fakeLedger{}, badDecrypt, nil, zap.NewNop())

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusError, result.Status)
	assert.Equal(t, "Failed to decrypt app password", result.Error)
	assert.Zero(t, session.disconnects)
}

func TestProcessUserEmailsEmptyInbox(t *testing.T) {
	store := &fakeConfigStore{cfg: enabledConfig()}
	session := &fakeSession{}
	p, _ := newTestProcessor(store, session, &fakeExtractor{}, &fakeLedger{})

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusSuccess, result.Status)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.NotNil(t, result.Errors)
	assert.Empty(t, result.Errors)
	require.NotNil(t, store.checkpoint, "the checkpoint advances on an empty pass")
	assert.Equal(t, 1, session.disconnects)
}

func TestProcessUserEmailsPartialFailure(t *testing.T) {
	store := &fakeConfigStore{cfg: enabledConfig()}
	session := &fakeSession{emails: []imapclient.Email{
		{UID: 101, Subject: "Debit alert", From: "alerts@axisbank.com", Date: time.Now(), Body: "first"},
		{UID: 102, Subject: "Debit alert", From: "alerts@axisbank.com", Date: time.Now(), Body: "second"},
	}}
	ext := &fakeExtractor{candidates: map[string]*model.TransactionCandidate{
		"first":  {Amount: "500.00", Recipient: "AMAZON", Currency: "INR"},
		"second": {Amount: "750.00", Recipient: "SWIGGY", Currency: "INR"},
	}}
	ledger := &fakeLedger{failFor: map[string]error{
		"750.00": errors.New("503 service unavailable"),
	}}
	p, _ := newTestProcessor(store, session, ext, ledger)

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusSuccess, result.Status,
		"a partially failed batch still completes")
	assert.Equal(t, 1, result.ProcessedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "failed to create transaction for email 102")

	assert.Equal(t, []uint32{101}, session.marked,
		"only the posted email is marked; the failed one stays unseen for retry")
	require.NotNil(t, store.checkpoint,
		"the checkpoint still advances after a partial failure")
}

func TestProcessUserEmailsSkipsNonActionable(t *testing.T) {
	store := &fakeConfigStore{cfg: enabledConfig()}
	session := &fakeSession{emails: []imapclient.Email{
		{UID: 201, Body: "promo"},
		{UID: 202, Body: "debit"},
	}}
	ext := &fakeExtractor{candidates: map[string]*model.TransactionCandidate{
		"promo": {Amount: model.Unknown},
		"debit": {Amount: "120.00", Recipient: "UBER"},
	}}
	ledger := &fakeLedger{}
	p, _ := newTestProcessor(store, session, ext, ledger)

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, 1, result.ProcessedCount)
	assert.Empty(t, result.Errors, "non-actionable emails are skipped, not errors")
	require.Len(t, ledger.posted, 1)
	assert.Equal(t, "120.00", ledger.posted[0].Amount)
	assert.Equal(t, []uint32{202}, session.marked)
}

func TestProcessUserEmailsExtractionErrorSkipsEmail(t *testing.T) {
	store := &fakeConfigStore{cfg: enabledConfig()}
	session := &fakeSession{emails: []imapclient.Email{{UID: 301, Body: "x"}}}
	ext := &fakeExtractor{err: errors.New("model overloaded")}
	p, _ := newTestProcessor(store, session, ext, &fakeLedger{})

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusSuccess, result.Status)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.Empty(t, result.Errors)
	assert.Empty(t, session.marked, "an unextractable email stays unseen")
}

func TestProcessUserEmailsStampsProvenance(t *testing.T) {
	store := &fakeConfigStore{cfg: enabledConfig()}
	sent := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	session := &fakeSession{emails: []imapclient.Email{
		{UID: 404, Subject: "Debit INR 99", From: "alerts@axisbank.com", Date: sent, Body: "debit"},
	}}
	ext := &fakeExtractor{candidates: map[string]*model.TransactionCandidate{
		"debit": {Amount: "99.00", Recipient: "NETFLIX"},
	}}
	ledger := &fakeLedger{}
	p, _ := newTestProcessor(store, session, ext, ledger)

	p.ProcessUserEmails(jobCtx(), 7)

	require.Len(t, ledger.posted, 1)
	tx := ledger.posted[0]
	assert.Equal(t, "404", tx.EmailID)
	assert.Equal(t, "Debit INR 99", tx.EmailSubject)
	assert.Equal(t, "alerts@axisbank.com", tx.EmailFrom)
	assert.Equal(t, sent.Format(time.RFC3339), tx.EmailDate)
}

func TestProcessUserEmailsMarkFailureIsBatchError(t *testing.T) {
	store := &fakeConfigStore{cfg: enabledConfig()}
	session := &fakeSession{
		emails:  []imapclient.Email{{UID: 501, Body: "debit"}},
		markErr: errors.New("connection reset"),
	}
	ext := &fakeExtractor{candidates: map[string]*model.TransactionCandidate{
		"debit": {Amount: "10.00", Recipient: "SHOP"},
	}}
	p, _ := newTestProcessor(store, session, ext, &fakeLedger{})

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusSuccess, result.Status)
	assert.Equal(t, 1, result.ProcessedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "failed to mark email 501 processed")
}

func TestProcessUserEmailsDisconnectsOnEveryExit(t *testing.T) {
	cases := []struct {
		name    string
		session *fakeSession
		store   *fakeConfigStore
		status  string
	}{
		{
			name:    "fetch failure",
			session: &fakeSession{fetchErr: errors.New("mailbox locked")},
			store:   &fakeConfigStore{cfg: enabledConfig()},
			status:  model.StatusError,
		},
		{
			name:    "checkpoint failure",
			session: &fakeSession{},
			store:   &fakeConfigStore{cfg: enabledConfig(), updateErr: errors.New("deadlock")},
			status:  model.StatusError,
		},
		{
			name:    "clean pass",
			session: &fakeSession{},
			store:   &fakeConfigStore{cfg: enabledConfig()},
			status:  model.StatusSuccess,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTestProcessor(tc.store, tc.session, &fakeExtractor{}, &fakeLedger{})

			result := p.ProcessUserEmails(jobCtx(), 7)

			assert.Equal(t, tc.status, result.Status)
			assert.Equal(t, 1, tc.session.disconnects,
				"the session is disconnected exactly once")
		})
	}
}

func TestProcessUserEmailsConfigQueryError(t *testing.T) {
	p, dials := newTestProcessor(&fakeConfigStore{findErr: errors.New("connection refused")}, &fakeSession{}, &fakeExtractor{}, &fakeLedger{})

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusError, result.Status)
	assert.Contains(t, result.Error, "failed to load configuration")
	assert.Zero(t, *dials)
}

func TestProcessUserEmailsDialError(t *testing.T) {
	store := &fakeConfigStore{cfg: enabledConfig()}
	dial := func(server string, port int, username, password string) (MailSession, error) {
		return nil, fmt.Errorf("dial tcp: connection refused")
	}
	p := NewEmailProcessor(store, dial, &fakeExtractor{}, &fakeLedger{}, okDecrypt, nil, zap.NewNop())

	result := p.ProcessUserEmails(jobCtx(), 7)

	assert.Equal(t, model.StatusError, result.Status)
	assert.Contains(t, result.Error, "failed to connect")
}
