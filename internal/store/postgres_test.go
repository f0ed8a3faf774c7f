package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/mailblast/internal/domain"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func campaignColumns() []string {
	return []string{
		"id", "name", "subject", "from_name", "from_email", "reply_to",
		"body", "template_id", "list_id", "variables", "status",
		"created_at", "updated_at",
	}
}

func TestGetCampaign(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows(campaignColumns()).AddRow(
			"camp-1", "Launch", "Hi {{name}}", "Acme", "news@acme.test", "",
			"Welcome!", nil, "list-1", []byte(`{"product":"Acme"}`), "draft",
			now, now,
		))

	c, err := s.GetCampaign(context.Background(), "camp-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "Launch" || c.Status != domain.CampaignDraft {
		t.Errorf("campaign = %+v", c)
	}
	if c.TemplateID != nil {
		t.Error("template_id NULL should map to nil")
	}
	if c.ListID == nil || *c.ListID != "list-1" {
		t.Errorf("list_id = %v", c.ListID)
	}
	if c.Variables["product"] != "Acme" {
		t.Errorf("variables = %v", c.Variables)
	}
}

func TestGetCampaign_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM campaigns WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(campaignColumns()))

	_, err := s.GetCampaign(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want domain.ErrNotFound", err)
	}
}

func TestGetTemplate_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM templates WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "engine", "body", "created_at", "updated_at"}))

	_, err := s.GetTemplate(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want domain.ErrNotFound", err)
	}
}

func TestResolveRecipients(t *testing.T) {
	s, mock := newMockStore(t)
	listID := "list-1"
	c := &domain.Campaign{ID: "camp-1", ListID: &listID}

	mock.ExpectQuery(`SELECT .+ FROM recipients`).
		WithArgs("list-1").
		WillReturnRows(sqlmock.NewRows([]string{"external_id", "address", "display_name"}).
			AddRow("sub-1", "a@example.com", "Ada").
			AddRow("sub-2", "b@example.com", ""))

	got, err := s.ResolveRecipients(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d recipients", len(got))
	}
	if got[0].Address != "a@example.com" || got[0].DisplayName != "Ada" {
		t.Errorf("first recipient = %+v", got[0])
	}
}

func TestResolveRecipients_NoList(t *testing.T) {
	s, _ := newMockStore(t)

	if _, err := s.ResolveRecipients(context.Background(), &domain.Campaign{ID: "camp-1"}); err == nil {
		t.Error("expected error for a campaign without a list")
	}
}

func TestPersistDeliveryOutcome_Upsert(t *testing.T) {
	s, mock := newMockStore(t)
	r := domain.Recipient{ExternalID: "sub-1", Address: "a@example.com"}

	// Retried deliveries write the same key twice; both must be upserts.
	for i := 0; i < 2; i++ {
		mock.ExpectExec(`INSERT INTO campaign_deliveries .+ ON CONFLICT \(campaign_id, address\) DO UPDATE`).
			WithArgs("camp-1", "a@example.com", "sub-1", string(domain.DeliveryCompleted), "msg-1", "").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for i := 0; i < 2; i++ {
		if err := s.PersistDeliveryOutcome(context.Background(), "camp-1", r, domain.DeliveryCompleted, "msg-1", ""); err != nil {
			t.Fatal(err)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPersistCampaignFinal(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE campaigns SET`).
		WithArgs("camp-1", string(domain.CampaignPartialSuccess), 10, 8, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.PersistCampaignFinal(context.Background(), "camp-1",
		domain.CampaignPartialSuccess, domain.Totals{Total: 10, Completed: 8, Failed: 2})
	if err != nil {
		t.Fatal(err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
