package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"CareLink/internal/model"
	pkgerrors "CareLink/pkg/errors"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

var escalationColumns = []string{
	"id", "alert_id", "household_id", "escalation_level", "escalated_at",
	"next_escalation_at", "resolved", "resolved_at", "created_at", "updated_at",
}

func TestListDueQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEscalationRepository(db)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "escalations" WHERE resolved = \$1 AND next_escalation_at < \$2 ORDER BY next_escalation_at ASC`).
		WithArgs(false, now).
		WillReturnRows(sqlmock.NewRows(escalationColumns).AddRow(
			id.String(), uuid.NewString(), uuid.NewString(), 1, now.Add(-5*time.Minute),
			now.Add(-time.Second), false, nil, now, now,
		))

	due, err := repo.ListDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.Equal(t, 1, due[0].EscalationLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEscalationRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "escalations"`).WillReturnError(errors.New("connection refused"))

	_, err := repo.ListDue(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAdvanceUsesOptimisticGuard(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEscalationRepository(db)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "escalations" SET .+ WHERE id = \$5 AND resolved = \$6 AND escalation_level = \$7`).
		WithArgs(now, 2, now.Add(5*time.Minute), now, id, false, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Advance(context.Background(), model.Advance{
		EscalationID:     id,
		FromLevel:        1,
		ToLevel:          2,
		EscalatedAt:      now,
		NextEscalationAt: now.Add(5 * time.Minute),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceZeroRowsIsStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEscalationRepository(db)

	mock.ExpectExec(`UPDATE "escalations"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Advance(context.Background(), model.Advance{EscalationID: uuid.New(), FromLevel: 0, ToLevel: 1})
	assert.ErrorIs(t, err, pkgerrors.EscalationStale)
}

func TestOpenIgnoresConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEscalationRepository(db)
	esc := &model.Escalation{
		AlertID:          uuid.New(),
		HouseholdID:      uuid.New(),
		EscalatedAt:      time.Now(),
		NextEscalationAt: time.Now().Add(5 * time.Minute),
	}

	mock.ExpectExec(`INSERT INTO escalations .+ ON CONFLICT DO NOTHING`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO escalations .+ ON CONFLICT DO NOTHING`).WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Open(context.Background(), esc)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, esc.ID)

	created, err = repo.Open(context.Background(), &model.Escalation{AlertID: esc.AlertID, HouseholdID: esc.HouseholdID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSkipsAcknowledgedAlert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEscalationRepository(db)
	esc := &model.Escalation{
		BaseModel:        model.BaseModel{ID: uuid.New()},
		AlertID:          uuid.New(),
		HouseholdID:      uuid.New(),
		EscalatedAt:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		NextEscalationAt: time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC),
	}

	// 确认已先提交：SELECT 不返回行，不插入
	mock.ExpectExec(`INSERT INTO escalations .+ SELECT .+ FROM alerts a\s+WHERE a.id = \$8 AND a.acknowledged = false\s+ON CONFLICT DO NOTHING`).
		WithArgs(esc.ID, esc.HouseholdID, 0, esc.EscalatedAt, esc.NextEscalationAt, sqlmock.AnyArg(), sqlmock.AnyArg(), esc.AlertID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Open(context.Background(), esc)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveUsesOptimisticGuard(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEscalationRepository(db)
	id := uuid.New()
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE "escalations" SET "resolved"=\$1,"resolved_at"=\$2,"updated_at"=\$3 WHERE id = \$4 AND resolved = \$5 AND escalation_level = \$6`).
		WithArgs(true, at, at, id, false, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "escalations"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Resolve(context.Background(), id, 2, at))
	assert.ErrorIs(t, repo.Resolve(context.Background(), id, 2, at), pkgerrors.EscalationStale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveByAlertOnlyTouchesOpenRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEscalationRepository(db)
	alertID := uuid.New()
	at := time.Now()

	mock.ExpectExec(`UPDATE "escalations" SET "resolved"=\$1,"resolved_at"=\$2,"updated_at"=\$3 WHERE alert_id = \$4 AND resolved = \$5`).
		WithArgs(true, at, at, alertID, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.ResolveByAlert(context.Background(), alertID, at)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlertNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAlertRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "alerts" WHERE id = \$1`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsDefinition(err, pkgerrors.AlertNotFound))
}

func TestEngineStoreGetAlert(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewEngineStore(db)
	id := uuid.New()
	triggered := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "alerts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "household_id", "type", "triggered_at", "latitude", "longitude", "acknowledged"}).
			AddRow(id.String(), uuid.NewString(), "sos_triggered", triggered, 51.5, -0.12, false))

	alert, err := store.GetAlert(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.AlertTypeSOSTriggered, alert.Type)
	require.True(t, alert.HasCoordinates())
	assert.InDelta(t, 51.5, *alert.Latitude, 1e-9)
	assert.NoError(t, alert.Validate())
}

func TestAcknowledgeOnlyOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAlertRepository(db)
	alertID, caregiverID := uuid.New(), uuid.New()
	at := time.Now()

	mock.ExpectExec(`UPDATE "alerts" SET .+ WHERE id = \$5 AND acknowledged = \$6`).
		WithArgs(true, at, caregiverID, at, alertID, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.Acknowledge(context.Background(), alertID, caregiverID, at)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRecipients(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecipientRepository(db)
	household := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "households" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "escalation_minutes"}).
			AddRow(household.String(), "The Smiths", 10))
	mock.ExpectQuery(`SELECT \* FROM "patients" WHERE household_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "household_id", "name", "emergency_contacts"}).
			AddRow(uuid.NewString(), household.String(), "Margaret",
				[]byte(`[{"name":"Jane","phone":"555","relationship":"neighbour"},{"name":"Tom","phone":"556","relationship":"son","email":"tom@example.com"}]`)))
	mock.ExpectQuery(`SELECT \* FROM "caregivers" WHERE household_id = \$1 ORDER BY created_at ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "household_id", "name", "email", "device_tokens", "notification_preferences"}).
			AddRow(uuid.NewString(), household.String(), "Sam", "sam@example.com", []byte(`["ExponentPushToken[a]"]`), []byte(`{"safety_alerts":true}`)).
			AddRow(uuid.NewString(), household.String(), "Alex", nil, []byte(`[]`), []byte(`{}`)))

	rec, err := repo.Resolve(context.Background(), household)
	require.NoError(t, err)

	assert.Equal(t, "Margaret", rec.PatientName)
	assert.Equal(t, 10*time.Minute, rec.Interval)
	require.Len(t, rec.EmergencyContacts, 2)
	assert.False(t, rec.EmergencyContacts[0].HasEmail())
	assert.Equal(t, "tom@example.com", rec.EmergencyContacts[1].EmailAddress())
	require.Len(t, rec.Caregivers, 2)
	assert.Equal(t, []string{"ExponentPushToken[a]"}, rec.Caregivers[0].PushTokens())
	assert.Empty(t, rec.Caregivers[1].EmailAddress())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRecipientsEmptyHousehold(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecipientRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "households"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "patients"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "caregivers"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec, err := repo.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, rec.Caregivers)
	assert.Empty(t, rec.EmergencyContacts)
	assert.Zero(t, rec.Interval)
	assert.Equal(t, model.FallbackPatientName, rec.DisplayName())
}
