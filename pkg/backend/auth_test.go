package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
)

func testBackend(t *testing.T) (Backend, *gorm.DB) {
	t.Helper()
	database, err := db.New(context.Background(), "sqlite", ":memory:", &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewBackend(database, 3600, 60), database
}

func TestLoginAndVerify(t *testing.T) {
	back, _ := testBackend(t)

	require.NoError(t, back.CreateUser("jan", "geheim", true))

	resp, err := back.Login("jan", "geheim")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	require.True(t, resp.Staff)

	actor, err := back.VerifySession(resp.Token)
	require.NoError(t, err)
	require.Equal(t, model.Actor{Username: "jan", Staff: true}, actor)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	back, _ := testBackend(t)

	require.NoError(t, back.CreateUser("jan", "geheim", true))

	_, err := back.Login("jan", "fout")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = back.Login("onbekend", "geheim")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyUnknownTokenIsAnonymous(t *testing.T) {
	back, _ := testBackend(t)

	actor, err := back.VerifySession("niet-bestaand")
	require.NoError(t, err)
	require.True(t, actor.IsAnonymous())

	actor, err = back.VerifySession("")
	require.NoError(t, err)
	require.True(t, actor.IsAnonymous())
}

func TestExpiredSessionIsAnonymous(t *testing.T) {
	back, database := testBackend(t)

	require.NoError(t, back.CreateUser("jan", "geheim", true))
	resp, err := back.Login("jan", "geheim")
	require.NoError(t, err)

	require.NoError(t, database.Model(&db.Session{}).
		Where("token = ?", resp.Token).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	actor, err := back.VerifySession(resp.Token)
	require.NoError(t, err)
	require.True(t, actor.IsAnonymous())
}

func TestLogoutInvalidatesSession(t *testing.T) {
	back, _ := testBackend(t)

	require.NoError(t, back.CreateUser("jan", "geheim", false))
	resp, err := back.Login("jan", "geheim")
	require.NoError(t, err)

	require.NoError(t, back.Logout(resp.Token))

	actor, err := back.VerifySession(resp.Token)
	require.NoError(t, err)
	require.True(t, actor.IsAnonymous())
}

func TestDuplicateUsername(t *testing.T) {
	back, _ := testBackend(t)

	require.NoError(t, back.CreateUser("jan", "geheim", true))
	err := back.CreateUser("jan", "anders", false)

	var violation model.ConstraintViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "unique_username", violation.Constraint)
}

func TestPurgeRemovesExpiredSessions(t *testing.T) {
	back, database := testBackend(t)

	require.NoError(t, back.CreateUser("jan", "geheim", true))
	fresh, err := back.Login("jan", "geheim")
	require.NoError(t, err)
	stale, err := back.Login("jan", "geheim")
	require.NoError(t, err)

	require.NoError(t, database.Model(&db.Session{}).
		Where("token = ?", stale.Token).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	back.(*backend).purge()

	var tokens []string
	require.NoError(t, database.Model(&db.Session{}).Pluck("token", &tokens).Error)
	require.Equal(t, []string{fresh.Token}, tokens)
}
