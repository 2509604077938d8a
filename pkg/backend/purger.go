package backend

import (
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/datafundament/pandregister/pkg/db"
)

func (b *backend) StartPurgerDaemon(stopCh <-chan struct{}) {
	logrus.Infof("starting session purge daemon. Purge interval: %vs, session TTL: %vs",
		b.purgeIntervalSeconds, b.sessionTTLSeconds)
	wait.JitterUntil(b.purge, time.Duration(b.purgeIntervalSeconds)*time.Second, .002, true, stopCh)
}

func (b *backend) purge() {
	sql := b.db.Where("expires_at < ?", time.Now()).Delete(&db.Session{})
	if sql.Error != nil {
		logrus.Errorf("problem purging expired sessions: %v", sql.Error)
		return
	}
	if sql.RowsAffected > 0 {
		logrus.Infof("Sessions purged from DB: %v", sql.RowsAffected)
	}
}
