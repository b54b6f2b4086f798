package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault_MatchesDocumentedTimings(t *testing.T) {
	c := Default()
	assert.Equal(t, 20*time.Second, c.AutoPause.OpenDebounce)
	assert.Equal(t, 5*time.Second, c.AutoPause.CloseDebounce)
	assert.Equal(t, 30*time.Second, c.AutoPause.Cooldown)
	assert.Equal(t, 5*time.Second, c.AutoPause.ReconciliationPeriod)
	assert.Equal(t, 60*time.Second, c.GPIO.HeartbeatTimeout)
	assert.Equal(t, 15*time.Second, c.GPIO.WatchdogInterval)
	assert.Equal(t, 2, c.AutoPause.WorkerPoolSize)
	assert.Equal(t, "Europe/Madrid", c.Timezone)
}

func TestDSN_FormatsPostgresConnectionString(t *testing.T) {
	c := Default()
	c.Database.Host = "db"
	c.Database.Port = 5432
	c.Database.User = "cremer"
	c.Database.Password = "secret"
	c.Database.Name = "cremerdb"

	assert.Equal(t, "host=db port=5432 user=cremer password=secret dbname=cremerdb sslmode=disable", c.DSN())
}

func TestGPIOAddress_FormatsHostPort(t *testing.T) {
	c := Default()
	c.GPIO.Host = "10.0.0.5"
	c.GPIO.Port = 9000
	assert.Equal(t, "10.0.0.5:9000", c.GPIOAddress())
}
