package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := &DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "fieldvisit", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=fieldvisit sslmode=disable", c.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "pg.internal")
	t.Setenv("TEST_DB_PORT", "6543")
	t.Setenv("TEST_DB_MAX_CONNS", "not-a-number")

	c := &DatabaseConfig{Host: "localhost", Port: 5432, MaxConns: 10}
	c.LoadFromEnv("TEST_DB")

	assert.Equal(t, "pg.internal", c.Host)
	assert.Equal(t, 6543, c.Port)
	assert.Equal(t, 10, c.MaxConns)
}

func TestMQTTConfig_LoadFromEnv_QoS(t *testing.T) {
	t.Setenv("TEST_MQTT_QOS", "1")
	t.Setenv("TEST_MQTT_BROKER", "tcp://broker:1883")

	c := &MQTTConfig{}
	c.LoadFromEnv("TEST_MQTT")
	assert.Equal(t, byte(1), c.QoS)
	assert.Equal(t, "tcp://broker:1883", c.Broker)
}
