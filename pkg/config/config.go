package config

import "fmt"

// DatabaseConfig PostgreSQL 连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// GetDSN 拼接 lib/pq 连接串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// GetAddr 返回 host:port 形式的地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MQTTConfig MQTT broker 连接配置
type MQTTConfig struct {
	Broker   string
	Port     int
	Username string
	Password string
	ClientID string
	QoS      byte
}

// GetBrokerURL 返回 tcp:// 形式的 broker 地址
func (c *MQTTConfig) GetBrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}
