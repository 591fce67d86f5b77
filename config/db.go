package config

import (
	"fmt"
	"os"
	"time"
)

// DBConfig MySQL 连接配置。
// Replicas 非空时启用 dbresolver 读写分离：写走主库，读走从库。
type DBConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	User            string        `json:"user" yaml:"user"`
	Password        string        `json:"password" yaml:"password"`
	Database        string        `json:"database" yaml:"database"`
	Replicas        []string      `json:"replicas" yaml:"replicas"`               // 从库 DSN 列表（可空）
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`       // 最大连接数
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`       // 最大空闲连接数
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"` // 连接最大存活时间
}

// DSN 拼接主库 DSN。
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// DefaultDBConfig 返回本地开发的默认配置。
// 口令等敏感项优先读环境变量，未设置时回退本地默认值。
func DefaultDBConfig() DBConfig {
	cfg := DBConfig{
		Host:            envOr("MYSQL_HOST", "127.0.0.1"),
		Port:            3306,
		User:            envOr("MYSQL_USER", "root"),
		Password:        envOr("MYSQL_PASSWORD", "root"),
		Database:        envOr("MYSQL_DATABASE", "devtinder"),
		MaxOpenConns:    64,
		MaxIdleConns:    16,
		ConnMaxLifetime: time.Hour,
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
