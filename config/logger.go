package config

import "os"

// LoggerConfig 日志组件配置。
// 默认输出到 stdout/stderr，文件输出与滚动交给外部系统（如容器日志采集）。
type LoggerConfig struct {
	Level            string   `json:"level" yaml:"level"`                       // 日志级别 debug/info/warn/error
	Encoding         string   `json:"encoding" yaml:"encoding"`                 // 编码 json/console
	Development      bool     `json:"development" yaml:"development"`           // 开发模式（error 级别带堆栈）
	EnableColor      bool     `json:"enableColor" yaml:"enableColor"`           // console 模式下彩色等级
	OutputPaths      []string `json:"outputPaths" yaml:"outputPaths"`           // 普通日志输出路径
	ErrorOutputPaths []string `json:"errorOutputPaths" yaml:"errorOutputPaths"` // 错误日志输出路径
}

// DefaultLoggerConfig 返回本地开发的默认配置。
// 级别可通过 LOG_LEVEL 覆盖，方便排障时临时调低。
func DefaultLoggerConfig() LoggerConfig {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return LoggerConfig{
		Level:            level,
		Encoding:         "json",
		Development:      false,
		EnableColor:      false,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}
