// Package output 渲染 relayctl 的命令结果
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/relayctl/internal/service"
)

// Ack 非查询类命令的结果
type Ack struct {
	Command    string `json:"command" yaml:"command"`
	DeviceAddr string `json:"device_addr" yaml:"device_addr"`
	Result     string `json:"result" yaml:"result"` // pong|ok
	CommandID  string `json:"command_id,omitempty" yaml:"command_id,omitempty"`
}

// Formatter 输出格式
type Formatter interface {
	Status(st *service.RelayStatus) string
	Ack(a Ack) string
}

// NewFormatter 支持 table（默认）、json、yaml
func NewFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{}
	case "yaml":
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

// TableFormatter 人读文本
type TableFormatter struct{}

func (f *TableFormatter) Status(st *service.RelayStatus) string {
	var buf bytes.Buffer
	buf.WriteString("Relay Status:\n")
	for _, r := range st.Relays {
		state := "OFF"
		if r.On {
			state = "ON"
		}
		fmt.Fprintf(&buf, "  Relay %d: %s\n", r.ID, state)
	}
	return buf.String()
}

func (f *TableFormatter) Ack(a Ack) string {
	if a.Result == "pong" {
		return "Pong!\n"
	}
	return "OK\n"
}

// JSONFormatter 缩进 JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Status(st *service.RelayStatus) string { return toJSON(st) }

func (f *JSONFormatter) Ack(a Ack) string { return toJSON(a) }

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error formatting JSON: %v\n", err)
	}
	return string(b) + "\n"
}

// YAMLFormatter YAML
type YAMLFormatter struct{}

func (f *YAMLFormatter) Status(st *service.RelayStatus) string { return toYAML(st) }

func (f *YAMLFormatter) Ack(a Ack) string { return toYAML(a) }

func toYAML(v any) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	return string(b)
}
