// Package alert raises conditions that need an operator: integrity
// violations, failed compensations, orphaned gateway objects.
package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/shelfpay/internal/providers/slack"
	"go.uber.org/zap"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	Severity  Severity
	Component string
	Message   string
	Fields    map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// LogNotifier writes alerts to the log and, when configured, to Slack.
type LogNotifier struct {
	log   *zap.Logger
	slack slack.Provider
}

func NewLogNotifier(log *zap.Logger, provider slack.Provider) *LogNotifier {
	if provider == nil {
		provider = &slack.NoOpProvider{}
	}
	return &LogNotifier{log: log, slack: provider}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) {
	fields := []zap.Field{
		zap.String("alert_severity", string(a.Severity)),
		zap.String("component", a.Component),
	}
	for _, k := range sortedKeys(a.Fields) {
		fields = append(fields, zap.String(k, a.Fields[k]))
	}
	n.log.Error(a.Message, fields...)

	// Delivery must not hang on a canceled request context.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := n.slack.PostMessage(sendCtx, "", format(a)); err != nil {
		n.log.Warn("alert delivery failed", zap.String("component", a.Component), zap.Error(err))
	}
}

func format(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", strings.ToUpper(string(a.Severity)), a.Component, a.Message)
	for _, k := range sortedKeys(a.Fields) {
		fmt.Fprintf(&b, "\n• %s: %s", k, a.Fields[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
