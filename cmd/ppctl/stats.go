package main

import (
	"fmt"
	"time"

	dto "github.com/prometheus/client_model/go"
)

const (
	gatewayRequestsMetric = "propertypro_gateway_client_requests_total"
	gatewayLatencyMetric  = "propertypro_gateway_client_latency_seconds"
)

// logGatewayStats はこの実行で発行したゲートウェイ呼び出しを操作ごとにデバッグログへ出す。
// status_codeが0の行は通信エラー。
func (c *cli) logGatewayStats() error {
	if c.registry == nil {
		return nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather gateway stats: %w", err)
	}

	latency := map[string]time.Duration{}
	for _, mf := range families {
		if mf.GetName() != gatewayLatencyMetric {
			continue
		}
		for _, m := range mf.GetMetric() {
			h := m.GetHistogram()
			if h.GetSampleCount() == 0 {
				continue
			}
			avg := h.GetSampleSum() / float64(h.GetSampleCount())
			latency[labelValue(m.GetLabel(), "operation")] = time.Duration(avg * float64(time.Second))
		}
	}

	for _, mf := range families {
		if mf.GetName() != gatewayRequestsMetric {
			continue
		}
		for _, m := range mf.GetMetric() {
			op := labelValue(m.GetLabel(), "operation")
			c.logger.Debug("gateway requests",
				"operation", op,
				"status_code", labelValue(m.GetLabel(), "status_code"),
				"count", int(m.GetCounter().GetValue()),
				"avg_latency", latency[op].String(),
			)
		}
	}
	return nil
}

func labelValue(labels []*dto.LabelPair, name string) string {
	for _, l := range labels {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
