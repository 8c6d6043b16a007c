package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func TestObserveAnalysis(t *testing.T) {
	before := value(analysesTotal.WithLabelValues("Accident"))
	ObserveAnalysis("Accident", time.Second)
	if got := value(analysesTotal.WithLabelValues("Accident")); got != before+1 {
		t.Fatalf("analyses = %v", got)
	}
}

func TestObserveNotify(t *testing.T) {
	ok := value(notifyTotal.WithLabelValues("email", "ok"))
	failed := value(notifyTotal.WithLabelValues("email", "failed"))
	ObserveNotify("email", nil)
	ObserveNotify("email", errors.New("dial tcp"))
	if value(notifyTotal.WithLabelValues("email", "ok")) != ok+1 {
		t.Fatal("ok not counted")
	}
	if value(notifyTotal.WithLabelValues("email", "failed")) != failed+1 {
		t.Fatal("failed not counted")
	}
}

func TestDetectFailed(t *testing.T) {
	before := value(detectFailures)
	DetectFailed(3, errors.New("timeout"))
	if value(detectFailures) != before+1 {
		t.Fatal("detect failure not counted")
	}
}
