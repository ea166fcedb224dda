package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Fatal("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer so promauto registration in the owning packages lands in it")
	}
}

func TestMetricsDocumentation(t *testing.T) {
	// The torn_* families are registered via promauto where they are
	// defined (ratelimit, torn, batch, tracker); this package only pins
	// the registerer and documents the names.
	t.Log("torn_* metric families register in their owning packages")
}
