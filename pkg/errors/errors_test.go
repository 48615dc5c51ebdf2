package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	base := NewConstraintViolation("repository.CreatePOI", ConstraintUnique, errors.New("duplicate entry"))
	wrapped := NewTransaction("discovery.persist", fmt.Errorf("create poi: %w", base))

	if !Is(wrapped, ErrTransaction) {
		t.Fatal("expected transaction kind")
	}
	if !Is(wrapped, ErrConstraintViolation) {
		t.Fatal("expected constraint violation kind in chain")
	}
	if Is(wrapped, ErrDB) {
		t.Fatal("did not expect db kind")
	}

	var cv *ConstraintViolationError
	if !errors.As(wrapped, &cv) || cv.Kind != ConstraintUnique {
		t.Fatalf("errors.As constraint = %+v", cv)
	}
	if !strings.Contains(wrapped.Error(), "transaction failed") {
		t.Fatalf("message = %q", wrapped.Error())
	}
}

func TestClassificationErrorCarriesPOIAndStep(t *testing.T) {
	err := NewClassification(12, "aggregate", ErrInsufficientSources)
	var ce *ClassificationError
	if !errors.As(err, &ce) {
		t.Fatal("expected ClassificationError")
	}
	if ce.POIID != 12 || ce.Step != "aggregate" {
		t.Fatalf("got %+v", ce)
	}
	if !errors.Is(err, ErrInsufficientSources) {
		t.Fatal("cause should unwrap")
	}
}

func TestErrorFormats(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewDB("database.GetPOI", "query", errors.New("x")), "db: database.GetPOI: query: x"},
		{NewValidation("config.Validate", "bad port", nil), "validation: config.Validate: bad port"},
		{NewExternal("sources.Fetch", "", "timeout", nil), "external: sources.Fetch: timeout"},
		{NewSourceUnavailable("aggregator.fetch", "tripadvisor", errors.New("503")), "source unavailable: aggregator.fetch: tripadvisor: 503"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
