package endpoint_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/store/memory"
)

func newService() *endpoint.Service {
	return endpoint.NewService(memory.New(), nil)
}

func validInput() endpoint.Input {
	return endpoint.Input{
		TenantID:   "tenant-1",
		URL:        "https://hooks.example.com/in",
		EventTypes: []string{"invoice.*"},
	}
}

func TestCreateGeneratesSecret(t *testing.T) {
	svc := newService()

	ep, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ep.Secret, "whsec_") {
		t.Errorf("secret %q missing whsec_ prefix", ep.Secret)
	}
	if !ep.Enabled {
		t.Error("new endpoint should start enabled")
	}
	if ep.ID.IsNil() {
		t.Error("new endpoint has no ID")
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*endpoint.Input)
		field  string
	}{
		{"missing tenant", func(in *endpoint.Input) { in.TenantID = "" }, "tenant_id"},
		{"no event types", func(in *endpoint.Input) { in.EventTypes = nil }, "event_types"},
		{"relative url", func(in *endpoint.Input) { in.URL = "not-a-url" }, "url"},
		{"bad scheme", func(in *endpoint.Input) { in.URL = "ftp://example.com/x" }, "url"},
		{"no host", func(in *endpoint.Input) { in.URL = "https:///path" }, "url"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)

			_, err := svc.Create(ctx, in)
			var verr *endpoint.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestUpdatePartial(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Update(ctx, ep.ID, endpoint.Input{Description: "billing hooks"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "billing hooks" {
		t.Errorf("description = %q", got.Description)
	}
	if got.URL != ep.URL {
		t.Error("unset field overwrote the URL")
	}
}

func TestSetEnabledRoundTrip(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	changed, err := svc.SetEnabled(ctx, ep.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("disable reported unchanged")
	}

	got, err := svc.Get(ctx, ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Fatal("endpoint still enabled")
	}
	if got.DisabledReason != "administrative" {
		t.Errorf("disabled reason = %q, want administrative", got.DisabledReason)
	}

	changed, err = svc.SetEnabled(ctx, ep.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("re-enable reported unchanged")
	}

	got, err = svc.Get(ctx, ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Enabled || got.DisabledReason != "" || got.DisabledAt != nil {
		t.Errorf("re-enabled state not cleared: %+v", got)
	}
}

func TestRotateSecret(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := svc.RotateSecret(ctx, ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rotated == ep.Secret {
		t.Error("rotation returned the old secret")
	}

	got, err := svc.Get(ctx, ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != rotated {
		t.Error("rotated secret not persisted")
	}
}

func TestListFiltersByEnabled(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	a, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, validInput()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetEnabled(ctx, a.ID, false); err != nil {
		t.Fatal(err)
	}

	enabled := true
	got, err := svc.List(ctx, "tenant-1", endpoint.ListOpts{Enabled: &enabled})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("enabled list = %d endpoints, want 1", len(got))
	}
}
