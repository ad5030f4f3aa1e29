package core

import "testing"

func TestProviderRegistry_ListDeterministicOrder(t *testing.T) {
	registry := NewProviderRegistry()
	for _, adapter := range []ProviderAdapter{
		newStubAdapter(ProviderWhatsApp),
		newStubAdapter(ProviderFacebook),
	} {
		if err := registry.Register(adapter); err != nil {
			t.Fatalf("register adapter: %v", err)
		}
	}

	listed := registry.List()
	if len(listed) != 2 {
		t.Fatalf("expected 2 adapters, got %d", len(listed))
	}
	if listed[0].Provider() != ProviderFacebook || listed[1].Provider() != ProviderWhatsApp {
		t.Fatalf("unexpected ordering: %s, %s", listed[0].Provider(), listed[1].Provider())
	}
}

func TestProviderRegistry_RejectsDuplicatesAndUnknown(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(newStubAdapter(ProviderFacebook)); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	if err := registry.Register(newStubAdapter(ProviderFacebook)); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := registry.Register(newStubAdapter("telegram")); err == nil {
		t.Fatalf("expected unknown provider to fail")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil adapter to fail")
	}
	if _, ok := registry.Get(ProviderWhatsApp); ok {
		t.Fatalf("expected whatsapp to be absent")
	}
}
