package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func vaultServer(t *testing.T, data map[string]interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/tablesmith" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "test-token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data},
		})
	}))
	t.Cleanup(server.Close)
	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "test-token")
	return server
}

func TestResolveVault_Success(t *testing.T) {
	vaultServer(t, map[string]interface{}{"password": "s3cret"})

	val, err := resolveVault(context.Background(), "secret/data/tablesmith#password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "s3cret" {
		t.Errorf("expected 's3cret', got %q", val)
	}
}

func TestResolveVault_ViaResolveValue(t *testing.T) {
	vaultServer(t, map[string]interface{}{"username": "editor"})

	val, err := ResolveValue(context.Background(), "${VAULT:secret/data/tablesmith#username}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "editor" {
		t.Errorf("expected 'editor', got %q", val)
	}
}

func TestResolveVault_MissingKey(t *testing.T) {
	vaultServer(t, map[string]interface{}{"username": "admin"})

	if _, err := resolveVault(context.Background(), "secret/data/tablesmith#nonexistent"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestResolveVault_NonString(t *testing.T) {
	vaultServer(t, map[string]interface{}{"port": 5432})

	if _, err := resolveVault(context.Background(), "secret/data/tablesmith#port"); err == nil {
		t.Error("expected error for non-string value")
	}
}

func TestResolveVault_InvalidFormat(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://localhost:8200")
	t.Setenv("VAULT_TOKEN", "test-token")

	for _, ref := range []string{"no-hash-separator", "#key", "path#"} {
		if _, err := resolveVault(context.Background(), ref); err == nil {
			t.Errorf("expected error for %q", ref)
		}
	}
}

func TestResolveVault_MissingEnv(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")

	if _, err := resolveVault(context.Background(), "secret/data/path#key"); err == nil {
		t.Error("expected error when VAULT_ADDR is not set")
	}
}
