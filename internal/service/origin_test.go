package service

import (
	"testing"
)

func TestOriginResolver(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RPOrigin = "https://login.example.com"
	cfg.Server.AndroidAPKKeyHash = "pNiP5iKyQ8JwgGOaKA1zGPUPJIS-V3pLRLMQVdsTUFU"
	cfg.Server.AndroidUserAgent = "okhttp"

	resolver := NewOriginResolver(cfg)

	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{
			name:      "browser user agent",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0",
			want:      "https://login.example.com",
		},
		{
			name:      "native android client",
			userAgent: "okhttp/4.12.0",
			want:      "android:apk-key-hash:pNiP5iKyQ8JwgGOaKA1zGPUPJIS-V3pLRLMQVdsTUFU",
		},
		{
			name:      "marker embedded in longer agent",
			userAgent: "MyApp/2.1 okhttp/4.12.0 Android 14",
			want:      "android:apk-key-hash:pNiP5iKyQ8JwgGOaKA1zGPUPJIS-V3pLRLMQVdsTUFU",
		},
		{
			name:      "empty user agent",
			userAgent: "",
			want:      "https://login.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolver.Resolve(ClientContext{UserAgent: tt.userAgent})
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOriginResolver_NoAndroidHashConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RPOrigin = "https://login.example.com"
	cfg.Server.AndroidAPKKeyHash = ""

	resolver := NewOriginResolver(cfg)

	// without a configured hash even the native agent is held to the web
	// origin; there is no fallback that accepts arbitrary origins
	got := resolver.Resolve(ClientContext{UserAgent: "okhttp/4.12.0"})
	if got != "https://login.example.com" {
		t.Errorf("Resolve() = %q, want web origin", got)
	}
}
