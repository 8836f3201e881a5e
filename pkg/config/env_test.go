package config

import (
	"os"
	"testing"
)

func setEnvironment(t *testing.T, value string) {
	t.Helper()
	original := os.Getenv("KMS_SERVER_ENVIRONMENT")
	t.Cleanup(func() {
		if original != "" {
			os.Setenv("KMS_SERVER_ENVIRONMENT", original)
		} else {
			os.Unsetenv("KMS_SERVER_ENVIRONMENT")
		}
	})
	if value != "" {
		os.Setenv("KMS_SERVER_ENVIRONMENT", value)
	} else {
		os.Unsetenv("KMS_SERVER_ENVIRONMENT")
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_GET_ENV_VAR", "test_value")
	defer os.Unsetenv("TEST_GET_ENV_VAR")

	if got := GetEnv("TEST_GET_ENV_VAR", "default"); got != "test_value" {
		t.Errorf("GetEnv() = %v, want test_value", got)
	}

	if got := GetEnv("NON_EXISTING_VAR", "default_value"); got != "default_value" {
		t.Errorf("GetEnv() = %v, want default_value", got)
	}
}

func TestGetEnvironment(t *testing.T) {
	tests := []struct {
		envValue string
		want     string
	}{
		{"development", "development"},
		{"DEVELOPMENT", "development"},
		{"staging", "staging"},
		{"production", "production"},
		{"PRODUCTION", "production"},
		{"", "development"}, // default
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			setEnvironment(t, tt.envValue)
			if got := GetEnvironment(); got != tt.want {
				t.Errorf("GetEnvironment() with %q = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	setEnvironment(t, "development")
	if !IsDevelopment() {
		t.Error("IsDevelopment() should return true for development environment")
	}

	os.Setenv("KMS_SERVER_ENVIRONMENT", "production")
	if IsDevelopment() {
		t.Error("IsDevelopment() should return false for production environment")
	}
}

func TestIsProduction(t *testing.T) {
	setEnvironment(t, "production")
	if !IsProduction() {
		t.Error("IsProduction() should return true for production environment")
	}

	os.Setenv("KMS_SERVER_ENVIRONMENT", "development")
	if IsProduction() {
		t.Error("IsProduction() should return false for development environment")
	}
}

func TestIsProductionLike(t *testing.T) {
	setEnvironment(t, "production")
	if !IsProductionLike() {
		t.Error("IsProductionLike() should return true for production")
	}

	os.Setenv("KMS_SERVER_ENVIRONMENT", "staging")
	if !IsProductionLike() {
		t.Error("IsProductionLike() should return true for staging")
	}

	os.Setenv("KMS_SERVER_ENVIRONMENT", "development")
	if IsProductionLike() {
		t.Error("IsProductionLike() should return false for development")
	}
}
